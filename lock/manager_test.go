package lock

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), "locks.json"), DefaultTTL, nil)
}

// lockConflictCount reads the conflict counter from the default registry.
func lockConflictCount(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() == "stagehand_lock_conflicts_total" {
			return fam.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestAcquireConflictNamesHolder(t *testing.T) {
	m := newTestManager(t)
	before := lockConflictCount(t)

	_, err := m.Acquire("CHAIN-A", "agent-1", []string{"app/api/**"})
	require.NoError(t, err)

	_, err = m.Acquire("CHAIN-B", "agent-2", []string{"app/api/profile/**"})
	require.Error(t, err)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "CHAIN-A", conflict.ChainID)
	assert.Equal(t, "app/api/**", conflict.HeldPattern)
	assert.Equal(t, "app/api/profile/**", conflict.RequestedPattern)

	// Every rejected acquisition counts, whatever the caller.
	assert.Equal(t, before+1, lockConflictCount(t))
}

func TestAcquireDisjointScopesBothSucceed(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Acquire("CHAIN-A", "agent-1", []string{"app/api/**"})
	require.NoError(t, err)
	_, err = m.Acquire("CHAIN-B", "agent-2", []string{"app/web/**"})
	require.NoError(t, err)

	locks, err := m.Status()
	require.NoError(t, err)
	assert.Len(t, locks, 2)
}

func TestReacquireSameChainMergesAndExtends(t *testing.T) {
	m := newTestManager(t)

	first, err := m.Acquire("CHAIN-A", "agent-1", []string{"app/api/**"})
	require.NoError(t, err)
	firstExpiry := first.ExpiresAt

	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	second, err := m.Acquire("CHAIN-A", "agent-1", []string{"app/api/**", "docs/**"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"app/api/**", "docs/**"}, second.Files)
	assert.True(t, second.ExpiresAt.After(firstExpiry), "re-acquire must extend expiry")
}

func TestExpiredLockDoesNotConflict(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Acquire("CHAIN-A", "agent-1", []string{"app/api/**"})
	require.NoError(t, err)

	// Step past the TTL; CHAIN-A's entry is now inert.
	m.now = func() time.Time { return time.Now().Add(DefaultTTL + time.Minute) }

	_, err = m.Acquire("CHAIN-B", "agent-2", []string{"app/api/**"})
	require.NoError(t, err)

	// Expired entries still show up in status; callers treat them as inert.
	locks, err := m.Status()
	require.NoError(t, err)
	assert.Len(t, locks, 2)
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Acquire("CHAIN-A", "agent-1", []string{"app/api/**"})
	require.NoError(t, err)

	require.NoError(t, m.Release("CHAIN-A"))
	require.NoError(t, m.Release("CHAIN-A"))

	locks, err := m.Status()
	require.NoError(t, err)
	assert.Empty(t, locks)
}

func TestAcquireValidatesInput(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Acquire("", "agent", []string{"a/**"})
	assert.ErrorIs(t, err, ErrChainIDRequired)

	_, err = m.Acquire("CHAIN-A", "agent", nil)
	assert.ErrorIs(t, err, ErrPatternsRequired)
}

func TestStatusSurvivesProcessRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks.json")

	m1 := NewManager(path, DefaultTTL, nil)
	_, err := m1.Acquire("CHAIN-A", "agent-1", []string{"app/api/**"})
	require.NoError(t, err)

	m2 := NewManager(path, DefaultTTL, nil)
	locks, err := m2.Status()
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "CHAIN-A", locks[0].ChainID)
	assert.Equal(t, []string{"app/api/**"}, locks[0].Files)
}
