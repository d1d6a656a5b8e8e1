// Package lock provides advisory, pattern-based mutual exclusion over file
// scopes across concurrently running chains. Locks are purely advisory:
// nothing prevents a writer that never acquires from touching a locked
// path. The guarantee is only that no two locked chains can claim
// overlapping scopes at once.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/c360studio/stagehand/metrics"
)

// DefaultTTL is how long a lock lives without being refreshed.
const DefaultTTL = 24 * time.Hour

// StoreVersion identifies the lock document schema.
const StoreVersion = 1

// Sentinel errors for lock operations.
var (
	ErrChainIDRequired  = errors.New("chain id is required")
	ErrPatternsRequired = errors.New("at least one file pattern is required")
)

// ConflictError reports a pattern collision with another chain's lock.
type ConflictError struct {
	// ChainID is the chain whose held lock conflicts.
	ChainID string
	// HeldPattern is the conflicting pattern the other chain holds.
	HeldPattern string
	// RequestedPattern is the pattern the caller asked for.
	RequestedPattern string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("pattern %q conflicts with %q held by chain %s",
		e.RequestedPattern, e.HeldPattern, e.ChainID)
}

// FileLock is one chain's claim over a set of file patterns.
type FileLock struct {
	// ChainID is the owning chain.
	ChainID string `json:"chain_id"`

	// Files are the claimed glob patterns.
	Files []string `json:"files"`

	// Agent identifies who acquired the lock.
	Agent string `json:"agent,omitempty"`

	// Acquired is when the lock was first taken.
	Acquired time.Time `json:"acquired"`

	// ExpiresAt is when the lock becomes inert. Expired entries are never
	// proactively purged; callers treat them as absent.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the lock is inert at the given instant.
func (l *FileLock) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// document is the single on-disk lock store.
type document struct {
	Version int                  `json:"version"`
	Chains  map[string]*FileLock `json:"chains"`
}

// Manager serialises lock operations against a single JSON document.
type Manager struct {
	path   string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a lock manager backed by the document at path.
// A non-positive ttl falls back to DefaultTTL.
func NewManager(path string, ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{path: path, ttl: ttl, logger: logger, now: time.Now}
}

// Acquire claims patterns for a chain. Overlap with any non-expired lock
// held by a different chain fails with a ConflictError naming the offending
// chain and pattern. Re-acquiring for the same chain merges the patterns
// into its entry and refreshes the TTL.
func (m *Manager) Acquire(chainID, agent string, patterns []string) (*FileLock, error) {
	if chainID == "" {
		return nil, ErrChainIDRequired
	}
	if len(patterns) == 0 {
		return nil, ErrPatternsRequired
	}

	doc, err := m.load()
	if err != nil {
		return nil, err
	}

	now := m.now()
	for otherID, held := range doc.Chains {
		if otherID == chainID || held.Expired(now) {
			continue
		}
		for _, heldPattern := range held.Files {
			for _, requested := range patterns {
				if Overlaps(heldPattern, requested) {
					metrics.LockConflict()
					return nil, &ConflictError{
						ChainID:          otherID,
						HeldPattern:      heldPattern,
						RequestedPattern: requested,
					}
				}
			}
		}
	}

	entry, ok := doc.Chains[chainID]
	if !ok || entry.Expired(now) {
		entry = &FileLock{ChainID: chainID, Acquired: now}
		doc.Chains[chainID] = entry
	}
	entry.Files = mergePatterns(entry.Files, patterns)
	entry.Agent = agent
	entry.ExpiresAt = now.Add(m.ttl)

	if err := m.save(doc); err != nil {
		return nil, err
	}
	m.logger.Debug("lock acquired",
		slog.String("chain", chainID),
		slog.Int("patterns", len(entry.Files)))
	return entry, nil
}

// Release drops a chain's lock entry. Releasing an absent entry is a no-op.
func (m *Manager) Release(chainID string) error {
	if chainID == "" {
		return ErrChainIDRequired
	}
	doc, err := m.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Chains[chainID]; !ok {
		return nil
	}
	delete(doc.Chains, chainID)
	m.logger.Debug("lock released", slog.String("chain", chainID))
	return m.save(doc)
}

// Status lists every lock entry, expired ones included. Callers are
// responsible for treating expiry as inert.
func (m *Manager) Status() ([]*FileLock, error) {
	doc, err := m.load()
	if err != nil {
		return nil, err
	}
	out := make([]*FileLock, 0, len(doc.Chains))
	for _, entry := range doc.Chains {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out, nil
}

// Held returns the non-expired lock for a chain, or nil.
func (m *Manager) Held(chainID string) (*FileLock, error) {
	doc, err := m.load()
	if err != nil {
		return nil, err
	}
	entry, ok := doc.Chains[chainID]
	if !ok || entry.Expired(m.now()) {
		return nil, nil
	}
	return entry, nil
}

func (m *Manager) load() (*document, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &document{Version: StoreVersion, Chains: map[string]*FileLock{}}, nil
		}
		return nil, fmt.Errorf("failed to read lock store: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse lock store: %w", err)
	}
	if doc.Chains == nil {
		doc.Chains = map[string]*FileLock{}
	}
	// Stamp the owning chain id onto entries loaded from older documents.
	for id, entry := range doc.Chains {
		entry.ChainID = id
	}
	return &doc, nil
}

func (m *Manager) save(doc *document) error {
	doc.Version = StoreVersion
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock store directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock store: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write lock store: %w", err)
	}
	return nil
}

// mergePatterns appends the new patterns, dropping exact duplicates.
func mergePatterns(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	out := append([]string(nil), existing...)
	for _, p := range existing {
		seen[p] = true
	}
	for _, p := range incoming {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
