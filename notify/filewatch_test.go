package notify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileWatcherSignalsOnTargetWrite(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := NewFileWatcher(dir, nil).Watch(ctx, "wf-1.json")
	require.NoError(t, err)

	// A sibling document does not signal.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wf-other.json"), []byte("{}"), 0644))
	select {
	case <-changes:
		t.Fatal("received signal for unrelated document")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "wf-1.json"), []byte("{}"), 0644))
	select {
	case _, ok := <-changes:
		require.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change signal")
	}
}

func TestFileWatcherClosesOnCancel(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	changes, err := NewFileWatcher(dir, nil).Watch(ctx, "wf-1.json")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-changes:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancellation")
	}
}
