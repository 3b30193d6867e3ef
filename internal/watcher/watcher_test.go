package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRebuilder struct {
	calls atomic.Int32
}

func (r *countingRebuilder) Migrate() error {
	r.calls.Add(1)
	return nil
}

func TestGuard_RebuildsOnFileDeletion(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "relief.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("x"), 0o644))

	rebuilder := &countingRebuilder{}
	guard, err := NewGuard(dbPath, rebuilder, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = guard.Run(ctx)
		close(done)
	}()

	// Let the watch settle before deleting.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.Remove(dbPath))

	require.Eventually(t, func() bool {
		return rebuilder.calls.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond, "rebuild never triggered")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("guard did not stop")
	}
}

func TestGuard_QuickRecreateCancelsRebuild(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "relief.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("x"), 0o644))

	rebuilder := &countingRebuilder{}
	guard, err := NewGuard(dbPath, rebuilder, zerolog.Nop())
	require.NoError(t, err)
	guard.debounce = 300 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = guard.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.Remove(dbPath))
	// Recreate inside the debounce window, as a restore tool would.
	require.NoError(t, os.WriteFile(dbPath, []byte("x"), 0o644))

	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, int32(0), rebuilder.calls.Load())
}
