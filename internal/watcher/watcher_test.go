package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) onChange(paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, paths)
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func TestFileChangedDebounces(t *testing.T) {
	rec := &recorder{}
	w := NewWatcher(30*time.Millisecond, rec.onChange, zaptest.NewLogger(t))
	defer w.Stop()

	w.FileChanged("b")
	w.FileChanged("a")
	w.FileChanged("b")

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, [][]string{{"a", "b"}}, rec.snapshot())

	w.FileChanged("c")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"c"}, rec.snapshot()[1])
}

func TestStopDropsPending(t *testing.T) {
	rec := &recorder{}
	w := NewWatcher(20*time.Millisecond, rec.onChange, nil)

	w.FileChanged("a")
	w.Stop()
	w.FileChanged("b")

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestWatchReportsTargetOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	target := filepath.Join(dir, "config.yaml")
	other := filepath.Join(dir, "other.yaml")

	rec := &recorder{}
	w := NewWatcher(20*time.Millisecond, rec.onChange, zaptest.NewLogger(t))
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx, target) }()

	// the directory is created by Watch; retry until the watch is live
	require.Eventually(t, func() bool {
		_ = os.WriteFile(other, []byte("x"), 0o644)
		if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
			return false
		}
		return len(rec.snapshot()) > 0
	}, 5*time.Second, 50*time.Millisecond)

	for _, call := range rec.snapshot() {
		assert.Equal(t, []string{filepath.Clean(target)}, call)
	}

	cancel()
	assert.NoError(t, <-done)
}
