package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type memoryLimits struct {
	mu      sync.Mutex
	limits  Limits
	loadErr error
	saved   []Limits
}

func (s *memoryLimits) Limits(context.Context) (Limits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits, s.loadErr
}

func (s *memoryLimits) SetLimits(_ context.Context, l Limits) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = l
	s.saved = append(s.saved, l)
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (p *recordingPublisher) Publish(s Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, s)
}

func (p *recordingPublisher) heavy() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, 0, len(p.snapshots))
	for _, s := range p.snapshots {
		out = append(out, s.HeavyPending)
	}
	return out
}

func newTestManager(t *testing.T, limits Limits) (*Manager, *memoryLimits, *recordingPublisher) {
	t.Helper()
	store := &memoryLimits{limits: limits}
	pub := &recordingPublisher{}
	m := NewManager(context.Background(), store, pub, zaptest.NewLogger(t))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})
	return m, store, pub
}

// gate returns a request that signals started and blocks until release is closed.
func gate(started chan<- struct{}, release <-chan struct{}) func(context.Context) error {
	return func(context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}
}

func waitAll(t *testing.T, futures ...*Future) []error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs := make([]error, len(futures))
	for i, f := range futures {
		errs[i] = f.Wait(ctx)
		require.NotErrorIs(t, errs[i], context.DeadlineExceeded, "future %d never settled", i)
	}
	return errs
}

func TestManagerNeverExceedsLimit(t *testing.T) {
	m, _, _ := newTestManager(t, Limits{Heavy: 2, Light: 1})

	var running, peak atomic.Int32
	futures := make([]*Future, 0, 12)
	for i := 0; i < 12; i++ {
		futures = append(futures, m.Submit(context.Background(), Heavy, func(context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
			return nil
		}))
	}

	for _, err := range waitAll(t, futures...) {
		assert.NoError(t, err)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestManagerStartsInSubmissionOrder(t *testing.T) {
	m, _, _ := newTestManager(t, Limits{Heavy: 1, Light: 1})

	var mu sync.Mutex
	var order []int
	release := make(chan struct{})

	futures := make([]*Future, 0, 6)
	for i := 0; i < 6; i++ {
		i := i
		futures = append(futures, m.Submit(context.Background(), Light, func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			<-release
			return nil
		}))
	}
	close(release)

	waitAll(t, futures...)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, order)
}

func TestManagerClearRejectsOnlyQueued(t *testing.T) {
	m, _, _ := newTestManager(t, Limits{Heavy: 1, Light: 1})

	started := make(chan struct{}, 4)
	release := make(chan struct{})

	first := m.Submit(context.Background(), Heavy, gate(started, release))
	<-started

	var queued []*Future
	for i := 0; i < 3; i++ {
		queued = append(queued, m.Submit(context.Background(), Heavy, gate(started, release)))
	}
	require.Equal(t, 3, m.Snapshot().HeavyPending)

	assert.Equal(t, 3, m.Clear())
	assert.Equal(t, Snapshot{}, m.Snapshot())

	for _, err := range waitAll(t, queued...) {
		assert.ErrorIs(t, err, ErrQueueCleared)
	}

	select {
	case <-first.Done():
		t.Fatal("running item settled by Clear")
	default:
	}

	close(release)
	assert.NoError(t, waitAll(t, first)[0])
	assert.Len(t, started, 0, "cleared items must never start")
}

func TestManagerReconfigureReleasesWaitingWork(t *testing.T) {
	m, store, _ := newTestManager(t, Limits{Heavy: 1, Light: 1})

	started := make(chan struct{}, 3)
	release := make(chan struct{})
	defer close(release)

	for i := 0; i < 3; i++ {
		m.Submit(context.Background(), Heavy, gate(started, release))
	}
	<-started
	require.Equal(t, 2, m.Snapshot().HeavyPending)

	require.NoError(t, m.Reconfigure(context.Background(), Limits{Heavy: 3, Light: 1}))

	require.Eventually(t, func() bool { return len(started) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, m.Snapshot().HeavyPending)
	assert.Equal(t, 3, m.Status().HeavyRunning)
	assert.Equal(t, []Limits{{Heavy: 3, Light: 1}}, store.saved)
}

func TestManagerReconfigureDownDoesNotPreempt(t *testing.T) {
	m, _, _ := newTestManager(t, Limits{Heavy: 2, Light: 1})

	started := make(chan struct{}, 3)
	release := make(chan struct{})

	a := m.Submit(context.Background(), Heavy, gate(started, release))
	b := m.Submit(context.Background(), Heavy, gate(started, release))
	<-started
	<-started
	c := m.Submit(context.Background(), Heavy, gate(started, release))

	require.NoError(t, m.Reconfigure(context.Background(), Limits{Heavy: 1, Light: 1}))
	assert.Equal(t, 2, m.Status().HeavyRunning)
	assert.Equal(t, 1, m.Snapshot().HeavyPending)

	close(release)
	for _, err := range waitAll(t, a, b, c) {
		assert.NoError(t, err)
	}
}

func TestManagerClampsLimits(t *testing.T) {
	m, store, _ := newTestManager(t, Limits{Heavy: 2, Light: 2})

	require.NoError(t, m.Reconfigure(context.Background(), Limits{Heavy: 0, Light: -4}))
	assert.Equal(t, Limits{Heavy: 1, Light: 1}, m.Limits())
	assert.Equal(t, Limits{Heavy: 1, Light: 1}, store.limits)
}

func TestManagerLoadsLimits(t *testing.T) {
	tests := []struct {
		name  string
		store *memoryLimits
		want  Limits
	}{
		{"persisted", &memoryLimits{limits: Limits{Heavy: 2, Light: 6}}, Limits{Heavy: 2, Light: 6}},
		{"load error", &memoryLimits{loadErr: errors.New("disk gone")}, DefaultLimits()},
		{"zero values", &memoryLimits{}, Limits{Heavy: 1, Light: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(context.Background(), tt.store, nil, zaptest.NewLogger(t))
			assert.Equal(t, tt.want, m.Limits())
		})
	}

	m := NewManager(context.Background(), nil, nil, nil)
	assert.Equal(t, DefaultLimits(), m.Limits())
}

func TestManagerClassesAreIndependent(t *testing.T) {
	m, _, _ := newTestManager(t, Limits{Heavy: 1, Light: 1})

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	defer close(release)

	m.Submit(context.Background(), Heavy, gate(started, release))
	m.Submit(context.Background(), Heavy, gate(started, release))
	<-started

	light := m.Submit(context.Background(), Light, func(context.Context) error { return nil })
	assert.NoError(t, waitAll(t, light)[0])
	assert.Equal(t, 1, m.Snapshot().HeavyPending)
}

func TestManagerPublishesPendingAsItemsStart(t *testing.T) {
	m, _, pub := newTestManager(t, Limits{Heavy: 1, Light: 1})

	started := make(chan struct{}, 3)
	releases := []chan struct{}{make(chan struct{}), make(chan struct{}), make(chan struct{})}

	var futures []*Future
	for i := 0; i < 3; i++ {
		futures = append(futures, m.Submit(context.Background(), Heavy, gate(started, releases[i])))
	}

	for i := 0; i < 3; i++ {
		<-started
		close(releases[i])
		waitAll(t, futures[i])
	}

	// submit #1 queues then starts, #2 and #3 queue, then each start drains one
	require.Eventually(t, func() bool { return len(pub.heavy()) == 6 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{1, 0, 1, 2, 1, 0}, pub.heavy())
}

func TestManagerRejectsOnFailureAndPanic(t *testing.T) {
	m, _, _ := newTestManager(t, Limits{Heavy: 1, Light: 1})

	boom := errors.New("boom")
	failed := m.Submit(context.Background(), Light, func(context.Context) error { return boom })
	panicked := m.Submit(context.Background(), Light, func(context.Context) error { panic("bad") })
	after := m.Submit(context.Background(), Light, func(context.Context) error { return nil })

	errs := waitAll(t, failed, panicked, after)
	assert.ErrorIs(t, errs[0], boom)
	assert.ErrorContains(t, errs[1], "panicked")
	assert.NoError(t, errs[2])
}

func TestFutureWaitHonoursContext(t *testing.T) {
	m, _, _ := newTestManager(t, Limits{Heavy: 1, Light: 1})

	release := make(chan struct{})
	defer close(release)
	fut := m.Submit(context.Background(), Heavy, func(context.Context) error {
		<-release
		return nil
	}, WithID("stream-1"), WithType("stream:generate"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, fut.Wait(ctx), context.DeadlineExceeded)
	assert.Equal(t, "stream-1", fut.ID())
	assert.NoError(t, fut.Err())
}

func TestManagerLogsItemMetadata(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := NewManager(context.Background(), &memoryLimits{limits: Limits{Heavy: 1, Light: 1}}, nil, zap.New(core))

	block := make(chan struct{})
	first := m.Submit(context.Background(), Heavy, func(context.Context) error {
		<-block
		return nil
	}, WithType("generate"), WithMetadata("origin", "https://notes.example.com"))
	queued := m.Submit(context.Background(), Heavy, func(context.Context) error { return nil },
		WithType("chat"), WithMetadata("origin", "https://other.example.com"))

	assert.Equal(t, 1, m.Clear())
	close(block)
	require.NoError(t, first.Wait(context.Background()))
	assert.ErrorIs(t, queued.Wait(context.Background()), ErrQueueCleared)
	require.NoError(t, m.Stop(context.Background()))

	settled := logs.FilterMessage("Request settled").AllUntimed()
	require.Len(t, settled, 1)
	fields := settled[0].ContextMap()
	assert.Equal(t, "https://notes.example.com", fields["origin"])
	assert.Equal(t, "generate", fields["type"])
	assert.Equal(t, "resolved", fields["state"])

	dropped := logs.FilterMessage("Request dropped").AllUntimed()
	require.Len(t, dropped, 1)
	fields = dropped[0].ContextMap()
	assert.Equal(t, "https://other.example.com", fields["origin"])
	assert.Equal(t, "rejected", fields["state"])
}
