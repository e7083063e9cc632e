package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LimitsStore persists concurrency limits.
// Implemented by config.Store; nil means limits live in memory only.
type LimitsStore interface {
	Limits(ctx context.Context) (Limits, error)
	SetLimits(ctx context.Context, limits Limits) error
}

// Publisher receives a Snapshot whenever a pending count changes.
// Implemented by events.Broker. Publish must not block.
type Publisher interface {
	Publish(Snapshot)
}

// Manager coordinates both lanes.
// This is the main entry point for the queue system.
//
// It ties together:
//   - the heavy and light lanes (pending FIFO + running count + limit)
//   - the limits store (loaded once, written on every Reconfigure)
//   - the publisher (queue depth observers)
//
// Used by: app.Service for every upstream request
type Manager struct {
	mu     sync.Mutex
	lanes  map[Class]*lane
	limits Limits

	store     LimitsStore
	publisher Publisher
	logger    *zap.Logger

	// In-flight goroutines, for Stop
	wg sync.WaitGroup
}

// Status is the full per-lane view, for the admin surface and the monitor.
type Status struct {
	Snapshot
	HeavyRunning int    `json:"heavyRunning"`
	LightRunning int    `json:"lightRunning"`
	Limits       Limits `json:"limits"`
}

// NewManager creates a queue manager with limits loaded from store.
// A nil store or a failing load falls back to DefaultLimits.
// Queues always start empty.
func NewManager(ctx context.Context, store LimitsStore, publisher Publisher, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	limits := DefaultLimits()
	if store != nil {
		loaded, err := store.Limits(ctx)
		if err != nil {
			logger.Warn("Failed to load concurrency limits, using defaults",
				zap.Error(err),
				zap.Int("heavy", limits.Heavy),
				zap.Int("light", limits.Light))
		} else {
			limits = loaded
		}
	}
	limits = limits.Clamp()

	m := &Manager{
		lanes: map[Class]*lane{
			Heavy: newLane(Heavy, limits.Heavy),
			Light: newLane(Light, limits.Light),
		},
		limits:    limits,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}

	for _, c := range classes {
		limitGauge.WithLabelValues(c.String()).Set(float64(limits.For(c)))
	}

	logger.Info("Request queue initialized",
		zap.Int("heavy_limit", limits.Heavy),
		zap.Int("light_limit", limits.Light))

	return m
}

// Submit adds a request to the lane of the given class.
// It never blocks and never fails; the returned Future settles when the request
// has run, or with ErrQueueCleared if Clear drops it first.
//
// Example:
//
//	fut := manager.Submit(ctx, queue.Heavy, func(ctx context.Context) error {
//	    return relay(ctx)
//	}, queue.WithType("stream:generate"))
func (m *Manager) Submit(ctx context.Context, class Class, request func(context.Context) error, opts ...Option) *Future {
	if class != Heavy {
		class = Light
	}
	item := newItem(uuid.NewString(), ctx, class, request, opts...)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lanes[class].pending.push(item)
	m.logger.Debug("Request queued", item.fields()...)
	m.publishLocked()

	m.dispatchLocked(class)
	return item.future
}

// Reconfigure replaces both limits, persists them and re-evaluates dispatch.
// Non-positive values are clamped to 1. Lowering a limit never interrupts running
// work; raising one may start waiting items immediately.
//
// The new limits take effect even when persisting fails; the error is returned.
func (m *Manager) Reconfigure(ctx context.Context, limits Limits) error {
	limits = limits.Clamp()

	m.mu.Lock()
	m.limits = limits
	for _, c := range classes {
		m.lanes[c].limit = limits.For(c)
		limitGauge.WithLabelValues(c.String()).Set(float64(limits.For(c)))
	}
	m.logger.Info("Concurrency limits changed",
		zap.Int("heavy", limits.Heavy),
		zap.Int("light", limits.Light))
	for _, c := range classes {
		m.dispatchLocked(c)
	}
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	if err := m.store.SetLimits(ctx, limits); err != nil {
		m.logger.Error("Failed to persist concurrency limits", zap.Error(err))
		return fmt.Errorf("persist limits: %w", err)
	}
	return nil
}

// Clear rejects every item still waiting in either lane with ErrQueueCleared.
// Running items are unaffected. Returns the number of items dropped.
func (m *Manager) Clear() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cleared := 0
	for _, c := range classes {
		for _, item := range m.lanes[c].pending.drain() {
			item.state = Rejected
			m.logger.Debug("Request dropped", append(item.fields(), zap.Stringer("state", item.state))...)
			item.future.settle(ErrQueueCleared)
			settledTotal.WithLabelValues(c.String(), outcome(ErrQueueCleared)).Inc()
			cleared++
		}
	}

	m.logger.Info("Queue cleared", zap.Int("dropped", cleared))
	m.publishLocked()

	for _, c := range classes {
		m.dispatchLocked(c)
	}
	return cleared
}

// Snapshot returns the pending counts of both lanes.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Status returns pending and running counts plus current limits.
// Use this for UI display and monitoring.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Status{
		Snapshot:     m.snapshotLocked(),
		HeavyRunning: m.lanes[Heavy].running,
		LightRunning: m.lanes[Light].running,
		Limits:       m.limits,
	}
}

// Limits returns the limits currently in force.
func (m *Manager) Limits() Limits {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits
}

// Stop drops all waiting items and waits for running ones to finish,
// or for ctx to end.
func (m *Manager) Stop(ctx context.Context) error {
	m.Clear()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatchLocked starts waiting items of class c while the lane has free slots.
// Strict FIFO: items leave the lane in the order they were pushed.
func (m *Manager) dispatchLocked(c Class) {
	l := m.lanes[c]
	for {
		item := l.next()
		if item == nil {
			break
		}

		waitSeconds.WithLabelValues(c.String()).Observe(item.started.Sub(item.Created).Seconds())
		m.logger.Debug("Starting request", append(item.fields(),
			zap.Int("running", l.running),
			zap.Int("limit", l.limit))...)
		m.publishLocked()

		m.wg.Add(1)
		go m.execute(item)
	}
	runningGauge.WithLabelValues(c.String()).Set(float64(l.running))
}

// execute runs item outside the lock and settles it.
func (m *Manager) execute(item *Item) {
	defer m.wg.Done()

	err := run(item, m.logger)
	m.settle(item, err)
}

// settle frees the item's slot, resolves its Future and dispatches the next one.
func (m *Manager) settle(item *Item, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.lanes[item.Class]
	l.finish()

	duration := time.Since(item.started)
	item.state = Resolved
	if err != nil {
		item.state = Rejected
	}
	m.logger.Debug("Request settled", append(item.fields(),
		zap.Stringer("state", item.state),
		zap.Duration("duration", duration),
		zap.Error(err))...)
	item.future.settle(err)

	runSeconds.WithLabelValues(item.Class.String()).Observe(duration.Seconds())
	settledTotal.WithLabelValues(item.Class.String(), outcome(err)).Inc()

	m.dispatchLocked(item.Class)
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		HeavyPending: m.lanes[Heavy].pending.len(),
		LightPending: m.lanes[Light].pending.len(),
	}
}

// publishLocked reports the current pending counts. Publishers must not block,
// so this is safe under the lock and keeps snapshots in mutation order.
func (m *Manager) publishLocked() {
	s := m.snapshotLocked()
	pendingGauge.WithLabelValues(Heavy.String()).Set(float64(s.HeavyPending))
	pendingGauge.WithLabelValues(Light.String()).Set(float64(s.LightPending))
	if m.publisher != nil {
		m.publisher.Publish(s)
	}
}
