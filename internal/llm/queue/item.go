package queue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrQueueCleared is the rejection delivered to items dropped by Manager.Clear.
var ErrQueueCleared = errors.New("queue cleared")

// State is the lifecycle position of an Item.
//
//	Queued -> Running -> Resolved | Rejected
//	Queued -> Rejected (Clear)
type State int

const (
	Queued State = iota
	Running
	Resolved
	Rejected
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Item represents a single request waiting for, or holding, a lane slot.
//
// Items are created by Manager.Submit and owned by their lane until dispatched.
// The Future is the only handle callers keep.
type Item struct {
	// ID uniquely identifies this request in logs
	ID string

	// Class selects the lane
	Class Class

	// Type categorizes the request for logs and metrics
	// e.g. "generate", "tags", "stream:chat"
	Type string

	// Request is the work to run once a slot is free
	Request func(context.Context) error

	// Context is handed to Request when it runs
	Context context.Context

	// Created timestamp, used for wait-time metrics
	Created time.Time

	// Metadata is logged with every lifecycle line, e.g. the caller origin
	Metadata map[string]string

	state   State
	started time.Time
	future  *Future
}

// fields returns the log fields identifying the item.
func (i *Item) fields() []zap.Field {
	fields := []zap.Field{
		zap.String("id", i.ID),
		zap.String("type", i.Type),
		zap.Stringer("class", i.Class),
	}
	for k, v := range i.Metadata {
		fields = append(fields, zap.String(k, v))
	}
	return fields
}

// Option configures an Item when submitting it.
type Option func(*Item)

// WithType categorizes the request for debugging and metrics.
func WithType(t string) Option {
	return func(i *Item) {
		i.Type = t
	}
}

// WithID overrides the generated request ID.
// Useful when the caller already has a correlation id (e.g. a stream connection).
func WithID(id string) Option {
	return func(i *Item) {
		if id != "" {
			i.ID = id
		}
	}
}

// WithMetadata attaches a key/value pair to the item's log lines.
func WithMetadata(key, value string) Option {
	return func(i *Item) {
		if i.Metadata == nil {
			i.Metadata = make(map[string]string)
		}
		i.Metadata[key] = value
	}
}

// newItem creates an Item with the given options.
// This is called by Manager.Submit, not directly.
func newItem(id string, ctx context.Context, class Class, request func(context.Context) error, opts ...Option) *Item {
	item := &Item{
		ID:       id,
		Class:    class,
		Type:     "generic",
		Request:  request,
		Context:  ctx,
		Created:  time.Now(),
		Metadata: make(map[string]string),
		state:    Queued,
		future:   &Future{done: make(chan struct{})},
	}

	for _, opt := range opts {
		opt(item)
	}
	item.future.id = item.ID

	return item
}

// Future settles when its item finishes running or is dropped by Clear.
type Future struct {
	id   string
	done chan struct{}
	err  error
}

// ID returns the id of the submitted item.
func (f *Future) ID() string {
	return f.id
}

// Done is closed once the item is settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the settlement error. Only meaningful after Done is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the item settles or ctx ends.
// Returning early because of ctx does not withdraw the item from its lane.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// settle records the outcome and wakes waiters. Called once, under the manager lock.
func (f *Future) settle(err error) {
	f.err = err
	close(f.done)
}
