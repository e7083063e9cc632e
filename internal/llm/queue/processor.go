package queue

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// lane is one class's pending list, running count and limit.
//
// The processor side of the queue: it decides when an item may start and runs it.
// It respects limit to avoid overwhelming Ollama. Guarded by the Manager lock.
type lane struct {
	class   Class
	pending *fifo
	running int
	limit   int
}

func newLane(class Class, limit int) *lane {
	return &lane{
		class:   class,
		pending: newFIFO(),
		limit:   limit,
	}
}

// next pops the head item if a slot is free, marking it running.
// Returns nil when the lane is full or empty.
func (l *lane) next() *Item {
	if l.running >= l.limit {
		return nil
	}
	item := l.pending.pop()
	if item == nil {
		return nil
	}
	item.state = Running
	item.started = time.Now()
	l.running++
	return item
}

// finish releases the slot held by item.
func (l *lane) finish() {
	if l.running > 0 {
		l.running--
	}
}

// run executes a single item on the calling goroutine and reports the outcome.
// A panicking request settles as a rejection instead of taking the process down.
func run(item *Item, logger *zap.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("request %s panicked: %v", item.ID, r)
			logger.Error("Request panicked",
				zap.String("id", item.ID),
				zap.String("type", item.Type),
				zap.Any("panic", r))
		}
	}()

	return item.Request(item.Context)
}

// outcome labels a settlement for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "resolved"
	case errors.Is(err, ErrQueueCleared):
		return "cleared"
	default:
		return "rejected"
	}
}
