package events

import "sync"

// ChanObserver delivers values on a channel, for in-process subscribers.
// Notify blocks until the value is received or the observer is closed; that only
// stalls this observer's own delivery goroutine.
type ChanObserver[T any] struct {
	ch     chan T
	closed chan struct{}
	once   sync.Once
}

// NewChanObserver creates an observer with the given channel buffer.
func NewChanObserver[T any](buffer int) *ChanObserver[T] {
	return &ChanObserver[T]{
		ch:     make(chan T, buffer),
		closed: make(chan struct{}),
	}
}

// C returns the delivery channel.
func (o *ChanObserver[T]) C() <-chan T {
	return o.ch
}

// Notify implements Observer.
func (o *ChanObserver[T]) Notify(value T) error {
	select {
	case <-o.closed:
		return ErrObserverClosed
	default:
	}
	select {
	case o.ch <- value:
		return nil
	case <-o.closed:
		return ErrObserverClosed
	}
}

// Close marks the observer as gone; the broker drops it on the next delivery.
func (o *ChanObserver[T]) Close() {
	o.once.Do(func() { close(o.closed) })
}
