// Package events fans queue status out to any number of observers.
//
// Every observer gets a private one-slot mailbox and its own delivery goroutine, so a
// slow or dead observer never delays the others and Publish never blocks. When an
// observer's Notify fails it is dropped from the registry.
package events

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrObserverClosed is returned by observers that have gone away.
var ErrObserverClosed = errors.New("observer closed")

// Observer receives published values.
type Observer[T any] interface {
	Notify(value T) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc[T any] func(T) error

// Notify calls f(value).
func (f ObserverFunc[T]) Notify(value T) error {
	return f(value)
}

// Handle identifies one subscription.
type Handle uint64

type subscription[T any] struct {
	observer Observer[T]
	mailbox  chan T
	done     chan struct{}
}

// Broker manages observer registration and delivery
type Broker[T any] struct {
	subscribers map[Handle]*subscription[T]
	next        Handle
	mu          sync.RWMutex
	logger      *zap.Logger
	wg          sync.WaitGroup
}

// NewBroker creates a new broker
func NewBroker[T any](logger *zap.Logger) *Broker[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker[T]{
		subscribers: make(map[Handle]*subscription[T]),
		logger:      logger,
	}
}

// Subscribe registers an observer.
func (b *Broker[T]) Subscribe(observer Observer[T]) Handle {
	return b.subscribe(observer, nil)
}

// SubscribeFrom registers an observer whose first delivery is initial.
// Use it to hand a new observer the current state without racing Publish.
func (b *Broker[T]) SubscribeFrom(observer Observer[T], initial T) Handle {
	return b.subscribe(observer, &initial)
}

func (b *Broker[T]) subscribe(observer Observer[T], initial *T) Handle {
	sub := &subscription[T]{
		observer: observer,
		mailbox:  make(chan T, 1),
		done:     make(chan struct{}),
	}
	if initial != nil {
		sub.mailbox <- *initial
	}

	b.mu.Lock()
	b.next++
	h := b.next
	b.subscribers[h] = sub
	b.mu.Unlock()

	b.wg.Add(1)
	go b.pump(h, sub)

	b.logger.Debug("Observer subscribed", zap.Uint64("handle", uint64(h)))
	return h
}

// Unsubscribe removes a subscription. Unknown handles are ignored.
func (b *Broker[T]) Unsubscribe(h Handle) {
	b.mu.Lock()
	sub, ok := b.subscribers[h]
	if ok {
		delete(b.subscribers, h)
	}
	b.mu.Unlock()

	if ok {
		close(sub.done)
		b.logger.Debug("Observer unsubscribed", zap.Uint64("handle", uint64(h)))
	}
}

// Publish hands value to every current observer.
// An observer that has not consumed its previous value only sees the latest one.
func (b *Broker[T]) Publish(value T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		sub.offer(value)
	}
}

// Len returns the number of registered observers.
func (b *Broker[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close removes all subscriptions and waits for delivery goroutines to exit.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = make(map[Handle]*subscription[T])
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
	b.wg.Wait()
}

// pump delivers mailbox values to one observer until it fails or is removed.
func (b *Broker[T]) pump(h Handle, sub *subscription[T]) {
	defer b.wg.Done()

	for {
		select {
		case <-sub.done:
			return
		case value := <-sub.mailbox:
			if err := sub.observer.Notify(value); err != nil {
				b.logger.Debug("Dropping observer", zap.Uint64("handle", uint64(h)), zap.Error(err))
				b.Unsubscribe(h)
				return
			}
		}
	}
}

// offer replaces any undelivered value with value. Never blocks.
func (s *subscription[T]) offer(value T) {
	for {
		select {
		case s.mailbox <- value:
			return
		default:
		}
		select {
		case <-s.mailbox:
		default:
		}
	}
}
