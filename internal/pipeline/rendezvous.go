package pipeline

import (
	"context"
	"sync"
	"time"
)

// Rendezvous carries one value from a producer to any number of waiters.
// The first Signal wins; later ones are ignored.
type Rendezvous[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
}

func NewRendezvous[T any]() *Rendezvous[T] {
	return &Rendezvous[T]{done: make(chan struct{})}
}

// Signal publishes v and wakes all waiters. It reports whether v was the
// value published.
func (r *Rendezvous[T]) Signal(v T) bool {
	fired := false
	r.once.Do(func() {
		r.val = v
		close(r.done)
		fired = true
	})
	return fired
}

// Wait blocks until Signal, timeout or ctx cancellation. ok is false unless
// the value was signaled.
func (r *Rendezvous[T]) Wait(ctx context.Context, timeout time.Duration) (v T, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-r.done:
		return r.val, true
	case <-timer.C:
	case <-ctx.Done():
	}
	return r.Value()
}

// Value returns the signaled value without blocking.
func (r *Rendezvous[T]) Value() (v T, ok bool) {
	select {
	case <-r.done:
		return r.val, true
	default:
		return v, false
	}
}
