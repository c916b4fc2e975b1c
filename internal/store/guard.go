package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rpattn/metriq/internal/domain"
)

// DefaultGuardWait bounds how long a mutating call waits for the guard
// before failing with domain.ErrGuardTimeout.
const DefaultGuardWait = 5 * time.Second

// Guard serializes mutating operations per guarded key. The relational
// backend guards per entity id; the file backend guards the whole
// collection under a single key. Waiters are granted in strict arrival
// order.
type Guard struct {
	maxWait time.Duration

	mu sync.Mutex
	// queues[key][0] is the current holder; the rest wait in FIFO order.
	queues map[string][]chan struct{}
}

// NewGuard creates a guard with the given wait bound. A non-positive bound
// falls back to DefaultGuardWait.
func NewGuard(maxWait time.Duration) *Guard {
	if maxWait <= 0 {
		maxWait = DefaultGuardWait
	}
	return &Guard{
		maxWait: maxWait,
		queues:  make(map[string][]chan struct{}),
	}
}

// Acquire blocks until the key is granted, the context is done, or the wait
// bound elapses. On success it returns the release function; the caller must
// invoke it on every exit path. On timeout or cancellation the operation
// must not proceed: the waiter is withdrawn from the queue so it can never
// be granted after the caller has given up.
func (g *Guard) Acquire(ctx context.Context, key string) (release func(), err error) {
	grant := make(chan struct{})

	g.mu.Lock()
	holders := len(g.queues[key])
	g.queues[key] = append(g.queues[key], grant)
	if holders == 0 {
		close(grant)
	}
	g.mu.Unlock()

	timer := time.NewTimer(g.maxWait)
	defer timer.Stop()

	select {
	case <-grant:
		return func() { g.release(key) }, nil
	case <-ctx.Done():
		return nil, g.abandon(key, grant, ctx.Err())
	case <-timer.C:
		return nil, g.abandon(key, grant, fmt.Errorf("wait bound %s elapsed", g.maxWait))
	}
}

func (g *Guard) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	queue := g.queues[key][1:]
	if len(queue) == 0 {
		delete(g.queues, key)
		return
	}
	g.queues[key] = queue
	close(queue[0])
}

// abandon withdraws a waiter after its caller gave up. If the grant raced
// with the cancellation the lock is already held and is handed straight to
// the next waiter; either way the caller receives ErrGuardTimeout and the
// operation is never silently completed.
func (g *Guard) abandon(key string, grant chan struct{}, cause error) error {
	g.mu.Lock()
	granted := true
	queue := g.queues[key]
	for i, waiter := range queue {
		if waiter == grant && i > 0 {
			g.queues[key] = append(queue[:i:i], queue[i+1:]...)
			granted = false
			break
		}
	}
	g.mu.Unlock()

	if granted {
		g.release(key)
	}
	return fmt.Errorf("%w for %q: %v", domain.ErrGuardTimeout, key, cause)
}
