package importer

import (
	"fmt"
	"sync"
)

// ConcurrencyLimiter is a bounded-parallelism gate: at most maxConcurrent
// submitted tasks run at once; the rest wait in a FIFO queue. No priority,
// no cancellation, no timeout; callers that need those wrap the limiter.
type ConcurrencyLimiter struct {
	mu      sync.Mutex
	max     int
	active  int
	waiters []chan struct{}
}

func NewConcurrencyLimiter(maxConcurrent int) (*ConcurrencyLimiter, error) {
	if maxConcurrent < 1 {
		return nil, fmt.Errorf("maxConcurrent must be at least 1, got %d", maxConcurrent)
	}
	return &ConcurrencyLimiter{max: maxConcurrent}, nil
}

func (l *ConcurrencyLimiter) acquire() {
	l.mu.Lock()
	if l.active < l.max {
		l.active++
		l.mu.Unlock()
		return
	}
	ready := make(chan struct{})
	l.waiters = append(l.waiters, ready)
	l.mu.Unlock()
	<-ready
}

func (l *ConcurrencyLimiter) release() {
	l.mu.Lock()
	if len(l.waiters) > 0 {
		// Hand the slot to the oldest waiter; active count is unchanged.
		ready := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.mu.Unlock()
		close(ready)
		return
	}
	l.active--
	l.mu.Unlock()
}

// TaskResult is the eventual outcome of one submitted unit of work.
type TaskResult[T any] struct {
	Value T
	Err   error
}

// Submit schedules fn under the limiter and returns a channel that receives
// exactly one result. A panic inside fn resolves as a task error rather
// than crashing the run; tasks are isolated from each other.
func Submit[T any](l *ConcurrencyLimiter, fn func() (T, error)) <-chan TaskResult[T] {
	out := make(chan TaskResult[T], 1)
	go func() {
		l.acquire()
		defer l.release()
		defer func() {
			if r := recover(); r != nil {
				var zero T
				out <- TaskResult[T]{Value: zero, Err: fmt.Errorf("task panicked: %v", r)}
			}
		}()
		value, err := fn()
		out <- TaskResult[T]{Value: value, Err: err}
	}()
	return out
}
