// Package waitq provides the suspension primitive behind blocking device
// I/O: goroutines park on a Queue until a condition guarded by a shared
// lock becomes true, a wake arrives, the caller's context fires, or a
// timeout elapses.
package waitq

import (
	"context"
	"sync"
	"time"
)

// Result reports why WaitUntil returned.
type Result int

const (
	// Woken means the predicate held when WaitUntil returned.
	Woken Result = iota
	// Interrupted means the caller's context fired while suspended.
	Interrupted
	// TimedOut means the timeout elapsed with the predicate still false.
	TimedOut
)

func (r Result) String() string {
	switch r {
	case Woken:
		return "woken"
	case Interrupted:
		return "interrupted"
	case TimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

type waiter struct {
	ch chan struct{}
}

// Queue tracks goroutines suspended on one condition. The condition itself
// is guarded by the shared lock passed to New; the queue's own bookkeeping
// has a separate mutex so WakeOne and WakeAll may be called with or without
// the shared lock held.
//
// A goroutine is registered at most once per suspension: each pass through
// the WaitUntil loop enqueues a fresh waiter and the waiter is removed
// before the pass ends.
type Queue struct {
	lock *sync.Mutex

	mu      sync.Mutex
	waiters []*waiter
}

// New creates a Queue bound to the lock guarding the awaited condition.
// A nil lock gets a private one, which suits standalone use in tests.
func New(lock *sync.Mutex) *Queue {
	if lock == nil {
		lock = new(sync.Mutex)
	}
	return &Queue{lock: lock}
}

// Lock returns the shared condition lock the queue was built with.
func (q *Queue) Lock() *sync.Mutex {
	return q.lock
}

// Len returns the number of currently suspended waiters.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

// WaitUntil suspends the calling goroutine until pred returns true.
//
// The caller must hold the shared lock. Registration and the release of
// the shared lock form one atomic step with respect to WakeOne and
// WakeAll: a wake issued after WaitUntil releases the lock is never lost.
// The lock is held again whenever pred runs and when WaitUntil returns,
// so predicates may both test and falsify the condition (consume a token,
// take a byte) in the same step.
//
// pred is re-evaluated in a loop after every wake; a wake with a false
// predicate simply suspends again. A context that cannot fire (such as
// context.Background) never produces Interrupted. A timeout of zero or
// less means no timeout. On timeout the predicate is checked once more
// under the lock, so a condition made true right before the deadline is
// reported as Woken rather than TimedOut.
func (q *Queue) WaitUntil(ctx context.Context, pred func() bool, timeout time.Duration) Result {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		if pred() {
			return Woken
		}

		w := q.enqueue()
		q.lock.Unlock()

		select {
		case <-w.ch:
			q.lock.Lock()
		case <-ctx.Done():
			q.leave(w)
			q.lock.Lock()
			return Interrupted
		case <-timeoutCh:
			q.leave(w)
			q.lock.Lock()
			if pred() {
				return Woken
			}
			return TimedOut
		}
	}
}

// WakeOne resumes the oldest suspended waiter, if any. The woken goroutine
// re-checks its predicate; a wake is a hint, not a promise that the
// condition holds.
func (q *Queue) WakeOne() {
	q.mu.Lock()
	if len(q.waiters) == 0 {
		q.mu.Unlock()
		return
	}
	w := q.waiters[0]
	q.waiters = q.waiters[1:]
	q.mu.Unlock()
	close(w.ch)
}

// WakeAll resumes every suspended waiter.
func (q *Queue) WakeAll() {
	q.mu.Lock()
	waiters := q.waiters
	q.waiters = nil
	q.mu.Unlock()
	for _, w := range waiters {
		close(w.ch)
	}
}

func (q *Queue) enqueue() *waiter {
	w := &waiter{ch: make(chan struct{})}
	q.mu.Lock()
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()
	return w
}

// leave removes w after a cancellation or timeout. If a waker already
// popped w, that wake would otherwise be lost with w gone, so it is
// passed on to the next waiter.
func (q *Queue) leave(w *waiter) {
	q.mu.Lock()
	for i, cand := range q.waiters {
		if cand == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			q.mu.Unlock()
			return
		}
	}
	q.mu.Unlock()
	q.WakeOne()
}
