// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pdiddy/collabmatch/pkg/types"
)

// PushResult tells the producer what Push did with a ref.
type PushResult int

const (
	// Added means the ref was appended to the pending list.
	Added PushResult = iota
	// Coalesced means the ref was already pending.
	Coalesced
	// Deferred means the ref is being processed; it is requeued once the
	// current run finishes.
	Deferred
)

// Queue is a bounded FIFO of entity refs that holds each ref at most once.
// A ref is in at most one of three states: pending, running, or idle.
// Events for a pending ref coalesce and events for a running ref mark it
// dirty, so an entity is never processed by two workers at once and rapid
// edits do not multiply work. Neither case blocks; only adding a new ref to
// a full queue does.
type Queue struct {
	mu        sync.Mutex
	capacity  int
	pending   []types.EntityRef
	queued    map[types.EntityRef]bool
	running   map[types.EntityRef]bool
	dirty     map[types.EntityRef]bool
	cancelled map[types.EntityRef]bool
	delayed   int
	closed    bool

	// changed is closed and replaced on every state change.
	changed chan struct{}
}

// NewQueue returns a queue holding at most capacity pending refs.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		capacity:  capacity,
		queued:    make(map[types.EntityRef]bool),
		running:   make(map[types.EntityRef]bool),
		dirty:     make(map[types.EntityRef]bool),
		cancelled: make(map[types.EntityRef]bool),
		changed:   make(chan struct{}),
	}
}

// broadcast wakes every waiter. Callers hold q.mu.
func (q *Queue) broadcast() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// Push adds ref. When the queue is full and ref is neither pending nor
// running, Push blocks until space frees up, ctx is done, or the queue is
// closed.
func (q *Queue) Push(ctx context.Context, ref types.EntityRef) (PushResult, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return 0, types.ErrQueueClosed
		}
		delete(q.cancelled, ref)
		switch {
		case q.queued[ref]:
			q.mu.Unlock()
			return Coalesced, nil
		case q.running[ref]:
			q.dirty[ref] = true
			q.mu.Unlock()
			return Deferred, nil
		case len(q.pending) < q.capacity:
			q.pending = append(q.pending, ref)
			q.queued[ref] = true
			q.broadcast()
			q.mu.Unlock()
			return Added, nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-wait:
		}
	}
}

// PushAfter pushes ref once d has elapsed. The pending push counts as
// outstanding work for WaitIdle.
func (q *Queue) PushAfter(ctx context.Context, ref types.EntityRef, d time.Duration) {
	q.mu.Lock()
	q.delayed++
	q.mu.Unlock()

	go func() {
		defer func() {
			q.mu.Lock()
			q.delayed--
			q.broadcast()
			q.mu.Unlock()
		}()

		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		_, _ = q.Push(ctx, ref)
	}()
}

// Pop removes the oldest pending ref and marks it running. It blocks until
// a ref is available, ctx is done, or the queue is closed and drained.
func (q *Queue) Pop(ctx context.Context) (types.EntityRef, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			ref := q.pending[0]
			q.pending = q.pending[1:]
			delete(q.queued, ref)
			q.running[ref] = true
			q.broadcast()
			q.mu.Unlock()
			return ref, nil
		}
		if q.closed {
			q.mu.Unlock()
			return types.EntityRef{}, types.ErrQueueClosed
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return types.EntityRef{}, ctx.Err()
		case <-wait:
		}
	}
}

// Done marks ref as no longer running. If events arrived during the run
// the ref is pending again and Done reports true. The requeue may exceed
// capacity so that a worker never blocks on its own queue.
func (q *Queue) Done(ref types.EntityRef) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.running, ref)
	delete(q.cancelled, ref)
	requeue := q.dirty[ref] && !q.closed
	delete(q.dirty, ref)
	if requeue {
		q.pending = append(q.pending, ref)
		q.queued[ref] = true
	}
	q.broadcast()
	return requeue
}

// Cancel drops a pending ref and any deferred rerun. A running ref is
// flagged so its worker discards the result.
func (q *Queue) Cancel(ref types.EntityRef) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.queued[ref] {
		delete(q.queued, ref)
		for i, r := range q.pending {
			if r == ref {
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				break
			}
		}
	}
	delete(q.dirty, ref)
	if q.running[ref] {
		q.cancelled[ref] = true
	}
	q.broadcast()
}

// Cancelled reports whether ref was cancelled while running.
func (q *Queue) Cancelled(ref types.EntityRef) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelled[ref]
}

// Len returns the number of pending refs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Running returns the number of refs being processed.
func (q *Queue) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running)
}

// WaitIdle blocks until nothing is pending, running or scheduled for retry.
func (q *Queue) WaitIdle(ctx context.Context) error {
	for {
		q.mu.Lock()
		idle := len(q.pending) == 0 && len(q.running) == 0 && q.delayed == 0
		wait := q.changed
		q.mu.Unlock()
		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Close stops accepting refs and wakes blocked callers. Pending refs can
// still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.broadcast()
	}
}
