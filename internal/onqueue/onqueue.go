//go:build linux

// Package onqueue implements the `*_on_queue` adapter: operations
// submitted against an explicit device queue instead of the implicit
// per-thread one. The original targets a real GPU command queue; here
// an io_uring instance (via github.com/pawelgaczynski/giouring) stands
// in for that queue's FIFO ordering guarantee. Every `_on_queue` call
// first issues its RMA/AMO normally through internal/rma or
// internal/amo, then submits a no-op SQE and waits for its CQE —
// establishing the same "happens after everything previously
// submitted to this queue" ordering a real
// on-queue op gets from hardware queue semantics.
package onqueue

import (
	"fmt"
	"sync"

	"github.com/pawelgaczynski/giouring"
)

// Queue wraps one io_uring instance used purely as an ordering fence
// for the PE's `_on_queue` operations.
type Queue struct {
	mu      sync.Mutex
	ring    *giouring.Ring
	nextTag uint64
}

// New creates a Queue backed by a ring with the given submission queue
// depth (ISHMEM_RING_SIZE-scale, not the symmetric-heap request ring).
func New(entries uint32) (*Queue, error) {
	ring, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("onqueue: giouring.CreateRing: %w", err)
	}
	return &Queue{ring: ring}, nil
}

// Close tears down the queue's io_uring instance.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ring != nil {
		q.ring.QueueExit()
		q.ring = nil
	}
	return nil
}

// Fence submits a no-op SQE and blocks until its CQE lands, giving the
// caller a synchronization point against every SQE this Queue
// previously submitted (the `_on_queue` ordering guarantee).
// RMA/AMO callers run their actual transfer through the normal request
// ring first, then call Fence to order it within this device queue.
func (q *Queue) Fence() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	sqe := q.ring.GetSQE()
	if sqe == nil {
		if _, err := q.ring.Submit(); err != nil {
			return fmt.Errorf("onqueue: submit to drain SQ: %w", err)
		}
		sqe = q.ring.GetSQE()
		if sqe == nil {
			return fmt.Errorf("onqueue: submission queue full")
		}
	}
	tag := q.nextTag
	q.nextTag++
	sqe.PrepareNop()
	sqe.UserData = tag

	if _, err := q.ring.SubmitAndWait(1); err != nil {
		return fmt.Errorf("onqueue: submit_and_wait: %w", err)
	}

	cqe, err := q.ring.WaitCQE()
	if err != nil {
		return fmt.Errorf("onqueue: wait_cqe: %w", err)
	}
	q.ring.CQESeen(cqe)
	return nil
}
