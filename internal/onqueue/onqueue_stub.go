//go:build !linux

package onqueue

import "fmt"

// Queue is the placeholder for platforms without io_uring: it holds no
// state, New never returns one, and Close and Fence are no-ops.
type Queue struct{}

// New always fails on non-Linux platforms: an io_uring-backed feature
// has no portable equivalent there.
func New(entries uint32) (*Queue, error) {
	return nil, fmt.Errorf("onqueue: not supported on this platform")
}

func (q *Queue) Close() error { return nil }

func (q *Queue) Fence() error { return nil }
