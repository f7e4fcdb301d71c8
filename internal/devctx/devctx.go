// Package devctx unifies the host-mainline and simulated-device
// execution contexts every public ishmem operation runs under. A
// Context is either the single implicit host thread, or one lane of a
// simulated device work-group — a pool of goroutines standing in for
// GPU work-items, coordinated with golang.org/x/sync/errgroup the way
// a kernel launch coordinates its threads.
package devctx

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Context identifies one execution lane issuing ishmem calls, plus (for
// a device work-group) its position within the group.
type Context struct {
	lane       int
	groupSize  int
	group      *workGroup
}

// Host returns the implicit single-lane host context every call uses
// outside of an explicit work-group.
func Host() Context {
	return Context{lane: 0, groupSize: 1}
}

// Lane returns this context's 0-indexed position in its work-group (0
// for the host context).
func (c Context) Lane() int { return c.lane }

// GroupSize returns the number of lanes sharing this context's
// work-group (1 for the host context).
func (c Context) GroupSize() int { return c.groupSize }

// IsDevice reports whether c is a simulated-device lane rather than
// the host context.
func (c Context) IsDevice() bool { return c.group != nil }

// workGroup coordinates a simulated device work-group's lanes: a
// sense-reversing barrier so every device-callable team op (the
// ishmem_<op>_work_group family) can assume every lane reached the
// same point before it returns.
type workGroup struct {
	mu         sync.Mutex
	cond       *sync.Cond
	size       int
	generation uint64
	arrived    int
	slot       uint64 // lane 0's Broadcast payload
}

func newWorkGroup(size int) *workGroup {
	wg := &workGroup{size: size}
	wg.cond = sync.NewCond(&wg.mu)
	return wg
}

// WorkGroup runs fn once per lane of a simulated size-n device
// work-group, in its own goroutine, analogous to launching n GPU
// work-items that each call the same device function. It blocks until
// every lane returns (or one returns an error, in which case the
// others still run to completion — errgroup's default semantics are
// adapted to return the first error rather than cancel siblings, since
// a real work-group has no cooperative cancellation).
func WorkGroup(n int, fn func(c Context) error) error {
	wg := newWorkGroup(n)
	var g errgroup.Group
	for lane := 0; lane < n; lane++ {
		lane := lane
		g.Go(func() error {
			return fn(Context{lane: lane, groupSize: n, group: wg})
		})
	}
	return g.Wait()
}

// Barrier blocks until every lane of c's work-group has called Barrier
// (the device-side team_sync primitive's local analogue). It is a
// no-op for the host context, which has no siblings to wait on.
func (c Context) Barrier(ctx context.Context) error {
	if !c.IsDevice() {
		return nil
	}
	return c.group.barrierAt(ctx, c.lane)
}

// barrierAt blocks the calling lane until every lane in the group has
// arrived at the same generation, then releases them all together.
func (wg *workGroup) barrierAt(ctx context.Context, lane int) error {
	wg.mu.Lock()
	defer wg.mu.Unlock()

	gen := wg.generation
	wg.arrived++
	if wg.arrived == wg.size {
		wg.arrived = 0
		wg.generation++
		wg.cond.Broadcast()
		return nil
	}
	for wg.generation == gen {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wg.cond.Wait()
	}
	return nil
}

// Broadcast shares lane 0's v with every lane of c's work-group: the
// group-broadcast primitive device-callable predicates use to make the
// leader's result authoritative for the whole group. Non-leader lanes'
// v arguments are ignored. For the host context it returns v directly.
func (c Context) Broadcast(ctx context.Context, v uint64) (uint64, error) {
	if !c.IsDevice() {
		return v, nil
	}
	wg := c.group
	if c.lane == 0 {
		wg.mu.Lock()
		wg.slot = v
		wg.mu.Unlock()
	}
	if err := wg.barrierAt(ctx, c.lane); err != nil {
		return 0, err
	}
	wg.mu.Lock()
	out := wg.slot
	wg.mu.Unlock()
	// second barrier keeps a fast lane's next Broadcast from
	// overwriting slot before a slow lane has read this one
	if err := wg.barrierAt(ctx, c.lane); err != nil {
		return 0, err
	}
	return out, nil
}

// CalculateOffset partitions total elements evenly across the calling
// context's work-group, returning the half-open [start, end) range
// lane c.Lane() owns, for device-callable collectives and RMA that
// split their work across a work-group.
func (c Context) CalculateOffset(total uint64) (start, end uint64) {
	n := uint64(c.GroupSize())
	if n <= 1 {
		return 0, total
	}
	per := total / n
	rem := total % n
	lane := uint64(c.Lane())
	start = lane*per + min(lane, rem)
	end = start + per
	if lane < rem {
		end++
	}
	return start, end
}

func min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
