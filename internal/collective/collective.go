// Package collective implements the team-wide collectives — barrier,
// sync, broadcast, alltoall, collect/fcollect, typed reductions, and
// scan — as thin, generic wrappers over a
// runtime.Plugin, the way internal/rma and internal/amo wrap a ring for
// point-to-point operations. Every call here blocks until the whole
// team has participated.
package collective

import (
	"fmt"

	"github.com/ishmem-go/ishmem/internal/constants"
	"github.com/ishmem-go/ishmem/internal/rma"
	"github.com/ishmem-go/ishmem/internal/runtime"
	"github.com/ishmem-go/ishmem/internal/team"
	"github.com/ishmem-go/ishmem/internal/wire"
)

// BarrierAll synchronizes every PE in the job.
func BarrierAll(p runtime.Plugin) error { return p.Barrier() }

// SyncAll is BarrierAll restricted to WORLD with no data dependency
// implied beyond ordering. Sync and barrier differ only in
// memory-visibility guarantees the loopback runtime already provides
// via its shared address space, so both reduce to the same rendezvous
// here.
func SyncAll(p runtime.Plugin) error { return p.Sync(team.World.ID) }

// Sync synchronizes t's members.
func Sync(p runtime.Plugin, t team.Team) error { return p.Sync(t.ID) }

// TeamSync is Sync under its device-callable, team-scoped name;
// identical semantics under loopback.
func TeamSync(p runtime.Plugin, t team.Team) error { return p.TeamSync(t.ID) }

// Broadcast copies nelems elements of T from root's src to every other
// team member's dst.
func Broadcast[T rma.Number](p runtime.Plugin, t team.Team, dst, src uintptr, nelems uint64, root int) error {
	esz := uint64(elemSize[T]())
	if err := p.Broadcast(t.ID, dst, src, nelems*esz, root); err != nil {
		return fmt.Errorf("collective: broadcast: %w", err)
	}
	return nil
}

// Fcollect concatenates every member's nelemsPerPE-element chunk into
// dst, in rank order, on every member.
func Fcollect[T rma.Number](p runtime.Plugin, t team.Team, dst, src uintptr, nelemsPerPE uint64) error {
	esz := uint64(elemSize[T]())
	if err := p.Fcollect(t.ID, dst, src, nelemsPerPE*esz); err != nil {
		return fmt.Errorf("collective: fcollect: %w", err)
	}
	return nil
}

// Collect is Fcollect's variable-length-per-PE sibling: nelems may
// differ between callers.
func Collect[T rma.Number](p runtime.Plugin, t team.Team, dst, src uintptr, nelems uint64) error {
	esz := uint64(elemSize[T]())
	if err := p.Collect(t.ID, dst, src, nelems*esz); err != nil {
		return fmt.Errorf("collective: collect: %w", err)
	}
	return nil
}

// Alltoall exchanges nelemsPerPE-element chunks between every pair of
// team members.
func Alltoall[T rma.Number](p runtime.Plugin, t team.Team, dst, src uintptr, nelemsPerPE uint64) error {
	esz := uint64(elemSize[T]())
	if err := p.Alltoall(t.ID, dst, src, nelemsPerPE*esz); err != nil {
		return fmt.Errorf("collective: alltoall: %w", err)
	}
	return nil
}

// ReduceOp selects one of the typed, commutative-associative
// reductions the library supports.
type ReduceOp int

const (
	And ReduceOp = iota
	Or
	Xor
	Min
	Max
	Sum
	Prod
)

func (op ReduceOp) wireOp() wire.Op {
	switch op {
	case And:
		return wire.OpAndReduce
	case Or:
		return wire.OpOrReduce
	case Xor:
		return wire.OpXorReduce
	case Min:
		return wire.OpMinReduce
	case Max:
		return wire.OpMaxReduce
	case Sum:
		return wire.OpSumReduce
	case Prod:
		return wire.OpProdReduce
	default:
		return wire.OpSumReduce
	}
}

// Reduce element-wise reduces nelems elements of T contributed by
// every team member into dst, chunking the transfer to
// constants.ReduceBufferSize at a time for a buffer larger than that
// bound.
func Reduce[T rma.Number](p runtime.Plugin, t team.Team, op ReduceOp, dst, src uintptr, nelems uint64) error {
	esz := uint64(elemSize[T]())
	chunkElems := constants.ReduceBufferSize / esz
	if chunkElems == 0 {
		chunkElems = 1
	}
	for off := uint64(0); off < nelems; off += chunkElems {
		n := chunkElems
		if off+n > nelems {
			n = nelems - off
		}
		if err := p.Reduce(t.ID, op.wireOp(), rma.TypeOf[T](), dst+uintptr(off*esz), src+uintptr(off*esz), n); err != nil {
			return fmt.Errorf("collective: reduce: %w", err)
		}
	}
	return nil
}

// InclusiveScan and ExclusiveScan compute a running reduction over
// team-local rank order. Unlike the other
// collectives, scan is never given a device fast path: each rank's
// result depends on every predecessor's contribution, so it always
// proxies through the plugin.
func InclusiveScan[T rma.Number](p runtime.Plugin, t team.Team, op ReduceOp, dst, src uintptr, nelems uint64) error {
	return p.Scan(t.ID, op.wireOp(), rma.TypeOf[T](), dst, src, nelems, true)
}

func ExclusiveScan[T rma.Number](p runtime.Plugin, t team.Team, op ReduceOp, dst, src uintptr, nelems uint64) error {
	return p.Scan(t.ID, op.wireOp(), rma.TypeOf[T](), dst, src, nelems, false)
}

func elemSize[T rma.Number]() int { return wire.TypeSize(rma.TypeOf[T]()) }
