package ishmem

import (
	"context"

	"github.com/ishmem-go/ishmem/internal/collective"
	"github.com/ishmem-go/ishmem/internal/devctx"
	"github.com/ishmem-go/ishmem/internal/rma"
	"github.com/ishmem-go/ishmem/internal/wire"
)

// WorkGroup runs fn once per lane of a simulated n-lane device
// work-group, the host-side stand-in for launching n GPU work-items
// that each call one of the *_work_group entry points below. Every
// *_work_group function expects to run inside (or be the sole lane of)
// such a group: devctx.Host() is the degenerate, single-lane group the
// non-"_work_group" entry points above implicitly use.
func WorkGroup(n int, fn func(c devctx.Context) error) error {
	return devctx.WorkGroup(n, fn)
}

// elemSize returns T's wire size in bytes, for splitting a work-group
// transfer's byte range the same way the element range is split.
func elemSize[T rma.Number]() uintptr { return uintptr(wire.TypeSize(rma.TypeOf[T]())) }

// PutWorkGroup is Put's device-callable work-group form: c's lanes
// cooperatively partition nelems across themselves (devctx's analogue
// of work_item_calculate_offset) and each issues its own shard,
// bracketed by group barriers so every lane's source is visible before
// the transfer starts and every lane's destination write is visible
// before any lane returns.
func PutWorkGroup[T rma.Number](inst *Instance, c devctx.Context, destPE int, dst, src uintptr, nelems uint64) error {
	return doRMAWorkGroup[T](inst, c, destPE, dst, src, nelems, rma.Put[T])
}

// GetWorkGroup is Get's work-group form.
func GetWorkGroup[T rma.Number](inst *Instance, c devctx.Context, destPE int, dst, src uintptr, nelems uint64) error {
	return doRMAWorkGroup[T](inst, c, destPE, dst, src, nelems, rma.Get[T])
}

func doRMAWorkGroup[T rma.Number](inst *Instance, c devctx.Context, destPE int, dst, src uintptr, nelems uint64, shard func(rma.Engine, int, uintptr, uintptr, uint64) error) error {
	if err := c.Barrier(context.Background()); err != nil {
		return wrapErr("work_group", err)
	}
	start, end := c.CalculateOffset(nelems)
	esz := elemSize[T]()
	var opErr error
	if end > start {
		opErr = shard(inst.engine(), destPE, dst+uintptr(start)*esz, src+uintptr(start)*esz, end-start)
	}
	if err := c.Barrier(context.Background()); opErr == nil {
		opErr = err
	}
	return wrapErr("work_group", opErr)
}

// BroadcastWorkGroup and ReduceWorkGroup are broadcast/reduce's
// work-group forms: the collective itself already synchronizes every
// team member, so the group only needs to agree that
// every lane has reached the call before the (single, lane-0-owned)
// collective runs, and again before any lane returns — the same
// bracket doRMAWorkGroup uses, just around a team collective instead
// of a point-to-point transfer.
func BroadcastWorkGroup[T rma.Number](inst *Instance, c devctx.Context, t Team, dst, src uintptr, nelems uint64, root int) error {
	if err := c.Barrier(context.Background()); err != nil {
		return wrapErr("BroadcastWorkGroup", err)
	}
	var opErr error
	if c.Lane() == 0 {
		opErr = collective.Broadcast[T](inst.Plugin(), t, dst, src, nelems, root)
	}
	if err := c.Barrier(context.Background()); opErr == nil {
		opErr = err
	}
	return wrapErr("BroadcastWorkGroup", opErr)
}

func ReduceWorkGroup[T rma.Number](inst *Instance, c devctx.Context, t Team, op ReduceOp, dst, src uintptr, nelems uint64) error {
	if err := c.Barrier(context.Background()); err != nil {
		return wrapErr("ReduceWorkGroup", err)
	}
	var opErr error
	if c.Lane() == 0 {
		opErr = collective.Reduce[T](inst.Plugin(), t, op, dst, src, nelems)
	}
	if err := c.Barrier(context.Background()); opErr == nil {
		opErr = err
	}
	return wrapErr("ReduceWorkGroup", opErr)
}

// WaitUntilWorkGroup is WaitUntil's work-group form: the group leader
// spins on the predicate while the other lanes park at the exit
// barrier, so every lane returns only after the predicate holds.
func (inst *Instance) WaitUntilWorkGroup(c devctx.Context, addr uintptr, cmp Cmp, want uint64) error {
	if c.Lane() == 0 {
		inst.WaitUntil(addr, cmp, want)
	}
	return wrapErr("WaitUntilWorkGroup", c.Barrier(context.Background()))
}

// TestWorkGroup is Test's work-group form: the leader evaluates the
// predicate once and its result is broadcast to every lane, so the
// whole group observes one consistent answer.
func (inst *Instance) TestWorkGroup(c devctx.Context, addr uintptr, cmp Cmp, want uint64) (bool, error) {
	var res uint64
	if c.Lane() == 0 && inst.Test(addr, cmp, want) {
		res = 1
	}
	out, err := c.Broadcast(context.Background(), res)
	if err != nil {
		return false, wrapErr("TestWorkGroup", err)
	}
	return out != 0, nil
}
