package ishmem

import (
	"github.com/ishmem-go/ishmem/internal/collective"
	"github.com/ishmem-go/ishmem/internal/rma"
)

// ReduceOp selects one of the typed, commutative-associative
// reductions Reduce/InclusiveScan/ExclusiveScan support.
type ReduceOp = collective.ReduceOp

const (
	ReduceAnd  = collective.And
	ReduceOr   = collective.Or
	ReduceXor  = collective.Xor
	ReduceMin  = collective.Min
	ReduceMax  = collective.Max
	ReduceSum  = collective.Sum
	ReduceProd = collective.Prod
)

// BarrierAll synchronizes every PE in the job. Equivalent to Barrier,
// kept for naming parity with the team-scoped collectives below.
func (inst *Instance) BarrierAll() error {
	return wrapErr("BarrierAll", collective.BarrierAll(inst.plugin))
}

// SyncAll synchronizes every PE in the job without the memory-ordering
// guarantee Barrier carries.
func (inst *Instance) SyncAll() error {
	return wrapErr("SyncAll", collective.SyncAll(inst.plugin))
}

// Sync synchronizes t's members.
func (inst *Instance) Sync(t Team) error {
	return wrapErr("Sync", collective.Sync(inst.plugin, t))
}

// TeamSync is Sync under the device-callable, team-scoped name.
func (inst *Instance) TeamSync(t Team) error {
	return wrapErr("TeamSync", collective.TeamSync(inst.plugin, t))
}

// Broadcast copies nelems elements of T from root's src to every
// other member of t's dst.
func Broadcast[T rma.Number](inst *Instance, t Team, dst, src uintptr, nelems uint64, root int) error {
	return wrapErr("Broadcast", collective.Broadcast[T](inst.plugin, t, dst, src, nelems, root))
}

// Fcollect concatenates every member's nelemsPerPE-element chunk into
// dst, in rank order, on every member.
func Fcollect[T rma.Number](inst *Instance, t Team, dst, src uintptr, nelemsPerPE uint64) error {
	return wrapErr("Fcollect", collective.Fcollect[T](inst.plugin, t, dst, src, nelemsPerPE))
}

// Collect is Fcollect's variable-length-per-PE sibling.
func Collect[T rma.Number](inst *Instance, t Team, dst, src uintptr, nelems uint64) error {
	return wrapErr("Collect", collective.Collect[T](inst.plugin, t, dst, src, nelems))
}

// Alltoall exchanges nelemsPerPE-element chunks between every pair of
// t's members.
func Alltoall[T rma.Number](inst *Instance, t Team, dst, src uintptr, nelemsPerPE uint64) error {
	return wrapErr("Alltoall", collective.Alltoall[T](inst.plugin, t, dst, src, nelemsPerPE))
}

// Reduce element-wise reduces nelems elements of T contributed by
// every member of t into dst.
func Reduce[T rma.Number](inst *Instance, t Team, op ReduceOp, dst, src uintptr, nelems uint64) error {
	return wrapErr("Reduce", collective.Reduce[T](inst.plugin, t, op, dst, src, nelems))
}

// InclusiveScan and ExclusiveScan compute a running reduction over t's
// rank order.
func InclusiveScan[T rma.Number](inst *Instance, t Team, op ReduceOp, dst, src uintptr, nelems uint64) error {
	return wrapErr("InclusiveScan", collective.InclusiveScan[T](inst.plugin, t, op, dst, src, nelems))
}

func ExclusiveScan[T rma.Number](inst *Instance, t Team, op ReduceOp, dst, src uintptr, nelems uint64) error {
	return wrapErr("ExclusiveScan", collective.ExclusiveScan[T](inst.plugin, t, op, dst, src, nelems))
}
