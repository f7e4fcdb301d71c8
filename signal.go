package ishmem

import (
	"github.com/ishmem-go/ishmem/internal/rma"
	"github.com/ishmem-go/ishmem/internal/signal"
)

// SignalOp selects PutSignal's update semantics for the signal word.
type SignalOp = signal.SignalOp

const (
	SignalSet = signal.SignalOpSet
	SignalAdd = signal.SignalOpAdd
)

// Cmp is the comparison predicate WaitUntil/Test apply.
type Cmp = signal.Cmp

const (
	CmpEq = signal.CmpEq
	CmpNe = signal.CmpNe
	CmpGt = signal.CmpGt
	CmpGe = signal.CmpGe
	CmpLt = signal.CmpLt
	CmpLe = signal.CmpLe
)

// PutSignal performs a blocking put of nelems elements of T from src
// to dst on destPE, then applies op with signalVal to the signal word
// at sigAddr, atomically with respect to any other put_signal or
// signal_set/add targeting the same word.
func PutSignal[T rma.Number](inst *Instance, destPE int, dst, src uintptr, nelems uint64, sigAddr uintptr, signalVal uint64, op SignalOp) error {
	return wrapErr("PutSignal", signal.PutSignal[T](inst.Ring(), destPE, dst, src, nelems, sigAddr, signalVal, op))
}

// SignalSetVal atomically writes value to the signal word at dst on destPE.
func (inst *Instance) SignalSetVal(destPE int, dst uintptr, value uint64) error {
	return wrapErr("SignalSet", signal.SignalSet(inst.Ring(), destPE, dst, value))
}

// SignalAddVal atomically adds value to the signal word at dst on destPE.
func (inst *Instance) SignalAddVal(destPE int, dst uintptr, value uint64) error {
	return wrapErr("SignalAdd", signal.SignalAdd(inst.Ring(), destPE, dst, value))
}

// SignalFetch atomically reads this PE's own signal word at dst.
func (inst *Instance) SignalFetch(dst uintptr) (uint64, error) {
	v, err := signal.SignalFetch(inst.Ring(), dst)
	return v, wrapErr("SignalFetch", err)
}

// reader backs every wait/test predicate with the PE's own local heap
// read (ReadLocal never crosses the wire — signal words are always
// polled locally, whichever PE is waiting).
func (inst *Instance) reader() signal.Reader {
	return inst.plugin.ReadLocal
}

// WaitUntil blocks until cmp(value-at-addr, want) holds.
func (inst *Instance) WaitUntil(addr uintptr, cmp Cmp, want uint64) {
	signal.WaitUntil(inst.reader(), addr, cmp, want)
}

// SignalWaitUntil blocks until the signal word at sigAddr satisfies
// cmp against want, returning the value that satisfied it.
func (inst *Instance) SignalWaitUntil(sigAddr uintptr, cmp Cmp, want uint64) uint64 {
	signal.WaitUntil(inst.reader(), sigAddr, cmp, want)
	return inst.plugin.ReadLocal(sigAddr)
}

// Test is WaitUntil's non-blocking form: it polls once.
func (inst *Instance) Test(addr uintptr, cmp Cmp, want uint64) bool {
	return signal.Test(inst.reader(), addr, cmp, want)
}

// WaitUntilAny blocks until cmp(value, want) holds for at least one
// unmasked entry of addrs, returning that index. status may be nil to
// apply no mask, else status[i] != 0 excludes addrs[i] from
// consideration.
func (inst *Instance) WaitUntilAny(addrs []uintptr, status []int, cmp Cmp, want uint64) int {
	return signal.WaitUntilAny(inst.reader(), addrs, status, cmp, want)
}

// TestAny polls addrs once, returning the first matching unmasked index.
func (inst *Instance) TestAny(addrs []uintptr, status []int, cmp Cmp, want uint64) (int, bool) {
	return signal.TestAny(inst.reader(), addrs, status, cmp, want)
}

// WaitUntilAll blocks until cmp(value, want) holds for every unmasked addr.
func (inst *Instance) WaitUntilAll(addrs []uintptr, status []int, cmp Cmp, want uint64) {
	signal.WaitUntilAll(inst.reader(), addrs, status, cmp, want)
}

// TestAll polls addrs once, reporting whether every unmasked one matches.
func (inst *Instance) TestAll(addrs []uintptr, status []int, cmp Cmp, want uint64) bool {
	return signal.TestAll(inst.reader(), addrs, status, cmp, want)
}

// WaitUntilSome blocks until at least one unmasked addr matches,
// returning the indices of every unmasked addr that matched at that
// moment.
func (inst *Instance) WaitUntilSome(addrs []uintptr, status []int, cmp Cmp, want uint64) []int {
	return signal.WaitUntilSome(inst.reader(), addrs, status, cmp, want)
}

// TestSome polls addrs once, returning the unmasked indices that matched.
func (inst *Instance) TestSome(addrs []uintptr, status []int, cmp Cmp, want uint64) []int {
	return signal.TestSome(inst.reader(), addrs, status, cmp, want)
}
