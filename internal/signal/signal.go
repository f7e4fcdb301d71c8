// Package signal implements put-with-notify RMA and the wait/test
// predicate family: put_signal
// moves data and then atomically updates a signal word in one
// request; signal_set/add/fetch manipulate a signal word directly; and
// wait_until/test (plus their `_all`/`_any`/`_some` array forms) block
// or poll a comparison against one or more symmetric addresses.
package signal

import (
	"fmt"
	"time"

	"github.com/ishmem-go/ishmem/internal/constants"
	"github.com/ishmem-go/ishmem/internal/ring"
	"github.com/ishmem-go/ishmem/internal/rma"
	"github.com/ishmem-go/ishmem/internal/wire"
)

// SignalOp selects put_signal's update semantics for the signal word.
type SignalOp int

const (
	SignalOpSet SignalOp = iota
	SignalOpAdd
)

// PutSignal performs a blocking put of nelems elements of T from src
// to dst on destPE, then applies op with signalVal to the signal word
// at sigAddr (also on destPE), atomically with respect to any other
// put_signal or signal_set/add targeting the same word.
func PutSignal[T rma.Number](r *ring.Ring, destPE int, dst, src uintptr, nelems uint64, sigAddr uintptr, signalVal uint64, op SignalOp) error {
	index, seq := r.Reserve()
	req := wire.Request{
		Op: wire.OpPutSignal, Type: rma.TypeOf[T](), DestPE: int32(destPE),
		Dst: dst, Src: src, Nelems: nelems,
		// Root doubles as the signal op selector and SrcStride carries
		// sigAddr: put_signal's wire encoding packs the signal update
		// alongside the copy since both must land atomically together.
		Root: int32(op), SrcStride: int64(sigAddr), BsizeOrValue: signalVal,
	}
	r.Publish(index, seq, req)
	status, _ := r.Wait(index, seq)
	r.Free(index)
	if status != 0 {
		return errStatus("put_signal", destPE, status)
	}
	return nil
}

// SignalSet atomically writes value to the signal word at dst on destPE.
func SignalSet(r *ring.Ring, destPE int, dst uintptr, value uint64) error {
	return signalOp(r, wire.OpSignalSet, destPE, dst, value)
}

// SignalAdd atomically adds value to the signal word at dst on destPE.
func SignalAdd(r *ring.Ring, destPE int, dst uintptr, value uint64) error {
	return signalOp(r, wire.OpSignalAdd, destPE, dst, value)
}

func signalOp(r *ring.Ring, op wire.Op, destPE int, dst uintptr, value uint64) error {
	index, seq := r.Reserve()
	r.Publish(index, seq, wire.Request{Op: op, Type: wire.TypeUint64, DestPE: int32(destPE), Dst: dst, BsizeOrValue: value})
	status, _ := r.Wait(index, seq)
	r.Free(index)
	if status != 0 {
		return errStatus("signal", destPE, status)
	}
	return nil
}

// SignalFetch atomically reads the local signal word at dst (signal
// words, unlike RMA targets, are always read locally; signal_fetch
// never crosses the wire).
func SignalFetch(r *ring.Ring, dst uintptr) (uint64, error) {
	index, seq := r.Reserve()
	r.Publish(index, seq, wire.Request{Op: wire.OpSignalFetch, Type: wire.TypeUint64, Dst: dst})
	status, ret := r.Wait(index, seq)
	r.Free(index)
	if status != 0 {
		return 0, errStatus("signal_fetch", -1, status)
	}
	return ret, nil
}

// Cmp is the comparison predicate wait_until/test apply.
type Cmp int

const (
	CmpEq Cmp = iota
	CmpNe
	CmpGt
	CmpGe
	CmpLt
	CmpLe
)

func (c Cmp) eval(have, want uint64) bool {
	switch c {
	case CmpEq:
		return have == want
	case CmpNe:
		return have != want
	case CmpGt:
		return have > want
	case CmpGe:
		return have >= want
	case CmpLt:
		return have < want
	case CmpLe:
		return have <= want
	default:
		return false
	}
}

// Reader fetches the current value at a local symmetric address; the
// library's root package supplies one backed by the PE's own heap so
// this package stays independent of internal/heap.
type Reader func(addr uintptr) uint64

// WaitUntil blocks until cmp(value-at-addr, want) holds, re-checking
// every constants.WaitUntilPollInterval since Go has no portable futex
// wait on an arbitrary address and no rendering of a hardware
// monitor/mwait instruction; poll instead.
func WaitUntil(read Reader, addr uintptr, cmp Cmp, want uint64) {
	for !cmp.eval(read(addr), want) {
		time.Sleep(constants.WaitUntilPollInterval)
	}
}

// Test is WaitUntil's non-blocking form: it polls once.
func Test(read Reader, addr uintptr, cmp Cmp, want uint64) bool {
	return cmp.eval(read(addr), want)
}

// masked reports whether status marks addrs[i] as excluded from the
// predicate: a nil status applies no mask (every entry participates),
// matching the array forms' optional status[] parameter.
func masked(status []int, i int) bool {
	return status != nil && status[i] != 0
}

// WaitUntilAny blocks until cmp(value, want) holds for at least one
// unmasked entry of addrs, returning that index.
func WaitUntilAny(read Reader, addrs []uintptr, status []int, cmp Cmp, want uint64) int {
	for {
		if i, ok := TestAny(read, addrs, status, cmp, want); ok {
			return i
		}
		time.Sleep(constants.WaitUntilPollInterval)
	}
}

// TestAny polls addrs once, returning the first matching unmasked
// index, or SIZE_MAX-equivalent (-1) and false if none match.
func TestAny(read Reader, addrs []uintptr, status []int, cmp Cmp, want uint64) (int, bool) {
	for i, a := range addrs {
		if masked(status, i) {
			continue
		}
		if cmp.eval(read(a), want) {
			return i, true
		}
	}
	return -1, false
}

// WaitUntilAll blocks until cmp(value, want) holds for every unmasked
// addr.
func WaitUntilAll(read Reader, addrs []uintptr, status []int, cmp Cmp, want uint64) {
	for !TestAll(read, addrs, status, cmp, want) {
		time.Sleep(constants.WaitUntilPollInterval)
	}
}

// TestAll polls addrs once, reporting whether every unmasked entry
// matches (vacuously true if every entry is masked).
func TestAll(read Reader, addrs []uintptr, status []int, cmp Cmp, want uint64) bool {
	for i, a := range addrs {
		if masked(status, i) {
			continue
		}
		if !cmp.eval(read(a), want) {
			return false
		}
	}
	return true
}

// WaitUntilSome blocks until at least one unmasked addr matches,
// returning the indices of every unmasked addr that matched at that
// moment.
func WaitUntilSome(read Reader, addrs []uintptr, status []int, cmp Cmp, want uint64) []int {
	for {
		if idx := TestSome(read, addrs, status, cmp, want); len(idx) > 0 {
			return idx
		}
		time.Sleep(constants.WaitUntilPollInterval)
	}
}

// TestSome polls addrs once, returning the unmasked indices that
// matched. A fully-masked status leaves every entry out of
// consideration, so it returns no indices.
func TestSome(read Reader, addrs []uintptr, status []int, cmp Cmp, want uint64) []int {
	var idx []int
	for i, a := range addrs {
		if masked(status, i) {
			continue
		}
		if cmp.eval(read(a), want) {
			idx = append(idx, i)
		}
	}
	return idx
}

func errStatus(op string, destPE int, status int32) error {
	return fmt.Errorf("signal: %s pe=%d status=%d", op, destPE, status)
}
