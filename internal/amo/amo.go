// Package amo implements the client side of ishmem's atomic memory
// operations: fetch, set, inc, add, and/or/xor, swap, and
// compare-and-swap. Like internal/rma, every op is generic over its
// scalar element type. A blocking op against a mappable peer applies
// the atomic directly through the peer-mapped heap; everything else
// posts a Request to the caller's ring for the host proxy to service.
package amo

import (
	"fmt"
	"math"

	"github.com/ishmem-go/ishmem/internal/ring"
	"github.com/ishmem-go/ishmem/internal/rma"
	"github.com/ishmem-go/ishmem/internal/wire"
)

// Engine aliases rma.Engine: the two families share one PE's pair of
// transfer resources (ring for the proxy path, heap for the fast path).
type Engine = rma.Engine

// Fetch atomically reads dst on destPE.
func Fetch[T rma.Number](e Engine, destPE int, dst uintptr) (T, error) {
	return call[T](e, wire.OpAmoFetch, destPE, dst, 0, 0)
}

// Set atomically writes value to dst on destPE.
func Set[T rma.Number](e Engine, destPE int, dst uintptr, value T) error {
	_, err := call[T](e, wire.OpAmoSet, destPE, dst, toBits(value), 0)
	return err
}

// Inc atomically increments dst on destPE by one.
func Inc[T rma.Number](e Engine, destPE int, dst uintptr) error {
	_, err := call[T](e, wire.OpAmoInc, destPE, dst, 0, 0)
	return err
}

// FetchInc atomically increments dst and returns its prior value.
func FetchInc[T rma.Number](e Engine, destPE int, dst uintptr) (T, error) {
	return call[T](e, wire.OpAmoFetchInc, destPE, dst, 0, 0)
}

// Add atomically adds value to dst on destPE.
func Add[T rma.Number](e Engine, destPE int, dst uintptr, value T) error {
	_, err := call[T](e, wire.OpAmoAdd, destPE, dst, toBits(value), 0)
	return err
}

// FetchAdd atomically adds value to dst and returns its prior value.
func FetchAdd[T rma.Number](e Engine, destPE int, dst uintptr, value T) (T, error) {
	return call[T](e, wire.OpAmoFetchAdd, destPE, dst, toBits(value), 0)
}

// And, Or, Xor atomically combine value into dst (integer types only;
// the loopback plugin's reduceBuffers/AMO handlers leave float
// behavior to the caller to avoid).
func And[T rma.Number](e Engine, destPE int, dst uintptr, value T) error {
	_, err := call[T](e, wire.OpAmoAnd, destPE, dst, toBits(value), 0)
	return err
}

func FetchAnd[T rma.Number](e Engine, destPE int, dst uintptr, value T) (T, error) {
	return call[T](e, wire.OpAmoFetchAnd, destPE, dst, toBits(value), 0)
}

func Or[T rma.Number](e Engine, destPE int, dst uintptr, value T) error {
	_, err := call[T](e, wire.OpAmoOr, destPE, dst, toBits(value), 0)
	return err
}

func FetchOr[T rma.Number](e Engine, destPE int, dst uintptr, value T) (T, error) {
	return call[T](e, wire.OpAmoFetchOr, destPE, dst, toBits(value), 0)
}

func Xor[T rma.Number](e Engine, destPE int, dst uintptr, value T) error {
	_, err := call[T](e, wire.OpAmoXor, destPE, dst, toBits(value), 0)
	return err
}

func FetchXor[T rma.Number](e Engine, destPE int, dst uintptr, value T) (T, error) {
	return call[T](e, wire.OpAmoFetchXor, destPE, dst, toBits(value), 0)
}

// Swap atomically writes value to dst and returns its prior value.
func Swap[T rma.Number](e Engine, destPE int, dst uintptr, value T) (T, error) {
	return call[T](e, wire.OpAmoSwap, destPE, dst, toBits(value), 0)
}

// CompareSwap atomically writes newVal to dst iff dst currently holds
// compare, returning dst's prior value either way.
func CompareSwap[T rma.Number](e Engine, destPE int, dst uintptr, compare, newVal T) (T, error) {
	return call[T](e, wire.OpAmoCompareSwap, destPE, dst, toBits(newVal), toBits(compare))
}

// Handle identifies an outstanding nonblocking fetching AMO request; a
// caller later calls Wait to decode its typed return value, the same
// reserve-now/decode-later split internal/rma.Handle uses for nbi RMA.
type Handle[T rma.Number] struct {
	index    uint32
	sequence uint16
	op       wire.Op
	destPE   int
}

// Wait blocks until h's completion is published, decodes the typed
// return value, and frees the ring slot. A Handle must not be waited
// on twice.
func (h Handle[T]) Wait(r *ring.Ring) (T, error) {
	status, ret := r.Wait(h.index, h.sequence)
	r.Free(h.index)
	if status != 0 {
		var zero T
		return zero, fmt.Errorf("amo: op=%d pe=%d status=%d", h.op, h.destPE, status)
	}
	return fromBits[T](ret), nil
}

// FetchNbi, FetchIncNbi, FetchAddNbi, FetchAndNbi, FetchOrNbi,
// FetchXorNbi, SwapNbi, and CompareSwapNbi are the nonblocking forms
// of every fetching AMO: they post the same request the blocking form
// does but return immediately with a Handle instead of waiting.
func FetchNbi[T rma.Number](r *ring.Ring, destPE int, dst uintptr) Handle[T] {
	return callNbi[T](r, wire.OpAmoFetch, destPE, dst, 0, 0)
}

func FetchIncNbi[T rma.Number](r *ring.Ring, destPE int, dst uintptr) Handle[T] {
	return callNbi[T](r, wire.OpAmoFetchInc, destPE, dst, 0, 0)
}

func FetchAddNbi[T rma.Number](r *ring.Ring, destPE int, dst uintptr, value T) Handle[T] {
	return callNbi[T](r, wire.OpAmoFetchAdd, destPE, dst, toBits(value), 0)
}

func FetchAndNbi[T rma.Number](r *ring.Ring, destPE int, dst uintptr, value T) Handle[T] {
	return callNbi[T](r, wire.OpAmoFetchAnd, destPE, dst, toBits(value), 0)
}

func FetchOrNbi[T rma.Number](r *ring.Ring, destPE int, dst uintptr, value T) Handle[T] {
	return callNbi[T](r, wire.OpAmoFetchOr, destPE, dst, toBits(value), 0)
}

func FetchXorNbi[T rma.Number](r *ring.Ring, destPE int, dst uintptr, value T) Handle[T] {
	return callNbi[T](r, wire.OpAmoFetchXor, destPE, dst, toBits(value), 0)
}

func SwapNbi[T rma.Number](r *ring.Ring, destPE int, dst uintptr, value T) Handle[T] {
	return callNbi[T](r, wire.OpAmoSwap, destPE, dst, toBits(value), 0)
}

func CompareSwapNbi[T rma.Number](r *ring.Ring, destPE int, dst uintptr, compare, newVal T) Handle[T] {
	return callNbi[T](r, wire.OpAmoCompareSwap, destPE, dst, toBits(newVal), toBits(compare))
}

// call tries the intra-node fast path, then posts req and blocks for
// its completion, decoding the typed return value. compareBits rides
// in Nelems, the only Request field an AMO never otherwise uses (the
// compare-swap encoding shared with internal/runtime's loopback proxy
// handlers).
func call[T rma.Number](e Engine, op wire.Op, destPE int, dst uintptr, valueBits, compareBits uint64) (T, error) {
	if old, ok := tryFast(e, op, rma.TypeOf[T](), destPE, dst, valueBits, compareBits); ok {
		return fromBits[T](old), nil
	}
	h := callNbi[T](e.Ring, op, destPE, dst, valueBits, compareBits)
	return h.Wait(e.Ring)
}

// callNbi reserves a ring slot, publishes the request, and returns
// immediately with a Handle; call is callNbi followed by an
// unconditional Wait.
func callNbi[T rma.Number](r *ring.Ring, op wire.Op, destPE int, dst uintptr, valueBits, compareBits uint64) Handle[T] {
	index, seq := r.Reserve()
	r.Publish(index, seq, wire.Request{
		Op: op, Type: rma.TypeOf[T](), DestPE: int32(destPE),
		Dst: dst, BsizeOrValue: valueBits, Nelems: compareBits,
	})
	return Handle[T]{index: index, sequence: seq, op: op, destPE: destPE}
}

// toBits and fromBits mirror internal/rma's: every AMO operand and
// return value rides the wire as a 64-bit field regardless of T's
// native width.
func toBits[T rma.Number](v T) uint64 {
	switch x := any(v).(type) {
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint64:
		return x
	case int8:
		return uint64(x)
	case int16:
		return uint64(x)
	case int32:
		return uint64(x)
	case int64:
		return uint64(x)
	case float32:
		return uint64(math.Float32bits(x))
	case float64:
		return math.Float64bits(x)
	default:
		return 0
	}
}

func fromBits[T rma.Number](bits uint64) T {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return any(uint8(bits)).(T)
	case uint16:
		return any(uint16(bits)).(T)
	case uint32:
		return any(uint32(bits)).(T)
	case uint64:
		return any(bits).(T)
	case int8:
		return any(int8(bits)).(T)
	case int16:
		return any(int16(bits)).(T)
	case int32:
		return any(int32(bits)).(T)
	case int64:
		return any(int64(bits)).(T)
	case float32:
		return any(math.Float32frombits(uint32(bits))).(T)
	case float64:
		return any(math.Float64frombits(bits)).(T)
	default:
		return zero
	}
}
