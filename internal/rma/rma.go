// Package rma implements the point-to-point RMA family (put/get and
// their nbi, strided (i-prefixed), bulk-strided (ib-prefixed), and
// single-element (p/g) forms), generic over the scalar element type
// rather than expanded one function per (op, type) pair.
// A blocking call against a mappable peer below the size cutover moves
// the bytes directly through the peer-mapped heap; otherwise it posts
// a Request to the caller's ring and waits for the matching
// Completion. nbi forms always post, returning a Handle the caller can
// Quiet later.
package rma

import (
	"encoding/binary"
	"fmt"

	"github.com/ishmem-go/ishmem/internal/constants"
	"github.com/ishmem-go/ishmem/internal/heap"
	"github.com/ishmem-go/ishmem/internal/ring"
	"github.com/ishmem-go/ishmem/internal/wire"
)

// Engine carries one PE's transfer resources: the request ring for the
// proxy path and the symmetric heap whose peer mappings back the
// direct fast path. A nil Heap disables the fast path, leaving every
// operation on the ring.
type Engine struct {
	Ring *ring.Ring
	Heap *heap.Heap
}

// peer resolves dst's directly-dereferenceable address on destPE, or
// reports that destPE is not mappable and the operation must proxy.
func (e Engine) peer(addr uintptr, destPE int) (uintptr, bool) {
	if e.Heap == nil {
		return 0, false
	}
	return e.Heap.Ptr(addr, destPE)
}

// Number is the set of element types RMA and AMO operations accept.
type Number interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// TypeOf maps a Number type parameter to its wire.Type tag.
func TypeOf[T Number]() wire.Type {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return wire.TypeUint8
	case uint16:
		return wire.TypeUint16
	case uint32:
		return wire.TypeUint32
	case uint64:
		return wire.TypeUint64
	case int8:
		return wire.TypeInt8
	case int16:
		return wire.TypeInt16
	case int32:
		return wire.TypeInt32
	case int64:
		return wire.TypeInt64
	case float32:
		return wire.TypeFloat32
	case float64:
		return wire.TypeFloat64
	default:
		return wire.TypeNone
	}
}

// Handle identifies an outstanding nbi/ibput/ibget request a caller
// can later Quiet.
type Handle struct {
	index    uint32
	sequence uint16
}

func post(r *ring.Ring, req wire.Request) Handle {
	index, seq := r.Reserve()
	r.Publish(index, seq, req)
	return Handle{index: index, sequence: seq}
}

// Post reserves a ring slot, publishes req, and returns its Handle.
// The diagnostic ops (nop, timestamp, print, debug_test) share the RMA
// family's posting path through it.
func Post(r *ring.Ring, req wire.Request) Handle { return post(r, req) }

// Wait blocks until h's completion is published and returns its
// status and typed return value (for G/fetch-style ops). It frees the
// ring slot, so a Handle must not be waited on twice.
func (h Handle) Wait(r *ring.Ring) (status int32, ret uint64) {
	status, ret = r.Wait(h.index, h.sequence)
	r.Free(h.index)
	return status, ret
}

// Put performs a blocking contiguous put of nelems elements of T from
// src (local heap pointer) to dst on destPE. A mappable peer below the
// size cutover gets a direct store through the peer-mapped heap; above
// the cutover (where a DMA engine beats cross-link stores) or when the
// peer is not mappable, the transfer posts to the ring.
func Put[T Number](e Engine, destPE int, dst, src uintptr, nelems uint64) error {
	nbytes := nelems * uint64(wire.TypeSize(TypeOf[T]()))
	if p, ok := e.peer(dst, destPE); ok && UseFastPath(nbytes) {
		copy(heap.BytesAt(p, nbytes), heap.BytesAt(src, nbytes))
		return nil
	}
	return doBlockingCopy[T](e.Ring, wire.OpPut, destPE, dst, src, nelems)
}

// Get performs a blocking contiguous get, with the same fast-path
// selection as Put (the direct load mirror image).
func Get[T Number](e Engine, destPE int, dst, src uintptr, nelems uint64) error {
	nbytes := nelems * uint64(wire.TypeSize(TypeOf[T]()))
	if p, ok := e.peer(src, destPE); ok && UseFastPath(nbytes) {
		copy(heap.BytesAt(dst, nbytes), heap.BytesAt(p, nbytes))
		return nil
	}
	return doBlockingCopy[T](e.Ring, wire.OpGet, destPE, dst, src, nelems)
}

func doBlockingCopy[T Number](r *ring.Ring, op wire.Op, destPE int, dst, src uintptr, nelems uint64) error {
	h := post(r, wire.Request{
		Op: op, Type: TypeOf[T](), DestPE: int32(destPE),
		Dst: dst, Src: src, Nelems: nelems,
	})
	status, _ := h.Wait(r)
	if status != 0 {
		return fmt.Errorf("rma: op=%d pe=%d status=%d", op, destPE, status)
	}
	return nil
}

// PutNbi and GetNbi are the nonblocking forms: they reserve and
// publish a Request and return immediately, relying on a later Quiet
// to establish completion.
func PutNbi[T Number](r *ring.Ring, destPE int, dst, src uintptr, nelems uint64) Handle {
	return post(r, wire.Request{Op: wire.OpPutNbi, Type: TypeOf[T](), DestPE: int32(destPE), Dst: dst, Src: src, Nelems: nelems})
}

func GetNbi[T Number](r *ring.Ring, destPE int, dst, src uintptr, nelems uint64) Handle {
	return post(r, wire.Request{Op: wire.OpGetNbi, Type: TypeOf[T](), DestPE: int32(destPE), Dst: dst, Src: src, Nelems: nelems})
}

// IPut performs a blocking strided put: nelems elements, each dstride
// apart in dst and sstride apart in src (units of elements, not bytes;
// the proxy scales by element size). Mappable peers below the strided
// cutover get the element loop applied directly against the
// peer-mapped heap.
func IPut[T Number](e Engine, destPE int, dst, src uintptr, dstride, sstride int64, nelems uint64) error {
	esz := uint64(wire.TypeSize(TypeOf[T]()))
	if p, ok := e.peer(dst, destPE); ok && UseStridedFastPath(nelems*esz) {
		stridedCopy(p, src, dstride, sstride, nelems, esz)
		return nil
	}
	return doStrided[T](e.Ring, wire.OpIPut, destPE, dst, src, dstride, sstride, nelems)
}

func IGet[T Number](e Engine, destPE int, dst, src uintptr, dstride, sstride int64, nelems uint64) error {
	esz := uint64(wire.TypeSize(TypeOf[T]()))
	if p, ok := e.peer(src, destPE); ok && UseStridedFastPath(nelems*esz) {
		stridedCopy(dst, p, dstride, sstride, nelems, esz)
		return nil
	}
	return doStrided[T](e.Ring, wire.OpIGet, destPE, dst, src, dstride, sstride, nelems)
}

// stridedCopy moves nelems elements of esz bytes, one at a time, with
// element-granular strides on both sides.
func stridedCopy(dst, src uintptr, dstride, sstride int64, nelems, esz uint64) {
	for i := uint64(0); i < nelems; i++ {
		d := uintptr(int64(dst) + int64(i)*dstride*int64(esz))
		s := uintptr(int64(src) + int64(i)*sstride*int64(esz))
		copy(heap.BytesAt(d, esz), heap.BytesAt(s, esz))
	}
}

func doStrided[T Number](r *ring.Ring, op wire.Op, destPE int, dst, src uintptr, dstride, sstride int64, nelems uint64) error {
	h := post(r, wire.Request{
		Op: op, Type: TypeOf[T](), DestPE: int32(destPE),
		Dst: dst, Src: src, Nelems: nelems, DstStride: dstride, SrcStride: sstride,
	})
	status, _ := h.Wait(r)
	if status != 0 {
		return fmt.Errorf("rma: op=%d pe=%d status=%d", op, destPE, status)
	}
	return nil
}

// IBPut and IBGet are the bulk-strided nonblocking forms: unlike
// IPut/IGet's element-at-a-time stride, each of the nblocks strides
// copies a contiguous block of bsize elements, matching
// ishmemx_ibput/ibget's (dest, src, dst_stride, src_stride, bsize,
// nblocks, pe) signature. bsize rides in the wire record's
// BsizeOrValue field (otherwise unused by the strided RMA family) so
// the proxy can tell a block copy from an element-at-a-time one.
func IBPut[T Number](r *ring.Ring, destPE int, dst, src uintptr, dstride, sstride int64, bsize, nblocks uint64) Handle {
	return post(r, wire.Request{Op: wire.OpIBPut, Type: TypeOf[T](), DestPE: int32(destPE), Dst: dst, Src: src, Nelems: nblocks, DstStride: dstride, SrcStride: sstride, BsizeOrValue: bsize})
}

func IBGet[T Number](r *ring.Ring, destPE int, dst, src uintptr, dstride, sstride int64, bsize, nblocks uint64) Handle {
	return post(r, wire.Request{Op: wire.OpIBGet, Type: TypeOf[T](), DestPE: int32(destPE), Dst: dst, Src: src, Nelems: nblocks, DstStride: dstride, SrcStride: sstride, BsizeOrValue: bsize})
}

// P writes a single scalar value to destPE without round-tripping
// through a source buffer. A mappable peer gets a direct store,
// serialized under heap.AtomicMu so it cannot tear against an AMO
// targeting the same word.
func P[T Number](e Engine, destPE int, dst uintptr, value T) error {
	if p, ok := e.peer(dst, destPE); ok {
		esz := uint64(wire.TypeSize(TypeOf[T]()))
		heap.AtomicMu.Lock()
		StoreBits(heap.BytesAt(p, esz), toBits(value))
		heap.AtomicMu.Unlock()
		return nil
	}
	h := post(e.Ring, wire.Request{Op: wire.OpP, Type: TypeOf[T](), DestPE: int32(destPE), Dst: dst, BsizeOrValue: toBits(value)})
	status, _ := h.Wait(e.Ring)
	if status != 0 {
		return fmt.Errorf("rma: p pe=%d status=%d", destPE, status)
	}
	return nil
}

// G reads a single scalar value from destPE, with P's fast-path
// selection in the load direction.
func G[T Number](e Engine, destPE int, src uintptr) (T, error) {
	if p, ok := e.peer(src, destPE); ok {
		esz := uint64(wire.TypeSize(TypeOf[T]()))
		heap.AtomicMu.Lock()
		bits := LoadBits(heap.BytesAt(p, esz))
		heap.AtomicMu.Unlock()
		return fromBits[T](bits), nil
	}
	h := post(e.Ring, wire.Request{Op: wire.OpG, Type: TypeOf[T](), DestPE: int32(destPE), Src: src})
	status, ret := h.Wait(e.Ring)
	if status != 0 {
		var zero T
		return zero, fmt.Errorf("rma: g pe=%d status=%d", destPE, status)
	}
	return fromBits[T](ret), nil
}

// StoreBits writes a scalar's 64-bit wire representation into a
// little-endian byte view whose length is the element size; LoadBits
// is its inverse. Shared with internal/amo's fast path.
func StoreBits(b []byte, bits uint64) {
	switch len(b) {
	case 1:
		b[0] = byte(bits)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(bits))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(bits))
	default:
		binary.LittleEndian.PutUint64(b, bits)
	}
}

// LoadBits reads a scalar's 64-bit wire representation back out of a
// little-endian byte view.
func LoadBits(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

// UseFastPath reports whether a transfer of n bytes should take the
// device-local fast path instead of proxying through the host: below
// constants.RMACutover the copy is inlined on-device; above it, a DMA
// engine beats cross-link stores and the transfer proxies.
func UseFastPath(nbytes uint64) bool {
	return nbytes < constants.RMACutover
}

// UseStridedFastPath is IPut/IGet's analogue of UseFastPath.
func UseStridedFastPath(nbytes uint64) bool {
	return nbytes < constants.StridedRMACutover
}
