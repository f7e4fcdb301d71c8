// Package heap implements the symmetric heap and intra-node topology.
// Every PE allocates an equally-sized region; a bump allocator
// guarantees every PE returns the same offset for the Nth matched
// allocation. For PEs whose heap is directly mappable ("intra-node"),
// the library records a base-address delta so a local pointer plus
// that delta names the same symmetric object on the peer (ishmem_ptr).
//
// Like a ublk runner's descriptor/buffer regions, this allocates
// page-backed memory with the raw mmap syscall rather than a Go
// slice, because the memory must have a stable address taken once and
// reused for the process's lifetime.
package heap

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ishmem-go/ishmem/internal/constants"
)

// NotMappable is the local_index sentinel for a PE this heap cannot
// directly address: the fast path treats local_index == 0 as "not
// local".
const NotMappable = 0

// Heap is one PE's symmetric heap plus its view of mappable peers.
type Heap struct {
	mu sync.Mutex

	myPE int
	nPEs int
	size uint64

	mem  []byte
	base uintptr

	nextOffset uint64

	localIndex [constants.MaxLocalPEs]int32
	baseDelta  [constants.MaxLocalPEs]int64
	nextLocal  int32 // next local_index to hand out; 0 is reserved for NotMappable
}

// New allocates a symmetric heap of the given size (bytes) for myPE out
// of nPEs total PEs. Size is rounded up to the page size.
func New(myPE, nPEs int, size uint64) (*Heap, error) {
	if size == 0 {
		size = constants.DefaultSymmetricSize
	}
	page := uint64(unix.Getpagesize())
	if rem := size % page; rem != 0 {
		size += page - rem
	}

	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("heap: mmap %d bytes: %w", size, err)
	}

	h := &Heap{
		myPE:      myPE,
		nPEs:      nPEs,
		size:      size,
		mem:       mem,
		base:      uintptr(unsafe.Pointer(&mem[0])),
		nextLocal: 1,
	}
	return h, nil
}

// Close unmaps the heap's backing memory.
func (h *Heap) Close() error {
	if h.mem == nil {
		return nil
	}
	err := unix.Munmap(h.mem)
	h.mem = nil
	return err
}

// Size returns the heap's capacity in bytes.
func (h *Heap) Size() uint64 { return h.size }

// Base returns the heap's base address, for peers mapping us.
func (h *Heap) Base() uintptr { return h.base }

// MapPeer records that pe's heap (based at peerBase) is directly
// addressable from this PE, assigning it the next local index and
// computing the address delta. Only valid when all PEs
// share one OS process address space (the loopback runtime plugin);
// a real scale-out transport would instead use IPC handles.
func (h *Heap) MapPeer(pe int, peerBase uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if pe == h.myPE {
		return
	}
	idx := h.nextLocal
	if int(idx) >= constants.MaxLocalPEs {
		return // local table exhausted; pe stays NotMappable
	}
	h.nextLocal++
	h.localIndex[pe] = idx
	h.baseDelta[idx] = int64(peerBase) - int64(h.base)
}

// LocalIndex returns pe's local_index, or NotMappable.
func (h *Heap) LocalIndex(pe int) int32 {
	if pe < 0 || pe >= len(h.localIndex) {
		return NotMappable
	}
	return h.localIndex[pe]
}

// IsMappable reports whether pe's heap is directly addressable.
func (h *Heap) IsMappable(pe int) bool {
	return h.LocalIndex(pe) != NotMappable
}

// Ptr implements ishmem_ptr: given a pointer into this PE's heap,
// returns the equivalent pointer into pe's heap, or (0, false) when pe
// is not mappable. A PE's own pointers map to themselves.
func (h *Heap) Ptr(local uintptr, pe int) (uintptr, bool) {
	if pe == h.myPE {
		return local, true
	}
	idx := h.LocalIndex(pe)
	if idx == NotMappable {
		return 0, false
	}
	return uintptr(int64(local) + h.baseDelta[idx]), true
}

// BytesAt returns an n-byte view of mapped symmetric memory at addr.
// addr must lie within this process's own heap or a peer heap
// registered via MapPeer; it is how the fast path dereferences the
// address Ptr computed.
func BytesAt(addr uintptr, n uint64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

// AtomicMu serializes every atomic update to symmetric memory, across
// both the device fast path (internal/amo, scalar P/G) and the proxy's
// upcall handlers: the process-wide stand-in for the device's atomic
// memory unit, which must make an AMO indivisible against any other
// AMO touching the same word.
var AtomicMu sync.Mutex

// Offset returns ptr's offset from this heap's base (the symmetric
// offset shared by every PE's matching allocation).
func (h *Heap) Offset(ptr uintptr) uint64 {
	return uint64(int64(ptr) - int64(h.base))
}

// AtOffset returns a byte slice view of n bytes starting at offset,
// within this heap's memory.
func (h *Heap) AtOffset(offset uint64, n uint64) []byte {
	return h.mem[offset : offset+n]
}

// PtrAtOffset returns the address of offset within this heap.
func (h *Heap) PtrAtOffset(offset uint64) uintptr {
	return h.base + uintptr(offset)
}

// Malloc allocates n bytes from the symmetric heap, returning the
// pointer. Every PE must call Malloc the same number of times, in the
// same order, with the same sizes, to preserve offset parity across
// PEs; this matches a symmetric collective allocator the way a real
// scale-out transport routes allocation metadata to keep PEs in
// lockstep.
func (h *Heap) Malloc(n uint64) (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n = align8(n)
	if h.nextOffset+n > h.size {
		return 0, fmt.Errorf("heap: out of symmetric memory: requested %d, %d available", n, h.size-h.nextOffset)
	}
	off := h.nextOffset
	h.nextOffset += n
	return h.base + uintptr(off), nil
}

// Calloc allocates num*size zeroed bytes (the memory is already zero
// since it comes from a fresh anonymous mmap region).
func (h *Heap) Calloc(num, size uint64) (uintptr, error) {
	return h.Malloc(num * size)
}

// Free is a no-op: the bump allocator never reclaims, so once the
// symmetric heap is exhausted every later Malloc returns an error.
func (h *Heap) Free(ptr uintptr) {}

func align8(n uint64) uint64 {
	const a = 8
	return (n + a - 1) &^ (a - 1)
}
