package amo

import (
	"github.com/ishmem-go/ishmem/internal/heap"
	"github.com/ishmem-go/ishmem/internal/rma"
	"github.com/ishmem-go/ishmem/internal/wire"
)

// tryFast attempts the intra-node fast path: a read-modify-write
// applied directly to the peer-mapped address, serialized under
// heap.AtomicMu with every other path that can touch the word (the
// proxy's AMO upcalls take the same lock). Reports false when destPE
// is not mappable, leaving the operation to the ring.
func tryFast(e Engine, op wire.Op, typ wire.Type, destPE int, dst uintptr, valueBits, compareBits uint64) (old uint64, ok bool) {
	if e.Heap == nil {
		return 0, false
	}
	p, mapped := e.Heap.Ptr(dst, destPE)
	if !mapped {
		return 0, false
	}
	b := heap.BytesAt(p, uint64(wire.TypeSize(typ)))
	heap.AtomicMu.Lock()
	defer heap.AtomicMu.Unlock()
	old = rma.LoadBits(b)
	switch op {
	case wire.OpAmoFetch:
		// load only
	case wire.OpAmoSet, wire.OpAmoSwap:
		rma.StoreBits(b, valueBits)
	case wire.OpAmoInc, wire.OpAmoFetchInc:
		rma.StoreBits(b, old+1)
	case wire.OpAmoAdd, wire.OpAmoFetchAdd:
		rma.StoreBits(b, old+valueBits)
	case wire.OpAmoAnd, wire.OpAmoFetchAnd:
		rma.StoreBits(b, old&valueBits)
	case wire.OpAmoOr, wire.OpAmoFetchOr:
		rma.StoreBits(b, old|valueBits)
	case wire.OpAmoXor, wire.OpAmoFetchXor:
		rma.StoreBits(b, old^valueBits)
	case wire.OpAmoCompareSwap:
		if old == compareBits {
			rma.StoreBits(b, valueBits)
		}
	default:
		return 0, false
	}
	return old, true
}
