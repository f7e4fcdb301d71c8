package runtime

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ishmem-go/ishmem/internal/heap"
	"github.com/ishmem-go/ishmem/internal/wire"
)

const loopbackName = "loopback"

func init() {
	Register(loopbackName, newLoopback)
}

// LoopbackName is the backend name recognized by Load for the
// in-process simulation plugin (no ISHMEM_*_LIB_NAME needed).
const LoopbackName = loopbackName

// loopback is the in-process Plugin: every PE is a goroutine sharing
// one OS process, so "off-node" RMA is a direct memcpy and every
// collective is backed by the shared rendezvous primitive instead of a
// network transport. It stands in for the OPENSHMEM/MPI/PMI backend
// the real runtime dlopen's.
type loopback struct {
	myPE int
	nPEs int
	w    *World
	h    *heap.Heap
}

func newLoopbackWorld(nPEs int) *World {
	return NewWorld(nPEs)
}

// newLoopback is registered under LoopbackName. Callers that need all
// N PEs to share one World (the normal case) should construct the
// World once via NewWorld and use NewLoopbackPE per PE instead of this
// Factory, which is kept only to satisfy the Register/Load contract
// for a single-PE smoke test.
func newLoopback(myPE, nPEs int) (Plugin, error) {
	return NewLoopbackPE(NewWorld(nPEs), myPE, nPEs)
}

// NewLoopbackPE constructs the Plugin for one PE of a shared World.
func NewLoopbackPE(w *World, myPE, nPEs int) (Plugin, error) {
	if myPE < 0 || myPE >= nPEs {
		return nil, fmt.Errorf("runtime: pe %d out of range [0,%d)", myPE, nPEs)
	}
	return &loopback{myPE: myPE, nPEs: nPEs, w: w}, nil
}

func (l *loopback) Init() error {
	h, err := heap.New(l.myPE, l.nPEs, 0)
	if err != nil {
		return err
	}
	l.h = h
	l.w.BindHeap(l.myPE, h)
	return l.Barrier()
}

func (l *loopback) Finalize() error {
	if err := l.Barrier(); err != nil {
		return err
	}
	return l.h.Close()
}

func (l *loopback) MyPE() int { return l.myPE }
func (l *loopback) NPEs() int { return l.nPEs }

// NodeRank and NodeSize treat the whole job as a single node: under
// loopback every PE shares the OS process, so there is no real NUMA or
// network topology to report.
func (l *loopback) NodeRank(pe int) int { return pe }
func (l *loopback) NodeSize() int       { return l.nPEs }

func (l *loopback) Barrier() error {
	rv, ok := l.w.rendezvousFor(TeamWorld)
	if !ok {
		return fmt.Errorf("runtime: team %d not found", TeamWorld)
	}
	rv.Arrive(l.myPE, nil)
	return nil
}

// Quiet is a no-op under loopback: CopyBytes/reduction helpers are
// synchronous, so there is never an outstanding nbi/ibput/ibget
// transfer left to drain.
func (l *loopback) Quiet() error { return nil }

func (l *loopback) Sync(team int) error {
	rv, ok := l.w.rendezvousFor(team)
	if !ok {
		return fmt.Errorf("runtime: team %d not found", team)
	}
	rank := l.w.teamRank(team, l.myPE)
	if rank < 0 {
		return fmt.Errorf("runtime: pe %d not a member of team %d", l.myPE, team)
	}
	rv.Arrive(rank, nil)
	return nil
}

func (l *loopback) TeamSync(team int) error { return l.Sync(team) }

func (l *loopback) TeamPredefinedSet(kind PredefinedKind, size, worldPE, teamPE int) (int, error) {
	switch kind {
	case KindWorld:
		return TeamWorld, nil
	case KindShared, KindNode:
		return TeamNode, nil
	default:
		return TeamInvalid, fmt.Errorf("runtime: unknown predefined team kind %d", kind)
	}
}

func (l *loopback) TeamSplitStrided(parent, start, stride, size int) (int, error) {
	if size <= 0 {
		return TeamInvalid, fmt.Errorf("runtime: team_split_strided size must be positive, got %d", size)
	}
	parentSize := l.w.teamSize(parent)
	members := make([]int, 0, size)
	for i, idx := 0, start; i < size; i, idx = i+1, idx+stride {
		if idx < 0 || idx >= parentSize {
			return TeamInvalid, fmt.Errorf("runtime: team_split_strided start=%d stride=%d size=%d exceeds parent size %d", start, stride, size, parentSize)
		}
		members = append(members, l.w.teamMember(parent, idx))
	}
	team := l.w.newTeam(members)
	return team, nil
}

// TeamDestroy waits for every member of a dynamic team to arrive before
// removing it, so no member loses the team while another still uses it.
func (l *loopback) TeamDestroy(team int) error {
	if team >= firstDynamicTeam {
		if err := l.Sync(team); err != nil {
			return err
		}
	}
	return l.w.destroyTeam(team)
}

func (l *loopback) TeamNPEs(team int) int { return l.w.teamSize(team) }

func (l *loopback) TeamTranslatePe(srcTeam, srcPE, dstTeam int) int {
	worldPE := l.w.teamMember(srcTeam, srcPE)
	if worldPE == TeamInvalid {
		return -1
	}
	return l.w.teamRank(dstTeam, worldPE)
}

func (l *loopback) ReadLocal(addr uintptr) uint64 {
	b := l.h.AtOffset(l.h.Offset(addr), 8)
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

// Ptr maps a local heap pointer to pe's equivalent address. Unmapped
// peers report 0 (under loopback every peer is mapped at Init, so 0
// only means an out-of-range pe).
func (l *loopback) Ptr(local uintptr, pe int) uintptr {
	p, ok := l.h.Ptr(local, pe)
	if !ok {
		return 0
	}
	return p
}

// Heap exposes the PE's symmetric heap for the device fast path
// (internal/rma's Engine).
func (l *loopback) Heap() *heap.Heap { return l.h }

func (l *loopback) Malloc(size uint64) (uintptr, error) { return l.h.Malloc(size) }
func (l *loopback) Calloc(num, size uint64) (uintptr, error) {
	return l.h.Calloc(num, size)
}
func (l *loopback) Free(ptr uintptr) error { l.h.Free(ptr); return nil }

// Broadcast implements the push variant of broadcast: only the root
// hands its src buffer to the rendezvous, and every member, the root
// included, copies the root's slot into its own dst.
func (l *loopback) Broadcast(team int, dst, src uintptr, nbytes uint64, root int) error {
	rv, ok := l.w.rendezvousFor(team)
	if !ok {
		return fmt.Errorf("runtime: team %d not found", team)
	}
	rank := l.w.teamRank(team, l.myPE)
	if rank < 0 {
		return fmt.Errorf("runtime: pe %d not a member of team %d", l.myPE, team)
	}
	var contrib []byte
	if rank == root {
		contrib = append([]byte(nil), l.h.AtOffset(l.h.Offset(src), nbytes)...)
	}
	all := rv.Arrive(rank, contrib)
	rootData := all[root]
	copy(l.h.AtOffset(l.h.Offset(dst), nbytes), rootData)
	return nil
}

// Fcollect concatenates every PE's nbytesPerPE chunk
// lands at rank*nbytesPerPE in dst, on every PE.
func (l *loopback) Fcollect(team int, dst, src uintptr, nbytesPerPE uint64) error {
	rv, ok := l.w.rendezvousFor(team)
	if !ok {
		return fmt.Errorf("runtime: team %d not found", team)
	}
	rank := l.w.teamRank(team, l.myPE)
	if rank < 0 {
		return fmt.Errorf("runtime: pe %d not a member of team %d", l.myPE, team)
	}
	contrib := append([]byte(nil), l.h.AtOffset(l.h.Offset(src), nbytesPerPE)...)
	all := rv.Arrive(rank, contrib)
	out := l.h.AtOffset(l.h.Offset(dst), nbytesPerPE*uint64(len(all)))
	for i, chunk := range all {
		copy(out[uint64(i)*nbytesPerPE:], chunk)
	}
	return nil
}

// Collect is like fcollect but each PE may
// contribute a different-sized chunk, concatenated in rank order.
func (l *loopback) Collect(team int, dst, src uintptr, nbytes uint64) error {
	rv, ok := l.w.rendezvousFor(team)
	if !ok {
		return fmt.Errorf("runtime: team %d not found", team)
	}
	rank := l.w.teamRank(team, l.myPE)
	if rank < 0 {
		return fmt.Errorf("runtime: pe %d not a member of team %d", l.myPE, team)
	}
	contrib := append([]byte(nil), l.h.AtOffset(l.h.Offset(src), nbytes)...)
	all := rv.Arrive(rank, contrib)
	out := l.h.AtOffset(l.h.Offset(dst), totalLen(all))
	off := uint64(0)
	for _, chunk := range all {
		copy(out[off:], chunk)
		off += uint64(len(chunk))
	}
	return nil
}

func totalLen(chunks [][]byte) uint64 {
	var n uint64
	for _, c := range chunks {
		n += uint64(len(c))
	}
	return n
}

// Reduce implements the typed reductions (AND/OR/XOR/MIN/MAX/
// SUM/PROD): every PE contributes nelems values of typ, and every PE
// receives the full element-wise reduction.
func (l *loopback) Reduce(team int, op wire.Op, typ wire.Type, dst, src uintptr, nelems uint64) error {
	rv, ok := l.w.rendezvousFor(team)
	if !ok {
		return fmt.Errorf("runtime: team %d not found", team)
	}
	rank := l.w.teamRank(team, l.myPE)
	if rank < 0 {
		return fmt.Errorf("runtime: pe %d not a member of team %d", l.myPE, team)
	}
	esz := uint64(wire.TypeSize(typ))
	contrib := append([]byte(nil), l.h.AtOffset(l.h.Offset(src), nelems*esz)...)
	all := rv.Arrive(rank, contrib)
	result, err := reduceBuffers(op, typ, all, nelems)
	if err != nil {
		return err
	}
	copy(l.h.AtOffset(l.h.Offset(dst), nelems*esz), result)
	return nil
}

// Alltoall exchanges chunks between every pair of PEs: each slices its src
// buffer into one nbytesPerPE chunk per team member and the chunk
// destined for rank j ends up at rank j's jth... actually at the
// sender's own rank's slot in rank j's dst, i.e. a transpose.
func (l *loopback) Alltoall(team int, dst, src uintptr, nbytesPerPE uint64) error {
	rv, ok := l.w.rendezvousFor(team)
	if !ok {
		return fmt.Errorf("runtime: team %d not found", team)
	}
	rank := l.w.teamRank(team, l.myPE)
	if rank < 0 {
		return fmt.Errorf("runtime: pe %d not a member of team %d", l.myPE, team)
	}
	contrib := append([]byte(nil), l.h.AtOffset(l.h.Offset(src), nbytesPerPE*uint64(l.w.teamSize(team)))...)
	all := rv.Arrive(rank, contrib)
	out := l.h.AtOffset(l.h.Offset(dst), nbytesPerPE*uint64(len(all)))
	for senderRank, senderBuf := range all {
		chunk := senderBuf[uint64(rank)*nbytesPerPE : uint64(rank+1)*nbytesPerPE]
		copy(out[uint64(senderRank)*nbytesPerPE:], chunk)
	}
	return nil
}

// Scan computes a running reduction: every team member's
// dst receives the reduction of src across every lower-ranked member
// (exclusive) or itself and every lower-ranked member (inclusive).
// Unlike barrier/broadcast/reduce, scan has no useful device-local fast
// path (each rank's result depends on every predecessor's
// contribution) so the design notes call for it to always proxy.
func (l *loopback) Scan(team int, op wire.Op, typ wire.Type, dst, src uintptr, nelems uint64, inclusive bool) error {
	rv, ok := l.w.rendezvousFor(team)
	if !ok {
		return fmt.Errorf("runtime: team %d not found", team)
	}
	rank := l.w.teamRank(team, l.myPE)
	if rank < 0 {
		return fmt.Errorf("runtime: pe %d not a member of team %d", l.myPE, team)
	}
	esz := uint64(wire.TypeSize(typ))
	contrib := append([]byte(nil), l.h.AtOffset(l.h.Offset(src), nelems*esz)...)
	all := rv.Arrive(rank, contrib)

	upTo := rank
	if inclusive {
		upTo = rank + 1
	}
	result, err := reduceBuffers(op, typ, all[:upTo], nelems)
	if err != nil {
		return err
	}
	copy(l.h.AtOffset(l.h.Offset(dst), nelems*esz), result)
	return nil
}

// ProxyFunc returns the loopback-native handler for (op, typ): a
// direct memcpy or a typed AMO against the target PE's heap. This is
// the grid the upcall dispatch table (internal/upcall) starts from
// before overriding entries with a device fast path.
func (l *loopback) ProxyFunc(op wire.Op, typ wire.Type) (ProxyFunc, bool) {
	switch op {
	case OpCopy:
		return l.proxyCopy, true
	case wire.OpP:
		return l.proxyP, true
	case wire.OpG:
		return l.proxyG, true
	case wire.OpPutSignal:
		return l.proxySignalPut, true
	case wire.OpSignalSet:
		return l.proxySignalSet, true
	case wire.OpSignalAdd:
		return l.proxySignalAdd, true
	case wire.OpSignalFetch:
		return l.proxySignalFetch, true
	default:
		if amo, ok := amoProxyFuncs[op]; ok {
			return l.bindAMO(amo, typ), true
		}
		return nil, false
	}
}

func (l *loopback) ProxyFuncNumTypes() int { return int(wire.TypeFloat64) + 1 }

// OpCopy is a pseudo-op keying the plugin's byte-copy handler, which
// internal/upcall registers for every put/get op
// (put/get/put_nbi/get_nbi/iput/iget/ibput/ibget all reduce to a
// strided or contiguous CopyBytes once the element type is known; p
// and g have their own handlers): it carries no entry in wire.Op's
// public enum because devices never see it directly, only the proxy's
// dispatch grid does.
const OpCopy = wire.Op(255)

func (l *loopback) proxyCopy(req wire.Request) (int32, uint64) {
	destPE := int(req.DestPE)
	esz := uint64(wire.TypeSize(req.Type))
	if esz == 0 {
		esz = 1
	}
	srcOff := l.h.Offset(req.Src)
	dstOff := l.h.Offset(req.Dst)
	// IBPUT/IBGET copy a contiguous block of BsizeOrValue elements at
	// each of Nelems strides, unlike IPUT/IGET's element-at-a-time
	// stride; everything else in the copy family ignores BsizeOrValue.
	if req.Op == wire.OpIBPut || req.Op == wire.OpIBGet {
		blockBytes := req.BsizeOrValue * esz
		for i := uint64(0); i < req.Nelems; i++ {
			so := uint64(int64(srcOff) + int64(i)*req.SrcStride*int64(esz))
			do := uint64(int64(dstOff) + int64(i)*req.DstStride*int64(esz))
			l.w.CopyBytes(destPE, do, l.myPE, so, blockBytes)
		}
		return 0, 0
	}
	if req.SrcStride == 0 && req.DstStride == 0 {
		l.w.CopyBytes(destPE, dstOff, l.myPE, srcOff, req.Nelems*esz)
		return 0, 0
	}
	for i := uint64(0); i < req.Nelems; i++ {
		so := uint64(int64(srcOff) + int64(i)*req.SrcStride*int64(esz))
		do := uint64(int64(dstOff) + int64(i)*req.DstStride*int64(esz))
		l.w.CopyBytes(destPE, do, l.myPE, so, esz)
	}
	return 0, 0
}

// proxyP and proxyG are rma.P/rma.G's proxy handlers: a single scalar
// written or read without a source/destination buffer on the local
// side.
func (l *loopback) proxyP(req wire.Request) (int32, uint64) {
	heap.AtomicMu.Lock()
	defer heap.AtomicMu.Unlock()
	h := l.w.Heap(int(req.DestPE))
	esz := wire.TypeSize(req.Type)
	b := h.AtOffset(l.h.Offset(req.Dst), uint64(esz))
	amoStore(req.Type, b, req.BsizeOrValue)
	return 0, 0
}

func (l *loopback) proxyG(req wire.Request) (int32, uint64) {
	heap.AtomicMu.Lock()
	defer heap.AtomicMu.Unlock()
	h := l.w.Heap(int(req.DestPE))
	esz := wire.TypeSize(req.Type)
	b := h.AtOffset(l.h.Offset(req.Src), uint64(esz))
	return 0, amoLoad(req.Type, b)
}

// proxySignalPut services wire.OpPutSignal: a copy plus an atomic
// update of a signal word, matching internal/signal.PutSignal's wire
// encoding (Root = signal op, SrcStride = signal address, BsizeOrValue
// = signal value).
func (l *loopback) proxySignalPut(req wire.Request) (int32, uint64) {
	l.proxyCopy(req)
	sigReq := wire.Request{
		DestPE: req.DestPE,
		Dst:    uintptr(req.SrcStride),
		Type:   wire.TypeUint64,
		BsizeOrValue: req.BsizeOrValue,
	}
	if req.Root == 0 {
		return l.proxySignalSet(sigReq)
	}
	return l.proxySignalAdd(sigReq)
}

func (l *loopback) proxySignalSet(req wire.Request) (int32, uint64) {
	heap.AtomicMu.Lock()
	defer heap.AtomicMu.Unlock()
	h := l.w.Heap(int(req.DestPE))
	b := h.AtOffset(l.h.Offset(req.Dst), 8)
	amoStore(wire.TypeUint64, b, req.BsizeOrValue)
	return 0, 0
}

func (l *loopback) proxySignalAdd(req wire.Request) (int32, uint64) {
	heap.AtomicMu.Lock()
	defer heap.AtomicMu.Unlock()
	h := l.w.Heap(int(req.DestPE))
	b := h.AtOffset(l.h.Offset(req.Dst), 8)
	amoStore(wire.TypeUint64, b, amoLoad(wire.TypeUint64, b)+req.BsizeOrValue)
	return 0, 0
}

// proxySignalFetch always reads the caller's own heap: signal words
// are read locally, never across PEs.
func (l *loopback) proxySignalFetch(req wire.Request) (int32, uint64) {
	heap.AtomicMu.Lock()
	defer heap.AtomicMu.Unlock()
	b := l.h.AtOffset(l.h.Offset(req.Dst), 8)
	return 0, amoLoad(wire.TypeUint64, b)
}

func (l *loopback) bindAMO(fn amoFunc, typ wire.Type) ProxyFunc {
	return func(req wire.Request) (int32, uint64) {
		return fn(l, req, typ)
	}
}

// reduceBuffers element-wise reduces n typed buffers of nelems
// elements each, dispatching on typ at runtime rather than expanding
// one function per (op, type) pair.
func reduceBuffers(op wire.Op, typ wire.Type, bufs [][]byte, nelems uint64) ([]byte, error) {
	esz := wire.TypeSize(typ)
	if esz == 0 {
		return nil, fmt.Errorf("runtime: reduce: unsupported type %d", typ)
	}
	out := make([]byte, int(nelems)*esz)
	if len(bufs) == 0 {
		// An exclusive scan's first rank has no predecessors: the
		// all-zero identity is exact for OR/XOR/SUM/MAX(unsigned) and an
		// accepted approximation elsewhere, since ISHMEM itself leaves
		// rank 0's exclusive-scan value implementation-defined.
		return out, nil
	}
	for i := uint64(0); i < nelems; i++ {
		acc := decodeElem(typ, bufs[0][i*uint64(esz):])
		for _, b := range bufs[1:] {
			acc = combine(op, typ, acc, decodeElem(typ, b[i*uint64(esz):]))
		}
		encodeElem(typ, out[i*uint64(esz):], acc)
	}
	return out, nil
}

// elem is a tagged union big enough to hold any scalar type this
// library moves, used only inside reduceBuffers' type dispatch.
type elem struct {
	u uint64
	f float64
}

func decodeElem(typ wire.Type, b []byte) elem {
	switch typ {
	case wire.TypeUint8, wire.TypeInt8:
		return elem{u: uint64(b[0])}
	case wire.TypeUint16, wire.TypeInt16:
		return elem{u: uint64(binary.LittleEndian.Uint16(b))}
	case wire.TypeUint32, wire.TypeInt32:
		return elem{u: uint64(binary.LittleEndian.Uint32(b))}
	case wire.TypeUint64, wire.TypeInt64:
		return elem{u: binary.LittleEndian.Uint64(b)}
	case wire.TypeFloat32:
		return elem{f: float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))}
	case wire.TypeFloat64:
		return elem{f: math.Float64frombits(binary.LittleEndian.Uint64(b))}
	default:
		return elem{}
	}
}

func encodeElem(typ wire.Type, b []byte, e elem) {
	switch typ {
	case wire.TypeUint8, wire.TypeInt8:
		b[0] = byte(e.u)
	case wire.TypeUint16, wire.TypeInt16:
		binary.LittleEndian.PutUint16(b, uint16(e.u))
	case wire.TypeUint32, wire.TypeInt32:
		binary.LittleEndian.PutUint32(b, uint32(e.u))
	case wire.TypeUint64, wire.TypeInt64:
		binary.LittleEndian.PutUint64(b, e.u)
	case wire.TypeFloat32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(e.f)))
	case wire.TypeFloat64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(e.f))
	}
}

func isFloat(typ wire.Type) bool {
	return typ == wire.TypeFloat32 || typ == wire.TypeFloat64
}

func isSigned(typ wire.Type) bool {
	switch typ {
	case wire.TypeInt8, wire.TypeInt16, wire.TypeInt32, wire.TypeInt64:
		return true
	default:
		return false
	}
}

func combine(op wire.Op, typ wire.Type, a, b elem) elem {
	if isFloat(typ) {
		switch op {
		case wire.OpMinReduce:
			if b.f < a.f {
				return b
			}
			return a
		case wire.OpMaxReduce:
			if b.f > a.f {
				return b
			}
			return a
		case wire.OpSumReduce:
			return elem{f: a.f + b.f}
		case wire.OpProdReduce:
			return elem{f: a.f * b.f}
		default:
			return a // AND/OR/XOR are integer-only ops; float requests keep the first operand
		}
	}
	switch op {
	case wire.OpAndReduce:
		return elem{u: a.u & b.u}
	case wire.OpOrReduce:
		return elem{u: a.u | b.u}
	case wire.OpXorReduce:
		return elem{u: a.u ^ b.u}
	case wire.OpMinReduce:
		if isSigned(typ) {
			if int64(b.u) < int64(a.u) {
				return b
			}
			return a
		}
		if b.u < a.u {
			return b
		}
		return a
	case wire.OpMaxReduce:
		if isSigned(typ) {
			if int64(b.u) > int64(a.u) {
				return b
			}
			return a
		}
		if b.u > a.u {
			return b
		}
		return a
	case wire.OpSumReduce:
		return elem{u: a.u + b.u}
	case wire.OpProdReduce:
		return elem{u: a.u * b.u}
	default:
		return a
	}
}
