// Package wire defines the fixed 64-byte Request/Completion records that
// cross the host/device boundary over the request ring. The layout
// uses fixed-offset little-endian fields, manually marshaled instead
// of relying on unsafe
// struct-casts so the layout is pinned independent of Go's field
// alignment rules.
package wire

import (
	"encoding/binary"
)

// Op tags the operation carried by a Request.
type Op uint8

const (
	OpNop Op = iota
	OpPut
	OpGet
	OpPutNbi
	OpGetNbi
	OpIPut
	OpIGet
	OpIBPut
	OpIBGet
	OpP
	OpG
	OpAmoFetch
	OpAmoSet
	OpAmoInc
	OpAmoFetchInc
	OpAmoAdd
	OpAmoFetchAdd
	OpAmoAnd
	OpAmoFetchAnd
	OpAmoOr
	OpAmoFetchOr
	OpAmoXor
	OpAmoFetchXor
	OpAmoSwap
	OpAmoCompareSwap
	OpBarrier
	OpQuiet
	OpFence
	OpBcast
	OpAlltoall
	OpCollect
	OpFcollect
	OpAndReduce
	OpOrReduce
	OpXorReduce
	OpMinReduce
	OpMaxReduce
	OpSumReduce
	OpProdReduce
	OpInScan
	OpExScan
	OpTeamSync
	OpPutSignal
	OpSignalSet
	OpSignalAdd
	OpSignalFetch
	OpSignalWaitUntil
	OpTimestamp
	OpPrint
	OpDebugTest
)

// String returns the op's lower-case name, used as a metrics label and
// in proxy diagnostics.
func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return "unknown"
}

var opNames = [...]string{
	OpNop: "nop", OpPut: "put", OpGet: "get", OpPutNbi: "put_nbi",
	OpGetNbi: "get_nbi", OpIPut: "iput", OpIGet: "iget", OpIBPut: "ibput",
	OpIBGet: "ibget", OpP: "p", OpG: "g",
	OpAmoFetch: "amo_fetch", OpAmoSet: "amo_set", OpAmoInc: "amo_inc",
	OpAmoFetchInc: "amo_fetch_inc", OpAmoAdd: "amo_add",
	OpAmoFetchAdd: "amo_fetch_add", OpAmoAnd: "amo_and",
	OpAmoFetchAnd: "amo_fetch_and", OpAmoOr: "amo_or",
	OpAmoFetchOr: "amo_fetch_or", OpAmoXor: "amo_xor",
	OpAmoFetchXor: "amo_fetch_xor", OpAmoSwap: "amo_swap",
	OpAmoCompareSwap: "amo_compare_swap",
	OpBarrier: "barrier", OpQuiet: "quiet", OpFence: "fence",
	OpBcast: "bcast", OpAlltoall: "alltoall", OpCollect: "collect",
	OpFcollect: "fcollect", OpAndReduce: "and_reduce",
	OpOrReduce: "or_reduce", OpXorReduce: "xor_reduce",
	OpMinReduce: "min_reduce", OpMaxReduce: "max_reduce",
	OpSumReduce: "sum_reduce", OpProdReduce: "prod_reduce",
	OpInScan: "inscan", OpExScan: "exscan", OpTeamSync: "team_sync",
	OpPutSignal: "put_signal", OpSignalSet: "signal_set",
	OpSignalAdd: "signal_add", OpSignalFetch: "signal_fetch",
	OpSignalWaitUntil: "signal_wait_until", OpTimestamp: "timestamp",
	OpPrint: "print", OpDebugTest: "debug_test",
}

// Type tags the element type of a Request.
type Type uint8

const (
	TypeNone Type = iota
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
)

// String returns the type's lower-case name, used as a metrics label.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	default:
		return "unknown"
	}
}

// Request is the fixed 64-byte command a device posts to the ring
type Request struct {
	Sequence        uint16
	Op              Op
	Type            Type
	CompletionIndex uint16
	DestPE          int32 // also carries the team ID for team-scoped ops
	Root            int32
	Src             uintptr
	Dst             uintptr
	Nelems          uint64
	DstStride       int64
	SrcStride       int64
	BsizeOrValue    uint64
}

// Size is the wire size of a Request: one cache line. Marshal/Unmarshal
// always produce/consume exactly Size bytes regardless of the Go
// compiler's native struct layout for Request.
const Size = 64

// Marshal encodes r into a 64-byte little-endian wire record.
func (r *Request) Marshal(buf *[Size]byte) {
	binary.LittleEndian.PutUint16(buf[0:2], r.Sequence)
	buf[2] = byte(r.Op)
	buf[3] = byte(r.Type)
	binary.LittleEndian.PutUint16(buf[4:6], r.CompletionIndex)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.DestPE))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(r.Root))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(r.Src))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(r.Dst))
	binary.LittleEndian.PutUint64(buf[32:40], r.Nelems)
	binary.LittleEndian.PutUint64(buf[40:48], uint64(r.DstStride))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(r.SrcStride))
	binary.LittleEndian.PutUint64(buf[56:64], r.BsizeOrValue)
}

// Unmarshal decodes a 64-byte wire record into r.
func (r *Request) Unmarshal(buf *[Size]byte) {
	r.Sequence = binary.LittleEndian.Uint16(buf[0:2])
	r.Op = Op(buf[2])
	r.Type = Type(buf[3])
	r.CompletionIndex = binary.LittleEndian.Uint16(buf[4:6])
	r.DestPE = int32(binary.LittleEndian.Uint32(buf[8:12]))
	r.Root = int32(binary.LittleEndian.Uint32(buf[12:16]))
	r.Src = uintptr(binary.LittleEndian.Uint64(buf[16:24]))
	r.Dst = uintptr(binary.LittleEndian.Uint64(buf[24:32]))
	r.Nelems = binary.LittleEndian.Uint64(buf[32:40])
	r.DstStride = int64(binary.LittleEndian.Uint64(buf[40:48]))
	r.SrcStride = int64(binary.LittleEndian.Uint64(buf[48:56]))
	r.BsizeOrValue = binary.LittleEndian.Uint64(buf[56:64])
}

// Team returns DestPE reinterpreted as a team ID, for team-scoped ops.
func (r *Request) Team() int32 { return r.DestPE }

// CompletionSize is the wire size of a Completion: one cache line.
const CompletionSize = 64

// Completion is the fixed record the proxy writes back for a Request
type Completion struct {
	Sequence uint16
	Lock     uint8 // 1 until the producing device thread clears it
	Status   int32 // 0 success, negative errno-style failure
	Ret      uint64 // typed scalar for fetch-AMOs and G
}

// Marshal encodes c into a 64-byte little-endian wire record.
func (c *Completion) Marshal(buf *[CompletionSize]byte) {
	binary.LittleEndian.PutUint16(buf[0:2], c.Sequence)
	buf[2] = c.Lock
	binary.LittleEndian.PutUint32(buf[4:8], uint32(c.Status))
	binary.LittleEndian.PutUint64(buf[8:16], c.Ret)
}

// Unmarshal decodes a 64-byte wire record into c.
func (c *Completion) Unmarshal(buf *[CompletionSize]byte) {
	c.Sequence = binary.LittleEndian.Uint16(buf[0:2])
	c.Lock = buf[2]
	c.Status = int32(binary.LittleEndian.Uint32(buf[4:8]))
	c.Ret = binary.LittleEndian.Uint64(buf[8:16])
}

// TypeSize returns the size in bytes of a single element of t.
func TypeSize(t Type) int {
	switch t {
	case TypeUint8, TypeInt8:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeUint32, TypeInt32, TypeFloat32:
		return 4
	case TypeUint64, TypeInt64, TypeFloat64:
		return 8
	default:
		return 0
	}
}
