// Package runtime defines the external scale-out transport contract
// and provides the in-process "loopback" backend used by tests and the
// demo command.
//
// The real ISHMEM runtime dlopen's a shared library named by
// ISHMEM_SHMEM_LIB_NAME/ISHMEM_MPI_LIB_NAME/ISHMEM_PMI_LIB_NAME and
// resolves a fixed symbol table against it. This package's Go analogue
// is Register/Load: built-in backends register themselves by name
// under init, and Load resolves a configured name to its Factory the
// way dlsym resolves a symbol, failing unknown names fatally at init.
package runtime

import (
	"fmt"

	"github.com/ishmem-go/ishmem/internal/heap"
	"github.com/ishmem-go/ishmem/internal/wire"
)

// PredefinedKind identifies one of the three predefined teams a plugin
// must be able to construct.
type PredefinedKind int

const (
	KindWorld PredefinedKind = iota
	KindShared
	KindNode
)

// ProxyFunc is the function a host proxy invokes to service a Request
// it cannot (or should not) handle on the device fast path — the
// "proxy_funcs[op][type]" dispatch grid. It returns the completion's
// status and typed return value.
type ProxyFunc func(req wire.Request) (status int32, ret uint64)

// Plugin is the contract every scale-out transport backend
// (OPENSHMEM/MPI/PMI) must satisfy.
type Plugin interface {
	Init() error
	Finalize() error

	MyPE() int
	NPEs() int
	NodeRank(pe int) int
	NodeSize() int

	Barrier() error
	Quiet() error
	Sync(team int) error
	TeamSync(team int) error

	TeamPredefinedSet(kind PredefinedKind, size, worldPE, teamPE int) (team int, err error)
	TeamSplitStrided(parent, start, stride, size int) (team int, err error)
	TeamDestroy(team int) error
	TeamNPEs(team int) int
	// TeamTranslatePe maps srcPE's rank in srcTeam to its rank in
	// dstTeam, or -1 if srcPE is not a member of dstTeam.
	TeamTranslatePe(srcTeam, srcPE, dstTeam int) int

	Malloc(size uint64) (uintptr, error)
	Calloc(num, size uint64) (uintptr, error)
	Free(ptr uintptr) error

	// ReadLocal reads a uint64-width value directly from this PE's own
	// heap at addr, without posting to the ring — the device-local fast
	// path wait_until/test use to poll a signal word.
	ReadLocal(addr uintptr) uint64

	// Ptr implements ishmem_ptr: given a pointer into this PE's heap,
	// returns the equivalent directly-dereferenceable pointer into pe's
	// heap, or 0 when pe is not mappable from this PE.
	Ptr(local uintptr, pe int) uintptr

	// Heap exposes the PE's symmetric heap, which carries the peer
	// mappings the RMA/AMO fast path dereferences directly.
	Heap() *heap.Heap

	Broadcast(team int, dst, src uintptr, nbytes uint64, root int) error
	Fcollect(team int, dst, src uintptr, nbytesPerPE uint64) error
	Collect(team int, dst, src uintptr, nbytes uint64) error
	Reduce(team int, op wire.Op, typ wire.Type, dst, src uintptr, nelems uint64) error
	// Alltoall exchanges nbytesPerPE-sized chunks: rank i's jth chunk in
	// src lands at rank j's ith chunk in dst.
	Alltoall(team int, dst, src uintptr, nbytesPerPE uint64) error
	// Scan computes a running reduction over team-local rank order,
	// inclusive or exclusive, writing nelems partial results to dst
	Scan(team int, op wire.Op, typ wire.Type, dst, src uintptr, nelems uint64, inclusive bool) error

	// ProxyFunc returns the plugin-native handler for (op, typ), and
	// whether one exists. The upcall dispatch table starts
	// from this grid before overriding entries with library fast paths.
	ProxyFunc(op wire.Op, typ wire.Type) (ProxyFunc, bool)
	ProxyFuncNumTypes() int
}

// Factory constructs a Plugin bound to one PE of an nPEs-wide job.
type Factory func(myPE, nPEs int) (Plugin, error)

var registry = map[string]Factory{}

// Register adds a built-in backend under name, for use via Load.
func Register(name string, f Factory) {
	registry[name] = f
}

// Load resolves name to a registered Factory.
// Unknown names are a fatal symbol-resolution failure.
func Load(name string) (Factory, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("runtime: unknown backend %q (no ISHMEM_*_LIB_NAME plugin registered)", name)
	}
	return f, nil
}
