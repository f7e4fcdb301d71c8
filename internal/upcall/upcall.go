// Package upcall builds the (op, type) dispatch grid the host proxy
// uses to service device-posted Requests. It starts from a
// runtime.Plugin's native ProxyFunc grid and lets callers override
// individual entries with a library fast path, the same layering the
// original gets from weak symbols it can override at link time.
package upcall

import (
	"github.com/ishmem-go/ishmem/internal/runtime"
	"github.com/ishmem-go/ishmem/internal/wire"
)

// Handler services one Request and produces a Completion's payload.
type Handler func(req wire.Request) (status int32, ret uint64)

// Table is a dense (op, type) grid of Handlers.
type Table struct {
	numTypes int
	entries  map[uint16]Handler
}

func key(op wire.Op, typ wire.Type) uint16 {
	return uint16(op)<<8 | uint16(typ)
}

// NewFromPlugin seeds a Table from p's native ProxyFunc grid, covering
// every (op, type) pair p advertises support for.
func NewFromPlugin(p runtime.Plugin) *Table {
	t := &Table{numTypes: p.ProxyFuncNumTypes(), entries: map[uint16]Handler{}}
	for op := wire.Op(0); op < opUpperBound; op++ {
		for typ := wire.Type(0); int(typ) < t.numTypes; typ++ {
			if fn, ok := p.ProxyFunc(op, typ); ok {
				t.entries[key(op, typ)] = Handler(fn)
			}
		}
	}
	// The RMA/signal family shares one plugin-native copy handler keyed
	// under the internal runtime.OpCopy pseudo-op; register it for every
	// (real op, type) pair that reduces to a byte copy once the request
	// carries a concrete element type.
	for _, op := range copyFamily {
		for typ := wire.Type(0); int(typ) < t.numTypes; typ++ {
			if fn, ok := p.ProxyFunc(runtime.OpCopy, typ); ok {
				t.entries[key(op, typ)] = Handler(fn)
			}
		}
	}
	return t
}

// copyFamily lists every op whose proxy handling is "copy bytes
// between two symmetric addresses", i.e. every contiguous and strided
// put/get form (put-with-signal keeps its own plugin handler).
var copyFamily = []wire.Op{
	wire.OpPut, wire.OpGet, wire.OpPutNbi, wire.OpGetNbi,
	wire.OpIPut, wire.OpIGet, wire.OpIBPut, wire.OpIBGet,
}

// opUpperBound bounds the op-space iteration NewFromPlugin performs;
// keep in lockstep with the last entry of wire.Op's enum.
const opUpperBound = wire.OpDebugTest + 1

// Override replaces (or adds) the handler for (op, typ), for device
// fast-path operations the library implements directly rather than
// routing through the plugin (e.g. small contiguous puts handled
// inline on the device).
func (t *Table) Override(op wire.Op, typ wire.Type, h Handler) {
	t.entries[key(op, typ)] = h
}

// Lookup returns the handler for (op, typ), if any.
func (t *Table) Lookup(op wire.Op, typ wire.Type) (Handler, bool) {
	h, ok := t.entries[key(op, typ)]
	return h, ok
}
