// Package ishmem is a PGAS (partitioned global address space)
// communication library for GPU-attached ranks: a symmetric heap, RMA,
// atomics, teams, and collectives layered over a pluggable scale-out
// transport. This package is the public
// surface; internal/ holds the wire format, ring, host proxy, upcall
// dispatch, and per-domain implementations it wires together.
//
// Every call takes an explicit *Instance rather than relying on
// process-wide implicit state — the natural Go rendering of a library
// meant to be testable with more than one simulated PE in a single
// process.
package ishmem

import (
	"sync/atomic"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ishmem-go/ishmem/internal/config"
	"github.com/ishmem-go/ishmem/internal/logging"
	"github.com/ishmem-go/ishmem/internal/metrics"
	"github.com/ishmem-go/ishmem/internal/msgq"
	"github.com/ishmem-go/ishmem/internal/proxy"
	"github.com/ishmem-go/ishmem/internal/ring"
	"github.com/ishmem-go/ishmem/internal/rma"
	"github.com/ishmem-go/ishmem/internal/runtime"
	"github.com/ishmem-go/ishmem/internal/team"
	"github.com/ishmem-go/ishmem/internal/upcall"
)

// Instance is one PE's handle onto the library: its symmetric heap (via
// Plugin), its request ring, and the host proxy servicing that ring.
type Instance struct {
	cfg            config.Config
	plugin         runtime.Plugin
	ring           *ring.Ring
	table          *upcall.Table
	proxy          *proxy.Proxy
	pool           *team.Pool
	log            *logging.Logger
	mx             *metrics.Metrics
	msgs           *msgq.Queue
	nbiOutstanding int64
}

// Init constructs and starts the PE's ring, proxy, and heap, and joins
// the job-wide barrier so Init doesn't return on any PE until every PE
// has called it. myPE/nPEs/world are supplied by the
// caller's job launcher (see cmd/ishmem-demo for the loopback harness);
// a real deployment's launcher would instead come from the runtime
// plugin's PMI-equivalent bootstrap.
func Init(cfg config.Config, world *runtime.World, myPE, nPEs int) (*Instance, error) {
	if _, err := maxprocs.Set(maxprocs.Logger(nil)); err != nil {
		// Non-fatal: GOMAXPROCS tuning is an optimization, not a
		// correctness requirement (cgroup quota detection can fail
		// harmlessly outside a container).
		logging.Default().Warnf("ishmem: automaxprocs: %v", err)
	}

	log := logging.NewLogger(&logging.Config{Level: cfg.LogLevel}).WithPE(myPE)

	// Resolving the configured backend name fails fatally on an
	// unknown transport; the loopback harness then constructs the
	// plugin directly against the shared World rather
	// than through the Factory, since a loopback job's PEs must share
	// one World instance and Factory's signature has no way to thread
	// that through.
	if _, err := runtime.Load(cfg.RuntimeLib); err != nil {
		return nil, Fatal("Init", err)
	}

	plugin, err := runtime.NewLoopbackPE(world, myPE, nPEs)
	if err != nil {
		return nil, Fatal("Init", err)
	}
	if err := plugin.Init(); err != nil {
		return nil, Fatal("Init", err)
	}

	r, err := ring.New(cfg.RingSize)
	if err != nil {
		return nil, Fatal("Init", err)
	}

	tbl := upcall.NewFromPlugin(plugin)

	var mx *metrics.Metrics
	if cfg.EnableMetrics {
		mx = metrics.NewMetrics()
	}

	px := proxy.New(r, tbl, proxy.Config{MwaitBurst: cfg.MwaitBurst, IdleSleep: cfg.IdleSleep, CPU: cfg.ProxyCPU}, log, mx)

	inst := &Instance{
		cfg: cfg, plugin: plugin, ring: r, table: tbl,
		proxy: px, pool: team.NewPool(cfg.TeamsMax), log: log, mx: mx,
		msgs: msgq.New(0),
	}
	// Library-provided upcalls overlay the plugin's native grid before
	// the proxy takes its first poll.
	inst.registerUpcalls()
	px.Start()
	return inst, nil
}

// Finalize drains and stops the proxy, then tears down the PE's heap,
// after a final job-wide barrier.
func (inst *Instance) Finalize() error {
	if err := inst.plugin.Quiet(); err != nil {
		return WrapError("Finalize", err)
	}
	inst.proxy.Stop()
	if err := inst.plugin.Finalize(); err != nil {
		return WrapError("Finalize", err)
	}
	return nil
}

// PE returns this instance's own rank.
func (inst *Instance) PE() int { return inst.plugin.MyPE() }

// NPEs returns the total number of PEs in the job.
func (inst *Instance) NPEs() int { return inst.plugin.NPEs() }

// Ring exposes the PE's request ring to internal/rma, internal/amo,
// and internal/signal's generic operations, which cannot be instance
// methods (Go forbids type parameters on methods).
func (inst *Instance) Ring() *ring.Ring { return inst.ring }

// engine bundles the PE's ring and heap for internal/rma and
// internal/amo's blocking operations: the heap's peer mappings decide,
// per call, between the direct fast path and the ring.
func (inst *Instance) engine() rma.Engine {
	return rma.Engine{Ring: inst.ring, Heap: inst.plugin.Heap()}
}

// Plugin exposes the scale-out transport backend for internal/team and
// internal/collective's generic operations.
func (inst *Instance) Plugin() runtime.Plugin { return inst.plugin }

// Pool returns the instance's team pool, for internal/team.Split.
func (inst *Instance) Pool() *team.Pool { return inst.pool }

// Log returns the instance's logger, for callers (e.g. cmd/ishmem-demo)
// that want to log at the same level as the library itself.
func (inst *Instance) Log() *logging.Logger { return inst.log }

// Metrics returns the instance's metrics, or nil if metrics collection
// was not enabled via Config.EnableMetrics.
func (inst *Instance) Metrics() *metrics.Metrics { return inst.mx }

// Malloc allocates size bytes from the symmetric heap. Every PE must
// call Malloc the same number of times, in the same order, with the
// same sizes.
func (inst *Instance) Malloc(size uint64) (uintptr, error) {
	ptr, err := inst.plugin.Malloc(size)
	if err != nil {
		return 0, WrapError("Malloc", err)
	}
	return ptr, nil
}

// Calloc allocates num*size zeroed bytes from the symmetric heap.
func (inst *Instance) Calloc(num, size uint64) (uintptr, error) {
	ptr, err := inst.plugin.Calloc(num, size)
	if err != nil {
		return 0, WrapError("Calloc", err)
	}
	return ptr, nil
}

// Free releases a symmetric heap allocation.
func (inst *Instance) Free(ptr uintptr) { _ = inst.plugin.Free(ptr) }

// Ptr implements ishmem_ptr: given a pointer into this PE's symmetric
// heap, returns the equivalent directly-dereferenceable pointer into
// pe's heap, or 0 when pe is not mappable from this PE.
func (inst *Instance) Ptr(local uintptr, pe int) uintptr {
	if pe < 0 || pe >= inst.NPEs() {
		return 0
	}
	return inst.plugin.Ptr(local, pe)
}

// Fence orders this PE's prior puts/AMOs to each destination ahead of
// any later ones, without waiting for remote completion the way Quiet
// does. It does not reset the NBI drain counter: fenced operations are
// ordered, not complete.
func (inst *Instance) Fence() error {
	if err := inst.plugin.Quiet(); err != nil {
		return WrapError("Fence", err)
	}
	return nil
}

// Barrier synchronizes every PE in the job.
func (inst *Instance) Barrier() error {
	if err := inst.plugin.Barrier(); err != nil {
		return WrapError("Barrier", err)
	}
	return nil
}

// Quiet blocks until every outstanding nonblocking RMA/AMO this PE
// issued has completed at its target.
func (inst *Instance) Quiet() error {
	atomic.StoreInt64(&inst.nbiOutstanding, 0)
	if err := inst.plugin.Quiet(); err != nil {
		return WrapError("Quiet", err)
	}
	return nil
}

// noteNbi tracks one more in-flight nonblocking RMA/AMO request and
// forces a Quiet once the count reaches Config.NBICount
// (ISHMEM_NBI_COUNT): an application that never calls Quiet itself
// must still bound how many outstanding requests/ring slots/handles it
// accumulates.
func (inst *Instance) noteNbi() {
	if atomic.AddInt64(&inst.nbiOutstanding, 1) < int64(inst.cfg.NBICount) {
		return
	}
	_ = inst.Quiet()
}
