// Package proxy implements the host proxy thread that services
// Requests a simulated device posts to a ring: one goroutine, pinned
// to an OS thread and (best-effort) to a CPU, that polls a ring in a
// tight loop, dispatches through an upcall table, and writes back a
// Completion — burst-polling before yielding the CPU the same way an
// io_uring loop batches SQEs before a single flush.
package proxy

import (
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ishmem-go/ishmem/internal/constants"
	"github.com/ishmem-go/ishmem/internal/logging"
	"github.com/ishmem-go/ishmem/internal/metrics"
	"github.com/ishmem-go/ishmem/internal/ring"
	"github.com/ishmem-go/ishmem/internal/upcall"
	"github.com/ishmem-go/ishmem/internal/wire"
)

// Config tunes a Proxy's idle policy.
type Config struct {
	// MwaitBurst is how many consecutive empty polls the proxy spins
	// through before sleeping (ISHMEM_MWAIT_BURST).
	MwaitBurst int
	// IdleSleep is how long the proxy parks after MwaitBurst empty polls.
	IdleSleep time.Duration
	// CPU pins the proxy goroutine's backing OS thread to this CPU, or
	// -1 to leave affinity unset (ISHMEM_PROXY_CPU env).
	CPU int
}

// DefaultConfig returns the proxy's default idle policy.
func DefaultConfig() Config {
	return Config{
		MwaitBurst: constants.DefaultMWaitBurst,
		IdleSleep:  constants.ProxyIdleSleep,
		CPU:        -1,
	}
}

// Proxy drains one Ring against one upcall.Table.
type Proxy struct {
	cfg   Config
	r     *ring.Ring
	table *upcall.Table
	log   *logging.Logger
	mx    *metrics.Metrics // nil when metrics collection is disabled

	stop chan struct{}
	done chan struct{}

	startOnce sync.Once
}

// New creates a Proxy for r, dispatching through table. mx may be nil
// to skip metrics collection.
func New(r *ring.Ring, table *upcall.Table, cfg Config, log *logging.Logger, mx *metrics.Metrics) *Proxy {
	if log == nil {
		log = logging.Default()
	}
	return &Proxy{
		cfg:   cfg,
		r:     r,
		table: table,
		log:   log.WithScope("proxy"),
		mx:    mx,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the proxy loop in its own goroutine. Calling Start
// more than once is a no-op; the loop runs until Stop.
func (p *Proxy) Start() {
	p.startOnce.Do(func() {
		go p.loop()
	})
}

// Stop signals the proxy loop to exit and waits for it to finish.
func (p *Proxy) Stop() {
	close(p.stop)
	<-p.done
}

// loop pins its OS thread (runtime.LockOSThread, matching ioLoop) so
// CPU affinity, once set, sticks for the goroutine's lifetime.
func (p *Proxy) loop() {
	defer close(p.done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if p.cfg.CPU >= 0 {
		p.setAffinity(p.cfg.CPU)
	}

	idle := 0
	for {
		select {
		case <-p.stop:
			return
		default:
		}

		req, index, ok := p.r.Poll()
		if !ok {
			idle++
			if idle >= p.cfg.MwaitBurst {
				time.Sleep(p.cfg.IdleSleep)
				idle = 0
			} else {
				runtime.Gosched()
			}
			continue
		}
		idle = 0
		p.dispatch(req, index)
	}
}

func (p *Proxy) dispatch(req wire.Request, index uint32) {
	fn, ok := p.table.Lookup(req.Op, req.Type)
	if !ok {
		p.log.Errorf("no handler for op=%s type=%s", req.Op, req.Type)
		p.r.Complete(index, req.Sequence, -1, 0)
		if p.mx != nil {
			p.mx.Errors.WithLabelValues(req.Op.String()).Inc()
		}
		return
	}
	start := time.Now()
	status, ret := fn(req)
	// record before Complete: a waiter unblocks the moment the
	// completion is published and may read the counters immediately
	if p.mx != nil {
		op := req.Op.String()
		p.mx.Ops.WithLabelValues(op, req.Type.String()).Inc()
		p.mx.Latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		p.mx.QueueDepth.Set(float64(p.r.Depth()))
		if status != 0 {
			p.mx.Errors.WithLabelValues(op).Inc()
		}
		if esz := wire.TypeSize(req.Type); esz > 0 {
			switch req.Op {
			case wire.OpPut, wire.OpGet, wire.OpPutNbi, wire.OpGetNbi,
				wire.OpIPut, wire.OpIGet, wire.OpPutSignal:
				p.mx.Bytes.WithLabelValues(op).Add(float64(req.Nelems * uint64(esz)))
			case wire.OpIBPut, wire.OpIBGet:
				p.mx.Bytes.WithLabelValues(op).Add(float64(req.Nelems * req.BsizeOrValue * uint64(esz)))
			}
		}
	}
	p.r.Complete(index, req.Sequence, status, ret)
}

// setAffinity is best-effort: a failure (e.g. under a container with a
// restricted cpuset, or a non-Linux CI sandbox) is logged, not fatal,
// matching ioLoop's own SchedSetaffinity handling.
func (p *Proxy) setAffinity(cpu int) {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		p.log.Warnf("SchedSetaffinity(cpu=%d): %v", cpu, err)
	}
}
