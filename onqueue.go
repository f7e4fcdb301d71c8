package ishmem

import (
	"sync"

	"github.com/ishmem-go/ishmem/internal/onqueue"
	"github.com/ishmem-go/ishmem/internal/rma"
)

// Event is the `_on_queue` adapter's return value: a handle to one
// enqueued operation's completion, usable as a later `_on_queue`
// call's explicit dependency.
type Event struct {
	done chan struct{}
}

// Wait blocks until e's operation has completed. The zero Event is
// already complete.
func (e Event) Wait() {
	if e.done != nil {
		<-e.done
	}
}

// OnQueueMap is the per-queue event map behind the `_on_queue` forms:
// it remembers the most recently enqueued event for each Queue so a new
// `_on_queue` call is automatically ordered after everything
// previously submitted to that queue, without the caller re-threading
// every prior event by hand.
type OnQueueMap struct {
	mu   sync.Mutex
	last map[*onqueue.Queue]Event
}

// NewOnQueueMap creates an empty per-queue event map. One Instance
// typically owns one OnQueueMap.
func NewOnQueueMap() *OnQueueMap {
	return &OnQueueMap{last: map[*onqueue.Queue]Event{}}
}

// Submit runs fn ordered after q's previously submitted event and
// every explicit dep, then fences q (the `_on_queue` adapter's
// ordering guarantee — see internal/onqueue), and returns a new Event
// chained after this call for a future `_on_queue` submission to
// depend on. fn runs to completion before Submit returns, matching
// every other blocking form in this package; the returned Event is
// already signaled, so callers that don't need cross-queue dependency
// tracking can ignore it entirely.
func (m *OnQueueMap) Submit(q *onqueue.Queue, fn func() error, deps ...Event) (Event, error) {
	m.mu.Lock()
	prior, hadPrior := m.last[q]
	m.mu.Unlock()

	if hadPrior {
		prior.Wait()
	}
	for _, d := range deps {
		d.Wait()
	}

	err := fn()
	if ferr := q.Fence(); err == nil {
		err = ferr
	}

	ev := Event{done: make(chan struct{})}
	close(ev.done)

	m.mu.Lock()
	m.last[q] = ev
	m.mu.Unlock()

	return ev, wrapErr("on_queue", err)
}

// PutOnQueue is Put's `_on_queue` form: it runs the put and fences it
// against q's previously enqueued work via m.
func PutOnQueue[T rma.Number](inst *Instance, m *OnQueueMap, q *onqueue.Queue, destPE int, dst, src uintptr, nelems uint64, deps ...Event) (Event, error) {
	return m.Submit(q, func() error { return Put[T](inst, destPE, dst, src, nelems) }, deps...)
}

// GetOnQueue is Get's `_on_queue` form.
func GetOnQueue[T rma.Number](inst *Instance, m *OnQueueMap, q *onqueue.Queue, destPE int, dst, src uintptr, nelems uint64, deps ...Event) (Event, error) {
	return m.Submit(q, func() error { return Get[T](inst, destPE, dst, src, nelems) }, deps...)
}

// ReduceOnQueue is Reduce's `_on_queue` form.
func ReduceOnQueue[T rma.Number](inst *Instance, m *OnQueueMap, q *onqueue.Queue, t Team, op ReduceOp, dst, src uintptr, nelems uint64, deps ...Event) (Event, error) {
	return m.Submit(q, func() error { return Reduce[T](inst, t, op, dst, src, nelems) }, deps...)
}

// BarrierAllOnQueue is BarrierAll's `_on_queue` form.
func BarrierAllOnQueue(inst *Instance, m *OnQueueMap, q *onqueue.Queue, deps ...Event) (Event, error) {
	return m.Submit(q, inst.BarrierAll, deps...)
}
