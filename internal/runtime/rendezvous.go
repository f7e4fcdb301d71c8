package runtime

import "sync"

// rendezvous is a reusable, generation-counted barrier that lets n
// participants each hand in a byte-slice contribution and get back the
// full set once everyone has arrived. It backs every collective the
// loopback plugin implements (barrier, sync, broadcast, fcollect,
// collect, reduce) the same way a single primitive backs ublk's queue
// runner state machine: one small mechanism, many call sites.
type rendezvous struct {
	mu         sync.Mutex
	cond       *sync.Cond
	n          int
	generation uint64
	arrived    int
	contribs   [][]byte
	lastResult [][]byte
}

func newRendezvous(n int) *rendezvous {
	rv := &rendezvous{n: n, contribs: make([][]byte, n)}
	rv.cond = sync.NewCond(&rv.mu)
	return rv
}

// Arrive contributes data at slot `who` (0-indexed within the team) and
// blocks until all n participants have arrived, then returns every
// participant's contribution in slot order.
func (rv *rendezvous) Arrive(who int, data []byte) [][]byte {
	rv.mu.Lock()
	defer rv.mu.Unlock()

	gen := rv.generation
	rv.contribs[who] = data
	rv.arrived++
	if rv.arrived == rv.n {
		out := make([][]byte, rv.n)
		copy(out, rv.contribs)
		rv.lastResult = out
		rv.contribs = make([][]byte, rv.n)
		rv.arrived = 0
		rv.generation++
		rv.cond.Broadcast()
		return out
	}
	for rv.generation == gen {
		rv.cond.Wait()
	}
	return rv.lastResult
}
