package runtime

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ishmem-go/ishmem/internal/heap"
)

// Reserved team IDs: WORLD, SHARED, NODE, and INVALID = -1.
const (
	TeamWorld   = 0
	TeamShared  = 1
	TeamNode    = 2
	TeamInvalid = -1

	firstDynamicTeam = 3
)

// World is the shared state every loopback Plugin instance (one per
// simulated PE, all in the same OS process) reads and mutates. It
// plays the role a real scale-out transport provides "for free" (a
// process group with a known peer list);
// here it is simulated with goroutines sharing memory, which is also
// why every PE is unconditionally intra-node under loopback.
type World struct {
	n int

	mu      sync.Mutex
	heaps   []*heap.Heap
	rvs     map[int]*rendezvous
	members map[int][]int // team -> ordered world PEs, index = team-local rank

	// creating tracks in-flight collective team splits: every member of
	// a split calls newTeam with the same member list and must get the
	// same team ID back, so the first arrival allocates and the rest
	// join until the membership is fully subscribed.
	creating map[string]*pendingTeam

	nextTeam atomic.Int32
}

type pendingTeam struct {
	id     int
	joined int
}

// NewWorld creates shared state for an n-PE loopback job.
func NewWorld(n int) *World {
	world := make([]int, n)
	for i := range world {
		world[i] = i
	}
	w := &World{
		n:     n,
		heaps: make([]*heap.Heap, n),
		rvs:   map[int]*rendezvous{TeamWorld: newRendezvous(n), TeamShared: newRendezvous(n), TeamNode: newRendezvous(n)},
		members: map[int][]int{
			TeamWorld:  world,
			TeamShared: world,
			TeamNode:   world,
		},
		creating: map[string]*pendingTeam{},
	}
	w.nextTeam.Store(firstDynamicTeam)
	return w
}

// BindHeap registers pe's symmetric heap and maps it against every
// previously-bound peer. Every PE is mappable under loopback, so
// SHARED and NODE end up equal to WORLD.
func (w *World) BindHeap(pe int, h *heap.Heap) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.heaps[pe] = h
	for other, oh := range w.heaps {
		if oh == nil || other == pe {
			continue
		}
		h.MapPeer(other, oh.Base())
		oh.MapPeer(pe, h.Base())
	}
}

// Heap returns pe's symmetric heap.
func (w *World) Heap(pe int) *heap.Heap {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.heaps[pe]
}

// CopyBytes copies n bytes from srcPE's heap at srcOff to dstPE's heap
// at dstOff. This stands in for the scale-out transport's point-to-
// point transfer in the proxy's native RMA upcalls; under
// loopback every PE shares the process's address space so it is a
// direct memcpy.
func (w *World) CopyBytes(dstPE int, dstOff uint64, srcPE int, srcOff uint64, n uint64) {
	dst := w.Heap(dstPE)
	src := w.Heap(srcPE)
	copy(dst.AtOffset(dstOff, n), src.AtOffset(srcOff, n))
}

// rendezvousFor returns the rendezvous for an already-created team.
func (w *World) rendezvousFor(team int) (*rendezvous, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rv, ok := w.rvs[team]
	return rv, ok
}

// teamRank returns pe's 0-indexed rank within team, or -1 if pe is not
// a member.
func (w *World) teamRank(team, pe int) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, p := range w.members[team] {
		if p == pe {
			return i
		}
	}
	return -1
}

// teamSize returns the number of PEs in team.
func (w *World) teamSize(team int) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.members[team])
}

// teamMember returns the world PE at team-local rank i.
func (w *World) teamMember(team, i int) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := w.members[team]
	if i < 0 || i >= len(m) {
		return TeamInvalid
	}
	return m[i]
}

// newTeam resolves one member's arrival at a collective team split:
// the first caller with a given membership (world PE numbers, in
// team-local rank order) allocates the team ID and rendezvous, and
// every matching caller until the membership is fully subscribed joins
// the same team. Once all members have arrived the pending entry is
// retired, so a later split with identical membership creates a
// distinct team.
func (w *World) newTeam(members []int) int {
	key := fmt.Sprint(members)
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.creating[key]
	if p == nil {
		id := int(w.nextTeam.Add(1)) - 1
		w.members[id] = members
		w.rvs[id] = newRendezvous(len(members))
		p = &pendingTeam{id: id}
		w.creating[key] = p
	}
	p.joined++
	if p.joined == len(members) {
		delete(w.creating, key)
	}
	return p.id
}

func (w *World) destroyTeam(team int) error {
	if team < firstDynamicTeam {
		return fmt.Errorf("runtime: cannot destroy predefined team %d", team)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.rvs, team)
	delete(w.members, team)
	return nil
}
