// Package ring implements the lock-free request ring: a power-of-two
// circular array of Requests, written by (potentially many)
// device-side producers and drained by a single host proxy consumer,
// with a matching Completion slot per Request slot.
//
// This plays the role of a ublk-style descriptor ring: there, the
// kernel writes UblksrvIODesc records into a mmap'd array and the
// userspace runner polls tag state; here, a simulated device thread
// writes a Request and the host Proxy polls slot sequence numbers. A
// per-tag mutex and state machine would work but can't support many
// concurrent producers reserving distinct slots without a lock, so a
// sequence-number handshake replaces it.
package ring

import (
	"fmt"
	"sync/atomic"

	"github.com/ishmem-go/ishmem/internal/constants"
	"github.com/ishmem-go/ishmem/internal/wire"
)

// Ring is a single-consumer, multi-producer request ring.
type Ring struct {
	size uint32
	mask uint32

	producerNext atomic.Uint32 // next reservation index, monotonically increasing
	consumerNext uint32        // owned solely by the one proxy consumer

	slots       []slot
	completions []atomic.Pointer[wire.Completion]
}

type slot struct {
	sequence atomic.Uint32 // low 16 bits are the meaningful sequence
	req      wire.Request
}

// New creates a Ring with the given power-of-two size. Size defaults to
// constants.DefaultRingSize when 0.
func New(size uint32) (*Ring, error) {
	if size == 0 {
		size = constants.DefaultRingSize
	}
	if size&(size-1) != 0 {
		return nil, fmt.Errorf("ring: size %d is not a power of two", size)
	}
	r := &Ring{
		size:        size,
		mask:        size - 1,
		slots:       make([]slot, size),
		completions: make([]atomic.Pointer[wire.Completion], size),
	}
	for i := range r.slots {
		r.slots[i].sequence.Store(notReady)
	}
	return r, nil
}

// notReady is a sequence value no real request ever carries (sequence
// is derived from a 16-bit reservation counter); used to mark an
// un-published slot so the consumer never spuriously matches slot 0.
const notReady = 1 << 17

// Reserve blocks (busy-spinning) until a ring slot is free and returns
// its index and the sequence number the caller must publish. A slot is
// free once the previous occupant's completion has been consumed via
// Free.
func (r *Ring) Reserve() (index uint32, sequence uint16) {
	idx := r.producerNext.Add(1) - 1
	slotIndex := idx & r.mask
	seq := uint16(idx)
	for r.completions[slotIndex].Load() != nil {
		// previous occupant hasn't been freed by its producer yet
		spinWait()
	}
	return slotIndex, seq
}

// Publish writes req into the reserved slot and makes it visible to the
// consumer by storing the sequence number last, after a store fence
// (a system-scope release before the slot is published).
func (r *Ring) Publish(index uint32, sequence uint16, req wire.Request) {
	req.Sequence = sequence
	r.slots[index].req = req
	Sfence()
	r.slots[index].sequence.Store(uint32(sequence))
}

// Poll checks whether the next expected slot has a published request.
// On a match it issues a full fence before reading the rest of the
// request, copies the request out, and advances the consumer cursor.
// It does not itself write a completion; callers dispatch the request
// and then call Complete.
func (r *Ring) Poll() (req wire.Request, index uint32, ok bool) {
	slotIndex := r.consumerNext & r.mask
	want := uint32(uint16(r.consumerNext))
	got := r.slots[slotIndex].sequence.Load()
	if got != want {
		return wire.Request{}, 0, false
	}
	Mfence()
	req = r.slots[slotIndex].req
	r.consumerNext++
	return req, slotIndex, true
}

// Complete publishes the result of processing the request at index as
// a single atomic record, so a spinning producer never observes a
// half-written completion.
func (r *Ring) Complete(index uint32, sequence uint16, status int32, ret uint64) {
	Sfence()
	r.completions[index].Store(&wire.Completion{
		Sequence: sequence,
		Lock:     1,
		Status:   status,
		Ret:      ret,
	})
}

// Wait blocks until the completion at index carrying sequence is
// published, returning its status and return value. It does not free
// the slot; call Free once the caller is done with the result.
func (r *Ring) Wait(index uint32, sequence uint16) (status int32, ret uint64) {
	for {
		c := r.completions[index].Load()
		if c != nil && c.Sequence == sequence {
			return c.Status, c.Ret
		}
		spinWait()
	}
}

// TryWait is the non-blocking form of Wait, used by NBI completion
// polling (Quiet/fence).
func (r *Ring) TryWait(index uint32, sequence uint16) (status int32, ret uint64, ok bool) {
	c := r.completions[index].Load()
	if c != nil && c.Sequence == sequence {
		return c.Status, c.Ret, true
	}
	return 0, 0, false
}

// Free clears the completion slot, marking it reusable by future
// producers (the device thread writing lock=0).
func (r *Ring) Free(index uint32) {
	r.completions[index].Store(nil)
}

// Size returns the number of slots in the ring.
func (r *Ring) Size() uint32 { return r.size }

// Depth reports how many reserved slots the consumer has not yet
// polled. Only meaningful from the consumer goroutine (it reads the
// unsynchronized consumer cursor); the proxy samples it for the queue
// depth gauge.
func (r *Ring) Depth() uint32 { return r.producerNext.Load() - r.consumerNext }
