package ring

import (
	"sync"
	"testing"

	"github.com/ishmem-go/ishmem/internal/wire"
)

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := New(3); err == nil {
		t.Error("New(3) should fail: 3 is not a power of two")
	}
}

func TestNewDefaultsSize(t *testing.T) {
	r, err := New(0)
	if err != nil {
		t.Fatalf("New(0) failed: %v", err)
	}
	if r.Size() == 0 {
		t.Error("New(0) should fall back to a nonzero default size")
	}
}

func TestPublishPollComplete(t *testing.T) {
	r, err := New(8)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	index, seq := r.Reserve()
	req := wire.Request{Op: wire.OpPut, Type: wire.TypeUint64, DestPE: 1, Nelems: 4}
	r.Publish(index, seq, req)

	got, gotIndex, ok := r.Poll()
	if !ok {
		t.Fatal("Poll did not find the published request")
	}
	if gotIndex != index {
		t.Errorf("Poll index = %d, want %d", gotIndex, index)
	}
	if got.Op != req.Op || got.DestPE != req.DestPE || got.Nelems != req.Nelems {
		t.Errorf("Poll returned %+v, want fields from %+v", got, req)
	}

	r.Complete(index, seq, 0, 99)
	status, ret := r.Wait(index, seq)
	if status != 0 || ret != 99 {
		t.Errorf("Wait() = (%d, %d), want (0, 99)", status, ret)
	}

	r.Free(index)
}

func TestPollEmptyRing(t *testing.T) {
	r, err := New(4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, _, ok := r.Poll(); ok {
		t.Error("Poll on an empty ring should return ok=false")
	}
}

func TestTryWait(t *testing.T) {
	r, err := New(4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	index, seq := r.Reserve()
	r.Publish(index, seq, wire.Request{Op: wire.OpGet})

	if _, _, ok := r.TryWait(index, seq); ok {
		t.Error("TryWait should report not-ready before Complete")
	}

	r.Complete(index, seq, -5, 0)
	status, _, ok := r.TryWait(index, seq)
	if !ok || status != -5 {
		t.Errorf("TryWait() = (%d, ok=%v), want (-5, true)", status, ok)
	}
	r.Free(index)
}

// TestManyProducersOneConsumer exercises the ring under its designed
// concurrency shape: many goroutines reserving and publishing slots,
// drained by a single consumer goroutine, the way many simulated
// device threads share one host proxy.
func TestManyProducersOneConsumer(t *testing.T) {
	r, err := New(16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	const n = 64
	type reservation struct {
		index uint32
		seq   uint16
	}
	done := make(chan reservation, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			index, seq := r.Reserve()
			r.Publish(index, seq, wire.Request{Op: wire.OpPut})
			status, _ := r.Wait(index, seq)
			if status != 0 {
				t.Errorf("unexpected completion status %d", status)
			}
			r.Free(index)
			done <- reservation{index, seq}
		}()
	}

	completed := 0
	for completed < n {
		req, idx, ok := r.Poll()
		if !ok {
			continue
		}
		r.Complete(idx, req.Sequence, 0, 0)
		completed++
	}

	wg.Wait()
	close(done)
	if len(done) != n {
		t.Errorf("completed %d reservations, want %d", len(done), n)
	}
}
