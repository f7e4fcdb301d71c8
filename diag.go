package ishmem

import (
	"fmt"
	"time"

	"github.com/ishmem-go/ishmem/internal/msgq"
	"github.com/ishmem-go/ishmem/internal/rma"
	"github.com/ishmem-go/ishmem/internal/wire"
)

// Severity tags a Print message for the host-side formatter.
type Severity = msgq.Severity

const (
	SevDebug = msgq.SevDebug
	SevWarn  = msgq.SevWarn
	SevError = msgq.SevError
)

// registerUpcalls installs the library-provided handlers the plugin's
// native grid has no entry for: the diagnostic ops (NOP, TIMESTAMP,
// PRINT, DEBUG_TEST) and the ordering/sync ops (BARRIER, QUIET, FENCE,
// TEAM_SYNC), which re-enter the plugin from the proxy side.
func (inst *Instance) registerUpcalls() {
	tbl := inst.table

	tbl.Override(wire.OpNop, wire.TypeNone, func(req wire.Request) (int32, uint64) {
		return 0, 0
	})
	tbl.Override(wire.OpTimestamp, wire.TypeNone, func(req wire.Request) (int32, uint64) {
		return 0, uint64(time.Now().UnixNano())
	})
	tbl.Override(wire.OpDebugTest, wire.TypeNone, func(req wire.Request) (int32, uint64) {
		// echo the operand back: a ring round-trip self test
		return 0, req.BsizeOrValue
	})
	tbl.Override(wire.OpPrint, wire.TypeNone, func(req wire.Request) (int32, uint64) {
		rec := inst.msgs.Take(uint32(req.Nelems))
		if rec == nil {
			return -1, 0
		}
		// the instance logger already carries the PE tag
		switch rec.Severity {
		case msgq.SevError:
			inst.log.Errorf("%s", rec.Text)
		case msgq.SevWarn:
			inst.log.Warnf("%s", rec.Text)
		default:
			inst.log.Debugf("%s", rec.Text)
		}
		return 0, 0
	})

	tbl.Override(wire.OpBarrier, wire.TypeNone, func(req wire.Request) (int32, uint64) {
		if err := inst.plugin.Barrier(); err != nil {
			return -1, 0
		}
		return 0, 0
	})
	tbl.Override(wire.OpQuiet, wire.TypeNone, func(req wire.Request) (int32, uint64) {
		if err := inst.plugin.Quiet(); err != nil {
			return -1, 0
		}
		return 0, 0
	})
	// Fence is weaker than Quiet (same-PE ordering, not completion) but
	// the plugin's Quiet satisfies both; the distinction only matters to
	// a transport with out-of-order delivery.
	tbl.Override(wire.OpFence, wire.TypeNone, func(req wire.Request) (int32, uint64) {
		if err := inst.plugin.Quiet(); err != nil {
			return -1, 0
		}
		return 0, 0
	})
	tbl.Override(wire.OpTeamSync, wire.TypeNone, func(req wire.Request) (int32, uint64) {
		if err := inst.plugin.TeamSync(int(req.Team())); err != nil {
			return -1, 0
		}
		return 0, 0
	})
}

// Nop posts a no-op request and waits for its completion: a ring
// round-trip with no side effects, used to probe proxy liveness.
func (inst *Instance) Nop() error {
	h := rma.Post(inst.ring, wire.Request{Op: wire.OpNop, Type: wire.TypeNone})
	if status, _ := h.Wait(inst.ring); status != 0 {
		return NewError("Nop", ErrRuntimeBackend, fmt.Sprintf("status=%d", status))
	}
	return nil
}

// Timestamp round-trips through the proxy and returns the host's
// monotonic clock in nanoseconds, for correlating device and host
// timelines.
func (inst *Instance) Timestamp() (int64, error) {
	h := rma.Post(inst.ring, wire.Request{Op: wire.OpTimestamp, Type: wire.TypeNone})
	status, ret := h.Wait(inst.ring)
	if status != 0 {
		return 0, NewError("Timestamp", ErrRuntimeBackend, fmt.Sprintf("status=%d", status))
	}
	return int64(ret), nil
}

// TimestampNbi is Timestamp's nonblocking form; Handle.Wait's ret is
// the timestamp.
func (inst *Instance) TimestampNbi() Handle {
	h := rma.Post(inst.ring, wire.Request{Op: wire.OpTimestamp, Type: wire.TypeNone})
	inst.noteNbi()
	return h
}

// Print stages msg in the message queue and posts a PRINT request; the
// proxy formats and writes it to the host log with a severity tag.
func (inst *Instance) Print(sev Severity, msg string) error {
	idx := inst.msgs.Post(sev, msg)
	h := rma.Post(inst.ring, wire.Request{Op: wire.OpPrint, Type: wire.TypeNone, Nelems: uint64(idx)})
	if status, _ := h.Wait(inst.ring); status != 0 {
		return NewError("Print", ErrRuntimeBackend, fmt.Sprintf("status=%d", status))
	}
	return nil
}

// DebugTest round-trips value through the ring and proxy unchanged,
// verifying the request/completion handshake end to end.
func (inst *Instance) DebugTest(value uint64) (uint64, error) {
	h := rma.Post(inst.ring, wire.Request{Op: wire.OpDebugTest, Type: wire.TypeNone, BsizeOrValue: value})
	status, ret := h.Wait(inst.ring)
	if status != 0 {
		return 0, NewError("DebugTest", ErrRuntimeBackend, fmt.Sprintf("status=%d", status))
	}
	return ret, nil
}
