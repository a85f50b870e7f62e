package link

import (
	"time"

	"github.com/wnrf/core/hexfile"
	"github.com/wnrf/core/radio"
)

// SlotState is a pipe slot's position in the Command/OTA state machine.
type SlotState int

const (
	StateNone SlotState = iota
	StateW4BindAck
	StateW4SetupAck
	StateW4WriteAck
	StateW4CommitAck
	StateW4AuditAck
	StateW4ChanAck
	StateW4DevIDAck
	StateW4RFAck
)

// BindReason tags which public operation a slot's BIND preamble serves.
type BindReason int

const (
	ReasonNone BindReason = iota
	ReasonFlash
	ReasonDevID
	ReasonStart
	ReasonRFChan
)

// String renders a BindReason as the label value metrics and logs use.
func (r BindReason) String() string {
	switch r {
	case ReasonFlash:
		return "flash"
	case ReasonDevID:
		return "devid"
	case ReasonStart:
		return "start_channel"
	case ReasonRFChan:
		return "rf_channel"
	default:
		return "none"
	}
}

const maxSlots = 4
const maxRetries = 10
const retryInterval = time.Second

// flashCursor is the OTA-specific scratch carried by a slot bound for
// ReasonFlash: the firmware walk position, the latched audit start address,
// and the running checksum/size accumulated across every record written.
type flashCursor struct {
	reader *hexfile.Reader

	curAddr   uint16
	curData   [32]byte
	curSize   int
	sentBytes int // bytes of curData already WRITE-chunked out

	auditStart   uint16
	auditStarted bool
	sizeBytes    int
	csum16       uint16
}

// Slot is one entry of the four-slot session table.
type Slot struct {
	State   SlotState
	TxAddr  DeviceID
	RxAddr  radio.Address
	Pipe    int
	Reason  BindReason
	Ctx     any
	Nonce   uint16

	WaitTime  time.Time
	WaitCount int

	flash flashCursor

	newDevID     DeviceID
	startChannel uint16 // stored as ch-1
	rfChan       byte
}

func (s *Slot) free() bool { return s.Ctx == nil }

func (s *Slot) reset() {
	*s = Slot{}
}

// slotTable is the fixed-size pool of point-to-point pipes.
type slotTable struct {
	slots [maxSlots]Slot
	nonce uint16
}

func newSlotTable() *slotTable {
	return &slotTable{}
}

// allocate finds a free slot for devID, failing if devID already has one in
// flight (spec.md §8 invariant 3: at most one non-NONE slot per dev_id).
func (t *slotTable) allocate(devID DeviceID, reason BindReason, ctx any) (int, *Slot, error) {
	for i := range t.slots {
		if t.slots[i].State != StateNone && t.slots[i].TxAddr == devID {
			return -1, nil, ErrAlreadyBound
		}
	}
	for i := range t.slots {
		if t.slots[i].free() {
			s := &t.slots[i]
			s.reset()
			s.TxAddr = devID
			s.RxAddr = slotRXAddr(i)
			s.Pipe = i + 2
			s.Reason = reason
			s.Ctx = ctx
			t.nonce++
			s.Nonce = t.nonce
			return i, s, nil
		}
	}
	return -1, nil, ErrNoFreeSlot
}

func (t *slotTable) byIndex(i int) *Slot {
	if i < 0 || i >= maxSlots {
		return nil
	}
	return &t.slots[i]
}

// byDeviceID finds the active slot bound to devID, if any.
func (t *slotTable) byDeviceID(devID DeviceID) (int, *Slot) {
	for i := range t.slots {
		if t.slots[i].State != StateNone && t.slots[i].TxAddr == devID {
			return i, &t.slots[i]
		}
	}
	return -1, nil
}

// anyActive reports whether at least one slot is in use, the signal the
// beacon re-enable policy waits on.
func (t *slotTable) anyActive() bool {
	for i := range t.slots {
		if t.slots[i].State != StateNone {
			return true
		}
	}
	return false
}

// sessionCount returns how many slots are currently occupied.
func sessionCount(t *slotTable) int {
	n := 0
	for i := range t.slots {
		if t.slots[i].State != StateNone {
			n++
		}
	}
	return n
}

// clearContext nulls every slot whose context matches ctx (identity
// comparison), per spec.md §5's cancellation contract: the in-flight write
// still completes but no further callback fires.
func (t *slotTable) clearContext(ctx any) {
	for i := range t.slots {
		if t.slots[i].Ctx == ctx {
			t.slots[i].reset()
		}
	}
}
