package link

import (
	"time"

	"github.com/wnrf/core/hexfile"
	"github.com/wnrf/core/internal/metrics"
	"github.com/wnrf/core/radio"
)

// BringUpConfig is the Data Model's "Configuration (effective at radio
// bring-up)": data rate, logical channel, and universe size. It is supplied
// once to NewBridge and never mutated while a session exists.
type BringUpConfig struct {
	DataRate    radio.DataRate
	Channel     LogicalChannel
	UniverseSize int // 32 (legacy) or 512 (universe)
}

func (c BringUpConfig) mode() Mode {
	if c.UniverseSize > 32 {
		return ModeUniverse
	}
	return ModeLegacy
}

// Bridge is the Radio Link Core: the Broadcast Pacer, the Session Table,
// the Command/OTA State Machine, and the Discovery & Beacon component,
// wired around one owned Radio and Clock capability. It is single-threaded
// and cooperatively scheduled — callers drive it via Show and Tick/CheckRX
// from their own event loop, per spec.md §5.
type Bridge struct {
	radio    Radio
	clock    Clock
	observer Observer

	mode       Mode
	pacer      *pacer
	slots      *slotTable
	beacon     beaconState
	admin      bool
	metrics    *metrics.Metrics
	bootloader bootloaderGate
}

// NewBridge configures the radio for bring-up and returns a ready Bridge.
func NewBridge(r Radio, clock Clock, cfg BringUpConfig, observer Observer) (*Bridge, error) {
	mode := cfg.mode()

	rc := radio.RadioConfig{
		ChannelNumber: cfg.Channel.PhysicalChannel(),
		DataRate:      cfg.DataRate,
		CRCLength:     radio.CRCLength16,
	}
	if mode == ModeLegacy {
		rc.AddressWidth = 5
		rc.RxAddr = LegacyAddr
	} else {
		rc.AddressWidth = 3
		rc.RxAddr = ControlBase
	}
	if err := r.Configure(rc); err != nil {
		return nil, err
	}
	// Pipe 1 is the shared control/beacon pipe regardless of mode (spec.md
	// §4.2): Configure's RxAddr above only sets the legacy-mode broadcast
	// bring-up, so rebind pipe 1 to the control address explicitly.
	if err := r.OpenRX(1, ControlBase); err != nil {
		return nil, err
	}

	if observer == nil {
		observer = NopObserver{}
	}

	b := &Bridge{
		radio:    r,
		clock:    clock,
		observer: observer,
		mode:     mode,
		pacer:    newPacer(mode),
		slots:    newSlotTable(),
	}
	return b, nil
}

// AttachMetrics wires a Prometheus collector set into the bridge. Safe to
// call once, before the bridge starts driving traffic; nil disables
// instrumentation (the default).
func (b *Bridge) AttachMetrics(m *metrics.Metrics) {
	b.metrics = m
}

// EnableAdmin suspends the broadcast pacer and arms the beacon/P2P surface.
func (b *Bridge) EnableAdmin() {
	b.admin = true
	b.beacon.active = true
	b.beacon.lastBeacon = time.Time{}
}

// DisableAdmin returns the radio to broadcast-only operation. Any in-flight
// P2P sessions are left to complete or time out on their own.
func (b *Bridge) DisableAdmin() {
	b.admin = false
	b.beacon.active = false
}

// CanRefresh reports whether the Broadcast Pacer is due to emit its next
// frame.
func (b *Bridge) CanRefresh() bool {
	return b.pacer.canRefresh(b.clock.Now())
}

// SetChannel writes one DMX channel value into the Broadcast Pacer's
// scratch buffer.
func (b *Bridge) SetChannel(index int, value byte) {
	b.pacer.universe.SetChannel(index, value)
}

// Show emits the next broadcast frame if due and the radio is not claimed
// by an admin session (spec.md §4.3's invariant: show() must never execute
// while any pipe is in a non-NONE state).
func (b *Bridge) Show() bool {
	if b.admin || b.slots.anyActive() {
		return false
	}
	if !b.pacer.canRefresh(b.clock.Now()) {
		if b.metrics != nil {
			b.metrics.BroadcastMissed.Inc()
		}
		return false
	}
	addr := BroadcastAddr
	if b.mode == ModeLegacy {
		addr = LegacyAddr
	}
	ok := b.pacer.show(b.radio, addr, b.clock.Now())
	if ok && b.metrics != nil {
		b.metrics.FramesSent.WithLabelValues(modeLabel(b.mode)).Inc()
	}
	return ok
}

func modeLabel(m Mode) string {
	if m == ModeLegacy {
		return "legacy"
	}
	return "universe"
}

// Tick drives beacons, timeouts, and retries. Callers must invoke it at
// least every 100ms, per spec.md §5.
func (b *Bridge) Tick() {
	now := b.clock.Now()
	b.checkTimeouts(now)
	if b.admin {
		b.maybeSendBeacon(now)
		b.maybePush(now)
	}
}

// CheckRX drains any queued radio frames and dispatches them.
func (b *Bridge) CheckRX() {
	for {
		frame, pipe, ok := b.radio.ReadFrame()
		if !ok {
			return
		}
		b.dispatch(pipe, frame)
	}
}

// ClearContext nulls every slot whose context matches ctx. A cancelled slot
// still completes its in-flight radio write but delivers no further
// callback, per spec.md §5.
func (b *Bridge) ClearContext(ctx any) {
	b.slots.clearContext(ctx)
}

// Flash begins an OTA session against file, bound for devID. It returns the
// allocated slot index, or a negative result code if no slot is free or the
// file handle is unusable. The outcome arrives via Observer.OnFlash.
func (b *Bridge) Flash(devID DeviceID, file hexfile.FirmwareFile, ctx any) int {
	if file == nil {
		return ResultFileError
	}
	if b.bootloaderTooOld(devID) {
		return ResultFileError
	}
	idx, slot, err := b.slots.allocate(devID, ReasonFlash, ctx)
	if err != nil {
		return ResultFailed
	}
	slot.flash.reader = hexfile.NewReader(file)
	b.sendBind(slot)
	return idx
}

// SetStartChannel begins a start-channel update session. ch is 1-indexed
// per spec.md (stored internally as ch-1).
func (b *Bridge) SetStartChannel(devID DeviceID, ch int, ctx any) int {
	if ch < 1 || ch > 512 {
		return ResultInvalidChannel
	}
	idx, slot, err := b.slots.allocate(devID, ReasonStart, ctx)
	if err != nil {
		return ResultFailed
	}
	slot.startChannel = uint16(ch - 1)
	b.sendBind(slot)
	return idx
}

// SetDeviceID begins a device-id update session.
func (b *Bridge) SetDeviceID(devID, newDevID DeviceID, ctx any) int {
	idx, slot, err := b.slots.allocate(devID, ReasonDevID, ctx)
	if err != nil {
		return ResultFailed
	}
	slot.newDevID = newDevID
	b.sendBind(slot)
	return idx
}

// SetRFChannel begins an RF-channel update session.
func (b *Bridge) SetRFChannel(devID DeviceID, rfChan byte, ctx any) int {
	idx, slot, err := b.slots.allocate(devID, ReasonRFChan, ctx)
	if err != nil {
		return ResultFailed
	}
	slot.rfChan = rfChan
	b.sendBind(slot)
	return idx
}
