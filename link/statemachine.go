package link

import (
	"time"
)

// This file is the Command/OTA State Machine: per-slot transmit helpers
// (send<Step>) paired with per-slot reply handlers (on<Step>Ack), driven by
// Bridge.Tick (retry/timeout) and Bridge.CheckRX (reply dispatch).

// transmit sends frame on the slot's bound address with P2P auto-ack
// semantics (enabled on pipe 0 for the duration of the write, restored
// after — the scoped-acquisition design note in spec.md §9), then stamps
// the slot's retry clock.
func (b *Bridge) transmit(slot *Slot, frame [32]byte) bool {
	b.radio.StopListening()
	b.radio.OpenTX(slot.TxAddr.Address())
	ok := b.radio.WriteFrame(frame, false)
	b.radio.StartListening()
	slot.WaitTime = b.clock.Now()
	return ok
}

// transmitBind broadcasts the slot's BIND request on the control address
// (no auto-ack), then stamps the slot's retry clock.
func (b *Bridge) transmitBind(slot *Slot) {
	b.radio.StopListening()
	b.radio.OpenTX(ControlBase)
	b.radio.WriteFrame(encodeBind(slot.TxAddr, slot.RxAddr, slot.Nonce), true)
	b.radio.StartListening()
	slot.WaitTime = b.clock.Now()
}

func (b *Bridge) sendBind(slot *Slot) {
	slot.State = StateW4BindAck
	// The device is told to reply on slot.RxAddr; the pipe must actually be
	// listening there before BIND goes out, or every ack in the exchange is
	// unreceivable.
	b.radio.OpenRX(slot.Pipe, slot.RxAddr)
	b.transmitBind(slot)
	// BIND suspends the broadcast pacer's beacon emission until every slot
	// returns to NONE, per spec.md §4.5.
	b.beacon.active = false
	if b.metrics != nil {
		b.metrics.SessionsActive.Set(float64(sessionCount(b.slots)))
	}
}

func (b *Bridge) sendSetup(slot *Slot) {
	slot.State = StateW4SetupAck
	b.transmit(slot, encodeSetup(slot.flash.curAddr))
}

func (b *Bridge) sendWriteChunk(slot *Slot) {
	slot.State = StateW4WriteAck
	end := slot.flash.sentBytes + universePayloadPer
	if end > slot.flash.curSize {
		end = slot.flash.curSize
	}
	chunk := slot.flash.curData[slot.flash.sentBytes:end]
	b.transmit(slot, encodeWriteChunk(chunk))
}

func (b *Bridge) sendCommit(slot *Slot) {
	slot.State = StateW4CommitAck
	data := slot.flash.curData[:slot.flash.curSize]
	var csum8 byte
	for _, v := range data {
		csum8 += v
	}
	var lastWord uint16
	if len(data) >= 2 {
		lastWord = le16(data[len(data)-1], data[len(data)-2])
	} else if len(data) == 1 {
		lastWord = uint16(data[0])
	}
	b.transmit(slot, encodeCommit(csum8, lastWord))
}

func (b *Bridge) sendAudit(slot *Slot) {
	slot.State = StateW4AuditAck
	sizeWords := uint16(slot.flash.sizeBytes / 2)
	b.transmit(slot, encodeAudit(slot.flash.auditStart, sizeWords, slot.flash.csum16))
}

func (b *Bridge) sendReset(slot *Slot) {
	b.radio.StopListening()
	b.radio.OpenTX(slot.TxAddr.Address())
	b.radio.WriteFrame(encodeReset(), true)
	b.radio.StartListening()
}

func (b *Bridge) sendSetStartChannel(slot *Slot) {
	slot.State = StateW4ChanAck
	b.transmit(slot, encodeSetStartChannel(slot.startChannel))
}

func (b *Bridge) sendSetDevID(slot *Slot) {
	slot.State = StateW4DevIDAck
	b.transmit(slot, encodeSetDevID(slot.newDevID))
}

func (b *Bridge) sendSetRFChannel(slot *Slot) {
	slot.State = StateW4RFAck
	b.transmit(slot, encodeSetRFChannel(slot.rfChan))
}

// advanceFlash reads the next HEX record into the slot's cursor and starts
// the SETUP step for it, or moves straight to AUDIT on EOF/empty record
// (spec.md §4.5's "size 0 transitions directly to AUDIT" edge case).
func (b *Bridge) advanceFlash(slot *Slot) {
	rec, err := slot.flash.reader.ReadRecord()
	if err != nil || rec.Size == 0 {
		b.sendAudit(slot)
		return
	}
	slot.flash.curAddr = rec.Addr
	slot.flash.curData = rec.Data
	slot.flash.curSize = rec.Size
	slot.flash.sentBytes = 0
	if !slot.flash.auditStarted {
		slot.flash.auditStart = rec.Addr
		slot.flash.auditStarted = true
	}
	b.sendSetup(slot)
}

// accumulateChecksum folds one record's bytes into the running AUDIT
// checksum/size total: csum16 -= word_le(...) over every 16-bit word,
// size in bytes.
func accumulateChecksum(slot *Slot) {
	data := slot.flash.curData[:slot.flash.curSize]
	slot.flash.sizeBytes += len(data)
	for i := 0; i+1 < len(data); i += 2 {
		slot.flash.csum16 -= le16(data[i+1], data[i])
	}
	if len(data)%2 == 1 {
		slot.flash.csum16 -= uint16(data[len(data)-1])
	}
}

// finishSlot delivers the matching Observer callback, clears the slot, and
// re-enables the beacon once no slot remains active.
func (b *Bridge) finishSlot(slot *Slot, result int) {
	reason := slot.Reason
	dev := slot.TxAddr
	ctx := slot.Ctx
	slot.reset()
	if !b.slots.anyActive() {
		b.beacon.active = true
	}
	if b.metrics != nil {
		b.metrics.SessionsActive.Set(float64(sessionCount(b.slots)))
		if result == ResultOK {
			b.metrics.SessionSuccess.WithLabelValues(reason.String()).Inc()
		} else {
			b.metrics.SessionFailures.WithLabelValues(reason.String()).Inc()
		}
	}
	switch reason {
	case ReasonFlash:
		b.observer.OnFlash(dev, ctx, result)
	case ReasonStart:
		b.observer.OnStartChannel(dev, ctx, result)
	case ReasonDevID:
		b.observer.OnDeviceID(dev, ctx, result)
	case ReasonRFChan:
		b.observer.OnRFChannel(dev, ctx, result)
	}
}

// --- RX dispatch ---

// dispatch routes one received frame by the slot it arrived against (pipe
// index - 2 for P2P pipes, pipe 1 for the shared control pipe).
func (b *Bridge) dispatch(pipe int, frame [32]byte) {
	cmd := frame[0]

	if pipe == 1 {
		switch cmd {
		case cmdDeviceInfo:
			b.handleDeviceInfoReply(frame)
		case cmdBind:
			b.handleBindAck(frame)
		case cmdBeacon:
			// Another master's beacon on the shared control pipe: ignored,
			// does not alter state.
		}
		return
	}

	slotIdx := pipe - 2
	slot := b.slots.byIndex(slotIdx)
	if slot == nil || slot.State == StateNone {
		return
	}

	switch slot.State {
	case StateW4SetupAck:
		if ok, result := simpleAck(frame, cmdSetup); ok {
			b.onSetupAck(slot, result)
		}
	case StateW4WriteAck:
		if ok, result := simpleAck(frame, cmdWrite); ok {
			b.onWriteAck(slot, result)
		}
	case StateW4CommitAck:
		if ok, result := simpleAck(frame, cmdCommit); ok {
			b.onCommitAck(slot, result)
		}
	case StateW4AuditAck:
		if ok, result := simpleAck(frame, cmdAudit); ok {
			b.finishSlot(slot, auditResult(result))
		}
	case StateW4ChanAck:
		if ok, result := simpleAck(frame, cmdSetStartChannel); ok {
			b.finishSlot(slot, ackResult(result))
		}
	case StateW4DevIDAck:
		if ok, result := simpleAck(frame, cmdSetDevID); ok {
			b.finishSlot(slot, ackResult(result))
		}
	case StateW4RFAck:
		if ok, result := simpleAck(frame, cmdSetRFChannel); ok {
			b.finishSlot(slot, ackResult(result))
		}
	}
}

func ackResult(result byte) int {
	if result == 0x01 {
		return ResultOK
	}
	return ResultFailed
}

func auditResult(result byte) int {
	if result == 0x01 {
		return ResultOK
	}
	return ResultFailed
}

// handleBindAck routes a BIND ack to the slot whose device id matches (the
// BIND-ack routing resolution from SPEC_FULL.md §7) and advances it into
// the state matching its bind reason.
func (b *Bridge) handleBindAck(frame [32]byte) {
	ok, result, devID := decodeBindAck(frame)
	if !ok {
		return
	}
	_, slot := b.slots.byDeviceID(devID)
	if slot == nil || slot.State != StateW4BindAck {
		return
	}
	if ackResult(result) != ResultOK {
		// negative ack: retransmit BIND without advancing state
		b.sendBind(slot)
		return
	}
	switch slot.Reason {
	case ReasonFlash:
		b.advanceFlash(slot)
	case ReasonDevID:
		b.sendSetDevID(slot)
	case ReasonStart:
		b.sendSetStartChannel(slot)
	case ReasonRFChan:
		b.sendSetRFChannel(slot)
	}
}

func (b *Bridge) onSetupAck(slot *Slot, result byte) {
	if ackResult(result) != ResultOK {
		b.sendSetup(slot)
		return
	}
	b.sendWriteChunk(slot)
}

func (b *Bridge) onWriteAck(slot *Slot, result byte) {
	if ackResult(result) != ResultOK {
		b.sendWriteChunk(slot)
		return
	}
	slot.flash.sentBytes += universePayloadPer
	if slot.flash.sentBytes < slot.flash.curSize {
		b.sendWriteChunk(slot)
		return
	}
	b.sendCommit(slot)
}

func (b *Bridge) onCommitAck(slot *Slot, result byte) {
	if ackResult(result) != ResultOK {
		b.sendCommit(slot)
		return
	}
	if b.metrics != nil {
		b.metrics.OTABytesWritten.Add(float64(slot.flash.curSize))
	}
	accumulateChecksum(slot)
	if slot.flash.reader.Available() {
		b.advanceFlash(slot)
		return
	}
	b.sendAudit(slot)
}

// --- retry/timeout ---

// checkTimeouts retransmits any slot whose last send is ≥1s old and fails
// any slot past the 10-retry budget, per spec.md §4.5/§8.
func (b *Bridge) checkTimeouts(now time.Time) {
	for i := range b.slots.slots {
		slot := &b.slots.slots[i]
		if slot.State == StateNone {
			continue
		}
		if now.Sub(slot.WaitTime) < retryInterval {
			continue
		}
		if slot.WaitCount >= maxRetries {
			if slot.Reason == ReasonStart {
				b.sendReset(slot)
			}
			b.finishSlot(slot, ResultFailed)
			continue
		}
		slot.WaitCount++
		if b.metrics != nil {
			b.metrics.SessionRetries.WithLabelValues(slot.Reason.String()).Inc()
		}
		b.retransmitCurrent(slot)
	}
}

// retransmitCurrent resends the frame appropriate to the slot's current
// state, without advancing it.
func (b *Bridge) retransmitCurrent(slot *Slot) {
	switch slot.State {
	case StateW4BindAck:
		b.transmitBind(slot)
	case StateW4SetupAck:
		b.transmit(slot, encodeSetup(slot.flash.curAddr))
	case StateW4WriteAck:
		end := slot.flash.sentBytes + universePayloadPer
		if end > slot.flash.curSize {
			end = slot.flash.curSize
		}
		b.transmit(slot, encodeWriteChunk(slot.flash.curData[slot.flash.sentBytes:end]))
	case StateW4CommitAck:
		b.sendCommit(slot)
	case StateW4AuditAck:
		sizeWords := uint16(slot.flash.sizeBytes / 2)
		b.transmit(slot, encodeAudit(slot.flash.auditStart, sizeWords, slot.flash.csum16))
	case StateW4ChanAck:
		b.transmit(slot, encodeSetStartChannel(slot.startChannel))
	case StateW4DevIDAck:
		b.transmit(slot, encodeSetDevID(slot.newDevID))
	case StateW4RFAck:
		b.transmit(slot, encodeSetRFChannel(slot.rfChan))
	}
}
