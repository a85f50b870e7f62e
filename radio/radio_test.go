package radio

import (
	"bytes"
	"testing"
)

// mockPin is a minimal in-memory stand-in for a GPIO pin driven directly
// through the Pin interface (no periph.io involved).
type mockPin struct {
	level   Level
	pull    Pull
	watch   func()
	edge    Edge
	outLog  []Level
	watchOn bool
}

func (m *mockPin) Out(l Level) error {
	m.level = l
	m.outLog = append(m.outLog, l)
	return nil
}

func (m *mockPin) In(pull Pull) error {
	m.pull = pull
	return nil
}

func (m *mockPin) Read() Level { return m.level }

func (m *mockPin) Watch(edge Edge, handler func()) error {
	m.edge = edge
	m.watch = handler
	m.watchOn = true
	return nil
}

func (m *mockPin) Unwatch() error {
	m.watchOn = false
	m.watch = nil
	return nil
}

func (m *mockPin) fire() {
	if m.watchOn && m.watch != nil {
		m.watch()
	}
}

// mockSPIConn records every transfer and replays queued responses, mirroring
// the register conventions a real nRF24L01 follows closely enough for the
// driver's bring-up and read/write paths to be exercised.
type mockSPIConn struct {
	transfers [][]byte
	rxQueue   [][]byte
	registers map[byte]byte
	fifo      [][]byte
}

func newMockSPIConn() *mockSPIConn {
	return &mockSPIConn{registers: map[byte]byte{}}
}

func (m *mockSPIConn) Tx(w, r []byte) error {
	cp := make([]byte, len(w))
	copy(cp, w)
	m.transfers = append(m.transfers, cp)

	cmd := w[0]
	switch {
	case cmd&0xE0 == _W_REGISTER && len(w) == 2:
		reg := cmd &^ _W_REGISTER
		m.registers[reg] = w[1]
	case cmd == _W_TX_PAYLOAD || cmd == _W_TX_PAYLOAD_NOACK:
		payload := make([]byte, len(w)-1)
		copy(payload, w[1:])
		m.fifo = append(m.fifo, payload)
	case cmd == _R_RX_PAYLOAD:
		if len(m.rxQueue) > 0 {
			copy(r[1:], m.rxQueue[0])
			m.rxQueue = m.rxQueue[1:]
		}
	case cmd == _FLUSH_TX:
		m.fifo = nil
	case cmd == _FLUSH_RX:
		m.rxQueue = nil
	case cmd < 0x1E:
		// plain register read: reg | NOP
		if len(r) > 1 {
			r[1] = m.registers[cmd]
		}
	}
	if len(r) > 0 {
		r[0] = m.registers[_STATUS]
	}
	return nil
}

func (m *mockSPIConn) queueRx(data []byte) {
	m.rxQueue = append(m.rxQueue, data)
}

func newTestDevice(t *testing.T) (*Device, *mockSPIConn, *mockPin) {
	t.Helper()
	conn := newMockSPIConn()
	ce := &mockPin{}
	cfg := HardwareConfig{
		RadioConfig: RadioConfig{
			ChannelNumber: 42,
			RxAddr:        Address{0xE7, 0xE7, 0xE7, 0xE7, 0xE7},
		},
		CE: ce,
	}
	conn.registers[_RF_CH] = 42
	dev, err := NewWithHardware(cfg, conn, nil)
	if err != nil {
		t.Fatalf("NewWithHardware: %v", err)
	}
	return dev, conn, ce
}

func TestNewWithHardwareAppliesDefaults(t *testing.T) {
	dev, _, _ := newTestDevice(t)
	if dev.config.PayloadSize != maxPayloadBytes {
		t.Fatalf("expected default payload size %d, got %d", maxPayloadBytes, dev.config.PayloadSize)
	}
	if dev.config.AddressWidth != 5 {
		t.Fatalf("expected default address width 5, got %d", dev.config.AddressWidth)
	}
	if dev.config.CRCLength != CRCLength16 {
		t.Fatalf("expected default CRC length 16, got %v", dev.config.CRCLength)
	}
}

func TestNewWithHardwareRejectsBadChannel(t *testing.T) {
	conn := newMockSPIConn()
	ce := &mockPin{}
	cfg := HardwareConfig{
		RadioConfig: RadioConfig{ChannelNumber: 200},
		CE:          ce,
	}
	if _, err := NewWithHardware(cfg, conn, nil); err == nil {
		t.Fatal("expected error for out-of-range channel")
	}
}

func TestNewWithHardwareRequiresCE(t *testing.T) {
	conn := newMockSPIConn()
	if _, err := NewWithHardware(HardwareConfig{}, conn, nil); err == nil {
		t.Fatal("expected error when CE pin is nil")
	}
}

func TestConfigureSwitchesChannel(t *testing.T) {
	dev, conn, _ := newTestDevice(t)
	newCfg := dev.config.RadioConfig
	newCfg.ChannelNumber = 77
	if err := dev.Configure(newCfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if dev.config.ChannelNumber != 77 {
		t.Fatalf("expected channel 77, got %d", dev.config.ChannelNumber)
	}
	if conn.registers[_RF_CH] != 77 {
		t.Fatalf("expected RF_CH register to read back 77, got %d", conn.registers[_RF_CH])
	}
}

func TestOpenTXSetsTargetAddress(t *testing.T) {
	dev, conn, _ := newTestDevice(t)
	addr := Address{1, 2, 3, 4, 5}
	if err := dev.OpenTX(addr); err != nil {
		t.Fatalf("OpenTX: %v", err)
	}
	last := conn.transfers[len(conn.transfers)-1]
	if !bytes.Equal(last[1:], addr[:]) {
		t.Fatalf("expected last transfer to write target address, got %v", last)
	}
}

func TestOpenRXRejectsOutOfRangePipe(t *testing.T) {
	dev, _, _ := newTestDevice(t)
	if err := dev.OpenRX(6, Address{}); err == nil {
		t.Fatal("expected error for pipe > 5")
	}
}

func TestWriteFrameBroadcastDisablesAutoAck(t *testing.T) {
	dev, conn, _ := newTestDevice(t)
	conn.registers[_STATUS] = _TX_DS
	var frame Packet
	frame[0] = 0xAB
	ok := dev.WriteFrame(frame, true)
	if !ok {
		t.Fatal("expected broadcast write to report success")
	}
	if len(conn.fifo) == 0 {
		t.Fatal("expected payload pushed into TX FIFO")
	}
	if conn.fifo[len(conn.fifo)-1][0] != 0xAB {
		t.Fatalf("expected first payload byte 0xAB, got %#x", conn.fifo[len(conn.fifo)-1][0])
	}
	noAck := false
	for _, tr := range conn.transfers {
		if tr[0] == _W_TX_PAYLOAD_NOACK {
			noAck = true
		}
	}
	if !noAck {
		t.Fatal("expected broadcast payload written with the no-ack command")
	}
}

func TestWriteFrameMaxRetriesReportsFailure(t *testing.T) {
	dev, conn, _ := newTestDevice(t)
	conn.registers[_STATUS] = _MAX_RT
	var frame Packet
	if dev.WriteFrame(frame, false) {
		t.Fatal("expected write to fail when MAX_RT is set")
	}
}

func TestReadFrameEmptyFIFO(t *testing.T) {
	dev, conn, _ := newTestDevice(t)
	conn.registers[_STATUS] = 0x0E // RX_P_NO == 7 (empty)
	_, _, ok := dev.ReadFrame()
	if ok {
		t.Fatal("expected no frame available")
	}
}

func TestReadFrameReturnsQueuedPayload(t *testing.T) {
	dev, conn, _ := newTestDevice(t)
	payload := make([]byte, maxPayloadBytes)
	payload[0] = 0x42
	conn.queueRx(payload)
	conn.registers[_STATUS] = 0x00 // pipe 0
	frame, pipe, ok := dev.ReadFrame()
	if !ok {
		t.Fatal("expected frame available")
	}
	if pipe != 0 {
		t.Fatalf("expected pipe 0, got %d", pipe)
	}
	if frame[0] != 0x42 {
		t.Fatalf("expected first byte 0x42, got %#x", frame[0])
	}
}

func TestTestCarrierReadsRPD(t *testing.T) {
	dev, conn, _ := newTestDevice(t)
	conn.registers[_RPD] = 1
	if !dev.TestCarrier() {
		t.Fatal("expected carrier detected")
	}
}

func TestCloseReleasesIRQWatch(t *testing.T) {
	dev, _, _ := newTestDevice(t)
	irq := &mockPin{}
	dev.config.IRQ = irq
	irq.watchOn = true
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if irq.watchOn {
		t.Fatal("expected IRQ watch released on Close")
	}
}
