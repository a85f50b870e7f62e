// Package radio implements the Radio Abstraction contract of the Radio Link
// Core: a thin, testable driver for an nRF24L01-class 2.4 GHz packet radio.
// The register-level protocol below is the teacher driver's; the exported
// surface is shaped to match the "channel, data rate, CRC, address width,
// per-pipe auto-ack, PA level, open-write-pipe, open-read-pipe, write
// (blocking with/without ack), non-blocking read with pipe index, RX
// carrier-detect" contract the Radio Link Core depends on.
package radio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	ErrPkg        = errors.New("radio")
	ErrMaxRetries = errors.New("max retransmissions reached")
	ErrTimeout    = errors.New("timeout waiting for device")
)

type (
	// Address is a radio address. Only the first AddressWidth bytes are
	// significant; the rest are ignored by the hardware.
	Address [5]byte
	// Packet is a fixed 32-byte radio frame, the unit the Radio Link Core
	// always transmits and receives.
	Packet [32]byte
)

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4])
}

type (
	DataRate  byte
	PALevel   byte
	CRCLength byte
)

const (
	DataRate250kbps DataRate = iota
	DataRate1mbps
	DataRate2mbps
)

func (d DataRate) String() string {
	switch d {
	case DataRate250kbps:
		return "250kbps"
	case DataRate1mbps:
		return "1mbps"
	case DataRate2mbps:
		return "2mbps"
	default:
		return "unknown"
	}
}

const (
	PALevelMin PALevel = iota
	PALevelLow
	PALevelHigh
	PALevelMax
)

func (p PALevel) String() string {
	switch p {
	case PALevelMin:
		return "-18dBm"
	case PALevelLow:
		return "-12dBm"
	case PALevelHigh:
		return "-6dBm"
	case PALevelMax:
		return "0dBm"
	default:
		return "unknown"
	}
}

const (
	CRCLengthDisabled CRCLength = iota
	CRCLength8
	CRCLength16
)

// --- NRF24L01 Registers/Commands/Bits ---

const (
	_CONFIG      = 0x00
	_RF_CH       = 0x05
	_RF_SETUP    = 0x06
	_STATUS      = 0x07
	_OBSERVE_TX  = 0x08
	_RPD         = 0x09
	_RX_ADDR_P0  = 0x0A
	_RX_ADDR_P1  = 0x0B
	_TX_ADDR_REG = 0x10
	_RX_PW_P0    = 0x11
	_RX_PW_P1    = 0x12

	_DYNPD   = 0x1C
	_FEATURE = 0x1D

	_W_REGISTER         = 0x20
	_R_RX_PAYLOAD       = 0x61
	_W_TX_PAYLOAD       = 0xA0
	_W_TX_PAYLOAD_NOACK = 0xB0
	_FLUSH_TX           = 0xE1
	_FLUSH_RX           = 0xE2
	_NOP                = 0xFF
)

const (
	_PWR_UP  = 1 << 1
	_PRIM_RX = 1 << 0
	_RX_DR   = 1 << 6
	_TX_DS   = 1 << 5
	_MAX_RT  = 1 << 4
	_EN_CRC  = 1 << 3
	_CRCO    = 1 << 2

	_SETUP_RETR = 0x04
	_EN_AA      = 0x01
	_EN_RXADDR  = 0x02
	_ERX_P0     = 1 << 0
	_ERX_P1     = 1 << 1
	_SETUP_AW   = 0x03

	_EN_DPL     = 1 << 2
	_EN_ACK_PAY = 1 << 1
	_EN_DYN_ACK = 1 << 0
)

const maxPayloadBytes = 32

// RadioConfig holds the fields effective at bring-up; the Radio Link Core
// calls Configure with one of these whenever it switches between legacy and
// universe mode.
type RadioConfig struct {
	// ChannelNumber is the physical channel (0..124) within the 2.4 GHz ISM
	// band.
	ChannelNumber byte
	// RxAddr is this radio's control-pipe (pipe 1) address.
	RxAddr Address
	// PayloadSize is fixed at 32 for the Radio Link Core; dynamic payloads
	// are not used.
	PayloadSize byte
	// EnableAutoAck is the bring-up default for pipes 0/1; the Radio Link
	// Core toggles it per pipe around individual P2P writes via SetAutoAck.
	EnableAutoAck bool
	DataRate      DataRate
	PALevel       PALevel
	// AutoRetransmitDelay in microseconds, multiple of 250, 250..4000.
	AutoRetransmitDelay uint16
	// AutoRetransmitCount, 0..15.
	AutoRetransmitCount byte
	// AddressWidth, 3..5 bytes.
	AddressWidth byte
	CRCLength    CRCLength
}

func (c *RadioConfig) applyDefaults() {
	if c.PayloadSize == 0 || c.PayloadSize > maxPayloadBytes {
		c.PayloadSize = maxPayloadBytes
	}
	if c.AutoRetransmitDelay == 0 {
		c.AutoRetransmitDelay = 250
	}
	if c.AutoRetransmitCount == 0 {
		c.AutoRetransmitCount = 3
	}
	if c.AddressWidth == 0 {
		c.AddressWidth = 5
	}
	if c.CRCLength == 0 {
		c.CRCLength = CRCLength16
	}
	if c.PALevel == 0 {
		c.PALevel = PALevelMax
	}
}

// HardwareConfig adds the GPIO pins needed to drive the physical part.
type HardwareConfig struct {
	RadioConfig
	// CE is the Chip Enable pin.
	CE Pin
	// IRQ is optional; if nil, no edge interrupt is watched and
	// WaitForInterrupt returns an error.
	IRQ Pin
}

// Device is a generalized nRF24L01 driver. It satisfies the Radio
// Abstraction contract the Radio Link Core depends on.
type Device struct {
	config  HardwareConfig
	conn    SPI
	irqChan chan struct{}
	closer  io.Closer
	mu      sync.Mutex
	scratch [33]byte // max payload (32) + 1 status byte
}

// NewWithHardware creates and initializes a driver bound to the given pins
// and SPI connection. The caller supplies a closer (typically the SPI port)
// that Close releases; it may be nil.
func NewWithHardware(c HardwareConfig, conn SPI, closer io.Closer) (*Device, error) {
	c.applyDefaults()
	if c.AddressWidth < 3 || c.AddressWidth > 5 {
		return nil, fmt.Errorf("%w: address width must be 3, 4, or 5", ErrPkg)
	}
	if c.ChannelNumber > 124 {
		return nil, fmt.Errorf("%w: channel number must be between 0 and 124", ErrPkg)
	}
	if c.CE == nil {
		return nil, fmt.Errorf("%w: CE pin not configured", ErrPkg)
	}

	dev := &Device{config: c, conn: conn, closer: closer}

	globalLogger.Info("initializing nRF24L01 SPI communication")

	dev.config.CE.Out(Low)

	if dev.config.IRQ != nil {
		dev.config.IRQ.In(PullUp)
		dev.irqChan = make(chan struct{}, 1)
		err := dev.config.IRQ.Watch(FallingEdge, func() {
			select {
			case dev.irqChan <- struct{}{}:
			default:
			}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to watch IRQ pin: %w", err)
		}
	}

	if err := dev.configureLocked(c.RadioConfig); err != nil {
		return nil, err
	}

	readChannel := dev.readRegister(_RF_CH)
	if readChannel != dev.config.ChannelNumber {
		dev.Close()
		return nil, fmt.Errorf("%w: failed to verify connection, check wiring/power", ErrPkg)
	}

	globalLogger.Info("nRF24L01 initialized and powered up")
	dev.setCE(true)

	return dev, nil
}

// Configure is idempotent and safe to call between TX/RX cycles: it is how
// the Broadcast Pacer's bring-up switches between legacy and universe mode
// without recreating the Device.
func (d *Device) Configure(c RadioConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c.applyDefaults()
	if c.AddressWidth < 3 || c.AddressWidth > 5 {
		return fmt.Errorf("%w: address width must be 3, 4, or 5", ErrPkg)
	}
	if c.ChannelNumber > 124 {
		return fmt.Errorf("%w: channel number must be between 0 and 124", ErrPkg)
	}
	return d.configureLocked(c)
}

// configureLocked performs the register writes. Caller holds the lock (or
// is the constructor, before concurrent access is possible).
func (d *Device) configureLocked(c RadioConfig) error {
	d.config.RadioConfig = c

	d.setCE(false)
	d.writeRegister(_CONFIG, 0)
	d.clearStatus()
	d.flushTX()
	d.flushRX()

	var configValue byte = _PWR_UP | _PRIM_RX
	switch c.CRCLength {
	case CRCLength8:
		configValue |= _EN_CRC
	case CRCLength16:
		configValue |= _EN_CRC | _CRCO
	}
	d.writeRegister(_CONFIG, configValue)
	time.Sleep(5 * time.Millisecond)

	d.writeRegister(_RF_CH, c.ChannelNumber)
	d.writeRegister(_SETUP_AW, c.AddressWidth-2)

	ard := (c.AutoRetransmitDelay/250 - 1) & 0x0F
	arc := c.AutoRetransmitCount & 0x0F
	d.writeRegister(_SETUP_RETR, (byte(ard)<<4)|byte(arc))

	d.writeRFSetup(c.DataRate, c.PALevel)

	if c.EnableAutoAck {
		d.writeRegister(_EN_AA, _ERX_P0|_ERX_P1)
	} else {
		d.writeRegister(_EN_AA, 0)
	}
	d.writeRegister(_EN_RXADDR, _ERX_P0|_ERX_P1)

	d.writeRegisterN(_RX_ADDR_P1, c.RxAddr[:c.AddressWidth])

	// Dynamic ACK stays enabled so broadcast writes can opt out of
	// acknowledgement per-write without touching EN_AA.
	d.writeRegister(_FEATURE, _EN_DYN_ACK)
	d.writeRegister(_DYNPD, 0)
	d.writeRegister(_RX_PW_P0, c.PayloadSize)
	d.writeRegister(_RX_PW_P1, c.PayloadSize)

	d.setCE(true)
	return nil
}

func (d *Device) writeRFSetup(rate DataRate, pa PALevel) {
	var rfSetup byte
	switch rate {
	case DataRate1mbps:
	case DataRate2mbps:
		rfSetup |= 1 << 3
	case DataRate250kbps:
		rfSetup |= 1 << 5
	}
	switch pa {
	case PALevelMin:
	case PALevelLow:
		rfSetup |= 1 << 1
	case PALevelHigh:
		rfSetup |= 2 << 1
	case PALevelMax:
		rfSetup |= 3 << 1
	}
	d.writeRegister(_RF_SETUP, rfSetup)
}

func (d *Device) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("nRF24L01(Channel=%d, DataRate=%s, PALevel=%s, RxAddr=%s, AutoAck=%v)",
		d.config.ChannelNumber, d.config.DataRate, d.config.PALevel, d.config.RxAddr, d.config.EnableAutoAck)
}

// Close powers down the radio and releases the SPI/GPIO resources.
func (dev *Device) Close() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	dev.writeRegister(_CONFIG, dev.readRegister(_CONFIG)&^byte(_PWR_UP))
	globalLogger.Info("nRF24L01 powered down")

	if dev.closer != nil {
		if err := dev.closer.Close(); err != nil {
			globalLogger.Warn("failed to close SPI port")
		}
	}
	if dev.config.IRQ != nil {
		dev.config.IRQ.Unwatch()
	}
	return nil
}

// --- SPI primitives ---

func (d *Device) spiTransfer(len int) (status byte, response []byte) {
	slice := d.scratch[:len]
	if err := d.conn.Tx(slice, slice); err != nil {
		globalLogger.Error("SPI transfer error")
		return 0, nil
	}
	if len > 0 {
		return d.scratch[0], d.scratch[1:len]
	}
	return 0, nil
}

func (d *Device) writeRegister(reg, val byte) {
	d.scratch[0] = _W_REGISTER | reg
	d.scratch[1] = val
	d.spiTransfer(2)
}

func (d *Device) readRegister(reg byte) byte {
	d.scratch[0] = reg
	d.scratch[1] = _NOP
	_, data := d.spiTransfer(2)
	if len(data) > 0 {
		return data[0]
	}
	return 0
}

func (d *Device) writeRegisterN(reg byte, data []byte) {
	d.scratch[0] = _W_REGISTER | reg
	copy(d.scratch[1:], data)
	d.spiTransfer(1 + len(data))
}

func (d *Device) flushTX() {
	d.scratch[0] = _FLUSH_TX
	d.spiTransfer(1)
}

func (d *Device) flushRX() {
	d.scratch[0] = _FLUSH_RX
	d.spiTransfer(1)
}

func (d *Device) clearStatus() {
	d.writeRegister(_STATUS, _RX_DR|_TX_DS|_MAX_RT)
}

func (d *Device) setCE(level bool) {
	if level {
		d.config.CE.Out(High)
	} else {
		d.config.CE.Out(Low)
	}
}

func (d *Device) setTargetAddress(addr Address) {
	d.setCE(false)
	width := d.config.AddressWidth
	d.writeRegisterN(_TX_ADDR_REG, addr[:width])
	// Auto-ack replies land on P0, which must mirror TX_ADDR.
	d.writeRegisterN(_RX_ADDR_P0, addr[:width])
	time.Sleep(time.Millisecond)
}

// --- Pipe configuration ---

// OpenTX sets the current write pipe's target address.
func (d *Device) OpenTX(addr Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setTargetAddress(addr)
	return nil
}

// OpenRX binds pipe (0-5) to address. Pipes 0/1 take a full AddressWidth
// address; pipes 2-5 take only the LSB, sharing pipe 1's upper bytes.
func (d *Device) OpenRX(pipe int, addr Address) error {
	if pipe < 0 || pipe > 5 {
		return fmt.Errorf("%w: pipe must be 0..5", ErrPkg)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	reg := byte(_RX_ADDR_P0 + pipe)
	if pipe <= 1 {
		d.writeRegisterN(reg, addr[:d.config.AddressWidth])
	} else {
		d.writeRegister(reg, addr[0])
	}
	d.writeRegister(_RX_PW_P0+byte(pipe), d.config.PayloadSize)
	d.writeRegister(_EN_RXADDR, d.readRegister(_EN_RXADDR)|(1<<uint(pipe)))
	return nil
}

// SetAutoAck enables or disables hardware auto-ack on a single pipe.
func (d *Device) SetAutoAck(pipe int, on bool) error {
	if pipe < 0 || pipe > 5 {
		return fmt.Errorf("%w: pipe must be 0..5", ErrPkg)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if on {
		d.writeRegister(_EN_AA, d.readRegister(_EN_AA)|(1<<uint(pipe)))
	} else {
		d.writeRegister(_EN_AA, d.readRegister(_EN_AA)&^(1<<uint(pipe)))
	}
	return nil
}

// GetRetransmissionCounters returns the OBSERVE_TX register split into lost
// packets and the current retry count.
func (d *Device) GetRetransmissionCounters() (lostPackets byte, currentRetries byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	val := d.readRegister(_OBSERVE_TX)
	return (val >> 4) & 0x0F, val & 0x0F
}

// TestCarrier reports whether energy is present on the current channel; the
// Frequency Scanner polls this across the channel space.
func (d *Device) TestCarrier() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return (d.readRegister(_RPD) & 0x01) != 0
}

// SetChannel changes the physical channel without a full reconfigure.
func (d *Device) SetChannel(channel byte) error {
	if channel > 124 {
		return fmt.Errorf("%w: channel number must be between 0 and 124", ErrPkg)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeRegister(_RF_CH, channel)
	d.config.ChannelNumber = channel
	return nil
}

// --- Power management ---

func (d *Device) PowerDown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeRegister(_CONFIG, d.readRegister(_CONFIG)&^byte(_PWR_UP))
}

func (d *Device) PowerUp() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeRegister(_CONFIG, d.readRegister(_CONFIG)|_PWR_UP)
	time.Sleep(2 * time.Millisecond)
}

// StartListening puts the radio into RX mode. Exported because the Radio
// Link Core straddles TX/RX explicitly: the Broadcast Pacer stops listening,
// writes one frame, then resumes; the state machine does the same around
// every P2P send.
func (d *Device) StartListening() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startListeningLocked()
}

func (d *Device) startListeningLocked() {
	d.setCE(false)
	d.writeRegister(_CONFIG, d.readRegister(_CONFIG)|_PRIM_RX)
	d.setCE(true)
	time.Sleep(130 * time.Microsecond)
	d.clearStatus()
	d.flushRX()
}

// StopListening puts the radio into standby/TX mode.
func (d *Device) StopListening() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopListeningLocked()
}

func (d *Device) stopListeningLocked() {
	d.setCE(false)
	d.writeRegister(_CONFIG, d.readRegister(_CONFIG)&^byte(_PRIM_RX))
}

// --- Read/Write ---

func (d *Device) rxAvailable() (pipe int, ok bool) {
	status := d.readRegister(_STATUS)
	p := (status >> 1) & 0x07
	if p == 7 {
		return 0, false
	}
	return int(p), true
}

func (d *Device) readFixedPayload() ([]byte, bool) {
	pipe, ok := d.rxAvailable()
	_ = pipe
	if !ok {
		return nil, false
	}
	size := int(d.config.PayloadSize)
	d.scratch[0] = _R_RX_PAYLOAD
	for i := 1; i <= size; i++ {
		d.scratch[i] = _NOP
	}
	_, data := d.spiTransfer(size + 1)
	result := make([]byte, len(data))
	copy(result, data)
	d.clearStatus()
	return result, true
}

// withAutoAck disables broadcast-mode ack, runs fn, then restores the prior
// per-pipe ack setting on every exit path — the scoped acquisition design
// note from spec.md §9.
func (d *Device) withAutoAck(pipe int, on bool, fn func() bool) bool {
	prev := d.readRegister(_EN_AA)
	if on {
		d.writeRegister(_EN_AA, prev|(1<<uint(pipe)))
	} else {
		d.writeRegister(_EN_AA, prev&^(1<<uint(pipe)))
	}
	result := fn()
	d.writeRegister(_EN_AA, prev)
	return result
}

func (d *Device) write(data []byte, noAck bool) bool {
	d.stopListeningLocked()

	cmdPrefix := byte(_W_TX_PAYLOAD)
	if noAck {
		cmdPrefix = _W_TX_PAYLOAD_NOACK
	}

	size := int(d.config.PayloadSize)
	d.scratch[0] = cmdPrefix
	for i := 1; i <= size; i++ {
		d.scratch[i] = 0
	}
	copy(d.scratch[1:], data)
	d.spiTransfer(1 + size)

	d.setCE(true)
	time.Sleep(15 * time.Microsecond)
	d.setCE(false)

	timeoutDuration := time.Duration(d.config.AutoRetransmitDelay)*time.Duration(d.config.AutoRetransmitCount)*time.Microsecond + 50*time.Millisecond
	deadline := time.Now().Add(timeoutDuration)

	for {
		status := d.readRegister(_STATUS)
		if status&(_TX_DS|_MAX_RT) != 0 {
			d.clearStatus()
			if status&_MAX_RT != 0 {
				d.flushTX()
				return false
			}
			return true
		}
		if time.Now().After(deadline) {
			d.clearStatus()
			d.flushTX()
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// WriteFrame sends one 32-byte frame on the currently open TX pipe. When
// broadcast is true, auto-ack is disabled for the write (matching "all
// broadcasts disable auto-ack") and the call returns true once the frame has
// left the FIFO; otherwise auto-ack is enabled on pipe 0 for the duration of
// the write and the result reflects whether an ack was received.
func (dev *Device) WriteFrame(frame Packet, broadcast bool) bool {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if broadcast {
		return dev.withAutoAck(0, false, func() bool {
			ok := dev.write(frame[:], true)
			dev.startListeningLocked()
			return ok
		})
	}
	return dev.withAutoAck(0, true, func() bool {
		ok := dev.write(frame[:], false)
		dev.startListeningLocked()
		return ok
	})
}

// ReadFrame is a non-blocking read. It returns ok=false when the RX FIFO is
// empty.
func (dev *Device) ReadFrame() (frame Packet, pipe int, ok bool) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	p, avail := dev.rxAvailable()
	if !avail {
		return Packet{}, 0, false
	}
	data, got := dev.readFixedPayload()
	if !got {
		return Packet{}, 0, false
	}
	copy(frame[:], data)
	return frame, p, true
}

// WaitForInterrupt blocks until the IRQ pin fires or ctx is cancelled,
// returning the STATUS register snapshot taken at that moment.
func (d *Device) WaitForInterrupt(ctx context.Context) (byte, error) {
	if d.config.IRQ == nil {
		return 0, fmt.Errorf("%w: IRQ pin not configured", ErrPkg)
	}
	if d.config.IRQ.Read() == Low {
		d.mu.Lock()
		status := d.readRegister(_STATUS)
		d.mu.Unlock()
		return status, nil
	}
	select {
	case <-d.irqChan:
		d.mu.Lock()
		status := d.readRegister(_STATUS)
		d.mu.Unlock()
		return status, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
