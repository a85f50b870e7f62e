// Package link implements the Radio Link Core: a paced DMX broadcast
// transmitter and a concurrent point-to-point command/OTA state machine that
// share a single nRF24L01-class radio under cooperative scheduling.
package link

import (
	"fmt"

	"github.com/wnrf/core/radio"
)

// DeviceID is the 24-bit device identity used both as a logical key and,
// directly, as a 3-byte radio address.
type DeviceID uint32

const deviceIDMask DeviceID = 0xFFFFFF

// NewDeviceID masks v down to 24 bits.
func NewDeviceID(v uint32) DeviceID {
	return DeviceID(v) & deviceIDMask
}

func (d DeviceID) String() string {
	return fmt.Sprintf("%06X", uint32(d)&uint32(deviceIDMask))
}

// Bytes returns the little-endian 3-byte encoding used in wire frames (dev_id
// byte 0 is the LSB) and as the significant bytes of a 3-byte-wide radio
// address.
func (d DeviceID) Bytes() [3]byte {
	return [3]byte{byte(d), byte(d >> 8), byte(d >> 16)}
}

func deviceIDFromBytes(b [3]byte) DeviceID {
	return NewDeviceID(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16)
}

// Address turns a DeviceID into a radio.Address suitable for a 3-byte-wide
// pipe (universe mode).
func (d DeviceID) Address() radio.Address {
	b := d.Bytes()
	return radio.Address{b[0], b[1], b[2], 0, 0}
}

// Mode selects the DMX universe layout and, with it, the physical radio
// channel and address width bring-up uses.
type Mode int

const (
	ModeLegacy Mode = iota
	ModeUniverse
)

// LogicalChannel selects the physical RF channel within universe mode.
type LogicalChannel int

const (
	ChanLegacy LogicalChannel = iota
	ChanA
	ChanB
	ChanC
	ChanD
	ChanE
	ChanF
	ChanG
)

// PhysicalChannel maps a logical channel selector to the physical nRF24L01
// channel number, per spec: LEGACY -> 80, A..G -> 68 + 2k for k = 1..7.
func (c LogicalChannel) PhysicalChannel() byte {
	if c == ChanLegacy {
		return 80
	}
	return byte(68 + 2*int(c))
}

// Well-known radio addresses.
var (
	BroadcastAddr = radio.Address{0xC0, 0xDE, 0x42, 0, 0}
	ControlBase   = radio.Address{0xC0, 0xDE, 0xC1, 0, 0}
	LegacyAddr    = radio.Address{0x81, 0xF0, 0xF0, 0xF0, 0xF0}
)

// slotRXAddr derives a per-slot control-plane RX address: ControlBase with
// its first byte (the low-order byte the radio stores for pipes 2-5)
// replaced by slot_index + 2, so it shares pipe 1's remaining bytes as the
// radio's pipes 2-5 require.
func slotRXAddr(slotIndex int) radio.Address {
	return radio.Address{byte(2 + slotIndex), ControlBase[1], ControlBase[2], 0, 0}
}

// DeviceInfo is a decoded beacon reply, accumulated by the Discovery &
// Beacon component between batched pushes to the supervisor.
type DeviceInfo struct {
	DevID            DeviceID
	PCBType          byte
	PCBVersion       byte
	Processor        byte
	NumChannels      uint16
	BootloaderVer    byte
	AppSize          uint16
	AppChecksum      uint16
	AppVersion       byte
	StartChannel     uint16
	RFChannel        byte
	RFRate           byte
	AdminCapability  byte
}
