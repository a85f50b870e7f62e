package link

import "github.com/wnrf/core/radio"

// Radio is the capability the Radio Link Core depends on — the narrow
// contract of spec.md §4.2, satisfied as-is by *radio.Device. Depending on
// this instead of the concrete type keeps the Broadcast Pacer and the
// Command/OTA State Machine testable against a fake.
type Radio interface {
	Configure(radio.RadioConfig) error
	OpenTX(addr radio.Address) error
	OpenRX(pipe int, addr radio.Address) error
	SetAutoAck(pipe int, on bool) error
	StartListening()
	StopListening()
	WriteFrame(frame radio.Packet, broadcast bool) bool
	ReadFrame() (frame radio.Packet, pipe int, ok bool)
	TestCarrier() bool
}
