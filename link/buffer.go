package link

import "github.com/wnrf/core/radio"

// Universe is the DMX scratch buffer the E1.31 collaborator writes into via
// SetChannel and the Broadcast Pacer slices into 32-byte radio frames.
// Legacy mode is a single 32-byte frame with channels mapped directly onto
// bytes; universe mode is 17 frames of 31 payload bytes each, prefixed by a
// prewritten frame-index byte never touched by channel writes.
type Universe struct {
	mode Mode
	data []byte
}

const (
	universeFrameCount = 17
	universeFrameBytes = 32
	universePayloadPer = 31
)

// NewUniverse allocates and initializes the scratch buffer for mode.
// Universe-mode frame indices are prewritten here and never touched again.
func NewUniverse(mode Mode) *Universe {
	u := &Universe{mode: mode}
	switch mode {
	case ModeLegacy:
		u.data = make([]byte, universeFrameBytes)
	case ModeUniverse:
		u.data = make([]byte, universeFrameCount*universeFrameBytes)
		for f := 0; f < universeFrameCount; f++ {
			u.data[f*universeFrameBytes] = byte(f)
		}
	}
	return u
}

// FrameCount is 1 for legacy mode, 17 for universe mode.
func (u *Universe) FrameCount() int {
	if u.mode == ModeLegacy {
		return 1
	}
	return universeFrameCount
}

// SetChannel writes one DMX channel byte (0-based, 0..511). Out-of-range
// indices are ignored; legacy mode only has 32 addressable channels.
func (u *Universe) SetChannel(c int, v byte) {
	if c < 0 || c > 511 {
		return
	}
	if u.mode == ModeLegacy {
		if c < universeFrameBytes {
			u.data[c] = v
		}
		return
	}
	offset := 1 + ((c / universePayloadPer) << 5) + (c % universePayloadPer)
	u.data[offset] = v
}

// Frame returns frame idx (0-based) as a radio-ready 32-byte packet.
func (u *Universe) Frame(idx int) radio.Packet {
	var p radio.Packet
	if u.mode == ModeLegacy {
		copy(p[:], u.data)
		return p
	}
	start := idx * universeFrameBytes
	copy(p[:], u.data[start:start+universeFrameBytes])
	return p
}

// ByteAt exposes a raw scratch byte, for tests asserting on frame layout
// without going through the radio.
func (u *Universe) ByteAt(offset int) byte {
	return u.data[offset]
}
