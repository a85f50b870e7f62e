package link

import "github.com/wnrf/core/radio"

// Wire command bytes, per spec.md §4.5.
const (
	cmdSetStartChannel = 0x01
	cmdSetRFChannel    = 0x02
	cmdSetDevID        = 0x03
	cmdSetup           = 0x80
	cmdWrite           = 0x81
	cmdCommit          = 0x82
	cmdAudit           = 0x83
	cmdBeacon          = 0x85
	cmdReset           = 0x86
	cmdBind            = 0x87
	cmdDeviceInfo      = 0x88
)

const devIDTag = "LABRAT"

func le16(hi, lo byte) uint16 { return uint16(hi)<<8 | uint16(lo) }

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

// encodeBeacon builds the admin-mode discovery beacon. The bridge's control
// address is implicit (replies are bound to the fixed control pipe), so the
// payload beyond the command byte is unused.
func encodeBeacon() radio.Packet {
	var p radio.Packet
	p[0] = cmdBeacon
	return p
}

func decodeDeviceInfo(p radio.Packet) DeviceInfo {
	return DeviceInfo{
		DevID:           deviceIDFromBytes([3]byte{p[1], p[2], p[3]}),
		PCBType:         p[4],
		PCBVersion:      p[5],
		Processor:       p[6],
		NumChannels:     le16(p[8], p[7]),
		BootloaderVer:   p[9],
		AppSize:         le16(p[11], p[10]),
		AppChecksum:     le16(p[13], p[12]),
		AppVersion:      p[14],
		StartChannel:    le16(p[16], p[15]),
		RFChannel:       p[17],
		RFRate:          p[18],
		AdminCapability: p[19],
	}
}

// encodeBind builds a BIND request. Per SPEC_FULL.md §7's resolution of the
// BIND-ack routing Open Question, the ack this provokes carries the device
// id back so the RX dispatcher can match it to the originating slot.
func encodeBind(devID DeviceID, rxAddr radio.Address, nonce uint16) radio.Packet {
	var p radio.Packet
	p[0] = cmdBind
	idb := devID.Bytes()
	copy(p[1:4], idb[:])
	copy(p[4:7], rxAddr[:3])
	putLE16(p[16:18], nonce)
	return p
}

func decodeBindAck(p radio.Packet) (ok bool, result byte, devID DeviceID) {
	if p[0] != cmdBind {
		return false, 0, 0
	}
	return true, p[1], deviceIDFromBytes([3]byte{p[2], p[3], p[4]})
}

func encodeSetup(addr uint16) radio.Packet {
	var p radio.Packet
	p[0] = cmdSetup
	putLE16(p[1:3], addr)
	p[3] = 0x01
	return p
}

func encodeWriteChunk(chunk []byte) radio.Packet {
	var p radio.Packet
	p[0] = cmdWrite
	copy(p[1:], chunk)
	return p
}

func encodeCommit(csum8 byte, lastWord uint16) radio.Packet {
	var p radio.Packet
	p[0] = cmdCommit
	p[1] = 0x01
	p[2] = csum8
	putLE16(p[3:5], lastWord)
	return p
}

func encodeAudit(start, sizeWords, csum16 uint16) radio.Packet {
	var p radio.Packet
	p[0] = cmdAudit
	putLE16(p[1:3], start)
	putLE16(p[3:5], sizeWords)
	putLE16(p[5:7], csum16)
	p[7] = 0x01
	return p
}

func encodeReset() radio.Packet {
	var p radio.Packet
	p[0] = cmdReset
	return p
}

func encodeSetStartChannel(ch uint16) radio.Packet {
	var p radio.Packet
	p[0] = cmdSetStartChannel
	putLE16(p[1:3], ch)
	return p
}

func encodeSetRFChannel(ch byte) radio.Packet {
	var p radio.Packet
	p[0] = cmdSetRFChannel
	p[1] = ch
	return p
}

func encodeSetDevID(newID DeviceID) radio.Packet {
	var p radio.Packet
	p[0] = cmdSetDevID
	idb := newID.Bytes()
	copy(p[1:4], idb[:])
	copy(p[4:4+len(devIDTag)], []byte(devIDTag))
	return p
}

// simpleAck decodes the common "cmd result" ack shape shared by SETUP,
// WRITE, COMMIT, AUDIT, and the channel/devid/rfchan updates.
func simpleAck(p radio.Packet, cmd byte) (ok bool, result byte) {
	if p[0] != cmd {
		return false, 0
	}
	return true, p[1]
}
