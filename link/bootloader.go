package link

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// bootloaderGate remembers the most recent bootloader version reported by each
// device's beacon reply and refuses Flash sessions against devices known to
// be older than the configured floor, per SPEC_FULL.md §2's go-version
// wiring. A device never seen over the beacon channel is let through — there
// is nothing to gate on yet.
type bootloaderGate struct {
	min *version.Version
	seen map[DeviceID]byte
}

// SetMinBootloaderVersion arms the gate. Pass nil to disable gating.
func (b *Bridge) SetMinBootloaderVersion(min *version.Version) {
	b.bootloader.min = min
	if b.bootloader.seen == nil {
		b.bootloader.seen = make(map[DeviceID]byte)
	}
}

// recordBootloaderVersion latches the bootloader byte most recently reported
// by devID's beacon reply.
func (b *Bridge) recordBootloaderVersion(devID DeviceID, ver byte) {
	if b.bootloader.seen == nil {
		b.bootloader.seen = make(map[DeviceID]byte)
	}
	b.bootloader.seen[devID] = ver
}

// bootloaderTooOld reports whether devID is known to be below the
// configured floor. A device with no recorded version is never rejected
// here.
func (b *Bridge) bootloaderTooOld(devID DeviceID) bool {
	if b.bootloader.min == nil {
		return false
	}
	ver, ok := b.bootloader.seen[devID]
	if !ok {
		return false
	}
	reported, err := version.NewVersion(fmt.Sprintf("%d.0.0", ver))
	if err != nil {
		return false
	}
	return reported.LessThan(b.bootloader.min)
}
