package link

import (
	"time"

	"github.com/wnrf/core/radio"
)

const (
	beaconInterval  = 2500 * time.Millisecond
	pushMinInterval = time.Second
	pushBatchSize   = 9
)

// beaconState is the Discovery & Beacon component's private bookkeeping.
type beaconState struct {
	active     bool
	lastBeacon time.Time
	lastPush   time.Time
	devices    []DeviceInfo
}

// maybeSendBeacon transmits a 0x85 beacon on the control address if admin
// mode is active, no P2P session is in flight, and at least beaconInterval
// has elapsed since the last one.
func (b *Bridge) maybeSendBeacon(now time.Time) {
	if !b.admin || b.slots.anyActive() {
		return
	}
	if !b.beacon.active {
		b.beacon.active = true
		b.beacon.lastBeacon = time.Time{}
	}
	if !b.beacon.lastBeacon.IsZero() && now.Sub(b.beacon.lastBeacon) < beaconInterval {
		return
	}
	b.radio.StopListening()
	b.radio.OpenTX(ControlBase)
	b.radio.WriteFrame(encodeBeacon(), true)
	b.radio.StartListening()
	b.beacon.lastBeacon = now
}

// handleDeviceInfoReply accumulates a 0x88 beacon reply. Replies are
// discarded (and the accumulated list is cleared) when admin mode is off,
// per spec.md §4.4.
func (b *Bridge) handleDeviceInfoReply(frame [32]byte) {
	if !b.admin {
		b.beacon.devices = b.beacon.devices[:0]
		return
	}
	info := decodeDeviceInfo(frame)
	b.beacon.devices = append(b.beacon.devices, info)
	b.recordBootloaderVersion(info.DevID, info.BootloaderVer)
	if b.metrics != nil {
		b.metrics.DevicesSeen.Inc()
	}
	if len(b.beacon.devices) >= pushBatchSize {
		b.flushDeviceList(b.clock.Now())
	}
}

// maybePush delivers the batched device list to the Observer once either
// policy trigger fires: at least one entry and ≥1s elapsed, or the list has
// reached its batch size (the batch-size trigger is handled eagerly in
// handleDeviceInfoReply).
func (b *Bridge) maybePush(now time.Time) {
	if len(b.beacon.devices) == 0 {
		return
	}
	if b.beacon.lastPush.IsZero() || now.Sub(b.beacon.lastPush) >= pushMinInterval {
		b.flushDeviceList(now)
	}
}

func (b *Bridge) flushDeviceList(now time.Time) {
	if len(b.beacon.devices) == 0 {
		return
	}
	batch := make([]DeviceInfo, len(b.beacon.devices))
	copy(batch, b.beacon.devices)
	b.beacon.devices = b.beacon.devices[:0]
	b.beacon.lastPush = now
	if b.metrics != nil {
		b.metrics.DeviceListPush.Inc()
	}
	b.observer.OnDeviceList(batch)
}

// ScanChannels runs the two-pass carrier-detect frequency sweep, returning a
// histogram of carrier-detect counts indexed by position in channels. Each
// channel is sampled samplesPerChannel times per pass, matching the
// teacher-derived carrier-sweep idiom from the original bootloader's
// getHistogram routine, generalized from its fixed 84-channel loop to an
// arbitrary channel list.
func ScanChannels(r Radio, base radio.RadioConfig, channels []byte, samplesPerChannel int) []int {
	histogram := make([]int, len(channels))
	for pass := 0; pass < 2; pass++ {
		for i, ch := range channels {
			cfg := base
			cfg.ChannelNumber = ch
			if err := r.Configure(cfg); err != nil {
				continue
			}
			for s := 0; s < samplesPerChannel; s++ {
				if r.TestCarrier() {
					histogram[i]++
				}
			}
		}
	}
	return histogram
}
