package link

import (
	"time"

	"github.com/wnrf/core/radio"
)

// pacer is the Broadcast Pacer: it owns the DMX scratch buffer and emits it
// as a paced sequence of 32-byte frames whenever the radio is not claimed by
// an admin session.
type pacer struct {
	universe       *Universe
	interval       time.Duration
	lastShow       time.Time
	nextPacket     int
	heartbeatEvery int
	heartbeatCount int
	heartbeatOn    bool
}

func newPacer(mode Mode) *pacer {
	p := &pacer{universe: NewUniverse(mode)}
	switch mode {
	case ModeLegacy:
		p.interval = 22 * time.Millisecond
		p.heartbeatEvery = 44
	case ModeUniverse:
		p.interval = 665 * time.Microsecond
		p.heartbeatEvery = 44 * universeFrameCount
	}
	return p
}

// canRefresh reports whether the configured inter-frame interval has
// elapsed since the last emission.
func (p *pacer) canRefresh(now time.Time) bool {
	return p.lastShow.IsZero() || now.Sub(p.lastShow) >= p.interval
}

// show writes the next frame and advances state. Caller (Bridge.Show) is
// responsible for checking the admin gate first.
func (p *pacer) show(r Radio, addr radio.Address, now time.Time) bool {
	frame := p.universe.Frame(p.nextPacket)
	r.StopListening()
	r.OpenTX(addr)
	ok := r.WriteFrame(frame, true)
	p.nextPacket = (p.nextPacket + 1) % p.universe.FrameCount()
	p.lastShow = now
	r.StartListening()

	p.heartbeatCount++
	if p.heartbeatCount >= p.heartbeatEvery {
		p.heartbeatCount = 0
		p.heartbeatOn = !p.heartbeatOn
	}
	return ok
}
