package link

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wnrf/core/radio"
)

// fakeRadio is an in-memory stand-in for radio.Device, recording every
// write and letting tests queue inbound frames on arbitrary pipes.
type fakeRadio struct {
	cfg        radio.RadioConfig
	txAddr     radio.Address
	writes     []radio.Packet
	broadcasts []bool
	rx         []rxEntry
	carrier    bool
}

type rxEntry struct {
	frame radio.Packet
	pipe  int
}

func (f *fakeRadio) Configure(c radio.RadioConfig) error { f.cfg = c; return nil }
func (f *fakeRadio) OpenTX(addr radio.Address) error     { f.txAddr = addr; return nil }
func (f *fakeRadio) OpenRX(pipe int, addr radio.Address) error { return nil }
func (f *fakeRadio) SetAutoAck(pipe int, on bool) error  { return nil }
func (f *fakeRadio) StartListening()                     {}
func (f *fakeRadio) StopListening()                      {}
func (f *fakeRadio) WriteFrame(frame radio.Packet, broadcast bool) bool {
	f.writes = append(f.writes, frame)
	f.broadcasts = append(f.broadcasts, broadcast)
	return true
}
func (f *fakeRadio) ReadFrame() (radio.Packet, int, bool) {
	if len(f.rx) == 0 {
		return radio.Packet{}, 0, false
	}
	e := f.rx[0]
	f.rx = f.rx[1:]
	return e.frame, e.pipe, true
}
func (f *fakeRadio) TestCarrier() bool { return f.carrier }

func (f *fakeRadio) queue(pipe int, frame radio.Packet) {
	f.rx = append(f.rx, rxEntry{frame: frame, pipe: pipe})
}

func (f *fakeRadio) lastWrite() radio.Packet { return f.writes[len(f.writes)-1] }

func newTestBridge(t *testing.T, cfg BringUpConfig) (*Bridge, *fakeRadio, *FakeClock) {
	t.Helper()
	r := &fakeRadio{}
	clock := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b, err := NewBridge(r, clock, cfg, nil)
	require.NoError(t, err)
	return b, r, clock
}

func TestSetChannelThenShowWritesValue(t *testing.T) {
	b, r, _ := newTestBridge(t, BringUpConfig{Channel: ChanA, UniverseSize: 512})
	b.SetChannel(0, 0xAB)
	ok := b.Show()
	require.True(t, ok)
	frame := r.lastWrite()
	require.Equal(t, byte(0), frame[0])
	require.Equal(t, byte(0xAB), frame[1])
	require.Equal(t, radio.Address{0xC0, 0xDE, 0x42, 0, 0}, r.txAddr)
}

func TestLegacyModeWritesDirectByteMapping(t *testing.T) {
	b, r, _ := newTestBridge(t, BringUpConfig{Channel: ChanLegacy, UniverseSize: 32})
	b.SetChannel(5, 0x11)
	ok := b.Show()
	require.True(t, ok)
	frame := r.lastWrite()
	require.Equal(t, byte(0x11), frame[5])
	require.Equal(t, LegacyAddr, r.txAddr)
}

func TestUniverseFrameIndexPrewrite(t *testing.T) {
	u := NewUniverse(ModeUniverse)
	for f := 0; f < 17; f++ {
		require.Equal(t, byte(f), u.ByteAt(f*32))
	}
}

func TestShowIdempotentWhenNotDue(t *testing.T) {
	b, r, _ := newTestBridge(t, BringUpConfig{Channel: ChanA, UniverseSize: 512})
	require.True(t, b.Show())
	n := len(r.writes)
	require.False(t, b.CanRefresh())
	require.False(t, b.Show())
	require.Equal(t, n, len(r.writes))
}

func TestDuplicateBindRejected(t *testing.T) {
	b, _, _ := newTestBridge(t, BringUpConfig{Channel: ChanA, UniverseSize: 512})
	idx := b.SetRFChannel(NewDeviceID(0x030201), 72, "ctx1")
	require.GreaterOrEqual(t, idx, 0)
	idx2 := b.SetRFChannel(NewDeviceID(0x030201), 74, "ctx2")
	require.Equal(t, ResultFailed, idx2)
}

func TestSetStartChannelRejectsOutOfRange(t *testing.T) {
	b, r, _ := newTestBridge(t, BringUpConfig{Channel: ChanA, UniverseSize: 512})
	result := b.SetStartChannel(NewDeviceID(1), 700, "ctx")
	require.Equal(t, ResultInvalidChannel, result)
	require.Empty(t, r.writes)
}

func TestRetryIntervalIsOneSecond(t *testing.T) {
	b, r, clock := newTestBridge(t, BringUpConfig{Channel: ChanA, UniverseSize: 512})
	idx := b.SetRFChannel(NewDeviceID(7), 72, "ctx")
	require.GreaterOrEqual(t, idx, 0)
	n0 := len(r.writes)

	clock.Advance(500 * time.Millisecond)
	b.Tick()
	require.Equal(t, n0, len(r.writes), "must not retransmit before 1s")

	clock.Advance(600 * time.Millisecond)
	b.Tick()
	require.Equal(t, n0+1, len(r.writes), "must retransmit once past 1s")
}

func TestFailsAfterTenRetries(t *testing.T) {
	b, _, clock := newTestBridge(t, BringUpConfig{Channel: ChanA, UniverseSize: 512})
	var gotResult int
	var called bool
	b.observer = observerFunc{onRF: func(dev DeviceID, ctx any, result int) {
		called = true
		gotResult = result
	}}
	idx := b.SetRFChannel(NewDeviceID(9), 72, "ctx")
	require.GreaterOrEqual(t, idx, 0)

	for i := 0; i < 11; i++ {
		clock.Advance(1100 * time.Millisecond)
		b.Tick()
	}
	require.True(t, called)
	require.Equal(t, ResultFailed, gotResult)
}

func TestDeviceListBatchedPush(t *testing.T) {
	b, r, clock := newTestBridge(t, BringUpConfig{Channel: ChanA, UniverseSize: 512})
	var pushed []DeviceInfo
	b.observer = observerFunc{onList: func(d []DeviceInfo) { pushed = d }}
	b.EnableAdmin()

	var frame radio.Packet
	frame[0] = cmdDeviceInfo
	frame[1], frame[2], frame[3] = 0x01, 0x02, 0x03
	r.queue(1, frame)

	b.CheckRX()
	require.Empty(t, pushed)

	clock.Advance(1100 * time.Millisecond)
	b.Tick()
	require.Len(t, pushed, 1)
	require.Equal(t, NewDeviceID(0x030201), pushed[0].DevID)
}

type observerFunc struct {
	onList func([]DeviceInfo)
	onFlash func(DeviceID, any, int)
	onStart func(DeviceID, any, int)
	onDevID func(DeviceID, any, int)
	onRF    func(DeviceID, any, int)
}

func (o observerFunc) OnDeviceList(d []DeviceInfo) {
	if o.onList != nil {
		o.onList(d)
	}
}
func (o observerFunc) OnFlash(dev DeviceID, ctx any, result int) {
	if o.onFlash != nil {
		o.onFlash(dev, ctx, result)
	}
}
func (o observerFunc) OnStartChannel(dev DeviceID, ctx any, result int) {
	if o.onStart != nil {
		o.onStart(dev, ctx, result)
	}
}
func (o observerFunc) OnDeviceID(dev DeviceID, ctx any, result int) {
	if o.onDevID != nil {
		o.onDevID(dev, ctx, result)
	}
}
func (o observerFunc) OnRFChannel(dev DeviceID, ctx any, result int) {
	if o.onRF != nil {
		o.onRF(dev, ctx, result)
	}
}
