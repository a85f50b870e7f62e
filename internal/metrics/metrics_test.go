package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAgainstGivenRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FramesSent.WithLabelValues("legacy").Inc()
	m.SessionsActive.Set(2)
	m.OTABytesWritten.Add(32)

	snap, err := Gather(reg)
	require.NoError(t, err)
	require.Equal(t, float64(1), snap["wnrf_frames_sent_total"])
	require.Equal(t, float64(2), snap["wnrf_sessions_active"])
	require.Equal(t, float64(32), snap["wnrf_ota_bytes_written_total"])
}

func TestGatherReportsZeroForUntouchedCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	snap, err := Gather(reg)
	require.NoError(t, err)
	require.Equal(t, float64(0), snap["wnrf_devices_seen_total"])
}
