// Package metrics defines the Prometheus collectors the Radio Link Core
// updates as it runs. The core never binds an HTTP listener itself; callers
// supply a prometheus.Registerer (the default registry, or one scoped to
// their own /metrics handler) and scrape it however they see fit.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics is the set of collectors the bridge updates. Construct once per
// Bridge with New and pass the same value into every call site that needs
// to record an event.
type Metrics struct {
	FramesSent      *prometheus.CounterVec // broadcast frames written, by mode (legacy/universe)
	BroadcastMissed prometheus.Counter     // Show() calls that found the pacer not yet due
	SessionsActive  prometheus.Gauge       // P2P slots currently occupied
	SessionRetries  *prometheus.CounterVec // retransmits, by bind reason
	SessionFailures *prometheus.CounterVec // sessions that exhausted their retry budget, by bind reason
	SessionSuccess  *prometheus.CounterVec // sessions that completed successfully, by bind reason
	OTABytesWritten prometheus.Counter     // firmware bytes committed across all flash sessions
	DevicesSeen     prometheus.Counter     // device-info replies observed (repeats included)
	DeviceListPush  prometheus.Counter     // batched discovery pushes delivered to the observer
}

// New registers every collector against reg and returns the handle used to
// update them. reg is typically prometheus.DefaultRegisterer, or a registry
// the caller owns for test isolation.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wnrf",
				Name:      "frames_sent_total",
				Help:      "Broadcast DMX frames written to the radio.",
			},
			[]string{"mode"},
		),
		BroadcastMissed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "wnrf",
				Name:      "broadcast_missed_total",
				Help:      "Show() calls skipped because the pacer was not yet due.",
			},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "wnrf",
				Name:      "sessions_active",
				Help:      "Point-to-point sessions currently occupying a slot.",
			},
		),
		SessionRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wnrf",
				Name:      "session_retries_total",
				Help:      "Command/OTA frame retransmits, by bind reason.",
			},
			[]string{"reason"},
		),
		SessionFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wnrf",
				Name:      "session_failures_total",
				Help:      "Sessions that exhausted their retry budget, by bind reason.",
			},
			[]string{"reason"},
		),
		SessionSuccess: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wnrf",
				Name:      "session_success_total",
				Help:      "Sessions that completed successfully, by bind reason.",
			},
			[]string{"reason"},
		),
		OTABytesWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "wnrf",
				Name:      "ota_bytes_written_total",
				Help:      "Firmware bytes committed to devices across all flash sessions.",
			},
		),
		DevicesSeen: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "wnrf",
				Name:      "devices_seen_total",
				Help:      "Device-info replies observed during discovery.",
			},
		),
		DeviceListPush: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "wnrf",
				Name:      "device_list_pushes_total",
				Help:      "Batched discovery pushes delivered to the observer.",
			},
		),
	}
}

// Snapshot is a flattened metric family name -> value reading, built from a
// Gatherer pull rather than a push (the core has no MQTT/HTTP collaborator
// of its own to publish to — this only feeds a periodic log line).
type Snapshot map[string]float64

// Gather pulls the current values of every metric registered against
// gatherer and extracts the one number that matters for each family
// (counter/gauge value, or histogram/summary sample sum).
func Gather(gatherer prometheus.Gatherer) (Snapshot, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return nil, err
	}
	snap := make(Snapshot, len(families))
	for _, mf := range families {
		var total float64
		for _, m := range mf.GetMetric() {
			if v := extractValue(m); v != nil {
				total += *v
			}
		}
		snap[mf.GetName()] = total
	}
	return snap, nil
}

func extractValue(m *dto.Metric) *float64 {
	if g := m.GetGauge(); g != nil {
		v := g.GetValue()
		return &v
	}
	if c := m.GetCounter(); c != nil {
		v := c.GetValue()
		return &v
	}
	if h := m.GetHistogram(); h != nil {
		v := h.GetSampleSum()
		return &v
	}
	if s := m.GetSummary(); s != nil {
		v := s.GetSampleSum()
		return &v
	}
	return nil
}
