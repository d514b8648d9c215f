package peernetic

import (
	"sync/atomic"

	gometrics "github.com/hashicorp/go-metrics"
)

// Metrics tracks operational counters for a Host. Counters are lock-free
// (atomic int64); each PublishTo call mirrors one snapshot into a
// github.com/hashicorp/go-metrics sink so a real metrics backend (statsd,
// Prometheus via a bridge, etc.) can observe them without this package
// taking a hard dependency on any particular backend.
//
// Grounded on theatre's metrics.go (same counter set and Snapshot() shape);
// the expvar publishing step is replaced by go-metrics per SPEC_FULL.md
// §2, sourced from raskyld-grinta's dependency set since theatre itself
// carries no metrics library.
type Metrics struct {
	MessagesSent         atomic.Int64
	MessagesReceived     atomic.Int64
	MessagesDeadLettered atomic.Int64

	ActivationsTotal atomic.Int64

	RequestsTotal    atomic.Int64
	RequestsTimedOut atomic.Int64

	RetransmissionsTotal atomic.Int64
	DiscardsTotal        atomic.Int64

	SchedulesFired     atomic.Int64
	SchedulesCancelled atomic.Int64

	SimulatorEventsProcessed atomic.Int64
}

func newMetrics() *Metrics {
	return &Metrics{}
}

// Snapshot returns all metric values as a map, suitable for JSON
// serialization by an admin/status endpoint.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"messages_sent":              m.MessagesSent.Load(),
		"messages_received":          m.MessagesReceived.Load(),
		"messages_dead_lettered":     m.MessagesDeadLettered.Load(),
		"activations_total":          m.ActivationsTotal.Load(),
		"requests_total":             m.RequestsTotal.Load(),
		"requests_timed_out":         m.RequestsTimedOut.Load(),
		"retransmissions_total":      m.RetransmissionsTotal.Load(),
		"discards_total":             m.DiscardsTotal.Load(),
		"schedules_fired":            m.SchedulesFired.Load(),
		"schedules_cancelled":        m.SchedulesCancelled.Load(),
		"simulator_events_processed": m.SimulatorEventsProcessed.Load(),
	}
}

// PublishTo mirrors one snapshot of every counter into sink under the
// "peernetic." metric namespace. Callers that want continuous export run
// this on a ticker; the Host itself never calls it automatically, keeping
// metrics backend selection entirely in the embedding application's hands.
func (m *Metrics) PublishTo(sink gometrics.MetricSink) {
	for name, val := range m.Snapshot() {
		sink.SetGauge([]string{"peernetic", name}, float32(val))
	}
}
