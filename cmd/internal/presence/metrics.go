package presence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the engine's Prometheus collectors.
// A nil *Metrics is valid and records nothing, which keeps tests quiet.
type Metrics struct {
	ConnectedSessions   prometheus.Gauge
	LocationUpdates     prometheus.Counter
	InvalidLocations    prometheus.Counter
	StatusBroadcasts    prometheus.Counter
	DistancePushes      prometheus.Counter
	PersistenceFailures prometheus.Counter
}

// NewMetrics registers the engine collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ConnectedSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "vicinity_connected_sessions",
			Help: "Number of currently registered websocket sessions.",
		}),
		LocationUpdates: f.NewCounter(prometheus.CounterOpts{
			Name: "vicinity_location_updates_total",
			Help: "Accepted updateLocation events.",
		}),
		InvalidLocations: f.NewCounter(prometheus.CounterOpts{
			Name: "vicinity_invalid_locations_total",
			Help: "Rejected updateLocation events (out-of-range coordinates).",
		}),
		StatusBroadcasts: f.NewCounter(prometheus.CounterOpts{
			Name: "vicinity_status_broadcasts_total",
			Help: "userStatus presence broadcasts.",
		}),
		DistancePushes: f.NewCounter(prometheus.CounterOpts{
			Name: "vicinity_distance_pushes_total",
			Help: "Targeted nearbyDistances pushes.",
		}),
		PersistenceFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "vicinity_persistence_failures_total",
			Help: "Best-effort last-location store calls that failed.",
		}),
	}
}

func (m *Metrics) sessionGaugeSet(n int) {
	if m == nil {
		return
	}
	m.ConnectedSessions.Set(float64(n))
}

func (m *Metrics) incLocationUpdates() {
	if m != nil {
		m.LocationUpdates.Inc()
	}
}

func (m *Metrics) incInvalidLocations() {
	if m != nil {
		m.InvalidLocations.Inc()
	}
}

func (m *Metrics) incStatusBroadcasts() {
	if m != nil {
		m.StatusBroadcasts.Inc()
	}
}

func (m *Metrics) incDistancePushes() {
	if m != nil {
		m.DistancePushes.Inc()
	}
}

func (m *Metrics) incPersistenceFailures() {
	if m != nil {
		m.PersistenceFailures.Inc()
	}
}
