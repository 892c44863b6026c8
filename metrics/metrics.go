package metrics

import "github.com/prometheus/client_golang/prometheus"

// Keys for livesweep metrics.
const (
	Fail = "fail"
	Ok   = "ok"

	// Outcomes of a dispatched store event.
	Applied = "applied"
	Skipped = "skipped"
	Stale   = "stale"
)

// Collectors for livestate.LiveState metrics.
var (
	LiveStateRegistrations = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livesweep_livestate_registrations",
		Help: "Current number of registered store subscriptions across all LiveStates.",
	})
	LiveStateEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livesweep_livestate_events_total",
		Help: "Cumulative number of dispatched store events, by kind and outcome.",
	}, []string{"kind", "outcome"})
	LiveStatePatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livesweep_livestate_patches_total",
		Help: "Cumulative number of write-back patches, by status.",
	}, []string{"status"})
	LiveStatePatchOps = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "livesweep_livestate_patch_ops",
		Help:    "Number of paths included in each write-back patch.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)

// Collectors for remote.Store implementations.
var (
	StoreOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livesweep_store_ops_total",
		Help: "Cumulative number of store operations, by store, operation, and status.",
	}, []string{"store", "op", "status"})
	StoreWebsocketConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livesweep_store_websocket_connections",
		Help: "Current number of connected websocket store clients.",
	})
	GamesCleanedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livesweep_games_cleaned_total",
		Help: "Cumulative number of entries removed by cleanup, by kind (player, game, code).",
	}, []string{"kind"})
)

// LiveStateCollectors returns collectors of livestate.LiveState.
func LiveStateCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		LiveStateRegistrations,
		LiveStateEventsTotal,
		LiveStatePatchesTotal,
		LiveStatePatchOps,
	}
}

// StoreCollectors returns collectors of remote.Store implementations and
// their servers.
func StoreCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		StoreOpsTotal,
		StoreWebsocketConnections,
		GamesCleanedTotal,
	}
}

// Status maps |err| to a status label.
func Status(err error) string {
	if err != nil {
		return Fail
	}
	return Ok
}
