package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxSweeps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_sweeps_total",
			Help: "Monitoring sweeps completed",
		},
	)

	mtxSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "monitor_sweep_duration_seconds",
			Help:    "Duration of a full monitoring sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	mtxCallsChecked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_calls_checked_total",
			Help: "Active calls evaluated by the sweep",
		},
	)

	mtxHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_hits_total",
			Help: "Price-level hits by tier",
		},
		[]string{"tier"},
	)

	mtxExpirations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_expirations_total",
			Help: "Calls closed by expiry",
		},
	)

	mtxFeedErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_feed_errors_total",
			Help: "Price feed failures recorded per call",
		},
	)

	mtxPositionsExited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_positions_exited_total",
			Help: "Portfolio positions auto-exited on call closure",
		},
	)
)

func init() {
	prometheus.MustRegister(
		mtxSweeps,
		mtxSweepDuration,
		mtxCallsChecked,
		mtxHits,
		mtxExpirations,
		mtxFeedErrors,
		mtxPositionsExited,
	)
}
