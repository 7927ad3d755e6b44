package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels for page fetches
const (
	PageSuccess = "success"
	PageError   = "error"
)

var (
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_pages_fetched_total",
			Help: "Total number of registry listing pages fetched, by result",
		},
		[]string{"result"},
	)

	RowParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registry_row_parse_errors_total",
			Help: "Total number of listing rows that could not be parsed",
		},
	)

	RecordsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_records_upserted_total",
			Help: "Total number of records written, by outcome (insert, update, touch, error)",
		},
		[]string{"source", "outcome"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "registry_sync_duration_seconds",
			Help:    "Duration of sync and import runs in seconds",
			Buckets: []float64{1, 10, 30, 60, 300, 600, 1200, 1800, 3600},
		},
		[]string{"source"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_sync_runs_total",
			Help: "Total number of runs, by source and final status",
		},
		[]string{"source", "status"},
	)

	LastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "registry_sync_last_success_timestamp",
			Help: "Unix timestamp of the last successful run",
		},
		[]string{"source"},
	)

	RunActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_sync_active",
			Help: "1 while a sync or import run holds the progress tracker",
		},
	)
)

// RecordPage records the outcome of one page fetch.
func RecordPage(err error) {
	if err != nil {
		PagesFetched.WithLabelValues(PageError).Inc()
		return
	}
	PagesFetched.WithLabelValues(PageSuccess).Inc()
}

// RecordUpsert records the outcome of one record write.
func RecordUpsert(source, outcome string) {
	RecordsUpserted.WithLabelValues(source, outcome).Inc()
}

// RecordRun records a finished run.
func RecordRun(source, status string, duration time.Duration, finishedAt time.Time) {
	RunDuration.WithLabelValues(source).Observe(duration.Seconds())
	RunsTotal.WithLabelValues(source, status).Inc()
	if status == "completed" {
		LastSuccess.WithLabelValues(source).Set(float64(finishedAt.Unix()))
	}
}

// TrackActiveRun flips the active-run gauge.
func TrackActiveRun(active bool) {
	if active {
		RunActive.Set(1)
		return
	}
	RunActive.Set(0)
}
