package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync run outcomes
const (
	OutcomeSuccess    = "success"
	OutcomeNoop       = "noop"
	OutcomeValidation = "validation"
	OutcomeResolution = "resolution"
	OutcomeTransport  = "transport"
	OutcomeError      = "error"
)

var (
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_sync_runs_total",
			Help: "Total number of ingestor runs by outcome",
		},
		[]string{"outcome"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "treasury_sync_duration_seconds",
			Help:    "Time taken by one ingestor run",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	EventsInsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_events_inserted_total",
			Help: "Total number of ledger entries inserted by event type",
		},
		[]string{"event_type"},
	)

	DuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "treasury_events_duplicate_total",
			Help: "Total number of events already present in the ledger",
		},
	)

	DecodeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "treasury_decode_errors_total",
			Help: "Total number of logs that failed to decode",
		},
	)

	TimestampFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "treasury_timestamp_failures_total",
			Help: "Total number of blocks whose timestamp could not be fetched",
		},
	)

	ReconcileDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "treasury_reconcile_deleted_total",
			Help: "Total number of treasuries removed by the reconciler",
		},
	)

	GuardAbortsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_guard_aborts_total",
			Help: "Total number of reconcile submissions emptied by the mass-deletion guard",
		},
		[]string{"reason"},
	)

	LastSyncedBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "treasury_last_synced_block",
			Help: "Upper bound of the most recent completed sync run",
		},
	)
)
