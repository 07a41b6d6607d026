package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvocationsTotal tracks engine invocations per job and outcome
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_invocations_total",
			Help: "Total number of fallback invocations",
		},
		[]string{"job", "outcome"},
	)

	// ScanChunksTotal tracks range queries issued by the scanner
	ScanChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_scan_chunks_total",
			Help: "Total number of range chunks scanned",
		},
		[]string{"job"},
	)

	// ScannedRecordsTotal tracks raw records returned by range queries
	ScannedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_scanned_records_total",
			Help: "Total number of raw records returned by range queries",
		},
		[]string{"job"},
	)

	// DecodeFailuresTotal tracks records dropped by the decoder
	DecodeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_decode_failures_total",
			Help: "Total number of records dropped because they could not be decoded",
		},
		[]string{"job"},
	)

	// PrunedTotal tracks queue removals per reason
	PrunedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_pruned_total",
			Help: "Total number of requests removed from the queue",
		},
		[]string{"job", "reason"},
	)

	// QueueSize tracks the persisted queue length
	QueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keeper_queue_size",
			Help: "Number of pending requests in the persisted queue",
		},
		[]string{"job"},
	)

	// CursorPosition tracks the persisted scan position
	CursorPosition = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keeper_cursor_position",
			Help: "Last scanned position persisted for the job",
		},
		[]string{"job"},
	)

	// RPCCallsTotal tracks JSON-RPC calls per method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks failed JSON-RPC calls per method
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"provider", "method"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keeper_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// DBConnectionPoolUsage tracks the share of open Postgres connections
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keeper_db_connection_pool_usage_percent",
			Help: "Open database connections as a percentage of the pool size",
		},
	)
)
