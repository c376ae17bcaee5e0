package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitHits *prometheus.CounterVec
	solanaRPCRetries       *prometheus.CounterVec

	// Balance Verification Metrics
	balanceChecksTotal     *prometheus.CounterVec
	balanceMismatchesTotal prometheus.Counter

	// Account Lifecycle Metrics
	atasCreatedTotal        prometheus.Counter
	transfersSubmittedTotal prometheus.Counter
	accountsClosedTotal     prometheus.Counter
	lamportsRecoveredTotal  prometheus.Counter

	// Batch Metrics
	burnBatchWallets  *prometheus.CounterVec
	burnBatchDuration prometheus.Histogram

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec

	// Temporal Metrics
	activityDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),

		// Balance Verification Metrics
		balanceChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "balance_checks_total",
				Help: "Total number of balance verifications by resulting state and consistency",
			},
			[]string{"state", "consistent"},
		),
		balanceMismatchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "balance_mismatches_total",
				Help: "Total number of wallets excluded from cleanup due to cross-verification mismatch",
			},
		),

		// Account Lifecycle Metrics
		atasCreatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "atas_created_total",
				Help: "Total number of sponsor-paid associated token account creations",
			},
		),
		transfersSubmittedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "transfers_submitted_total",
				Help: "Total number of sponsored transfers confirmed on-chain",
			},
		),
		accountsClosedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "accounts_closed_total",
				Help: "Total number of token accounts closed for rent reclamation",
			},
		),
		lamportsRecoveredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lamports_recovered_total",
				Help: "Total rent-exemption lamports swept back to the treasury",
			},
		),

		// Batch Metrics
		burnBatchWallets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burn_batch_wallets_total",
				Help: "Total number of wallets handled by reclamation batches by outcome",
			},
			[]string{"outcome"},
		),
		burnBatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "burn_batch_duration_seconds",
				Help:    "Duration of reclamation batch runs in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),

		// Temporal Metrics
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "temporal_activity_duration_seconds",
				Help:    "Duration of Temporal activity executions in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"activity"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// Balance verification metric helpers

// RecordBalanceCheck records the outcome of one balance verification.
func (m *Metrics) RecordBalanceCheck(state string, consistent bool) {
	m.balanceChecksTotal.WithLabelValues(state, strconv.FormatBool(consistent)).Inc()
}

// RecordBalanceMismatch records a wallet excluded for manual review.
func (m *Metrics) RecordBalanceMismatch() {
	m.balanceMismatchesTotal.Inc()
}

// Account lifecycle metric helpers

// RecordATACreated records a sponsor-paid token account creation.
func (m *Metrics) RecordATACreated() {
	m.atasCreatedTotal.Inc()
}

// RecordTransferSubmitted records a confirmed sponsored transfer.
func (m *Metrics) RecordTransferSubmitted() {
	m.transfersSubmittedTotal.Inc()
}

// RecordAccountClosed records a closed token account and the rent swept
// back to the treasury.
func (m *Metrics) RecordAccountClosed(lamports uint64) {
	m.accountsClosedTotal.Inc()
	m.lamportsRecoveredTotal.Add(float64(lamports))
}

// Batch metric helpers

// RecordBurnBatch records the aggregate outcome of a reclamation batch.
func (m *Metrics) RecordBurnBatch(processed, burned, errored int, duration float64) {
	m.burnBatchWallets.WithLabelValues("processed").Add(float64(processed))
	m.burnBatchWallets.WithLabelValues("burned").Add(float64(burned))
	m.burnBatchWallets.WithLabelValues("errored").Add(float64(errored))
	m.burnBatchDuration.Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64) {
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
}

// RecordDBOperation records a database operation outcome.
func (m *Metrics) RecordDBOperation(operation, status string) {
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// Temporal metric helpers

// RecordActivityDuration records how long a Temporal activity took.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.activityDuration.WithLabelValues(activity).Observe(duration)
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish with duration.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}
