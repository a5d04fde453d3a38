package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Chain RPC Metrics (EVM and Solana)
	chainRPCCallsTotal   *prometheus.CounterVec
	chainRPCCallDuration *prometheus.HistogramVec

	// Payment Orchestration Metrics
	paymentOperationsTotal   *prometheus.CounterVec
	paymentOperationDuration *prometheus.HistogramVec
	batchRecipientsPerJob    *prometheus.HistogramVec
	batchRecipientResults    *prometheus.CounterVec
	feesCollectedBaseUnits   *prometheus.CounterVec

	// Invoice Metrics
	invoicesCreatedTotal *prometheus.CounterVec
	invoicesSettledTotal *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// Notification (NATS) Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec

	// Workflow Metrics
	disbursementWorkflowDuration *prometheus.HistogramVec
	disbursementActivityDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		chainRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_rpc_calls_total",
				Help: "Total number of chain RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		chainRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chain_rpc_call_duration_seconds",
				Help:    "Duration of chain RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),

		paymentOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_operations_total",
				Help: "Total number of payment orchestrations by operation, chain family and outcome",
			},
			[]string{"operation", "family", "status"},
		),
		paymentOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payment_operation_duration_seconds",
				Help:    "End-to-end duration of payment orchestrations in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"operation", "family"},
		),
		batchRecipientsPerJob: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batch_recipients_per_job",
				Help:    "Number of recipients per batch payment job",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
			[]string{"family"},
		),
		batchRecipientResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batch_recipient_results_total",
				Help: "Per-recipient batch payment outcomes",
			},
			[]string{"family", "status"},
		),
		feesCollectedBaseUnits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fees_collected_base_units_total",
				Help: "Protocol fees collected in base units by currency",
			},
			[]string{"currency", "network"},
		),

		invoicesCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoices_created_total",
				Help: "Total number of invoices created",
			},
			[]string{"currency", "network"},
		),
		invoicesSettledTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoices_settled_total",
				Help: "Total number of invoices settled (pending to paid)",
			},
			[]string{"currency", "network"},
		),

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

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

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

		disbursementWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "disbursement_workflow_duration_seconds",
				Help:    "Duration of disbursement workflow executions in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		disbursementActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "disbursement_activity_duration_seconds",
				Help:    "Duration of disbursement workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity"},
		),
	}
}

// Chain RPC metric helpers

// RecordRPCCall records a chain RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.chainRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.chainRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// Payment orchestration metric helpers

// RecordPaymentOperation records a completed payment orchestration.
func (m *Metrics) RecordPaymentOperation(operation, family, status string, duration float64) {
	m.paymentOperationsTotal.WithLabelValues(operation, family, status).Inc()
	m.paymentOperationDuration.WithLabelValues(operation, family).Observe(duration)
}

// RecordBatchJob records the size of a batch payment job.
func (m *Metrics) RecordBatchJob(family string, recipients int) {
	m.batchRecipientsPerJob.WithLabelValues(family).Observe(float64(recipients))
}

// RecordBatchRecipient records one recipient's outcome within a batch.
func (m *Metrics) RecordBatchRecipient(family, status string) {
	m.batchRecipientResults.WithLabelValues(family, status).Inc()
}

// RecordFeeCollected records protocol fees charged, in base units.
func (m *Metrics) RecordFeeCollected(currency, network string, baseUnits float64) {
	m.feesCollectedBaseUnits.WithLabelValues(currency, network).Add(baseUnits)
}

// Invoice metric helpers

// RecordInvoiceCreated records an invoice entering pending state.
func (m *Metrics) RecordInvoiceCreated(currency, network string) {
	m.invoicesCreatedTotal.WithLabelValues(currency, network).Inc()
}

// RecordInvoiceSettled records a pending invoice transitioning to paid.
func (m *Metrics) RecordInvoiceSettled(currency, network string) {
	m.invoicesSettledTotal.WithLabelValues(currency, network).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Workflow metric helpers

// RecordWorkflowDuration records disbursement workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(status string, duration float64) {
	m.disbursementWorkflowDuration.WithLabelValues(status).Observe(duration)
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.disbursementActivityDuration.WithLabelValues(activity).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
