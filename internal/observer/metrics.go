package observer

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
)

var (
	metricsEnabled = true

	WebhookRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_console_webhook_requests_total",
			Help: "Webhook HTTP requests by method and result (accepted, invalid_signature, verified, verify_rejected, bad_request).",
		},
		[]string{"method", "result"},
	)
	LoadgenRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_console_loadgen_requests_total",
			Help: "Synthetic webhook deliveries sent by the load generator, by payload kind and result.",
		},
		[]string{"kind", "result"},
	)
	WebhookEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_console_webhook_entries_total",
			Help: "Webhook entries written to the audit log.",
		},
		[]string{"result"},
	)
	WebhookChangesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_console_webhook_changes_dropped_total",
			Help: "Webhook change blocks skipped, by reason.",
		},
		[]string{"reason"},
	)
	WebhookProcessingDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wa_console_webhook_processing_duration_seconds",
			Help:    "Time spent processing a whole webhook payload after it was acknowledged.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
	)

	MessagesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_console_messages_ingested_total",
			Help: "Inbound messages by type and result (created, duplicate, error).",
		},
		[]string{"organization_id", "type", "result"},
	)
	StatusUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_console_status_updates_total",
			Help: "Delivery status events by status and result (applied, unknown_message, stale, error).",
		},
		[]string{"organization_id", "status", "result"},
	)
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_console_messages_sent_total",
			Help: "Outbound send attempts by type and result.",
		},
		[]string{"organization_id", "type", "result"},
	)

	ProviderRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_console_provider_request_duration_seconds",
			Help:    "Latency of WhatsApp Cloud API calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status_code"},
	)

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_console_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "entity", "organization_id", "status"},
	)

	RealtimeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_console_realtime_events_total",
			Help: "Realtime events emitted by event name and room scope.",
		},
		[]string{"event", "scope"},
	)
	RealtimeRelayErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_console_realtime_relay_errors_total",
			Help: "Failures publishing realtime events to the external broker.",
		},
		[]string{"broker"},
	)
	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wa_console_websocket_connections",
			Help: "Currently connected websocket clients.",
		},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_console_cache_lookups_total",
			Help: "In-process cache lookups by cache and result (hit, negative_hit, miss).",
		},
		[]string{"cache", "result"},
	)

	WorkerPoolSubmitTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_console_worker_pool_submit_total",
			Help: "Webhook tasks handed to the worker pool by result (pooled, overflow).",
		},
		[]string{"result"},
	)
	WorkerPoolWaiting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wa_console_worker_pool_waiting",
			Help: "Webhook tasks waiting for a free worker.",
		},
	)
)

// InitMetrics toggles metric collection. Collectors are registered by
// promauto at package init either way.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IncWebhookRequest counts one webhook HTTP request.
func IncWebhookRequest(method, result string) {
	if !metricsEnabled {
		return
	}
	WebhookRequestsTotal.WithLabelValues(method, result).Inc()
}

// IncLoadgenRequest counts one synthetic delivery.
func IncLoadgenRequest(kind, result string) {
	if !metricsEnabled {
		return
	}
	LoadgenRequestsTotal.WithLabelValues(kind, result).Inc()
}

// IncWebhookEntry counts one audit log write.
func IncWebhookEntry(err error) {
	if !metricsEnabled {
		return
	}
	WebhookEntriesTotal.WithLabelValues(resultLabel(err)).Inc()
}

// IncWebhookChangeDropped counts a skipped change block.
func IncWebhookChangeDropped(reason string) {
	if !metricsEnabled {
		return
	}
	WebhookChangesDroppedTotal.WithLabelValues(reason).Inc()
}

// ObserveWebhookProcessing records the detached processing time of one payload.
func ObserveWebhookProcessing(d time.Duration) {
	if !metricsEnabled {
		return
	}
	WebhookProcessingDurationSeconds.Observe(d.Seconds())
}

// IncMessageIngested counts an inbound message outcome.
func IncMessageIngested(orgID, msgType, result string) {
	if !metricsEnabled {
		return
	}
	MessagesIngestedTotal.WithLabelValues(sanitizeOrg(orgID), msgType, result).Inc()
}

// IncStatusUpdate counts a delivery status outcome.
func IncStatusUpdate(orgID, status, result string) {
	if !metricsEnabled {
		return
	}
	StatusUpdatesTotal.WithLabelValues(sanitizeOrg(orgID), status, result).Inc()
}

// IncMessageSent counts an outbound send attempt.
func IncMessageSent(orgID, msgType string, err error) {
	if !metricsEnabled {
		return
	}
	MessagesSentTotal.WithLabelValues(sanitizeOrg(orgID), msgType, SanitizeErrorType(err)).Inc()
}

// ObserveProviderRequest records the latency of one Cloud API call.
func ObserveProviderRequest(operation string, statusCode int, d time.Duration) {
	if !metricsEnabled {
		return
	}
	ProviderRequestDurationSeconds.WithLabelValues(operation, strconv.Itoa(statusCode)).Observe(d.Seconds())
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity, orgID string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeOrg(orgID), resultLabel(err)).Observe(duration.Seconds())
}

// IncRealtimeEvent counts one fan-out emission.
func IncRealtimeEvent(event, scope string) {
	if !metricsEnabled {
		return
	}
	RealtimeEventsTotal.WithLabelValues(event, scope).Inc()
}

// IncRealtimeRelayError counts a failed broker publish.
func IncRealtimeRelayError(broker string) {
	if !metricsEnabled {
		return
	}
	RealtimeRelayErrorsTotal.WithLabelValues(broker).Inc()
}

// AddWebsocketConnections moves the connection gauge by delta.
func AddWebsocketConnections(delta int) {
	if !metricsEnabled {
		return
	}
	WebsocketConnections.Add(float64(delta))
}

// IncCacheLookup counts one cache lookup.
func IncCacheLookup(cache, result string) {
	if !metricsEnabled {
		return
	}
	CacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// IncWorkerPoolSubmit counts how a webhook task was scheduled.
func IncWorkerPoolSubmit(result string) {
	if !metricsEnabled {
		return
	}
	WorkerPoolSubmitTotal.WithLabelValues(result).Inc()
}

// SetWorkerPoolWaiting publishes the pool backlog.
func SetWorkerPoolWaiting(n int) {
	if !metricsEnabled {
		return
	}
	WorkerPoolWaiting.Set(float64(n))
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func sanitizeOrg(orgID string) string {
	if orgID == "" {
		return "unknown"
	}
	return orgID
}

// SanitizeErrorType collapses an error into a low-cardinality label.
func SanitizeErrorType(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, apperrors.ErrWindowExpired):
		return "window_expired"
	case errors.Is(err, apperrors.ErrConversationNotFound), errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrProvider):
		return "provider"
	case errors.Is(err, apperrors.ErrValidation), errors.Is(err, apperrors.ErrBadRequest):
		return "validation"
	case errors.Is(err, apperrors.ErrTimeout):
		return "timeout"
	case errors.Is(err, apperrors.ErrDatabase), errors.Is(err, apperrors.ErrDuplicate), errors.Is(err, apperrors.ErrConflict):
		return "database"
	default:
		return "unknown"
	}
}
