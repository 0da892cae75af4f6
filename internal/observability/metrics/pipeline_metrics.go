package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ProjectionOutcomeApplied = "applied"
	ProjectionOutcomeSkipped = "skipped"
	ProjectionOutcomeFailed  = "failed"
)

const (
	ProjectionReasonDeadlineExceeded     = "deadline_exceeded"
	ProjectionReasonDBLockTimeout        = "db_lock_timeout"
	ProjectionReasonSerializationFailure = "serialization_failure"
	ProjectionReasonUniqueViolation      = "unique_violation"
	ProjectionReasonConnection           = "connection"
	ProjectionReasonDecode               = "decode"
	ProjectionReasonUnknown              = "unknown"
)

// PipelineMetrics captures projector health. It lives on its own registry so
// worker processes without a scrape endpoint can push it.
type PipelineMetrics struct {
	messages *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	lag      prometheus.Histogram
}

func NewPipelineMetrics(registry *prometheus.Registry, cfg Config) *PipelineMetrics {
	labels := constLabels(cfg)

	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payhook_projector_messages_total",
		Help:        "Projector messages by action and outcome.",
		ConstLabels: labels,
	}, []string{"action", "outcome"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payhook_projector_errors_total",
		Help:        "Projector failures by low-cardinality reason.",
		ConstLabels: labels,
	}, []string{"action", "reason"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "payhook_projector_apply_duration_seconds",
		Help:        "Time spent applying one message to the subscription table.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: labels,
	}, []string{"action"})
	lag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "payhook_projector_delivery_lag_seconds",
		Help:        "Delay between publish and projector receipt.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		ConstLabels: labels,
	})

	if registry != nil {
		registry.MustRegister(messages, errs, duration, lag)
	}

	return &PipelineMetrics{
		messages: messages,
		errors:   errs,
		duration: duration,
		lag:      lag,
	}
}

func (m *PipelineMetrics) IncMessage(action, outcome string) {
	if m == nil || m.messages == nil {
		return
	}
	m.messages.WithLabelValues(action, outcome).Inc()
}

// IncError counts a failed apply with its classified reason.
func (m *PipelineMetrics) IncError(action string, err error) {
	if m == nil || err == nil || m.errors == nil {
		return
	}
	m.errors.WithLabelValues(action, ClassifyProjectionReason(err)).Inc()
}

func (m *PipelineMetrics) ObserveApply(action string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(action).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveDeliveryLag(lag time.Duration) {
	if m == nil || m.lag == nil {
		return
	}
	if lag < 0 {
		lag = 0
	}
	m.lag.Observe(lag.Seconds())
}

// ErrDecode marks messages that could not be decoded into an event.
var ErrDecode = errors.New("decode_failed")

// ClassifyProjectionReason maps projector errors to low-cardinality reasons.
func ClassifyProjectionReason(err error) string {
	if err == nil {
		return ProjectionReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ProjectionReasonDeadlineExceeded
	}
	if errors.Is(err, ErrDecode) {
		return ProjectionReasonDecode
	}
	if isDBLockTimeout(err) {
		return ProjectionReasonDBLockTimeout
	}
	if isSerializationFailure(err) {
		return ProjectionReasonSerializationFailure
	}
	if isUniqueViolation(err) {
		return ProjectionReasonUniqueViolation
	}
	if isConnectionFailure(err) {
		return ProjectionReasonConnection
	}
	return ProjectionReasonUnknown
}

// IsProjectionErrorRetryable reports whether redelivery could succeed.
func IsProjectionErrorRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrDecode) {
		return false
	}
	return true
}

func isDBLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

func isSerializationFailure(err error) bool {
	return hasPGCode(err, "40001") || hasPGCode(err, "40P01")
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func isConnectionFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == "08"
	}
	return pgconn.SafeToRetry(err)
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
