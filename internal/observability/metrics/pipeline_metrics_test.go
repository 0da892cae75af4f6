package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyProjectionReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: ProjectionReasonDeadlineExceeded,
		},
		{
			name: "decode",
			err:  fmt.Errorf("bad body: %w", ErrDecode),
			want: ProjectionReasonDecode,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: ProjectionReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: ProjectionReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: ProjectionReasonUniqueViolation,
		},
		{
			name: "connection",
			err:  &pgconn.PgError{Code: "08006"},
			want: ProjectionReasonConnection,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: ProjectionReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyProjectionReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestPipelineMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPipelineMetrics(registry, Config{ServiceName: "payhook", Environment: "test"})

	m.IncMessage("deleted", ProjectionOutcomeApplied)
	m.IncMessage("deleted", ProjectionOutcomeApplied)
	m.IncError("updated", &pgconn.PgError{Code: "40001"})
	m.ObserveApply("deleted", 10*time.Millisecond)
	m.ObserveDeliveryLag(-time.Second)

	if got := testutil.ToFloat64(m.messages.WithLabelValues("deleted", ProjectionOutcomeApplied)); got != 2 {
		t.Fatalf("expected 2 applied messages, got %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("updated", ProjectionReasonSerializationFailure)); got != 1 {
		t.Fatalf("expected 1 serialization error, got %v", got)
	}
	if IsProjectionErrorRetryable(ErrDecode) {
		t.Fatalf("decode errors must not be retried")
	}
}

func TestNilPipelineMetricsAreSafe(t *testing.T) {
	var m *PipelineMetrics
	m.IncMessage("created", ProjectionOutcomeSkipped)
	m.IncError("created", errors.New("boom"))
	m.ObserveApply("created", time.Second)
	m.ObserveDeliveryLag(time.Second)
}
