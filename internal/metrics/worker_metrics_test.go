package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var out dto.Metric
	if err := g.Write(&out); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	return out.GetGauge().GetValue()
}

func TestOutboxMetrics(t *testing.T) {
	m := NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordAttempt(PublishSent)
	m.RecordAttempt(PublishRetryError)
	m.RecordAttempt(PublishRetryError)
	m.SetBacklog(7, -time.Second)

	if got := counterValue(t, m.attempts.WithLabelValues(PublishRetryError)); got != 2 {
		t.Fatalf("expected 2 retry errors, got %v", got)
	}
	if got := gaugeValue(t, m.pending); got != 7 {
		t.Fatalf("expected pending 7, got %v", got)
	}
	if got := gaugeValue(t, m.oldestPendingAge); got != 0 {
		t.Fatalf("negative age must clamp to 0, got %v", got)
	}
}

func TestCleanupMetrics(t *testing.T) {
	m := NewCleanupMetricsWithRegisterer(prometheus.NewRegistry())

	m.AddDeleted(3)
	m.AddDeleted(0)
	m.RecordRun(true, 3)
	m.RecordRun(false, 0)

	if got := counterValue(t, m.deleted); got != 3 {
		t.Fatalf("expected 3 deleted, got %v", got)
	}
	if got := gaugeValue(t, m.lastDeleted); got != 3 {
		t.Fatalf("expected last deleted 3, got %v", got)
	}
	if got := counterValue(t, m.runs.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed run, got %v", got)
	}
}
