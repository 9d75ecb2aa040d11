package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.GitHubAPIRequests.WithLabelValues("repositories", "200").Inc()
	m.RetryAttempts.WithLabelValues("workflow_runs").Add(2)
	m.StreamsActive.WithLabelValues("sse").Inc()
	m.SnapshotsEmitted.Inc()
	m.BuildInfo.WithLabelValues("test").Set(1)

	if got := testutil.ToFloat64(m.RetryAttempts.WithLabelValues("workflow_runs")); got != 2 {
		t.Errorf("expected 2 retry attempts, got %v", got)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"actionboard_github_api_requests_total",
		"actionboard_retry_attempts_total",
		"actionboard_streams_active",
		"actionboard_snapshots_emitted_total",
		"actionboard_build_info",
	} {
		if !names[want] {
			t.Errorf("expected metric %s to be registered", want)
		}
	}
}

func TestNewMetricsRejectsDoubleRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)

	defer func() {
		if recover() == nil {
			t.Error("expected registering twice on one registry to panic")
		}
	}()
	NewMetrics(registry)
}
