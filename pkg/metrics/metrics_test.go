package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m == nil {
		t.Fatal("NewMetrics() returned nil")
	}

	if m.registry == nil {
		t.Error("registry should not be nil")
	}

	if m.Run == nil {
		t.Error("Run metrics should not be nil")
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()

	handler := m.Handler()
	if handler == nil {
		t.Fatal("Handler() returned nil")
	}

	// Test that the handler serves metrics
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()

	// Check for Go runtime metrics (always present)
	if !strings.Contains(body, "go_") {
		t.Error("expected Go runtime metrics in response")
	}

	// Check for process metrics (always present)
	if !strings.Contains(body, "process_") {
		t.Error("expected process metrics in response")
	}
}

func TestRunMetricsRecording(t *testing.T) {
	m := NewMetrics()

	// Test RecordStep
	m.Run.RecordStep("connecting", "ok", 0.5)
	m.Run.RecordStep("downloading", "failed", 30.0)

	// Test RecordResult
	m.Run.RecordResult("succeeded")
	m.Run.RecordResult("failed")
	m.Run.RecordResult("skipped_already_installed")

	// Test RecordBatch
	m.Run.RecordBatch()
	m.Run.RecordBatch()

	// Test RecordRunComplete
	m.Run.RecordRunComplete(120.0)

	// Test PipelineStarted and PipelineFinished
	m.Run.PipelineStarted()
	m.Run.PipelineStarted()
	m.Run.PipelineFinished()

	// Test SetHostCount
	m.Run.SetHostCount(12)

	// Test RecordConnectRetry
	m.Run.RecordConnectRetry()

	// Verify metrics are exposed
	handler := m.Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	body := w.Body.String()

	// Check for our custom metrics
	expectedMetrics := []string{
		"rollout_run_hosts_total",
		"rollout_run_pipelines_active",
		"rollout_run_results_total",
		"rollout_pipeline_step_duration_seconds",
		"rollout_pipeline_steps_total",
		"rollout_scheduler_batches_total",
		"rollout_run_duration_seconds",
		"rollout_ssh_connect_retries_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("expected metric %s in response", metric)
		}
	}
}

func TestMetricsRegistry(t *testing.T) {
	m := NewMetrics()

	registry := m.Registry()
	if registry == nil {
		t.Error("Registry() should not return nil")
	}

	// Verify we can gather metrics from the registry
	families, err := registry.Gather()
	if err != nil {
		t.Errorf("failed to gather metrics: %v", err)
	}

	if len(families) == 0 {
		t.Error("expected at least some metric families")
	}
}
