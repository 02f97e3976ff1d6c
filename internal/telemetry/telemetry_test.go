package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	if m == nil {
		t.Fatal("expected metrics instance, got nil")
	}
	if m.JobsTotal == nil {
		t.Error("JobsTotal should not be nil")
	}
	if m.StepDuration == nil {
		t.Error("StepDuration should not be nil")
	}

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	if len(metricFamilies) == 0 {
		t.Error("expected metrics to be registered")
	}
}

func TestRecordJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordJob("test-service", "schedule", "success")
	m.RecordJob("test-service", "manual", "failed")
}

func TestRecordRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordRun("test-service", "pipeline-1", "success", 2*time.Second)
	m.RecordRun("test-service", "pipeline-1", "failed", 500*time.Millisecond)
}

func TestRecordStep(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordStep("test-service", "map", "success", 10*time.Millisecond, 100, 98, 4096)
}

func TestRecordQuarantine(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordQuarantine("test-service", "pipeline-1", "schema_mismatch", 3)
}

func TestSetQueueDepth(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.SetQueueDepth(5, 2)
	m.SetQueueDepth(0, 0)
}

func TestRecordConnectorAcquire(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordConnectorAcquire("test-service", "postgresql", 5*time.Millisecond, 3)
}

func TestAgentMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.SetAgentsOnline("test-service", "online", 4)
	m.RecordAgentHeartbeat("test-service", "agent-123")
}

func TestEphemeralAndCacheMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordEphemeralJob("test-service", "explorer_query", "success")
	m.RecordCacheLookup("test-service", "conn-1", true)
	m.RecordCacheLookup("test-service", "conn-1", false)
}

func TestUpdateUptime(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.UpdateUptime(time.Now().Add(-1 * time.Hour))
}
