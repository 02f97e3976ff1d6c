// Package telemetry registers the Prometheus collectors the job control
// plane, executor, and agent fleet report through: run/step counters, chunk
// throughput, and agent liveness gauges.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector SynqX registers.
type Metrics struct {
	// Job control plane
	JobsTotal    *prometheus.CounterVec
	RunsTotal    *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	QueuedJobs   prometheus.Gauge
	RunningJobs  prometheus.Gauge

	// Pipeline executor
	StepDuration  *prometheus.HistogramVec
	StepsTotal    *prometheus.CounterVec
	ChunkRowsIn   *prometheus.CounterVec
	ChunkRowsOut  *prometheus.CounterVec
	ChunkBytes    *prometheus.CounterVec
	QuarantinedRows *prometheus.CounterVec

	// Connector pool
	ConnectorPoolOpen *prometheus.GaugeVec
	ConnectorAcquireDuration *prometheus.HistogramVec

	// Agent fleet
	AgentsOnline    *prometheus.GaugeVec
	AgentHeartbeats *prometheus.CounterVec

	// Ephemeral jobs / result cache
	EphemeralJobsTotal *prometheus.CounterVec
	CacheHitsTotal     *prometheus.CounterVec
	CacheMissesTotal   *prometheus.CounterVec

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer,
// for tests that want an isolated registry instead of the process-global
// default.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synqx_jobs_total",
				Help: "Total number of jobs submitted, by trigger type and outcome",
			},
			[]string{"service", "trigger", "status"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synqx_pipeline_runs_total",
				Help: "Total number of pipeline runs, by final status",
			},
			[]string{"service", "pipeline", "status"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synqx_pipeline_run_duration_seconds",
				Help:    "Pipeline run wall-clock duration in seconds",
				Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"service", "pipeline"},
		),
		QueuedJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "synqx_jobs_queued",
				Help: "Current number of jobs waiting for agent assignment",
			},
		),
		RunningJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "synqx_jobs_running",
				Help: "Current number of jobs executing on an agent",
			},
		),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synqx_step_duration_seconds",
				Help:    "Per-node step duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"service", "operator_class"},
		),
		StepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synqx_steps_total",
				Help: "Total number of node steps executed, by outcome",
			},
			[]string{"service", "operator_class", "status"},
		),
		ChunkRowsIn: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synqx_chunk_rows_in_total",
				Help: "Total rows consumed by a node's operator",
			},
			[]string{"service", "operator_class"},
		),
		ChunkRowsOut: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synqx_chunk_rows_out_total",
				Help: "Total rows emitted by a node's operator",
			},
			[]string{"service", "operator_class"},
		),
		ChunkBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synqx_chunk_bytes_total",
				Help: "Total estimated bytes streamed through a node",
			},
			[]string{"service", "operator_class"},
		),
		QuarantinedRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synqx_quarantined_rows_total",
				Help: "Total rows routed to quarantine, by reason",
			},
			[]string{"service", "pipeline", "reason"},
		),

		ConnectorPoolOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "synqx_connector_pool_open",
				Help: "Current number of open pooled connector instances, by kind",
			},
			[]string{"service", "connector_kind"},
		),
		ConnectorAcquireDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synqx_connector_acquire_duration_seconds",
				Help:    "Time spent acquiring a pooled connector instance",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"service", "connector_kind"},
		),

		AgentsOnline: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "synqx_agents_online",
				Help: "Current number of agents in each effective status",
			},
			[]string{"service", "status"},
		),
		AgentHeartbeats: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synqx_agent_heartbeats_total",
				Help: "Total heartbeats received, by agent client id",
			},
			[]string{"service", "client_id"},
		),

		EphemeralJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synqx_ephemeral_jobs_total",
				Help: "Total ephemeral jobs submitted, by type and outcome",
			},
			[]string{"service", "type", "status"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synqx_result_cache_hits_total",
				Help: "Total result-cache hits, by connection",
			},
			[]string{"service", "connection"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synqx_result_cache_misses_total",
				Help: "Total result-cache misses, by connection",
			},
			[]string{"service", "connection"},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "synqx_service_uptime_seconds",
				Help: "Seconds since the service process started",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "synqx_service_info",
				Help: "Static service build info, value always 1",
			},
			[]string{"service", "version"},
		),
	}

	collectors := []prometheus.Collector{
		m.JobsTotal, m.RunsTotal, m.RunDuration, m.QueuedJobs, m.RunningJobs,
		m.StepDuration, m.StepsTotal, m.ChunkRowsIn, m.ChunkRowsOut, m.ChunkBytes, m.QuarantinedRows,
		m.ConnectorPoolOpen, m.ConnectorAcquireDuration,
		m.AgentsOnline, m.AgentHeartbeats,
		m.EphemeralJobsTotal, m.CacheHitsTotal, m.CacheMissesTotal,
		m.ServiceUptime, m.ServiceInfo,
	}
	for _, c := range collectors {
		registerer.MustRegister(c)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "dev").Set(1)
	return m
}

// RecordJob counts one job status change under trigger and status;
// jobs.Service calls it on submission, on completion and on manual retry.
func (m *Metrics) RecordJob(service, trigger, status string) {
	m.JobsTotal.WithLabelValues(service, trigger, status).Inc()
}

// RecordRun records a pipeline run's terminal outcome and duration.
func (m *Metrics) RecordRun(service, pipeline, status string, duration time.Duration) {
	m.RunsTotal.WithLabelValues(service, pipeline, status).Inc()
	m.RunDuration.WithLabelValues(service, pipeline).Observe(duration.Seconds())
}

// RecordStep records one node's step outcome, duration, and chunk volume.
func (m *Metrics) RecordStep(service, operatorClass, status string, duration time.Duration, rowsIn, rowsOut int, bytes int64) {
	m.StepsTotal.WithLabelValues(service, operatorClass, status).Inc()
	m.StepDuration.WithLabelValues(service, operatorClass).Observe(duration.Seconds())
	m.ChunkRowsIn.WithLabelValues(service, operatorClass).Add(float64(rowsIn))
	m.ChunkRowsOut.WithLabelValues(service, operatorClass).Add(float64(rowsOut))
	m.ChunkBytes.WithLabelValues(service, operatorClass).Add(float64(bytes))
}

// RecordQuarantine records rows routed to quarantine for a given reason.
func (m *Metrics) RecordQuarantine(service, pipeline, reason string, count int) {
	m.QuarantinedRows.WithLabelValues(service, pipeline, reason).Add(float64(count))
}

// SetQueueDepth sets the current queued/running job gauges.
func (m *Metrics) SetQueueDepth(queued, running int) {
	m.QueuedJobs.Set(float64(queued))
	m.RunningJobs.Set(float64(running))
}

// RecordConnectorAcquire records a connector pool acquisition and the
// resulting pool size.
func (m *Metrics) RecordConnectorAcquire(service, connectorKind string, duration time.Duration, poolOpen int) {
	m.ConnectorAcquireDuration.WithLabelValues(service, connectorKind).Observe(duration.Seconds())
	m.ConnectorPoolOpen.WithLabelValues(service, connectorKind).Set(float64(poolOpen))
}

// SetAgentsOnline sets the gauge for the number of agents in status.
func (m *Metrics) SetAgentsOnline(service, status string, count int) {
	m.AgentsOnline.WithLabelValues(service, status).Set(float64(count))
}

// RecordAgentHeartbeat records a heartbeat from clientID.
func (m *Metrics) RecordAgentHeartbeat(service, clientID string) {
	m.AgentHeartbeats.WithLabelValues(service, clientID).Inc()
}

// RecordEphemeralJob records an ephemeral job's terminal outcome.
func (m *Metrics) RecordEphemeralJob(service, jobType, status string) {
	m.EphemeralJobsTotal.WithLabelValues(service, jobType, status).Inc()
}

// RecordCacheLookup records a result-cache hit or miss for connection.
func (m *Metrics) RecordCacheLookup(service, connection string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(service, connection).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(service, connection).Inc()
}

// UpdateUptime sets the service uptime gauge relative to startTime.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}
