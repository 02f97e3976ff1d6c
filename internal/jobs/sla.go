package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/logging"
	"github.com/synqx/core/internal/pubsub"
	"github.com/synqx/core/internal/storage"
)

// DefaultSLAInterval is the SLA monitor's tick period (§4.5 "300 s").
const DefaultSLAInterval = 300 * time.Second

// SLAMonitor compares each SLA-enabled pipeline's last run duration against
// its sla_config and emits an alert event onto the pipeline's workspace log
// topic when it is breached.
type SLAMonitor struct {
	pipelines storage.PipelineStore
	jobs      storage.JobStore
	pub       *pubsub.Publisher
	log       *logging.Logger
	interval  time.Duration
	now       func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewSLAMonitor builds an SLAMonitor ticking every DefaultSLAInterval.
func NewSLAMonitor(pipelines storage.PipelineStore, jobStore storage.JobStore, pub *pubsub.Publisher, log *logging.Logger) *SLAMonitor {
	if log == nil {
		log = logging.NewDefault("jobs-sla")
	}
	return &SLAMonitor{pipelines: pipelines, jobs: jobStore, pub: pub, log: log, interval: DefaultSLAInterval, now: time.Now}
}

// Name identifies the SLAMonitor to internal/system's lifecycle manager.
func (m *SLAMonitor) Name() string { return "jobs.sla_monitor" }

// WithInterval overrides the tick period (tests use a short interval).
func (m *SLAMonitor) WithInterval(d time.Duration) *SLAMonitor {
	m.interval = d
	return m
}

// Start begins the background polling loop.
func (m *SLAMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				m.tick(runCtx)
			}
		}
	}()
	m.log.Info("sla monitor started")
	return nil
}

// Stop halts the polling loop.
func (m *SLAMonitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.log.Info("sla monitor stopped")
	return nil
}

func (m *SLAMonitor) tick(ctx context.Context) {
	pipelines, err := m.pipelines.ListPipelines(ctx, "")
	if err != nil {
		m.log.WithError(err).Warn("sla monitor tick: list pipelines failed")
		return
	}

	for _, pipeline := range pipelines {
		if !pipeline.SLA.Enabled || pipeline.SLA.MaxDurationSeconds <= 0 {
			continue
		}
		m.checkOne(ctx, pipeline)
	}
}

func (m *SLAMonitor) checkOne(ctx context.Context, pipeline domain.Pipeline) {
	runs, err := m.jobs.ListJobs(ctx, pipeline.ID, 1)
	if err != nil || len(runs) == 0 {
		return
	}
	last := runs[0]
	if last.ExecutionTimeMS <= 0 {
		return
	}

	limit := time.Duration(pipeline.SLA.MaxDurationSeconds) * time.Second
	actual := time.Duration(last.ExecutionTimeMS) * time.Millisecond
	if actual <= limit {
		return
	}

	if m.pub == nil {
		return
	}
	event := pubsub.Event{
		Type: "sla_breach",
		At:   m.now().Format(time.RFC3339Nano),
		Payload: map[string]any{
			"pipeline_id":        pipeline.ID,
			"job_id":             last.ID,
			"max_duration_ms":    limit.Milliseconds(),
			"actual_duration_ms": actual.Milliseconds(),
		},
	}
	if err := m.pub.Publish(ctx, pubsub.WorkspaceLogTopic(pipeline.WorkspaceID), event); err != nil {
		m.log.WithError(err).WithField("pipeline_id", pipeline.ID).Warn("failed to publish sla breach event")
	}
}
