package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/logging"
	"github.com/synqx/core/internal/storage"
)

// DefaultSchedulerInterval is the tick period for advancing cron-scheduled
// pipelines (§4.5 "a periodic task (60 s)").
const DefaultSchedulerInterval = 60 * time.Second

// JobDispatcher consumes jobs the scheduler creates for a due pipeline,
// grounded on internal/app/services/automation/scheduler.go's JobDispatcher
// shape.
type JobDispatcher interface {
	DispatchJob(ctx context.Context, pipeline domain.Pipeline) error
}

// JobDispatcherFunc adapts a function to JobDispatcher.
type JobDispatcherFunc func(ctx context.Context, pipeline domain.Pipeline) error

func (f JobDispatcherFunc) DispatchJob(ctx context.Context, pipeline domain.Pipeline) error {
	if f == nil {
		return nil
	}
	return f(ctx, pipeline)
}

// Scheduler polls enabled pipelines on a fixed interval and dispatches a new
// job for any whose cron schedule's next fire time has passed since it was
// last checked.
type Scheduler struct {
	pipelines storage.PipelineStore
	log       *logging.Logger
	interval  time.Duration
	parser    cron.Parser

	mu         sync.Mutex
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	running    bool
	dispatcher JobDispatcher
	lastFire   map[string]time.Time
	now        func() time.Time
}

// NewScheduler builds a Scheduler ticking every DefaultSchedulerInterval.
func NewScheduler(pipelines storage.PipelineStore, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.NewDefault("jobs-scheduler")
	}
	return &Scheduler{
		pipelines: pipelines,
		log:       log,
		interval:  DefaultSchedulerInterval,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		lastFire:  make(map[string]time.Time),
		now:       time.Now,
	}
}

// Name identifies the Scheduler to internal/system's lifecycle manager.
func (s *Scheduler) Name() string { return "jobs.scheduler" }

// WithInterval overrides the tick period (tests use a short interval).
func (s *Scheduler) WithInterval(d time.Duration) *Scheduler {
	s.interval = d
	return s
}

// WithDispatcher registers the dispatcher invoked for each due pipeline.
func (s *Scheduler) WithDispatcher(dispatcher JobDispatcher) {
	s.mu.Lock()
	s.dispatcher = dispatcher
	s.mu.Unlock()
}

// Start begins the background polling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()

	s.log.Info("scheduler started")
	return nil
}

// Stop halts the polling loop, waiting for any in-flight tick to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.pipelines == nil {
		return
	}
	pipelines, err := s.pipelines.ListPipelines(ctx, "")
	if err != nil {
		s.log.WithError(err).Warn("scheduler tick: list pipelines failed")
		return
	}

	s.mu.Lock()
	dispatcher := s.dispatcher
	s.mu.Unlock()
	if dispatcher == nil {
		return
	}

	now := s.now()
	var wg sync.WaitGroup
	for _, pipeline := range pipelines {
		if !pipeline.ScheduleEnabled || pipeline.CronSchedule == "" {
			continue
		}
		if !s.due(pipeline, now) {
			continue
		}

		wg.Add(1)
		go func(p domain.Pipeline) {
			defer wg.Done()
			if err := dispatcher.DispatchJob(ctx, p); err != nil {
				s.log.WithError(err).WithField("pipeline_id", p.ID).Warn("dispatch scheduled pipeline failed")
			}
		}(pipeline)
	}
	wg.Wait()
}

// due reports whether pipeline's next scheduled fire time has passed since
// the last time it fired, and records now as its new last-fire time.
func (s *Scheduler) due(pipeline domain.Pipeline, now time.Time) bool {
	schedule, err := s.parser.Parse(pipeline.CronSchedule)
	if err != nil {
		s.log.WithError(err).WithField("pipeline_id", pipeline.ID).Warn("invalid cron schedule")
		return false
	}

	s.mu.Lock()
	last, seen := s.lastFire[pipeline.ID]
	s.mu.Unlock()
	if !seen {
		// Never checked before: treat as due immediately rather than
		// waiting a full schedule period, so a newly enabled pipeline
		// fires on its first tick instead of its first interval.
		last = time.Time{}
	}

	next := schedule.Next(last)
	if next.After(now) {
		return false
	}

	s.mu.Lock()
	s.lastFire[pipeline.ID] = now
	s.mu.Unlock()
	return true
}
