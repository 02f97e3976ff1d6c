package ephemeral

import (
	"context"
	"sync"
	"time"

	"github.com/synqx/core/internal/logging"
)

// DefaultSweepInterval is the tick period for expiring ephemeral jobs past
// their TTL (§4.7).
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically calls Service.Sweep on a fixed interval, following
// the same polling-loop lifecycle as jobs.Scheduler and jobs.SLAMonitor.
type Sweeper struct {
	svc      *Service
	log      *logging.Logger
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewSweeper builds a Sweeper ticking every DefaultSweepInterval.
func NewSweeper(svc *Service, log *logging.Logger) *Sweeper {
	if log == nil {
		log = logging.NewDefault("ephemeral-sweeper")
	}
	return &Sweeper{svc: svc, log: log, interval: DefaultSweepInterval}
}

// WithInterval overrides the tick period (tests use a short interval).
func (s *Sweeper) WithInterval(d time.Duration) *Sweeper {
	s.interval = d
	return s
}

// Name identifies the Sweeper to internal/system's lifecycle manager.
func (s *Sweeper) Name() string { return "ephemeral.sweeper" }

// Start begins the background sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
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
	s.log.Info("ephemeral sweeper started")
	return nil
}

// Stop halts the sweep loop.
func (s *Sweeper) Stop(ctx context.Context) error {
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
	s.log.Info("ephemeral sweeper stopped")
	return nil
}

func (s *Sweeper) tick(ctx context.Context) {
	n, err := s.svc.Sweep(ctx)
	if err != nil {
		s.log.WithError(err).Warn("ephemeral sweep failed")
		return
	}
	if n > 0 {
		s.log.WithField("deleted", n).Info("swept expired ephemeral jobs")
	}
}
