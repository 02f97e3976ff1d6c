package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/synqx/core/internal/connector"
	"github.com/synqx/core/internal/dag"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/executor"
	"github.com/synqx/core/internal/logging"
	"github.com/synqx/core/internal/operator"
	"github.com/synqx/core/internal/storage"
)

// DefaultWorkerInterval is the poll period for claiming "internal" agent
// group jobs (§2.1 "in-process executor" — the control plane runs these
// itself rather than waiting for a remote agent to lease them).
const DefaultWorkerInterval = 2 * time.Second

// InternalWorker drives Job execution for the "internal" agent group:
// claim, resolve the pipeline version into a dag.Graph, run it through
// internal/executor, and report the outcome back through Complete.
// Tagged-group jobs never reach this worker — those are leased and
// executed by a remote synqx-agent process instead.
type InternalWorker struct {
	jobsSvc     *Service
	pipelines   storage.PipelineStore
	connections storage.ConnectionStore
	operators   *operator.Registry
	pool        *connector.Pool
	log         *logging.Logger
	interval    time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewInternalWorker builds an InternalWorker polling every
// DefaultWorkerInterval.
func NewInternalWorker(jobsSvc *Service, pipelines storage.PipelineStore, connections storage.ConnectionStore, operators *operator.Registry, pool *connector.Pool, log *logging.Logger) *InternalWorker {
	if log == nil {
		log = logging.NewDefault("jobs-worker")
	}
	return &InternalWorker{
		jobsSvc:     jobsSvc,
		pipelines:   pipelines,
		connections: connections,
		operators:   operators,
		pool:        pool,
		log:         log,
		interval:    DefaultWorkerInterval,
	}
}

// Name identifies the InternalWorker to internal/system's lifecycle manager.
func (w *InternalWorker) Name() string { return "jobs.internal_worker" }

// WithInterval overrides the poll period (tests use a short interval).
func (w *InternalWorker) WithInterval(d time.Duration) *InternalWorker {
	w.interval = d
	return w
}

// Start begins the background claim/execute loop.
func (w *InternalWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				w.tick(runCtx)
			}
		}
	}()
	return nil
}

// Stop signals the loop to exit and waits for it to return.
func (w *InternalWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.cancel()
	w.running = false
	w.mu.Unlock()
	w.wg.Wait()
	return nil
}

// tick claims and runs at most one job per call; the next tick picks up
// whatever remains queued.
func (w *InternalWorker) tick(ctx context.Context) {
	job, claimed, err := w.jobsSvc.ClaimInternal(ctx)
	if err != nil {
		w.log.WithError(err).Warn("claim internal job failed")
		return
	}
	if !claimed {
		return
	}
	w.execute(ctx, job)
}

func (w *InternalWorker) execute(ctx context.Context, job domain.Job) {
	success, infraError, failedStepRef := w.run(ctx, job)
	if _, err := w.jobsSvc.Complete(ctx, job.ID, success, infraError, failedStepRef); err != nil {
		w.log.WithError(err).WithField("job_id", job.ID).Error("failed to record job completion")
	}
}

func (w *InternalWorker) run(ctx context.Context, job domain.Job) (success bool, infraError, failedStepRef string) {
	version, err := w.resolveVersion(ctx, job)
	if err != nil {
		return false, err.Error(), ""
	}

	plan := dag.New()
	nodes := make(map[string]*domain.Node, len(version.Nodes))
	for i := range version.Nodes {
		n := version.Nodes[i]
		plan.AddNode(n.NodeID)
		nodes[n.NodeID] = &n
	}
	for _, e := range version.Edges {
		if err := plan.AddEdge(e.FromNodeID, e.ToNodeID); err != nil {
			return false, err.Error(), ""
		}
	}

	connections, assets, err := w.resolveRefs(ctx, version)
	if err != nil {
		return false, err.Error(), ""
	}

	exec := executor.New(executor.Deps{
		Operators:   w.operators,
		Pool:        w.pool,
		Connections: connections,
		Assets:      assets,
	})

	runCtx := &domain.PipelineRunContext{
		RunID:      job.ID,
		PipelineID: job.PipelineRef,
		Parameters: job.Parameters,
	}

	run, _, err := exec.Run(ctx, plan, nodes, runCtx)
	if err != nil {
		return false, err.Error(), ""
	}
	if run.Status == domain.JobSuccess {
		return true, "", ""
	}
	return false, "pipeline run did not complete successfully", run.FailedStepRef
}

func (w *InternalWorker) resolveVersion(ctx context.Context, job domain.Job) (domain.PipelineVersion, error) {
	if job.PipelineVersionRef != "" {
		return w.pipelines.GetVersion(ctx, job.PipelineVersionRef)
	}
	versions, err := w.pipelines.ListVersions(ctx, job.PipelineRef)
	if err != nil {
		return domain.PipelineVersion{}, err
	}
	if len(versions) == 0 {
		return domain.PipelineVersion{}, storage.ErrNotFound{Entity: "pipeline_version", ID: job.PipelineRef}
	}
	latest := versions[0]
	for _, v := range versions[1:] {
		if v.VersionNumber > latest.VersionNumber {
			latest = v
		}
	}
	return latest, nil
}

func (w *InternalWorker) resolveRefs(ctx context.Context, version domain.PipelineVersion) (map[string]domain.Connection, map[string]domain.Asset, error) {
	connections := make(map[string]domain.Connection)
	assets := make(map[string]domain.Asset)

	for _, n := range version.Nodes {
		if n.ConnectionRef != nil {
			if _, ok := connections[*n.ConnectionRef]; !ok {
				conn, err := w.connections.GetConnection(ctx, *n.ConnectionRef)
				if err != nil {
					return nil, nil, err
				}
				connections[conn.ID] = conn
			}
		}
		for _, ref := range []*string{n.SourceAssetRef, n.DestinationAssetRef} {
			if ref == nil {
				continue
			}
			if _, ok := assets[*ref]; ok {
				continue
			}
			asset, err := w.connections.GetAsset(ctx, *ref)
			if err != nil {
				return nil, nil, err
			}
			assets[asset.ID] = asset
		}
	}
	return connections, assets, nil
}
