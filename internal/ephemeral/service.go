// Package ephemeral implements the C7 ephemeral job queue: short-lived,
// agent-routed ad-hoc tasks (interactive query, schema inference,
// connection test) whose results live inline on the row and TTL out (§4.7).
package ephemeral

import (
	"context"
	"time"

	"github.com/synqx/core/internal/apperrors"
	"github.com/synqx/core/internal/cache"
	"github.com/synqx/core/internal/connector"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/jobs"
	"github.com/synqx/core/internal/logging"
	"github.com/synqx/core/internal/pubsub"
	"github.com/synqx/core/internal/storage"
	"github.com/synqx/core/internal/telemetry"
)

// DefaultTTL is how long a completed EphemeralJob's inline result is kept
// before the sweep removes it.
const DefaultTTL = 1 * time.Hour

// MaxResultRows caps the inline result sample (§4.7 "capped to 1 000 rows").
const MaxResultRows = 1000

// SubmitRequest is the ephemeral-job submission payload.
type SubmitRequest struct {
	WorkspaceID  string
	UserID       string
	ConnectionID *string
	Type         domain.EphemeralJobType
	AgentGroup   string
	Payload      map[string]any
}

// Service routes and executes ephemeral jobs, mirroring jobs.Service's
// Submit routing rule via the shared jobs.AgentRouting helper (spec's
// "same dispatch routing as Job").
type Service struct {
	store   storage.EphemeralJobStore
	routing *jobs.AgentRouting
	pool    *connector.Pool
	conns   map[string]domain.Connection
	cache   *cache.ResultCache
	pub     *pubsub.Publisher
	metrics *telemetry.Metrics
	log     *logging.Logger
	ttl     time.Duration
	now     func() time.Time
}

// New builds a Service. resultCache, pub, and metrics may be nil.
func New(store storage.EphemeralJobStore, routing *jobs.AgentRouting, pool *connector.Pool, conns map[string]domain.Connection, resultCache *cache.ResultCache, pub *pubsub.Publisher, metrics *telemetry.Metrics, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("ephemeral")
	}
	return &Service{
		store: store, routing: routing, pool: pool, conns: conns,
		cache: resultCache, pub: pub, metrics: metrics, log: log,
		ttl: DefaultTTL, now: time.Now,
	}
}

// Submit creates an EphemeralJob, applying the same agent-group routing
// rule as jobs.Service.Submit (§4.7 "routed identically to pipeline jobs").
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (domain.EphemeralJob, error) {
	group := req.AgentGroup
	if group == "" {
		group = "internal"
	}

	status := domain.JobPending
	if group != "internal" {
		online, err := s.routing.HasOnlineCandidate(ctx, req.WorkspaceID, group)
		if err != nil {
			return domain.EphemeralJob{}, err
		}
		if !online {
			return domain.EphemeralJob{}, apperrors.New(apperrors.KindNoAgentsAvailable,
				"no online agents match group "+group, 503).WithDetails("agent_group", group)
		}
		status = domain.JobQueued
	}

	job := domain.EphemeralJob{
		WorkspaceID:  req.WorkspaceID,
		UserID:       req.UserID,
		ConnectionID: req.ConnectionID,
		Type:         req.Type,
		Status:       status,
		AgentGroup:   group,
		Payload:      req.Payload,
		SubmittedAt:  s.now(),
		ExpiresAt:    s.now().Add(s.ttl),
	}

	created, err := s.store.CreateEphemeralJob(ctx, job)
	if err != nil {
		return domain.EphemeralJob{}, err
	}
	s.publish(ctx, created, "ephemeral_job_update")
	return created, nil
}

// Execute runs job locally: it checks the result cache for an identical
// prior query, else opens the connection, calls ExecuteQuery (falling back
// to Sampler.FetchSample / connector.DefaultSample when the connector
// doesn't implement QueryExecutor), caps the sample to MaxResultRows, and
// persists the result inline with a summary (§4.7).
func (s *Service) Execute(ctx context.Context, job domain.EphemeralJob) (domain.EphemeralJob, error) {
	if job.ConnectionID == nil {
		return s.fail(ctx, job, apperrors.Configuration("ephemeral_job", "missing connection_id"))
	}
	conn, ok := s.conns[*job.ConnectionID]
	if !ok {
		return s.fail(ctx, job, apperrors.NotFound("connection", *job.ConnectionID))
	}

	cacheKey := ""
	if s.cache != nil {
		key, err := cache.Key(conn.ID, job.Payload)
		if err == nil {
			cacheKey = key
			if entry, hit, err := s.cache.Get(ctx, key); err == nil && hit {
				s.recordCacheLookup(conn.ID, true)
				return s.complete(ctx, job, entry.Metadata, rowsFromChunk(entry.Result), false, true)
			}
		}
		s.recordCacheLookup(conn.ID, false)
	}

	c, err := s.pool.Acquire(ctx, conn.ConnectorKind, conn.ConfigBlob, nil)
	if err != nil {
		return s.fail(ctx, job, apperrors.ConnectionFailed(conn.ConnectorKind, err))
	}

	query, _ := job.Payload["query"].(string)
	limit := intValue(job.Payload["limit"], MaxResultRows)
	offset := intValue(job.Payload["offset"], 0)
	params, _ := job.Payload["params"].(map[string]any)

	var columns []string
	var rows []connector.Row
	var totalCount int

	if executor, ok := c.(connector.QueryExecutor); ok {
		columns, rows, totalCount, err = executor.ExecuteQuery(ctx, query, limit, offset, params)
	} else if sampler, ok := c.(connector.Sampler); ok {
		rows, err = sampler.FetchSample(ctx, query, limit)
		totalCount = len(rows)
	} else if reader, ok := c.(connector.BatchReader); ok {
		rows, err = connector.DefaultSample(ctx, reader, query, limit)
		totalCount = len(rows)
	} else {
		err = apperrors.New(apperrors.KindConfiguration, "connector supports neither execute_query nor sample", 400)
	}
	if err != nil {
		return s.fail(ctx, job, apperrors.DataTransfer("ephemeral_query", err))
	}

	truncated := len(rows) > MaxResultRows
	if truncated {
		rows = rows[:MaxResultRows]
	}

	summary := map[string]any{
		"count":       len(rows),
		"total_count": totalCount,
		"columns":     columns,
	}

	if s.cache != nil && cacheKey != "" {
		if err := s.cache.Set(ctx, cacheKey, cache.Entry{Metadata: summary, Result: chunkFromRows(columns, rows)}); err != nil {
			s.log.WithError(err).Warn("failed to populate result cache")
		}
	}

	return s.complete(ctx, job, summary, rows, truncated, false)
}

func (s *Service) complete(ctx context.Context, job domain.EphemeralJob, summary map[string]any, rows []connector.Row, truncated, fromCache bool) (domain.EphemeralJob, error) {
	sample := toResultSample(rows)

	completedAt := s.now()
	job.Status = domain.JobSuccess
	job.ResultSummary = summary
	job.ResultSample = sample
	job.Truncated = truncated
	job.FromCache = fromCache
	job.CompletedAt = &completedAt

	updated, err := s.store.UpdateEphemeralJob(ctx, job)
	if err != nil {
		return domain.EphemeralJob{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordEphemeralJob("synqx", string(updated.Type), string(updated.Status))
	}
	s.publish(ctx, updated, "ephemeral_job_completed")
	return updated, nil
}

func (s *Service) fail(ctx context.Context, job domain.EphemeralJob, cause error) (domain.EphemeralJob, error) {
	completedAt := s.now()
	job.Status = domain.JobFailed
	job.CompletedAt = &completedAt
	job.ResultSummary = map[string]any{"error": cause.Error()}

	updated, updErr := s.store.UpdateEphemeralJob(ctx, job)
	if updErr != nil {
		return domain.EphemeralJob{}, updErr
	}
	if s.metrics != nil {
		s.metrics.RecordEphemeralJob("synqx", string(updated.Type), string(updated.Status))
	}
	s.publish(ctx, updated, "ephemeral_job_completed")
	return updated, cause
}

// Sweep deletes every EphemeralJob whose ExpiresAt has passed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	return s.store.DeleteExpiredEphemeralJobs(ctx, s.now())
}

func (s *Service) publish(ctx context.Context, job domain.EphemeralJob, eventType string) {
	if s.pub == nil {
		return
	}
	event := pubsub.Event{
		Type: eventType,
		At:   s.now().Format(time.RFC3339Nano),
		Payload: map[string]any{
			"ephemeral_job_id": job.ID,
			"status":           string(job.Status),
		},
	}
	topic := "ephemeral_job:" + job.ID
	if err := s.pub.Publish(ctx, topic, event); err != nil {
		s.log.WithError(err).WithField("ephemeral_job_id", job.ID).Warn("failed to publish ephemeral job event")
	}
}

func (s *Service) recordCacheLookup(connectionID string, hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheLookup("synqx", connectionID, hit)
	}
}

func intValue(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}
