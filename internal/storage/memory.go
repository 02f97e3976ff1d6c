package storage

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/synqx/core/internal/domain"
)

// Memory is a thread-safe in-memory implementation of every store
// interface in this package, grounded on internal/app/storage.Memory's
// mutex-guarded map shape. Intended for tests and the single-process
// quickstart path, not production persistence.
type Memory struct {
	mu sync.RWMutex

	nextID int64

	pipelines map[string]domain.Pipeline
	versions  map[string]domain.PipelineVersion

	connections map[string]domain.Connection
	assets      map[string]domain.Asset

	jobs     map[string]domain.Job
	runs     map[string]domain.PipelineRun
	stepRuns map[string]domain.StepRun

	watermarks map[string]domain.Watermark

	agents         map[string]domain.Agent
	agentsByClient map[string]string

	ephemeralJobs map[string]domain.EphemeralJob
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		nextID:         1,
		pipelines:      make(map[string]domain.Pipeline),
		versions:       make(map[string]domain.PipelineVersion),
		connections:    make(map[string]domain.Connection),
		assets:         make(map[string]domain.Asset),
		jobs:           make(map[string]domain.Job),
		runs:           make(map[string]domain.PipelineRun),
		stepRuns:       make(map[string]domain.StepRun),
		watermarks:     make(map[string]domain.Watermark),
		agents:         make(map[string]domain.Agent),
		agentsByClient: make(map[string]string),
		ephemeralJobs:  make(map[string]domain.EphemeralJob),
	}
}

func (m *Memory) nextIDLocked() string {
	id := m.nextID
	m.nextID++
	return strconv.FormatInt(id, 10)
}

// Pipeline / PipelineVersion --------------------------------------------------

func (m *Memory) CreatePipeline(_ context.Context, p domain.Pipeline) (domain.Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = m.nextIDLocked()
	}
	m.pipelines[p.ID] = p
	return p, nil
}

func (m *Memory) UpdatePipeline(_ context.Context, p domain.Pipeline) (domain.Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pipelines[p.ID]; !ok {
		return domain.Pipeline{}, ErrNotFound{Entity: "pipeline", ID: p.ID}
	}
	m.pipelines[p.ID] = p
	return p, nil
}

func (m *Memory) GetPipeline(_ context.Context, id string) (domain.Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pipelines[id]
	if !ok {
		return domain.Pipeline{}, ErrNotFound{Entity: "pipeline", ID: id}
	}
	return p, nil
}

func (m *Memory) ListPipelines(_ context.Context, workspaceID string) ([]domain.Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Pipeline, 0)
	for _, p := range m.pipelines {
		if workspaceID == "" || p.WorkspaceID == workspaceID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeletePipeline(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pipelines, id)
	return nil
}

func (m *Memory) CreateVersion(_ context.Context, v domain.PipelineVersion) (domain.PipelineVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = m.nextIDLocked()
	}
	m.versions[v.ID] = v
	return v, nil
}

func (m *Memory) GetVersion(_ context.Context, id string) (domain.PipelineVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.versions[id]
	if !ok {
		return domain.PipelineVersion{}, ErrNotFound{Entity: "pipeline_version", ID: id}
	}
	return v, nil
}

func (m *Memory) ListVersions(_ context.Context, pipelineID string) ([]domain.PipelineVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.PipelineVersion, 0)
	for _, v := range m.versions {
		if v.PipelineID == pipelineID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}

// Connection / Asset ----------------------------------------------------------

func (m *Memory) CreateConnection(_ context.Context, c domain.Connection) (domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = m.nextIDLocked()
	}
	m.connections[c.ID] = c
	return c, nil
}

func (m *Memory) UpdateConnection(_ context.Context, c domain.Connection) (domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[c.ID]; !ok {
		return domain.Connection{}, ErrNotFound{Entity: "connection", ID: c.ID}
	}
	m.connections[c.ID] = c
	return c, nil
}

func (m *Memory) GetConnection(_ context.Context, id string) (domain.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[id]
	if !ok {
		return domain.Connection{}, ErrNotFound{Entity: "connection", ID: id}
	}
	return c, nil
}

func (m *Memory) ListConnections(_ context.Context, workspaceID string) ([]domain.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Connection, 0)
	for _, c := range m.connections {
		if workspaceID == "" || c.WorkspaceID == workspaceID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteConnection(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, id)
	return nil
}

func (m *Memory) UpsertAsset(_ context.Context, a domain.Asset) (domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = m.nextIDLocked()
	}
	m.assets[a.ID] = a
	return a, nil
}

func (m *Memory) GetAsset(_ context.Context, id string) (domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	if !ok {
		return domain.Asset{}, ErrNotFound{Entity: "asset", ID: id}
	}
	return a, nil
}

func (m *Memory) ListAssets(_ context.Context, connectionID string) ([]domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Asset, 0)
	for _, a := range m.assets {
		if a.ConnectionID == connectionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Job / PipelineRun / StepRun --------------------------------------------------

func (m *Memory) CreateJob(_ context.Context, j domain.Job) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.ID == "" {
		j.ID = m.nextIDLocked()
	}
	m.jobs[j.ID] = j
	return j, nil
}

func (m *Memory) UpdateJob(_ context.Context, j domain.Job) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; !ok {
		return domain.Job{}, ErrNotFound{Entity: "job", ID: j.ID}
	}
	m.jobs[j.ID] = j
	return j, nil
}

func (m *Memory) GetJob(_ context.Context, id string) (domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.Job{}, ErrNotFound{Entity: "job", ID: id}
	}
	return j, nil
}

func (m *Memory) ListJobs(_ context.Context, pipelineRef string, limit int) ([]domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Job, 0)
	for _, j := range m.jobs {
		if pipelineRef == "" || j.PipelineRef == pipelineRef {
			out = append(out, j)
		}
	}
	// Most-recent-first, so callers asking for "the last run" (limit=1, e.g.
	// the SLA monitor) get it without re-sorting themselves.
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListQueuedJobs(_ context.Context, agentGroup string, limit int) ([]domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Job, 0)
	for _, j := range m.jobs {
		if j.Status != domain.JobQueued {
			continue
		}
		if agentGroup != "" && !strings.EqualFold(j.AgentGroup, agentGroup) {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListPendingJobs(_ context.Context, agentGroup string, limit int) ([]domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Job, 0)
	for _, j := range m.jobs {
		if j.Status != domain.JobPending || j.AgentGroup != agentGroup {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CreateRun(_ context.Context, r domain.PipelineRun) (domain.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = m.nextIDLocked()
	}
	m.runs[r.ID] = r
	return r, nil
}

func (m *Memory) UpdateRun(_ context.Context, r domain.PipelineRun) (domain.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[r.ID]; !ok {
		return domain.PipelineRun{}, ErrNotFound{Entity: "pipeline_run", ID: r.ID}
	}
	m.runs[r.ID] = r
	return r, nil
}

func (m *Memory) GetRun(_ context.Context, id string) (domain.PipelineRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return domain.PipelineRun{}, ErrNotFound{Entity: "pipeline_run", ID: id}
	}
	return r, nil
}

func (m *Memory) UpsertStepRun(_ context.Context, s domain.StepRun) (domain.StepRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = m.nextIDLocked()
	}
	m.stepRuns[s.ID] = s
	return s, nil
}

func (m *Memory) ListStepRuns(_ context.Context, pipelineRunID string) ([]domain.StepRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.StepRun, 0)
	for _, s := range m.stepRuns {
		if s.PipelineRunID == pipelineRunID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Watermark --------------------------------------------------------------------

func watermarkKey(pipelineVersionID, nodeID, assetRef string) string {
	return pipelineVersionID + "|" + nodeID + "|" + assetRef
}

func (m *Memory) GetWatermark(_ context.Context, pipelineVersionID, nodeID, assetRef string) (domain.Watermark, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.watermarks[watermarkKey(pipelineVersionID, nodeID, assetRef)]
	return w, ok, nil
}

func (m *Memory) SetWatermark(_ context.Context, w domain.Watermark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w.UpdatedAt = time.Now()
	m.watermarks[watermarkKey(w.PipelineVersionID, w.NodeID, w.AssetRef)] = w
	return nil
}

// Agent --------------------------------------------------------------------

func (m *Memory) RegisterAgent(_ context.Context, a domain.Agent) (domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = m.nextIDLocked()
	}
	m.agents[a.ID] = a
	m.agentsByClient[a.ClientID] = a.ID
	return a, nil
}

func (m *Memory) UpdateAgent(_ context.Context, a domain.Agent) (domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[a.ID]; !ok {
		return domain.Agent{}, ErrNotFound{Entity: "agent", ID: a.ID}
	}
	m.agents[a.ID] = a
	m.agentsByClient[a.ClientID] = a.ID
	return a, nil
}

func (m *Memory) GetAgent(_ context.Context, id string) (domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return domain.Agent{}, ErrNotFound{Entity: "agent", ID: id}
	}
	return a, nil
}

func (m *Memory) GetAgentByClientID(_ context.Context, clientID string) (domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.agentsByClient[clientID]
	if !ok {
		return domain.Agent{}, ErrNotFound{Entity: "agent", ID: clientID}
	}
	return m.agents[id], nil
}

func (m *Memory) ListAgents(_ context.Context, workspaceID string) ([]domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Agent, 0)
	for _, a := range m.agents {
		if workspaceID == "" || a.WorkspaceID == workspaceID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Heartbeat(_ context.Context, id string, at time.Time, info domain.SystemInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return ErrNotFound{Entity: "agent", ID: id}
	}
	a.LastHeartbeatAt = at
	a.Status = domain.AgentOnline
	if info != nil {
		a.SystemInfo = info
	}
	m.agents[id] = a
	return nil
}

// EphemeralJob --------------------------------------------------------------------

func (m *Memory) CreateEphemeralJob(_ context.Context, j domain.EphemeralJob) (domain.EphemeralJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.ID == "" {
		j.ID = m.nextIDLocked()
	}
	m.ephemeralJobs[j.ID] = j
	return j, nil
}

func (m *Memory) UpdateEphemeralJob(_ context.Context, j domain.EphemeralJob) (domain.EphemeralJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ephemeralJobs[j.ID]; !ok {
		return domain.EphemeralJob{}, ErrNotFound{Entity: "ephemeral_job", ID: j.ID}
	}
	m.ephemeralJobs[j.ID] = j
	return j, nil
}

func (m *Memory) GetEphemeralJob(_ context.Context, id string) (domain.EphemeralJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.ephemeralJobs[id]
	if !ok {
		return domain.EphemeralJob{}, ErrNotFound{Entity: "ephemeral_job", ID: id}
	}
	return j, nil
}

func (m *Memory) ListQueuedEphemeralJobs(_ context.Context, agentGroup string, limit int) ([]domain.EphemeralJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.EphemeralJob, 0)
	for _, j := range m.ephemeralJobs {
		if j.Status != domain.JobQueued {
			continue
		}
		if agentGroup != "" && j.AgentGroup != agentGroup {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) DeleteExpiredEphemeralJobs(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, j := range m.ephemeralJobs {
		if j.ExpiresAt.Before(before) {
			delete(m.ephemeralJobs, id)
			n++
		}
	}
	return n, nil
}
