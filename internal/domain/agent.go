package domain

import "time"

// AgentStatus is the reported liveness state of an Agent.
type AgentStatus string

const (
	AgentOnline   AgentStatus = "ONLINE"
	AgentOffline  AgentStatus = "OFFLINE"
	AgentDraining AgentStatus = "DRAINING"
)

// AgentTags carries the routing metadata an agent advertises.
type AgentTags struct {
	Groups []string `json:"groups"`
}

// SystemInfo is free-form host metadata reported with heartbeats.
type SystemInfo map[string]any

// Agent is a registered remote worker process (§3, §4.6).
type Agent struct {
	ID              string      `json:"id"`
	WorkspaceID     string      `json:"workspace_id"`
	ClientID        string      `json:"client_id"`
	HashedSecret    string      `json:"-"`
	DisplayName     string      `json:"display_name"`
	Tags            AgentTags   `json:"tags"`
	Status          AgentStatus `json:"status"`
	LastHeartbeatAt time.Time   `json:"last_heartbeat_at"`
	IPAddress       string      `json:"ip_address,omitempty"`
	Version         string      `json:"version,omitempty"`
	SystemInfo      SystemInfo  `json:"system_info,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// EffectiveStatus applies §3 invariant 7: an agent whose heartbeat is older
// than the liveness window is treated as OFFLINE regardless of the stored
// status.
func (a *Agent) EffectiveStatus(now time.Time, livenessWindow time.Duration) AgentStatus {
	if now.Sub(a.LastHeartbeatAt) > livenessWindow {
		return AgentOffline
	}
	return a.Status
}

// MatchesGroup reports whether this agent is a candidate for group g,
// per §4.6's case-insensitive tag matching.
func (a *Agent) MatchesGroup(g string) bool {
	for _, tag := range a.Tags.Groups {
		if equalFold(tag, g) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// EphemeralJobType enumerates the kinds of short-lived task routed like a
// pipeline job but without the DAG machinery (§4.7).
type EphemeralJobType string

const (
	EphemeralExplorer EphemeralJobType = "EXPLORER"
	EphemeralMetadata EphemeralJobType = "METADATA"
	EphemeralTest     EphemeralJobType = "TEST"
	EphemeralSystem   EphemeralJobType = "SYSTEM"
	EphemeralFile     EphemeralJobType = "FILE"
	EphemeralPipeline EphemeralJobType = "PIPELINE"
)

// EphemeralJob is a short-lived task (interactive query, schema inference,
// connection test) whose result lives inline on the row and TTLs out.
type EphemeralJob struct {
	ID             string           `json:"id"`
	WorkspaceID    string           `json:"workspace_id"`
	UserID         string           `json:"user_id"`
	ConnectionID   *string          `json:"connection_id,omitempty"`
	Type           EphemeralJobType `json:"job_type"`
	Status         JobStatus        `json:"status"`
	AgentGroup     string           `json:"agent_group"`
	WorkerID       *string          `json:"worker_id,omitempty"`
	Payload        map[string]any   `json:"payload"`
	ResultSummary  map[string]any   `json:"result_summary,omitempty"`
	ResultSample   []map[string]any `json:"result_sample,omitempty"`
	Truncated      bool             `json:"truncated,omitempty"`
	FromCache      bool             `json:"from_cache,omitempty"`
	SubmittedAt    time.Time        `json:"submitted_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	ExpiresAt      time.Time        `json:"expires_at"`
}
