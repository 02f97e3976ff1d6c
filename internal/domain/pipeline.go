package domain

import "time"

// RetryStrategy enumerates the per-node/per-job retry backoff shape.
type RetryStrategy string

const (
	RetryFixed       RetryStrategy = "fixed"
	RetryExponential RetryStrategy = "exponential"
	RetryLinear      RetryStrategy = "linear"
)

func (r RetryStrategy) Valid() bool {
	switch r {
	case RetryFixed, RetryExponential, RetryLinear:
		return true
	}
	return false
}

// RetryPolicy is the retry shape shared by Pipeline default policy and
// per-Node overrides.
type RetryPolicy struct {
	MaxRetries         int           `json:"max_retries"`
	Strategy           RetryStrategy `json:"retry_strategy"`
	BaseDelay          time.Duration `json:"retry_delay_seconds"`
}

// SLAConfig declares the expected duration envelope for a Pipeline's runs.
type SLAConfig struct {
	MaxDurationSeconds int  `json:"max_duration_seconds"`
	Enabled            bool `json:"enabled"`
}

// Pipeline is immutable metadata owning an ordered history of versions.
type Pipeline struct {
	ID                string      `json:"id"`
	WorkspaceID       string      `json:"workspace_id"`
	Name              string      `json:"name"`
	AgentGroup        string      `json:"agent_group"`
	CronSchedule      string      `json:"cron_schedule"`
	ScheduleEnabled   bool        `json:"schedule_enabled"`
	Timezone          string      `json:"timezone"`
	DefaultRetry      RetryPolicy `json:"default_retry"`
	SLA               SLAConfig   `json:"sla_config"`
	Tags              []string    `json:"tags"`
	Priority          int         `json:"priority"`
	PublishedVersionID *string    `json:"published_version_id,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// OperatorType is the coarse role of a Node: where in extract/transform/load
// it sits.
type OperatorType string

const (
	OperatorExtract   OperatorType = "EXTRACT"
	OperatorTransform OperatorType = "TRANSFORM"
	OperatorLoad      OperatorType = "LOAD"
	OperatorSystem    OperatorType = "SYSTEM"
)

func (t OperatorType) Valid() bool {
	switch t {
	case OperatorExtract, OperatorTransform, OperatorLoad, OperatorSystem:
		return true
	}
	return false
}

// WriteStrategy controls how a LOAD node writes rows to its destination.
type WriteStrategy string

const (
	WriteAppend   WriteStrategy = "append"
	WriteReplace  WriteStrategy = "replace"
	WriteOverwrite WriteStrategy = "overwrite"
	WriteUpsert   WriteStrategy = "upsert"
)

// SchemaEvolutionPolicy controls how a LOAD node reacts to destination
// schema drift.
type SchemaEvolutionPolicy string

const (
	SchemaEvolutionStrict SchemaEvolutionPolicy = "strict"
	SchemaEvolutionAdd    SchemaEvolutionPolicy = "add_columns"
	SchemaEvolutionIgnore SchemaEvolutionPolicy = "ignore"
)

// Guardrail enforces an upper bound on a node's chunk throughput.
type Guardrail struct {
	MaxRowsPerChunk  int           `json:"max_rows_per_chunk,omitempty"`
	MaxBytesPerChunk int           `json:"max_bytes_per_chunk,omitempty"`
	MaxWallTime      time.Duration `json:"max_wall_time,omitempty"`
}

// DataContract names the validate rules a node enforces; interpreted by the
// "validate" operator class.
type DataContract struct {
	Rules                 []ValidateRule `json:"rules,omitempty"`
	Strict                bool           `json:"strict,omitempty"`
	AllowExtraColumns     bool           `json:"allow_extra_columns,omitempty"`
	ErrorThresholdPercent float64        `json:"error_threshold_percent,omitempty"`
	ErrorThresholdRows    int            `json:"error_threshold_rows,omitempty"`
}

// ValidateRule is one row-level or schema-level check.
type ValidateRule struct {
	Column string `json:"column"`
	Check  string `json:"check"` // not_null, unique, min_value, max_value, regex, in_list, data_type
	Arg    any    `json:"arg,omitempty"`
}

// Node is one vertex of a PipelineVersion's DAG.
type Node struct {
	NodeID                string                `json:"node_id"`
	Name                  string                `json:"name"`
	OperatorType          OperatorType          `json:"operator_type"`
	OperatorClass         string                `json:"operator_class"`
	Config                map[string]any        `json:"config"`
	Retry                 RetryPolicy           `json:"retry_policy"`
	TimeoutSeconds        int                   `json:"timeout_seconds"`
	SourceAssetRef        *string               `json:"source_asset_ref,omitempty"`
	DestinationAssetRef   *string               `json:"destination_asset_ref,omitempty"`
	ConnectionRef         *string               `json:"connection_ref,omitempty"`
	Guardrails            []Guardrail           `json:"guardrails,omitempty"`
	DataContract          *DataContract         `json:"data_contract,omitempty"`
	QuarantineAssetRef    *string               `json:"quarantine_asset_ref,omitempty"`
	WriteStrategy         WriteStrategy         `json:"write_strategy,omitempty"`
	SchemaEvolutionPolicy SchemaEvolutionPolicy `json:"schema_evolution_policy,omitempty"`
}

// ConfigString reads a string config key, returning "" when absent or not a
// string.
func (n *Node) ConfigString(key string) string {
	if n.Config == nil {
		return ""
	}
	if v, ok := n.Config[key].(string); ok {
		return v
	}
	return ""
}

// CollapsedInto reports the absorbing node id when this node has been
// collapsed by the static optimizer (§4.2), or "" if not collapsed.
func (n *Node) CollapsedInto() string {
	return n.ConfigString("_collapsed_into")
}

// EdgeType enumerates the kind of relationship an Edge represents.
type EdgeType string

const (
	EdgeDataFlow EdgeType = "data_flow"
)

// Edge connects two Nodes within a PipelineVersion.
type Edge struct {
	FromNodeID string   `json:"from_node_id"`
	ToNodeID   string   `json:"to_node_id"`
	Type       EdgeType `json:"edge_type"`
}

// PipelineVersion is an immutable snapshot of a Pipeline's DAG.
type PipelineVersion struct {
	ID            string    `json:"id"`
	PipelineID    string    `json:"pipeline_id"`
	VersionNumber int       `json:"version_number"`
	Nodes         []Node    `json:"nodes"`
	Edges         []Edge    `json:"edges"`
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"created_at"`
}

// NodeByID returns the node with the given id, or nil if absent.
func (v *PipelineVersion) NodeByID(id string) *Node {
	for i := range v.Nodes {
		if v.Nodes[i].NodeID == id {
			return &v.Nodes[i]
		}
	}
	return nil
}
