// Package gitops converts a PipelineVersion to and from the deterministic
// YAML document described in §6: a pipeline-as-code representation a user
// can check into their own repository and re-import.
package gitops

// DocumentVersion is the only document schema version this package
// understands; Import rejects anything else.
const DocumentVersion = "1.0"

// Document is the root of the exported/imported YAML document.
type Document struct {
	Version  string     `yaml:"version"`
	Metadata Metadata   `yaml:"metadata"`
	Schedule Schedule   `yaml:"schedule"`
	Settings Settings   `yaml:"settings"`
	Nodes    []NodeDoc  `yaml:"nodes"`
	Edges    []EdgeDoc  `yaml:"edges"`
}

// Metadata holds the pipeline-level descriptive fields.
type Metadata struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	AgentGroup  string   `yaml:"agent_group,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Priority    int      `yaml:"priority,omitempty"`
}

// Schedule holds the pipeline's cron trigger settings.
type Schedule struct {
	Cron     string `yaml:"cron,omitempty"`
	Enabled  bool   `yaml:"enabled"`
	Timezone string `yaml:"timezone,omitempty"`
}

// Settings holds the pipeline's default execution envelope.
type Settings struct {
	MaxParallelRuns        int    `yaml:"max_parallel_runs,omitempty"`
	MaxRetries             int    `yaml:"max_retries"`
	RetryStrategy          string `yaml:"retry_strategy"`
	RetryDelaySeconds      int    `yaml:"retry_delay_seconds"`
	ExecutionTimeoutSeconds int   `yaml:"execution_timeout_seconds,omitempty"`
}

// NodeDoc is one DAG vertex in document form. Connection is resolved by
// name, never by id, so the document stays portable across workspaces.
type NodeDoc struct {
	ID            string         `yaml:"id"`
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description,omitempty"`
	Operator      string         `yaml:"operator"`
	Class         string         `yaml:"class"`
	Config        map[string]any `yaml:"config,omitempty"`
	Connection    string         `yaml:"connection,omitempty"`
	MaxRetries    int            `yaml:"max_retries,omitempty"`
	RetryStrategy string         `yaml:"retry_strategy,omitempty"`
	TimeoutSeconds int           `yaml:"timeout_seconds,omitempty"`
}

// EdgeDoc is one DAG edge in document form.
type EdgeDoc struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Type string `yaml:"type"`
}
