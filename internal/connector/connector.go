// Package connector implements the C1 capability-typed plugin registry and
// engine pool: a uniform interface surface for every external system a
// pipeline node can read from or write to (§4.1). Rather than the source's
// dynamically-dispatched capability strings, each capability is a small Go
// interface; a connector implements whichever subset applies and callers
// discover support via interface assertion (§9 design note 1).
package connector

import (
	"context"

	"github.com/synqx/core/internal/domain"
)

// Row is a single record as returned by query/sample/file-listing calls.
type Row map[string]any

// AssetDescriptor is a discovered table/collection/file before it is
// promoted to a domain.Asset by the caller.
type AssetDescriptor struct {
	Name         string
	FQN          string
	AssetType    domain.AssetType
	IsSource     bool
	IsDest       bool
	IsIncr       bool
}

// SchemaDescriptor describes the columns of an asset.
type SchemaDescriptor struct {
	Columns []domain.ColumnSchema
	Hash    string
}

// WriteMode mirrors domain.WriteStrategy for connector write calls.
type WriteMode = domain.WriteStrategy

// Connector is the minimal contract every plugin implements (§4.1
// "validate_config, connect/disconnect, test_connection required").
type Connector interface {
	Kind() string
	ValidateConfig(config map[string]any) error
	Connect(ctx context.Context, config map[string]any) error
	Disconnect(ctx context.Context) error
	TestConnection(ctx context.Context) error
}

// Discoverer lists assets visible through the connection.
type Discoverer interface {
	DiscoverAssets(ctx context.Context, pattern string, includeMetadata bool) ([]AssetDescriptor, error)
}

// SchemaInferrer infers the column schema of an asset.
type SchemaInferrer interface {
	InferSchema(ctx context.Context, asset string, sampleSize int, mode string) (SchemaDescriptor, error)
}

// ChunkCallback is how read paths hand chunks back without allocating a full
// slice-of-slices round trip through the operator package; the chunk type
// itself lives in internal/chunk, so this interface takes a callback to
// avoid an import cycle between connector and chunk-producing operators.
type ChunkCallback func(columns []string, rows []Row) error

// BatchReader reads a finite, connector-native-ordered sequence of batches.
type BatchReader interface {
	ReadBatch(ctx context.Context, asset string, limit, offset, chunkSize int, incrementalFilter map[string]any, emit ChunkCallback) error
}

// CDCReader reads a potentially infinite changelog stream; rows are tagged
// with _cdc_event/_cdc_ts/_cdc_token per §4.1.
type CDCReader interface {
	ReadCDC(ctx context.Context, resumeToken string, batchSize int, tables []string, emit ChunkCallback) error
}

// BatchWriter writes a finite set of batches to an asset.
type BatchWriter interface {
	WriteBatch(ctx context.Context, asset string, mode WriteMode, columns []string, rows []Row) (int, error)
}

// StagedWriter uploads via an intermediate stage connector then issues a
// native bulk-load command; SupportsStaging must return true for the
// executor to prefer this path over WriteBatch (§4.1 write_staged).
type StagedWriter interface {
	SupportsStaging() bool
	WriteStaged(ctx context.Context, asset string, mode WriteMode, stage Connector, columns []string, rows []Row) (int, error)
}

// QueryExecutor runs an ad-hoc query/DSL string, used by the ephemeral
// "explorer" job type and §6's execute_query external interface.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, query string, limit, offset int, params map[string]any) (columns []string, rows []Row, totalCount int, err error)
}

// Sampler returns a bounded preview of an asset's rows; connectors without a
// custom implementation get DefaultSample, which delegates to BatchReader.
type Sampler interface {
	FetchSample(ctx context.Context, asset string, limit int) ([]Row, error)
}

// FileOps is the optional file-connector capability set (§4.1).
type FileOps interface {
	ListFiles(ctx context.Context, dir string) ([]string, error)
	DownloadFile(ctx context.Context, path string) ([]byte, error)
	UploadFile(ctx context.Context, path string, data []byte) error
	DeleteFile(ctx context.Context, path string) error
	CreateDirectory(ctx context.Context, path string) error
	ZipDirectory(ctx context.Context, dir string) ([]byte, error)
}

// DefaultSample implements Sampler on top of any BatchReader when a
// connector doesn't provide its own FetchSample (§4.1 "default
// implementation: take from read_batch").
func DefaultSample(ctx context.Context, r BatchReader, asset string, limit int) ([]Row, error) {
	var out []Row
	err := r.ReadBatch(ctx, asset, limit, 0, limit, nil, func(_ []string, rows []Row) error {
		out = append(out, rows...)
		return nil
	})
	return out, err
}

// ephemeralConfigKeys are stripped before any config is handed to a backend
// library call (§4.1 "Internal-kwargs hygiene").
var ephemeralConfigKeys = []string{
	"ui", "connection_id", "batch_size", "incremental", "incremental_filter",
	"watermark_column", "table", "write_mode", "write_strategy", "target_table",
	"schema_evolution_policy", "chunksize", "sync_mode", "cdc_config",
}

// StripEphemeralKeys returns a copy of config with the pipeline-metadata
// keys removed, per §4.1's kwargs-hygiene rule.
func StripEphemeralKeys(config map[string]any) map[string]any {
	out := make(map[string]any, len(config))
	skip := make(map[string]struct{}, len(ephemeralConfigKeys))
	for _, k := range ephemeralConfigKeys {
		skip[k] = struct{}{}
	}
	for k, v := range config {
		if _, skipped := skip[k]; skipped {
			continue
		}
		out[k] = v
	}
	return out
}

// NormalizeAssetIdentifier splits asset into (schema, name) per §4.1: if
// asset contains a ".", split on the last one; else use configSchema.
func NormalizeAssetIdentifier(asset, configSchema string) (schema, name string) {
	lastDot := -1
	for i := len(asset) - 1; i >= 0; i-- {
		if asset[i] == '.' {
			lastDot = i
			break
		}
	}
	if lastDot < 0 {
		return configSchema, asset
	}
	return asset[:lastDot], asset[lastDot+1:]
}
