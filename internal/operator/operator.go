// Package operator implements the C3 operator runtime: a typed capability
// interface per §9's "dynamic plugin registry -> typed capability set"
// design note, a process-wide registry, and the 19 built-in operator
// classes of §4.3.
package operator

import (
	"context"
	"fmt"
	"sync"

	"github.com/synqx/core/internal/chunk"
	"github.com/synqx/core/internal/domain"
)

// LineageMap maps an output column name to the set of input columns that
// contributed to it (§4.3 get_lineage_map).
type LineageMap map[string][]string

// Operator is the minimal contract every operator class satisfies.
// Single-input operators implement SingleInput; multi-input operators
// (join, union, merge, scd_type_2) implement MultiInput instead — the
// executor detects which via interface assertion.
type Operator interface {
	// ValidateConfig is called at construction time; failure aborts version
	// publication and job start (§4.3).
	ValidateConfig() error

	// Lineage returns the output->input column provenance map for the given
	// input column set. The default (identity) lineage is provided by
	// IdentityLineage and most operators embed it.
	Lineage(inputColumns []string) LineageMap
}

// SingleInput is implemented by operators with exactly one upstream chunk
// stream.
type SingleInput interface {
	Operator
	Transform(ctx context.Context, in <-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error
}

// MultiInput is implemented by operators with more than one named upstream
// chunk stream (join's left/right, union's parents, merge's delta/target,
// scd_type_2's delta/target).
type MultiInput interface {
	Operator
	TransformMulti(ctx context.Context, ins map[string]<-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error
}

// IdentityLineage is embedded by operators that don't rename/drop/derive
// columns; Lineage returns col -> {col} for every input column.
type IdentityLineage struct{}

func (IdentityLineage) Lineage(inputColumns []string) LineageMap {
	m := make(LineageMap, len(inputColumns))
	for _, c := range inputColumns {
		m[c] = []string{c}
	}
	return m
}

// Factory constructs an Operator instance from a node's config and the
// run-scoped context.
type Factory func(config map[string]any, runCtx *domain.PipelineRunContext) (Operator, error)

// Registry is a process-wide, concurrency-safe map of operator class name
// to Factory, mirroring the connector registry's registration contract
// (§6 "Operator plugin contract").
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds factory under className, overwriting any prior registration
// for the same name.
func (r *Registry) Register(className string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[className] = factory
}

// ErrUnknownClass is returned by New when no factory is registered for the
// requested operator class.
type ErrUnknownClass struct{ Class string }

func (e ErrUnknownClass) Error() string {
	return fmt.Sprintf("operator: unknown class %q", e.Class)
}

// New instantiates and validates an operator of the given class.
func (r *Registry) New(className string, config map[string]any, runCtx *domain.PipelineRunContext) (Operator, error) {
	r.mu.RLock()
	factory, ok := r.factories[className]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownClass{Class: className}
	}
	op, err := factory(config, runCtx)
	if err != nil {
		return nil, err
	}
	if err := op.ValidateConfig(); err != nil {
		return nil, err
	}
	return op, nil
}

// NewDefaultRegistry returns a Registry with all 19 built-in operator
// classes from §4.3 registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}

// RegisterBuiltins registers every built-in operator class onto r.
func RegisterBuiltins(r *Registry) {
	r.Register("filter", newFilterOperator)
	r.Register("map", newMapOperator)
	r.Register("rename_columns", newRenameColumnsOperator)
	r.Register("drop_columns", newDropColumnsOperator)
	r.Register("type_cast", newTypeCastOperator)
	r.Register("regex_replace", newRegexReplaceOperator)
	r.Register("fill_nulls", newFillNullsOperator)
	r.Register("deduplicate", newDeduplicateOperator)
	r.Register("sort", newSortOperator)
	r.Register("aggregate", newAggregateOperator)
	r.Register("union", newUnionOperator)
	r.Register("join", newJoinOperator)
	r.Register("merge", newMergeOperator)
	r.Register("scd_type_2", newSCDType2Operator)
	r.Register("code", newCodeOperator)
	r.Register("code_polars", newCodeOperator)
	r.Register("validate", newValidateOperator)
	r.Register("pii_mask", newPIIMaskOperator)
	r.Register("dbt", newDBTOperator)
	r.Register("noop", newNoopOperator)
	r.Register("pass_through", newNoopOperator)
}

// forwardAll drains in, passing every chunk (including empty heartbeats)
// to out while invoking onChunk for each; common body shared by operators
// whose row-transform doesn't change chunk boundaries.
func forwardAll(ctx context.Context, in <-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc, transform func(chunk.Chunk) (chunk.Chunk, int, int)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-in:
			if !ok {
				return nil
			}
			if onChunk != nil {
				onChunk(c, chunk.DirectionInput, 0, 0)
			}
			result, filtered, errored := transform(c)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- result:
			}
			if onChunk != nil {
				onChunk(result, chunk.DirectionOutput, filtered, errored)
			}
		}
	}
}
