// Package chunk implements SynqX's in-house columnar batch type. The spec
// treats the chunk as an opaque, Arrow-backed tabular value; no Arrow-for-Go
// library appears anywhere in the retrieved example pack, so Chunk is a
// lightweight row-oriented substitute good enough for the streaming,
// row-level operator semantics §4.3 describes (filter, map, validate,
// pii_mask, etc. all reason about individual rows/columns, never vectorized
// kernels). See DESIGN.md for the full justification.
package chunk

// Direction tags where a chunk sits relative to an operator, used by the
// executor's on_chunk callback (§4.3).
type Direction string

const (
	DirectionInput        Direction = "input"
	DirectionOutput       Direction = "output"
	DirectionIntermediate Direction = "intermediate"
	DirectionQuarantine   Direction = "quarantine"
)

// OnChunkFunc is the typed replacement for the source's dynamically-keyed
// `_on_chunk` config callback (§9 design note "dynamically typed configs").
type OnChunkFunc func(c Chunk, dir Direction, filtered, errored int)

// Chunk is an immutable-by-convention columnar tabular batch: ordered
// column names plus row-major cell storage. Callers must not mutate Rows
// in place once a Chunk has been handed to a downstream consumer — use
// Clone or build a new Chunk via Builder.
type Chunk struct {
	Columns []string
	Rows    []Row
}

// Row is one row's cell values keyed by column name.
type Row map[string]any

// Empty reports whether the chunk carries zero rows. Per §4.3, empty chunks
// are valid and must still be forwarded — they carry schema and serve as
// heartbeats.
func (c Chunk) Empty() bool {
	return len(c.Rows) == 0
}

// Len returns the row count.
func (c Chunk) Len() int {
	return len(c.Rows)
}

// New builds a Chunk from an explicit column list and rows.
func New(columns []string, rows []Row) Chunk {
	return Chunk{Columns: columns, Rows: rows}
}

// NewEmpty builds a zero-row Chunk carrying only a schema, used as a
// heartbeat/schema-carrier per §4.3.
func NewEmpty(columns []string) Chunk {
	return Chunk{Columns: columns, Rows: nil}
}

// FromMaps infers the column set as the union of keys across rows and
// builds a Chunk. Keys first seen in an earlier row come before keys first
// seen in a later one; the order among keys first seen in the same row is
// not defined.
func FromMaps(rows []map[string]any) Chunk {
	seen := make(map[string]struct{})
	var columns []string
	out := make([]Row, len(rows))
	for i, r := range rows {
		row := make(Row, len(r))
		for k, v := range r {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
			row[k] = v
		}
		out[i] = row
	}
	return Chunk{Columns: columns, Rows: out}
}

// Clone returns a deep-enough copy: new Rows slice and new Row maps, but
// cell values themselves are shared (matching the spec's "references are
// shared, copies not required if the downstream set is read-only" fan-out
// note in §4.4).
func (c Chunk) Clone() Chunk {
	cols := make([]string, len(c.Columns))
	copy(cols, c.Columns)
	rows := make([]Row, len(c.Rows))
	for i, r := range c.Rows {
		nr := make(Row, len(r))
		for k, v := range r {
			nr[k] = v
		}
		rows[i] = nr
	}
	return Chunk{Columns: cols, Rows: rows}
}

// WithColumn returns a new Chunk with column added to the schema if not
// already present (used by operators that add derived columns).
func (c Chunk) WithColumn(name string) Chunk {
	for _, col := range c.Columns {
		if col == name {
			return c
		}
	}
	cols := make([]string, len(c.Columns)+1)
	copy(cols, c.Columns)
	cols[len(c.Columns)] = name
	return Chunk{Columns: cols, Rows: c.Rows}
}

// Filter returns a new Chunk containing only rows for which keep returns
// true, preserving order.
func (c Chunk) Filter(keep func(Row) bool) Chunk {
	out := make([]Row, 0, len(c.Rows))
	for _, r := range c.Rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return Chunk{Columns: c.Columns, Rows: out}
}

// Builder accumulates rows incrementally, used by blocking operators
// (sort, aggregate, deduplicate, merge, scd_type_2) that must materialize
// the full input before emitting.
type Builder struct {
	columns []string
	seen    map[string]struct{}
	rows    []Row
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{seen: make(map[string]struct{})}
}

// Add appends a single row, extending the column schema with any new keys.
func (b *Builder) Add(r Row) {
	for k := range r {
		if _, ok := b.seen[k]; !ok {
			b.seen[k] = struct{}{}
			b.columns = append(b.columns, k)
		}
	}
	b.rows = append(b.rows, r)
}

// AddChunk appends every row of c.
func (b *Builder) AddChunk(c Chunk) {
	for _, col := range c.Columns {
		if _, ok := b.seen[col]; !ok {
			b.seen[col] = struct{}{}
			b.columns = append(b.columns, col)
		}
	}
	b.rows = append(b.rows, c.Rows...)
}

// Build returns the accumulated Chunk.
func (b *Builder) Build() Chunk {
	return Chunk{Columns: b.columns, Rows: b.rows}
}
