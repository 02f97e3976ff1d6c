package ephemeral

import (
	"github.com/synqx/core/internal/chunk"
	"github.com/synqx/core/internal/connector"
)

// chunkFromRows converts a connector result set into the in-house columnar
// type the result cache stores (§4.7 "columnar_bytes... the in-house
// Arrow-substitute").
func chunkFromRows(columns []string, rows []connector.Row) chunk.Chunk {
	out := make([]chunk.Row, len(rows))
	for i, r := range rows {
		out[i] = chunk.Row(r)
	}
	return chunk.New(columns, out)
}

// rowsFromChunk is chunkFromRows's inverse, used when serving a cached
// result back out as connector rows.
func rowsFromChunk(c chunk.Chunk) []connector.Row {
	out := make([]connector.Row, len(c.Rows))
	for i, r := range c.Rows {
		out[i] = connector.Row(r)
	}
	return out
}

// toResultSample converts rows to the plain map[string]any slice
// domain.EphemeralJob.ResultSample carries.
func toResultSample(rows []connector.Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = map[string]any(r)
	}
	return out
}
