package executor

import (
	"sync"

	"github.com/synqx/core/internal/chunk"
)

// quarantineBuffer is a capped in-memory ring buffer of quarantined rows
// (§4.4 "Quarantine"). Every quarantined row goes here: the executor does
// not read a node's quarantine_asset_ref and writes no quarantined rows to
// a connector. Once CapBytes is reached, the oldest rows are dropped to
// make room for new ones — a forensic sample, not a durable record.
type quarantineBuffer struct {
	mu       sync.Mutex
	capBytes int
	rows     []chunk.Row
	bytes    int
}

func newQuarantineBuffer(capBytes int) *quarantineBuffer {
	if capBytes <= 0 {
		capBytes = 4 * 1024 * 1024
	}
	return &quarantineBuffer{capBytes: capBytes}
}

func (q *quarantineBuffer) Add(rows []chunk.Row) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, r := range rows {
		size := estimateRowBytes(r)
		q.rows = append(q.rows, r)
		q.bytes += size
		for q.bytes > q.capBytes && len(q.rows) > 0 {
			q.bytes -= estimateRowBytes(q.rows[0])
			q.rows = q.rows[1:]
		}
	}
}

// Rows returns a snapshot of the currently buffered quarantined rows,
// exposed to the forensic service per §4.4.
func (q *quarantineBuffer) Rows() []chunk.Row {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]chunk.Row, len(q.rows))
	copy(out, q.rows)
	return out
}

func estimateRowBytes(r chunk.Row) int {
	size := 0
	for k, v := range r {
		size += len(k) + 16
		if s, ok := v.(string); ok {
			size += len(s)
		} else {
			size += 8
		}
	}
	return size
}
