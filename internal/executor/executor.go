package executor

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/synqx/core/internal/chunk"
	"github.com/synqx/core/internal/connector"
	"github.com/synqx/core/internal/dag"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/logging"
	"github.com/synqx/core/internal/operator"
)

const defaultEdgeBufferSize = 16

// MetricsSink receives per-chunk telemetry, bridging the executor to
// internal/telemetry and internal/pubsub without a direct import (mirrors
// the teacher's callback-over-interface wiring style).
type MetricsSink func(nodeID string, c chunk.Chunk, dir chunk.Direction, filtered, errored int)

// Deps are the host-scoped services the executor needs to run one plan;
// wired once at startup and passed by value into New, per §9 design note
// "explicit host-scoped services" replacing process-wide singletons.
type Deps struct {
	Operators   *operator.Registry
	Pool        *connector.Pool
	Connections map[string]domain.Connection // keyed by Connection.ID
	Assets      map[string]domain.Asset      // keyed by Asset.ID
	MaxWorkers  int                          // 0 -> runtime.NumCPU()*2
	EdgeBuffer  int                          // 0 -> defaultEdgeBufferSize
	OnMetric    MetricsSink
}

// Executor drives a single DAG plan's layered execution (§4.4).
type Executor struct {
	deps Deps
	log  *logging.Logger
}

// New returns an Executor for one Run invocation's lifetime; Deps should be
// constructed once at process startup and reused across jobs.
func New(deps Deps) *Executor {
	if deps.MaxWorkers <= 0 {
		deps.MaxWorkers = runtime.NumCPU() * 2
	}
	if deps.EdgeBuffer <= 0 {
		deps.EdgeBuffer = defaultEdgeBufferSize
	}
	return &Executor{deps: deps, log: logging.NewDefault("executor")}
}

type nodeResult struct {
	output chunk.Chunk
	step   *domain.StepRun
	err    error
}

// Run drives plan's execution layer by layer with a happens-before barrier
// between layers (§4.4 "Scheduling model"); within a layer, nodes run
// concurrently bounded by deps.MaxWorkers.
func (e *Executor) Run(ctx context.Context, plan *dag.Graph, nodes map[string]*domain.Node, runCtx *domain.PipelineRunContext) (*domain.PipelineRun, map[string]*domain.StepRun, error) {
	layers, err := plan.ExecutionLayers()
	if err != nil {
		return nil, nil, fmt.Errorf("executor: %w", err)
	}

	run := &domain.PipelineRun{
		ID:         uuid.NewString(),
		JobID:      runCtx.RunID,
		PipelineID: runCtx.PipelineID,
		Status:     domain.JobRunning,
		StartedAt:  time.Now(),
	}

	outputs := make(map[string]chunk.Chunk)
	quarantines := make(map[string]*quarantineBuffer)
	steps := make(map[string]*domain.StepRun)

	for _, layer := range layers {
		pool := newWorkerPool(e.deps.MaxWorkers)
		results := make(chan struct {
			id string
			nodeResult
		}, len(layer))

		for _, id := range layer {
			id := id
			pool.Go(func() {
				node := nodes[id]
				res := e.runNode(ctx, plan, node, outputs, quarantines, runCtx)
				results <- struct {
					id string
					nodeResult
				}{id: id, nodeResult: res}
			})
		}

		pool.Wait()
		close(results)

		var layerErr error
		var failedNode string
		for r := range results {
			steps[r.id] = r.step
			if r.err != nil {
				if layerErr == nil {
					layerErr = r.err
					failedNode = r.id
				}
				continue
			}
			outputs[r.id] = r.output
			run.TotalsIn += r.step.RecordsIn
			run.TotalsOut += r.step.RecordsOut
			run.TotalsFailed += r.step.RecordsError
			run.TotalBytes += r.step.Bytes
		}

		if layerErr != nil {
			now := time.Now()
			run.Status = domain.JobFailed
			run.FailedStepRef = failedNode
			run.CompletedAt = &now
			run.Duration = now.Sub(run.StartedAt)
			return run, steps, fmt.Errorf("executor: node %s failed: %w", failedNode, layerErr)
		}
	}

	now := time.Now()
	run.Status = domain.JobSuccess
	run.CompletedAt = &now
	run.Duration = now.Sub(run.StartedAt)
	return run, steps, nil
}

// runNode executes one node to completion (including its retry loop) and
// returns its materialized output plus a populated StepRun.
func (e *Executor) runNode(ctx context.Context, plan *dag.Graph, node *domain.Node, outputs map[string]chunk.Chunk, quarantines map[string]*quarantineBuffer, runCtx *domain.PipelineRunContext) nodeResult {
	now := time.Now()
	step := &domain.StepRun{
		ID:            uuid.NewString(),
		PipelineRunID: runCtx.RunID,
		NodeID:        node.NodeID,
		State:         domain.StepRunning,
		StartedAt:     &now,
	}

	if node.CollapsedInto() != "" {
		step.State = domain.StepSuccess
		completed := time.Now()
		step.CompletedAt = &completed
		return nodeResult{output: chunk.Chunk{}, step: step}
	}

	qbuf := newQuarantineBuffer(4 * 1024 * 1024)
	quarantines[node.NodeID] = qbuf
	guardrail := newGuardrailChecker(node.NodeID, node.Guardrails)

	var out chunk.Chunk
	err := withRetry(ctx, node.Retry, func(attempt int) error {
		result, runErr := e.execute(ctx, plan, node, outputs, runCtx, step, guardrail, qbuf)
		if runErr != nil {
			step.State = domain.StepRetrying
			step.ErrorMessage = runErr.Error()
			return runErr
		}
		out = result
		return nil
	})

	completed := time.Now()
	step.CompletedAt = &completed
	if err != nil {
		step.State = domain.StepFailed
		step.ErrorMessage = err.Error()
		return nodeResult{step: step, err: err}
	}
	step.State = domain.StepSuccess
	return nodeResult{output: out, step: step}
}

// execute runs the node's operator exactly once (no retry bookkeeping
// here; withRetry wraps this), wiring EXTRACT/TRANSFORM/LOAD input and
// output per §4.4's per-node lifecycle.
func (e *Executor) execute(ctx context.Context, plan *dag.Graph, node *domain.Node, outputs map[string]chunk.Chunk, runCtx *domain.PipelineRunContext, step *domain.StepRun, guardrail *guardrailChecker, qbuf *quarantineBuffer) (chunk.Chunk, error) {
	op, err := e.deps.Operators.New(node.OperatorClass, node.Config, runCtx)
	if err != nil {
		return chunk.Chunk{}, fmt.Errorf("operator %s: %w", node.OperatorClass, err)
	}

	onChunk := func(c chunk.Chunk, dir chunk.Direction, filtered, errored int) {
		switch dir {
		case chunk.DirectionInput:
			step.RecordsIn += int64(c.Len())
		case chunk.DirectionOutput:
			step.RecordsOut += int64(c.Len())
			step.RecordsFiltered += int64(filtered)
			step.RecordsError += int64(errored)
			step.Bytes += int64(estimateChunkBytes(c))
		case chunk.DirectionQuarantine:
			qbuf.Add(c.Rows)
			step.RecordsError += int64(errored)
		}
		if e.deps.OnMetric != nil {
			e.deps.OnMetric(node.NodeID, c, dir, filtered, errored)
		}
	}

	switch multi, isMulti := op.(operator.MultiInput); {
	case isMulti:
		return e.executeMulti(ctx, plan, node, multi, outputs, onChunk, guardrail)
	default:
		single, ok := op.(operator.SingleInput)
		if !ok {
			return chunk.Chunk{}, fmt.Errorf("operator %s implements neither SingleInput nor MultiInput", node.OperatorClass)
		}
		return e.executeSingle(ctx, plan, node, single, outputs, onChunk, guardrail)
	}
}

// executeSingle wires in/out channels to op.Transform and runs the feed
// (connector read or predecessor replay) concurrently with the transform
// goroutine — both must run at once, since a feed that blocks waiting on a
// full buffered channel would deadlock if the transform consumer only
// started once feeding finished. A cancellable child context lets an early
// guardrail breach unstick a still-producing feed/transform goroutine
// instead of leaking it.
func (e *Executor) executeSingle(ctx context.Context, plan *dag.Graph, node *domain.Node, op operator.SingleInput, outputs map[string]chunk.Chunk, onChunk chunk.OnChunkFunc, guardrail *guardrailChecker) (chunk.Chunk, error) {
	nodeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan chunk.Chunk, e.deps.EdgeBuffer)
	out := make(chan chunk.Chunk, e.deps.EdgeBuffer)

	feedErrCh := make(chan error, 1)
	go func() {
		switch node.OperatorType {
		case domain.OperatorExtract:
			feedErrCh <- e.feedFromConnector(nodeCtx, node, in)
		default:
			feedErrCh <- feedFromPredecessors(nodeCtx, plan, node, outputs, in)
		}
	}()

	transformErrCh := make(chan error, 1)
	go func() {
		transformErrCh <- op.Transform(nodeCtx, in, out, onChunk)
		close(out)
	}()

	builder := chunk.NewBuilder()
	var guardrailErr error
	for c := range out {
		if guardrailErr != nil {
			continue // keep draining so the producer goroutines can exit
		}
		if guardrail != nil {
			if gerr := guardrail.Check(c); gerr != nil {
				guardrailErr = gerr
				cancel()
				continue
			}
		}
		builder.AddChunk(c)
	}

	transformErr := <-transformErrCh
	feedErr := <-feedErrCh

	if guardrailErr != nil {
		return chunk.Chunk{}, guardrailErr
	}
	if feedErr != nil && feedErr != context.Canceled {
		return chunk.Chunk{}, feedErr
	}
	if transformErr != nil {
		return chunk.Chunk{}, transformErr
	}

	result := builder.Build()

	if node.OperatorType == domain.OperatorLoad {
		if err := e.drainToConnector(ctx, node, result); err != nil {
			return chunk.Chunk{}, err
		}
	}

	return result, nil
}

func (e *Executor) executeMulti(ctx context.Context, plan *dag.Graph, node *domain.Node, op operator.MultiInput, outputs map[string]chunk.Chunk, onChunk chunk.OnChunkFunc, guardrail *guardrailChecker) (chunk.Chunk, error) {
	nodeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ins := make(map[string]<-chan chunk.Chunk)
	for port, parentID := range multiParentBindings(plan, node) {
		ch := make(chan chunk.Chunk, 1)
		if parentOutput, ok := outputs[parentID]; ok {
			ch <- parentOutput
		}
		close(ch)
		ins[port] = ch
	}

	out := make(chan chunk.Chunk, e.deps.EdgeBuffer)
	transformErrCh := make(chan error, 1)
	go func() {
		transformErrCh <- op.TransformMulti(nodeCtx, ins, out, onChunk)
		close(out)
	}()

	builder := chunk.NewBuilder()
	var guardrailErr error
	for c := range out {
		if guardrailErr != nil {
			continue
		}
		if guardrail != nil {
			if gerr := guardrail.Check(c); gerr != nil {
				guardrailErr = gerr
				cancel()
				continue
			}
		}
		builder.AddChunk(c)
	}

	transformErr := <-transformErrCh
	if guardrailErr != nil {
		return chunk.Chunk{}, guardrailErr
	}
	if transformErr != nil {
		return chunk.Chunk{}, transformErr
	}
	return builder.Build(), nil
}

// multiParentBindings derives the named port a multi-input operator reads
// each predecessor through. A node's config carries "parent_ports", a
// map<parent_node_id, port_name> (e.g. {"node_a": "left", "node_b":
// "right"}) matching whatever port names the chosen operator class expects
// (join's left/right, merge's delta/target, scd_type_2's delta/target,
// union's arbitrary member names) — the DAG edges themselves carry no port
// information (§3 Edge), so the node declares the mapping explicitly. A
// predecessor with no explicit entry falls back to its own node id as the
// port name, which matches union's convention of naming ports after their
// source nodes.
func multiParentBindings(plan *dag.Graph, node *domain.Node) map[string]string {
	portOf, _ := node.Config["parent_ports"].(map[string]any)
	out := make(map[string]string)
	for _, parentID := range plan.Predecessors(node.NodeID) {
		port := parentID
		if v, ok := portOf[parentID]; ok {
			if s, ok := v.(string); ok && s != "" {
				port = s
			}
		}
		out[port] = parentID
	}
	return out
}

// feedFromPredecessors feeds a TRANSFORM/LOAD node's single upstream output
// (already fully materialized, per the layered barrier model) into in.
func feedFromPredecessors(ctx context.Context, plan *dag.Graph, node *domain.Node, outputs map[string]chunk.Chunk, in chan<- chunk.Chunk) error {
	defer close(in)
	preds := plan.Predecessors(node.NodeID)
	if len(preds) == 0 {
		return nil
	}
	c, ok := outputs[preds[0]]
	if !ok {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case in <- c:
	}
	return nil
}

func (e *Executor) feedFromConnector(ctx context.Context, node *domain.Node, in chan<- chunk.Chunk) error {
	defer close(in)
	if node.ConnectionRef == nil || node.SourceAssetRef == nil {
		return fmt.Errorf("extract node %s missing connection_ref/source_asset_ref", node.NodeID)
	}
	conn, ok := e.deps.Connections[*node.ConnectionRef]
	if !ok {
		return fmt.Errorf("extract node %s: unknown connection %s", node.NodeID, *node.ConnectionRef)
	}
	asset, ok := e.deps.Assets[*node.SourceAssetRef]
	if !ok {
		return fmt.Errorf("extract node %s: unknown asset %s", node.NodeID, *node.SourceAssetRef)
	}

	c, err := e.deps.Pool.Acquire(ctx, conn.ConnectorKind, conn.ConfigBlob, nil)
	if err != nil {
		return fmt.Errorf("extract node %s: acquire connector: %w", node.NodeID, err)
	}
	reader, ok := c.(connector.BatchReader)
	if !ok {
		return fmt.Errorf("extract node %s: connector %s does not support read_batch", node.NodeID, conn.ConnectorKind)
	}

	chunkSize := intConfigValue(node.Config, "chunksize", 1000)
	limit := intConfigValue(node.Config, "limit", 0)
	offset := intConfigValue(node.Config, "offset", 0)

	return reader.ReadBatch(ctx, asset.FQN, limit, offset, chunkSize, nil, func(columns []string, rows []connector.Row) error {
		chunkRows := make([]chunk.Row, len(rows))
		for i, r := range rows {
			chunkRows[i] = chunk.Row(r)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in <- chunk.Chunk{Columns: columns, Rows: chunkRows}:
		}
		return nil
	})
}

func (e *Executor) drainToConnector(ctx context.Context, node *domain.Node, result chunk.Chunk) error {
	if node.ConnectionRef == nil || node.DestinationAssetRef == nil {
		return fmt.Errorf("load node %s missing connection_ref/destination_asset_ref", node.NodeID)
	}
	conn, ok := e.deps.Connections[*node.ConnectionRef]
	if !ok {
		return fmt.Errorf("load node %s: unknown connection %s", node.NodeID, *node.ConnectionRef)
	}
	asset, ok := e.deps.Assets[*node.DestinationAssetRef]
	if !ok {
		return fmt.Errorf("load node %s: unknown asset %s", node.NodeID, *node.DestinationAssetRef)
	}

	c, err := e.deps.Pool.Acquire(ctx, conn.ConnectorKind, conn.ConfigBlob, nil)
	if err != nil {
		return fmt.Errorf("load node %s: acquire connector: %w", node.NodeID, err)
	}

	rows := make([]connector.Row, len(result.Rows))
	for i, r := range result.Rows {
		rows[i] = connector.Row(r)
	}

	if staged, ok := c.(connector.StagedWriter); ok && staged.SupportsStaging() && conn.StagingConnectionRef != nil {
		stageConn, ok := e.deps.Connections[*conn.StagingConnectionRef]
		if ok {
			stage, err := e.deps.Pool.Acquire(ctx, stageConn.ConnectorKind, stageConn.ConfigBlob, nil)
			if err == nil {
				_, werr := staged.WriteStaged(ctx, asset.FQN, node.WriteStrategy, stage, result.Columns, rows)
				return werr
			}
		}
	}

	writer, ok := c.(connector.BatchWriter)
	if !ok {
		return fmt.Errorf("load node %s: connector %s does not support write_batch", node.NodeID, conn.ConnectorKind)
	}
	_, err = writer.WriteBatch(ctx, asset.FQN, node.WriteStrategy, result.Columns, rows)
	return err
}

func intConfigValue(config map[string]any, key string, def int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
