package operator

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/synqx/core/internal/chunk"
	"github.com/synqx/core/internal/domain"
)

// dbtOperator shells out to an agent-provisioned `dbt` binary rather than
// linking the dbt runtime into the core process (§9 design note "dbt
// operator"). It is a side-effecting pass-through: the upstream chunk
// stream is forwarded unchanged after the subprocess completes, since dbt
// operates on the warehouse directly rather than on in-flight rows.
type dbtOperator struct {
	IdentityLineage
	projectDir string
	command    string // run | test | build | seed | snapshot
	selector   string
	env        map[string]string
}

func newDBTOperator(config map[string]any, runCtx *domain.PipelineRunContext) (Operator, error) {
	op := &dbtOperator{
		projectDir: stringOr(config["project_dir"], "."),
		command:    stringOr(config["command"], "run"),
		selector:   stringOr(config["selector"], ""),
		env:        map[string]string{},
	}
	if runCtx != nil {
		for k, v := range runCtx.Environment {
			op.env[k] = v
		}
	}
	return op, nil
}

func (d *dbtOperator) ValidateConfig() error {
	switch d.command {
	case "run", "test", "build", "seed", "snapshot":
	default:
		return fmt.Errorf("dbt: unsupported command %q", d.command)
	}
	return nil
}

func (d *dbtOperator) Transform(ctx context.Context, in <-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	if err := d.run(ctx); err != nil {
		return err
	}
	return forwardAll(ctx, in, out, onChunk, func(c chunk.Chunk) (chunk.Chunk, int, int) {
		return c, 0, 0
	})
}

func (d *dbtOperator) run(ctx context.Context) error {
	args := []string{d.command, "--project-dir", d.projectDir}
	if d.selector != "" {
		args = append(args, "--select", d.selector)
	}

	cmd := exec.CommandContext(ctx, "dbt", args...)
	for k, v := range d.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("dbt %s failed: %w: %s", d.command, err, stderr.String())
	}
	return nil
}
