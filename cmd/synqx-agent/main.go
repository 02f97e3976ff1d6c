// Command synqx-agent runs a remote worker process implementing the agent
// side of the work protocol: register (or authenticate with an existing
// API key), heartbeat, lease a job and its resolved plan in one fetch,
// execute it locally through internal/executor, and report progress and
// terminal state back to the control plane over HTTP.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/synqx/core/internal/connector"
	"github.com/synqx/core/internal/connector/builtin"
	"github.com/synqx/core/internal/dag"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/executor"
	"github.com/synqx/core/internal/operator"
	"github.com/synqx/core/pkg/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	serverURL := flag.String("server", "http://127.0.0.1:8080", "synqx-server base URL")
	workspaceID := flag.String("workspace-id", "", "workspace this agent belongs to (used only for registration)")
	displayName := flag.String("display-name", "", "human-readable agent name (used only for registration)")
	groups := flag.String("groups", "default", "comma-separated agent group tags this agent accepts jobs for")
	clientID := flag.String("client-id", "", "existing agent client ID (skips registration)")
	apiKey := flag.String("api-key", "", "existing agent API key (skips registration)")
	heartbeatPeriod := flag.Duration("heartbeat-period", 15*time.Second, "heartbeat interval")
	pollInterval := flag.Duration("poll-interval", 2*time.Second, "interval between lease attempts when no job is available")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.FullVersion())
		return
	}

	client := &http.Client{Timeout: 30 * time.Second}
	a := &agent{
		base:   strings.TrimRight(*serverURL, "/"),
		client: client,
		groups: splitGroups(*groups),
	}

	if *clientID == "" || *apiKey == "" {
		if *workspaceID == "" || *displayName == "" {
			log.Fatal("either --client-id/--api-key or --workspace-id/--display-name must be supplied")
		}
		resp, err := a.register(*workspaceID, *displayName, a.groups)
		if err != nil {
			log.Fatalf("register: %v", err)
		}
		log.Printf("registered agent %s (client_id=%s); save this API key, it is shown only once: %s", resp.Agent.ID, resp.Agent.ClientID, resp.APIKey)
		a.clientID = resp.Agent.ClientID
		a.apiKey = resp.APIKey
	} else {
		a.clientID = *clientID
		a.apiKey = *apiKey
	}

	if err := a.authenticate(); err != nil {
		log.Fatalf("authenticate: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.heartbeatLoop(ctx, *heartbeatPeriod)
	a.leaseLoop(ctx, *pollInterval)
}

func splitGroups(csv string) []string {
	var groups []string
	for _, g := range strings.Split(csv, ",") {
		g = strings.TrimSpace(g)
		if g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}

// agent holds this process's control-plane session: its registered
// identity, current bearer token, and the local executor dependencies used
// to run every leased job.
type agent struct {
	base     string
	client   *http.Client
	groups   []string
	clientID string
	apiKey   string

	token atomic.Value // string

	connRegistry *connector.Registry
	opRegistry   *operator.Registry
	pool         *connector.Pool
}

func (a *agent) currentToken() string {
	v, _ := a.token.Load().(string)
	return v
}

type registerResponse struct {
	Agent  domain.Agent `json:"agent"`
	APIKey string       `json:"api_key"`
}

func (a *agent) register(workspaceID, displayName string, groups []string) (registerResponse, error) {
	var out registerResponse
	body := map[string]any{
		"workspace_id": workspaceID,
		"display_name": displayName,
		"tags":         domain.AgentTags{Groups: groups},
	}
	err := a.do(context.Background(), http.MethodPost, "/api/v1/agents/register", body, false, &out)
	return out, err
}

type authenticateResponse struct {
	Agent domain.Agent `json:"agent"`
	Token string       `json:"token"`
}

func (a *agent) authenticate() error {
	var out authenticateResponse
	body := map[string]string{"client_id": a.clientID, "api_key": a.apiKey}
	if err := a.do(context.Background(), http.MethodPost, "/api/v1/agents/authenticate", body, false, &out); err != nil {
		return err
	}
	a.token.Store(out.Token)
	return nil
}

// heartbeatLoop reports liveness every period; per the work protocol, three
// consecutive heartbeat failures abort in-flight work and exit the process
// so the control plane's liveness window marks this agent OFFLINE and
// re-routes its jobs.
func (a *agent) heartbeatLoop(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var out authenticateResponse
			body := map[string]any{"status": domain.AgentOnline}
			if err := a.do(ctx, http.MethodPost, "/api/v1/agents/heartbeat", body, true, &out); err != nil {
				consecutiveFailures++
				log.Printf("heartbeat failed (%d/3): %v", consecutiveFailures, err)
				if consecutiveFailures >= 3 {
					log.Fatal("three consecutive heartbeat failures, aborting")
				}
				continue
			}
			consecutiveFailures = 0
			if out.Token != "" {
				a.token.Store(out.Token)
			}
		}
	}
}

type leaseResponse struct {
	Job             domain.Job                   `json:"job"`
	PipelineVersion domain.PipelineVersion        `json:"pipeline_version"`
	Connections     map[string]domain.Connection `json:"connections"`
	Assets          map[string]domain.Asset      `json:"assets"`
}

// leaseLoop repeatedly polls for a leased job; a 204 means nothing is
// queued for this agent's groups right now, so it sleeps for interval
// before trying again.
func (a *agent) leaseLoop(ctx context.Context, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var lease leaseResponse
		status, err := a.doStatus(ctx, http.MethodGet, "/api/v1/agents/lease", nil, true, &lease)
		if err != nil {
			log.Printf("lease poll failed: %v", err)
			sleepOrDone(ctx, interval)
			continue
		}
		if status == http.StatusNoContent {
			sleepOrDone(ctx, interval)
			continue
		}

		a.runJob(ctx, lease)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// runJob executes a leased plan locally through internal/executor, streams
// one progress update per completed node, and reports the terminal result.
func (a *agent) runJob(ctx context.Context, lease leaseResponse) {
	a.ensureExecutorDeps()

	plan := dag.New()
	nodes := make(map[string]*domain.Node, len(lease.PipelineVersion.Nodes))
	for i := range lease.PipelineVersion.Nodes {
		n := lease.PipelineVersion.Nodes[i]
		plan.AddNode(n.NodeID)
		nodes[n.NodeID] = &n
	}
	for _, e := range lease.PipelineVersion.Edges {
		if err := plan.AddEdge(e.FromNodeID, e.ToNodeID); err != nil {
			a.complete(ctx, lease.Job.ID, false, err.Error(), "")
			return
		}
	}

	exec := executor.New(executor.Deps{
		Operators:   a.opRegistry,
		Pool:        a.pool,
		Connections: lease.Connections,
		Assets:      lease.Assets,
	})

	runCtx := &domain.PipelineRunContext{
		RunID:      lease.Job.ID,
		PipelineID: lease.Job.PipelineRef,
		Parameters: lease.Job.Parameters,
	}

	run, steps, err := exec.Run(ctx, plan, nodes, runCtx)
	if err != nil {
		a.complete(ctx, lease.Job.ID, false, err.Error(), "")
		return
	}

	for _, n := range lease.PipelineVersion.Nodes {
		step, ok := steps[n.NodeID]
		if !ok {
			continue
		}
		a.reportProgress(ctx, lease.Job.ID, step)
	}

	if run.Status == domain.JobSuccess {
		a.complete(ctx, lease.Job.ID, true, "", "")
		return
	}
	a.complete(ctx, lease.Job.ID, false, "pipeline run did not complete successfully", run.FailedStepRef)
}

func (a *agent) ensureExecutorDeps() {
	if a.connRegistry != nil {
		return
	}
	a.connRegistry = connector.NewRegistry()
	builtin.RegisterAll(a.connRegistry)
	a.pool = connector.NewPool(a.connRegistry)
	a.opRegistry = operator.NewRegistry()
	operator.RegisterBuiltins(a.opRegistry)
}

func (a *agent) reportProgress(ctx context.Context, jobID string, step *domain.StepRun) {
	body := map[string]any{
		"step_ref":     step.NodeID,
		"state":        step.State,
		"rows_read":    step.RecordsIn,
		"rows_written": step.RecordsOut,
	}
	var out map[string]string
	if err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/agents/jobs/%s/progress", jobID), body, true, &out); err != nil {
		log.Printf("report progress for step %s failed: %v", step.NodeID, err)
	}
}

func (a *agent) complete(ctx context.Context, jobID string, success bool, infraError, failedStepRef string) {
	body := map[string]any{
		"success":         success,
		"infra_error":     infraError,
		"failed_step_ref": failedStepRef,
	}
	var out domain.Job
	if err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/agents/jobs/%s/complete", jobID), body, true, &out); err != nil {
		log.Printf("report completion for job %s failed: %v", jobID, err)
	}
}

func (a *agent) do(ctx context.Context, method, path string, body any, auth bool, out any) error {
	_, err := a.doStatus(ctx, method, path, body, auth, out)
	return err
}

// doStatus issues the request and returns the response status code
// alongside any error, since the lease endpoint's 204 "nothing queued"
// response is not itself an error condition.
func (a *agent) doStatus(ctx context.Context, method, path string, body any, auth bool, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if auth {
		req.Header.Set("Authorization", "Bearer "+a.currentToken())
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if resp.StatusCode >= 400 {
		var apiErr map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return resp.StatusCode, fmt.Errorf("%s %s: status %d: %v", method, path, resp.StatusCode, apiErr)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
