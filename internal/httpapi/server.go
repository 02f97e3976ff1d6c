package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/synqx/core/internal/agents"
	"github.com/synqx/core/internal/config"
	"github.com/synqx/core/internal/ephemeral"
	"github.com/synqx/core/internal/gitops"
	"github.com/synqx/core/internal/jobs"
	"github.com/synqx/core/internal/logging"
	"github.com/synqx/core/internal/pubsub"
	"github.com/synqx/core/internal/storage"
	"github.com/synqx/core/internal/system"
)

// Deps wires every service/store the HTTP surface delegates to. Publisher
// and Log may be nil; every other field is used without a nil check by the
// routes that delegate to it.
type Deps struct {
	Jobs        *jobs.Service
	Agents      *agents.Service
	Ephemeral   *ephemeral.Service
	Importer    *gitops.Importer
	JobStore    storage.JobStore
	Pipelines   storage.PipelineStore
	Connections storage.ConnectionStore
	EphemeralStore storage.EphemeralJobStore
	Publisher   *pubsub.Publisher
	Log         *logging.Logger
}

// Server hosts SynqX's job-ingest, agent-protocol, ephemeral-query, and
// GitOps HTTP surface behind a single gorilla/mux router (§6).
type Server struct {
	cfg    config.ServerConfig
	authCfg config.AuthConfig
	deps   Deps
	router *mux.Router
	http   *http.Server
	log    *logging.Logger
}

// NewServer builds a Server, registering every route under the router's
// "/api/v1" subrouter plus the bare "/healthz" liveness probe.
func NewServer(cfg config.ServerConfig, authCfg config.AuthConfig, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = logging.NewDefault("httpapi")
	}

	s := &Server{cfg: cfg, authCfg: authCfg, deps: deps, router: mux.NewRouter(), log: log}
	s.routes()
	s.http = &http.Server{
		Addr:              cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

// Router exposes the underlying mux.Router for tests.
func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) routes() {
	s.router.Use(loggingMiddleware(s.log))
	s.router.Use(recoveryMiddleware(s.log))
	s.router.Use(corsMiddleware([]string{"*"}))

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	jobsRouter := api.PathPrefix("").Subrouter()
	jobsRouter.Use(requireAPIToken(s.authCfg.APITokens))
	jobsRouter.HandleFunc("/jobs", s.handleSubmitJob).Methods(http.MethodPost)
	jobsRouter.HandleFunc("/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	jobsRouter.HandleFunc("/jobs/{id}/cancel", s.handleCancelJob).Methods(http.MethodPost)
	jobsRouter.HandleFunc("/jobs/{id}/retry", s.handleRetryJob).Methods(http.MethodPost)

	gitopsRouter := api.PathPrefix("/pipelines").Subrouter()
	gitopsRouter.Use(requireAPIToken(s.authCfg.APITokens))
	gitopsRouter.HandleFunc("/{id}/export", s.handleExportPipeline).Methods(http.MethodGet)
	gitopsRouter.HandleFunc("/import", s.handleImportPipeline).Methods(http.MethodPost)

	ephemeralRouter := api.PathPrefix("/ephemeral").Subrouter()
	ephemeralRouter.Use(requireAPIToken(s.authCfg.APITokens))
	ephemeralRouter.HandleFunc("/jobs", s.handleSubmitEphemeralJob).Methods(http.MethodPost)
	ephemeralRouter.HandleFunc("/jobs/{id}", s.handleGetEphemeralJob).Methods(http.MethodGet)
	ephemeralRouter.HandleFunc("/jobs/{id}/execute", s.handleExecuteEphemeralJob).Methods(http.MethodPost)

	api.HandleFunc("/agents/register", s.handleRegisterAgent).Methods(http.MethodPost)
	api.HandleFunc("/agents/authenticate", s.handleAuthenticateAgent).Methods(http.MethodPost)

	agentRouter := api.PathPrefix("/agents").Subrouter()
	agentRouter.Use(requireAgentToken(s.deps.Agents))
	agentRouter.HandleFunc("/heartbeat", s.handleAgentHeartbeat).Methods(http.MethodPost)
	agentRouter.HandleFunc("/lease", s.handleAgentLease).Methods(http.MethodGet)
	agentRouter.HandleFunc("/jobs/{id}/progress", s.handleAgentProgress).Methods(http.MethodPost)
	agentRouter.HandleFunc("/jobs/{id}/complete", s.handleAgentComplete).Methods(http.MethodPost)

	wsRouter := api.PathPrefix("/stream").Subrouter()
	wsRouter.Use(requireAPIToken(s.authCfg.APITokens))
	wsRouter.HandleFunc("/jobs/{id}", s.handleJobProgressWS)
	wsRouter.HandleFunc("/workspaces/{workspace_id}/logs", s.handleWorkspaceLogsWS)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Name identifies the Server to internal/system's lifecycle manager.
func (s *Server) Name() string { return "httpapi.server" }

// Start begins serving in a background goroutine, logging (not panicking)
// on an unexpected listener error so Manager.Start's rollback path stays
// correct for every other registered service.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("http server stopped unexpectedly")
		}
	}()
	return nil
}

// Stop gracefully drains in-flight requests before closing the listener.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

var _ system.Service = (*Server)(nil)
