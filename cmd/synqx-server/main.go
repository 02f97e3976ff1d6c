// Command synqx-server hosts the SynqX control plane: the HTTP/WS API
// surface, the cron scheduler and SLA monitor, the ephemeral-job sweeper,
// and the in-process ("internal" agent group) pipeline executor, all under
// one internal/system.Manager lifecycle.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/synqx/core/internal/agents"
	"github.com/synqx/core/internal/cache"
	"github.com/synqx/core/internal/config"
	"github.com/synqx/core/internal/connector"
	"github.com/synqx/core/internal/connector/builtin"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/ephemeral"
	"github.com/synqx/core/internal/gitops"
	"github.com/synqx/core/internal/httpapi"
	"github.com/synqx/core/internal/jobs"
	"github.com/synqx/core/internal/logging"
	"github.com/synqx/core/internal/operator"
	"github.com/synqx/core/internal/pubsub"
	"github.com/synqx/core/internal/storage"
	"github.com/synqx/core/internal/system"
	"github.com/synqx/core/internal/telemetry"
	"github.com/synqx/core/pkg/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(version.FullVersion())
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logCfg := logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	}
	rootLog := logging.New("synqx-server", logCfg)

	redisClient, err := newRedisClient(cfg.Redis)
	if err != nil {
		log.Fatalf("configure redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var publisher *pubsub.Publisher
	var resultCache *cache.ResultCache
	if redisClient != nil {
		publisher = pubsub.New(redisClient)
		resultCache = cache.New(redisClient, cfg.Cache.DefaultTTL)
	} else {
		rootLog.Warn("REDIS_URL not configured; progress streaming and the ephemeral result cache are disabled")
	}

	metrics := telemetry.New("synqx")

	// storage: in-memory until a postgres-backed JobStore/PipelineStore/etc.
	// is built (see DESIGN.md's "Remaining work" deferral).
	store := storage.NewMemory()

	connRegistry := connector.NewRegistry()
	builtin.RegisterAll(connRegistry)
	connPool := connector.NewPool(connRegistry)

	opRegistry := operator.NewRegistry()
	operator.RegisterBuiltins(opRegistry)

	routing := jobs.NewAgentRouting(store)
	jobsSvc := jobs.New(store, store, routing, publisher, metrics, logging.NewDefault("jobs"))

	tokenSecret := []byte(cfg.Agent.JWTSecret)
	if len(tokenSecret) == 0 {
		rootLog.Warn("AGENT_JWT_SECRET not set; using an insecure development default")
		tokenSecret = []byte("development-insecure-agent-secret-change-me")
	}
	tokenTTL := cfg.Agent.SessionTokenTTL
	if tokenTTL <= 0 {
		tokenTTL = agents.DefaultTokenTTL
	}
	tokenIssuer := agents.NewTokenIssuer(tokenSecret, tokenTTL)
	agentsSvc := agents.New(store, tokenIssuer, metrics)

	// ephemeral.Service resolves connections from a static snapshot rather
	// than the live ConnectionStore; starting it empty and relying on each
	// workspace's connections being looked up through the control-plane API
	// is a known limitation tracked in DESIGN.md pending a live-lookup path.
	ephemeralSvc := ephemeral.New(store, routing, connPool, map[string]domain.Connection{}, resultCache, publisher, metrics, logging.NewDefault("ephemeral"))
	ephemeralSweeper := ephemeral.NewSweeper(ephemeralSvc, logging.NewDefault("ephemeral.sweeper"))

	importer := gitops.NewImporter(store, store)

	scheduler := jobs.NewScheduler(store, logging.NewDefault("jobs.scheduler"))
	scheduler.WithDispatcher(jobs.JobDispatcherFunc(func(ctx context.Context, pipeline domain.Pipeline) error {
		_, err := jobsSvc.Submit(ctx, jobs.SubmitRequest{WorkspaceID: pipeline.WorkspaceID, PipelineID: pipeline.ID})
		return err
	}))
	scheduler.WithInterval(cfg.Scheduler.TickInterval)

	slaMonitor := jobs.NewSLAMonitor(store, store, publisher, logging.NewDefault("jobs.sla"))
	slaMonitor.WithInterval(cfg.Scheduler.SLATickInterval)

	internalWorker := jobs.NewInternalWorker(jobsSvc, store, store, opRegistry, connPool, logging.NewDefault("jobs.internal_worker"))

	httpServer := httpapi.NewServer(cfg.Server, cfg.Auth, httpapi.Deps{
		Jobs:           jobsSvc,
		Agents:         agentsSvc,
		Ephemeral:      ephemeralSvc,
		Importer:       importer,
		JobStore:       store,
		Pipelines:      store,
		Connections:    store,
		EphemeralStore: store,
		Publisher:      publisher,
		Log:            logging.NewDefault("httpapi"),
	})

	manager := system.NewManager()
	for _, svc := range []system.Service{scheduler, slaMonitor, ephemeralSweeper, internalWorker, httpServer} {
		if err := manager.Register(svc); err != nil {
			log.Fatalf("register %s: %v", svc.Name(), err)
		}
	}

	ctx := context.Background()
	if err := manager.Start(ctx); err != nil {
		log.Fatalf("start: %v", err)
	}
	rootLog.WithField("addr", cfg.Server.Host).Info("synqx-server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := manager.Stop(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return redis.NewClient(opts), nil
}
