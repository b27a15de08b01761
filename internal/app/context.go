// Package app assembles every component into one shared Context, the way
// the teacher's internal/app.Context wires NNTPManager/Indexer/Processor/
// Queue together, generalized to the full download-orchestration stack
// (spec.md §4).
package app

import (
	"context"
	"fmt"
	"time"

	"gonzbd/internal/admission"
	"gonzbd/internal/config"
	"gonzbd/internal/directunpack"
	"gonzbd/internal/domain"
	"gonzbd/internal/engine"
	"gonzbd/internal/events"
	"gonzbd/internal/extraction"
	"gonzbd/internal/logger"
	"gonzbd/internal/nntp"
	"gonzbd/internal/parity"
	"gonzbd/internal/persistence"
	"gonzbd/internal/postprocess"
	"gonzbd/internal/queue"
	"gonzbd/internal/ratelimit"
	"gonzbd/internal/retry"
	"gonzbd/internal/scheduler"
	"gonzbd/internal/serverpool"
	"gonzbd/internal/supervisor"
)

// Context holds every long-lived component for one daemon process. It is
// the "Single Source of Truth" the teacher's app.Context aimed to be,
// expanded from an indexer/search front to the full Job lifecycle.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Store        *persistence.Store
	Bus          *events.Bus
	Queue        *queue.Queue
	Limiter      *ratelimit.Limiter
	Pool         *serverpool.Pool
	Admission    *admission.Controller
	Engine       *engine.Engine
	DirectUnpack *directunpack.Coordinator
	PostProcess  *postprocess.Pipeline
	Scheduler    *scheduler.Scheduler
	Supervisor   *supervisor.Supervisor
}

// NewContext wires every component from cfg. It opens the persistence
// store, connects no NNTP sockets yet (serverpool.Pool dials lazily on
// first Fetch), and seeds configured categories, but does not sync
// schedule rules or start the Supervisor's dispatch loop or Scheduler
// cron — Context.Start does that.
func NewContext(cfg *config.Config, log *logger.Logger) (*Context, error) {
	store, err := persistence.Open(cfg.Persistence.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("app: open persistence store: %w", err)
	}

	bus := events.NewBus(events.DefaultCapacity)
	q := queue.New()
	limiter := ratelimit.New(cfg.SpeedLimitBps, 0)

	retryPolicy := retry.Policy{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		InitialDelay:      durationMs(cfg.Retry.InitialDelayMs),
		MaxDelay:          durationMs(cfg.Retry.MaxDelayMs),
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		Jitter:            cfg.Retry.Jitter,
	}

	pool := serverpool.New(log, retryPolicy, connectorsFor(cfg.Servers))

	admissionCtl := admission.New(cfg, store, bus, q, log)
	eng := engine.New(pool, limiter, store, bus, log, retryPolicy)

	extractionMgr := extraction.NewManager(cfg)
	par2 := parity.Discover(cfg.Par2Path, cfg.SearchPath)

	coordinator := directunpack.New(cfg, store, bus, log, extractionMgr)
	pipeline := postprocess.New(cfg, store, bus, log, par2, extractionMgr)
	sched := scheduler.New(cfg, store, limiter, q, bus, log)
	sv := supervisor.New(cfg, store, bus, q, eng, coordinator, pipeline, sched, log)

	if err := seedCategories(context.Background(), cfg, store); err != nil {
		store.Close()
		return nil, err
	}

	return &Context{
		Config:       cfg,
		Logger:       log,
		Store:        store,
		Bus:          bus,
		Queue:        q,
		Limiter:      limiter,
		Pool:         pool,
		Admission:    admissionCtl,
		Engine:       eng,
		DirectUnpack: coordinator,
		PostProcess:  pipeline,
		Scheduler:    sched,
		Supervisor:   sv,
	}, nil
}

func durationMs(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// connectorsFor builds one nntp.Client per configured server, adapted to
// serverpool.Connector.
func connectorsFor(servers []config.ServerConfig) []serverpool.Connector {
	conns := make([]serverpool.Connector, 0, len(servers))
	for _, s := range servers {
		conns = append(conns, nntp.NewClient(domain.ServerConfig{
			ID:            s.ID,
			Host:          s.Host,
			Port:          s.Port,
			TLS:           s.TLS,
			Username:      s.Username,
			Password:      s.Password,
			Connections:   s.Connections,
			PipelineDepth: s.PipelineDepth,
			Priority:      s.Priority,
		}))
	}
	return conns
}

// seedCategories persists every category named in the static config, the
// runtime-editable counterpart admission.Controller.resolveCategory reads
// back from the store.
func seedCategories(ctx context.Context, cfg *config.Config, store *persistence.Store) error {
	for _, c := range cfg.Persistence.Categories {
		cat := &persistence.Category{Name: c.Name, Destination: c.Destination, PostProcess: c.PostProcess}
		if err := store.SaveCategory(ctx, cat); err != nil {
			return fmt.Errorf("app: seed category %s: %w", c.Name, err)
		}
	}
	return nil
}

// Start launches the Supervisor's crash-recovery scan, the Scheduler's
// cron loop, and the dispatch loop, returning once startup is complete.
// The background loops keep running until ctx is cancelled.
func (c *Context) Start(ctx context.Context) error {
	return c.Supervisor.Start(ctx)
}

// Wait blocks until every dispatched job has wound down, for use after
// cancelling the context passed to Start.
func (c *Context) Wait() {
	c.Supervisor.Wait()
}

// Close releases the persistence store's underlying database handle.
func (c *Context) Close() {
	c.Logger.Info("shutting down store")
	if err := c.Store.Close(); err != nil {
		c.Logger.Error("error closing store: %v", err)
	}
}
