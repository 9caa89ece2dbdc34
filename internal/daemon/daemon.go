package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loomworks/loom/internal/api"
	"github.com/loomworks/loom/internal/app/bulk"
	"github.com/loomworks/loom/internal/app/lifecycle"
	"github.com/loomworks/loom/internal/app/project"
	"github.com/loomworks/loom/internal/app/query"
	"github.com/loomworks/loom/internal/app/relation"
	"github.com/loomworks/loom/internal/domain"
	"github.com/loomworks/loom/internal/infra/sqlite"
)

// Daemon is the core loom runtime. It wires together all services.
type Daemon struct {
	Config    Config
	DB        *sqlite.DB
	Engine    *lifecycle.Engine
	Relations *relation.Manager
	Queries   *query.Engine
	Bulk      *bulk.Coordinator
	Projects  *project.Service
	Server    *api.Server
	cancel    context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	dir := cfg.Store.Dir
	if dir == "" {
		dir = loomHome()
	}
	db, err := sqlite.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	depth := cfg.Queue.MaxAncestryDepth
	if depth <= 0 {
		depth = relation.DefaultMaxDepth
	}

	clock := domain.SystemClock{}
	engine := lifecycle.New(db, clock)
	relations := relation.New(db, clock, depth)
	queries := query.New(db, clock)
	bulkOps := bulk.New(engine)
	projects := project.New(db, clock)

	srv := api.NewServer(engine, relations, queries, bulkOps, projects, cfg.ReservationTimeout())
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	engine.Subscribe(func(ev domain.Event) {
		log.Printf("[queue] %s task=%s agent=%s", ev.Kind, ev.Task.ID, ev.AgentID)
	})

	return &Daemon{
		Config:    cfg,
		DB:        db,
		Engine:    engine,
		Relations: relations,
		Queries:   queries,
		Bulk:      bulkOps,
		Projects:  projects,
		Server:    srv,
	}, nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	// Background reclaimer, if enabled
	if interval := d.Config.ReclaimInterval(); interval > 0 {
		go d.runReclaimer(ctx, interval)
	}

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	fmt.Printf("loom serving on http://%s\n", addr)
	if interval := d.Config.ReclaimInterval(); interval > 0 {
		fmt.Printf("  Reclaimer: every %s (timeout %s)\n", interval, d.Config.ReservationTimeout())
	}
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// runReclaimer periodically releases stale reservations.
func (d *Daemon) runReclaimer(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	timeout := d.Config.ReservationTimeout()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimed, err := d.Engine.ReclaimStale(ctx, timeout)
			if err != nil {
				log.Printf("[reclaimer] error: %v", err)
				continue
			}
			if len(reclaimed) > 0 {
				log.Printf("[reclaimer] released %d stale reservation(s)", len(reclaimed))
			}
		}
	}
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
