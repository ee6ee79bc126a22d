// Package server builds the application's dependencies and runs the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/webfetch-archive/internal/api"
	"github.com/JakeFAU/webfetch-archive/internal/archive"
	"github.com/JakeFAU/webfetch-archive/internal/clock/system"
	"github.com/JakeFAU/webfetch-archive/internal/config"
	collyfetcher "github.com/JakeFAU/webfetch-archive/internal/fetcher/colly"
	"github.com/JakeFAU/webfetch-archive/internal/id/uuid"
	"github.com/JakeFAU/webfetch-archive/internal/journal"
	pgjournal "github.com/JakeFAU/webfetch-archive/internal/journal/postgres"
	"github.com/JakeFAU/webfetch-archive/internal/logging"
	"github.com/JakeFAU/webfetch-archive/internal/metrics"
	"github.com/JakeFAU/webfetch-archive/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/webfetch-archive/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/webfetch-archive/internal/publisher/pubsub"
	blobstore "github.com/JakeFAU/webfetch-archive/internal/storage"
	gcsstorage "github.com/JakeFAU/webfetch-archive/internal/storage/gcs"
	localstorage "github.com/JakeFAU/webfetch-archive/internal/storage/local"
	memorystorage "github.com/JakeFAU/webfetch-archive/internal/storage/memory"
	"github.com/JakeFAU/webfetch-archive/internal/telemetry"
	"github.com/JakeFAU/webfetch-archive/internal/webfetch"
)

// Version is reported in traces; overridden at build time.
var Version = "dev"

type journalStore interface {
	webfetch.Journal
	Ping(ctx context.Context) error
	Close()
}

// App contains the application's dependencies.
type App struct {
	cfg            *config.Config
	logger         *zap.Logger
	apiServer      *api.Server
	service        *webfetch.Service
	archive        *archive.Store
	journal        journalStore
	publisher      *gcppublisher.Publisher
	storage        *storage.Client
	tracerShutdown func(context.Context) error

	closeOnce sync.Once
}

// Service returns the fetch orchestrator.
func (a *App) Service() *webfetch.Service {
	return a.service
}

// Fetch runs the fetch pipeline for one URL.
func (a *App) Fetch(ctx context.Context, rawURL string) (webfetch.Outcome, error) {
	return a.service.Fetch(ctx, rawURL)
}

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run serves the HTTP API and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close releases every client the App opened. Calls after the first are no-ops.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() { a.close(ctx) })
	return nil
}

func (a *App) close(ctx context.Context) {
	if a.journal != nil {
		a.journal.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	//nolint:errcheck // stderr sync fails on some platforms
	a.logger.Sync()
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}
	logging.Interaction(logger, logging.ActionStartup, map[string]any{
		"server_port":     cfg.Server.Port,
		"archive_backend": cfg.Archive.Backend,
		"journal":         cfg.Journal.DSN != "",
		"pubsub_topic":    cfg.PubSub.TopicName,
		"tracing":         cfg.Tracing.Enabled,
	}, nil)
	metrics.Init()

	if err := setupTracing(ctx, app); err != nil {
		return nil, err
	}

	blobs, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	app.archive = archive.NewStore(blobs, logger.Named("archive"))
	if err := app.archive.Init(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	if err := setupJournal(ctx, app); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	var fetcher webfetch.Fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     cfg.FetchTimeout(),
		MaxBodySize: cfg.Fetch.MaxBodyBytes,
	})
	logger.Info("using colly fetcher",
		zap.String("user_agent", cfg.Fetch.UserAgent),
		zap.Duration("timeout", cfg.FetchTimeout()),
	)
	if cfg.Fetch.HostRPS > 0 {
		fetcher = ratelimit.Wrap(fetcher, ratelimit.New(ratelimit.Config{
			RPS:   cfg.Fetch.HostRPS,
			Burst: cfg.Fetch.HostBurst,
		}))
		logger.Info("per-host rate limit enabled",
			zap.Float64("rps", cfg.Fetch.HostRPS),
			zap.Int("burst", cfg.Fetch.HostBurst),
		)
	}

	app.service = webfetch.New(
		fetcher,
		app.archive,
		app.journal,
		publisher,
		system.New(),
		uuid.New(),
		webfetch.Config{Topic: cfg.PubSub.TopicName},
		logger.Named("webfetch"),
	)

	app.apiServer = api.NewServer(app.service, app.archive, app.journal, *cfg, logger.Named("api"))
	return app, nil
}

func setupTracing(ctx context.Context, app *App) error {
	if !app.cfg.Tracing.Enabled {
		return nil
	}
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: app.cfg.Tracing.ServiceName,
		Version:     Version,
		SampleRatio: app.cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown
	app.logger.Info("tracing enabled", zap.Float64("sample_ratio", app.cfg.Tracing.SampleRatio))
	return nil
}

func setupStorage(ctx context.Context, app *App) (blobstore.BlobStore, error) {
	switch app.cfg.Archive.Backend {
	case config.BackendGCS:
		app.logger.Info("using GCS archive backend", zap.String("bucket", app.cfg.Archive.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: app.cfg.Archive.GCSBucket,
			Prefix: app.cfg.Archive.GCSPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case config.BackendMemory:
		app.logger.Info("using in-memory archive backend; entries are lost on exit")
		return memorystorage.NewBlobStore(), nil
	default:
		app.logger.Info("using local archive backend", zap.String("path", app.cfg.Archive.RootDir))
		blobs, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Archive.RootDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	}
}

func setupJournal(ctx context.Context, app *App) error {
	if app.cfg.Journal.DSN == "" {
		app.logger.Warn("No DSN specified for journal, fetch outcomes are only logged")
		app.journal = journal.Nop{}
		return nil
	}
	store, err := pgjournal.New(ctx, pgjournal.Config{
		DSN:      app.cfg.Journal.DSN,
		Table:    app.cfg.Journal.Table,
		MaxConns: app.cfg.Journal.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("journal init failed: %w", err)
	}
	app.journal = store
	if app.cfg.Journal.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("journal schema init failed: %w", err)
		}
	}
	app.logger.Info("journal initialized", zap.String("table", app.cfg.Journal.Table))
	return nil
}

func setupPublisher(ctx context.Context, app *App) (webfetch.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.publisher = gcppublisher.New(client)
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.publisher, nil
}
