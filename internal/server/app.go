// Package server builds the application's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-aggregator/internal/api"
	"github.com/JakeFAU/profile-aggregator/internal/clock/system"
	"github.com/JakeFAU/profile-aggregator/internal/config"
	"github.com/JakeFAU/profile-aggregator/internal/delivery"
	"github.com/JakeFAU/profile-aggregator/internal/fallback"
	collyfetcher "github.com/JakeFAU/profile-aggregator/internal/fetcher/colly"
	"github.com/JakeFAU/profile-aggregator/internal/id/uuid"
	"github.com/JakeFAU/profile-aggregator/internal/logging"
	"github.com/JakeFAU/profile-aggregator/internal/pipeline"
	"github.com/JakeFAU/profile-aggregator/internal/policy/ratelimit"
	"github.com/JakeFAU/profile-aggregator/internal/policy/retry"
	"github.com/JakeFAU/profile-aggregator/internal/profile"
	memorypublisher "github.com/JakeFAU/profile-aggregator/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/profile-aggregator/internal/publisher/pubsub"
	"github.com/JakeFAU/profile-aggregator/internal/source"
	runstorage "github.com/JakeFAU/profile-aggregator/internal/storage"
	gcsstorage "github.com/JakeFAU/profile-aggregator/internal/storage/gcs"
	localstorage "github.com/JakeFAU/profile-aggregator/internal/storage/local"
	memorystorage "github.com/JakeFAU/profile-aggregator/internal/storage/memory"
	pgstore "github.com/JakeFAU/profile-aggregator/internal/storage/postgres"
	"github.com/JakeFAU/profile-aggregator/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	pipeline       *pipeline.Pipeline
	apiServer      *api.Server
	runs           *runstorage.Runs
	runStore       *pgstore.RunStore
	pubsubClient   *pubsub.Client
	gcpPublisher   *gcppublisher.Publisher
	storage        *storage.Client
	tracerShutdown func(context.Context) error
}

// Build creates the application's dependencies from cfg.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	partial := &App{cfg: cfg, logger: logger}
	app, err := partial.build(ctx)
	if err != nil {
		_ = partial.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return app, nil
}

// build fills in a's dependencies. On error a holds whatever was opened so
// far and must be closed by the caller.
func (a *App) build(ctx context.Context) (*App, error) {
	cfg, logger := a.cfg, a.logger

	logger.Info("building application dependencies",
		zap.String("mode", cfg.Pipeline.Mode),
		zap.Int("concurrency", cfg.Pipeline.Concurrency),
		zap.String("fallback_backend", cfg.Fallback.Backend),
	)

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     cfg.Telemetry.Version,
		ProjectID:   cfg.Telemetry.ProjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerShutdown = tp.Shutdown

	requester := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.RequestTimeout(),
	})

	registry, err := setupSources(a, requester)
	if err != nil {
		return nil, err
	}

	submitter, err := delivery.NewClient(requester, cfg.Delivery.URL, cfg.DeliveryTimeout(), logger.Named("delivery"))
	if err != nil {
		return nil, fmt.Errorf("delivery client init failed: %w", err)
	}

	blobStore, err := setupStorage(ctx, a)
	if err != nil {
		return nil, err
	}
	persister, err := fallback.New(blobStore, cfg.Fallback.Filename, logger.Named("fallback"))
	if err != nil {
		return nil, fmt.Errorf("fallback init failed: %w", err)
	}

	if err = setupDatabase(ctx, a); err != nil {
		return nil, err
	}

	publisher, err := setupPublisher(ctx, a)
	if err != nil {
		return nil, err
	}

	a.pipeline, err = pipeline.New(registry, submitter, persister, pipeline.Options{
		Mode:        cfg.Pipeline.Mode,
		Concurrency: cfg.Pipeline.Concurrency,
		Topic:       cfg.PubSub.TopicName,
		Clock:       system.New(),
		IDs:         uuid.New(),
		Recorder:    a.runs,
		Publisher:   publisher,
		Logger:      logger.Named("pipeline"),
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}

	a.apiServer = api.NewServer(a.pipeline, a.runs, cfg.Server, logger.Named("api"), a.readinessChecks())
	return a, nil
}

func setupSources(app *App, requester profile.Requester) (*source.Registry, error) {
	cfg := app.cfg
	var limiter source.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RateLimit.DefaultRPS,
			DefaultBurst: cfg.RateLimit.DefaultBurst,
		})
		app.logger.Info("rate limiter enabled",
			zap.Float64("default_rps", cfg.RateLimit.DefaultRPS),
			zap.Int("default_burst", cfg.RateLimit.DefaultBurst),
		)
	} else {
		app.logger.Info("rate limiter disabled")
	}

	client := source.NewClient(requester, source.ClientOptions{
		Policy: retry.NewExponentialPolicy(retry.Config{
			MaxRetries: cfg.HTTP.MaxRetries,
			BaseDelay:  cfg.BackoffInitial(),
			MaxDelay:   cfg.BackoffMax(),
		}),
		Limiter: limiter,
		Timeout: cfg.RequestTimeout(),
		Logger:  app.logger.Named("source"),
	})
	registry, err := source.FromConfig(cfg.Sources, client)
	if err != nil {
		return nil, fmt.Errorf("source registry init failed: %w", err)
	}
	app.logger.Debug("sources registered", zap.Any("sources", registry.Names()))
	return registry, nil
}

func setupStorage(ctx context.Context, app *App) (profile.BlobStore, error) {
	cfg := app.cfg.Fallback
	switch cfg.Backend {
	case config.BackendGCS:
		app.logger.Info("using GCS fallback backend", zap.String("bucket", cfg.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return store, nil
	default:
		app.logger.Info("using local fallback backend", zap.String("dir", cfg.Dir))
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return store, nil
	}
}

func setupDatabase(ctx context.Context, app *App) error {
	var mirror runstorage.RunBackend
	if app.cfg.Database.DSN == "" {
		app.logger.Warn("no DSN specified for database, run records stay in memory")
	} else {
		store, err := pgstore.NewRunStore(ctx, pgstore.RunStoreConfig{
			DSN:             app.cfg.Database.DSN,
			Table:           app.cfg.Database.Table,
			MaxConns:        app.cfg.Database.MaxConns,
			MinConns:        app.cfg.Database.MinConns,
			MaxConnLifetime: app.cfg.Database.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("run store init failed: %w", err)
		}
		app.runStore = store
		mirror = store
		app.logger.Info("run store initialized", zap.String("table", app.cfg.Database.Table))
	}
	runs, err := runstorage.NewRuns(memorystorage.NewRunStore(), app.logger.Named("runs"), mirror)
	if err != nil {
		return fmt.Errorf("run records init failed: %w", err)
	}
	app.runs = runs
	return nil
}

func setupPublisher(ctx context.Context, app *App) (profile.Publisher, error) {
	cfg := app.cfg.PubSub
	if cfg.TopicName == "" || cfg.ProjectID == "" {
		app.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	app.gcpPublisher, err = gcppublisher.New(client, cfg.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", cfg.ProjectID),
		zap.String("topic", cfg.TopicName),
	)
	return app.gcpPublisher, nil
}

func (a *App) readinessChecks() map[string]api.ReadinessCheck {
	checks := map[string]api.ReadinessCheck{}
	if a.runStore != nil {
		checks["database"] = a.runStore.Ping
	}
	return checks
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// RunOnce executes a single aggregation run.
func (a *App) RunOnce(ctx context.Context) (pipeline.RunResult, error) {
	return a.pipeline.Run(ctx)
}

// Serve starts the HTTP API and blocks until ctx is canceled or a
// termination signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		a.logger.Error("http server error", zap.Error(serveErr))
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

// Close releases every client the App opened. It is safe on a partially
// built App.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.gcpPublisher != nil {
		a.gcpPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.runStore != nil {
		a.runStore.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	// Sync fails on stderr/stdout for some platforms; nothing to do about it.
	_ = a.logger.Sync()
}
