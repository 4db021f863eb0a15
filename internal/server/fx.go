// Package server provides the application composition root: it builds every
// dependency from config, serves HTTP and drains everything on shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-analyzer/internal/analyzer"
	"github.com/JakeFAU/page-analyzer/internal/api"
	"github.com/JakeFAU/page-analyzer/internal/clock/system"
	"github.com/JakeFAU/page-analyzer/internal/config"
	"github.com/JakeFAU/page-analyzer/internal/extract"
	collyfetcher "github.com/JakeFAU/page-analyzer/internal/fetcher/colly"
	"github.com/JakeFAU/page-analyzer/internal/logging"
	"github.com/JakeFAU/page-analyzer/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/page-analyzer/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/page-analyzer/internal/publisher/pubsub"
	"github.com/JakeFAU/page-analyzer/internal/storage"
	"github.com/JakeFAU/page-analyzer/internal/telemetry"
)

type publisher interface {
	analyzer.Publisher
	Close() error
}

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     storage.Store
	publisher publisher
	service   *analyzer.Service
	apiServer *api.Server
	providers *telemetry.Providers
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	logger.Info("building application",
		zap.Int("port", cfg.Server.Port),
		zap.String("db_driver", cfg.DB.Driver),
	)

	app := &App{cfg: cfg, logger: logger}

	app.providers, err = telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     cfg.Telemetry.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}

	app.store, err = OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}
	if cfg.DB.MigrateOnStart {
		if err := app.store.Migrate(ctx); err != nil {
			app.closeInfrastructure()
			return nil, fmt.Errorf("migrate failed: %w", err)
		}
		logger.Info("schema applied", zap.String("db_driver", cfg.DB.Driver))
	}

	app.publisher, err = setupPublisher(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	checker := NewChecker(cfg, app.store, app.publisher, logger.Named("checker"))
	app.service = analyzer.NewService(app.store, app.store, checker, logger.Named("service"))
	app.apiServer = api.NewServer(app.service, app.store, api.Options{
		APIKey:             apiKey(cfg),
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		RequestTimeout:     cfg.RequestTimeout(),
	}, logger.Named("api"))

	return app, nil
}

// NewLogger builds the process logger from config.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		File:        cfg.Logging.File,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	return logger, nil
}

// OpenStore connects the configured persistence backend.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	s, err := storage.Open(ctx, storage.Config{
		Driver:          cfg.DB.Driver,
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime(),
	}, system.New())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.DB.Driver, err)
	}
	return s, nil
}

// NewChecker wires the fetcher, extractor and rate limiter into a Checker.
// checks and pub may be nil when only Inspect is used.
func NewChecker(cfg *config.Config, checks analyzer.CheckStore, pub analyzer.Publisher, logger *zap.Logger) *analyzer.Checker {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:          cfg.Fetch.UserAgent,
		ConnectTimeout:     cfg.ConnectTimeout(),
		Timeout:            cfg.FetchTimeout(),
		MaxRedirects:       redirects(cfg.Fetch.MaxRedirects),
		InsecureSkipVerify: cfg.Fetch.InsecureSkipVerify,
		MaxBodyBytes:       cfg.Fetch.MaxBodyBytes,
	})
	limiter := ratelimit.New(ratelimit.Config{
		PerHostRPS: cfg.RateLimit.PerHostRPS,
		Burst:      cfg.RateLimit.Burst,
	})
	var topic string
	if pub != nil {
		topic = cfg.PubSub.TopicName
	}
	logger.Info("checker configured",
		zap.String("user_agent", cfg.Fetch.UserAgent),
		zap.Duration("timeout", cfg.FetchTimeout()),
		zap.Int("max_redirects", cfg.Fetch.MaxRedirects),
		zap.Float64("per_host_rps", cfg.RateLimit.PerHostRPS),
		zap.String("topic", topic),
	)
	return analyzer.NewChecker(fetcher, extract.New(), checks, limiter, pub,
		analyzer.CheckerConfig{Topic: topic}, logger)
}

// redirects maps the config's "0 means do not follow" onto the fetcher's
// "negative disables following".
func redirects(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

func apiKey(cfg *config.Config) string {
	if !cfg.Auth.Enabled {
		return ""
	}
	return cfg.Auth.APIKey
}

func setupPublisher(ctx context.Context, app *App) (publisher, error) {
	if !app.cfg.PubSubEnabled() {
		app.logger.Warn("No Pub/Sub project configured, check notifications go to an in-memory dev sink",
			zap.Int("capacity", memorypublisher.DefaultCapacity),
		)
		return memorypublisher.New(memorypublisher.DefaultCapacity), nil
	}
	pub, err := gcppublisher.New(ctx, app.cfg.PubSub.ProjectID, app.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return pub, nil
}

// Handler returns the HTTP handler (primarily for testing).
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and blocks until the context is canceled or a signal
// arrives, then drains in-flight requests and closes dependencies.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout(),
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
		return fmt.Errorf("serve http: %w", err)
	default:
		return closeErr
	}
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("publisher close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.providers.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	// Syncing stderr fails on some platforms; nothing to do about it.
	_ = a.logger.Sync()
}
