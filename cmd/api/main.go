package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/donabox/api/internal/di"
	"github.com/donabox/api/internal/handlers"
	"github.com/donabox/api/internal/platform/auth"
	"github.com/donabox/api/internal/platform/config"
	"github.com/donabox/api/internal/platform/idempotency"
	"github.com/donabox/api/internal/platform/observability"
)

const (
	submitRateLimit  = 30
	submitRateWindow = time.Minute
	shutdownTimeout  = 10 * time.Second
)

func main() {
	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	logger := baseLogger.Named("api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, logger)
	stop()
	if err != nil {
		logger.Error("api stopped", zap.Error(err))
	}
	_ = baseLogger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run wires the API and serves until ctx is cancelled or the server fails.
func run(ctx context.Context, logger *zap.Logger) error {
	startedAt := time.Now().UTC()
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		return fmt.Errorf("secret fetcher: %w", err)
	}
	defer closeWith(logger, "secret fetcher", fetcher.Close)

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		return err
	}
	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	events, err := openEvents(ctx, cfg)
	if err != nil {
		return err
	}
	defer events.close(logger)

	uploader, closeUploader, err := openExportUploader(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeWith(logger, "storage client", closeUploader)

	registry, provider, err := di.OpenRegistry(ctx, cfg, events.checks...)
	if err != nil {
		return fmt.Errorf("open repositories: %w", err)
	}
	container, err := di.NewContainer(ctx, cfg, registry, di.Options{
		Events:   events.publisher,
		Uploader: uploader,
		Build:    buildInfo,
		Logger:   observability.EventLogger(logger.Named("services")),
	})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	idempotencyLog := observability.EventLogger(logger.Named("idempotency"))
	var idempotencyStore idempotency.Store = idempotency.NewMemoryStore()
	if provider != nil {
		idempotencyStore = idempotency.NewFirestoreStore(provider)
	}
	sweeper := idempotency.NewSweeper(idempotencyStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, idempotencyLog)

	var verifierOpts []auth.FirebaseOption
	if cfg.Environment == "prod" || cfg.Environment == "production" {
		verifierOpts = append(verifierOpts, auth.WithRevocationCheck())
	}
	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase, verifierOpts...)
	if err != nil {
		return fmt.Errorf("firebase verifier: %w", err)
	}
	authenticator := auth.NewAuthenticator(verifier)

	svc := container.Services
	traceProject := traceProjectID(cfg)
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(traceProject),
			observability.RecoveryMiddleware(logger),
			observability.RequestLoggerMiddleware(traceProject),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthBuildInfo(buildInfo),
			handlers.WithHealthSystemService(svc.System),
		)),
		handlers.WithPublicRoutes(handlers.NewPublicHandlers(authenticator, svc.Orders, svc.Config,
			handlers.WithSubmitIdempotency(idempotency.Middleware(idempotencyStore,
				idempotency.WithHeader(cfg.Idempotency.Header),
				idempotency.WithTTL(cfg.Idempotency.TTL),
				idempotency.WithLogger(idempotencyLog),
			)),
			handlers.WithSubmitRateLimit(submitRateLimit, submitRateWindow),
		).Routes),
		handlers.WithAdminRoutes(handlers.NewAdminHandlers(authenticator, svc.Orders, svc.Config, svc.Admin, svc.Export).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	serverLogger := logger.Named("http").With(
		zap.String("addr", server.Addr),
		zap.String("storageDriver", cfg.Storage.Driver),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		serverLogger.Info("donabox api listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		serverLogger.Info("shutting down; draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func closeWith(logger *zap.Logger, name string, closeFn func() error) {
	if closeFn == nil {
		return
	}
	if err := closeFn(); err != nil {
		logger.Warn(name+" close error", zap.Error(err))
	}
}
