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

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/linegate/internal/api"
	"github.com/lalith-99/linegate/internal/cache"
	"github.com/lalith-99/linegate/internal/config"
	"github.com/lalith-99/linegate/internal/db"
	"github.com/lalith-99/linegate/internal/dispatch"
	"github.com/lalith-99/linegate/internal/events"
	"github.com/lalith-99/linegate/internal/idempotency"
	"github.com/lalith-99/linegate/internal/observ"
	"github.com/lalith-99/linegate/internal/platform/line"
	"github.com/lalith-99/linegate/internal/repository/postgres"
	"github.com/lalith-99/linegate/internal/routing"
	"github.com/lalith-99/linegate/internal/service"
	"github.com/lalith-99/linegate/internal/vault"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and admin HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before starting")
	return cmd
}

func run(parent context.Context, migrate bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 1. Config and logger
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// ---------------------------------------------------------------
	// 2. Infrastructure: Postgres, Redis, broker
	// ---------------------------------------------------------------
	if migrate {
		if err := db.RunMigrations(cfg.DatabaseURL, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	rdb, err := cache.NewRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer rdb.Close()

	publisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer publisher.Close()

	// ---------------------------------------------------------------
	// 3. Domain wiring
	// ---------------------------------------------------------------
	cipher, err := vault.NewCipher(cfg.CredentialMasterKey)
	if err != nil {
		return fmt.Errorf("init credential cipher: %w", err)
	}

	pool := database.Pool()
	credentials := vault.New(postgres.NewCredentialStore(pool), cipher)
	contacts := postgres.NewContactStore(pool)

	lineClient := line.NewClient(credentials, line.Options{
		BaseURL:        cfg.LineAPIBaseURL,
		RequestTimeout: cfg.LineRequestTimeout,
		Retry: line.RetryPolicy{
			InitialDelay: cfg.LineRetryInitialDelay,
			MaxRetries:   cfg.LineMaxRetries,
		},
	}, logger)

	dispatcher := dispatch.New(lineClient, contacts, publisher, dispatch.Options{
		Workers:   cfg.DispatchWorkers,
		QueueSize: cfg.DispatchQueueSize,
	}, logger)
	dispatcher.Start()

	router := api.NewRouter(api.RouterConfig{
		Webhook: api.NewWebhookHandler(
			routing.NewRouter(credentials, logger),
			credentials,
			idempotency.NewGuard(rdb.Client(), logger),
			dispatcher,
			api.WebhookOptions{
				IdempotencyTTL: cfg.IdempotencyTTL,
				MaxBodyBytes:   cfg.WebhookMaxBodyBytes,
			},
			logger,
		),
		Integration: api.NewIntegrationHandler(
			service.NewChannelConfigService(credentials, lineClient, logger),
			service.NewSendMessageAction(lineClient, logger),
			logger,
		),
		Health: api.NewHealthHandler(map[string]api.Pinger{
			"postgres": database,
			"redis":    rdb,
		}),
		JWTSecret: cfg.JWTSecret,
		Logger:    logger,
	})

	// ---------------------------------------------------------------
	// 4. Serve until signalled, then drain
	// ---------------------------------------------------------------
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting linegate",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", zap.Error(err))
	}
	// Accepted webhooks were already acknowledged; finish them before exit.
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatcher did not drain", zap.Error(err))
	}

	logger.Info("linegate stopped")
	return nil
}

func newPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		logger.Warn("AMQP_URL not set, link events will not be published")
		return events.NewFallback(logger), nil
	}

	conn, err := events.DialWithRetry(ctx, cfg.AMQPURL, 5, time.Second, logger)
	if err != nil {
		return nil, err
	}
	pub, err := events.NewAMQP(conn, cfg.AMQPExchange, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return pub, nil
}
