package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/iho/revledger/internal/adapter/http"
	"github.com/iho/revledger/internal/adapter/http/handler"
	"github.com/iho/revledger/internal/adapter/http/middleware"
	postgresRepo "github.com/iho/revledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/revledger/internal/adapter/repository/redis"
	sqliteRepo "github.com/iho/revledger/internal/adapter/repository/sqlite"
	"github.com/iho/revledger/internal/infrastructure/archive"
	"github.com/iho/revledger/internal/infrastructure/auth"
	"github.com/iho/revledger/internal/infrastructure/config"
	"github.com/iho/revledger/internal/infrastructure/eventpublisher"
	"github.com/iho/revledger/internal/infrastructure/idgen"
	"github.com/iho/revledger/internal/infrastructure/logger"
	"github.com/iho/revledger/internal/infrastructure/metrics"
	"github.com/iho/revledger/internal/infrastructure/notify"
	"github.com/iho/revledger/internal/infrastructure/postgres"
	"github.com/iho/revledger/internal/infrastructure/redis"
	"github.com/iho/revledger/internal/infrastructure/retry"
	"github.com/iho/revledger/internal/infrastructure/worker"
	"github.com/iho/revledger/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}

// storage bundles the repositories of one storage driver.
type storage struct {
	txManager usecase.TransactionManager
	ledger    usecase.LedgerRepository
	dedup     usecase.EventDeduplicator
	outbox    usecase.OutboxRepository
	ping      func(ctx context.Context) error
	close     func()
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		db, err := sqliteRepo.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite ledger")
		return sqliteStorage(db), nil

	case config.DriverPostgres:
		if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		connectCtx, cancel := context.WithTimeout(ctx, cfg.DatabaseTimeout)
		defer cancel()

		pool, err := postgres.NewPoolWithConfig(connectCtx, postgres.PoolConfig{
			DatabaseURL: cfg.DatabaseURL,
			MaxConns:    cfg.DatabaseMaxConns,
			MinConns:    cfg.DatabaseMinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		log.Info().Msg("connected to postgres")

		return &storage{
			txManager: postgresRepo.NewTxManager(pool),
			ledger:    postgresRepo.NewLedgerRepository(pool),
			dedup:     postgresRepo.NewDedupRepository(pool),
			outbox:    postgresRepo.NewOutboxRepository(pool),
			ping:      pool.Ping,
			close:     pool.Close,
		}, nil
	}

	return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
}

func sqliteStorage(db *sql.DB) *storage {
	return &storage{
		txManager: sqliteRepo.NewTxManager(db),
		ledger:    sqliteRepo.NewLedgerRepository(db),
		dedup:     sqliteRepo.NewDedupRepository(db),
		outbox:    sqliteRepo.NewOutboxRepository(db),
		ping:      db.PingContext,
		close:     func() { _ = db.Close() },
	}
}

// connectRedis returns nil when Redis is disabled or unreachable. Every
// Redis-backed component is advisory, so the service runs without it.
func connectRedis(ctx context.Context, cfg *config.Config, log zerolog.Logger) *goredis.Client {
	if cfg.RedisURL == "" {
		log.Info().Msg("redis disabled")
		return nil
	}

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, continuing without cache")
		return nil
	}

	log.Info().Msg("connected to redis")
	return client
}

func buildAlerter(cfg *config.Config, log zerolog.Logger, counter notify.AlertCounter) usecase.Alerter {
	alerters := []usecase.Alerter{notify.NewLogAlerter(log)}
	if cfg.AlertWebhookURL != "" {
		alerters = append(alerters, notify.NewWebhookAlerter(notify.NewWebhookClient(cfg.AlertWebhookURL, cfg.WebhookTimeout)))
	}
	return notify.NewMultiAlerter(counter, alerters...)
}

func buildPublisher(cfg *config.Config, log zerolog.Logger) eventpublisher.Publisher {
	if cfg.NotifyWebhookURL != "" {
		return eventpublisher.NewWebhookPublisher(notify.NewWebhookClient(cfg.NotifyWebhookURL, cfg.WebhookTimeout))
	}
	return eventpublisher.NewLogPublisher(log)
}

func buildRetrier(cfg *config.Config, log zerolog.Logger) *retry.Retrier {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.AppendMaxAttempts
	rc.AttemptTimeout = cfg.AppendTimeout
	rc.InitialInterval = cfg.AppendInitialInterval
	rc.MaxInterval = cfg.AppendMaxInterval
	return retry.New(rc, log)
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	m := metrics.New()
	alerter := buildAlerter(cfg, log, m)

	var (
		seenCache        usecase.SeenCache
		cache            usecase.Cache
		idempotencyStore usecase.IdempotencyStore
	)
	healthChecks := []handler.HealthCheck{{Name: "storage", Ping: store.ping}}

	if client := connectRedis(ctx, cfg, log); client != nil {
		defer client.Close()
		seenCache = redisRepo.NewSeenCache(client)
		cache = redisRepo.NewCache(client)
		idempotencyStore = redisRepo.NewIdempotencyStore(client)
		healthChecks = append(healthChecks, handler.HealthCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
	}

	policy := cfg.SplitPolicy()

	allocation, err := usecase.NewAllocationUseCase(usecase.AllocationDeps{
		TxManager: store.txManager,
		Ledger:    store.ledger,
		Dedup:     store.dedup,
		Outbox:    store.outbox,
		IDGen:     idgen.NewULIDGenerator(),
		Retrier:   buildRetrier(cfg, log),
		SeenCache: seenCache,
		Cache:     cache,
		Alerter:   alerter,
		Metrics:   m,
		Logger:    log,
		Policy:    policy,
		Retention: cfg.DedupRetention,
	})
	if err != nil {
		return fmt.Errorf("failed to build allocation engine: %w", err)
	}

	verifier := usecase.NewVerifierUseCase(store.ledger, m)
	summary := usecase.NewSummaryUseCase(verifier, cache, cfg.SummaryCacheTTL, log)

	var archiveStore usecase.ArchiveStore
	if cfg.ExportBucket != "" {
		s3Store, err := archive.NewS3Store(ctx, archive.Config{
			Bucket:   cfg.ExportBucket,
			Region:   cfg.AWSRegion,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			return fmt.Errorf("failed to configure export bucket: %w", err)
		}
		archiveStore = s3Store
	}
	export := usecase.NewExportUseCase(store.ledger, archiveStore, cfg.ExportPrefix, log)

	var jwtManager *auth.JWTManager
	if cfg.AuthEnabled {
		jwtManager = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	}

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		EventHandler:       handler.NewEventHandler(allocation),
		LedgerHandler:      handler.NewLedgerHandler(store.ledger, verifier, summary, policy),
		AdminHandler:       handler.NewAdminHandler(allocation, export, log),
		HealthHandler:      handler.NewHealthHandler(healthChecks...),
		MetricsHandler:     promhttp.Handler(),
		IdempotencyStore:   idempotencyStore,
		IdempotencyTTL:     cfg.IdempotencyTTL,
		RateLimiter:        rateLimiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		JWTManager:         jwtManager,
		Logger:             log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	publisher := eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: store.outbox,
		Publisher:  buildPublisher(cfg, log),
		Counter:    m,
		Logger:     log,
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxPollInterval,
		Retention:  cfg.DedupRetention,
	})
	verifyWorker := worker.NewVerifyWorker(verifier, alerter, cfg.VerifyInterval, log)
	pruner := worker.NewDedupPruner(store.dedup, m, cfg.DedupRetention, cfg.DedupPruneInterval, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCanceled(publisher.Start(gctx)) })
	g.Go(func() error { return ignoreCanceled(verifyWorker.Start(gctx)) })
	g.Go(func() error { return ignoreCanceled(pruner.Start(gctx)) })
	g.Go(func() error {
		rateLimiter.RunCleanup(gctx, time.Minute)
		return nil
	})

	g.Go(func() error {
		log.Info().
			Str("port", cfg.HTTPPort).
			Str("storage", cfg.StorageDriver).
			Str("policy", policy.String()).
			Bool("auth", cfg.AuthEnabled).
			Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
