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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/iho/cardledger/internal/adapter/http"
	"github.com/iho/cardledger/internal/adapter/http/handler"
	"github.com/iho/cardledger/internal/adapter/http/middleware"
	memoryRepo "github.com/iho/cardledger/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/cardledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/cardledger/internal/adapter/repository/redis"
	"github.com/iho/cardledger/internal/infrastructure/auth"
	"github.com/iho/cardledger/internal/infrastructure/closingjob"
	"github.com/iho/cardledger/internal/infrastructure/config"
	"github.com/iho/cardledger/internal/infrastructure/eventpublisher"
	"github.com/iho/cardledger/internal/infrastructure/logger"
	"github.com/iho/cardledger/internal/infrastructure/metrics"
	"github.com/iho/cardledger/internal/infrastructure/postgres"
	redisInfra "github.com/iho/cardledger/internal/infrastructure/redis"
	"github.com/iho/cardledger/internal/usecase"
)

const rateLimiterIdle = 10 * time.Minute

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

// repositories is the storage backend selected by config.
type repositories struct {
	txManager    usecase.TransactionManager
	cards        usecase.CreditCardRepository
	invoices     usecase.InvoiceRepository
	installments usecase.InstallmentRepository
	payments     usecase.PartialPaymentRepository
	bills        usecase.BillRepository
	outbox       usecase.OutboxRepository
	audit        usecase.AuditRepository
	checks       map[string]handler.PingFunc
	close        func()
}

func openRepositories(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repositories, error) {
	if cfg.Storage == config.StorageMemory {
		store := memoryRepo.NewStore()
		log.Warn().Msg("using in-memory storage; data is lost on restart")

		return &repositories{
			txManager:    memoryRepo.NewTxManager(store),
			cards:        memoryRepo.NewCreditCardRepository(store),
			invoices:     memoryRepo.NewInvoiceRepository(store),
			installments: memoryRepo.NewInstallmentRepository(store),
			payments:     memoryRepo.NewPartialPaymentRepository(store),
			bills:        memoryRepo.NewBillRepository(store),
			outbox:       memoryRepo.NewOutboxRepository(store),
			audit:        memoryRepo.NewAuditRepository(store),
			checks:       map[string]handler.PingFunc{},
			close:        func() {},
		}, nil
	}

	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, log); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       cfg.DatabaseMaxConns,
		MinConns:       cfg.DatabaseMinConns,
		ConnectTimeout: cfg.DatabaseTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	log.Info().Msg("connected to postgres")

	return &repositories{
		txManager:    postgresRepo.NewTxManager(pool),
		cards:        postgresRepo.NewCreditCardRepository(pool),
		invoices:     postgresRepo.NewInvoiceRepository(pool),
		installments: postgresRepo.NewInstallmentRepository(pool),
		payments:     postgresRepo.NewPartialPaymentRepository(pool),
		bills:        postgresRepo.NewBillRepository(pool),
		outbox:       postgresRepo.NewOutboxRepository(pool),
		audit:        postgresRepo.NewAuditRepository(pool),
		checks:       map[string]handler.PingFunc{"postgres": pool.Ping},
		close:        pool.Close,
	}, nil
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	m := metrics.New()

	repos, err := openRepositories(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer repos.close()

	var (
		redisClient      *redis.Client
		idempotencyStore usecase.IdempotencyStore
		publisher        eventpublisher.Publisher = eventpublisher.NewLogPublisher(log)
		cards                                     = repos.cards
	)

	if cfg.RedisURL != "" {
		redisClient, err = redisInfra.NewClient(ctx, cfg.RedisURL, m)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisClient.Close()
		log.Info().Msg("connected to redis")

		cards = redisRepo.NewCachedCreditCardRepository(repos.cards, redisRepo.NewCache(redisClient), cfg.CardCacheTTL, m, log)
		idempotencyStore = redisRepo.NewIdempotencyStore(redisClient)
		publisher = redisRepo.NewPublisher(redisClient, cfg.OutboxChannel)
		repos.checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	} else {
		log.Warn().Msg("REDIS_URL is empty; card cache and idempotency keys are disabled")
	}

	idGen := postgresRepo.NewULIDGenerator()
	retrier := postgresRepo.NewRetrier(postgresRepo.WithRetryLogger(log), postgresRepo.WithRetryMetrics(m))

	// Use cases
	cardUC := usecase.NewCreditCardUseCase(repos.txManager, cards, repos.outbox, repos.audit, idGen, log)
	limitUC := usecase.NewLimitUseCase(cards, repos.invoices, repos.installments, repos.payments, m)
	purchaseUC := usecase.NewPurchaseUseCase(repos.txManager, cards, repos.bills, repos.invoices, repos.installments, repos.outbox, repos.audit, idGen, m, log)
	invoiceUC := usecase.NewInvoiceUseCase(repos.txManager, cards, repos.invoices, repos.installments, repos.payments, repos.outbox, repos.audit, idGen, m, log)
	paymentUC := usecase.NewPartialPaymentUseCase(repos.txManager, cards, repos.invoices, repos.payments, limitUC, repos.outbox, repos.audit, idGen, m, log)

	routerCfg := httpAdapter.RouterConfig{
		CreditCardHandler:     handler.NewCreditCardHandler(cardUC, limitUC),
		PurchaseHandler:       handler.NewPurchaseHandler(purchaseUC),
		InvoiceHandler:        handler.NewInvoiceHandler(invoiceUC),
		PartialPaymentHandler: handler.NewPartialPaymentHandler(paymentUC),
		HealthHandler:         handler.NewHealthHandler(repos.checks),
		IdempotencyStore:      idempotencyStore,
		IdempotencyTTL:        cfg.IdempotencyTTL,
		RateLimiter:           middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).WithMetrics(m),
		Metrics:               m,
		Logger:                log,
		CORSAllowedOrigins:    cfg.CORSAllowedOrigins,
	}

	if cfg.AuthEnabled {
		jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
		routerCfg.Authenticator = middleware.NewAuthenticator(jwtManager, m)
		routerCfg.AuthHandler = handler.NewAuthHandler(jwtManager, cfg.JWTExpiration, m)
		log.Info().Msg("authentication enabled")
	}

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      httpAdapter.NewRouter(routerCfg),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.HTTPPort).Str("storage", cfg.Storage).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
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

	g.Go(func() error {
		return ignoreCanceled(eventpublisher.NewEventPublisher(eventpublisher.Config{
			OutboxRepo: repos.outbox,
			Publisher:  publisher,
			Logger:     log,
			Metrics:    m,
			Interval:   cfg.OutboxPublishInterval,
			Retention:  cfg.OutboxRetention,
		}).Start(gctx))
	})

	if cfg.ClosingJobEnabled {
		g.Go(func() error {
			return ignoreCanceled(closingjob.New(closingjob.Config{
				Invoices:  invoiceUC,
				Retrier:   retrier,
				Logger:    log,
				Metrics:   m,
				Interval:  cfg.ClosingJobInterval,
				BatchSize: cfg.ClosingJobBatchSize,
			}).Start(gctx))
		})
	}

	g.Go(func() error {
		routerCfg.RateLimiter.Run(gctx, time.Minute, rateLimiterIdle)
		return nil
	})

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
