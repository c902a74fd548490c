package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-ledger/config"
	httpHandler "wallet-ledger/internal/adapter/http/handler"
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/adapter/messaging/rabbitmq"
	"wallet-ledger/internal/adapter/storage/memory"
	pgStorage "wallet-ledger/internal/adapter/storage/postgres"
	redisStorage "wallet-ledger/internal/adapter/storage/redis"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/service"
	"wallet-ledger/pkg/logger"

	"github.com/rs/zerolog"
)

// ledgerStore groups the repositories of one storage driver.
type ledgerStore struct {
	companies   ports.CompanyRepository
	wallets     ports.WalletRepository
	txns        ports.TransactionRepository
	idempotency ports.IdempotencyRepository
	audit       ports.AuditRepository
	transactor  ports.DBTransactor
	health      []ports.HealthChecker
	close       func()
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*ledgerStore, error) {
	if cfg.Driver == "memory" {
		log.Warn().Msg("Using in-memory ledger store, data is lost on exit")
		store := memory.NewStore()
		return &ledgerStore{
			companies:   memory.NewCompanyRepo(store),
			wallets:     memory.NewWalletRepo(store),
			txns:        memory.NewTransactionRepo(store),
			idempotency: memory.NewIdempotencyRepo(store),
			audit:       memory.NewAuditRepo(store),
			transactor:  memory.NewTransactor(store),
			close:       func() {},
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := pgStorage.ApplySchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &ledgerStore{
		companies:   pgStorage.NewCompanyRepo(pool),
		wallets:     pgStorage.NewWalletRepo(pool),
		txns:        pgStorage.NewTransactionRepo(pool),
		idempotency: pgStorage.NewIdempotencyRepo(pool),
		audit:       pgStorage.NewAuditRepo(pool),
		transactor:  pgStorage.NewTransactor(pool),
		health:      []ports.HealthChecker{pgStorage.NewHealthCheck(pool)},
		close:       pool.Close,
	}, nil
}

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Msg("Starting wallet ledger")

	ctx := context.Background()

	// Ledger store
	store, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger store")
	}
	defer store.close()

	companySvc := service.NewCompanyService(store.companies, log)
	if _, _, err := companySvc.Register(ctx, domain.Company{
		ID:   cfg.Ledger.PlatformCompanyID,
		Name: cfg.Ledger.PlatformCompanyName,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed platform company")
	}

	// Redis (optional)
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	var (
		idempotencyCache ports.IdempotencyCache
		nonceStore       ports.NonceStore
		rateLimitStore   middleware.Limiter
	)
	healthCheckers := store.health
	if rdb != nil {
		defer rdb.Close()
		idempotencyCache = redisStorage.NewIdempotencyCache(rdb)
		nonceStore = redisStorage.NewNonceStore(rdb)
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
	}

	// RabbitMQ publisher (optional)
	publisher, closePublisher, err := rabbitmq.Connect(cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer closePublisher()
	var eventPublisher ports.EventPublisher
	if publisher != nil {
		eventPublisher = publisher
	}

	// Ledger configuration
	rates, err := cfg.Ledger.Rates()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid display rates")
	}
	threshold, err := cfg.Ledger.DriftThreshold()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid drift alert threshold")
	}

	// Business services
	postingSvc := service.NewPostingService(
		store.companies,
		store.wallets,
		store.txns,
		store.idempotency,
		idempotencyCache,
		eventPublisher,
		store.transactor,
		log,
	)
	rebalanceSvc := service.NewRebalanceService(
		store.companies, store.wallets, store.txns, store.transactor,
		threshold, cfg.Ledger.RebalanceWorkers, log,
	)
	migrationSvc := service.NewMigrationService(store.companies, store.wallets, store.txns, store.transactor, rebalanceSvc, log)
	converter := service.NewCurrencyConverter(cfg.Ledger.BaseCurrency, rates)
	querySvc := service.NewQueryService(store.companies, store.wallets, store.txns, converter, log)
	auditSvc := service.NewAuditService(store.audit, log)

	scheduler := service.NewRebalanceScheduler(rebalanceSvc, cfg.Ledger.RebalanceInterval, logger.Component(log, "rebalancer"))
	scheduler.Start()
	defer scheduler.Stop()

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PostingSvc:     postingSvc,
		CompanySvc:     companySvc,
		RebalanceSvc:   rebalanceSvc,
		MigrationSvc:   migrationSvc,
		QuerySvc:       querySvc,
		EventBuilder:   service.NewEventBuilder(cfg.Ledger.PlatformCompanyID),
		SigSvc:         service.NewHMACSignatureService(),
		TokenSvc:       service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer),
		HMACSecrets:    cfg.HMAC.Secrets,
		NonceStore:     nonceStore,
		RateLimitStore: rateLimitStore,
		AuditSvc:       auditSvc,
		HealthCheckers: healthCheckers,
		Mode:           cfg.Server.Mode,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
