package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/SwiftFiat/SwiftFiat-Settlement/api"
	db "github.com/SwiftFiat/SwiftFiat-Settlement/db/sqlc"
	"github.com/SwiftFiat/SwiftFiat-Settlement/providers"
	"github.com/SwiftFiat/SwiftFiat-Settlement/providers/lightning"
	"github.com/SwiftFiat/SwiftFiat-Settlement/providers/mobilemoney"
	activitylogs "github.com/SwiftFiat/SwiftFiat-Settlement/services/activity_logs"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/currency"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/lock"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/logging"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/metrics"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/tasks"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/notification"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/payment"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/redis"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/security"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/wallet"
	"github.com/SwiftFiat/SwiftFiat-Settlement/utils"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	config, err := utils.LoadConfig(utils.EnvPath)
	if err != nil {
		log.Fatalf("Could not load config: %v", err)
	}

	logger := logging.NewLogger(config)
	logger.WithField("config", config.Redact()).Info("configuration loaded")

	conn, err := sql.Open(config.DBDriver, utils.GetDBSource(config, config.DBName))
	if err != nil {
		logger.Fatalf("Could not load DB: %v", err)
	}
	defer conn.Close()

	if err := runMigrations(config); err != nil {
		logger.Fatalf("Unable to migrate up to the latest database schema - %v", err)
	}

	if !config.RedisEnabled() {
		logger.Fatal("REDIS_HOST must be set: payment locks and the balance cache are shared across replicas")
	}
	redisService, err := redis.NewRedisService(redis.ConfigFrom(config))
	if err != nil {
		logger.Fatalf("Could not connect to Redis: %v", err)
	}
	defer redisService.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("settlement", registry)

	store := db.NewStore(conn)
	audit := activitylogs.NewActivityLog(store, logger)
	wallets := wallet.NewWalletService(store, redisService, audit, logger, m, config.BalanceCacheTTL)

	mpesaConfig, err := mobilemoney.LoadMpesaConfig()
	if err != nil {
		logger.Fatalf("Could not load M-Pesa config: %v", err)
	}
	mpesaConfig.CallbackToken = config.MpesaCallbackToken
	// Access tokens are per process; every replica may hold its own.
	tokenCache := security.NewCache()
	defer tokenCache.Stop()
	mpesa := mobilemoney.NewMpesaProvider(mpesaConfig, tokenCache, logger, m)

	lndConfig, err := lightning.LoadLndConfig()
	if err != nil {
		logger.Fatalf("Could not load LND config: %v", err)
	}
	lnd, err := lightning.NewLndProvider(lndConfig, logger, m)
	if err != nil {
		logger.Fatalf("Could not set up LND client: %v", err)
	}

	providerService := providers.NewProviderService()
	providerService.AddProvider(mpesa)
	providerService.AddProvider(lnd)

	rates, err := currency.ParseStaticRates(config.BTCPrices)
	if err != nil {
		logger.Fatalf("Could not parse BTC_PRICES: %v", err)
	}

	references, err := payment.NewReferenceEncoder(config.HashidsSalt)
	if err != nil {
		logger.Fatalf("Could not set up reference encoder: %v", err)
	}

	payments := payment.NewPaymentService(payment.Dependencies{
		Store:      store,
		Locker:     lock.NewLocker(redisService.Client(), logger, m),
		Wallets:    wallets,
		Currency:   currency.NewCurrencyService(rates, logger),
		Node:       lnd,
		Gateway:    mpesa,
		Notifier:   newNotifier(config, logger),
		References: references,
		Logger:     logger,
		Metrics:    m,
	}, payment.Config{
		LockTTL:       config.PaymentLockTTL,
		InvoiceExpiry: config.InvoiceExpiry,
		SMSReceipts:   config.SMSReceipts,
	})

	scheduler := tasks.NewTaskScheduler(logger)
	mustAddTask(scheduler, "expire-stale-pending", "Expire abandoned PENDING transactions", func(ctx context.Context) error {
		_, err := payments.ExpireStale(ctx)
		return err
	}, time.Minute)
	// Reading the breakers lets open circuits move to half-open and keeps the
	// state gauge current between requests.
	mustAddTask(scheduler, "refresh-circuit-states", "Refresh provider circuit states", func(context.Context) error {
		providerService.CircuitStates()
		return nil
	}, 15*time.Second)
	scheduler.Start()
	defer scheduler.Stop()

	server := api.NewServer(config, logger, api.Services{
		Payments:  payments,
		Wallets:   wallets,
		Audit:     audit,
		Providers: providerService,
		Gatherer:  registry,
	})
	if err := server.Start(); err != nil {
		logger.Fatalf("Server stopped: %v", err)
	}
}

func runMigrations(config *utils.Config) error {
	m, err := migrate.New(config.MigrationsPath, utils.GetDBSource(config, config.DBName))
	if err != nil {
		return fmt.Errorf("unable to instantiate the database schema migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// newNotifier publishes to SNS when AWS credentials are configured and only
// logs otherwise.
func newNotifier(config *utils.Config, logger *logging.Logger) notification.Notifier {
	if config.AWSRegion == "" || config.AWSAccessKeyID == "" {
		logger.Warn("AWS is not configured; reconciliation alerts and receipts will only be logged")
		return notification.NewLogNotifier(logger)
	}
	notifier, err := notification.NewSNSNotifier(config, logger)
	if err != nil {
		logger.Fatalf("Could not set up SNS: %v", err)
	}
	return notifier
}

func mustAddTask(s *tasks.TaskScheduler, id, name string, fn func(context.Context) error, interval time.Duration) {
	if _, err := s.AddTask(id, name, fn, interval); err != nil {
		log.Fatalf("Could not register task %s: %v", id, err)
	}
}
