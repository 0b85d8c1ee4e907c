package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dhoini/billing-reconciliation/internal/app"
	"github.com/Dhoini/billing-reconciliation/internal/config"
	"github.com/Dhoini/billing-reconciliation/internal/db"
	"github.com/Dhoini/billing-reconciliation/internal/http/routes"
	"github.com/Dhoini/billing-reconciliation/internal/kafka"
	"github.com/Dhoini/billing-reconciliation/internal/metrics"
	"github.com/Dhoini/billing-reconciliation/internal/repository"
	"github.com/Dhoini/billing-reconciliation/internal/repository/postgres"
	"github.com/Dhoini/billing-reconciliation/internal/services"
	"github.com/Dhoini/billing-reconciliation/internal/stripe"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(".env")
	if err != nil {
		logger.New(logger.INFO).Fatalw("Failed to load configuration", "error", err)
	}

	log := initLogger(cfg)
	log.Infow("Billing service starting up...", "env", cfg.App.Env)

	if err := cfg.Validate(); err != nil {
		log.Fatalw("Invalid configuration", "error", err)
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	dbClient, err := db.NewDBClient(cfg.Database.DSN, log)
	if err != nil {
		log.Fatalw("Failed to connect to database", "error", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Errorw("Error closing database connection", "error", err)
		}
	}()
	if err := db.MigrateUp(cfg.Database.DSN); err != nil {
		log.Fatalw("Failed to apply migrations", "error", err)
	}
	log.Infow("Database connection established")

	store := newStore(cfg, dbClient, log)

	if cfg.Redis.Addr != "" {
		redisCache, err := repository.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Warnw("Failed to initialize Redis cache, continuing without caching", "error", err)
		} else {
			defer func() {
				if err := redisCache.Close(); err != nil {
					log.Errorw("Error closing Redis connection", "error", err)
				}
			}()
			store = repository.NewCachedStore(store, redisCache, log)
			log.Infow("Using cached billing store")
		}
	}

	pool, err := postgres.NewConnection(ctx, cfg.Database.DSN, log)
	if err != nil {
		log.Fatalw("Failed to open pgx pool for event journal", "error", err)
	}
	defer pool.Close()
	journal := postgres.NewEventJournal(pool, log)

	subProducer, paymentProducer := initProducers(ctx, cfg, log)
	if subProducer != nil {
		defer func() {
			if err := subProducer.Close(); err != nil {
				log.Errorw("Error closing Kafka producer", "error", err)
			}
		}()
	}
	if paymentProducer != nil {
		defer func() {
			if err := paymentProducer.Close(); err != nil {
				log.Errorw("Error closing Kafka payment producer", "error", err)
			}
		}()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	systemMetrics := metrics.NewSystemMetrics(registry, log)

	policy := services.DefaultRetryPolicy()
	if cfg.Stripe.RetryMaxElapsed > 0 {
		policy.MaxElapsedTime = cfg.Stripe.RetryMaxElapsed
	}

	application := app.NewApp(cfg, app.Dependencies{
		Store:           store,
		Journal:         journal,
		Gateway:         stripe.NewStripeClient(cfg.Stripe.APIKey, log),
		SubProducer:     subProducer,
		PaymentProducer: paymentProducer,
		Registry:        registry,
		RetryPolicy:     policy,
	}, log)

	router := gin.New()
	routes.SetupRoutes(router, application, log)

	httpServer := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("Starting HTTP server", "port", cfg.App.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return systemMetrics.Run(gCtx, 15*time.Second)
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Infow("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Errorw("HTTP server shutdown error", "error", err)
			return err
		}
		log.Infow("HTTP server gracefully stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Errorw("Service stopped with error", "error", err)
	}

	// Продюсеры закрываются отложенно, публикации должны завершиться раньше
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelDrain()
	if err := application.Processor.Drain(drainCtx); err != nil {
		log.Errorw("Failed to drain event publishing", "error", err)
	}
	log.Infow("Cleanup finished. Goodbye!")
}

func initLogger(cfg *config.Config) *logger.Logger {
	level := logger.ParseLevel(cfg.App.LogLevel)
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		level = logger.ParseLevel(lvl)
	}
	if cfg.App.Env == "production" {
		return logger.NewProduction(level)
	}
	return logger.New(level)
}

// newStore выбирает реализацию хранилища по database.driver
func newStore(cfg *config.Config, dbClient *db.DBClient, log *logger.Logger) repository.Store {
	if cfg.Database.Driver == "gorm" {
		gdb, err := dbClient.Gorm()
		if err != nil {
			log.Fatalw("Failed to initialize gorm", "error", err)
		}
		log.Infow("Using gorm billing store")
		return repository.NewGormStore(gdb, log)
	}
	log.Infow("Using sqlx billing store")
	return repository.NewPostgresStore(dbClient.DB(), log)
}

// initProducers - Kafka не обязательна, без брокеров события не публикуются
func initProducers(ctx context.Context, cfg *config.Config, log *logger.Logger) (kafka.Producer, kafka.PaymentProducer) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Warnw("Kafka brokers are not configured, event publishing disabled")
		return nil, nil
	}

	if err := kafka.EnsureKafkaTopics(ctx, cfg.Kafka.Brokers, cfg.Kafka.PaymentTopic, log); err != nil {
		log.Warnw("Failed to ensure Kafka topics", "error", err)
	}

	var subProducer kafka.Producer
	producer, err := kafka.NewKafkaProducer(cfg.Kafka.Brokers, log)
	if err != nil {
		log.Errorw("Failed to initialize Kafka producer, continuing without subscription events", "error", err)
	} else {
		subProducer = producer
	}

	var paymentProducer kafka.PaymentProducer
	syncProducer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, kafka.DefaultProducerConfig(), log)
	if err != nil {
		log.Errorw("Failed to initialize sarama producer, continuing without payment events", "error", err)
	} else {
		paymentProducer = kafka.NewKafkaPaymentProducer(syncProducer, cfg.Kafka.PaymentTopic, log)
	}

	return subProducer, paymentProducer
}
