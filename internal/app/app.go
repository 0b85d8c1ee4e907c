package app

import (
	"github.com/Dhoini/billing-reconciliation/internal/config"
	"github.com/Dhoini/billing-reconciliation/internal/http/handlers"
	"github.com/Dhoini/billing-reconciliation/internal/kafka"
	"github.com/Dhoini/billing-reconciliation/internal/metrics"
	"github.com/Dhoini/billing-reconciliation/internal/middleware"
	"github.com/Dhoini/billing-reconciliation/internal/repository"
	"github.com/Dhoini/billing-reconciliation/internal/services"
	"github.com/Dhoini/billing-reconciliation/internal/stripe"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Dependencies - внешние зависимости, создаваемые в main (или в тестах)
type Dependencies struct {
	Store           repository.Store
	Journal         repository.EventJournal // может быть nil
	Gateway         stripe.Client
	SubProducer     kafka.Producer        // может быть nil
	PaymentProducer kafka.PaymentProducer // может быть nil
	Registry        *prometheus.Registry
	RetryPolicy     services.RetryPolicy
}

// App представляет собой контейнер для всех компонентов приложения
type App struct {
	Config           *config.Config
	Registry         *prometheus.Registry
	Resolver         *services.CustomerResolver
	Sessions         *services.SessionService
	Processor        *services.WebhookProcessor
	BillingHandler   *handlers.BillingHandler
	WebhookHandler   *handlers.WebhookHandler
	AuthMiddleware   *middleware.JWTMiddleware
	LoggerMiddleware gin.HandlerFunc
	Logger           *logger.Logger
}

// NewApp создает и инициализирует новый экземпляр приложения
func NewApp(cfg *config.Config, deps Dependencies, log *logger.Logger) *App {
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	billingMetrics := metrics.NewBillingMetrics(registry, log)

	resolver := services.NewCustomerResolver(deps.Store, deps.Gateway, deps.RetryPolicy, billingMetrics, log)
	sessions := services.NewSessionService(services.SessionSettingsFromConfig(cfg), resolver, deps.Gateway, deps.RetryPolicy, billingMetrics, log)
	processor := services.NewWebhookProcessor(deps.Store, deps.Journal, deps.SubProducer, deps.PaymentProducer, billingMetrics, log)
	query := services.NewBillingQuery(deps.Store, log)

	verifier := stripe.NewEventVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.WebhookTolerance)

	return &App{
		Config:           cfg,
		Registry:         registry,
		Resolver:         resolver,
		Sessions:         sessions,
		Processor:        processor,
		BillingHandler:   handlers.NewBillingHandler(deps.Store, sessions, query, log),
		WebhookHandler:   handlers.NewWebhookHandler(verifier, processor, billingMetrics, log),
		AuthMiddleware:   middleware.NewJWTMiddleware(middleware.NewDefaultTokenValidator(cfg.Auth.JWTSecret), log),
		LoggerMiddleware: middleware.RequestLogger(log),
		Logger:           log,
	}
}
