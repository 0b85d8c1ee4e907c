package routes

import (
	"github.com/Dhoini/billing-reconciliation/internal/app"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes настраивает все маршруты API для Gin роутера
func SetupRoutes(router *gin.Engine, app *app.App, log *logger.Logger) {
	router.Use(app.LoggerMiddleware)
	router.Use(gin.Recovery())

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		// Вебхук аутентифицируется подписью Stripe, не сессией
		api.POST("/webhook", app.WebhookHandler.HandleStripeWebhook)
		api.GET("/health", app.BillingHandler.Health)

		auth := api.Group("")
		auth.Use(app.AuthMiddleware.RequireAuth())
		{
			auth.POST("/checkout", app.BillingHandler.Checkout)
			auth.POST("/billing-portal", app.BillingHandler.BillingPortal)
			auth.POST("/payment-intent", app.BillingHandler.PaymentIntent)
			auth.GET("/subscription", app.BillingHandler.CurrentSubscription)
			auth.GET("/payments", app.BillingHandler.ListPayments)
		}
	}

	log.Infow("API routes successfully configured")
}
