package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/Dhoini/billing-reconciliation/internal/domain"
	"github.com/Dhoini/billing-reconciliation/internal/metrics"
	"github.com/Dhoini/billing-reconciliation/internal/services"
	"github.com/Dhoini/billing-reconciliation/internal/stripe"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"
	"github.com/Dhoini/billing-reconciliation/pkg/res"

	"github.com/gin-gonic/gin"
)

const (
	// Ограничение на размер тела вебхука. Счет с большим числом позиций легко превышает 64 KiB.
	maxRequestBodySize = int64(1 << 20)
)

// WebhookHandler обрабатывает входящие вебхуки от Stripe. Ответы - plain text.
type WebhookHandler struct {
	verifier  *stripe.EventVerifier
	processor *services.WebhookProcessor
	metrics   metrics.BillingMetrics
	log       *logger.Logger
}

// NewWebhookHandler создает новый экземпляр WebhookHandler.
func NewWebhookHandler(verifier *stripe.EventVerifier, processor *services.WebhookProcessor, m metrics.BillingMetrics, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier:  verifier,
		processor: processor,
		metrics:   m,
		log:       log,
	}
}

// HandleStripeWebhook проверяет подпись над сырым телом, затем передает событие процессору.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	// Тело читается один раз, подпись считается над исходными байтами
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodySize)
	payload, err := io.ReadAll(c.Request.Body)
	//goland:noinspection GoUnhandledErrorResult
	defer c.Request.Body.Close()

	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.log.Errorw("Webhook request body exceeds limit", "limit", maxBytesErr.Limit, "client_ip", c.ClientIP())
			h.reply(c, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.log.Warnw("Failed to read webhook request body", "error", err)
		h.reply(c, "cannot read request body", http.StatusBadRequest)
		return
	}

	event, err := h.verifier.Verify(payload, c.GetHeader(stripe.SignatureHeader))
	if err != nil {
		h.metrics.IncWebhookEvent("unknown", metrics.OutcomeInvalid)
		if errors.Is(err, domain.ErrSignatureInvalid) {
			h.log.Warnw("Webhook signature verification failed", "error", err, "client_ip", c.ClientIP())
			h.reply(c, "signature verification failed", http.StatusBadRequest)
			return
		}
		// Подпись верна: повторная доставка ничего не исправит
		h.log.Warnw("Signed webhook event cannot be decoded, acknowledging", "error", err)
		h.reply(c, "ok", http.StatusOK)
		return
	}

	env := event.Envelope()
	h.log.Infow("Received verified Stripe event", "eventID", env.EventID, "eventType", env.Type)

	err = h.processor.Process(c.Request.Context(), event)
	switch {
	case err == nil, errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidInput):
		h.reply(c, "ok", http.StatusOK)
	default:
		// Stripe повторит доставку
		h.reply(c, "internal error", http.StatusInternalServerError)
	}
}

func (h *WebhookHandler) reply(c *gin.Context, text string, status int) {
	res.TextResponse(c.Writer, text, status)
	c.Abort()
}
