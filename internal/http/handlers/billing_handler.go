package handlers

import (
	"context"
	"net/http"

	"github.com/Dhoini/billing-reconciliation/internal/domain"
	"github.com/Dhoini/billing-reconciliation/internal/middleware"
	"github.com/Dhoini/billing-reconciliation/internal/models"
	"github.com/Dhoini/billing-reconciliation/internal/services"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"
	"github.com/Dhoini/billing-reconciliation/pkg/req"
	"github.com/Dhoini/billing-reconciliation/pkg/res"

	"github.com/gin-gonic/gin"
)

// IdempotencyKeyHeader - заголовок, по которому повторный checkout запрос не создает вторую сессию
const IdempotencyKeyHeader = "Idempotency-Key"

// AccountFinder загружает аутентифицированный аккаунт
type AccountFinder interface {
	FindAccountByID(ctx context.Context, id string) (*models.Account, error)
}

// BillingHandler обрабатывает запросы пользователя: checkout, billing portal и чтение биллинга.
type BillingHandler struct {
	accounts AccountFinder
	sessions *services.SessionService
	query    *services.BillingQuery
	log      *logger.Logger
}

// NewBillingHandler создает новый экземпляр BillingHandler.
func NewBillingHandler(accounts AccountFinder, sessions *services.SessionService, query *services.BillingQuery, log *logger.Logger) *BillingHandler {
	return &BillingHandler{
		accounts: accounts,
		sessions: sessions,
		query:    query,
		log:      log,
	}
}

// CheckoutRequest - тело POST /checkout
type CheckoutRequest struct {
	AmountMinorUnits int64  `json:"amountMinorUnits"`
	Mode             string `json:"mode" validate:"required,oneof=payment subscription"`
}

// BillingInfo - платежные данные встроенной формы оплаты
type BillingInfo struct {
	Name    string `json:"name" validate:"max=200"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address" validate:"max=500"`
	City    string `json:"city" validate:"max=200"`
	ZipCode string `json:"zipCode" validate:"max=20"`
}

// PaymentIntentRequest - тело POST /payment-intent
type PaymentIntentRequest struct {
	Amount      int64        `json:"amount"`
	BillingInfo *BillingInfo `json:"billingInfo" validate:"omitempty"`
}

// PaymentIntentResponse - ответ POST /payment-intent
type PaymentIntentResponse struct {
	ClientSecret string `json:"clientSecret"`
}

// PaymentsResponse - ответ GET /payments
type PaymentsResponse struct {
	Payments []models.Payment `json:"payments"`
}

func (h *BillingHandler) currentAccount(c *gin.Context) (*models.Account, error) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	return h.accounts.FindAccountByID(c.Request.Context(), accountID)
}

// Checkout обрабатывает POST /checkout
func (h *BillingHandler) Checkout(c *gin.Context) {
	body, err := req.HandleBody[CheckoutRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	account, err := h.currentAccount(c)
	if err != nil {
		h.log.Warnw("Failed to load account for checkout", "error", err)
		writeError(c, err)
		return
	}

	url, err := h.sessions.StartCheckout(c.Request.Context(), services.CheckoutInput{
		Account:          account,
		AmountMinorUnits: body.AmountMinorUnits,
		Mode:             domain.CheckoutMode(body.Mode),
		IdempotencyKey:   c.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		h.log.Warnw("Checkout failed", "accountID", account.ID, "error", err)
		writeError(c, err)
		return
	}

	res.JsonResponse(c.Writer, res.URLResponse{URL: url}, http.StatusOK)
}

// PaymentIntent обрабатывает POST /payment-intent
func (h *BillingHandler) PaymentIntent(c *gin.Context) {
	body, err := req.HandleBody[PaymentIntentRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	account, err := h.currentAccount(c)
	if err != nil {
		h.log.Warnw("Failed to load account for payment intent", "error", err)
		writeError(c, err)
		return
	}

	var billing services.BillingDetails
	if body.BillingInfo != nil {
		billing = services.BillingDetails{
			Name:    body.BillingInfo.Name,
			Email:   body.BillingInfo.Email,
			Address: body.BillingInfo.Address,
			City:    body.BillingInfo.City,
			ZipCode: body.BillingInfo.ZipCode,
		}
	}

	clientSecret, err := h.sessions.StartPaymentIntent(c.Request.Context(), services.PaymentIntentInput{
		Account:          account,
		AmountMinorUnits: body.Amount,
		Billing:          billing,
		IdempotencyKey:   c.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		h.log.Warnw("Payment intent failed", "accountID", account.ID, "error", err)
		writeError(c, err)
		return
	}

	res.JsonResponse(c.Writer, PaymentIntentResponse{ClientSecret: clientSecret}, http.StatusOK)
}

// BillingPortal обрабатывает POST /billing-portal
func (h *BillingHandler) BillingPortal(c *gin.Context) {
	account, err := h.currentAccount(c)
	if err != nil {
		h.log.Warnw("Failed to load account for billing portal", "error", err)
		writeError(c, err)
		return
	}

	url, err := h.sessions.StartBillingPortal(c.Request.Context(), account)
	if err != nil {
		h.log.Warnw("Billing portal failed", "accountID", account.ID, "error", err)
		writeError(c, err)
		return
	}

	res.JsonResponse(c.Writer, res.URLResponse{URL: url}, http.StatusOK)
}

// CurrentSubscription обрабатывает GET /subscription
func (h *BillingHandler) CurrentSubscription(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		writeError(c, domain.ErrUnauthenticated)
		return
	}

	sub, err := h.query.CurrentSubscription(c.Request.Context(), accountID)
	if err != nil {
		writeError(c, err)
		return
	}
	res.JsonResponse(c.Writer, sub, http.StatusOK)
}

// ListPayments обрабатывает GET /payments
func (h *BillingHandler) ListPayments(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		writeError(c, domain.ErrUnauthenticated)
		return
	}

	payments, err := h.query.ListPayments(c.Request.Context(), accountID)
	if err != nil {
		writeError(c, err)
		return
	}
	res.JsonResponse(c.Writer, PaymentsResponse{Payments: payments}, http.StatusOK)
}

// Health обрабатывает GET /health
func (h *BillingHandler) Health(c *gin.Context) {
	health := h.query.Health(c.Request.Context())
	status := http.StatusOK
	if !health.Healthy() {
		status = http.StatusServiceUnavailable
	}
	res.JsonResponse(c.Writer, health, status)
}
