package services

import (
	"context"
	"fmt"

	"github.com/Dhoini/billing-reconciliation/internal/config"
	"github.com/Dhoini/billing-reconciliation/internal/domain"
	"github.com/Dhoini/billing-reconciliation/internal/metrics"
	"github.com/Dhoini/billing-reconciliation/internal/models"
	"github.com/Dhoini/billing-reconciliation/internal/stripe"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"

	"github.com/google/uuid"
)

// CheckoutInput - запрос на hosted checkout
type CheckoutInput struct {
	Account          *models.Account
	AmountMinorUnits int64
	Mode             domain.CheckoutMode
	IdempotencyKey   string // пустой - будет сгенерирован
}

// BillingDetails - платежные данные из встроенной формы, уходят в метаданные intent
type BillingDetails struct {
	Name    string
	Email   string
	Address string
	City    string
	ZipCode string
}

// PaymentIntentInput - запрос на разовый платеж картой без редиректа
type PaymentIntentInput struct {
	Account          *models.Account
	AmountMinorUnits int64
	Billing          BillingDetails
	IdempotencyKey   string // пустой - будет сгенерирован
}

// SessionSettings - параметры сессий из конфигурации
type SessionSettings struct {
	Currency        string
	ProductName     string
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
}

// SessionSettingsFromConfig собирает SessionSettings из конфигурации
func SessionSettingsFromConfig(cfg *config.Config) SessionSettings {
	return SessionSettings{
		Currency:        cfg.Stripe.Currency,
		ProductName:     cfg.Stripe.ProductName,
		SuccessURL:      cfg.SuccessURL(),
		CancelURL:       cfg.CancelURL(),
		PortalReturnURL: cfg.PortalReturnURL(),
	}
}

// paymentIntentMode - метка метрики для встроенной формы оплаты
const paymentIntentMode = "payment_intent"

// SessionService создает checkout, billing portal сессии и payment intents. Локальных записей не пишет.
type SessionService struct {
	settings SessionSettings
	resolver *CustomerResolver
	gateway  stripe.Client
	caller   gatewayCaller
	metrics  metrics.BillingMetrics
	log      *logger.Logger
}

// NewSessionService конструктор сервиса
func NewSessionService(
	settings SessionSettings,
	resolver *CustomerResolver,
	gateway stripe.Client,
	policy RetryPolicy,
	m metrics.BillingMetrics,
	log *logger.Logger,
) *SessionService {
	log = log.Named("sessions")
	return &SessionService{
		settings: settings,
		resolver: resolver,
		gateway:  gateway,
		caller:   gatewayCaller{policy: policy, metrics: m, log: log},
		metrics:  m,
		log:      log,
	}
}

// StartCheckout возвращает URL страницы оплаты Stripe.
func (s *SessionService) StartCheckout(ctx context.Context, in CheckoutInput) (string, error) {
	if in.Account == nil {
		return "", domain.ErrUnauthenticated
	}
	if !in.Mode.Valid() {
		return "", fmt.Errorf("%w: unsupported checkout mode %q", domain.ErrInvalidInput, in.Mode)
	}
	if in.AmountMinorUnits < domain.MinCheckoutAmount {
		return "", fmt.Errorf("%w: %d < %d", domain.ErrInvalidAmount, in.AmountMinorUnits, domain.MinCheckoutAmount)
	}

	customerID, err := s.resolver.Resolve(ctx, in.Account)
	if err != nil {
		return "", err
	}

	idempotencyKey := in.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	input := stripe.CheckoutSessionInput{
		CustomerID:  customerID,
		Mode:        in.Mode,
		Amount:      in.AmountMinorUnits,
		Currency:    s.settings.Currency,
		ProductName: s.settings.ProductName,
		SuccessURL:  s.settings.SuccessURL,
		CancelURL:   s.settings.CancelURL,
		Metadata: map[string]string{
			domain.MetadataAccountID: in.Account.ID,
			domain.MetadataEmail:     in.Account.Email,
		},
		IdempotencyKey: idempotencyKey,
	}

	var session *stripe.HostedSession
	err = s.caller.call(ctx, "CreateCheckoutSession", func() error {
		var err error
		session, err = s.gateway.CreateCheckoutSession(ctx, input)
		return err
	})
	if err != nil {
		return "", err
	}

	s.metrics.IncCheckoutSession(string(in.Mode))
	s.log.Infow("Checkout session started", "accountID", in.Account.ID, "mode", in.Mode, "amount", in.AmountMinorUnits, "sessionID", session.ID)
	return session.URL, nil
}

// StartBillingPortal возвращает URL billing portal для управления подпиской.
func (s *SessionService) StartBillingPortal(ctx context.Context, account *models.Account) (string, error) {
	if account == nil {
		return "", domain.ErrUnauthenticated
	}

	customerID, err := s.resolver.Resolve(ctx, account)
	if err != nil {
		return "", err
	}

	var session *stripe.HostedSession
	err = s.caller.call(ctx, "CreatePortalSession", func() error {
		var err error
		session, err = s.gateway.CreatePortalSession(ctx, customerID, s.settings.PortalReturnURL)
		return err
	})
	if err != nil {
		return "", err
	}

	s.log.Infow("Billing portal session started", "accountID", account.ID, "sessionID", session.ID)
	return session.URL, nil
}

// StartPaymentIntent создает payment intent и возвращает client secret для формы оплаты.
// Платеж записывается позже по payment_intent.succeeded.
func (s *SessionService) StartPaymentIntent(ctx context.Context, in PaymentIntentInput) (string, error) {
	if in.Account == nil {
		return "", domain.ErrUnauthenticated
	}
	if in.AmountMinorUnits < domain.MinCheckoutAmount {
		return "", fmt.Errorf("%w: %d < %d", domain.ErrInvalidAmount, in.AmountMinorUnits, domain.MinCheckoutAmount)
	}

	customerID, err := s.resolver.Resolve(ctx, in.Account)
	if err != nil {
		return "", err
	}

	idempotencyKey := in.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	input := stripe.PaymentIntentInput{
		CustomerID: customerID,
		Amount:     in.AmountMinorUnits,
		Currency:   s.settings.Currency,
		Metadata: map[string]string{
			domain.MetadataAccountID:      in.Account.ID,
			domain.MetadataEmail:          in.Account.Email,
			domain.MetadataBillingName:    in.Billing.Name,
			domain.MetadataBillingEmail:   in.Billing.Email,
			domain.MetadataBillingAddress: in.Billing.Address,
			domain.MetadataBillingCity:    in.Billing.City,
			domain.MetadataBillingZip:     in.Billing.ZipCode,
		},
		IdempotencyKey: idempotencyKey,
	}

	var intent *stripe.PaymentIntent
	err = s.caller.call(ctx, "CreatePaymentIntent", func() error {
		var err error
		intent, err = s.gateway.CreatePaymentIntent(ctx, input)
		return err
	})
	if err != nil {
		return "", err
	}

	s.metrics.IncCheckoutSession(paymentIntentMode)
	s.log.Infow("Payment intent started", "accountID", in.Account.ID, "amount", in.AmountMinorUnits, "paymentIntentID", intent.ID)
	return intent.ClientSecret, nil
}
