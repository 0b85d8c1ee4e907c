package stripe

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/billing-reconciliation/internal/domain"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// Client определяет методы для взаимодействия со Stripe API.
type Client interface {
	// CreateCustomer создает клиента в Stripe и возвращает его Stripe ID.
	CreateCustomer(ctx context.Context, in CustomerInput) (string, error)

	// DeleteCustomer удаляет клиента (используется, когда создание проиграло гонку).
	DeleteCustomer(ctx context.Context, customerID string) error

	// CreateCheckoutSession создает hosted checkout сессию.
	CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*HostedSession, error)

	// CreatePortalSession создает сессию billing portal.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*HostedSession, error)

	// CreatePaymentIntent создает payment intent для встроенной формы оплаты картой.
	CreatePaymentIntent(ctx context.Context, in PaymentIntentInput) (*PaymentIntent, error)
}

// CustomerInput - параметры нового клиента Stripe
type CustomerInput struct {
	AccountID      string
	Email          string
	IdempotencyKey string
}

// CheckoutSessionInput - параметры checkout сессии на одну позицию с inline ценой
type CheckoutSessionInput struct {
	CustomerID     string
	Mode           domain.CheckoutMode
	Amount         int64
	Currency       string
	ProductName    string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

// PaymentIntentInput - разовый платеж без hosted страницы
type PaymentIntentInput struct {
	CustomerID     string
	Amount         int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

// PaymentIntent - созданный intent. ClientSecret передается в браузер для подтверждения оплаты.
type PaymentIntent struct {
	ID           string
	ClientSecret string
}

// HostedSession - страница, размещенная у Stripe
type HostedSession struct {
	ID  string
	URL string
}

// stripeClient реализует интерфейс Client.
type stripeClient struct {
	client *client.API // Клиент Stripe SDK
	log    *logger.Logger
}

// NewStripeClient создает новый экземпляр клиента Stripe.
func NewStripeClient(apiKey string, log *logger.Logger) Client {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &stripeClient{
		client: sc,
		log:    log,
	}
}

// CreateCustomer создает нового клиента в Stripe с accountId и email в метаданных.
func (sc *stripeClient) CreateCustomer(ctx context.Context, in CustomerInput) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(in.Email),
	}
	params.AddMetadata(domain.MetadataAccountID, in.AccountID)
	params.AddMetadata(domain.MetadataEmail, in.Email)
	params.Context = ctx
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	cus, err := sc.client.Customers.New(params)
	if err != nil {
		logStripeError(sc.log, "CreateCustomer", err)
		return "", fmt.Errorf("stripe: failed to create customer: %w", err)
	}

	sc.log.Infow("Stripe customer created", "stripeCustomerID", cus.ID, "accountID", in.AccountID)
	return cus.ID, nil
}

// DeleteCustomer удаляет клиента. Уже удаленный клиент не считается ошибкой.
func (sc *stripeClient) DeleteCustomer(ctx context.Context, customerID string) error {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	_, err := sc.client.Customers.Del(customerID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			sc.log.Warnw("Attempted to delete missing Stripe customer", "stripeCustomerID", customerID)
			return nil
		}
		logStripeError(sc.log, "DeleteCustomer", err)
		return fmt.Errorf("stripe: failed to delete customer: %w", err)
	}

	sc.log.Infow("Stripe customer deleted", "stripeCustomerID", customerID)
	return nil
}

// CreateCheckoutSession создает checkout сессию в режиме payment или subscription (ежемесячно).
// Метаданные дублируются в subscription_data / payment_intent_data, чтобы вернуться в вебхуках.
func (sc *stripeClient) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*HostedSession, error) {
	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(in.Currency),
		UnitAmount: stripe.Int64(in.Amount),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(in.ProductName),
		},
	}

	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(in.CustomerID),
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: priceData,
				Quantity:  stripe.Int64(1),
			},
		},
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	switch in.Mode {
	case domain.CheckoutModeSubscription:
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(string(domain.SubscriptionIntervalMonth)),
		}
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: copyMetadata(in.Metadata),
		}
	default:
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: copyMetadata(in.Metadata),
		}
	}

	params.Context = ctx
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	session, err := sc.client.CheckoutSessions.New(params)
	if err != nil {
		logStripeError(sc.log, "CreateCheckoutSession", err)
		return nil, fmt.Errorf("stripe: failed to create checkout session: %w", err)
	}

	sc.log.Infow("Stripe checkout session created", "sessionID", session.ID, "mode", in.Mode, "stripeCustomerID", in.CustomerID)
	return &HostedSession{ID: session.ID, URL: session.URL}, nil
}

// CreatePortalSession создает сессию billing portal для клиента.
func (sc *stripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*HostedSession, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	session, err := sc.client.BillingPortalSessions.New(params)
	if err != nil {
		logStripeError(sc.log, "CreatePortalSession", err)
		return nil, fmt.Errorf("stripe: failed to create billing portal session: %w", err)
	}

	sc.log.Infow("Stripe billing portal session created", "sessionID", session.ID, "stripeCustomerID", customerID)
	return &HostedSession{ID: session.ID, URL: session.URL}, nil
}

// CreatePaymentIntent создает payment intent с автоматическим выбором способов оплаты.
func (sc *stripeClient) CreatePaymentIntent(ctx context.Context, in PaymentIntentInput) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.Amount),
		Currency: stripe.String(in.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if in.CustomerID != "" {
		params.Customer = stripe.String(in.CustomerID)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	intent, err := sc.client.PaymentIntents.New(params)
	if err != nil {
		logStripeError(sc.log, "CreatePaymentIntent", err)
		return nil, fmt.Errorf("stripe: failed to create payment intent: %w", err)
	}

	sc.log.Infow("Stripe payment intent created", "paymentIntentID", intent.ID, "amount", in.Amount, "stripeCustomerID", in.CustomerID)
	return &PaymentIntent{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

func copyMetadata(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// logStripeError - вспомогательная функция для логирования деталей ошибки Stripe.
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"param", stripeErr.Param,
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
	} else {
		log.Errorw("Non-Stripe error during Stripe operation",
			"operation", operation,
			"error", err,
		)
	}
}
