package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/Dhoini/billing-reconciliation/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v78"
)

func TestStartCheckout_MinimumAmount(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "a@x.com")

	_, err := f.sessions.StartCheckout(context.Background(), CheckoutInput{Account: account, AmountMinorUnits: 99, Mode: domain.CheckoutModePayment})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, f.gateway.CustomerCalls)
	assert.Zero(t, f.gateway.CheckoutCalls)

	url, err := f.sessions.StartCheckout(context.Background(), CheckoutInput{Account: account, AmountMinorUnits: 100, Mode: domain.CheckoutModePayment})
	require.NoError(t, err)
	assert.NotEmpty(t, url)
	assert.Equal(t, 1, f.gateway.CheckoutCalls)
}

func TestStartCheckout_RejectsUnknownMode(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "a@x.com")

	_, err := f.sessions.StartCheckout(context.Background(), CheckoutInput{Account: account, AmountMinorUnits: 500, Mode: "weekly"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, f.gateway.CheckoutCalls)
}

func TestStartCheckout_SubscriptionSession(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "a@x.com")

	url, err := f.sessions.StartCheckout(context.Background(), CheckoutInput{
		Account:          account,
		AmountMinorUnits: 1500,
		Mode:             domain.CheckoutModeSubscription,
		IdempotencyKey:   "req-42",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/c/pay/cs_test_1", url)

	in := f.gateway.LastCheckout
	assert.Equal(t, "cus_1", in.CustomerID)
	assert.Equal(t, domain.CheckoutModeSubscription, in.Mode)
	assert.Equal(t, int64(1500), in.Amount)
	assert.Equal(t, "usd", in.Currency)
	assert.Equal(t, "Membership", in.ProductName)
	assert.Equal(t, testSettings.SuccessURL, in.SuccessURL)
	assert.Equal(t, testSettings.CancelURL, in.CancelURL)
	assert.Equal(t, "req-42", in.IdempotencyKey)
	assert.Equal(t, map[string]string{"accountId": account.ID, "email": "a@x.com"}, in.Metadata)

	// никаких локальных записей до вебхука
	assert.Zero(t, f.store.CountSubscriptions())
	assert.Zero(t, f.store.CountPayments())
}

func TestStartCheckout_GeneratesIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "a@x.com")

	_, err := f.sessions.StartCheckout(context.Background(), CheckoutInput{Account: account, AmountMinorUnits: 100, Mode: domain.CheckoutModePayment})
	require.NoError(t, err)
	assert.NotEmpty(t, f.gateway.LastCheckout.IdempotencyKey)
}

func TestStartCheckout_GatewayUnavailable(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "a@x.com")
	f.gateway.CheckoutErrs = []error{&stripego.Error{HTTPStatusCode: http.StatusInternalServerError}}

	_, err := f.sessions.StartCheckout(context.Background(), CheckoutInput{Account: account, AmountMinorUnits: 100, Mode: domain.CheckoutModePayment})
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestStartBillingPortal(t *testing.T) {
	f := newFixture(t)
	account := f.addCustomerAccount(t, "a@x.com", "cus_existing")

	url, err := f.sessions.StartBillingPortal(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, "https://billing.stripe.test/p/session/bps_test_1", url)
	assert.Equal(t, "cus_existing", f.gateway.LastPortal.CustomerID)
	assert.Equal(t, testSettings.PortalReturnURL, f.gateway.LastPortal.ReturnURL)
	assert.Zero(t, f.gateway.CustomerCalls)
}

func TestStartBillingPortal_CreatesCustomerOnDemand(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "a@x.com")

	_, err := f.sessions.StartBillingPortal(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, 1, f.gateway.CustomerCalls)
	assert.Equal(t, "cus_1", f.gateway.LastPortal.CustomerID)
}

func TestStartBillingPortal_RequiresAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.sessions.StartBillingPortal(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestStartPaymentIntent(t *testing.T) {
	f := newFixture(t)
	account := f.addCustomerAccount(t, "a@x.com", "cus_existing")

	secret, err := f.sessions.StartPaymentIntent(context.Background(), PaymentIntentInput{
		Account:          account,
		AmountMinorUnits: 2500,
		Billing: BillingDetails{
			Name:    "Ada Lovelace",
			Email:   "billing@x.com",
			Address: "12 Main St",
			City:    "London",
			ZipCode: "N1 9GU",
		},
		IdempotencyKey: "req-7",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_test_1_secret_test", secret)

	in := f.gateway.LastPaymentIntent
	assert.Equal(t, "cus_existing", in.CustomerID)
	assert.Equal(t, int64(2500), in.Amount)
	assert.Equal(t, "usd", in.Currency)
	assert.Equal(t, "req-7", in.IdempotencyKey)
	assert.Equal(t, map[string]string{
		"accountId":      account.ID,
		"email":          "a@x.com",
		"billingName":    "Ada Lovelace",
		"billingEmail":   "billing@x.com",
		"billingAddress": "12 Main St",
		"billingCity":    "London",
		"billingZip":     "N1 9GU",
	}, in.Metadata)
	assert.Zero(t, f.gateway.CustomerCalls)
	assert.Zero(t, f.store.CountPayments())
}

func TestStartPaymentIntent_Validation(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "a@x.com")

	_, err := f.sessions.StartPaymentIntent(context.Background(), PaymentIntentInput{Account: account, AmountMinorUnits: 99})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.sessions.StartPaymentIntent(context.Background(), PaymentIntentInput{AmountMinorUnits: 500})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	assert.Zero(t, f.gateway.CustomerCalls)
	assert.Zero(t, f.gateway.PaymentIntentCalls)
}

func TestStartPaymentIntent_GatewayUnavailable(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "a@x.com")
	f.gateway.PaymentIntentErrs = []error{&stripego.Error{HTTPStatusCode: http.StatusBadGateway}}

	_, err := f.sessions.StartPaymentIntent(context.Background(), PaymentIntentInput{Account: account, AmountMinorUnits: 100})
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.NotEmpty(t, f.gateway.LastPaymentIntent.IdempotencyKey)
}
