package services

import (
	"context"
	"testing"
	"time"

	"github.com/Dhoini/billing-reconciliation/internal/domain"
	"github.com/Dhoini/billing-reconciliation/internal/metrics"
	"github.com/Dhoini/billing-reconciliation/internal/models"
	"github.com/Dhoini/billing-reconciliation/internal/repository"
	"github.com/Dhoini/billing-reconciliation/internal/stripe/stripetest"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"

	"github.com/stretchr/testify/require"
)

var testSettings = SessionSettings{
	Currency:        "usd",
	ProductName:     "Membership",
	SuccessURL:      "https://example.test/payment/success?session_id={CHECKOUT_SESSION_ID}",
	CancelURL:       "https://example.test/payment/cancel",
	PortalReturnURL: "https://example.test/profile",
}

type fixture struct {
	store     *repository.InMemoryStore
	journal   *repository.InMemoryEventJournal
	gateway   *stripetest.FakeClient
	resolver  *CustomerResolver
	sessions  *SessionService
	processor *WebhookProcessor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewNop()
	store := repository.NewInMemoryStore(log)
	journal := repository.NewInMemoryEventJournal()
	gateway := stripetest.NewFakeClient()
	m := metrics.NewNopMetrics()

	resolver := NewCustomerResolver(store, gateway, NoRetryPolicy(), m, log)
	return &fixture{
		store:     store,
		journal:   journal,
		gateway:   gateway,
		resolver:  resolver,
		sessions:  NewSessionService(testSettings, resolver, gateway, NoRetryPolicy(), m, log),
		processor: NewWebhookProcessor(store, journal, nil, nil, m, log),
	}
}

func (f *fixture) addAccount(t *testing.T, email string) *models.Account {
	t.Helper()
	account, err := f.store.AddAccount(models.Account{Email: email})
	require.NoError(t, err)
	return &account
}

// addCustomerAccount создает аккаунт, уже связанный с клиентом Stripe
func (f *fixture) addCustomerAccount(t *testing.T, email, customerID string) *models.Account {
	t.Helper()
	account := f.addAccount(t, email)
	won, err := f.store.SetAccountCustomerIDIfEmpty(context.Background(), account.ID, customerID)
	require.NoError(t, err)
	require.True(t, won)
	account.StripeCustomerID = &customerID
	return account
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func envelope(id, eventType string, offset time.Duration) domain.EventEnvelope {
	return domain.EventEnvelope{EventID: id, Type: eventType, Created: baseTime.Add(offset)}
}

// failingStore отдает ошибку хранилища на запись платежа
type failingStore struct {
	*repository.InMemoryStore
}

func (s failingStore) UpsertPayment(ctx context.Context, payment *models.Payment) (bool, error) {
	return false, domain.NewStoreError("upsert payment", context.DeadlineExceeded)
}
