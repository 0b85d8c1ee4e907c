package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Dhoini/billing-reconciliation/internal/domain"
	"github.com/Dhoini/billing-reconciliation/internal/kafka"
	"github.com/Dhoini/billing-reconciliation/internal/metrics"
	"github.com/Dhoini/billing-reconciliation/internal/models"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedProducer держит публикации, пока не закрыт release
type gatedProducer struct {
	release chan struct{}

	mu        sync.Mutex
	payments  []string
	subEvents []string
}

func newGatedProducer() *gatedProducer {
	return &gatedProducer{release: make(chan struct{})}
}

func (g *gatedProducer) PublishPaymentRecorded(ctx context.Context, payment *models.Payment, stripeEventID string) error {
	<-g.release
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments = append(g.payments, payment.StripePaymentID)
	return nil
}

func (g *gatedProducer) PublishSubscriptionEvent(ctx context.Context, topic string, event kafka.SubscriptionEvent) error {
	<-g.release
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subEvents = append(g.subEvents, topic)
	return nil
}

func (g *gatedProducer) Close() error { return nil }

func (g *gatedProducer) published() ([]string, []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.payments...), append([]string(nil), g.subEvents...)
}

func TestWebhookProcessor_DrainWaitsForPublishes(t *testing.T) {
	f := newFixture(t)
	producer := newGatedProducer()
	processor := NewWebhookProcessor(f.store, f.journal, producer, producer, metrics.NewNopMetrics(), logger.NewNop())
	ctx := context.Background()
	f.addCustomerAccount(t, "a@x.com", "cus_1")

	require.NoError(t, processor.Process(ctx, domain.CheckoutCompleted{
		EventEnvelope:  envelope("evt_checkout", domain.EventCheckoutSessionCompleted, 0),
		Mode:           domain.CheckoutModeSubscription,
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		AmountTotal:    1500,
		Currency:       "usd",
	}))
	require.NoError(t, processor.Process(ctx, domain.InvoicePaid{
		EventEnvelope:  envelope("evt_invoice", domain.EventInvoicePaid, time.Second),
		InvoiceID:      "in_1",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		AmountPaid:     1500,
		Currency:       "usd",
	}))

	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, processor.Drain(shortCtx), context.DeadlineExceeded)

	close(producer.release)
	require.NoError(t, processor.Drain(ctx))

	payments, subEvents := producer.published()
	assert.Equal(t, []string{"in_1"}, payments)
	assert.Equal(t, []string{kafka.TopicSubscriptionCreated}, subEvents)
}

func TestWebhookProcessor_DrainWithoutPublishes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.processor.Drain(context.Background()))
}
