package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dhoini/billing-reconciliation/internal/domain"
	"github.com/Dhoini/billing-reconciliation/internal/kafka"
	"github.com/Dhoini/billing-reconciliation/internal/metrics"
	"github.com/Dhoini/billing-reconciliation/internal/models"
	"github.com/Dhoini/billing-reconciliation/internal/repository"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"
)

const publishTimeout = 10 * time.Second

// WebhookProcessor применяет проверенные события Stripe к локальному состоянию.
// Каждый переход идемпотентен по внешнему id, порядок доставки не предполагается.
type WebhookProcessor struct {
	store           repository.Store
	journal         repository.EventJournal // может быть nil
	subProducer     kafka.Producer          // может быть nil
	paymentProducer kafka.PaymentProducer   // может быть nil
	metrics         metrics.BillingMetrics
	log             *logger.Logger

	publishing sync.WaitGroup // фоновые публикации в Kafka
}

// NewWebhookProcessor конструктор
func NewWebhookProcessor(
	store repository.Store,
	journal repository.EventJournal,
	subProducer kafka.Producer,
	paymentProducer kafka.PaymentProducer,
	m metrics.BillingMetrics,
	log *logger.Logger,
) *WebhookProcessor {
	log = log.Named("webhook")
	if subProducer == nil || paymentProducer == nil {
		log.Warnw("Kafka producer is nil, event publishing will be partially skipped",
			"subscriptionProducer", subProducer != nil, "paymentProducer", paymentProducer != nil)
	}
	return &WebhookProcessor{
		store:           store,
		journal:         journal,
		subProducer:     subProducer,
		paymentProducer: paymentProducer,
		metrics:         m,
		log:             log,
	}
}

// Process применяет событие. domain.ErrNotFound (не к кому привязать) и domain.ErrInvalidInput
// (событие нельзя применить) вызывающий подтверждает без изменений.
// domain.ErrStoreUnavailable требует повторной доставки.
func (p *WebhookProcessor) Process(ctx context.Context, event domain.WebhookEvent) error {
	env := event.Envelope()
	log := p.log.With("eventID", env.EventID, "eventType", env.Type)

	if p.alreadyProcessed(ctx, env, log) {
		p.metrics.IncWebhookEvent(env.Type, metrics.OutcomeDuplicate)
		log.Infow("Event already processed, skipping")
		return nil
	}

	var err error
	outcome := metrics.OutcomeProcessed
	switch e := event.(type) {
	case domain.CheckoutCompleted:
		err = p.handleCheckoutCompleted(ctx, e)
	case domain.InvoicePaid:
		err = p.handleInvoicePaid(ctx, e)
	case domain.SubscriptionChanged:
		err = p.handleSubscriptionChanged(ctx, e)
	case domain.PaymentIntentSucceeded:
		err = p.handlePaymentIntentSucceeded(ctx, e)
	default:
		outcome = metrics.OutcomeIgnored
		log.Debugw("Unhandled event type, acknowledging")
	}

	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			p.metrics.IncWebhookEvent(env.Type, metrics.OutcomeNotFound)
			log.Warnw("Event references unknown records, acknowledging without changes", "error", err)
		case errors.Is(err, domain.ErrInvalidInput):
			p.metrics.IncWebhookEvent(env.Type, metrics.OutcomeInvalid)
			log.Warnw("Event payload cannot be applied", "error", err)
		default:
			p.metrics.IncWebhookEvent(env.Type, metrics.OutcomeFailed)
			log.Errorw("Failed to process event", "error", err)
		}
		return err
	}

	p.metrics.IncWebhookEvent(env.Type, outcome)
	if p.journal != nil && env.EventID != "" {
		if err := p.journal.MarkProcessed(ctx, env.EventID, env.Type); err != nil {
			log.Warnw("Failed to record processed event", "error", err)
		}
	}
	return nil
}

// alreadyProcessed - ошибка журнала не мешает обработке, эффекты и так идемпотентны
func (p *WebhookProcessor) alreadyProcessed(ctx context.Context, env domain.EventEnvelope, log *logger.Logger) bool {
	if p.journal == nil || env.EventID == "" {
		return false
	}
	processed, err := p.journal.IsProcessed(ctx, env.EventID)
	if err != nil {
		log.Warnw("Event journal lookup failed, processing anyway", "error", err)
		return false
	}
	return processed
}

func (p *WebhookProcessor) handleCheckoutCompleted(ctx context.Context, e domain.CheckoutCompleted) error {
	if e.Mode != domain.CheckoutModeSubscription {
		// разовый платеж записывается по payment_intent.succeeded
		p.log.Debugw("Checkout completed in payment mode, nothing to do", "sessionID", e.SessionID)
		return nil
	}
	if e.SubscriptionID == "" {
		return fmt.Errorf("%w: subscription checkout %s has no subscription id", domain.ErrInvalidInput, e.SessionID)
	}

	account, err := p.accountByCustomerOr(ctx, e.CustomerID, func() (*models.Account, error) {
		return p.accountByID(ctx, e.Metadata[domain.MetadataAccountID])
	})
	if err != nil {
		return err
	}

	sub, err := p.store.UpsertSubscription(ctx, models.SubscriptionUpsert{
		AccountID:            account.ID,
		StripeSubscriptionID: e.SubscriptionID,
		Amount:               e.AmountTotal,
		Currency:             e.Currency,
		Status:               domain.SubscriptionStatusActive,
		StatusAt:             e.Created,
	})
	if err != nil {
		return err
	}

	p.log.Infow("Subscription recorded from checkout", "accountID", account.ID, "stripeSubscriptionID", sub.StripeSubscriptionID, "status", sub.Status)
	p.publishSubscription(ctx, kafka.TopicSubscriptionCreated, sub, e.EventID)
	return nil
}

func (p *WebhookProcessor) handleInvoicePaid(ctx context.Context, e domain.InvoicePaid) error {
	if e.InvoiceID == "" {
		return fmt.Errorf("%w: invoice without id", domain.ErrInvalidInput)
	}

	account, err := p.accountByCustomerOr(ctx, e.CustomerID, func() (*models.Account, error) {
		return p.accountByEmail(ctx, e.CustomerEmail)
	})
	if err != nil {
		return err
	}

	payment := &models.Payment{
		AccountID:       account.ID,
		Amount:          e.AmountPaid,
		Currency:        e.Currency,
		StripePaymentID: e.InvoiceID,
	}

	if e.SubscriptionID != "" {
		sub, err := p.store.FindSubscriptionByStripeID(ctx, e.SubscriptionID)
		if errors.Is(err, domain.ErrNotFound) {
			// счет пришел раньше checkout.session.completed
			sub, err = p.store.UpsertSubscriptionStatus(ctx, models.SubscriptionStatusUpsert{
				StripeSubscriptionID: e.SubscriptionID,
				Status:               domain.SubscriptionStatusIncomplete,
				AccountID:            account.ID,
				Amount:               e.AmountPaid,
				Currency:             e.Currency,
			})
			if err == nil {
				p.log.Infow("Placeholder subscription created from invoice", "stripeSubscriptionID", e.SubscriptionID, "invoiceID", e.InvoiceID)
			}
		}
		if err != nil {
			return err
		}
		payment.SubscriptionID = &sub.ID
	}

	return p.recordPayment(ctx, payment, e.EventID)
}

func (p *WebhookProcessor) handleSubscriptionChanged(ctx context.Context, e domain.SubscriptionChanged) error {
	if e.SubscriptionID == "" {
		return fmt.Errorf("%w: subscription event without id", domain.ErrInvalidInput)
	}

	upsert := models.SubscriptionStatusUpsert{
		StripeSubscriptionID: e.SubscriptionID,
		Status:               e.Status,
		StatusAt:             e.Created,
	}

	_, err := p.store.FindSubscriptionByStripeID(ctx, e.SubscriptionID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// обновление пришло раньше checkout.session.completed, создаем placeholder
		account, err := p.accountByCustomerOr(ctx, e.CustomerID, func() (*models.Account, error) {
			return p.accountByID(ctx, e.Metadata[domain.MetadataAccountID])
		})
		if err != nil {
			return err
		}
		upsert.AccountID = account.ID
	case err != nil:
		return err
	}

	sub, err := p.store.UpsertSubscriptionStatus(ctx, upsert)
	if err != nil {
		return err
	}
	if sub.Status != e.Status {
		p.log.Infow("Stale subscription status ignored", "stripeSubscriptionID", e.SubscriptionID,
			"storedStatus", sub.Status, "eventStatus", e.Status, "storedAt", sub.StatusAt, "eventAt", e.Created)
		return nil
	}

	p.log.Infow("Subscription status updated", "stripeSubscriptionID", e.SubscriptionID, "status", sub.Status, "deleted", e.Deleted)
	topic := kafka.TopicSubscriptionUpdated
	if sub.Status.IsTerminal() {
		topic = kafka.TopicSubscriptionCancelled
	}
	p.publishSubscription(ctx, topic, sub, e.EventID)
	return nil
}

func (p *WebhookProcessor) handlePaymentIntentSucceeded(ctx context.Context, e domain.PaymentIntentSucceeded) error {
	if e.InvoiceID != "" {
		// платеж подписки записывается по invoice.paid
		p.log.Debugw("Payment intent belongs to an invoice, skipping", "paymentIntentID", e.PaymentIntentID, "invoiceID", e.InvoiceID)
		return nil
	}
	if e.PaymentIntentID == "" {
		return fmt.Errorf("%w: payment intent without id", domain.ErrInvalidInput)
	}

	account, err := p.accountByCustomerOr(ctx, e.CustomerID, func() (*models.Account, error) {
		account, err := p.accountByEmail(ctx, e.Metadata[domain.MetadataEmail])
		if errors.Is(err, domain.ErrNotFound) && e.ReceiptEmail != "" {
			return p.accountByEmail(ctx, e.ReceiptEmail)
		}
		return account, err
	})
	if err != nil {
		return err
	}

	return p.recordPayment(ctx, &models.Payment{
		AccountID:       account.ID,
		Amount:          e.Amount,
		Currency:        e.Currency,
		StripePaymentID: e.PaymentIntentID,
	}, e.EventID)
}

func (p *WebhookProcessor) recordPayment(ctx context.Context, payment *models.Payment, eventID string) error {
	created, err := p.store.UpsertPayment(ctx, payment)
	if err != nil {
		return err
	}
	if !created {
		p.log.Infow("Payment already recorded", "stripePaymentID", payment.StripePaymentID)
		return nil
	}

	p.metrics.IncPaymentRecorded(payment.Currency)
	p.metrics.ObservePaymentAmount(payment.Amount, payment.Currency)
	p.log.Infow("Payment recorded", "accountID", payment.AccountID, "stripePaymentID", payment.StripePaymentID, "amount", payment.Amount, "currency", payment.Currency)
	p.publishPayment(ctx, payment, eventID)
	return nil
}

// accountByCustomerOr ищет аккаунт по customer id, при отсутствии вызывает fallback
func (p *WebhookProcessor) accountByCustomerOr(ctx context.Context, customerID string, fallback func() (*models.Account, error)) (*models.Account, error) {
	if customerID != "" {
		account, err := p.store.FindAccountByStripeCustomerID(ctx, customerID)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return fallback()
}

func (p *WebhookProcessor) accountByID(ctx context.Context, accountID string) (*models.Account, error) {
	if accountID == "" {
		return nil, domain.NewNotFoundError("account", "id", "")
	}
	return p.store.FindAccountByID(ctx, accountID)
}

func (p *WebhookProcessor) accountByEmail(ctx context.Context, email string) (*models.Account, error) {
	if email == "" {
		return nil, domain.NewNotFoundError("account", "email", "")
	}
	return p.store.FindAccountByEmail(ctx, email)
}

// publishSubscription отправляет событие в фоне, ответ Stripe не ждет Kafka
func (p *WebhookProcessor) publishSubscription(ctx context.Context, topic string, sub *models.Subscription, eventID string) {
	if p.subProducer == nil {
		return
	}
	event := kafka.NewSubscriptionEvent(sub, eventID)
	p.publishing.Add(1)
	go func(ctx context.Context) {
		defer p.publishing.Done()
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if err := p.subProducer.PublishSubscriptionEvent(ctx, topic, event); err != nil {
			p.log.Errorw("Failed to publish subscription event", "topic", topic, "stripeSubscriptionID", event.StripeSubscriptionID, "error", err)
		}
	}(context.WithoutCancel(ctx))
}

func (p *WebhookProcessor) publishPayment(ctx context.Context, payment *models.Payment, eventID string) {
	if p.paymentProducer == nil {
		return
	}
	recorded := *payment
	p.publishing.Add(1)
	go func(ctx context.Context) {
		defer p.publishing.Done()
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if err := p.paymentProducer.PublishPaymentRecorded(ctx, &recorded, eventID); err != nil {
			p.log.Errorw("Failed to publish payment event", "stripePaymentID", recorded.StripePaymentID, "error", err)
		}
	}(context.WithoutCancel(ctx))
}

// Drain ждет фоновые публикации. Вызывается до закрытия продюсеров.
func (p *WebhookProcessor) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.publishing.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.log.Warnw("Pending Kafka publishes abandoned on shutdown", "error", ctx.Err())
		return ctx.Err()
	}
}
