package domain

import "time"

// Типы событий Stripe, которые меняют локальное состояние
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventInvoicePaid              = "invoice.paid"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
)

// EventEnvelope - общие поля любого проверенного вебхук события
type EventEnvelope struct {
	EventID string
	Type    string
	Created time.Time
}

// Envelope возвращает конверт события
func (e EventEnvelope) Envelope() EventEnvelope { return e }

// WebhookEvent - закрытое множество вариантов событий.
// Реализации: CheckoutCompleted, InvoicePaid, SubscriptionChanged, PaymentIntentSucceeded, IgnoredEvent.
type WebhookEvent interface {
	Envelope() EventEnvelope
	webhookEvent()
}

// CheckoutCompleted - checkout.session.completed
type CheckoutCompleted struct {
	EventEnvelope
	SessionID      string
	Mode           CheckoutMode
	CustomerID     string
	SubscriptionID string
	AmountTotal    int64
	Currency       string
	Metadata       map[string]string
}

// InvoicePaid - invoice.paid
type InvoicePaid struct {
	EventEnvelope
	InvoiceID      string
	CustomerID     string
	CustomerEmail  string
	SubscriptionID string
	AmountPaid     int64
	Currency       string
}

// SubscriptionChanged - customer.subscription.updated / customer.subscription.deleted
type SubscriptionChanged struct {
	EventEnvelope
	SubscriptionID string
	CustomerID     string
	Status         SubscriptionStatus
	Deleted        bool
	Metadata       map[string]string
}

// PaymentIntentSucceeded - payment_intent.succeeded
type PaymentIntentSucceeded struct {
	EventEnvelope
	PaymentIntentID string
	CustomerID      string
	InvoiceID       string // непустой, если intent оплачивает счет подписки
	Amount          int64
	Currency        string
	ReceiptEmail    string
	Metadata        map[string]string
}

// IgnoredEvent - любой другой тип, подтверждается без изменений
type IgnoredEvent struct {
	EventEnvelope
}

func (CheckoutCompleted) webhookEvent()      {}
func (InvoicePaid) webhookEvent()            {}
func (SubscriptionChanged) webhookEvent()    {}
func (PaymentIntentSucceeded) webhookEvent() {}
func (IgnoredEvent) webhookEvent()           {}
