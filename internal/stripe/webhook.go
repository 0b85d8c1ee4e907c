package stripe

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dhoini/billing-reconciliation/internal/domain"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// SignatureHeader - заголовок с подписью вебхука
const SignatureHeader = "Stripe-Signature"

// EventVerifier проверяет подпись вебхука и разбирает событие в типизированный вариант.
type EventVerifier struct {
	secret    string
	tolerance time.Duration
}

// NewEventVerifier создает верификатор с секретом whsec_... и допуском по времени подписи.
func NewEventVerifier(secret string, tolerance time.Duration) *EventVerifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &EventVerifier{secret: secret, tolerance: tolerance}
}

// Verify проверяет подпись над сырыми байтами и только потом разбирает тело.
// Ошибка подписи - domain.ErrSignatureInvalid, неразборчивое тело - domain.ErrInvalidInput.
func (v *EventVerifier) Verify(payload []byte, signatureHeader string) (domain.WebhookEvent, error) {
	if signatureHeader == "" {
		return nil, fmt.Errorf("%w: missing %s header", domain.ErrSignatureInvalid, SignatureHeader)
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, signatureHeader, v.secret, v.tolerance); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: malformed event body: %v", domain.ErrInvalidInput, err)
	}
	return DecodeEvent(event)
}

// DecodeEvent переводит событие Stripe в закрытое множество вариантов domain.WebhookEvent.
// Неизвестный тип - domain.IgnoredEvent.
func DecodeEvent(event stripe.Event) (domain.WebhookEvent, error) {
	envelope := domain.EventEnvelope{
		EventID: event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
	}

	switch envelope.Type {
	case domain.EventCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := decodeObject(event, &session); err != nil {
			return nil, err
		}
		return domain.CheckoutCompleted{
			EventEnvelope:  envelope,
			SessionID:      session.ID,
			Mode:           domain.CheckoutMode(session.Mode),
			CustomerID:     customerID(session.Customer),
			SubscriptionID: subscriptionID(session.Subscription),
			AmountTotal:    session.AmountTotal,
			Currency:       string(session.Currency),
			Metadata:       session.Metadata,
		}, nil

	case domain.EventInvoicePaid:
		var invoice stripe.Invoice
		if err := decodeObject(event, &invoice); err != nil {
			return nil, err
		}
		return domain.InvoicePaid{
			EventEnvelope:  envelope,
			InvoiceID:      invoice.ID,
			CustomerID:     customerID(invoice.Customer),
			CustomerEmail:  invoice.CustomerEmail,
			SubscriptionID: subscriptionID(invoice.Subscription),
			AmountPaid:     invoice.AmountPaid,
			Currency:       string(invoice.Currency),
		}, nil

	case domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := decodeObject(event, &sub); err != nil {
			return nil, err
		}
		deleted := envelope.Type == domain.EventSubscriptionDeleted
		status := domain.ParseSubscriptionStatus(string(sub.Status))
		if deleted {
			status = domain.SubscriptionStatusCanceled
		}
		return domain.SubscriptionChanged{
			EventEnvelope:  envelope,
			SubscriptionID: sub.ID,
			CustomerID:     customerID(sub.Customer),
			Status:         status,
			Deleted:        deleted,
			Metadata:       sub.Metadata,
		}, nil

	case domain.EventPaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := decodeObject(event, &intent); err != nil {
			return nil, err
		}
		amount := intent.AmountReceived
		if amount == 0 {
			amount = intent.Amount
		}
		invoiceID := ""
		if intent.Invoice != nil {
			invoiceID = intent.Invoice.ID
		}
		return domain.PaymentIntentSucceeded{
			EventEnvelope:   envelope,
			PaymentIntentID: intent.ID,
			CustomerID:      customerID(intent.Customer),
			InvoiceID:       invoiceID,
			Amount:          amount,
			Currency:        string(intent.Currency),
			ReceiptEmail:    intent.ReceiptEmail,
			Metadata:        intent.Metadata,
		}, nil

	default:
		return domain.IgnoredEvent{EventEnvelope: envelope}, nil
	}
}

func decodeObject(event stripe.Event, dest any) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("%w: event %s has no data object", domain.ErrInvalidInput, event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, dest); err != nil {
		return fmt.Errorf("%w: cannot decode %s object: %v", domain.ErrInvalidInput, event.Type, err)
	}
	return nil
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func subscriptionID(s *stripe.Subscription) string {
	if s == nil {
		return ""
	}
	return s.ID
}
