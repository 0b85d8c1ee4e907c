package stripe

import (
	"testing"
	"time"

	"github.com/Dhoini/billing-reconciliation/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78/webhook"
)

const testSecret = "whsec_test_secret"

func sign(t *testing.T, payload string, secret string, at time.Time) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: at,
		Scheme:    "v1",
	})
	return signed.Header
}

const checkoutPayload = `{
  "id": "evt_checkout",
  "object": "event",
  "type": "checkout.session.completed",
  "created": 1709294400,
  "data": {"object": {
    "id": "cs_test_1",
    "object": "checkout.session",
    "mode": "subscription",
    "customer": "cus_1",
    "subscription": "sub_1",
    "amount_total": 1500,
    "currency": "usd",
    "metadata": {"accountId": "acc-1", "email": "a@x.com"}
  }}
}`

func TestVerify_CheckoutCompleted(t *testing.T) {
	v := NewEventVerifier(testSecret, 0)

	event, err := v.Verify([]byte(checkoutPayload), sign(t, checkoutPayload, testSecret, time.Now()))
	require.NoError(t, err)

	checkout, ok := event.(domain.CheckoutCompleted)
	require.True(t, ok, "unexpected variant %T", event)
	assert.Equal(t, "evt_checkout", checkout.EventID)
	assert.Equal(t, domain.EventCheckoutSessionCompleted, checkout.Type)
	assert.Equal(t, time.Unix(1709294400, 0).UTC(), checkout.Created)
	assert.Equal(t, domain.CheckoutModeSubscription, checkout.Mode)
	assert.Equal(t, "cus_1", checkout.CustomerID)
	assert.Equal(t, "sub_1", checkout.SubscriptionID)
	assert.Equal(t, int64(1500), checkout.AmountTotal)
	assert.Equal(t, "usd", checkout.Currency)
	assert.Equal(t, "acc-1", checkout.Metadata[domain.MetadataAccountID])
}

func TestVerify_RejectsBadSignature(t *testing.T) {
	v := NewEventVerifier(testSecret, 0)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong secret", sign(t, checkoutPayload, "whsec_other", time.Now())},
		{"expired timestamp", sign(t, checkoutPayload, testSecret, time.Now().Add(-time.Hour))},
		{"garbage", "t=1,v1=deadbeef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify([]byte(checkoutPayload), tt.header)
			assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
		})
	}
}

func TestVerify_TamperedBody(t *testing.T) {
	v := NewEventVerifier(testSecret, 0)
	header := sign(t, checkoutPayload, testSecret, time.Now())

	tampered := []byte(checkoutPayload[:len(checkoutPayload)-1] + " }")
	_, err := v.Verify(tampered, header)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
}

func TestVerify_MalformedBodyWithValidSignature(t *testing.T) {
	v := NewEventVerifier(testSecret, 0)
	payload := `{"id": "evt_1", "type": `

	_, err := v.Verify([]byte(payload), sign(t, payload, testSecret, time.Now()))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestVerify_DecodesVariants(t *testing.T) {
	v := NewEventVerifier(testSecret, 5*time.Minute)

	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, event domain.WebhookEvent)
	}{
		{
			name: "invoice paid",
			payload: `{"id":"evt_inv","object":"event","type":"invoice.paid","created":1709294401,
				"data":{"object":{"id":"in_1","object":"invoice","customer":"cus_1","customer_email":"a@x.com",
				"subscription":"sub_1","amount_paid":1500,"currency":"usd"}}}`,
			check: func(t *testing.T, event domain.WebhookEvent) {
				invoice, ok := event.(domain.InvoicePaid)
				require.True(t, ok)
				assert.Equal(t, "in_1", invoice.InvoiceID)
				assert.Equal(t, "cus_1", invoice.CustomerID)
				assert.Equal(t, "a@x.com", invoice.CustomerEmail)
				assert.Equal(t, "sub_1", invoice.SubscriptionID)
				assert.Equal(t, int64(1500), invoice.AmountPaid)
			},
		},
		{
			name: "subscription updated",
			payload: `{"id":"evt_upd","object":"event","type":"customer.subscription.updated","created":1709294402,
				"data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_1","status":"past_due"}}}`,
			check: func(t *testing.T, event domain.WebhookEvent) {
				changed, ok := event.(domain.SubscriptionChanged)
				require.True(t, ok)
				assert.Equal(t, "sub_1", changed.SubscriptionID)
				assert.Equal(t, domain.SubscriptionStatusPastDue, changed.Status)
				assert.False(t, changed.Deleted)
			},
		},
		{
			name: "subscription deleted",
			payload: `{"id":"evt_del","object":"event","type":"customer.subscription.deleted","created":1709294403,
				"data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_1","status":"active"}}}`,
			check: func(t *testing.T, event domain.WebhookEvent) {
				changed, ok := event.(domain.SubscriptionChanged)
				require.True(t, ok)
				assert.Equal(t, domain.SubscriptionStatusCanceled, changed.Status)
				assert.True(t, changed.Deleted)
			},
		},
		{
			name: "payment intent",
			payload: `{"id":"evt_pi","object":"event","type":"payment_intent.succeeded","created":1709294404,
				"data":{"object":{"id":"pi_1","object":"payment_intent","amount":2500,"amount_received":2500,
				"currency":"usd","receipt_email":"a@x.com","metadata":{"email":"a@x.com"}}}}`,
			check: func(t *testing.T, event domain.WebhookEvent) {
				intent, ok := event.(domain.PaymentIntentSucceeded)
				require.True(t, ok)
				assert.Equal(t, "pi_1", intent.PaymentIntentID)
				assert.Equal(t, int64(2500), intent.Amount)
				assert.Empty(t, intent.InvoiceID)
				assert.Equal(t, "a@x.com", intent.ReceiptEmail)
				assert.Equal(t, "a@x.com", intent.Metadata[domain.MetadataEmail])
			},
		},
		{
			name: "payment intent of invoice",
			payload: `{"id":"evt_pi2","object":"event","type":"payment_intent.succeeded","created":1709294405,
				"data":{"object":{"id":"pi_2","object":"payment_intent","amount":1500,"currency":"usd",
				"customer":"cus_1","invoice":"in_1"}}}`,
			check: func(t *testing.T, event domain.WebhookEvent) {
				intent, ok := event.(domain.PaymentIntentSucceeded)
				require.True(t, ok)
				assert.Equal(t, "in_1", intent.InvoiceID)
				assert.Equal(t, int64(1500), intent.Amount)
			},
		},
		{
			name: "unknown type",
			payload: `{"id":"evt_other","object":"event","type":"customer.created","created":1709294406,
				"data":{"object":{"id":"cus_1","object":"customer"}}}`,
			check: func(t *testing.T, event domain.WebhookEvent) {
				ignored, ok := event.(domain.IgnoredEvent)
				require.True(t, ok)
				assert.Equal(t, "customer.created", ignored.Type)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := v.Verify([]byte(tt.payload), sign(t, tt.payload, testSecret, time.Now()))
			require.NoError(t, err)
			tt.check(t, event)
		})
	}
}

func TestVerify_HandledTypeWithoutObject(t *testing.T) {
	v := NewEventVerifier(testSecret, 0)
	payload := `{"id":"evt_1","object":"event","type":"invoice.paid","created":1709294400}`

	_, err := v.Verify([]byte(payload), sign(t, payload, testSecret, time.Now()))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
