// Package stripetest содержит поддельный клиент Stripe для тестов.
package stripetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Dhoini/billing-reconciliation/internal/stripe"
)

// FakeClient реализует stripe.Client в памяти и запоминает вызовы.
// Повторный CreateCustomer с тем же idempotency key возвращает того же клиента, как и Stripe.
type FakeClient struct {
	mu sync.Mutex

	CustomerCalls      int
	CheckoutCalls      int
	PortalCalls        int
	PaymentIntentCalls int
	DeletedCustomer    []string

	LastCustomer      stripe.CustomerInput
	LastCheckout      stripe.CheckoutSessionInput
	LastPortal        PortalRecord
	LastPaymentIntent stripe.PaymentIntentInput

	// Ошибки, возвращаемые по очереди перед успешным ответом
	CustomerErrs      []error
	CheckoutErrs      []error
	PortalErrs        []error
	PaymentIntentErrs []error

	customersByKey map[string]string
	nextID         int
}

// PortalRecord - последний запрос на portal сессию
type PortalRecord struct {
	CustomerID string
	ReturnURL  string
}

// NewFakeClient создает пустой фейк
func NewFakeClient() *FakeClient {
	return &FakeClient{customersByKey: make(map[string]string)}
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

// CreateCustomer выдает cus_1, cus_2, ...
func (f *FakeClient) CreateCustomer(ctx context.Context, in stripe.CustomerInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CustomerCalls++
	f.LastCustomer = in
	if err := popErr(&f.CustomerErrs); err != nil {
		return "", err
	}
	if id, ok := f.customersByKey[in.IdempotencyKey]; ok && in.IdempotencyKey != "" {
		return id, nil
	}
	f.nextID++
	id := fmt.Sprintf("cus_%d", f.nextID)
	if in.IdempotencyKey != "" {
		f.customersByKey[in.IdempotencyKey] = id
	}
	return id, nil
}

// DeleteCustomer запоминает удаленного клиента
func (f *FakeClient) DeleteCustomer(ctx context.Context, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeletedCustomer = append(f.DeletedCustomer, customerID)
	return nil
}

// CreateCheckoutSession возвращает cs_N и URL checkout.stripe.test
func (f *FakeClient) CreateCheckoutSession(ctx context.Context, in stripe.CheckoutSessionInput) (*stripe.HostedSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CheckoutCalls++
	f.LastCheckout = in
	if err := popErr(&f.CheckoutErrs); err != nil {
		return nil, err
	}
	id := fmt.Sprintf("cs_test_%d", f.CheckoutCalls)
	return &stripe.HostedSession{ID: id, URL: "https://checkout.stripe.test/c/pay/" + id}, nil
}

// CreatePortalSession возвращает bps_N
func (f *FakeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*stripe.HostedSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.PortalCalls++
	f.LastPortal = PortalRecord{CustomerID: customerID, ReturnURL: returnURL}
	if err := popErr(&f.PortalErrs); err != nil {
		return nil, err
	}
	id := fmt.Sprintf("bps_test_%d", f.PortalCalls)
	return &stripe.HostedSession{ID: id, URL: "https://billing.stripe.test/p/session/" + id}, nil
}

// CreatePaymentIntent возвращает pi_test_N с секретом pi_test_N_secret_test
func (f *FakeClient) CreatePaymentIntent(ctx context.Context, in stripe.PaymentIntentInput) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.PaymentIntentCalls++
	f.LastPaymentIntent = in
	if err := popErr(&f.PaymentIntentErrs); err != nil {
		return nil, err
	}
	id := fmt.Sprintf("pi_test_%d", f.PaymentIntentCalls)
	return &stripe.PaymentIntent{ID: id, ClientSecret: id + "_secret_test"}, nil
}
