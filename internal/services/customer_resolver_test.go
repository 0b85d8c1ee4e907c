package services

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Dhoini/billing-reconciliation/internal/domain"
	"github.com/Dhoini/billing-reconciliation/internal/metrics"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v78"
)

func TestCustomerResolver_CreatesOnceAndReuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.addAccount(t, "a@x.com")

	first, err := f.resolver.Resolve(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, "cus_1", first)
	assert.Equal(t, "cus_1", account.CustomerID())

	second, err := f.resolver.Resolve(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.gateway.CustomerCalls)

	assert.Equal(t, "a@x.com", f.gateway.LastCustomer.Email)
	assert.Equal(t, account.ID, f.gateway.LastCustomer.AccountID)
	assert.Equal(t, "customer-create-"+account.ID, f.gateway.LastCustomer.IdempotencyKey)

	stored, err := f.store.FindAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "cus_1", stored.CustomerID())
}

func TestCustomerResolver_ReloadedAccountSkipsGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.addAccount(t, "a@x.com")

	_, err := f.resolver.Resolve(ctx, account)
	require.NoError(t, err)

	reloaded, err := f.store.FindAccountByID(ctx, account.ID)
	require.NoError(t, err)
	id, err := f.resolver.Resolve(ctx, reloaded)
	require.NoError(t, err)
	assert.Equal(t, "cus_1", id)
	assert.Equal(t, 1, f.gateway.CustomerCalls)
}

func TestCustomerResolver_EmptyEmail(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "")

	_, err := f.resolver.Resolve(context.Background(), account)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, f.gateway.CustomerCalls)
}

func TestCustomerResolver_LostRaceUsesWinnerAndDeletesDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.addAccount(t, "a@x.com")
	stale := *account

	// параллельный запрос уже записал своего клиента
	won, err := f.store.SetAccountCustomerIDIfEmpty(ctx, account.ID, "cus_winner")
	require.NoError(t, err)
	require.True(t, won)

	id, err := f.resolver.Resolve(ctx, &stale)
	require.NoError(t, err)
	assert.Equal(t, "cus_winner", id)
	assert.Equal(t, "cus_winner", stale.CustomerID())
	assert.Equal(t, []string{"cus_1"}, f.gateway.DeletedCustomer)
}

func TestCustomerResolver_ConcurrentResolveConverges(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "a@x.com")

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			copyAccount := *account
			id, err := f.resolver.Resolve(context.Background(), &copyAccount)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	stored, err := f.store.FindAccountByID(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, ids[0], stored.CustomerID())
	// idempotency key схлопывает создание на стороне Stripe
	assert.Empty(t, f.gateway.DeletedCustomer)
}

func TestCustomerResolver_GatewayFailureLeavesAccountUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.addAccount(t, "a@x.com")
	f.gateway.CustomerErrs = []error{&stripego.Error{HTTPStatusCode: http.StatusUnauthorized, Type: "invalid_request_error"}}

	_, err := f.resolver.Resolve(ctx, account)
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Nil(t, account.StripeCustomerID)

	stored, err := f.store.FindAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.StripeCustomerID)
}

func TestCustomerResolver_RetriesTransientErrors(t *testing.T) {
	f := newFixture(t)
	policy := RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxElapsedTime: time.Second}
	resolver := NewCustomerResolver(f.store, f.gateway, policy, metrics.NewNopMetrics(), logger.NewNop())
	account := f.addAccount(t, "a@x.com")
	f.gateway.CustomerErrs = []error{
		&stripego.Error{HTTPStatusCode: http.StatusServiceUnavailable},
		&stripego.Error{HTTPStatusCode: http.StatusTooManyRequests},
	}

	id, err := resolver.Resolve(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, "cus_1", id)
	assert.Equal(t, 3, f.gateway.CustomerCalls)
}

func TestIsRetryableStripeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", &stripego.Error{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"connection", &stripego.Error{Type: stripeErrorTypeAPIConnection}, true},
		{"server error", &stripego.Error{HTTPStatusCode: http.StatusBadGateway}, true},
		{"not implemented", &stripego.Error{HTTPStatusCode: http.StatusNotImplemented}, false},
		{"card declined", &stripego.Error{HTTPStatusCode: http.StatusPaymentRequired, Type: stripego.ErrorTypeCard}, false},
		{"plain error", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableStripeError(tt.err))
		})
	}
}
