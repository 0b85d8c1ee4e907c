package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Dhoini/billing-reconciliation/internal/domain"
	"github.com/Dhoini/billing-reconciliation/internal/models"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	cache, err := NewRedisCache(server.Addr(), "", 0, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, server
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	addr := server.Addr()
	server.Close()

	_, err = NewRedisCache(addr, "", 0, logger.NewNop())
	assert.Error(t, err)
}

func TestRedisCache_RoundTripAndInvalidate(t *testing.T) {
	cache, server := newTestCache(t)
	ctx := context.Background()

	missing, err := cache.GetCurrentSubscription(ctx, "acc-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	sub := &models.Subscription{ID: "s1", AccountID: "acc-1", StripeSubscriptionID: "sub_1", Status: domain.SubscriptionStatusActive}
	require.NoError(t, cache.CacheCurrentSubscription(ctx, "acc-1", sub))
	require.NoError(t, cache.CachePayments(ctx, "acc-1", []models.Payment{{ID: "p1", StripePaymentID: "in_1"}}))

	got, err := cache.GetCurrentSubscription(ctx, "acc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sub_1", got.StripeSubscriptionID)

	server.FastForward(defaultCacheTTL + time.Second)
	got, err = cache.GetCurrentSubscription(ctx, "acc-1")
	require.NoError(t, err)
	assert.Nil(t, got, "entry must expire after TTL")

	require.NoError(t, cache.CacheCurrentSubscription(ctx, "acc-1", sub))
	require.NoError(t, cache.InvalidateAccount(ctx, "acc-1"))
	assert.False(t, server.Exists(currentSubscriptionKeyPrefix+"acc-1"))
	assert.False(t, server.Exists(accountPaymentsKeyPrefix+"acc-1"))
}

func TestCachedStore_WritesInvalidateReads(t *testing.T) {
	cache, server := newTestCache(t)
	memory, account := newTestStore(t)
	store := NewCachedStore(memory, cache, logger.NewNop())
	ctx := context.Background()

	_, err := memory.SetAccountCustomerIDIfEmpty(ctx, account.ID, "cus_1")
	require.NoError(t, err)

	payments, err := store.ListPayments(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
	assert.True(t, server.Exists(accountPaymentsKeyPrefix+account.ID))

	created, err := store.UpsertPayment(ctx, &models.Payment{AccountID: account.ID, Amount: 100, Currency: "usd", StripePaymentID: "pi_1"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, server.Exists(accountPaymentsKeyPrefix+account.ID))

	payments, err = store.ListPayments(ctx, account.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	_, err = store.UpsertSubscription(ctx, models.SubscriptionUpsert{
		AccountID: account.ID, StripeSubscriptionID: "sub_1", Status: domain.SubscriptionStatusActive, StatusAt: time.Now(),
	})
	require.NoError(t, err)
	sub, err := store.GetCurrentSubscription(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)

	_, err = store.UpsertSubscriptionStatus(ctx, models.SubscriptionStatusUpsert{
		StripeSubscriptionID: "sub_1", Status: domain.SubscriptionStatusCanceled, StatusAt: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	sub, err = store.GetCurrentSubscription(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCanceled, sub.Status, "status change must not be served from stale cache")
}

func TestCachedStore_FallsBackWhenRedisDown(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	cache, err := NewRedisCache(server.Addr(), "", 0, logger.NewNop())
	require.NoError(t, err)
	defer cache.Close()
	memory, account := newTestStore(t)
	store := NewCachedStore(memory, cache, logger.NewNop())
	ctx := context.Background()

	_, err = memory.UpsertPayment(ctx, &models.Payment{AccountID: account.ID, Amount: 100, Currency: "usd", StripePaymentID: "pi_1"})
	require.NoError(t, err)
	server.Close()

	payments, err := store.ListPayments(ctx, account.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}
