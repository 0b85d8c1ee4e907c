package repository

import (
	"context"

	"github.com/Dhoini/billing-reconciliation/internal/models"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"
)

// CachedStore - декоратор Store: чтения текущей подписки и платежей идут через Redis,
// любая запись по аккаунту инвалидирует его кеш. Ошибки кеша не ломают запрос.
type CachedStore struct {
	Store
	cache *RedisCache
	log   *logger.Logger
}

// NewCachedStore создает хранилище с кешированием
func NewCachedStore(store Store, cache *RedisCache, log *logger.Logger) *CachedStore {
	return &CachedStore{Store: store, cache: cache, log: log}
}

func (r *CachedStore) invalidate(ctx context.Context, accountID string) {
	if accountID == "" {
		return
	}
	if err := r.cache.InvalidateAccount(ctx, accountID); err != nil {
		r.log.Warnw("Failed to invalidate account cache", "error", err, "accountID", accountID)
	}
}

// UpsertSubscription пишет в БД и инвалидирует кеш аккаунта
func (r *CachedStore) UpsertSubscription(ctx context.Context, in models.SubscriptionUpsert) (*models.Subscription, error) {
	sub, err := r.Store.UpsertSubscription(ctx, in)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, sub.AccountID)
	return sub, nil
}

// UpsertSubscriptionStatus пишет в БД и инвалидирует кеш аккаунта
func (r *CachedStore) UpsertSubscriptionStatus(ctx context.Context, in models.SubscriptionStatusUpsert) (*models.Subscription, error) {
	sub, err := r.Store.UpsertSubscriptionStatus(ctx, in)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, sub.AccountID)
	return sub, nil
}

// UpsertPayment пишет в БД и инвалидирует кеш аккаунта
func (r *CachedStore) UpsertPayment(ctx context.Context, payment *models.Payment) (bool, error) {
	created, err := r.Store.UpsertPayment(ctx, payment)
	if err != nil {
		return false, err
	}
	if created {
		r.invalidate(ctx, payment.AccountID)
	}
	return created, nil
}

// GetCurrentSubscription сначала из кеша, потом из БД
func (r *CachedStore) GetCurrentSubscription(ctx context.Context, accountID string) (*models.Subscription, error) {
	cached, err := r.cache.GetCurrentSubscription(ctx, accountID)
	if err != nil {
		r.log.Warnw("Error getting current subscription from cache", "error", err, "accountID", accountID)
	}
	if cached != nil {
		return cached, nil
	}

	sub, err := r.Store.GetCurrentSubscription(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := r.cache.CacheCurrentSubscription(ctx, accountID, sub); err != nil {
		r.log.Warnw("Failed to cache current subscription", "error", err, "accountID", accountID)
	}
	return sub, nil
}

// ListPayments сначала из кеша, потом из БД
func (r *CachedStore) ListPayments(ctx context.Context, accountID string) ([]models.Payment, error) {
	cached, err := r.cache.GetPayments(ctx, accountID)
	if err != nil {
		r.log.Warnw("Error getting payments from cache", "error", err, "accountID", accountID)
	}
	if cached != nil {
		return cached, nil
	}

	payments, err := r.Store.ListPayments(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := r.cache.CachePayments(ctx, accountID, payments); err != nil {
		r.log.Warnw("Failed to cache payments", "error", err, "accountID", accountID)
	}
	return payments, nil
}
