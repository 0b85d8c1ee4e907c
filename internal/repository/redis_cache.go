package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/billing-reconciliation/internal/models"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Префиксы ключей для различных типов данных
	currentSubscriptionKeyPrefix = "billing:current_subscription:"
	accountPaymentsKeyPrefix     = "billing:payments:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// RedisCache - кеш чтений биллинга по аккаунту
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisCache подключается к Redis и проверяет соединение
func NewRedisCache(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// Проверяем соединение с Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return &RedisCache{client: client, ttl: defaultCacheTTL, log: log}, nil
}

// Close закрывает соединение с Redis
func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

// get возвращает false без ошибки, если ключа нет
func (r *RedisCache) get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache key %s: %w", key, err)
	}
	return true, nil
}

// CacheCurrentSubscription кеширует текущую подписку аккаунта
func (r *RedisCache) CacheCurrentSubscription(ctx context.Context, accountID string, sub *models.Subscription) error {
	return r.set(ctx, currentSubscriptionKeyPrefix+accountID, sub)
}

// GetCurrentSubscription возвращает nil, nil при промахе
func (r *RedisCache) GetCurrentSubscription(ctx context.Context, accountID string) (*models.Subscription, error) {
	var sub models.Subscription
	found, err := r.get(ctx, currentSubscriptionKeyPrefix+accountID, &sub)
	if err != nil || !found {
		return nil, err
	}
	r.log.Debugw("Current subscription served from cache", "accountID", accountID)
	return &sub, nil
}

// CachePayments кеширует список платежей аккаунта
func (r *RedisCache) CachePayments(ctx context.Context, accountID string, payments []models.Payment) error {
	return r.set(ctx, accountPaymentsKeyPrefix+accountID, payments)
}

// GetPayments возвращает nil, nil при промахе
func (r *RedisCache) GetPayments(ctx context.Context, accountID string) ([]models.Payment, error) {
	var payments []models.Payment
	found, err := r.get(ctx, accountPaymentsKeyPrefix+accountID, &payments)
	if err != nil || !found {
		return nil, err
	}
	r.log.Debugw("Payments served from cache", "accountID", accountID, "count", len(payments))
	return payments, nil
}

// InvalidateAccount удаляет все кешированные чтения аккаунта
func (r *RedisCache) InvalidateAccount(ctx context.Context, accountID string) error {
	if err := r.client.Del(ctx, currentSubscriptionKeyPrefix+accountID, accountPaymentsKeyPrefix+accountID).Err(); err != nil {
		return fmt.Errorf("failed to invalidate account cache: %w", err)
	}
	r.log.Debugw("Account billing cache invalidated", "accountID", accountID)
	return nil
}

// Ping проверяет соединение с Redis
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
