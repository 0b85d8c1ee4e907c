package services

import (
	"context"

	"github.com/Dhoini/billing-reconciliation/internal/models"
	"github.com/Dhoini/billing-reconciliation/internal/repository"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"
)

// HealthStatus - состояние сервиса для /health
type HealthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Healthy true, если хранилище доступно
func (h HealthStatus) Healthy() bool {
	return h.Database == "ok"
}

// BillingQuery - чтение подписок и платежей текущего аккаунта
type BillingQuery struct {
	store repository.Store
	log   *logger.Logger
}

// NewBillingQuery конструктор
func NewBillingQuery(store repository.Store, log *logger.Logger) *BillingQuery {
	return &BillingQuery{store: store, log: log.Named("billing-query")}
}

// CurrentSubscription возвращает актуальную подписку аккаунта или domain.ErrNotFound
func (q *BillingQuery) CurrentSubscription(ctx context.Context, accountID string) (*models.Subscription, error) {
	return q.store.GetCurrentSubscription(ctx, accountID)
}

// ListPayments возвращает платежи аккаунта, новые первыми
func (q *BillingQuery) ListPayments(ctx context.Context, accountID string) ([]models.Payment, error) {
	payments, err := q.store.ListPayments(ctx, accountID)
	if err != nil {
		return nil, err
	}
	q.log.Debugw("Payments listed", "accountID", accountID, "count", len(payments))
	return payments, nil
}

// Health проверяет доступность хранилища
func (q *BillingQuery) Health(ctx context.Context) HealthStatus {
	if err := q.store.Ping(ctx); err != nil {
		q.log.Errorw("Store ping failed", "error", err)
		return HealthStatus{Status: "degraded", Database: "unavailable"}
	}
	return HealthStatus{Status: "ok", Database: "ok"}
}
