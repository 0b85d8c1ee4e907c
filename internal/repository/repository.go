package repository

import (
	"context"

	"github.com/Dhoini/billing-reconciliation/internal/models"
)

// Store - контракт хранилища биллинга. Все upsert атомарны относительно своего уникального ключа.
// Ошибки: domain.ErrNotFound для отсутствующих записей, domain.ErrStoreUnavailable для сбоев драйвера.
type Store interface {
	FindAccountByID(ctx context.Context, id string) (*models.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	FindAccountByStripeCustomerID(ctx context.Context, customerID string) (*models.Account, error)

	// SetAccountCustomerIDIfEmpty записывает customer id, только если поле еще пустое.
	// false означает, что другой запрос успел раньше.
	SetAccountCustomerIDIfEmpty(ctx context.Context, accountID, customerID string) (bool, error)

	FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)

	// UpsertSubscription создает подписку или дополняет placeholder по stripe_subscription_id.
	// Статус применяется по правилу models.ShouldApplyStatus.
	UpsertSubscription(ctx context.Context, in models.SubscriptionUpsert) (*models.Subscription, error)

	// UpsertSubscriptionStatus меняет статус существующей подписки или, если задан AccountID,
	// создает placeholder. Без AccountID и без записи возвращает domain.ErrNotFound.
	UpsertSubscriptionStatus(ctx context.Context, in models.SubscriptionStatusUpsert) (*models.Subscription, error)

	// UpsertPayment вставляет платеж, если stripe_payment_id еще не встречался.
	UpsertPayment(ctx context.Context, payment *models.Payment) (created bool, err error)

	GetCurrentSubscription(ctx context.Context, accountID string) (*models.Subscription, error)
	ListPayments(ctx context.Context, accountID string) ([]models.Payment, error)

	Ping(ctx context.Context) error
}

// EventJournal хранит id полностью обработанных вебхук событий
type EventJournal interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string) error
}
