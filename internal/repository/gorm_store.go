package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Dhoini/billing-reconciliation/internal/domain"
	"github.com/Dhoini/billing-reconciliation/internal/models"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore - альтернативная реализация Store через gorm (database.driver = gorm).
// Схема та же, что у PostgresStore, миграции общие.
type GormStore struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewGormStore создает хранилище поверх gorm
func NewGormStore(db *gorm.DB, log *logger.Logger) *GormStore {
	return &GormStore{db: db, log: log}
}

func (r *GormStore) findAccount(ctx context.Context, column, value string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where(column+" = ?", value).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("account", column, value)
		}
		r.log.Errorw("Failed to find account", "error", err, column, value)
		return nil, domain.NewStoreError("get account", err)
	}
	return &account, nil
}

// FindAccountByID возвращает аккаунт по ID
func (r *GormStore) FindAccountByID(ctx context.Context, id string) (*models.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NewNotFoundError("account", "id", id)
	}
	return r.findAccount(ctx, "id", id)
}

// FindAccountByEmail возвращает аккаунт по email
func (r *GormStore) FindAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findAccount(ctx, "email", email)
}

// FindAccountByStripeCustomerID возвращает аккаунт по Stripe customer id
func (r *GormStore) FindAccountByStripeCustomerID(ctx context.Context, customerID string) (*models.Account, error) {
	return r.findAccount(ctx, "stripe_customer_id", customerID)
}

// SetAccountCustomerIDIfEmpty - UPDATE ... WHERE stripe_customer_id IS NULL
func (r *GormStore) SetAccountCustomerIDIfEmpty(ctx context.Context, accountID, customerID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND stripe_customer_id IS NULL", accountID).
		Updates(map[string]interface{}{
			"stripe_customer_id": customerID,
			"updated_at":         time.Now().UTC(),
		})
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return false, domain.NewDuplicateError("account", "stripe_customer_id", customerID)
		}
		r.log.Errorw("Failed to set stripe customer id", "error", result.Error, "accountID", accountID)
		return false, domain.NewStoreError("set account customer id", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// FindSubscriptionByStripeID возвращает подписку по stripe_subscription_id
func (r *GormStore) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("subscription", "stripe_subscription_id", stripeSubscriptionID)
		}
		return nil, domain.NewStoreError("get subscription", err)
	}
	return &sub, nil
}

func statusAssignments() map[string]interface{} {
	return map[string]interface{}{
		"status":     gorm.Expr("CASE WHEN " + keepStatusCondition + " THEN subscriptions.status ELSE EXCLUDED.status END"),
		"status_at":  gorm.Expr("CASE WHEN " + keepStatusCondition + " THEN subscriptions.status_at ELSE EXCLUDED.status_at END"),
		"updated_at": gorm.Expr("EXCLUDED.updated_at"),
	}
}

// UpsertSubscription создает подписку или дополняет placeholder
func (r *GormStore) UpsertSubscription(ctx context.Context, in models.SubscriptionUpsert) (*models.Subscription, error) {
	now := time.Now().UTC()
	sub := models.Subscription{
		ID:                   uuid.NewString(),
		AccountID:            in.AccountID,
		Amount:               in.Amount,
		Currency:             in.Currency,
		Status:               in.Status,
		StripeSubscriptionID: in.StripeSubscriptionID,
		StatusAt:             in.StatusAt.UTC(),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	assignments := statusAssignments()
	assignments["account_id"] = gorm.Expr("EXCLUDED.account_id")
	assignments["amount"] = gorm.Expr("EXCLUDED.amount")
	assignments["currency"] = gorm.Expr("EXCLUDED.currency")

	err := r.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_subscription_id"}},
			DoUpdates: clause.Assignments(assignments),
		},
		clause.Returning{},
	).Create(&sub).Error
	if err != nil {
		r.log.Errorw("Failed to upsert subscription", "error", err, "stripeSubscriptionID", in.StripeSubscriptionID)
		return nil, domain.NewStoreError("upsert subscription", err)
	}
	return &sub, nil
}

// UpsertSubscriptionStatus меняет статус или создает placeholder
func (r *GormStore) UpsertSubscriptionStatus(ctx context.Context, in models.SubscriptionStatusUpsert) (*models.Subscription, error) {
	now := time.Now().UTC()

	if in.AccountID == "" {
		var sub models.Subscription
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("stripe_subscription_id = ?", in.StripeSubscriptionID).
				First(&sub).Error; err != nil {
				return err
			}
			if !models.ShouldApplyStatus(sub.Status, sub.StatusAt, in.Status, in.StatusAt) {
				return nil
			}
			sub.Status = in.Status
			sub.StatusAt = in.StatusAt.UTC()
			sub.UpdatedAt = now
			return tx.Model(&sub).Select("status", "status_at", "updated_at").Updates(&sub).Error
		})
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, domain.NewNotFoundError("subscription", "stripe_subscription_id", in.StripeSubscriptionID)
			}
			r.log.Errorw("Failed to update subscription status", "error", err, "stripeSubscriptionID", in.StripeSubscriptionID)
			return nil, domain.NewStoreError("update subscription status", err)
		}
		return &sub, nil
	}

	sub := models.Subscription{
		ID:                   uuid.NewString(),
		AccountID:            in.AccountID,
		Amount:               in.Amount,
		Currency:             in.Currency,
		Status:               in.Status,
		StripeSubscriptionID: in.StripeSubscriptionID,
		StatusAt:             in.StatusAt.UTC(),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	err := r.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_subscription_id"}},
			DoUpdates: clause.Assignments(statusAssignments()),
		},
		clause.Returning{},
	).Create(&sub).Error
	if err != nil {
		r.log.Errorw("Failed to upsert subscription placeholder", "error", err, "stripeSubscriptionID", in.StripeSubscriptionID)
		return nil, domain.NewStoreError("upsert subscription status", err)
	}
	return &sub, nil
}

// UpsertPayment вставляет платеж с ON CONFLICT DO NOTHING
func (r *GormStore) UpsertPayment(ctx context.Context, payment *models.Payment) (bool, error) {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "stripe_payment_id"}}, DoNothing: true}).
		Create(payment)
	if result.Error != nil {
		r.log.Errorw("Failed to insert payment", "error", result.Error, "stripePaymentID", payment.StripePaymentID)
		return false, domain.NewStoreError("upsert payment", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// GetCurrentSubscription - последняя не отмененная подписка, иначе последняя
func (r *GormStore) GetCurrentSubscription(ctx context.Context, accountID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("(status = 'canceled') ASC").
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("subscription", "account_id", accountID)
		}
		return nil, domain.NewStoreError("get current subscription", err)
	}
	return &sub, nil
}

// ListPayments возвращает платежи аккаунта, новые первыми
func (r *GormStore) ListPayments(ctx context.Context, accountID string) ([]models.Payment, error) {
	payments := []models.Payment{}
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at DESC").Find(&payments).Error
	if err != nil {
		return nil, domain.NewStoreError("list payments", err)
	}
	return payments, nil
}

// Ping проверяет соединение с БД
func (r *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return domain.NewStoreError("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return domain.NewStoreError("ping", err)
	}
	return nil
}
