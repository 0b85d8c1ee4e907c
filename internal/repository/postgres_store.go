package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/billing-reconciliation/internal/domain"
	"github.com/Dhoini/billing-reconciliation/internal/models"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const uniqueViolationCode = "23505"

const (
	accountColumns      = `id, email, password_hash, stripe_customer_id, created_at, updated_at`
	subscriptionColumns = `id, account_id, amount, currency, status, stripe_subscription_id, status_at, created_at, updated_at`
	paymentColumns      = `id, account_id, amount, currency, stripe_payment_id, subscription_id, created_at`

	// Правило статуса: canceled терминален, более старое событие не перетирает новое.
	// Должно совпадать с models.ShouldApplyStatus.
	keepStatusCondition = `(subscriptions.status = 'canceled' AND EXCLUDED.status <> 'canceled') OR EXCLUDED.status_at < subscriptions.status_at`
)

// PostgresStore реализует Store для PostgreSQL через sqlx.
type PostgresStore struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresStore создает новый экземпляр хранилища для PostgreSQL.
func NewPostgresStore(db *sqlx.DB, log *logger.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

func (r *PostgresStore) getAccount(ctx context.Context, key, value string) (*models.Account, error) {
	var account models.Account
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE %s = $1`, accountColumns, key)

	if err := r.db.GetContext(ctx, &account, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.Debugw("Account not found", key, value)
			return nil, domain.NewNotFoundError("account", key, value)
		}
		r.log.Errorw("Failed to get account from DB", "error", err, key, value)
		return nil, domain.NewStoreError("get account", err)
	}
	return &account, nil
}

// FindAccountByID возвращает аккаунт по ID
func (r *PostgresStore) FindAccountByID(ctx context.Context, id string) (*models.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NewNotFoundError("account", "id", id)
	}
	return r.getAccount(ctx, "id", id)
}

// FindAccountByEmail возвращает аккаунт по email
func (r *PostgresStore) FindAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getAccount(ctx, "email", email)
}

// FindAccountByStripeCustomerID возвращает аккаунт по Stripe customer id
func (r *PostgresStore) FindAccountByStripeCustomerID(ctx context.Context, customerID string) (*models.Account, error) {
	return r.getAccount(ctx, "stripe_customer_id", customerID)
}

// SetAccountCustomerIDIfEmpty - условный UPDATE, точка сериализации для гонки создания customer.
func (r *PostgresStore) SetAccountCustomerIDIfEmpty(ctx context.Context, accountID, customerID string) (bool, error) {
	query := `
        UPDATE accounts
        SET stripe_customer_id = $2, updated_at = $3
        WHERE id = $1 AND stripe_customer_id IS NULL`

	result, err := r.db.ExecContext(ctx, query, accountID, customerID, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return false, domain.NewDuplicateError("account", "stripe_customer_id", customerID)
		}
		r.log.Errorw("Failed to set stripe customer id", "error", err, "accountID", accountID)
		return false, domain.NewStoreError("set account customer id", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, domain.NewStoreError("set account customer id", err)
	}
	r.log.Debugw("Conditional customer id update finished", "accountID", accountID, "applied", rows == 1)
	return rows == 1, nil
}

// FindSubscriptionByStripeID возвращает подписку по stripe_subscription_id
func (r *PostgresStore) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE stripe_subscription_id = $1`, subscriptionColumns)

	if err := r.db.GetContext(ctx, &sub, query, stripeSubscriptionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("subscription", "stripe_subscription_id", stripeSubscriptionID)
		}
		r.log.Errorw("Failed to get subscription by stripe id", "error", err, "stripeSubscriptionID", stripeSubscriptionID)
		return nil, domain.NewStoreError("get subscription", err)
	}
	return &sub, nil
}

// UpsertSubscription - INSERT ... ON CONFLICT по stripe_subscription_id
func (r *PostgresStore) UpsertSubscription(ctx context.Context, in models.SubscriptionUpsert) (*models.Subscription, error) {
	now := time.Now().UTC()
	query := fmt.Sprintf(`
        INSERT INTO subscriptions (%s)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
        ON CONFLICT (stripe_subscription_id) DO UPDATE SET
            account_id = EXCLUDED.account_id,
            amount     = EXCLUDED.amount,
            currency   = EXCLUDED.currency,
            status     = CASE WHEN %[2]s THEN subscriptions.status ELSE EXCLUDED.status END,
            status_at  = CASE WHEN %[2]s THEN subscriptions.status_at ELSE EXCLUDED.status_at END,
            updated_at = EXCLUDED.updated_at
        RETURNING %[1]s`, subscriptionColumns, keepStatusCondition)

	var sub models.Subscription
	err := r.db.GetContext(ctx, &sub, query,
		uuid.NewString(), in.AccountID, in.Amount, in.Currency, string(in.Status),
		in.StripeSubscriptionID, in.StatusAt.UTC(), now)
	if err != nil {
		r.log.Errorw("Failed to upsert subscription", "error", err, "stripeSubscriptionID", in.StripeSubscriptionID)
		return nil, domain.NewStoreError("upsert subscription", err)
	}

	r.log.Debugw("Subscription upserted", "stripeSubscriptionID", sub.StripeSubscriptionID, "status", sub.Status)
	return &sub, nil
}

// UpsertSubscriptionStatus обновляет статус; при заданном AccountID вставляет placeholder.
func (r *PostgresStore) UpsertSubscriptionStatus(ctx context.Context, in models.SubscriptionStatusUpsert) (*models.Subscription, error) {
	now := time.Now().UTC()
	var sub models.Subscription

	if in.AccountID == "" {
		query := fmt.Sprintf(`
            UPDATE subscriptions SET
                status     = CASE WHEN (status = 'canceled' AND $2::text <> 'canceled') OR $3::timestamptz < status_at THEN status ELSE $2::text END,
                status_at  = CASE WHEN (status = 'canceled' AND $2::text <> 'canceled') OR $3::timestamptz < status_at THEN status_at ELSE $3::timestamptz END,
                updated_at = $4
            WHERE stripe_subscription_id = $1
            RETURNING %s`, subscriptionColumns)

		err := r.db.GetContext(ctx, &sub, query, in.StripeSubscriptionID, string(in.Status), in.StatusAt.UTC(), now)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domain.NewNotFoundError("subscription", "stripe_subscription_id", in.StripeSubscriptionID)
			}
			r.log.Errorw("Failed to update subscription status", "error", err, "stripeSubscriptionID", in.StripeSubscriptionID)
			return nil, domain.NewStoreError("update subscription status", err)
		}
		return &sub, nil
	}

	query := fmt.Sprintf(`
        INSERT INTO subscriptions (%s)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
        ON CONFLICT (stripe_subscription_id) DO UPDATE SET
            status     = CASE WHEN %[2]s THEN subscriptions.status ELSE EXCLUDED.status END,
            status_at  = CASE WHEN %[2]s THEN subscriptions.status_at ELSE EXCLUDED.status_at END,
            updated_at = EXCLUDED.updated_at
        RETURNING %[1]s`, subscriptionColumns, keepStatusCondition)

	err := r.db.GetContext(ctx, &sub, query,
		uuid.NewString(), in.AccountID, in.Amount, in.Currency, string(in.Status),
		in.StripeSubscriptionID, in.StatusAt.UTC(), now)
	if err != nil {
		r.log.Errorw("Failed to upsert subscription placeholder", "error", err, "stripeSubscriptionID", in.StripeSubscriptionID)
		return nil, domain.NewStoreError("upsert subscription status", err)
	}
	return &sub, nil
}

// UpsertPayment - INSERT ... ON CONFLICT DO NOTHING по stripe_payment_id
func (r *PostgresStore) UpsertPayment(ctx context.Context, payment *models.Payment) (bool, error) {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
        INSERT INTO payments (%s)
        VALUES (:id, :account_id, :amount, :currency, :stripe_payment_id, :subscription_id, :created_at)
        ON CONFLICT (stripe_payment_id) DO NOTHING`, paymentColumns)

	result, err := r.db.NamedExecContext(ctx, query, payment)
	if err != nil {
		r.log.Errorw("Failed to insert payment", "error", err, "stripePaymentID", payment.StripePaymentID)
		return false, domain.NewStoreError("upsert payment", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, domain.NewStoreError("upsert payment", err)
	}
	if rows == 0 {
		r.log.Debugw("Payment already recorded", "stripePaymentID", payment.StripePaymentID)
	}
	return rows == 1, nil
}

// GetCurrentSubscription - последняя не отмененная подписка, иначе последняя
func (r *PostgresStore) GetCurrentSubscription(ctx context.Context, accountID string) (*models.Subscription, error) {
	var sub models.Subscription
	query := fmt.Sprintf(`
        SELECT %s FROM subscriptions
        WHERE account_id = $1
        ORDER BY (status = 'canceled') ASC, created_at DESC
        LIMIT 1`, subscriptionColumns)

	if err := r.db.GetContext(ctx, &sub, query, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("subscription", "account_id", accountID)
		}
		r.log.Errorw("Failed to get current subscription", "error", err, "accountID", accountID)
		return nil, domain.NewStoreError("get current subscription", err)
	}
	return &sub, nil
}

// ListPayments возвращает платежи аккаунта, новые первыми
func (r *PostgresStore) ListPayments(ctx context.Context, accountID string) ([]models.Payment, error) {
	payments := []models.Payment{}
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE account_id = $1 ORDER BY created_at DESC`, paymentColumns)

	if err := r.db.SelectContext(ctx, &payments, query, accountID); err != nil {
		r.log.Errorw("Failed to list payments", "error", err, "accountID", accountID)
		return nil, domain.NewStoreError("list payments", err)
	}
	return payments, nil
}

// Ping проверяет соединение с БД
func (r *PostgresStore) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return domain.NewStoreError("ping", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
