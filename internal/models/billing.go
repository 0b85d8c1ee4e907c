package models

import (
	"time"

	"github.com/Dhoini/billing-reconciliation/internal/domain"
)

// Account - зарегистрированный пользователь. Регистрация вне этого сервиса,
// здесь аккаунт только читается и один раз получает StripeCustomerID.
type Account struct {
	ID               string    `db:"id" json:"id" gorm:"primaryKey;type:uuid"`
	Email            string    `db:"email" json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash     string    `db:"password_hash" json:"-" gorm:"not null;default:''"`
	StripeCustomerID *string   `db:"stripe_customer_id" json:"stripe_customer_id,omitempty" gorm:"uniqueIndex"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// CustomerID возвращает Stripe customer id или пустую строку
func (a *Account) CustomerID() string {
	if a.StripeCustomerID == nil {
		return ""
	}
	return *a.StripeCustomerID
}

// Subscription представляет подписку пользователя в системе.
type Subscription struct {
	ID                   string                    `db:"id" json:"id" gorm:"primaryKey;type:uuid"`
	AccountID            string                    `db:"account_id" json:"account_id" gorm:"type:uuid;index;not null"`
	Amount               int64                     `db:"amount" json:"amount"`     // минорные единицы
	Currency             string                    `db:"currency" json:"currency"` // ISO код в нижнем регистре
	Status               domain.SubscriptionStatus `db:"status" json:"status"`
	StripeSubscriptionID string                    `db:"stripe_subscription_id" json:"stripe_subscription_id" gorm:"uniqueIndex;not null"`
	StatusAt             time.Time                 `db:"status_at" json:"status_at"` // время события Stripe, установившего статус
	CreatedAt            time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time                 `db:"updated_at" json:"updated_at"`
}

// Payment - завершенный платеж (разовый или один цикл подписки). Не изменяется после создания.
type Payment struct {
	ID              string    `db:"id" json:"id" gorm:"primaryKey;type:uuid"`
	AccountID       string    `db:"account_id" json:"account_id" gorm:"type:uuid;index;not null"`
	Amount          int64     `db:"amount" json:"amount"`
	Currency        string    `db:"currency" json:"currency"`
	StripePaymentID string    `db:"stripe_payment_id" json:"stripe_payment_id" gorm:"uniqueIndex;not null"`
	SubscriptionID  *string   `db:"subscription_id" json:"subscription_id,omitempty" gorm:"type:uuid"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// SubscriptionUpsert - данные для создания/дополнения подписки по внешнему id.
type SubscriptionUpsert struct {
	AccountID            string
	StripeSubscriptionID string
	Amount               int64
	Currency             string
	Status               domain.SubscriptionStatus
	StatusAt             time.Time
}

// SubscriptionStatusUpsert - смена статуса по событию Stripe.
// AccountID, Amount и Currency используются только при создании placeholder,
// когда подписки еще нет локально.
type SubscriptionStatusUpsert struct {
	StripeSubscriptionID string
	Status               domain.SubscriptionStatus
	StatusAt             time.Time
	AccountID            string
	Amount               int64
	Currency             string
}

// ShouldApplyStatus решает, перезаписывает ли входящий статус сохраненный.
// canceled терминален, более старое событие не перетирает более новое.
func ShouldApplyStatus(current domain.SubscriptionStatus, currentAt time.Time, incoming domain.SubscriptionStatus, incomingAt time.Time) bool {
	if current.IsTerminal() && !incoming.IsTerminal() {
		return false
	}
	return !incomingAt.Before(currentAt)
}
