package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dhoini/billing-reconciliation/internal/domain"
	"github.com/Dhoini/billing-reconciliation/internal/models"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"
	"github.com/google/uuid"
)

// InMemoryStore реализация Store в памяти. Используется в тестах и локальной разработке.
// Уникальность внешних id обеспечивается индексами под одной блокировкой.
type InMemoryStore struct {
	mutex sync.RWMutex
	log   *logger.Logger

	accounts      map[string]models.Account
	subscriptions map[string]models.Subscription // по stripe_subscription_id
	payments      map[string]models.Payment      // по stripe_payment_id

	now func() time.Time
}

// NewInMemoryStore создает новое хранилище в памяти
func NewInMemoryStore(log *logger.Logger) *InMemoryStore {
	return &InMemoryStore{
		log:           log,
		accounts:      make(map[string]models.Account),
		subscriptions: make(map[string]models.Subscription),
		payments:      make(map[string]models.Payment),
		now:           time.Now,
	}
}

// AddAccount добавляет аккаунт (регистрация живет вне сервиса)
func (s *InMemoryStore) AddAccount(account models.Account) (models.Account, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, a := range s.accounts {
		if a.Email == account.Email {
			return models.Account{}, domain.NewDuplicateError("account", "email", account.Email)
		}
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := s.now()
	account.CreatedAt = now
	account.UpdatedAt = now
	s.accounts[account.ID] = account
	return account, nil
}

// FindAccountByID возвращает аккаунт по ID
func (s *InMemoryStore) FindAccountByID(ctx context.Context, id string) (*models.Account, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, domain.NewNotFoundError("account", "id", id)
	}
	return &account, nil
}

// FindAccountByEmail возвращает аккаунт по email
func (s *InMemoryStore) FindAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, a := range s.accounts {
		if a.Email == email {
			account := a
			return &account, nil
		}
	}
	return nil, domain.NewNotFoundError("account", "email", email)
}

// FindAccountByStripeCustomerID возвращает аккаунт по Stripe customer id
func (s *InMemoryStore) FindAccountByStripeCustomerID(ctx context.Context, customerID string) (*models.Account, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, a := range s.accounts {
		if a.CustomerID() == customerID && customerID != "" {
			account := a
			return &account, nil
		}
	}
	return nil, domain.NewNotFoundError("account", "stripe_customer_id", customerID)
}

// SetAccountCustomerIDIfEmpty - compare-and-set customer id
func (s *InMemoryStore) SetAccountCustomerIDIfEmpty(ctx context.Context, accountID, customerID string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return false, domain.NewNotFoundError("account", "id", accountID)
	}
	if account.StripeCustomerID != nil {
		return false, nil
	}
	for _, a := range s.accounts {
		if a.CustomerID() == customerID {
			return false, domain.NewDuplicateError("account", "stripe_customer_id", customerID)
		}
	}
	id := customerID
	account.StripeCustomerID = &id
	account.UpdatedAt = s.now()
	s.accounts[accountID] = account
	return true, nil
}

// FindSubscriptionByStripeID возвращает подписку по stripe_subscription_id
func (s *InMemoryStore) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sub, ok := s.subscriptions[stripeSubscriptionID]
	if !ok {
		return nil, domain.NewNotFoundError("subscription", "stripe_subscription_id", stripeSubscriptionID)
	}
	return &sub, nil
}

// UpsertSubscription создает подписку или дополняет существующую запись
func (s *InMemoryStore) UpsertSubscription(ctx context.Context, in models.SubscriptionUpsert) (*models.Subscription, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	sub, exists := s.subscriptions[in.StripeSubscriptionID]
	if !exists {
		sub = models.Subscription{
			ID:                   uuid.NewString(),
			StripeSubscriptionID: in.StripeSubscriptionID,
			Status:               in.Status,
			StatusAt:             in.StatusAt,
			CreatedAt:            now,
		}
	} else if models.ShouldApplyStatus(sub.Status, sub.StatusAt, in.Status, in.StatusAt) {
		sub.Status = in.Status
		sub.StatusAt = in.StatusAt
	}
	sub.AccountID = in.AccountID
	sub.Amount = in.Amount
	sub.Currency = in.Currency
	sub.UpdatedAt = now
	s.subscriptions[in.StripeSubscriptionID] = sub

	s.log.Debugw("Subscription upserted in memory", "stripeSubscriptionID", sub.StripeSubscriptionID, "status", sub.Status, "created", !exists)
	return &sub, nil
}

// UpsertSubscriptionStatus меняет статус или создает placeholder
func (s *InMemoryStore) UpsertSubscriptionStatus(ctx context.Context, in models.SubscriptionStatusUpsert) (*models.Subscription, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	sub, exists := s.subscriptions[in.StripeSubscriptionID]
	if !exists {
		if in.AccountID == "" {
			return nil, domain.NewNotFoundError("subscription", "stripe_subscription_id", in.StripeSubscriptionID)
		}
		sub = models.Subscription{
			ID:                   uuid.NewString(),
			AccountID:            in.AccountID,
			Amount:               in.Amount,
			Currency:             in.Currency,
			StripeSubscriptionID: in.StripeSubscriptionID,
			Status:               in.Status,
			StatusAt:             in.StatusAt,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		s.subscriptions[in.StripeSubscriptionID] = sub
		return &sub, nil
	}

	if models.ShouldApplyStatus(sub.Status, sub.StatusAt, in.Status, in.StatusAt) {
		sub.Status = in.Status
		sub.StatusAt = in.StatusAt
		sub.UpdatedAt = now
		s.subscriptions[in.StripeSubscriptionID] = sub
	}
	return &sub, nil
}

// UpsertPayment сохраняет платеж один раз на stripe_payment_id
func (s *InMemoryStore) UpsertPayment(ctx context.Context, payment *models.Payment) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if existing, ok := s.payments[payment.StripePaymentID]; ok {
		*payment = existing
		return false, nil
	}
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = s.now()
	}
	s.payments[payment.StripePaymentID] = *payment
	return true, nil
}

// GetCurrentSubscription - последняя не отмененная подписка, иначе последняя вообще
func (s *InMemoryStore) GetCurrentSubscription(ctx context.Context, accountID string) (*models.Subscription, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var current *models.Subscription
	for _, sub := range s.subscriptions {
		if sub.AccountID != accountID {
			continue
		}
		candidate := sub
		if current == nil || isMoreCurrent(&candidate, current) {
			current = &candidate
		}
	}
	if current == nil {
		return nil, domain.NewNotFoundError("subscription", "account_id", accountID)
	}
	return current, nil
}

func isMoreCurrent(a, b *models.Subscription) bool {
	aCanceled, bCanceled := a.Status.IsTerminal(), b.Status.IsTerminal()
	if aCanceled != bCanceled {
		return !aCanceled
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// ListPayments возвращает платежи аккаунта, новые первыми
func (s *InMemoryStore) ListPayments(ctx context.Context, accountID string) ([]models.Payment, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	payments := make([]models.Payment, 0)
	for _, p := range s.payments {
		if p.AccountID == accountID {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		return payments[i].CreatedAt.After(payments[j].CreatedAt)
	})
	return payments, nil
}

// Ping всегда успешен
func (s *InMemoryStore) Ping(ctx context.Context) error {
	return nil
}

// CountSubscriptions возвращает число подписок (для тестов и health)
func (s *InMemoryStore) CountSubscriptions() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.subscriptions)
}

// CountPayments возвращает число платежей
func (s *InMemoryStore) CountPayments() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.payments)
}

// InMemoryEventJournal - журнал обработанных событий в памяти
type InMemoryEventJournal struct {
	mutex  sync.RWMutex
	events map[string]string
}

// NewInMemoryEventJournal создает пустой журнал
func NewInMemoryEventJournal() *InMemoryEventJournal {
	return &InMemoryEventJournal{events: make(map[string]string)}
}

// IsProcessed проверяет, обработано ли событие
func (j *InMemoryEventJournal) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	_, ok := j.events[eventID]
	return ok, nil
}

// MarkProcessed отмечает событие как обработанное
func (j *InMemoryEventJournal) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	j.events[eventID] = eventType
	return nil
}
