package services

import (
	"context"
	"fmt"

	"github.com/Dhoini/billing-reconciliation/internal/domain"
	"github.com/Dhoini/billing-reconciliation/internal/metrics"
	"github.com/Dhoini/billing-reconciliation/internal/models"
	"github.com/Dhoini/billing-reconciliation/internal/repository"
	"github.com/Dhoini/billing-reconciliation/internal/stripe"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"
)

// CustomerResolver гарантирует, что у аккаунта ровно один клиент Stripe.
type CustomerResolver struct {
	store   repository.Store
	gateway stripe.Client
	caller  gatewayCaller
	log     *logger.Logger
}

// NewCustomerResolver конструктор
func NewCustomerResolver(store repository.Store, gateway stripe.Client, policy RetryPolicy, m metrics.BillingMetrics, log *logger.Logger) *CustomerResolver {
	log = log.Named("customer-resolver")
	return &CustomerResolver{
		store:   store,
		gateway: gateway,
		caller:  gatewayCaller{policy: policy, metrics: m, log: log},
		log:     log,
	}
}

func customerIdempotencyKey(accountID string) string {
	return "customer-create-" + accountID
}

// Resolve возвращает Stripe customer id аккаунта, создавая клиента при первом обращении.
// При успехе account.StripeCustomerID заполнен.
func (r *CustomerResolver) Resolve(ctx context.Context, account *models.Account) (string, error) {
	if id := account.CustomerID(); id != "" {
		return id, nil
	}
	if account.Email == "" {
		return "", fmt.Errorf("%w: account %s has no email", domain.ErrInvalidInput, account.ID)
	}

	var customerID string
	err := r.caller.call(ctx, "CreateCustomer", func() error {
		var err error
		customerID, err = r.gateway.CreateCustomer(ctx, stripe.CustomerInput{
			AccountID:      account.ID,
			Email:          account.Email,
			IdempotencyKey: customerIdempotencyKey(account.ID),
		})
		return err
	})
	if err != nil {
		return "", err
	}

	won, err := r.store.SetAccountCustomerIDIfEmpty(ctx, account.ID, customerID)
	if err != nil {
		r.log.Errorw("Orphan Stripe customer: failed to persist customer id", "accountID", account.ID, "stripeCustomerID", customerID, "error", err)
		return "", err
	}
	if won {
		account.StripeCustomerID = &customerID
		r.log.Infow("Stripe customer linked to account", "accountID", account.ID, "stripeCustomerID", customerID)
		return customerID, nil
	}

	// Параллельный запрос успел раньше, используем его клиента
	current, err := r.store.FindAccountByID(ctx, account.ID)
	if err != nil {
		r.log.Errorw("Failed to re-read account after lost customer race", "accountID", account.ID, "stripeCustomerID", customerID, "error", err)
		return "", err
	}
	winner := current.CustomerID()
	if winner == "" {
		return "", domain.NewStoreError("SetAccountCustomerIDIfEmpty", fmt.Errorf("account %s has no customer id after conditional update", account.ID))
	}

	if winner != customerID {
		if err := r.gateway.DeleteCustomer(ctx, customerID); err != nil {
			r.log.Errorw("Orphan Stripe customer: failed to delete duplicate", "accountID", account.ID, "stripeCustomerID", customerID, "winnerCustomerID", winner, "error", err)
		} else {
			r.log.Infow("Deleted duplicate Stripe customer", "accountID", account.ID, "stripeCustomerID", customerID, "winnerCustomerID", winner)
		}
	}

	account.StripeCustomerID = &winner
	return winner, nil
}
