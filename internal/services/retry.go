package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Dhoini/billing-reconciliation/internal/domain"
	"github.com/Dhoini/billing-reconciliation/internal/metrics"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	stripego "github.com/stripe/stripe-go/v78"
)

// stripe-go не экспортирует этот тип ошибки
const stripeErrorTypeAPIConnection stripego.ErrorType = "api_connection_error"

// RetryPolicy - параметры повторов обращений к Stripe
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryPolicy политика по умолчанию
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  20 * time.Second,
	}
}

// NoRetryPolicy - одна попытка (тесты)
func NoRetryPolicy() RetryPolicy {
	return RetryPolicy{}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	if p.MaxElapsedTime <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	bo.MaxElapsedTime = p.MaxElapsedTime
	bo.Reset()
	return backoff.WithContext(bo, ctx)
}

// gatewayCaller выполняет вызовы Stripe с повторами, метриками и приведением ошибок к domain.ErrGatewayUnavailable
type gatewayCaller struct {
	policy  RetryPolicy
	metrics metrics.BillingMetrics
	log     *logger.Logger
}

func (g gatewayCaller) call(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	attempt := 0

	op := func() error {
		attempt++
		start := time.Now()
		err := fn()
		g.metrics.ObserveGatewayCall(operation, err, time.Since(start))
		lastErr = err
		if err == nil {
			return nil
		}
		if isRetryableStripeError(err) {
			g.log.Warnw("Retryable Stripe error occurred, retrying", "operation", operation, "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, g.policy.backOff(ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		g.log.Errorw("Stripe operation failed", "operation", operation, "attempts", attempt, "error", lastErr)
		return domain.NewGatewayError(operation, lastErr)
	}
	return nil
}

// isRetryableStripeError проверяет, является ли ошибка Stripe подходящей для повторной попытки
func isRetryableStripeError(err error) bool {
	var stripeErr *stripego.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	if stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	if stripeErr.Type == stripeErrorTypeAPIConnection {
		return true
	}
	// 501 не временная
	return stripeErr.HTTPStatusCode >= 500 && stripeErr.HTTPStatusCode != http.StatusNotImplemented
}
