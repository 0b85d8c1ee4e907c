package domain

// SubscriptionStatus статус подписки, повторяет словарь Stripe
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
)

// IsTerminal - из canceled подписка уже не выходит
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCanceled
}

// ParseSubscriptionStatus приводит строку провайдера к статусу.
// Неизвестное значение сохраняется как есть, чтобы не терять информацию.
func ParseSubscriptionStatus(s string) SubscriptionStatus {
	if s == "" {
		return SubscriptionStatusIncomplete
	}
	return SubscriptionStatus(s)
}

// CheckoutMode режим hosted checkout
type CheckoutMode string

const (
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
)

// Valid проверяет, что режим поддерживается
func (m CheckoutMode) Valid() bool {
	return m == CheckoutModePayment || m == CheckoutModeSubscription
}

// MinCheckoutAmount минимальная сумма checkout в минорных единицах ($1.00)
const MinCheckoutAmount int64 = 100

// SubscriptionInterval период подписки
type SubscriptionInterval string

const (
	SubscriptionIntervalMonth SubscriptionInterval = "month"
)

// Ключи метаданных, которые передаются в Stripe и возвращаются в вебхуках
const (
	MetadataAccountID = "accountId"
	MetadataEmail     = "email"

	// Платежные данные встроенной формы оплаты (payment intent)
	MetadataBillingName    = "billingName"
	MetadataBillingEmail   = "billingEmail"
	MetadataBillingAddress = "billingAddress"
	MetadataBillingCity    = "billingCity"
	MetadataBillingZip     = "billingZip"
)
