package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dhoini/billing-reconciliation/internal/models"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"
	"github.com/IBM/sarama"
)

// PaymentEvent представляет событие платежа для Kafka
type PaymentEvent struct {
	PaymentID       string    `json:"payment_id"`
	AccountID       string    `json:"account_id"`
	StripePaymentID string    `json:"stripe_payment_id"`
	SubscriptionID  string    `json:"subscription_id,omitempty"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	StripeEventID   string    `json:"stripe_event_id"`
	Timestamp       time.Time `json:"timestamp"`
}

// PaymentProducer интерфейс для отправки событий платежей
type PaymentProducer interface {
	PublishPaymentRecorded(ctx context.Context, payment *models.Payment, stripeEventID string) error
	Close() error
}

type kafkaPaymentProducer struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

// NewKafkaPaymentProducer создает новый продюсер событий платежей. Пустой topic - TopicPaymentRecorded.
func NewKafkaPaymentProducer(producer sarama.SyncProducer, topic string, log *logger.Logger) PaymentProducer {
	if topic == "" {
		topic = TopicPaymentRecorded
	}
	return &kafkaPaymentProducer{
		producer: producer,
		topic:    topic,
		log:      log,
	}
}

// PublishPaymentRecorded публикует событие о записанном платеже
func (p *kafkaPaymentProducer) PublishPaymentRecorded(ctx context.Context, payment *models.Payment, stripeEventID string) error {
	event := PaymentEvent{
		PaymentID:       payment.ID,
		AccountID:       payment.AccountID,
		StripePaymentID: payment.StripePaymentID,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		StripeEventID:   stripeEventID,
		Timestamp:       time.Now().UTC(),
	}
	if payment.SubscriptionID != nil {
		event.SubscriptionID = *payment.SubscriptionID
	}

	messageValue, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal payment event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(payment.AccountID),
		Value: sarama.ByteEncoder(messageValue),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(TopicPaymentRecorded),
			},
		},
		Timestamp: time.Now(),
	}

	// SyncProducer не принимает контекст, проверяем отмену до отправки
	if err := ctx.Err(); err != nil {
		return err
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to publish payment event: %w", err)
	}

	p.log.Infow("Published payment event", "topic", p.topic, "partition", partition, "offset", offset, "stripePaymentID", payment.StripePaymentID)
	return nil
}

// Close закрывает продюсер
func (p *kafkaPaymentProducer) Close() error {
	return p.producer.Close()
}
