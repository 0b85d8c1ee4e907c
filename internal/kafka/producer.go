package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/billing-reconciliation/internal/models"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Топики событий биллинга
const (
	TopicSubscriptionCreated   = "subscription_created"
	TopicSubscriptionUpdated   = "subscription_updated"
	TopicSubscriptionCancelled = "subscription_cancelled"
	TopicPaymentRecorded       = "payment.recorded"
)

// SubscriptionEvent - тело сообщения о подписке
type SubscriptionEvent struct {
	SubscriptionID       string    `json:"subscription_id"`
	StripeSubscriptionID string    `json:"stripe_subscription_id"`
	AccountID            string    `json:"account_id"`
	Status               string    `json:"status"`
	Amount               int64     `json:"amount"`
	Currency             string    `json:"currency"`
	StripeEventID        string    `json:"stripe_event_id"`
	Timestamp            time.Time `json:"timestamp"`
}

// NewSubscriptionEvent собирает событие из записи подписки
func NewSubscriptionEvent(sub *models.Subscription, stripeEventID string) SubscriptionEvent {
	return SubscriptionEvent{
		SubscriptionID:       sub.ID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		AccountID:            sub.AccountID,
		Status:               string(sub.Status),
		Amount:               sub.Amount,
		Currency:             sub.Currency,
		StripeEventID:        stripeEventID,
		Timestamp:            time.Now().UTC(),
	}
}

// Producer определяет интерфейс для публикации событий подписок.
type Producer interface {
	// PublishSubscriptionEvent отправляет событие в topic. Ключ - stripe subscription id,
	// чтобы события одной подписки шли в одну партицию.
	PublishSubscriptionEvent(ctx context.Context, topic string, event SubscriptionEvent) error
	Close() error
}

// kafkaProducer реализует интерфейс Producer, используя segmentio/kafka-go.
type kafkaProducer struct {
	writer *kafka.Writer
	log    *logger.Logger
}

// NewKafkaProducer создает и настраивает новый продюсер Kafka.
func NewKafkaProducer(brokers []string, log *logger.Logger) (Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{}, // партиция по ключу, порядок событий одной подписки сохраняется
		RequiredAcks: kafka.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	log.Infow("Kafka producer initialized", "brokers", brokers)
	return &kafkaProducer{
		writer: writer,
		log:    log,
	}, nil
}

// PublishSubscriptionEvent сериализует событие в JSON и отправляет в указанный топик.
func (k *kafkaProducer) PublishSubscriptionEvent(ctx context.Context, topic string, event SubscriptionEvent) error {
	messageKey := []byte(event.StripeSubscriptionID)

	messageValue, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   messageKey,
		Value: messageValue,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(topic)},
			{Key: "stripe_event_id", Value: []byte(event.StripeEventID)},
		},
	}

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err = k.writer.WriteMessages(writeCtx, message); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			k.log.Errorw("Kafka write timeout exceeded", "error", err, "topic", topic, "stripeSubscriptionID", event.StripeSubscriptionID)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		k.log.Errorw("Failed to write message to Kafka", "error", err, "topic", topic, "stripeSubscriptionID", event.StripeSubscriptionID)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Infow("Published subscription event", "topic", topic, "stripeSubscriptionID", event.StripeSubscriptionID, "status", event.Status)
	return nil
}

// Close закрывает Kafka Writer (вызывается при graceful shutdown).
func (k *kafkaProducer) Close() error {
	if err := k.writer.Close(); err != nil {
		k.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	k.log.Infow("Kafka producer writer closed")
	return nil
}
