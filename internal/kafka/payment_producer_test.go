package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Dhoini/billing-reconciliation/internal/models"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSaramaConfig(t *testing.T) {
	cfg := NewSaramaConfig(DefaultProducerConfig())

	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Producer.Idempotent)
	assert.True(t, cfg.Producer.Return.Successes)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.Equal(t, 1, cfg.Net.MaxOpenRequests)
	assert.Equal(t, "billing-service", cfg.ClientID)
}

func TestPublishPaymentRecorded(t *testing.T) {
	mock := mocks.NewSyncProducer(t, NewSaramaConfig(DefaultProducerConfig()))
	producer := NewKafkaPaymentProducer(mock, "", logger.NewNop())
	defer producer.Close()

	subID := "sub-local-1"
	payment := &models.Payment{
		ID:              "pay-1",
		AccountID:       "acc-1",
		Amount:          1500,
		Currency:        "usd",
		StripePaymentID: "in_1",
		SubscriptionID:  &subID,
	}

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicPaymentRecorded {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "acc-1" {
			return errors.New("message must be keyed by account id")
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var event PaymentEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		if event.StripePaymentID != "in_1" || event.SubscriptionID != subID || event.StripeEventID != "evt_1" || event.Amount != 1500 {
			return errors.New("unexpected payment event payload")
		}
		return nil
	})

	require.NoError(t, producer.PublishPaymentRecorded(context.Background(), payment, "evt_1"))
}

func TestPublishPaymentRecorded_Failure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	producer := NewKafkaPaymentProducer(mock, "", logger.NewNop())
	defer producer.Close()

	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishPaymentRecorded(context.Background(), &models.Payment{AccountID: "acc-1", StripePaymentID: "pi_1"}, "evt_1")
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestPublishPaymentRecorded_CanceledContext(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	producer := NewKafkaPaymentProducer(mock, "", logger.NewNop())
	defer producer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := producer.PublishPaymentRecorded(ctx, &models.Payment{AccountID: "acc-1", StripePaymentID: "pi_1"}, "evt_1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublishPaymentRecorded_ConfiguredTopic(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	producer := NewKafkaPaymentProducer(mock, "billing.payments", logger.NewNop())
	defer producer.Close()

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "billing.payments" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		return nil
	})

	require.NoError(t, producer.PublishPaymentRecorded(context.Background(), &models.Payment{AccountID: "acc-1", StripePaymentID: "pi_1"}, "evt_1"))
}

func TestNewSubscriptionEvent(t *testing.T) {
	sub := &models.Subscription{
		ID:                   "sub-local-1",
		AccountID:            "acc-1",
		StripeSubscriptionID: "sub_1",
		Status:               "past_due",
		Amount:               1500,
		Currency:             "usd",
	}

	event := NewSubscriptionEvent(sub, "evt_1")
	assert.Equal(t, "sub_1", event.StripeSubscriptionID)
	assert.Equal(t, "acc-1", event.AccountID)
	assert.Equal(t, "evt_1", event.StripeEventID)
}
