package kafka

import (
	"fmt"

	"github.com/Dhoini/billing-reconciliation/pkg/logger"
	"github.com/IBM/sarama"
)

// ProducerConfig конфигурация sarama продюсера платежных событий
type ProducerConfig struct {
	ClientID        string
	MaxMessageBytes int
	Compression     sarama.CompressionCodec
	RequiredAcks    sarama.RequiredAcks
	MaxRetries      int
}

// DefaultProducerConfig - надежная доставка: ждем все реплики, идемпотентный продюсер
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		ClientID:        "billing-service",
		MaxMessageBytes: 1000000,
		Compression:     sarama.CompressionSnappy,
		RequiredAcks:    sarama.WaitForAll,
		MaxRetries:      5,
	}
}

// NewSaramaConfig создает конфигурацию sarama для SyncProducer
func NewSaramaConfig(cfg ProducerConfig) *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_3_0_0
	saramaConfig.ClientID = cfg.ClientID

	saramaConfig.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	saramaConfig.Producer.Compression = cfg.Compression
	saramaConfig.Producer.RequiredAcks = cfg.RequiredAcks
	saramaConfig.Producer.Retry.Max = cfg.MaxRetries
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1 // требование idempotent продюсера
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	// SyncProducer требует Return.Successes
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	return saramaConfig
}

// NewSyncProducer подключает sarama.SyncProducer к брокерам
func NewSyncProducer(brokers []string, cfg ProducerConfig, log *logger.Logger) (sarama.SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are not configured")
	}
	producer, err := sarama.NewSyncProducer(brokers, NewSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to create sarama producer: %w", err)
	}
	log.Infow("Sarama sync producer initialized", "brokers", brokers, "clientID", cfg.ClientID)
	return producer, nil
}
