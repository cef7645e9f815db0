package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/techstore/storefront/internal/domain"
	"github.com/techstore/storefront/internal/messaging/kafka"
)

// initKafkaProducer создаёт producer, если брокеры заданы.
// Пустой список — nil, nil: события остаются в логе приложения.
func initKafkaProducer(cfg Config, logger *log.Entry) (*kafka.Producer, error) {
	brokers := cfg.KafkaBrokerList()
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// outboxPublishers выбирает получателей событий outbox: Kafka-топики
// или лог, если Kafka не настроена. DLQ без Kafka не используется.
func outboxPublishers(cfg Config, producer *kafka.Producer, logger *log.Entry) (primary, dlq domain.OutboxPublisher) {
	if producer == nil {
		return newLogPublisher(logger), nil
	}
	return kafka.NewOutboxPublisher(producer, cfg.KafkaTopic, nil),
		kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic, nil)
}

// closeKafka закрывает producer, если он создан.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// logPublisher пишет события в лог вместо брокера.
type logPublisher struct {
	logger *log.Entry
}

func newLogPublisher(logger *log.Entry) *logPublisher {
	return &logPublisher{logger: logger.WithField("publisher", "log")}
}

func (p *logPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"event_id":       event.ID,
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
	}).Info("order event published")
	return nil
}

var _ domain.OutboxPublisher = (*logPublisher)(nil)
