package kafka

import (
	"fmt"

	"github.com/IBM/sarama"

	"github.com/techstore/storefront/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      domain.Clock
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string, clock domain.Clock) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      clock,
	}
}

// Topic возвращает целевой topic.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	envelope := NewEnvelope(event, p.now.Now())
	return p.producer.PublishEvent(p.topic, envelope.Key(), envelope,
		sarama.RecordHeader{Key: []byte(HeaderEventType), Value: []byte(event.EventType)},
		sarama.RecordHeader{Key: []byte(HeaderAggregateType), Value: []byte(event.AggregateType)},
	)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
