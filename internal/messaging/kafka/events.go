package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/techstore/storefront/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicDeadLetterQueue = "storefront.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderReplayedAt    = "x-replayed-at"
	HeaderOriginalTopic = "x-original-topic"
)

// ErrNotDeadLetter означает, что сообщение в DLQ не содержит конверта outbox.
var ErrNotDeadLetter = errors.New("message is not an outbox dead letter")

// Envelope — формат сообщения, которое outbox публикует в topic.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage, at time.Time) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   at.UTC(),
	}
}

// Key возвращает ключ партиционирования: id агрегата или id сообщения.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// DecodeEnvelope разбирает конверт из сообщения Kafka.
func DecodeEnvelope(msg *sarama.ConsumerMessage) (Envelope, error) {
	var envelope Envelope
	if msg == nil {
		return envelope, fmt.Errorf("decode envelope: nil message")
	}
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return envelope, fmt.Errorf("decode envelope: %w", err)
	}
	return envelope, nil
}

// DecodeDeadLetter достаёт DeadLetter из сообщения DLQ. Поля конверта
// заполняют пробелы в письме.
func DecodeDeadLetter(msg *sarama.ConsumerMessage) (domain.DeadLetter, error) {
	var letter domain.DeadLetter

	envelope, err := DecodeEnvelope(msg)
	if err != nil {
		return letter, fmt.Errorf("%w: %v", ErrNotDeadLetter, err)
	}
	if isEmptyJSON(envelope.Payload) {
		return letter, ErrNotDeadLetter
	}
	if err := json.Unmarshal(envelope.Payload, &letter); err != nil {
		return letter, fmt.Errorf("decode dead letter: %w", err)
	}
	if isEmptyJSON(letter.Payload) {
		return letter, fmt.Errorf("dead letter %s: original payload is empty", firstNonEmpty(letter.OutboxID, envelope.ID))
	}

	letter.OutboxID = firstNonEmpty(letter.OutboxID, envelope.ID)
	letter.AggregateType = firstNonEmpty(letter.AggregateType, envelope.AggregateType)
	letter.AggregateID = firstNonEmpty(letter.AggregateID, envelope.AggregateID)
	letter.EventType = firstNonEmpty(letter.EventType, envelope.EventType)
	return letter, nil
}

// ReplayMessage собирает сообщение для повторной публикации письма в topic.
func ReplayMessage(letter domain.DeadLetter, topic string, at time.Time) (*sarama.ProducerMessage, error) {
	envelope := NewEnvelope(letter.Message(), at)
	value, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode replay envelope: %w", err)
	}

	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(envelope.Key()),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(envelope.EventType)},
			{Key: []byte(HeaderAggregateType), Value: []byte(envelope.AggregateType)},
			{Key: []byte(HeaderOriginalTopic), Value: []byte(TopicDeadLetterQueue)},
			{Key: []byte(HeaderReplayedAt), Value: []byte(at.UTC().Format(time.RFC3339))},
		},
		Timestamp: at.UTC(),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
