package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/techstore/storefront/internal/domain"
)

var fixedTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var envelope Envelope
		if err := json.Unmarshal(val, &envelope); err != nil {
			return err
		}
		if envelope.ID != "outbox-1" || envelope.EventType != domain.EventOrderCreated {
			return sarama.ErrInvalidMessage
		}
		if !envelope.PublishedAt.Equal(fixedTime) {
			return sarama.ErrInvalidMessage
		}
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer), TopicOrderEvents, fixedClock)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-123",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"status":"pending"}`),
	})
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer), TopicOrderEvents, fixedClock)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-234",
		EventType:     domain.EventOrderStatusChanged,
		Payload:       []byte(`{"status":"cancelled"}`),
	})
	require.Error(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, "", nil)
	require.Equal(t, TopicOrderEvents, publisher.Topic())
	require.Error(t, publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}))
}

func TestEnvelope_KeyFallsBackToID(t *testing.T) {
	t.Parallel()

	require.Equal(t, "order-1", Envelope{ID: "m-1", AggregateID: "order-1"}.Key())
	require.Equal(t, "m-1", Envelope{ID: "m-1"}.Key())
}

func dlqMessage(t *testing.T, letter domain.DeadLetter, envelopeID string) *sarama.ConsumerMessage {
	t.Helper()

	payload, err := json.Marshal(letter)
	require.NoError(t, err)
	value, err := json.Marshal(NewEnvelope(domain.OutboxMessage{
		ID:            envelopeID,
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-9",
		EventType:     domain.EventOrderPaid,
		Payload:       payload,
	}, fixedTime))
	require.NoError(t, err)

	return &sarama.ConsumerMessage{Topic: TopicDeadLetterQueue, Value: value}
}

func TestDecodeDeadLetter(t *testing.T) {
	t.Parallel()

	msg := dlqMessage(t, domain.DeadLetter{
		Payload:      json.RawMessage(`{"order_id":"order-9"}`),
		PublishError: "broker down",
	}, "outbox-9")

	letter, err := DecodeDeadLetter(msg)
	require.NoError(t, err)
	require.Equal(t, "outbox-9", letter.OutboxID)
	require.Equal(t, "order-9", letter.AggregateID)
	require.Equal(t, domain.EventOrderPaid, letter.EventType)
	require.Equal(t, "broker down", letter.PublishError)
	require.JSONEq(t, `{"order_id":"order-9"}`, string(letter.Payload))
}

func TestDecodeDeadLetter_Rejects(t *testing.T) {
	t.Parallel()

	_, err := DecodeDeadLetter(&sarama.ConsumerMessage{Value: []byte("not json")})
	require.ErrorIs(t, err, ErrNotDeadLetter)

	_, err = DecodeDeadLetter(&sarama.ConsumerMessage{Value: []byte(`{"id":"x"}`)})
	require.ErrorIs(t, err, ErrNotDeadLetter)

	_, err = DecodeDeadLetter(dlqMessage(t, domain.DeadLetter{OutboxID: "outbox-1"}, "outbox-1"))
	require.Error(t, err)
}

func TestReplayMessage(t *testing.T) {
	t.Parallel()

	letter := domain.DeadLetter{
		OutboxID:      "outbox-5",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-5",
		EventType:     domain.EventOrderStatusChanged,
		Payload:       json.RawMessage(`{"status":"shipped"}`),
	}

	msg, err := ReplayMessage(letter, TopicOrderEvents, fixedTime)
	require.NoError(t, err)
	require.Equal(t, TopicOrderEvents, msg.Topic)

	key, err := msg.Key.Encode()
	require.NoError(t, err)
	require.Equal(t, "order-5", string(key))

	value, err := msg.Value.Encode()
	require.NoError(t, err)
	var envelope Envelope
	require.NoError(t, json.Unmarshal(value, &envelope))
	require.Equal(t, "outbox-5", envelope.ID)
	require.JSONEq(t, `{"status":"shipped"}`, string(envelope.Payload))
	require.Len(t, msg.Headers, 4)
}
