package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer)

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var decoded map[string]string
		if err := json.Unmarshal(val, &decoded); err != nil {
			return err
		}
		if decoded["order_id"] != "order-123" {
			return sarama.ErrInvalidMessage
		}
		return nil
	})

	err := producer.PublishEvent(TopicOrderEvents, "order-123", map[string]string{"order_id": "order-123"})
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishEvent(TopicOrderEvents, "order-123", map[string]string{})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, mockProducer.Close())
}

func TestProducer_PublishEventMarshalError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer)

	err := producer.PublishEvent(TopicOrderEvents, "k", make(chan int))
	require.Error(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestProducer_CheckWithoutClient(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer)

	require.NoError(t, producer.Check(context.Background()))

	var missing *Producer
	require.Error(t, missing.Check(context.Background()))
	require.NoError(t, missing.Close())
	require.NoError(t, producer.Close())
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(nil)
	require.Error(t, err)
}

func TestNewConfig(t *testing.T) {
	config := NewConfig()
	require.True(t, config.Producer.Idempotent)
	require.Equal(t, sarama.WaitForAll, config.Producer.RequiredAcks)
	require.Equal(t, 1, config.Net.MaxOpenRequests)
	require.True(t, config.Producer.Return.Successes)
}
