package domain

import (
	"encoding/json"
	"time"
)

// Типы событий заказа, публикуемых через transactional outbox.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderPaid          = "order.paid"

	AggregateOrder = "order"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OrderEventPayload — тело событий заказа.
type OrderEventPayload struct {
	OrderID       string        `json:"order_id"`
	OrderNumber   string        `json:"order_number"`
	UserID        string        `json:"user_id"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Total         string        `json:"total"`
	Note          string        `json:"note,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

// NewOrderEventPayload собирает тело события из заказа.
func NewOrderEventPayload(order Order, note string, at time.Time) OrderEventPayload {
	return OrderEventPayload{
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Total:         order.Total.StringFixed(2),
		Note:          note,
		OccurredAt:    at,
	}
}

// DeadLetter — конверт сообщения, отправленного в DLQ после исчерпания попыток.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

// Message восстанавливает исходное outbox-сообщение из конверта.
func (d DeadLetter) Message() OutboxMessage {
	return OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       []byte(d.Payload),
	}
}
