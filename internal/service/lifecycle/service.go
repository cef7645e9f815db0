package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/techstore/storefront/internal/domain"
	"github.com/techstore/storefront/internal/metrics"
)

const (
	maxSaveAttempts   = 3
	defaultMineLimit  = 10
	defaultAdminLimit = 20
	paidNote          = "payment confirmed"
)

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics подключает метрики переходов и оплат.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет часы.
func WithClock(clock domain.Clock) Option {
	return func(s *Service) {
		s.now = clock
	}
}

// WithStrictTransitions включает (true) или отключает проверку графа статусов.
func WithStrictTransitions(strict bool) Option {
	return func(s *Service) {
		s.strict = strict
	}
}

// Service ведёт статусы заказа после создания и отвечает на запросы заказов.
type Service struct {
	orders  domain.OrderRepository
	strict  bool
	now     domain.Clock
	logger  *log.Entry
	metrics *metrics.StorefrontMetrics
}

// NewService создаёт сервис. По умолчанию переходы проверяются строго.
func NewService(orders domain.OrderRepository, opts ...Option) *Service {
	s := &Service{orders: orders, strict: true}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "lifecycle")
	}
	return s
}

// Strict сообщает, проверяется ли граф переходов.
func (s *Service) Strict() bool {
	return s.strict
}

// StatusUpdate — параметры смены статуса.
type StatusUpdate struct {
	Status   string
	Note     string
	Tracking *domain.Tracking
}

// AppendStatus добавляет запись в историю и меняет статус заказа.
// Статус вне перечисления даёт ErrInvalidStatus, запрещённый переход в строгом
// режиме даёт ErrInvalidTransition; в обоих случаях история не меняется.
func (s *Service) AppendStatus(ctx context.Context, orderID string, update StatusUpdate) (domain.Order, error) {
	status, err := domain.ParseOrderStatus(update.Status)
	if err != nil {
		return domain.Order{}, err
	}
	note := strings.TrimSpace(update.Note)

	order, err := s.mutate(ctx, orderID, func(order *domain.Order, now time.Time) ([]domain.OutboxMessage, error) {
		if s.strict && !domain.CanTransition(order.Status, status) {
			return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, status)
		}

		order.AppendStatus(status, note, now)
		if update.Tracking != nil {
			tracking := *update.Tracking
			order.Tracking = &tracking
		}
		if status == domain.OrderStatusRefunded && order.PaymentStatus == domain.PaymentStatusPaid {
			order.PaymentStatus = domain.PaymentStatusRefunded
		}

		event, err := newEvent(*order, domain.EventOrderStatusChanged, note, now)
		if err != nil {
			return nil, err
		}
		return []domain.OutboxMessage{event}, nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.RecordStatusTransition(string(status))
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"status":   status,
	}).Info("order status updated")
	return order, nil
}

// MarkPaid регистрирует оплату. В строгом режиме pending-заказ переходит в
// processing, более поздние статусы не меняются, отменённый или возвращённый
// заказ отклоняется. В нестрогом режиме статус всегда становится processing.
func (s *Service) MarkPaid(ctx context.Context, orderID, transactionRef string) (domain.Order, error) {
	transactionRef = strings.TrimSpace(transactionRef)
	var moved bool

	order, err := s.mutate(ctx, orderID, func(order *domain.Order, now time.Time) ([]domain.OutboxMessage, error) {
		moved = false
		if s.strict {
			if order.PaymentStatus == domain.PaymentStatusPaid {
				return nil, domain.ErrOrderAlreadyPaid
			}
			if order.Status.Terminal() {
				return nil, fmt.Errorf("%w: cannot pay %s order", domain.ErrInvalidTransition, order.Status)
			}
		}

		paidAt := now
		order.PaymentStatus = domain.PaymentStatusPaid
		order.TransactionID = transactionRef
		order.PaidAt = &paidAt
		order.UpdatedAt = now

		if !s.strict || order.Status == domain.OrderStatusPending {
			order.AppendStatus(domain.OrderStatusProcessing, paidNote, now)
			moved = true
		}

		event, err := newEvent(*order, domain.EventOrderPaid, paidNote, now)
		if err != nil {
			return nil, err
		}
		return []domain.OutboxMessage{event}, nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.RecordPayment()
	if moved {
		s.metrics.RecordStatusTransition(string(domain.OrderStatusProcessing))
	}
	s.logger.WithFields(log.Fields{
		"order_id":       order.ID,
		"transaction_id": transactionRef,
	}).Info("order payment recorded")
	return order, nil
}

// mutate перечитывает заказ и повторяет изменение при конфликте версий.
func (s *Service) mutate(
	ctx context.Context,
	orderID string,
	change func(order *domain.Order, now time.Time) ([]domain.OutboxMessage, error),
) (domain.Order, error) {
	var lastErr error
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}

		events, err := change(&order, s.now.Now())
		if err != nil {
			return domain.Order{}, err
		}

		err = s.orders.Save(ctx, order, events...)
		if err == nil {
			order.Version++
			return order, nil
		}
		if !errors.Is(err, domain.ErrOrderVersionConflict) {
			return domain.Order{}, fmt.Errorf("save order: %w", err)
		}

		lastErr = err
		s.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt,
		}).Debug("order version conflict, reloading")
	}
	return domain.Order{}, lastErr
}

// Get возвращает заказ владельцу или администратору.
func (s *Service) Get(ctx context.Context, principal domain.Principal, orderID string) (domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !principal.IsAdmin() && !order.OwnedBy(principal.UserID) {
		return domain.Order{}, fmt.Errorf("order belongs to another user: %w", domain.ErrForbidden)
	}
	return order, nil
}

// ListMine возвращает заказы пользователя, новые первыми.
func (s *Service) ListMine(ctx context.Context, principal domain.Principal, page domain.PageRequest) (domain.Page[domain.Order], error) {
	if principal.UserID == "" {
		return domain.Page[domain.Order]{}, domain.ErrUnauthenticated
	}
	return s.orders.List(ctx, domain.OrderFilter{
		UserID: principal.UserID,
		Page:   page.Normalize(defaultMineLimit),
	})
}

// ListAll возвращает все заказы с необязательным фильтром по статусу.
func (s *Service) ListAll(ctx context.Context, principal domain.Principal, rawStatus string, page domain.PageRequest) (domain.Page[domain.Order], error) {
	if !principal.IsAdmin() {
		return domain.Page[domain.Order]{}, fmt.Errorf("admin role required: %w", domain.ErrForbidden)
	}

	filter := domain.OrderFilter{Page: page.Normalize(defaultAdminLimit)}
	if strings.TrimSpace(rawStatus) != "" {
		status, err := domain.ParseOrderStatus(rawStatus)
		if err != nil {
			return domain.Page[domain.Order]{}, err
		}
		filter.Status = status
	}
	return s.orders.List(ctx, filter)
}

func newEvent(order domain.Order, eventType, note string, at time.Time) (domain.OutboxMessage, error) {
	payload, err := json.Marshal(domain.NewOrderEventPayload(order, note, at))
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: domain.AggregateOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
