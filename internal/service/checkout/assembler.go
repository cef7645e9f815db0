package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/techstore/storefront/internal/domain"
	"github.com/techstore/storefront/internal/metrics"
	"github.com/techstore/storefront/internal/service/catalog"
)

const (
	maxPlacementAttempts = 3
	createdNote          = "order created"
)

// ItemRequest — позиция корзины.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// PlaceOrderInput — данные для оформления заказа. Адрес и способ оплаты
// проверяются транспортным слоем до вызова.
type PlaceOrderInput struct {
	UserID          string
	Items           []ItemRequest
	ShippingAddress domain.ShippingAddress
	PaymentMethod   domain.PaymentMethod
	Coupon          string
}

// Option настраивает Assembler.
type Option func(*Assembler)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(a *Assembler) {
		a.logger = logger
	}
}

// WithMetrics подключает метрики оформления.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(a *Assembler) {
		a.metrics = m
	}
}

// WithClock подменяет часы.
func WithClock(clock domain.Clock) Option {
	return func(a *Assembler) {
		a.now = clock
	}
}

// WithPricing задаёт правила доставки.
func WithPricing(p Pricing) Option {
	return func(a *Assembler) {
		a.pricing = p
	}
}

// WithNumberFunc подменяет генератор номеров заказа.
func WithNumberFunc(fn NumberFunc) Option {
	return func(a *Assembler) {
		if fn != nil {
			a.numbers = fn
		}
	}
}

// Assembler превращает корзину в заказ в одной транзакции: проверка
// наличия, снимок цен, списание остатков, создание заказа и событие
// order.created фиксируются вместе или не фиксируются вовсе.
type Assembler struct {
	txm     domain.TxManager
	pricing Pricing
	numbers NumberFunc
	now     domain.Clock
	logger  *log.Entry
	metrics *metrics.StorefrontMetrics
}

// NewAssembler создаёт сборщик заказов.
func NewAssembler(txm domain.TxManager, opts ...Option) *Assembler {
	a := &Assembler{
		txm:     txm,
		pricing: DefaultPricing(),
		numbers: RandomNumber,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = log.WithField("component", "checkout")
	}
	return a
}

// PlaceOrder оформляет заказ. Любая ошибка откатывает все изменения.
// Столкновение номера при вставке повторяет оформление целиком.
func (a *Assembler) PlaceOrder(ctx context.Context, in PlaceOrderInput) (domain.Order, error) {
	start := time.Now()

	if err := validateInput(in); err != nil {
		a.metrics.RecordOrderFailed(metrics.ReasonValidation, time.Since(start))
		return domain.Order{}, err
	}

	var (
		order domain.Order
		err   error
	)
	for attempt := 1; attempt <= maxPlacementAttempts; attempt++ {
		order, err = a.place(ctx, in)
		if !errors.Is(err, domain.ErrOrderNumberTaken) || attempt == maxPlacementAttempts {
			break
		}
		a.metrics.RecordOrderNumberRetry()
		a.logger.WithField("attempt", attempt).Warn("order number collision, retrying placement")
	}

	logger := a.logger.WithField("user_id", in.UserID)
	if err != nil {
		reason := failureReason(err)
		a.metrics.RecordOrderFailed(reason, time.Since(start))
		if reason == metrics.ReasonInternal {
			logger.WithError(err).Error("order placement failed")
		} else {
			logger.WithError(err).WithField("reason", reason).Info("order placement rejected")
		}
		return domain.Order{}, err
	}

	a.metrics.RecordOrderPlaced(time.Since(start))
	logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.Number,
		"total":        order.Total.StringFixed(2),
	}).Info("order placed")
	return order, nil
}

func (a *Assembler) place(ctx context.Context, in PlaceOrderInput) (domain.Order, error) {
	var placed domain.Order

	err := a.txm.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		ledger := catalog.NewLedger(tx.Products())

		ids := make([]string, 0, len(in.Items))
		for _, item := range in.Items {
			ids = append(ids, item.ProductID)
		}
		if err := ledger.Lock(ctx, ids); err != nil {
			return err
		}

		// Одна и та же позиция может встречаться в корзине несколько раз.
		demand := make(map[string]int, len(in.Items))
		items := make([]domain.LineItem, 0, len(in.Items))
		for _, req := range in.Items {
			product, err := ledger.Resolve(ctx, req.ProductID)
			if err != nil {
				return err
			}
			demand[product.ID] += req.Quantity
			available, err := ledger.CheckAvailability(ctx, product.ID, demand[product.ID])
			if err != nil {
				return err
			}
			if !available {
				return &domain.ProductError{ProductID: product.ID, Name: product.Name, Err: domain.ErrInsufficientStock}
			}
			items = append(items, domain.LineItem{
				ProductID: product.ID,
				Name:      product.Name,
				Image:     product.ImageRef(),
				UnitPrice: product.Price,
				Quantity:  req.Quantity,
			})
		}

		now := a.now.Now()
		order := domain.Order{
			ID:              uuid.NewString(),
			UserID:          in.UserID,
			Items:           items,
			ShippingAddress: in.ShippingAddress,
			PaymentMethod:   in.PaymentMethod,
			Coupon:          strings.TrimSpace(in.Coupon),
			Status:          domain.OrderStatusPending,
			PaymentStatus:   domain.PaymentStatusPending,
			Version:         1,
			CreatedAt:       now,
		}
		a.price(&order)

		for _, item := range order.Items {
			if err := ledger.ReserveStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		number, attempts, err := allocateNumber(ctx, tx.Orders(), a.numbers, now)
		if err != nil {
			return err
		}
		for i := 1; i < attempts; i++ {
			a.metrics.RecordOrderNumberRetry()
		}
		order.Number = number
		order.AppendStatus(domain.OrderStatusPending, createdNote, now)

		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return fmt.Errorf("assembled order is inconsistent: %w", errors.Join(errs...))
		}

		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}

		payload, err := json.Marshal(domain.NewOrderEventPayload(order, createdNote, now))
		if err != nil {
			return fmt.Errorf("marshal order created event: %w", err)
		}
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
			ID:            uuid.NewString(),
			AggregateType: domain.AggregateOrder,
			AggregateID:   order.ID,
			EventType:     domain.EventOrderCreated,
			Payload:       payload,
		}); err != nil {
			return fmt.Errorf("enqueue order created event: %w", err)
		}

		placed = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return placed, nil
}

// price считает подытоги, доставку, скидку, налог и итог по зафиксированным ценам.
func (a *Assembler) price(order *domain.Order) {
	subtotal := decimal.Zero
	for i := range order.Items {
		item := &order.Items[i]
		item.Subtotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(item.Subtotal)
	}

	order.Discount = a.pricing.Discount(order.Coupon, subtotal)
	order.ShippingCost = a.pricing.Shipping(subtotal)
	order.Tax = a.pricing.Tax(subtotal)
	order.RecomputeTotals()
}

func validateInput(in PlaceOrderInput) error {
	if strings.TrimSpace(in.UserID) == "" {
		return domain.ErrUserRequired
	}
	if len(in.Items) == 0 {
		return domain.ErrItemsRequired
	}
	for _, item := range in.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("product id is required: %w", domain.ErrValidation)
		}
		if item.Quantity < 1 || item.Quantity > domain.MaxItemQuantity {
			return &domain.ProductError{ProductID: item.ProductID, Err: domain.ErrItemQtyInvalid}
		}
	}
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return metrics.ReasonOutOfStock
	case errors.Is(err, domain.ErrProductInactive):
		return metrics.ReasonInactive
	case errors.Is(err, domain.ErrNotFound):
		return metrics.ReasonNotFound
	case errors.Is(err, domain.ErrValidation):
		return metrics.ReasonValidation
	case errors.Is(err, domain.ErrOrderNumberTaken):
		return metrics.ReasonNumberClash
	default:
		return metrics.ReasonInternal
	}
}
