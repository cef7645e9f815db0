package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — заказ оплачен и собирается.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ получен покупателем.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded — средства возвращены покупателю.
	OrderStatusRefunded OrderStatus = "refunded"
)

// AllOrderStatuses перечисляет допустимые статусы в порядке жизненного цикла.
var AllOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// Испанские названия статусов из исходного API витрины.
var statusAliases = map[string]OrderStatus{
	"pendiente":   OrderStatusPending,
	"procesando":  OrderStatusProcessing,
	"enviado":     OrderStatusShipped,
	"entregado":   OrderStatusDelivered,
	"cancelado":   OrderStatusCancelled,
	"reembolsado": OrderStatusRefunded,
	"canceled":    OrderStatusCancelled,
}

// Valid проверяет, что статус входит в перечисление.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

// ParseOrderStatus разбирает статус, принимая английские и испанские названия.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	status := OrderStatus(value)
	if status.Valid() {
		return status, nil
	}
	if alias, ok := statusAliases[value]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered:  {OrderStatusRefunded},
}

// CanTransition проверяет переход по графу pending → processing → shipped → delivered
// с боковыми ветками cancelled и refunded.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentMethodType — способ оплаты, выбранный покупателем.
type PaymentMethodType string

const (
	PaymentMethodCard     PaymentMethodType = "tarjeta"
	PaymentMethodPayPal   PaymentMethodType = "paypal"
	PaymentMethodOXXO     PaymentMethodType = "oxxo"
	PaymentMethodTransfer PaymentMethodType = "transferencia"
)

// MaxItemQuantity — верхняя граница количества одной позиции заказа.
const MaxItemQuantity = 1000

// LineItem — зафиксированный на момент покупки снимок товара.
type LineItem struct {
	ProductID string          `json:"productoId"`
	Name      string          `json:"nombre"`
	Image     string          `json:"imagen,omitempty"`
	UnitPrice decimal.Decimal `json:"precio"`
	Quantity  int             `json:"cantidad"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// StatusEntry — запись в истории статусов.
type StatusEntry struct {
	Status OrderStatus `json:"estado"`
	At     time.Time   `json:"fecha"`
	Note   string      `json:"nota,omitempty"`
}

// ShippingAddress — адрес доставки.
type ShippingAddress struct {
	FullName     string `json:"nombreCompleto"`
	Phone        string `json:"telefono"`
	Street       string `json:"calle"`
	Number       string `json:"numero,omitempty"`
	Neighborhood string `json:"colonia,omitempty"`
	City         string `json:"ciudad"`
	State        string `json:"estado"`
	PostalCode   string `json:"codigoPostal"`
	Country      string `json:"pais,omitempty"`
	References   string `json:"referencias,omitempty"`
}

// PaymentMethod — описание способа оплаты без чувствительных данных.
type PaymentMethod struct {
	Type       PaymentMethodType `json:"tipo"`
	LastDigits string            `json:"ultimosDigitos,omitempty"`
	Brand      string            `json:"marca,omitempty"`
}

// Tracking — данные отслеживания отправления.
type Tracking struct {
	Number  string `json:"numeroGuia,omitempty"`
	Carrier string `json:"paqueteria,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Order агрегирует состояние заказа, его позиции и историю статусов.
type Order struct {
	ID              string          `json:"id"`
	Number          string          `json:"numeroPedido"`
	UserID          string          `json:"userId"`
	Items           []LineItem      `json:"items"`
	ShippingAddress ShippingAddress `json:"direccionEnvio"`
	PaymentMethod   PaymentMethod   `json:"metodoPago"`
	Coupon          string          `json:"cupon,omitempty"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Discount        decimal.Decimal `json:"descuento"`
	ShippingCost    decimal.Decimal `json:"costoEnvio"`
	Tax             decimal.Decimal `json:"impuestos"`
	Total           decimal.Decimal `json:"total"`
	Status          OrderStatus     `json:"estado"`
	PaymentStatus   PaymentStatus   `json:"estadoPago"`
	TransactionID   string          `json:"transaccionId,omitempty"`
	History         []StatusEntry   `json:"historialEstados"`
	Tracking        *Tracking       `json:"rastreo,omitempty"`
	PaidAt          *time.Time      `json:"fechaPago,omitempty"`
	ShippedAt       *time.Time      `json:"fechaEnvio,omitempty"`
	DeliveredAt     *time.Time      `json:"fechaEntrega,omitempty"`
	Version         int64           `json:"-"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// RecomputeTotals пересчитывает подытоги позиций, subtotal и total.
func (o *Order) RecomputeTotals() {
	subtotal := decimal.Zero
	for i := range o.Items {
		o.Items[i].Subtotal = o.Items[i].UnitPrice.Mul(decimal.NewFromInt(int64(o.Items[i].Quantity)))
		subtotal = subtotal.Add(o.Items[i].Subtotal)
	}
	o.Subtotal = subtotal
	o.Total = subtotal.Sub(o.Discount).Add(o.ShippingCost).Add(o.Tax)
}

// AppendStatus добавляет запись в историю и выставляет текущий статус.
// Даты отправки и доставки проставляются только один раз.
func (o *Order) AppendStatus(status OrderStatus, note string, at time.Time) {
	o.History = append(o.History, StatusEntry{Status: status, At: at, Note: note})
	o.Status = status

	switch status {
	case OrderStatusShipped:
		if o.ShippedAt == nil {
			stamp := at
			o.ShippedAt = &stamp
		}
	case OrderStatusDelivered:
		if o.DeliveredAt == nil {
			stamp := at
			o.DeliveredAt = &stamp
		}
	}
	o.UpdatedAt = at
}

// ValidateInvariants проверяет инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	subtotal := decimal.Zero
	for _, item := range o.Items {
		if item.Quantity < 1 || item.Quantity > MaxItemQuantity {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, ErrPriceNegative)
		}
		if !item.Subtotal.Equal(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))) {
			errs = append(errs, ErrSubtotalMismatch)
		}
		subtotal = subtotal.Add(item.Subtotal)
	}
	if !subtotal.Equal(o.Subtotal) {
		errs = append(errs, ErrTotalMismatch)
	}

	expected := o.Subtotal.Sub(o.Discount).Add(o.ShippingCost).Add(o.Tax)
	if !expected.Equal(o.Total) {
		errs = append(errs, ErrTotalMismatch)
	}

	if !o.Status.Valid() {
		errs = append(errs, ErrInvalidStatus)
	}
	if len(o.History) == 0 || o.History[len(o.History)-1].Status != o.Status {
		errs = append(errs, ErrHistoryMismatch)
	}

	return errs
}

// OwnedBy сообщает, принадлежит ли заказ пользователю.
func (o Order) OwnedBy(userID string) bool {
	return userID != "" && o.UserID == userID
}

// OrderFilter задаёт выборку заказов.
type OrderFilter struct {
	UserID string
	Status OrderStatus
	Page   PageRequest
}
