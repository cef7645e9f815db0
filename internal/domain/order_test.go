package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/techstore/storefront/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	order := domain.Order{
		ID:     "order-1",
		Number: "ORD-20260301-1234",
		UserID: "user-1",
		Items: []domain.LineItem{
			{ProductID: "p-1", Name: "Phone", UnitPrice: decimal.RequireFromString("199.99"), Quantity: 5},
		},
		ShippingCost:  decimal.NewFromInt(0),
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		History:       []domain.StatusEntry{{Status: domain.OrderStatusPending, At: now, Note: "order created"}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	order.RecomputeTotals()
	return order
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
	if !order.Total.Equal(decimal.RequireFromString("999.95")) {
		t.Fatalf("unexpected total: %s", order.Total)
	}
}

func TestOrderValidateInvariants_TotalMismatch(t *testing.T) {
	order := makeOrder()
	order.Total = order.Total.Add(decimal.RequireFromString("0.01"))

	errs := order.ValidateInvariants()
	if !containsErr(errs, domain.ErrTotalMismatch) {
		t.Fatalf("expected total mismatch, got %v", errs)
	}
}

func TestOrderValidateInvariants_Items(t *testing.T) {
	order := makeOrder()
	order.Items[0].Quantity = 0

	errs := order.ValidateInvariants()
	if !containsErr(errs, domain.ErrItemQtyInvalid) {
		t.Fatalf("expected qty error, got %v", errs)
	}
	if !containsErr(errs, domain.ErrSubtotalMismatch) {
		t.Fatalf("expected subtotal mismatch, got %v", errs)
	}

	empty := makeOrder()
	empty.Items = nil
	empty.RecomputeTotals()
	if !containsErr(empty.ValidateInvariants(), domain.ErrItemsRequired) {
		t.Fatal("expected items required error")
	}
}

func TestOrderValidateInvariants_HistoryMustMatchStatus(t *testing.T) {
	order := makeOrder()
	order.Status = domain.OrderStatusProcessing

	if !containsErr(order.ValidateInvariants(), domain.ErrHistoryMismatch) {
		t.Fatal("expected history mismatch")
	}
}

func TestOrderRecomputeTotals_FixedPoint(t *testing.T) {
	order := makeOrder()
	order.Items = []domain.LineItem{
		{ProductID: "a", UnitPrice: decimal.RequireFromString("0.10"), Quantity: 3},
		{ProductID: "b", UnitPrice: decimal.RequireFromString("0.20"), Quantity: 1},
	}
	order.ShippingCost = decimal.NewFromInt(50)
	order.RecomputeTotals()

	if !order.Subtotal.Equal(decimal.RequireFromString("0.50")) {
		t.Fatalf("unexpected subtotal: %s", order.Subtotal)
	}
	if !order.Total.Equal(decimal.RequireFromString("50.50")) {
		t.Fatalf("unexpected total: %s", order.Total)
	}
}

func TestOrderAppendStatus_StampsOnce(t *testing.T) {
	order := makeOrder()
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	order.AppendStatus(domain.OrderStatusShipped, "handed to carrier", t1)
	order.AppendStatus(domain.OrderStatusShipped, "re-scan", t2)

	if order.ShippedAt == nil || !order.ShippedAt.Equal(t1) {
		t.Fatalf("shipped timestamp must be set once, got %v", order.ShippedAt)
	}
	if len(order.History) != 3 {
		t.Fatalf("unexpected history length: %d", len(order.History))
	}
	if order.Status != domain.OrderStatusShipped {
		t.Fatalf("unexpected status: %s", order.Status)
	}
	if order.DeliveredAt != nil {
		t.Fatal("delivered timestamp must stay empty")
	}
}

func TestParseOrderStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    domain.OrderStatus
		wantErr bool
	}{
		{raw: "pending", want: domain.OrderStatusPending},
		{raw: " Shipped ", want: domain.OrderStatusShipped},
		{raw: "entregado", want: domain.OrderStatusDelivered},
		{raw: "reembolsado", want: domain.OrderStatusRefunded},
		{raw: "canceled", want: domain.OrderStatusCancelled},
		{raw: "lost", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := domain.ParseOrderStatus(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, domain.ErrInvalidStatus) {
					t.Fatalf("expected ErrInvalidStatus, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]domain.OrderStatus{
		{domain.OrderStatusPending, domain.OrderStatusProcessing},
		{domain.OrderStatusPending, domain.OrderStatusCancelled},
		{domain.OrderStatusProcessing, domain.OrderStatusShipped},
		{domain.OrderStatusProcessing, domain.OrderStatusRefunded},
		{domain.OrderStatusShipped, domain.OrderStatusDelivered},
		{domain.OrderStatusDelivered, domain.OrderStatusRefunded},
	}
	for _, pair := range allowed {
		if !domain.CanTransition(pair[0], pair[1]) {
			t.Errorf("%s -> %s must be allowed", pair[0], pair[1])
		}
	}

	denied := [][2]domain.OrderStatus{
		{domain.OrderStatusPending, domain.OrderStatusDelivered},
		{domain.OrderStatusPending, domain.OrderStatusPending},
		{domain.OrderStatusShipped, domain.OrderStatusProcessing},
		{domain.OrderStatusCancelled, domain.OrderStatusProcessing},
		{domain.OrderStatusRefunded, domain.OrderStatusCancelled},
	}
	for _, pair := range denied {
		if domain.CanTransition(pair[0], pair[1]) {
			t.Errorf("%s -> %s must be denied", pair[0], pair[1])
		}
	}
}

func containsErr(errs []error, target error) bool {
	for _, err := range errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
