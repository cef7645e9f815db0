package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsVersionConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "order version conflict",
			err:  ErrOrderVersionConflict,
			want: true,
		},
		{
			name: "wrapped product version conflict",
			err:  fmt.Errorf("save: %w", ErrProductVersionConflict),
			want: true,
		},
		{
			name: "other error",
			err:  ErrOrderNotFound,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsVersionConflict(tt.err); got != tt.want {
				t.Errorf("IsVersionConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsIdempotencyConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "idempotency already exists", err: ErrIdempotencyKeyAlreadyExists, want: true},
		{name: "idempotency hash mismatch", err: ErrIdempotencyHashMismatch, want: true},
		{name: "wrapped idempotency conflict", err: errors.Join(ErrIdempotencyHashMismatch, errors.New("extra context")), want: true},
		{name: "non idempotency error", err: ErrOrderNotFound, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsIdempotencyConflict(tt.err); got != tt.want {
				t.Errorf("IsIdempotencyConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorKinds(t *testing.T) {
	kinds := map[error]error{
		ErrProductNotFound:    ErrNotFound,
		ErrOrderNotFound:      ErrNotFound,
		ErrUserNotFound:       ErrNotFound,
		ErrOrderAlreadyPaid:   ErrConflict,
		ErrSKUTaken:           ErrConflict,
		ErrEmailTaken:         ErrConflict,
		ErrItemsRequired:      ErrValidation,
		ErrInvalidCredentials: ErrUnauthenticated,
		ErrAccountDisabled:    ErrForbidden,
	}
	for err, kind := range kinds {
		if !errors.Is(err, kind) {
			t.Errorf("%v must wrap %v", err, kind)
		}
	}
	if ErrOrderNotFound.Error() != "order not found" {
		t.Fatalf("unexpected message: %s", ErrOrderNotFound)
	}
}

func TestProductErrorUnwrap(t *testing.T) {
	err := error(&ProductError{ProductID: "p-1", Name: "Phone X", Err: ErrInsufficientStock})

	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatal("product error must unwrap to its cause")
	}
	var productErr *ProductError
	if !errors.As(err, &productErr) || productErr.ProductID != "p-1" {
		t.Fatalf("unexpected product error: %v", err)
	}
	if err.Error() != "product Phone X: insufficient stock" {
		t.Fatalf("unexpected message: %s", err)
	}

	anonymous := &ProductError{ProductID: "p-2", Err: ErrProductNotFound}
	if anonymous.Error() != "product p-2: product not found" {
		t.Fatalf("unexpected message: %s", anonymous)
	}
}
