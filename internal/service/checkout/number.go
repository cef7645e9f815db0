package checkout

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/techstore/storefront/internal/domain"
)

const maxNumberAttempts = 5

// NumberFunc генерирует номер заказа на дату at.
type NumberFunc func(at time.Time) string

// RandomNumber строит номер вида ORD-YYYYMMDD-NNNN, где NNNN из 1000–9999.
func RandomNumber(at time.Time) string {
	return fmt.Sprintf("ORD-%s-%04d", at.UTC().Format("20060102"), 1000+rand.IntN(9000))
}

// allocateNumber подбирает свободный номер внутри транзакции.
func allocateNumber(ctx context.Context, orders domain.OrderTx, next NumberFunc, at time.Time) (string, int, error) {
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		number := next(at)
		exists, err := orders.NumberExists(ctx, number)
		if err != nil {
			return "", attempt, fmt.Errorf("check order number: %w", err)
		}
		if !exists {
			return number, attempt, nil
		}
	}
	return "", maxNumberAttempts, domain.ErrOrderNumberTaken
}
