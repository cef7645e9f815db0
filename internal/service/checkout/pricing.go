package checkout

import "github.com/shopspring/decimal"

// Pricing задаёт правила расчёта доставки.
type Pricing struct {
	// FreeShippingThreshold — subtotal, начиная с которого доставка бесплатна.
	FreeShippingThreshold decimal.Decimal
	// FlatShippingFee — фиксированная стоимость доставки ниже порога.
	FlatShippingFee decimal.Decimal
}

// DefaultPricing: бесплатная доставка от 999, иначе 50.
func DefaultPricing() Pricing {
	return Pricing{
		FreeShippingThreshold: decimal.NewFromInt(999),
		FlatShippingFee:       decimal.NewFromInt(50),
	}
}

// Shipping возвращает стоимость доставки для subtotal.
func (p Pricing) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		return decimal.Zero
	}
	return p.FlatShippingFee
}

// Discount возвращает скидку по купону. Купоны пока не поддерживаются,
// код сохраняется в заказе как есть.
func (p Pricing) Discount(_ string, _ decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

// Tax возвращает налог; цены каталога уже включают налоги.
func (p Pricing) Tax(_ decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}
