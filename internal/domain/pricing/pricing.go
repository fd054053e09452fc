// Package pricing computes charged prices. It performs no I/O.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/tifstore/topup-orders/internal/domain/catalog"
	"github.com/tifstore/topup-orders/internal/domain/promo"
)

var hundred = decimal.NewFromInt(100)

// Charge applies a percentage discount to a list price given in the smallest
// currency unit. The percentage is clamped to [0, 100] and the result is
// rounded half-up, so 0 <= result <= price for any non-negative price.
func Charge(price int64, pct decimal.Decimal) int64 {
	if price <= 0 {
		return 0
	}
	pct = promo.Clamp(pct)
	p := decimal.NewFromInt(price)
	charged := p.Mul(hundred.Sub(pct)).Div(hundred).Round(0)
	if charged.GreaterThan(p) {
		return price
	}
	return charged.IntPart()
}

// Quote is a priced product.
type Quote struct {
	ProductID string
	ListPrice int64
	Charged   int64
	Promo     promo.Resolution
}

// Discount returns the amount taken off the list price.
func (q Quote) Discount() int64 {
	return q.ListPrice - q.Charged
}

// Price combines a product with its resolved promo. Product.Discount and
// OriginalPrice are display fields and are not consulted.
func Price(p *catalog.Product, res promo.Resolution) Quote {
	return Quote{
		ProductID: p.ID,
		ListPrice: p.Price,
		Charged:   Charge(p.Price, res.Percent),
		Promo:     res,
	}
}
