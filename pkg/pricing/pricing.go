// Package pricing turns a catalog item and its matched promotion rules into
// a displayed price, and a quote configuration into totals.
package pricing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/harborline/quotebuilder/pkg/catalog"
	"github.com/harborline/quotebuilder/pkg/promotions"
	"github.com/harborline/quotebuilder/pkg/quote"
)

var (
	compositionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotebuilder_price_compositions_total",
		Help: "Catalog item prices composed",
	})
	clampedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotebuilder_price_clamped_total",
		Help: "Compositions whose discounts exceeded the starting price",
	})
)

var hundred = decimal.NewFromInt(100)

// Result is the priced view of one catalog item.
type Result struct {
	BasePrice      float64  `json:"basePrice"`
	StartingPrice  float64  `json:"startingPrice"`
	EffectivePrice float64  `json:"effectivePrice"`
	Savings        float64  `json:"savings"`
	AppliedLabels  []string `json:"appliedLabels,omitempty"`
}

// Compose folds matched rules over the item's starting price in the order
// given. Within a rule the percentage comes off before the fixed amount. A
// rule with no discount of its own uses its promotion's discount, applied at
// most once per promotion however many such rules match. The result is
// clamped at zero and rounded to cents.
func Compose(item catalog.Motor, matched []promotions.Matched) Result {
	compositionsTotal.Inc()

	base := item.ListPrice()
	start := item.StartingPrice()
	price := decimal.NewFromFloat(start)

	var labels []string
	seen := make(map[string]bool)
	fellBack := make(map[string]bool)
	for _, m := range matched {
		pct, fixed, promoLevel := discounts(m)
		if promoLevel {
			if fellBack[m.Promotion.ID] {
				continue
			}
			fellBack[m.Promotion.ID] = true
		}
		if pct != 0 {
			price = price.Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(pct).Div(hundred)))
		}
		if fixed != 0 {
			price = price.Sub(decimal.NewFromFloat(fixed))
		}

		if label := m.Promotion.BadgeText; label != "" && !seen[m.Promotion.ID] {
			seen[m.Promotion.ID] = true
			labels = append(labels, label)
		}
	}

	if price.IsNegative() {
		clampedTotal.Inc()
		price = decimal.Zero
	}
	effective := Round(price.InexactFloat64())

	savings := Round(base - effective)
	if savings < 0 {
		savings = 0
	}

	return Result{
		BasePrice:      base,
		StartingPrice:  start,
		EffectivePrice: effective,
		Savings:        savings,
		AppliedLabels:  labels,
	}
}

func discounts(m promotions.Matched) (pct, fixed float64, promoLevel bool) {
	pct, fixed = m.Rule.DiscountPercentage, m.Rule.DiscountFixedAmount
	if pct == 0 && fixed == 0 {
		return m.Promotion.DiscountPercentage, m.Promotion.DiscountFixedAmount, true
	}
	return pct, fixed, false
}

// Round rounds to cents, half away from zero.
func Round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// MotorSnapshot builds the motor record stored in a quote configuration.
func MotorSnapshot(item catalog.Motor, r Result) *quote.Motor {
	return &quote.Motor{
		ID:            item.ID,
		Horsepower:    item.Horsepower,
		Model:         item.Label(),
		Family:        item.Family,
		BasePrice:     r.BasePrice,
		SalePrice:     item.OfferPrice(),
		Price:         r.EffectivePrice,
		AppliedPromos: append([]string(nil), r.AppliedLabels...),
	}
}
