// Package finance estimates monthly payments and decides which promotional
// financing options a quote may be offered.
package finance

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/harborline/quotebuilder/pkg/promotions"
	"github.com/harborline/quotebuilder/pkg/quote"
)

// Config holds the dealer's financing defaults.
type Config struct {
	// Minimum is the smallest financed amount for which financing-dependent
	// promotions are offered.
	Minimum        float64
	DefaultRate    float64
	DefaultTerm    int
	DeferredMonths int
}

func DefaultConfig() Config {
	return Config{Minimum: 5000, DefaultRate: 7.99, DefaultTerm: 60, DeferredMonths: 6}
}

// MonthlyPayment is the fixed-rate amortized payment, rounded to cents. The
// second result is false when there is nothing to finance (principal or term
// not positive).
func MonthlyPayment(principal, annualRatePct float64, termMonths int) (float64, bool) {
	if principal <= 0 || termMonths <= 0 || math.IsNaN(principal) || math.IsInf(principal, 0) {
		return 0, false
	}
	n := float64(termMonths)
	r := annualRatePct / 100 / 12

	var payment float64
	if r == 0 {
		payment = principal / n
	} else {
		pow := math.Pow(1+r, n)
		payment = principal * r * pow / (pow - 1)
	}
	if math.IsNaN(payment) || math.IsInf(payment, 0) {
		return 0, false
	}
	return round(payment), true
}

func round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Eligible reports whether financed meets the minimum.
func Eligible(financed, minimum float64) bool {
	return financed >= minimum
}

// Offer is a promotional option the customer may pick.
type Offer struct {
	Option       quote.PromoOption `json:"option"`
	Rate         float64           `json:"rate,omitempty"`
	Term         int               `json:"term,omitempty"`
	Amount       float64           `json:"amount,omitempty"`
	DisplayValue string            `json:"displayValue"`
}

// Details converts the offer into the record kept on the quote.
func (o Offer) Details() *quote.PromoDetails {
	return &quote.PromoDetails{Option: o.Option, Rate: o.Rate, Term: o.Term, DisplayValue: o.DisplayValue}
}

// Offers lists the options to show for a quote financing financed. Options
// that need financing are left out entirely below the minimum.
func (c Config) Offers(financed float64, b promotions.Benefits) []Offer {
	var out []Offer
	if Eligible(financed, c.Minimum) {
		deferred := c.DeferredMonths
		if b.DeferredMonths > 0 {
			deferred = b.DeferredMonths
		}
		if deferred > 0 {
			out = append(out, Offer{
				Option:       quote.PromoNoPayments,
				Rate:         c.DefaultRate,
				Term:         c.DefaultTerm,
				DisplayValue: fmt.Sprintf("No payments for %d months", deferred),
			})
		}
		if b.HasFinancing() {
			out = append(out, Offer{
				Option:       quote.PromoSpecialFinancing,
				Rate:         b.FinancingRate,
				Term:         b.FinancingTerm,
				DisplayValue: fmt.Sprintf("%.2f%% APR for %d months", b.FinancingRate, b.FinancingTerm),
			})
		}
	}
	if b.RebateAmount > 0 {
		out = append(out, Offer{
			Option:       quote.PromoCashRebate,
			Amount:       b.RebateAmount,
			DisplayValue: fmt.Sprintf("$%s cash rebate", decimal.NewFromFloat(b.RebateAmount).StringFixed(0)),
		})
	}
	return out
}

// Offered reports whether option is among offers.
func Offered(offers []Offer, option quote.PromoOption) (Offer, bool) {
	for _, o := range offers {
		if o.Option == option {
			return o, true
		}
	}
	return Offer{}, false
}

// Payment is the estimate shown next to a quote total.
type Payment struct {
	Principal  float64 `json:"principal"`
	Rate       float64 `json:"rate"`
	Term       int     `json:"term"`
	Monthly    float64 `json:"monthly"`
	Total      float64 `json:"total"`
	Interest   float64 `json:"interest"`
	Applicable bool    `json:"applicable"`
}

// Estimate prices financed with the chosen promotion's terms, or the
// defaults when the choice does not carry its own rate.
func (c Config) Estimate(financed float64, details *quote.PromoDetails) Payment {
	p := Payment{Principal: round(financed), Rate: c.DefaultRate, Term: c.DefaultTerm}
	if details != nil && details.Option == quote.PromoSpecialFinancing && details.Term > 0 {
		p.Rate, p.Term = details.Rate, details.Term
	}
	monthly, ok := MonthlyPayment(financed, p.Rate, p.Term)
	if !ok {
		return p
	}
	p.Monthly = monthly
	p.Applicable = true
	total := decimal.NewFromFloat(monthly).Mul(decimal.NewFromInt(int64(p.Term)))
	p.Total = total.Round(2).InexactFloat64()
	interest := total.Sub(decimal.NewFromFloat(financed)).Round(2)
	if interest.IsNegative() {
		interest = decimal.Zero
	}
	p.Interest = interest.InexactFloat64()
	return p
}
