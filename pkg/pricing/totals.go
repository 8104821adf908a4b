package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/harborline/quotebuilder/pkg/promotions"
	"github.com/harborline/quotebuilder/pkg/quote"
)

// Totals is the line-item breakdown of a quote.
type Totals struct {
	Motor        float64 `json:"motor"`
	Options      float64 `json:"options"`
	Installation float64 `json:"installation"`
	FuelTank     float64 `json:"fuelTank"`
	Warranty     float64 `json:"warranty"`
	Battery      float64 `json:"battery"`
	TradeIn      float64 `json:"tradeIn"`
	Rebate       float64 `json:"rebate"`
	Subtotal     float64 `json:"subtotal"`
	Financed     float64 `json:"financed"`
}

// QuoteTotals adds up c. Installation counts only on the installed path and
// the battery only on the loose path, so answers left over from a path the
// user switched away from do not leak into the price. The rebate is only
// taken when the cash rebate option was chosen.
func QuoteTotals(c quote.Configuration, b promotions.Benefits) Totals {
	var t Totals
	if c.Motor != nil {
		t.Motor = motorPrice(c.Motor)
	}
	for _, o := range c.SelectedOptions {
		if !o.IsIncluded && o.Price > 0 {
			t.Options += o.Price
		}
	}
	if c.PurchasePath == quote.PathInstalled && c.InstallConfig != nil {
		t.Installation = c.InstallConfig.InstallationCost
	}
	if c.FuelTankConfig != nil && c.FuelTankConfig.NeedsTank {
		t.FuelTank = c.FuelTankConfig.TankPrice
	}
	if c.WarrantyConfig != nil {
		t.Warranty = c.WarrantyConfig.Price
	}
	if c.PurchasePath == quote.PathLoose && c.LooseMotorBattery != nil && c.LooseMotorBattery.WantsBattery {
		t.Battery = c.LooseMotorBattery.BatteryCost
	}
	t.TradeIn = c.TradeInInfo.Value()
	if c.PromoDetails != nil && c.PromoDetails.Option == quote.PromoCashRebate {
		t.Rebate = b.RebateAmount
	}

	sum := decimal.Zero
	for _, v := range []float64{t.Motor, t.Options, t.Installation, t.FuelTank, t.Warranty, t.Battery} {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	sum = sum.Sub(decimal.NewFromFloat(t.TradeIn)).Sub(decimal.NewFromFloat(t.Rebate))

	t.Subtotal = sum.Round(2).InexactFloat64()
	t.Financed = t.Subtotal
	if t.Financed < 0 {
		t.Financed = 0
	}
	return t
}

func motorPrice(m *quote.Motor) float64 {
	switch {
	case m.Price > 0:
		return m.Price
	case m.SalePrice > 0:
		return m.SalePrice
	}
	return m.BasePrice
}
