package steps

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harborline/quotebuilder/pkg/quote"
)

func base() quote.Configuration {
	return quote.Configuration{Motor: &quote.Motor{ID: "m1", Horsepower: 90}}
}

func TestEvaluateRouting(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *quote.Configuration)
		want     Route
		complete bool
	}{
		{
			name:   "empty goes to motor",
			mutate: func(c *quote.Configuration) { c.Motor = nil },
			want:   RouteMotor,
		},
		{
			name:   "motor without path goes to path",
			mutate: func(c *quote.Configuration) {},
			want:   RoutePath,
		},
		{
			name:   "installed without boat info goes to boat info",
			mutate: func(c *quote.Configuration) { c.PurchasePath = quote.PathInstalled },
			want:   RouteBoatInfo,
		},
		{
			name: "installed with trade-in still goes to boat info",
			mutate: func(c *quote.Configuration) {
				c.PurchasePath = quote.PathInstalled
				c.TradeInInfo = &quote.TradeInInfo{}
				c.FuelTankConfig = &quote.FuelTankConfig{}
			},
			want: RouteBoatInfo,
		},
		{
			name: "installed with boat info goes to install",
			mutate: func(c *quote.Configuration) {
				c.PurchasePath = quote.PathInstalled
				c.BoatInfo = &quote.BoatInfo{Make: "Lund"}
			},
			want: RouteInstall,
		},
		{
			name:   "loose skips boat info",
			mutate: func(c *quote.Configuration) { c.PurchasePath = quote.PathLoose },
			want:   RouteTradeIn,
		},
		{
			name: "loose with trade-in goes to fuel tank",
			mutate: func(c *quote.Configuration) {
				c.PurchasePath = quote.PathLoose
				c.TradeInInfo = &quote.TradeInInfo{HasTradeIn: false}
			},
			want: RouteFuelTank,
		},
		{
			name: "loose complete goes to summary",
			mutate: func(c *quote.Configuration) {
				c.PurchasePath = quote.PathLoose
				c.TradeInInfo = &quote.TradeInInfo{}
				c.FuelTankConfig = &quote.FuelTankConfig{}
			},
			want:     RouteSummary,
			complete: true,
		},
		{
			name: "installed complete goes to summary",
			mutate: func(c *quote.Configuration) {
				c.PurchasePath = quote.PathInstalled
				c.BoatInfo = &quote.BoatInfo{}
				c.InstallConfig = &quote.InstallConfig{}
				c.TradeInInfo = &quote.TradeInInfo{}
				c.FuelTankConfig = &quote.FuelTankConfig{}
			},
			want:     RouteSummary,
			complete: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			ev := Evaluate(c)
			assert.Equal(t, tt.want, ev.NextRoute)
			assert.Equal(t, tt.complete, ev.IsComplete)
			assert.Equal(t, quote.TotalSteps, ev.TotalSteps)
		})
	}
}

func TestEvaluateIgnoresCompletedStepsSet(t *testing.T) {
	c := base()
	c.PurchasePath = quote.PathInstalled
	// Claimed complete, but the fields are missing.
	c.CompletedSteps = []int{1, 2, 3, 4, 5, 6}

	ev := Evaluate(c)
	assert.False(t, ev.IsComplete)
	assert.Equal(t, RouteBoatInfo, ev.NextRoute)
	assert.Equal(t, quote.StepBoatInfo, ev.NextStep)
}

func TestProgressCounts(t *testing.T) {
	c := base()
	ev := Evaluate(c)
	assert.Equal(t, 1, ev.CompletedCount)
	assert.Equal(t, 16, ev.Percentage)
	assert.False(t, ev.HasPath)

	c.PurchasePath = quote.PathLoose
	ev = Evaluate(c)
	// motor, path, and the two steps the loose path skips
	assert.Equal(t, 4, ev.CompletedCount)
	assert.True(t, ev.HasPath)
	assert.False(t, ev.HasRequiredInfo)

	c.TradeInInfo = &quote.TradeInInfo{}
	c.FuelTankConfig = &quote.FuelTankConfig{}
	ev = Evaluate(c)
	assert.Equal(t, 6, ev.CompletedCount)
	assert.Equal(t, 100, ev.Percentage)
	assert.True(t, ev.HasRequiredInfo)
}

func TestSatisfiedOrder(t *testing.T) {
	c := base()
	c.PurchasePath = quote.PathInstalled
	c.FuelTankConfig = &quote.FuelTankConfig{}
	c.BoatInfo = &quote.BoatInfo{}

	assert.Equal(t, []int{quote.StepMotor, quote.StepPath, quote.StepBoatInfo, quote.StepFuelTank}, Satisfied(c))
}
