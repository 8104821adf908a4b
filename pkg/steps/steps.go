// Package steps derives wizard progress and routing from a quote
// configuration. Everything here is computed from field presence, so a user
// who lands on a page through a bookmarked URL is routed the same way as one
// who clicked through.
package steps

import "github.com/harborline/quotebuilder/pkg/quote"

// Route is the page a consumer should render next.
type Route string

const (
	RouteMotor    Route = "/quote/motor-selection"
	RoutePath     Route = "/quote/purchase-path"
	RouteBoatInfo Route = "/quote/boat-info"
	RouteInstall  Route = "/quote/installation"
	RouteTradeIn  Route = "/quote/trade-in"
	RouteFuelTank Route = "/quote/fuel-tank"
	RouteSummary  Route = "/quote/summary"
)

// RouteFor maps a step number to its page.
func RouteFor(step int) Route {
	switch step {
	case quote.StepMotor:
		return RouteMotor
	case quote.StepPath:
		return RoutePath
	case quote.StepBoatInfo:
		return RouteBoatInfo
	case quote.StepTradeIn:
		return RouteTradeIn
	case quote.StepInstall:
		return RouteInstall
	case quote.StepFuelTank:
		return RouteFuelTank
	}
	return RouteSummary
}

// Evaluation is the progress snapshot for one configuration.
type Evaluation struct {
	HasMotor        bool  `json:"hasMotor"`
	HasPath         bool  `json:"hasPath"`
	HasRequiredInfo bool  `json:"hasRequiredInfo"`
	IsComplete      bool  `json:"isComplete"`
	CompletedCount  int   `json:"completedCount"`
	TotalSteps      int   `json:"totalSteps"`
	Percentage      int   `json:"percentage"`
	NextRoute       Route `json:"nextRoute"`
	NextStep        int   `json:"nextStep"`
}

// canonical is the fixed visiting order. Boat info and installation are
// only visited on the installed path.
var canonical = []int{
	quote.StepMotor,
	quote.StepPath,
	quote.StepBoatInfo,
	quote.StepInstall,
	quote.StepTradeIn,
	quote.StepFuelTank,
}

// Required reports whether step must be answered for the given path. With
// no path chosen yet the path-specific steps count as required.
func Required(step int, path quote.PurchasePath) bool {
	switch step {
	case quote.StepBoatInfo, quote.StepInstall:
		return path != quote.PathLoose
	case quote.StepMotor, quote.StepPath, quote.StepTradeIn, quote.StepFuelTank:
		return true
	}
	return false
}

// Answered reports whether the fields owned by step are present.
func Answered(c quote.Configuration, step int) bool {
	switch step {
	case quote.StepMotor:
		return c.Motor != nil
	case quote.StepPath:
		return c.PurchasePath.Valid()
	case quote.StepBoatInfo:
		return c.BoatInfo != nil
	case quote.StepInstall:
		return c.InstallConfig != nil
	case quote.StepTradeIn:
		return c.TradeInInfo != nil
	case quote.StepFuelTank:
		return c.FuelTankConfig != nil
	}
	return false
}

// Satisfied lists, in canonical order, the steps that are done for c: either
// answered, or not applicable once the loose path is chosen.
func Satisfied(c quote.Configuration) []int {
	var out []int
	for _, s := range canonical {
		if satisfied(c, s) {
			out = append(out, s)
		}
	}
	return out
}

func satisfied(c quote.Configuration, step int) bool {
	if c.PurchasePath.Valid() && !Required(step, c.PurchasePath) {
		return true
	}
	return Answered(c, step)
}

// Evaluate computes progress and the next route for c.
func Evaluate(c quote.Configuration) Evaluation {
	ev := Evaluation{
		HasMotor:   Answered(c, quote.StepMotor),
		HasPath:    Answered(c, quote.StepPath),
		TotalSteps: quote.TotalSteps,
	}

	ev.HasRequiredInfo = ev.HasPath && requiredInfo(c)
	ev.IsComplete = ev.HasMotor && ev.HasPath && ev.HasRequiredInfo
	ev.CompletedCount = len(Satisfied(c))
	ev.Percentage = ev.CompletedCount * 100 / ev.TotalSteps

	switch {
	case ev.IsComplete:
		ev.NextStep = quote.StepSummary
	case !ev.HasMotor:
		ev.NextStep = quote.StepMotor
	case !ev.HasPath:
		ev.NextStep = quote.StepPath
	default:
		ev.NextStep = firstMissing(c)
	}
	ev.NextRoute = RouteFor(ev.NextStep)
	return ev
}

// requiredInfo is the path-specific part of the completion tree:
//
//	installed: boatInfo AND installConfig AND tradeIn AND fuelTank
//	loose:     tradeIn AND fuelTank
func requiredInfo(c quote.Configuration) bool {
	common := c.TradeInInfo != nil && c.FuelTankConfig != nil
	switch c.PurchasePath {
	case quote.PathInstalled:
		return c.BoatInfo != nil && c.InstallConfig != nil && common
	case quote.PathLoose:
		return common
	}
	return false
}

func firstMissing(c quote.Configuration) int {
	for _, s := range canonical {
		if Required(s, c.PurchasePath) && !Answered(c, s) {
			return s
		}
	}
	return quote.StepSummary
}
