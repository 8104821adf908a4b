package catalog

import (
	"context"
	"time"
)

// Overrides are prices an admin typed in by hand. Zero means unset.
type Overrides struct {
	BasePrice float64 `json:"base_price,omitempty"`
	SalePrice float64 `json:"sale_price,omitempty"`
}

// Motor is a catalog item as the catalog collaborator supplies it. Prices of
// zero are treated as absent.
type Motor struct {
	ID          string    `json:"id"`
	Model       string    `json:"model"`
	DisplayName string    `json:"model_display,omitempty"`
	Family      string    `json:"family,omitempty"`
	MotorType   string    `json:"motor_type,omitempty"`
	Horsepower  float64   `json:"horsepower"`
	BasePrice   float64   `json:"base_price,omitempty"`
	SalePrice   float64   `json:"sale_price,omitempty"`
	DealerPrice float64   `json:"dealer_price,omitempty"`
	MSRP        float64   `json:"msrp,omitempty"`
	Manual      Overrides `json:"manual_overrides"`
	InStock     bool      `json:"in_stock"`
}

// Label is the human model name, falling back to the model code.
func (m Motor) Label() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Model
}

// ListPrice resolves the reference price: manual override, then MSRP, then
// the listed base price.
func (m Motor) ListPrice() float64 {
	switch {
	case m.Manual.BasePrice > 0:
		return m.Manual.BasePrice
	case m.MSRP > 0:
		return m.MSRP
	case m.BasePrice > 0:
		return m.BasePrice
	}
	return 0
}

// OfferPrice resolves the discounted selling price before promotions:
// manual override, then sale price, then dealer price when it undercuts the
// list price. Zero means there is no offer price.
func (m Motor) OfferPrice() float64 {
	switch {
	case m.Manual.SalePrice > 0:
		return m.Manual.SalePrice
	case m.SalePrice > 0:
		return m.SalePrice
	case m.DealerPrice > 0 && m.DealerPrice < m.ListPrice():
		return m.DealerPrice
	}
	return 0
}

// StartingPrice is where promotion rules start folding from.
func (m Motor) StartingPrice() float64 {
	if p := m.OfferPrice(); p > 0 {
		return p
	}
	return m.ListPrice()
}

// Promotion carries the discount and bonus metadata of a campaign.
type Promotion struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	BadgeText           string     `json:"badge_text,omitempty"`
	Priority            int        `json:"priority"`
	IsActive            bool       `json:"is_active"`
	StartDate           *time.Time `json:"start_date,omitempty"`
	EndDate             *time.Time `json:"end_date,omitempty"`
	DiscountPercentage  float64    `json:"discount_percentage,omitempty"`
	DiscountFixedAmount float64    `json:"discount_fixed_amount,omitempty"`
	BonusWarrantyYears  int        `json:"warranty_extra_years,omitempty"`
	RebateAmount        float64    `json:"rebate_amount,omitempty"`
	FinancingRate       float64    `json:"financing_rate,omitempty"`
	FinancingTerm       int        `json:"financing_term,omitempty"`
	DeferredMonths      int        `json:"deferred_months,omitempty"`
}

// RuleType selects the matching predicate of a Rule.
type RuleType string

const (
	RuleAll             RuleType = "all"
	RuleModel           RuleType = "model"
	RuleMotorType       RuleType = "motor_type"
	RuleHorsepowerRange RuleType = "horsepower_range"
)

// Rule attaches a promotion to a subset of the catalog.
type Rule struct {
	ID                  string   `json:"id"`
	PromotionID         string   `json:"promotion_id"`
	RuleType            RuleType `json:"rule_type"`
	Model               string   `json:"model,omitempty"`
	MotorType           string   `json:"motor_type,omitempty"`
	HorsepowerMin       *float64 `json:"horsepower_min,omitempty"`
	HorsepowerMax       *float64 `json:"horsepower_max,omitempty"`
	DiscountPercentage  float64  `json:"discount_percentage,omitempty"`
	DiscountFixedAmount float64  `json:"discount_fixed_amount,omitempty"`
	IsActive            bool     `json:"is_active"`
}

// Snapshot is one read of the catalog collaborator. Rules keep the order in
// which the collaborator returned them.
type Snapshot struct {
	Motors     []Motor     `json:"motors"`
	Promotions []Promotion `json:"promotions"`
	Rules      []Rule      `json:"rules"`
}

// Find returns the motor with the given id.
func (s Snapshot) Find(id string) (Motor, bool) {
	for _, m := range s.Motors {
		if m.ID == id {
			return m, true
		}
	}
	return Motor{}, false
}

// Source is the read-only catalog collaborator.
type Source interface {
	Load(ctx context.Context) (Snapshot, error)
}

// Static serves a fixed snapshot.
type Static Snapshot

func (s Static) Load(ctx context.Context) (Snapshot, error) {
	return Snapshot(s), ctx.Err()
}
