// Package promotions selects which promotion rules apply to a catalog item.
package promotions

import (
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/harborline/quotebuilder/pkg/catalog"
)

var matchedRulesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "quotebuilder_promotion_rules_matched_total",
	Help: "Promotion rules matched against catalog items, by rule type",
}, []string{"rule_type"})

// Matched is a rule that applies to an item, paired with its promotion.
type Matched struct {
	Rule      catalog.Rule
	Promotion catalog.Promotion
}

// Active keeps the promotions flagged active whose window contains now.
// Window bounds are inclusive and compared by UTC calendar day, so a
// promotion ending on the 31st still runs for all of the 31st.
func Active(promos []catalog.Promotion, now time.Time) []catalog.Promotion {
	today := day(now)
	var out []catalog.Promotion
	for _, p := range promos {
		if !p.IsActive {
			continue
		}
		if p.StartDate != nil && today.Before(day(*p.StartDate)) {
			continue
		}
		if p.EndDate != nil && today.After(day(*p.EndDate)) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Match returns the rules of the given promotions that apply to item,
// ordered by promotion priority (highest first) and then by the order the
// rules were supplied in. promos must already be filtered with Active.
func Match(item catalog.Motor, promos []catalog.Promotion, rules []catalog.Rule) []Matched {
	byID := make(map[string]catalog.Promotion, len(promos))
	for _, p := range promos {
		byID[p.ID] = p
	}

	var out []Matched
	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		p, ok := byID[r.PromotionID]
		if !ok {
			continue
		}
		if !Applies(r, item) {
			continue
		}
		out = append(out, Matched{Rule: r, Promotion: p})
		matchedRulesTotal.WithLabelValues(string(r.RuleType)).Inc()
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Promotion.Priority > out[j].Promotion.Priority
	})
	return out
}

// MatchAt filters promos by now and then matches.
func MatchAt(item catalog.Motor, promos []catalog.Promotion, rules []catalog.Rule, now time.Time) []Matched {
	return Match(item, Active(promos, now), rules)
}

// Applies evaluates the predicate of a single rule. Unknown rule types never
// match.
func Applies(r catalog.Rule, item catalog.Motor) bool {
	switch r.RuleType {
	case catalog.RuleAll:
		return true
	case catalog.RuleModel:
		if r.Model == "" {
			return false
		}
		needle := strings.ToLower(r.Model)
		return strings.Contains(strings.ToLower(item.Model), needle) ||
			strings.Contains(strings.ToLower(item.DisplayName), needle)
	case catalog.RuleMotorType:
		return r.MotorType != "" && item.MotorType == r.MotorType
	case catalog.RuleHorsepowerRange:
		if r.HorsepowerMin != nil && item.Horsepower < *r.HorsepowerMin {
			return false
		}
		if r.HorsepowerMax != nil && item.Horsepower > *r.HorsepowerMax {
			return false
		}
		return true
	}
	return false
}

// Benefits are the non-price perks carried by the promotions behind a set of
// matched rules. Each promotion is counted once however many of its rules
// matched.
type Benefits struct {
	BonusWarrantyYears int
	RebateAmount       float64
	FinancingRate      float64
	FinancingTerm      int
	DeferredMonths     int
}

// HasFinancing reports whether a promotional rate was found.
func (b Benefits) HasFinancing() bool {
	return b.FinancingTerm > 0
}

// Summarize folds the perks of the distinct promotions in matched. Bonus
// years and deferral take the best offer, rebates add up, and financing terms
// come from the highest priority promotion that has them.
func Summarize(matched []Matched) Benefits {
	var b Benefits
	seen := make(map[string]bool)
	for _, m := range matched {
		p := m.Promotion
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true

		if p.BonusWarrantyYears > b.BonusWarrantyYears {
			b.BonusWarrantyYears = p.BonusWarrantyYears
		}
		if p.DeferredMonths > b.DeferredMonths {
			b.DeferredMonths = p.DeferredMonths
		}
		if p.RebateAmount > 0 {
			b.RebateAmount += p.RebateAmount
		}
		if !b.HasFinancing() && p.FinancingTerm > 0 {
			b.FinancingRate, b.FinancingTerm = p.FinancingRate, p.FinancingTerm
		}
	}
	return b
}
