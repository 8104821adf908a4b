package promotions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborline/quotebuilder/pkg/catalog"
)

func f(v float64) *float64 { return &v }

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func ids(ms []Matched) []string {
	var out []string
	for _, m := range ms {
		out = append(out, m.Rule.ID)
	}
	return out
}

var item = catalog.Motor{ID: "f115", Model: "F115LB", DisplayName: "115 ELPT FourStroke", MotorType: "outboard", Horsepower: 115}

func TestApplies(t *testing.T) {
	tests := []struct {
		name string
		rule catalog.Rule
		want bool
	}{
		{"all", catalog.Rule{RuleType: catalog.RuleAll}, true},
		{"model substring any case", catalog.Rule{RuleType: catalog.RuleModel, Model: "fourSTROKE"}, true},
		{"model code", catalog.Rule{RuleType: catalog.RuleModel, Model: "f115"}, true},
		{"model miss", catalog.Rule{RuleType: catalog.RuleModel, Model: "verado"}, false},
		{"empty model never matches", catalog.Rule{RuleType: catalog.RuleModel}, false},
		{"motor type exact", catalog.Rule{RuleType: catalog.RuleMotorType, MotorType: "outboard"}, true},
		{"motor type is not substring", catalog.Rule{RuleType: catalog.RuleMotorType, MotorType: "out"}, false},
		{"hp inside", catalog.Rule{RuleType: catalog.RuleHorsepowerRange, HorsepowerMin: f(100), HorsepowerMax: f(150)}, true},
		{"hp min inclusive", catalog.Rule{RuleType: catalog.RuleHorsepowerRange, HorsepowerMin: f(115)}, true},
		{"hp max inclusive", catalog.Rule{RuleType: catalog.RuleHorsepowerRange, HorsepowerMax: f(115)}, true},
		{"hp open range", catalog.Rule{RuleType: catalog.RuleHorsepowerRange}, true},
		{"hp below", catalog.Rule{RuleType: catalog.RuleHorsepowerRange, HorsepowerMin: f(150)}, false},
		{"hp above", catalog.Rule{RuleType: catalog.RuleHorsepowerRange, HorsepowerMax: f(90)}, false},
		{"unknown type", catalog.Rule{RuleType: "season"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Applies(tt.rule, item))
		})
	}
}

func TestMatchOrdersByPriorityThenInsertion(t *testing.T) {
	promos := []catalog.Promotion{
		{ID: "low", Priority: 1, IsActive: true},
		{ID: "high", Priority: 9, IsActive: true},
	}
	rules := []catalog.Rule{
		{ID: "a", PromotionID: "low", RuleType: catalog.RuleAll, IsActive: true},
		{ID: "b", PromotionID: "high", RuleType: catalog.RuleAll, IsActive: true},
		{ID: "c", PromotionID: "low", RuleType: catalog.RuleAll, IsActive: true},
		{ID: "d", PromotionID: "high", RuleType: catalog.RuleAll, IsActive: true},
		{ID: "e", PromotionID: "high", RuleType: catalog.RuleModel, Model: "verado", IsActive: true},
		{ID: "f", PromotionID: "high", RuleType: catalog.RuleAll, IsActive: false},
		{ID: "g", PromotionID: "missing", RuleType: catalog.RuleAll, IsActive: true},
	}

	got := Match(item, promos, rules)
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids(got))
	assert.Equal(t, "high", got[0].Promotion.ID)

	// Same input, same answer.
	assert.Equal(t, got, Match(item, promos, rules))
}

func TestActiveFiltersBeforeMatching(t *testing.T) {
	now := time.Date(2026, 6, 30, 23, 59, 0, 0, time.UTC)
	promos := []catalog.Promotion{
		{ID: "current", IsActive: true, StartDate: date(2026, 6, 1), EndDate: date(2026, 6, 30)},
		{ID: "starts-today", IsActive: true, StartDate: date(2026, 6, 30)},
		{ID: "expired", IsActive: true, EndDate: date(2026, 6, 29)},
		{ID: "future", IsActive: true, StartDate: date(2026, 7, 1)},
		{ID: "switched-off", IsActive: false},
		{ID: "open", IsActive: true},
	}

	var got []string
	for _, p := range Active(promos, now) {
		got = append(got, p.ID)
	}
	assert.Equal(t, []string{"current", "starts-today", "open"}, got)

	rules := []catalog.Rule{
		{ID: "r-expired", PromotionID: "expired", RuleType: catalog.RuleAll, IsActive: true},
		{ID: "r-current", PromotionID: "current", RuleType: catalog.RuleAll, IsActive: true},
	}
	assert.Equal(t, []string{"r-current"}, ids(MatchAt(item, promos, rules, now)))
}

func TestPromotionWithoutRulesContributesNothing(t *testing.T) {
	promos := []catalog.Promotion{{ID: "lonely", IsActive: true, Priority: 100}}
	assert.Empty(t, Match(item, promos, nil))
}

func TestSummarize(t *testing.T) {
	spring := catalog.Promotion{ID: "spring", Priority: 9, BonusWarrantyYears: 2, RebateAmount: 250, FinancingRate: 1.99, FinancingTerm: 36}
	boat := catalog.Promotion{ID: "boat", Priority: 5, BonusWarrantyYears: 3, RebateAmount: 100, FinancingRate: 4.99, FinancingTerm: 60, DeferredMonths: 6}

	matched := []Matched{
		{Rule: catalog.Rule{ID: "1"}, Promotion: spring},
		{Rule: catalog.Rule{ID: "2"}, Promotion: spring},
		{Rule: catalog.Rule{ID: "3"}, Promotion: boat},
	}
	b := Summarize(matched)
	require.True(t, b.HasFinancing())
	assert.Equal(t, Benefits{BonusWarrantyYears: 3, RebateAmount: 350, FinancingRate: 1.99, FinancingTerm: 36, DeferredMonths: 6}, b)

	assert.False(t, Summarize(nil).HasFinancing())
}
