package quote

import "sort"

// Step numbers used by COMPLETE_STEP and SET_CURRENT_STEP.
const (
	StepMotor    = 1
	StepPath     = 2
	StepBoatInfo = 3
	StepTradeIn  = 4
	StepInstall  = 5
	StepFuelTank = 6
	StepSummary  = 7

	TotalSteps = 6
)

// PurchasePath branches the required steps of the wizard.
type PurchasePath string

const (
	PathNone      PurchasePath = ""
	PathLoose     PurchasePath = "loose"
	PathInstalled PurchasePath = "installed"
)

// Valid reports whether p is one of the known purchase paths.
func (p PurchasePath) Valid() bool {
	return p == PathLoose || p == PathInstalled
}

// AssignmentType describes how an option relates to the selected motor.
type AssignmentType string

const (
	AssignmentRequired    AssignmentType = "required"
	AssignmentRecommended AssignmentType = "recommended"
	AssignmentAvailable   AssignmentType = "available"
)

func (a AssignmentType) valid() bool {
	switch a {
	case AssignmentRequired, AssignmentRecommended, AssignmentAvailable:
		return true
	}
	return false
}

// PromoOption is the promotional choice a customer makes on the promotion step.
type PromoOption string

const (
	PromoNoPayments       PromoOption = "no_payments"
	PromoSpecialFinancing PromoOption = "special_financing"
	PromoCashRebate       PromoOption = "cash_rebate"
)

// Valid reports whether o is a known promo option.
func (o PromoOption) Valid() bool {
	switch o {
	case PromoNoPayments, PromoSpecialFinancing, PromoCashRebate:
		return true
	}
	return false
}

// RequiresFinancing reports whether the option only makes sense on a financed purchase.
func (o PromoOption) RequiresFinancing() bool {
	return o == PromoNoPayments || o == PromoSpecialFinancing
}

// Motor is the snapshot of the catalog item chosen on step 1.
type Motor struct {
	ID            string   `json:"id"`
	Horsepower    float64  `json:"hp"`
	Model         string   `json:"model"`
	Family        string   `json:"family,omitempty"`
	BasePrice     float64  `json:"basePrice"`
	SalePrice     float64  `json:"salePrice,omitempty"`
	Price         float64  `json:"price"`
	AppliedPromos []string `json:"appliedPromotions,omitempty"`
}

type BoatInfo struct {
	Type              string  `json:"type,omitempty"`
	Make              string  `json:"make,omitempty"`
	Model             string  `json:"model,omitempty"`
	Year              int     `json:"year,omitempty"`
	LengthFeet        float64 `json:"length,omitempty"`
	CurrentMotorBrand string  `json:"currentMotorBrand,omitempty"`
	CurrentMotorHP    float64 `json:"currentMotorHp,omitempty"`
}

type InstallConfig struct {
	Steering         string  `json:"steering,omitempty"`
	Gauges           string  `json:"gauges,omitempty"`
	Mounting         string  `json:"mounting,omitempty"`
	Propeller        string  `json:"propeller,omitempty"`
	InstallationCost float64 `json:"installationCost,omitempty"`
}

type FuelTankConfig struct {
	NeedsTank bool    `json:"needsTank"`
	TankSize  string  `json:"tankSize,omitempty"`
	TankPrice float64 `json:"tankPrice,omitempty"`
}

// TradeInInfo records the customer's trade-in answer. HasTradeIn=false is a
// complete answer ("no trade-in").
type TradeInInfo struct {
	HasTradeIn     bool    `json:"hasTradeIn"`
	Brand          string  `json:"brand,omitempty"`
	Year           int     `json:"year,omitempty"`
	Horsepower     float64 `json:"horsepower,omitempty"`
	Condition      string  `json:"condition,omitempty"`
	SerialNumber   string  `json:"serialNumber,omitempty"`
	EstimatedValue float64 `json:"estimatedValue,omitempty"`
}

// Value is the credit applied to the quote, zero when there is no trade-in.
func (t *TradeInInfo) Value() float64 {
	if t == nil || !t.HasTradeIn || t.EstimatedValue < 0 {
		return 0
	}
	return t.EstimatedValue
}

type WarrantyConfig struct {
	ExtendedYears int     `json:"extendedYears"`
	TotalYears    int     `json:"totalYears,omitempty"`
	Price         float64 `json:"warrantyPrice,omitempty"`
}

type LooseMotorBattery struct {
	WantsBattery bool    `json:"wantsBattery"`
	BatteryCost  float64 `json:"batteryCost,omitempty"`
}

// SelectedOption is one accessory or service line on the quote.
type SelectedOption struct {
	OptionID       string         `json:"optionId"`
	Name           string         `json:"name"`
	Price          float64        `json:"price"`
	Category       string         `json:"category,omitempty"`
	AssignmentType AssignmentType `json:"assignmentType"`
	IsIncluded     bool           `json:"isIncluded"`
}

// PromoDetails is the promotion choice. A nil *PromoDetails means no choice yet.
type PromoDetails struct {
	Option       PromoOption `json:"option"`
	Rate         float64     `json:"rate,omitempty"`
	Term         int         `json:"term,omitempty"`
	DisplayValue string      `json:"displayValue,omitempty"`
}

// Configuration is the in-progress quote. It is only changed through Reduce.
type Configuration struct {
	Motor             *Motor             `json:"motor,omitempty"`
	PurchasePath      PurchasePath       `json:"purchasePath,omitempty"`
	BoatInfo          *BoatInfo          `json:"boatInfo,omitempty"`
	InstallConfig     *InstallConfig     `json:"installConfig,omitempty"`
	FuelTankConfig    *FuelTankConfig    `json:"fuelTankConfig,omitempty"`
	TradeInInfo       *TradeInInfo       `json:"tradeInInfo,omitempty"`
	WarrantyConfig    *WarrantyConfig    `json:"warrantyConfig,omitempty"`
	LooseMotorBattery *LooseMotorBattery `json:"looseMotorBattery,omitempty"`
	SelectedOptions   []SelectedOption   `json:"selectedOptions,omitempty"`
	PromoDetails      *PromoDetails      `json:"promoDetails,omitempty"`
	CompletedSteps    []int              `json:"completedSteps,omitempty"`
	CurrentStep       int                `json:"currentStep,omitempty"`

	IsLoading bool `json:"-"`
}

// Empty returns the configuration of a fresh visit.
func Empty() Configuration {
	return Configuration{}
}

// IsEmpty reports whether nothing has been entered yet.
func (c Configuration) IsEmpty() bool {
	return c.Motor == nil && c.PurchasePath == PathNone && c.BoatInfo == nil &&
		c.InstallConfig == nil && c.FuelTankConfig == nil && c.TradeInInfo == nil &&
		c.WarrantyConfig == nil && c.LooseMotorBattery == nil &&
		len(c.SelectedOptions) == 0 && c.PromoDetails == nil &&
		len(c.CompletedSteps) == 0 && c.CurrentStep == 0
}

// HasCompleted reports whether step is in the completed set.
func (c Configuration) HasCompleted(step int) bool {
	i := sort.SearchInts(c.CompletedSteps, step)
	return i < len(c.CompletedSteps) && c.CompletedSteps[i] == step
}

// Clone returns a deep copy so reducers never share nested records with
// earlier states.
func (c Configuration) Clone() Configuration {
	out := c
	if c.Motor != nil {
		m := *c.Motor
		m.AppliedPromos = append([]string(nil), c.Motor.AppliedPromos...)
		out.Motor = &m
	}
	out.BoatInfo = clonePtr(c.BoatInfo)
	out.InstallConfig = clonePtr(c.InstallConfig)
	out.FuelTankConfig = clonePtr(c.FuelTankConfig)
	out.TradeInInfo = clonePtr(c.TradeInInfo)
	out.WarrantyConfig = clonePtr(c.WarrantyConfig)
	out.LooseMotorBattery = clonePtr(c.LooseMotorBattery)
	out.PromoDetails = clonePtr(c.PromoDetails)
	out.SelectedOptions = append([]SelectedOption(nil), c.SelectedOptions...)
	out.CompletedSteps = append([]int(nil), c.CompletedSteps...)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Normalize repairs a configuration decoded from an older or foreign shape:
// unknown enum values are dropped, completed steps are sorted, deduplicated
// and limited to known steps, and empty lists become nil.
func (c Configuration) Normalize() Configuration {
	out := c.Clone()
	if out.PurchasePath != PathNone && !out.PurchasePath.Valid() {
		out.PurchasePath = PathNone
	}
	if out.PromoDetails != nil && !out.PromoDetails.Option.Valid() {
		out.PromoDetails = nil
	}
	for i := range out.SelectedOptions {
		if !out.SelectedOptions[i].AssignmentType.valid() {
			out.SelectedOptions[i].AssignmentType = AssignmentAvailable
		}
	}
	out.CompletedSteps = normalizeSteps(out.CompletedSteps)
	if out.CurrentStep < 0 || out.CurrentStep > StepSummary {
		out.CurrentStep = 0
	}
	return out
}

func normalizeSteps(steps []int) []int {
	if len(steps) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(steps))
	out := make([]int, 0, len(steps))
	for _, s := range steps {
		if s < StepMotor || s > TotalSteps || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Ints(out)
	return out
}
