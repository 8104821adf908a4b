package quote

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func motor(id string) *Motor {
	return &Motor{ID: id, Horsepower: 115, Model: "115 ELPT Command Thrust", BasePrice: 14000, Price: 12500}
}

func TestReduceDoesNotMutatePrevious(t *testing.T) {
	prev := Reduce(Empty(), SetMotor{Motor: motor("m1")})
	prev = Reduce(prev, AddOption{Option: SelectedOption{OptionID: "prop", Name: "Prop", Price: 300, AssignmentType: AssignmentRecommended}})

	next := Reduce(prev, SetBoatInfo{Info: &BoatInfo{Make: "Lund", LengthFeet: 18}})
	next.Motor.Price = 1
	next.SelectedOptions[0].Price = 1

	assert.Equal(t, 12500.0, prev.Motor.Price)
	assert.Equal(t, 300.0, prev.SelectedOptions[0].Price)
	assert.Nil(t, prev.BoatInfo)
}

func TestCompleteStepIsMonotonic(t *testing.T) {
	c := Empty()
	for _, step := range []int{StepPath, StepMotor, StepPath, 99, -1, StepFuelTank, StepTradeIn} {
		before := append([]int(nil), c.CompletedSteps...)
		c = Reduce(c, CompleteStep{Step: step})
		for _, s := range before {
			assert.True(t, c.HasCompleted(s), "step %d disappeared after COMPLETE_STEP(%d)", s, step)
		}
	}
	assert.Equal(t, []int{StepMotor, StepPath, StepTradeIn, StepFuelTank}, c.CompletedSteps)

	// Unrelated writes never drop completed steps.
	c = Reduce(c, SetPurchasePath{Path: PathLoose})
	c = Reduce(c, SetMotor{Motor: motor("m2")})
	c = Reduce(c, VisitPromotions{})
	assert.Equal(t, []int{StepMotor, StepPath, StepTradeIn, StepFuelTank}, c.CompletedSteps)

	c = Reduce(c, ClearQuote{})
	assert.Nil(t, c.CompletedSteps)
	assert.True(t, c.IsEmpty())
}

func TestRequiredOptionCannotBeRemoved(t *testing.T) {
	c := Reduce(Empty(), SetMotor{Motor: motor("m1")})
	c = Reduce(c, SetSelectedOptions{Options: []SelectedOption{
		{OptionID: "controls", Name: "Controls", Price: 900, AssignmentType: AssignmentRequired},
		{OptionID: "cover", Name: "Cover", Price: 120, AssignmentType: AssignmentAvailable},
	}})

	after := Reduce(c, RemoveOption{OptionID: "controls"})
	assert.Equal(t, c, after)

	after = Reduce(c, RemoveOption{OptionID: "cover"})
	require.Len(t, after.SelectedOptions, 1)
	assert.Equal(t, "controls", after.SelectedOptions[0].OptionID)
}

func TestReplacingOptionsKeepsRequired(t *testing.T) {
	c := Reduce(Empty(), SetMotor{Motor: motor("m1")})
	c = Reduce(c, AddOption{Option: SelectedOption{OptionID: "controls", Price: 900, AssignmentType: AssignmentRequired}})

	c = Reduce(c, SetSelectedOptions{Options: []SelectedOption{
		{OptionID: "cover", Price: 120, AssignmentType: AssignmentAvailable},
		{OptionID: "controls", Price: 0, AssignmentType: AssignmentAvailable},
	}})

	require.Len(t, c.SelectedOptions, 2)
	assert.Equal(t, "cover", c.SelectedOptions[0].OptionID)
	assert.Equal(t, SelectedOption{OptionID: "controls", Price: 900, AssignmentType: AssignmentRequired}, c.SelectedOptions[1])

	// Clearing the list still keeps the required line.
	c = Reduce(c, SetSelectedOptions{})
	require.Len(t, c.SelectedOptions, 1)
	assert.Equal(t, "controls", c.SelectedOptions[0].OptionID)

	// Re-adding a required option with another assignment is ignored.
	same := Reduce(c, AddOption{Option: SelectedOption{OptionID: "controls", AssignmentType: AssignmentAvailable}})
	assert.Equal(t, c, same)
}

func TestChangingMotorDropsOptions(t *testing.T) {
	c := Reduce(Empty(), SetMotor{Motor: motor("m1")})
	c = Reduce(c, AddOption{Option: SelectedOption{OptionID: "controls", AssignmentType: AssignmentRequired}})

	// Same motor, refreshed price: options stay.
	refreshed := motor("m1")
	refreshed.Price = 11000
	c = Reduce(c, SetMotor{Motor: refreshed})
	require.Len(t, c.SelectedOptions, 1)

	c = Reduce(c, SetMotor{Motor: motor("m2")})
	assert.Nil(t, c.SelectedOptions)
	assert.Equal(t, "m2", c.Motor.ID)
}

func TestPromoDetailsResetOnVisit(t *testing.T) {
	c := Reduce(Empty(), SetPromoDetails{Details: &PromoDetails{Option: PromoSpecialFinancing, Rate: 2.99, Term: 36}})
	require.NotNil(t, c.PromoDetails)

	c = Reduce(c, VisitPromotions{})
	assert.Nil(t, c.PromoDetails)

	// Unknown options are ignored rather than recorded.
	c = Reduce(c, SetPromoDetails{Details: &PromoDetails{Option: "free_boat"}})
	assert.Nil(t, c.PromoDetails)
}

func TestReduceFromPartialState(t *testing.T) {
	tests := []struct {
		name   string
		action Action
	}{
		{"remove from empty list", RemoveOption{OptionID: "x"}},
		{"add without id", AddOption{Option: SelectedOption{Name: "nameless"}}},
		{"invalid path", SetPurchasePath{Path: "teleport"}},
		{"current step out of range", SetCurrentStep{Step: 42}},
		{"nil motor", SetMotor{}},
		{"nil action", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reduce(Empty(), tt.action)
			assert.True(t, got.IsEmpty())
		})
	}
}

func TestLoadStateNormalizes(t *testing.T) {
	loaded := Configuration{
		PurchasePath:    "boat-show",
		CompletedSteps:  []int{3, 1, 3, 12},
		SelectedOptions: []SelectedOption{{OptionID: "a", AssignmentType: "mystery"}},
		PromoDetails:    &PromoDetails{Option: "unknown"},
	}
	c := Reduce(Configuration{IsLoading: true}, LoadState{State: loaded})

	assert.False(t, c.IsLoading)
	assert.Equal(t, PathNone, c.PurchasePath)
	assert.Equal(t, []int{1, 3}, c.CompletedSteps)
	assert.Equal(t, AssignmentAvailable, c.SelectedOptions[0].AssignmentType)
	assert.Nil(t, c.PromoDetails)
}

func TestDecodeAction(t *testing.T) {
	raw := `{"type":"ADD_OPTION","payload":{"optionId":"cover","name":"Cover","price":120,"assignmentType":"available"}}`
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))

	a, err := DecodeAction(env)
	require.NoError(t, err)
	assert.Equal(t, AddOption{Option: SelectedOption{OptionID: "cover", Name: "Cover", Price: 120, AssignmentType: AssignmentAvailable}}, a)

	a, err = DecodeAction(Envelope{Type: KindCompleteStep, Payload: json.RawMessage(`{"step":3}`)})
	require.NoError(t, err)
	assert.Equal(t, CompleteStep{Step: 3}, a)

	_, err = DecodeAction(Envelope{Type: KindLoadState})
	assert.Error(t, err)

	_, err = DecodeAction(Envelope{Type: KindSetMotor, Payload: json.RawMessage(`{"id": 7`)})
	assert.Error(t, err)
}
