package quote

import (
	"encoding/json"
	"fmt"
)

// Kind tags an Action.
type Kind string

const (
	KindSetMotor             Kind = "SET_MOTOR"
	KindSetPurchasePath      Kind = "SET_PURCHASE_PATH"
	KindSetBoatInfo          Kind = "SET_BOAT_INFO"
	KindSetInstallConfig     Kind = "SET_INSTALL_CONFIG"
	KindSetFuelTankConfig    Kind = "SET_FUEL_TANK_CONFIG"
	KindSetTradeInInfo       Kind = "SET_TRADE_IN_INFO"
	KindSetWarrantyConfig    Kind = "SET_WARRANTY_CONFIG"
	KindSetLooseMotorBattery Kind = "SET_LOOSE_MOTOR_BATTERY"
	KindSetSelectedOptions   Kind = "SET_SELECTED_OPTIONS"
	KindAddOption            Kind = "ADD_OPTION"
	KindRemoveOption         Kind = "REMOVE_OPTION"
	KindSetPromoDetails      Kind = "SET_PROMO_DETAILS"
	KindVisitPromotions      Kind = "VISIT_PROMOTIONS"
	KindCompleteStep         Kind = "COMPLETE_STEP"
	KindSetCurrentStep       Kind = "SET_CURRENT_STEP"
	KindSetLoading           Kind = "SET_LOADING"
	KindLoadState            Kind = "LOAD_STATE"
	KindClearQuote           Kind = "CLEAR_QUOTE"
)

// Action is one write to the configuration. Every concrete action is a value
// type handled by Reduce.
type Action interface {
	Kind() Kind
}

type SetMotor struct{ Motor *Motor }
type SetPurchasePath struct{ Path PurchasePath }
type SetBoatInfo struct{ Info *BoatInfo }
type SetInstallConfig struct{ Config *InstallConfig }
type SetFuelTankConfig struct{ Config *FuelTankConfig }
type SetTradeInInfo struct{ Info *TradeInInfo }
type SetWarrantyConfig struct{ Config *WarrantyConfig }
type SetLooseMotorBattery struct{ Battery *LooseMotorBattery }
type SetSelectedOptions struct{ Options []SelectedOption }
type AddOption struct{ Option SelectedOption }
type RemoveOption struct{ OptionID string }
type SetPromoDetails struct{ Details *PromoDetails }

// VisitPromotions is dispatched each time the promotion step is entered.
// The previous promotion choice is never carried into a new visit.
type VisitPromotions struct{}

type CompleteStep struct{ Step int }
type SetCurrentStep struct{ Step int }
type SetLoading struct{ Loading bool }

// LoadState replaces the configuration with a hydrated one. It is not
// persisted back.
type LoadState struct{ State Configuration }

type ClearQuote struct{}

func (SetMotor) Kind() Kind             { return KindSetMotor }
func (SetPurchasePath) Kind() Kind      { return KindSetPurchasePath }
func (SetBoatInfo) Kind() Kind          { return KindSetBoatInfo }
func (SetInstallConfig) Kind() Kind     { return KindSetInstallConfig }
func (SetFuelTankConfig) Kind() Kind    { return KindSetFuelTankConfig }
func (SetTradeInInfo) Kind() Kind       { return KindSetTradeInInfo }
func (SetWarrantyConfig) Kind() Kind    { return KindSetWarrantyConfig }
func (SetLooseMotorBattery) Kind() Kind { return KindSetLooseMotorBattery }
func (SetSelectedOptions) Kind() Kind   { return KindSetSelectedOptions }
func (AddOption) Kind() Kind            { return KindAddOption }
func (RemoveOption) Kind() Kind         { return KindRemoveOption }
func (SetPromoDetails) Kind() Kind      { return KindSetPromoDetails }
func (VisitPromotions) Kind() Kind      { return KindVisitPromotions }
func (CompleteStep) Kind() Kind         { return KindCompleteStep }
func (SetCurrentStep) Kind() Kind       { return KindSetCurrentStep }
func (SetLoading) Kind() Kind           { return KindSetLoading }
func (LoadState) Kind() Kind            { return KindLoadState }
func (ClearQuote) Kind() Kind           { return KindClearQuote }

// Envelope is the wire form of an action: {"type": "...", "payload": ...}.
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeAction turns a wire envelope into a typed Action.
func DecodeAction(env Envelope) (Action, error) {
	var (
		a   Action
		err error
	)
	switch env.Type {
	case KindSetMotor:
		var m *Motor
		err = decodePayload(env.Payload, &m)
		a = SetMotor{Motor: m}
	case KindSetPurchasePath:
		var p struct {
			Path PurchasePath `json:"path"`
		}
		err = decodePayload(env.Payload, &p)
		a = SetPurchasePath{Path: p.Path}
	case KindSetBoatInfo:
		var v *BoatInfo
		err = decodePayload(env.Payload, &v)
		a = SetBoatInfo{Info: v}
	case KindSetInstallConfig:
		var v *InstallConfig
		err = decodePayload(env.Payload, &v)
		a = SetInstallConfig{Config: v}
	case KindSetFuelTankConfig:
		var v *FuelTankConfig
		err = decodePayload(env.Payload, &v)
		a = SetFuelTankConfig{Config: v}
	case KindSetTradeInInfo:
		var v *TradeInInfo
		err = decodePayload(env.Payload, &v)
		a = SetTradeInInfo{Info: v}
	case KindSetWarrantyConfig:
		var v *WarrantyConfig
		err = decodePayload(env.Payload, &v)
		a = SetWarrantyConfig{Config: v}
	case KindSetLooseMotorBattery:
		var v *LooseMotorBattery
		err = decodePayload(env.Payload, &v)
		a = SetLooseMotorBattery{Battery: v}
	case KindSetSelectedOptions:
		var v []SelectedOption
		err = decodePayload(env.Payload, &v)
		a = SetSelectedOptions{Options: v}
	case KindAddOption:
		var v SelectedOption
		err = decodePayload(env.Payload, &v)
		a = AddOption{Option: v}
	case KindRemoveOption:
		var v struct {
			OptionID string `json:"optionId"`
		}
		err = decodePayload(env.Payload, &v)
		a = RemoveOption{OptionID: v.OptionID}
	case KindSetPromoDetails:
		var v *PromoDetails
		err = decodePayload(env.Payload, &v)
		a = SetPromoDetails{Details: v}
	case KindVisitPromotions:
		a = VisitPromotions{}
	case KindCompleteStep, KindSetCurrentStep:
		var v struct {
			Step int `json:"step"`
		}
		err = decodePayload(env.Payload, &v)
		if env.Type == KindCompleteStep {
			a = CompleteStep{Step: v.Step}
		} else {
			a = SetCurrentStep{Step: v.Step}
		}
	case KindClearQuote:
		a = ClearQuote{}
	default:
		// LOAD_STATE and SET_LOADING are internal to hydration.
		return nil, fmt.Errorf("unsupported action type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return a, nil
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
