package quote

import "sort"

// Reduce applies a to prev and returns the next configuration. It never
// mutates prev and never fails: an action that cannot apply returns an
// unchanged copy.
func Reduce(prev Configuration, a Action) Configuration {
	next := prev.Clone()

	switch act := a.(type) {
	case SetMotor:
		if motorChanged(prev.Motor, act.Motor) {
			// Required options belong to the old motor.
			next.SelectedOptions = nil
		}
		next.Motor = clonePtr(act.Motor)
		if next.Motor != nil {
			next.Motor.AppliedPromos = append([]string(nil), act.Motor.AppliedPromos...)
		}

	case SetPurchasePath:
		if act.Path != PathNone && !act.Path.Valid() {
			return next
		}
		next.PurchasePath = act.Path

	case SetBoatInfo:
		next.BoatInfo = clonePtr(act.Info)
	case SetInstallConfig:
		next.InstallConfig = clonePtr(act.Config)
	case SetFuelTankConfig:
		next.FuelTankConfig = clonePtr(act.Config)
	case SetTradeInInfo:
		next.TradeInInfo = clonePtr(act.Info)
	case SetWarrantyConfig:
		next.WarrantyConfig = clonePtr(act.Config)
	case SetLooseMotorBattery:
		next.LooseMotorBattery = clonePtr(act.Battery)

	case SetSelectedOptions:
		next.SelectedOptions = replaceOptions(prev.SelectedOptions, act.Options)

	case AddOption:
		next.SelectedOptions = addOption(next.SelectedOptions, act.Option)

	case RemoveOption:
		next.SelectedOptions = removeOption(next.SelectedOptions, act.OptionID)

	case SetPromoDetails:
		if act.Details != nil && !act.Details.Option.Valid() {
			return next
		}
		next.PromoDetails = clonePtr(act.Details)

	case VisitPromotions:
		next.PromoDetails = nil

	case CompleteStep:
		next.CompletedSteps = insertStep(next.CompletedSteps, act.Step)

	case SetCurrentStep:
		if act.Step >= StepMotor && act.Step <= StepSummary {
			next.CurrentStep = act.Step
		}

	case SetLoading:
		next.IsLoading = act.Loading

	case LoadState:
		next = act.State.Normalize()
		next.IsLoading = false

	case ClearQuote:
		next = Empty()
	}

	if len(next.SelectedOptions) == 0 {
		next.SelectedOptions = nil
	}
	return next
}

func motorChanged(prev, next *Motor) bool {
	switch {
	case prev == nil && next == nil:
		return false
	case prev == nil || next == nil:
		return true
	}
	return prev.ID != next.ID
}

// replaceOptions installs incoming as the option list. Required options
// already on the quote are kept even when the caller omits them.
func replaceOptions(prev, incoming []SelectedOption) []SelectedOption {
	out := make([]SelectedOption, 0, len(incoming)+len(prev))
	index := make(map[string]int, len(incoming))
	for _, o := range incoming {
		if o.OptionID == "" {
			continue
		}
		if !o.AssignmentType.valid() {
			o.AssignmentType = AssignmentAvailable
		}
		if i, ok := index[o.OptionID]; ok {
			out[i] = o
			continue
		}
		index[o.OptionID] = len(out)
		out = append(out, o)
	}
	for _, p := range prev {
		if p.AssignmentType != AssignmentRequired {
			continue
		}
		if i, ok := index[p.OptionID]; ok {
			out[i] = p
			continue
		}
		index[p.OptionID] = len(out)
		out = append(out, p)
	}
	return out
}

func addOption(opts []SelectedOption, o SelectedOption) []SelectedOption {
	if o.OptionID == "" {
		return opts
	}
	if !o.AssignmentType.valid() {
		o.AssignmentType = AssignmentAvailable
	}
	for i := range opts {
		if opts[i].OptionID != o.OptionID {
			continue
		}
		if opts[i].AssignmentType == AssignmentRequired {
			return opts
		}
		opts[i] = o
		return opts
	}
	return append(opts, o)
}

func removeOption(opts []SelectedOption, id string) []SelectedOption {
	for i := range opts {
		if opts[i].OptionID != id {
			continue
		}
		if opts[i].AssignmentType == AssignmentRequired {
			return opts
		}
		return append(opts[:i], opts[i+1:]...)
	}
	return opts
}

func insertStep(steps []int, step int) []int {
	if step < StepMotor || step > TotalSteps {
		return steps
	}
	i := sort.SearchInts(steps, step)
	if i < len(steps) && steps[i] == step {
		return steps
	}
	steps = append(steps, 0)
	copy(steps[i+1:], steps[i:])
	steps[i] = step
	return steps
}
