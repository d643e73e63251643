package services

import (
	"sort"
)

// UserState classifies a requester by the data available for them.
type UserState string

const (
	StateWarm    UserState = "warm"
	StateCold    UserState = "cold"
	StateUnknown UserState = "unknown-user"
)

// PlanInput are the per-request facts the policy decides on.
type PlanInput struct {
	HistoryCount int
	HasProfile   bool
	HasReference bool
	HasQuery     bool
	Weights      Weights
	// Available lists signals whose model is loaded. Nil means all are.
	Available map[string]bool
}

// SignalPlan says which adapters run, with which weights and content mode.
// A non-empty Reason means the request short-circuits to an empty result.
type SignalPlan struct {
	State       UserState
	Active      []string
	Weights     Weights
	ContentMode ContentMode
	Skipped     map[string]string
	Reason      string
}

// ColdStartPolicy picks the active signals for a request once, up front.
type ColdStartPolicy struct{}

func NewColdStartPolicy() *ColdStartPolicy {
	return &ColdStartPolicy{}
}

func (p *ColdStartPolicy) Plan(in PlanInput) SignalPlan {
	plan := SignalPlan{Skipped: make(map[string]string)}

	switch {
	case in.HistoryCount > 0:
		plan.State = StateWarm
	case in.HasProfile:
		plan.State = StateCold
	default:
		plan.State = StateUnknown
	}

	want := map[string]bool{}
	switch plan.State {
	case StateWarm:
		want[SignalCF] = true
		want[SignalContent] = true
		switch {
		case in.HasReference:
			plan.ContentMode = ContentModeItem
		case in.HasQuery:
			plan.ContentMode = ContentModeQuery
		default:
			plan.ContentMode = ContentModeProfile
		}
		if in.HasProfile {
			want[SignalCluster] = true
		} else {
			plan.Skipped[SignalCluster] = "no demographic record"
		}

	case StateCold:
		plan.Skipped[SignalCF] = "no interaction history"
		want[SignalCluster] = true
		if mode, ok := coldContentMode(in); ok {
			want[SignalContent] = true
			plan.ContentMode = mode
		} else {
			plan.Skipped[SignalContent] = "no query terms or reference item"
		}

	case StateUnknown:
		plan.Skipped[SignalCF] = "no interaction history"
		plan.Skipped[SignalCluster] = "no demographic record"
		mode, ok := coldContentMode(in)
		if !ok {
			plan.Skipped[SignalContent] = "no query terms or reference item"
			plan.Reason = ReasonInsufficientData
			plan.Weights = Weights{}
			return plan
		}
		want[SignalContent] = true
		plan.ContentMode = mode
	}

	for s := range want {
		if in.Available != nil && !in.Available[s] {
			plan.Skipped[s] = "model unavailable"
			continue
		}
		plan.Active = append(plan.Active, s)
	}
	sort.Strings(plan.Active)

	if _, ok := want[SignalContent]; !ok || plan.Skipped[SignalContent] != "" {
		plan.ContentMode = ""
	}

	if len(plan.Active) == 0 {
		plan.Reason = ReasonAllSignalsUnavailable
		plan.Weights = Weights{}
		return plan
	}

	plan.Weights = Redistribute(in.Weights, plan.Active)
	return plan
}

func coldContentMode(in PlanInput) (ContentMode, bool) {
	switch {
	case in.HasReference:
		return ContentModeItem, true
	case in.HasQuery:
		return ContentModeQuery, true
	default:
		return "", false
	}
}

// Redistribute scales the weights of the active signals so they sum to 1,
// keeping their proportions. Inactive signals are dropped. When the active
// signals carry no weight at all they share it equally.
func Redistribute(weights Weights, active []string) Weights {
	out := make(Weights, len(active))
	if len(active) == 0 {
		return out
	}

	sum := 0.0
	for _, s := range active {
		sum += weights[s]
	}

	for _, s := range active {
		if sum <= 0 {
			out[s] = 1 / float64(len(active))
		} else {
			out[s] = weights[s] / sum
		}
	}
	return out
}
