package triage

import (
	"sort"
)

// Triage-relevant plausibility bounds, inclusive.
const (
	MaxHeartRate        = 300
	MaxTemperature      = 45.0
	MaxOxygenSaturation = 100
)

// Engine maps vitals to a priority by evaluating rule tiers from most to least
// urgent. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	tiers    []Tier
	fallback Priority
}

// NewEngine builds an engine over the given tiers. With no tiers the default
// rule set is used. Tiers are evaluated in ascending priority number.
func NewEngine(tiers ...Tier) *Engine {
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return &Engine{tiers: sorted, fallback: PriorityNonUrgent}
}

// CalculatePriority returns the priority for v.
func (e *Engine) CalculatePriority(v *Vitals) (Priority, error) {
	a, err := e.Assess(v)
	if err != nil {
		return 0, err
	}
	return a.Priority, nil
}

// Assess returns the priority for v and the first rule that decided it. The
// first matching rule in the most urgent tier wins; later rules are not run.
func (e *Engine) Assess(v *Vitals) (*Assessment, error) {
	hr, temp, spo2, err := unpack(v)
	if err != nil {
		return nil, err
	}

	for _, tier := range e.tiers {
		for _, rule := range tier.Rules {
			if rule.Matches(hr, temp, spo2) {
				return &Assessment{
					Priority: tier.Priority,
					DecidedBy: &TriggeredRule{
						Name:          rule.Name,
						Priority:      tier.Priority,
						Justification: rule.Justification,
					},
				}, nil
			}
		}
	}
	return &Assessment{Priority: e.fallback}, nil
}

// TriggeredRules returns every rule whose predicate holds for v, in evaluation
// order. It is empty exactly when CalculatePriority falls through to the
// default level.
func (e *Engine) TriggeredRules(v *Vitals) ([]TriggeredRule, error) {
	hr, temp, spo2, err := unpack(v)
	if err != nil {
		return nil, err
	}

	triggered := []TriggeredRule{}
	for _, tier := range e.tiers {
		for _, rule := range tier.Rules {
			if rule.Matches(hr, temp, spo2) {
				triggered = append(triggered, TriggeredRule{
					Name:          rule.Name,
					Priority:      tier.Priority,
					Justification: rule.Justification,
				})
			}
		}
	}
	return triggered, nil
}

// IsValidForTriage reports whether v is complete and within plausible bounds.
// Callers use it to decide whether CalculatePriority should be invoked at all.
func (e *Engine) IsValidForTriage(v *Vitals) bool {
	hr, temp, spo2, err := unpack(v)
	if err != nil {
		return false
	}
	return hr >= 0 && hr <= MaxHeartRate &&
		temp >= 0 && temp <= MaxTemperature &&
		spo2 >= 0 && spo2 <= MaxOxygenSaturation
}

func unpack(v *Vitals) (int, float64, int, error) {
	if v == nil {
		return 0, 0, 0, &InsufficientDataError{Missing: []string{"vitals"}}
	}
	var missing []string
	if v.HeartRate == nil {
		missing = append(missing, "heart_rate")
	}
	if v.Temperature == nil {
		missing = append(missing, "temperature")
	}
	if v.OxygenSaturation == nil {
		missing = append(missing, "oxygen_saturation")
	}
	if len(missing) > 0 {
		return 0, 0, 0, &InsufficientDataError{Missing: missing}
	}
	return *v.HeartRate, *v.Temperature, *v.OxygenSaturation, nil
}
