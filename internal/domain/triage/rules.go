package triage

// Clinical thresholds for the critical tier.
const (
	SevereTachycardiaHeartRate      = 120
	ExtremeHyperthermiaTemp         = 40.0
	SevereHypoxemiaOxygenSaturation = 90
)

// CriticalTier holds the rules that put a patient at priority 1.
//
// Rules for priorities 2 through 4 have not been clinically signed off; until
// they are, anything outside this tier falls through to priority 5.
func CriticalTier() Tier {
	return Tier{
		Priority: PriorityCritical,
		Rules: []Rule{
			{
				Name:          "Severe Tachycardia",
				Justification: "heart rate above 120 bpm",
				Matches: func(hr int, _ float64, _ int) bool {
					return hr > SevereTachycardiaHeartRate
				},
			},
			{
				Name:          "Extreme Hyperthermia",
				Justification: "temperature above 40 °C",
				Matches: func(_ int, temp float64, _ int) bool {
					return temp > ExtremeHyperthermiaTemp
				},
			},
			{
				Name:          "Severe Hypoxemia",
				Justification: "oxygen saturation below 90%",
				Matches: func(_ int, _ float64, spo2 int) bool {
					return spo2 < SevereHypoxemiaOxygenSaturation
				},
			},
		},
	}
}

// DefaultTiers returns the rule set used in production.
func DefaultTiers() []Tier {
	return []Tier{CriticalTier()}
}
