package vitals

import (
	"time"
)

// VitalSigns is a raw vitals submission. Nil measurements are absent, which is
// reported differently from a value that is present but out of range.
type VitalSigns struct {
	PatientID        string   `json:"patient_id"`
	HeartRate        *int     `json:"heart_rate"`
	Temperature      *float64 `json:"temperature"`
	OxygenSaturation *int     `json:"oxygen_saturation"`
	SystolicBP       *int     `json:"systolic_bp"`
}

// RecordedVitals maps to the vitals_record table. Records are append-only; a
// correction is a new record.
type RecordedVitals struct {
	ID               string    `db:"id" json:"id"`
	PatientID        string    `db:"patient_id" json:"patient_id"`
	HeartRate        int       `db:"heart_rate" json:"heart_rate"`
	Temperature      float64   `db:"temperature" json:"temperature"`
	OxygenSaturation int       `db:"oxygen_saturation" json:"oxygen_saturation"`
	SystolicBP       int       `db:"systolic_bp" json:"systolic_bp"`
	IsAbnormal       bool      `db:"is_abnormal" json:"is_abnormal"`
	IsCritical       bool      `db:"is_critical" json:"is_critical"`
	RecordedAt       time.Time `db:"recorded_at" json:"recorded_at"`
}

// Absolute physiological ceilings. The floor for every field is 0.
const (
	MaxHeartRate        = 300
	MaxTemperature      = 45.0
	MaxOxygenSaturation = 100
	MaxSystolicBP       = 300
)

// band is an inclusive [low, high] range; values outside it are flagged.
type band struct {
	low, high float64
}

func (b band) outside(v float64) bool {
	return v < b.low || v > b.high
}

// Normal reference ranges.
var (
	normalHeartRate        = band{60, 100}
	normalTemperature      = band{36.5, 37.5}
	normalOxygenSaturation = band{95, MaxOxygenSaturation}
	normalSystolicBP       = band{90, 140}
)

// Emergency thresholds. Each is strictly wider than its normal range.
var (
	criticalHeartRate        = band{40, 130}
	criticalTemperature      = band{35, 40}
	criticalOxygenSaturation = band{90, MaxOxygenSaturation}
	criticalSystolicBP       = band{70, 180}
)

func (r *RecordedVitals) classifyAbnormal() bool {
	return normalHeartRate.outside(float64(r.HeartRate)) ||
		normalTemperature.outside(r.Temperature) ||
		normalOxygenSaturation.outside(float64(r.OxygenSaturation)) ||
		normalSystolicBP.outside(float64(r.SystolicBP))
}

func (r *RecordedVitals) classifyCritical() bool {
	return criticalHeartRate.outside(float64(r.HeartRate)) ||
		criticalTemperature.outside(r.Temperature) ||
		criticalOxygenSaturation.outside(float64(r.OxygenSaturation)) ||
		criticalSystolicBP.outside(float64(r.SystolicBP))
}

// Classify sets IsAbnormal and IsCritical from the measurements.
func (r *RecordedVitals) Classify() {
	r.IsAbnormal = r.classifyAbnormal()
	r.IsCritical = r.classifyCritical()
}
