package record

import (
	"fmt"
	"strconv"
	"strings"
)

// Metric is the category tag of a record. It discriminates the record's
// shape and is the unit of access control.
type Metric int

// Unknown is the zero-knowledge metric. It never names a stored record.
const Unknown Metric = -1

// Activity metrics.
const (
	Cycling Metric = iota + 1
	Running
	Walking
	Workout
)

// Body metrics.
const (
	AbdominalCircumference Metric = iota + 1001
	BodyMassIndex
	BodyTemperature
	LeanBodyMass
	MenstrualCycle
	UVIndex
	WaterIntake
	Weight
)

// Breathing metrics.
const (
	InhalerUsage Metric = iota + 2001
	OxygenSaturation
	PeakExpiratoryFlow
	RespiratoryRate
	VitalCapacity
)

// Heart and blood metrics.
const (
	BloodAlcoholConcentration Metric = iota + 3001
	BloodPressure
	Glucose
	HeartRate
	PerfusionIndex
)

// Mindfulness metrics.
const (
	Meditation Metric = iota + 4001
	Mood
	Sleep
)

var metricNames = map[Metric]string{
	Cycling:                   "cycling",
	Running:                   "running",
	Walking:                   "walking",
	Workout:                   "workout",
	AbdominalCircumference:    "abdominal_circumference",
	BodyMassIndex:             "body_mass_index",
	BodyTemperature:           "body_temperature",
	LeanBodyMass:              "lean_body_mass",
	MenstrualCycle:            "menstrual_cycle",
	UVIndex:                   "uv_index",
	WaterIntake:               "water_intake",
	Weight:                    "weight",
	InhalerUsage:              "inhaler_usage",
	OxygenSaturation:          "oxygen_saturation",
	PeakExpiratoryFlow:        "peak_expiratory_flow",
	RespiratoryRate:           "respiratory_rate",
	VitalCapacity:             "vital_capacity",
	BloodAlcoholConcentration: "blood_alcohol_concentration",
	BloodPressure:             "blood_pressure",
	Glucose:                   "glucose",
	HeartRate:                 "heart_rate",
	PerfusionIndex:            "perfusion_index",
	Meditation:                "meditation",
	Mood:                      "mood",
	Sleep:                     "sleep",
}

// Metrics returns every known metric in ascending order.
func Metrics() []Metric {
	var out []Metric
	for _, c := range Categories() {
		out = append(out, c.Metrics()...)
	}
	return out
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	_, ok := metricNames[m]
	return ok
}

// Category returns the category that stores records of this metric.
func (m Metric) Category() (Category, bool) {
	if !m.Valid() {
		return 0, false
	}
	switch {
	case m < 1000:
		return Activity, true
	case m < 2000:
		return Body, true
	case m < 3000:
		return Breathing, true
	case m < 4000:
		return HeartBlood, true
	default:
		return Mindfulness, true
	}
}

// String returns the snake_case name of the metric, or its number when unknown.
func (m Metric) String() string {
	if name, ok := metricNames[m]; ok {
		return name
	}
	if m == Unknown {
		return "unknown"
	}
	return strconv.Itoa(int(m))
}

// ParseMetric accepts either the numeric id or the snake_case name of a metric.
func ParseMetric(s string) (Metric, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		m := Metric(n)
		if !m.Valid() {
			return Unknown, fmt.Errorf("unknown metric %d", n)
		}
		return m, nil
	}
	name := strings.ToLower(s)
	for m, n := range metricNames {
		if n == name {
			return m, nil
		}
	}
	return Unknown, fmt.Errorf("unknown metric %q", s)
}
