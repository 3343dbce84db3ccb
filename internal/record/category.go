package record

import "fmt"

// Category is a closed class of record shapes. Each category owns one table.
type Category int

const (
	Activity Category = iota
	Body
	Breathing
	HeartBlood
	Mindfulness
)

// Categories returns every category in declaration order.
func Categories() []Category {
	return []Category{Activity, Body, Breathing, HeartBlood, Mindfulness}
}

// Table returns the name of the table storing this category.
func (c Category) Table() string {
	switch c {
	case Activity:
		return "activity"
	case Body:
		return "body"
	case Breathing:
		return "breathing"
	case HeartBlood:
		return "heart_blood"
	case Mindfulness:
		return "mindfulness"
	}
	panic(fmt.Sprintf("record: unknown category %d", int(c)))
}

// Path returns the address segment used for this category.
func (c Category) Path() string {
	if c == HeartBlood {
		return "blood"
	}
	return c.Table()
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return c.Path()
}

// Metrics returns the metrics stored in this category.
func (c Category) Metrics() []Metric {
	switch c {
	case Activity:
		return []Metric{Cycling, Running, Walking, Workout}
	case Body:
		return []Metric{
			AbdominalCircumference, BodyMassIndex, BodyTemperature, LeanBodyMass,
			MenstrualCycle, UVIndex, WaterIntake, Weight,
		}
	case Breathing:
		return []Metric{InhalerUsage, OxygenSaturation, PeakExpiratoryFlow, RespiratoryRate, VitalCapacity}
	case HeartBlood:
		return []Metric{BloodAlcoholConcentration, BloodPressure, Glucose, HeartRate, PerfusionIndex}
	case Mindfulness:
		return []Metric{Meditation, Mood, Sleep}
	}
	panic(fmt.Sprintf("record: unknown category %d", int(c)))
}

// Columns returns the stored columns of this category, identity columns first.
func (c Category) Columns() []string {
	base := []string{ColID, ColMetric, ColTime}
	switch c {
	case Activity:
		return append(base, ColDuration, ColAvgSpeed, ColCalories, ColDistance, ColElevationGain, ColSteps, ColNotes)
	case Body:
		return append(base, ColValue, ColSexualActivity, ColSymptomsOther, ColSymptomsPhysical, ColNotes)
	case Breathing:
		return append(base, ColValue, ColNotes)
	case HeartBlood:
		return append(base, ColValue, ColMealRelation, ColPressureSystolic, ColPressureDiastolic, ColNotes)
	case Mindfulness:
		return append(base, ColDuration, ColMood, ColNotes)
	}
	panic(fmt.Sprintf("record: unknown category %d", int(c)))
}

// HasColumn reports whether col is stored by this category.
func (c Category) HasColumn(col string) bool {
	for _, known := range c.Columns() {
		if known == col {
			return true
		}
	}
	return false
}

// Contains reports whether m belongs to this category.
func (c Category) Contains(m Metric) bool {
	got, ok := m.Category()
	return ok && got == c
}

// ParseCategory resolves an address segment to its category.
func ParseCategory(path string) (Category, error) {
	for _, c := range Categories() {
		if c.Path() == path {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", path)
}
