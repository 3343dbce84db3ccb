package validate

import (
	"github.com/roach88/healthstore/internal/record"
)

// Records returns the validator applied to every record insert and update.
func Records() *Chain {
	return &Chain{
		name:      "record",
		versioned: true,
		steps: []step{
			{since: record.VersionActinium, check: recordActinium},
		},
	}
}

func recordActinium(v record.Values) error {
	raw := v[record.ColMetric]
	n, ok, err := v.Int(record.ColMetric)
	if err != nil {
		return invalid(record.ColMetric, raw, "must be an integer")
	}
	if !ok {
		return invalid(record.ColMetric, nil, "is required")
	}
	metric := record.Metric(n)
	category, known := metric.Category()
	if !known {
		return invalid(record.ColMetric, raw, "unknown metric")
	}

	if err := knownColumns(v, category.Columns()); err != nil {
		return err
	}
	if err := recordIdentity(v); err != nil {
		return err
	}
	if err := text(v, record.ColNotes); err != nil {
		return err
	}

	switch metric {
	case record.AbdominalCircumference,
		record.BodyTemperature,
		record.UVIndex,
		record.WaterIntake,
		record.Weight,
		record.PeakExpiratoryFlow,
		record.RespiratoryRate,
		record.VitalCapacity,
		record.HeartRate:
		return nonNegative(v, record.ColValue)

	case record.LeanBodyMass,
		record.OxygenSaturation,
		record.BloodAlcoholConcentration,
		record.PerfusionIndex:
		return within(v, record.ColValue, 0, 1)

	case record.Cycling, record.Running, record.Walking, record.Workout:
		return all(
			within(v, record.ColAvgSpeed, 0, record.MaxSpeed),
			nonNegative(v, record.ColCalories),
			nonNegative(v, record.ColDistance),
			nonNegativeInt(v, record.ColSteps),
		)

	case record.MenstrualCycle:
		return all(
			nonNegative(v, record.ColValue),
			flags(v, record.ColSexualActivity, record.SexualActivityBits),
			flags(v, record.ColSymptomsOther, record.SymptomsOtherBits),
			flags(v, record.ColSymptomsPhysical, record.SymptomsPhysicalBits),
		)

	case record.BloodPressure:
		return all(
			nonNegativeInt(v, record.ColPressureSystolic),
			nonNegativeInt(v, record.ColPressureDiastolic),
		)

	case record.Glucose:
		return all(
			nonNegative(v, record.ColValue),
			enumerated(v, record.ColMealRelation, int64(record.MealRelationUnknown), int64(record.MealRelationAfter)),
		)

	case record.Mood:
		return flags(v, record.ColMood, record.MoodBits)

	case record.BodyMassIndex, record.InhalerUsage, record.Meditation, record.Sleep:
		return nil
	}
	return invalid(record.ColMetric, raw, "unknown metric")
}

// recordIdentity strips unassigned ids and rejects negative times.
func recordIdentity(v record.Values) error {
	id, ok, err := v.Int(record.ColID)
	if err != nil {
		return invalid(record.ColID, v[record.ColID], "must be an integer")
	}
	if ok && id < 1 {
		delete(v, record.ColID)
	}
	return all(
		nonNegativeInt(v, record.ColTime),
		nonNegativeInt(v, record.ColDuration),
	)
}
