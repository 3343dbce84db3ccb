package record

// Record columns.
const (
	ColID      = "_id"
	ColMetric  = "_metric"
	ColVersion = "_version" // payload only, never stored

	ColAvgSpeed          = "avg_speed"
	ColCalories          = "calories"
	ColDistance          = "distance"
	ColDuration          = "duration"
	ColElevationGain     = "elevation_gain"
	ColMealRelation      = "meal_relation"
	ColMood              = "mood"
	ColNotes             = "notes"
	ColPressureDiastolic = "pressure_diastolic"
	ColPressureSystolic  = "pressure_systolic"
	ColSexualActivity    = "sexual_activity"
	ColSteps             = "steps"
	ColSymptomsOther     = "symptoms_other"
	ColSymptomsPhysical  = "symptoms_physical"
	ColTime              = "time"
	ColValue             = "value"
)

// Access policy columns.
const (
	AccessTable          = "access"
	ColAccessCaller      = "pkg_name"
	ColAccessMetric      = "metric"
	ColAccessPermissions = "permissions"
)

// Medical profile columns.
const (
	ProfileTable      = "profile"
	ColAllergies      = "allergies"
	ColBloodType      = "blood_type"
	ColHeight         = "height"
	ColMedications    = "medications"
	ColOrganDonor     = "organ_donor"
	ColBiologicalSex  = "sex"
	ColProfileNotes   = ColNotes
	ColProfileVersion = ColVersion
)

// AccessColumns returns the stored columns of the access table.
func AccessColumns() []string {
	return []string{ColAccessCaller, ColAccessMetric, ColAccessPermissions}
}

// ProfileColumns returns the stored columns of the profile table.
func ProfileColumns() []string {
	return []string{ColID, ColAllergies, ColBloodType, ColHeight, ColMedications, ColProfileNotes, ColOrganDonor, ColBiologicalSex}
}

