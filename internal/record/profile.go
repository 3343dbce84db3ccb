package record

// BloodType enumerates ABO/Rh blood groups.
type BloodType int

const (
	BloodTypeUnknown BloodType = iota
	BloodTypeONeg
	BloodTypeOPos
	BloodTypeANeg
	BloodTypeAPos
	BloodTypeBNeg
	BloodTypeBPos
	BloodTypeABNeg
	BloodTypeABPos
)

// MaxBloodType is the largest valid BloodType.
const MaxBloodType = BloodTypeABPos

// OrganDonor records the organ donation choice.
type OrganDonor int

const (
	OrganDonorUnknown OrganDonor = iota
	OrganDonorYes
	OrganDonorNo
)

// BiologicalSex enumerates the recorded biological sex.
type BiologicalSex int

const (
	BiologicalSexUnknown BiologicalSex = iota
	BiologicalSexFemale
	BiologicalSexMale
)

// MealRelation tells whether a glucose sample was taken before or after a meal.
type MealRelation int

const (
	MealRelationUnknown MealRelation = iota
	MealRelationBefore
	MealRelationAfter
)

// Bit widths of the flag columns.
const (
	MoodBits             = 11
	SexualActivityBits   = 4
	SymptomsPhysicalBits = 9
	SymptomsOtherBits    = 8
)

// MaxSpeed is a sanity ceiling for avg_speed in m/s (the speed of light).
const MaxSpeed = 2.998e8

// DefaultProfile returns the all-default medical profile row.
func DefaultProfile() Values {
	return Values{
		ColAllergies:     "",
		ColBloodType:     int64(BloodTypeUnknown),
		ColHeight:        float64(0),
		ColMedications:   "",
		ColProfileNotes:  "",
		ColOrganDonor:    int64(OrganDonorUnknown),
		ColBiologicalSex: int64(BiologicalSexUnknown),
	}
}
