package validate

import (
	"github.com/roach88/healthstore/internal/record"
)

// Profile returns the validator applied to medical profile writes.
func Profile() *Chain {
	return &Chain{
		name:      "profile",
		versioned: true,
		steps: []step{
			{since: record.VersionActinium, check: profileActinium},
		},
	}
}

func profileActinium(v record.Values) error {
	// The singleton row is addressed by the table, never by id.
	delete(v, record.ColID)
	return all(
		knownColumns(v, record.ProfileColumns()),
		enumerated(v, record.ColBloodType, int64(record.BloodTypeUnknown), int64(record.MaxBloodType)),
		nonNegative(v, record.ColHeight),
		enumerated(v, record.ColOrganDonor, int64(record.OrganDonorUnknown), int64(record.OrganDonorNo)),
		enumerated(v, record.ColBiologicalSex, int64(record.BiologicalSexUnknown), int64(record.BiologicalSexMale)),
		text(v, record.ColAllergies),
		text(v, record.ColMedications),
		text(v, record.ColProfileNotes),
	)
}
