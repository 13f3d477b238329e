// Package records is the persistence port for patient records and their
// enrolled biometric vectors.
package records

import (
	"time"

	id "medid/pkg/domain"
)

// PatientRecord is the disclosable clinical record. Content is kept minimal;
// the record body is owned by the clinical system of record.
type PatientRecord struct {
	PatientID           id.PatientID
	OrganizationID      id.OrgID
	FullName            string
	DateOfBirth         time.Time
	MedicalRecordNumber string
	Allergies           []string
	ClinicalSummary     string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r PatientRecord) Clone() PatientRecord {
	out := r
	out.Allergies = append([]string(nil), r.Allergies...)
	return out
}
