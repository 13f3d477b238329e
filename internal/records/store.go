package records

import (
	"context"

	"medid/internal/biometric/models"
	id "medid/pkg/domain"
)

// Error Contract:
// All store methods follow this pattern:
// - Return sentinel.ErrNotFound (wrapped) when the record does not exist in the org scope
// - Return sentinel.ErrConflict (wrapped) on duplicate enrollment inserts
// - Return wrapped errors with context for infrastructure failures

// Store is the port consumed by identification and disclosure. Every read is
// scoped by organization: a record is invisible outside its org.
type Store interface {
	FindEnrolledVectorsByOrg(ctx context.Context, orgID id.OrgID) ([]models.EnrolledVector, error)
	GetFullRecord(ctx context.Context, patientID id.PatientID, orgID id.OrgID) (PatientRecord, error)
	InsertEnrollment(ctx context.Context, vector models.EnrolledVector, record PatientRecord) (id.PatientID, error)
}
