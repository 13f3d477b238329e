package records

import (
	"context"
	"fmt"
	"sync"

	"medid/internal/biometric/models"
	id "medid/pkg/domain"
	"medid/pkg/platform/sentinel"
	"medid/pkg/requestcontext"
)

// InMemoryStore keeps records and enrolled vectors in memory. Enrollment
// history is immutable: re-enrolling a patient appends a new vector and
// refreshes the record, it never rewrites past vectors.
type InMemoryStore struct {
	mu           sync.RWMutex
	vectorsByOrg map[id.OrgID][]models.EnrolledVector
	records      map[id.PatientID]PatientRecord
}

// NewInMemoryStore constructs an empty in-memory record store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		vectorsByOrg: make(map[id.OrgID][]models.EnrolledVector),
		records:      make(map[id.PatientID]PatientRecord),
	}
}

// FindEnrolledVectorsByOrg returns copies of every vector enrolled in the org.
func (s *InMemoryStore) FindEnrolledVectorsByOrg(_ context.Context, orgID id.OrgID) ([]models.EnrolledVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.vectorsByOrg[orgID]
	out := make([]models.EnrolledVector, len(stored))
	for i, vec := range stored {
		out[i] = vec
		out[i].EncryptedVector = append([]byte(nil), vec.EncryptedVector...)
	}
	return out, nil
}

// GetFullRecord returns the record iff it belongs to the given org. A record
// in another org reports not found, indistinguishable from absence.
func (s *InMemoryStore) GetFullRecord(_ context.Context, patientID id.PatientID, orgID id.OrgID) (PatientRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[patientID]
	if !ok || record.OrganizationID != orgID {
		return PatientRecord{}, fmt.Errorf("patient record not found: %w", sentinel.ErrNotFound)
	}
	return record.Clone(), nil
}

// InsertEnrollment appends the vector and upserts the record. A record that
// already exists under a different org is a conflict, never a silent move.
func (s *InMemoryStore) InsertEnrollment(ctx context.Context, vector models.EnrolledVector, record PatientRecord) (id.PatientID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[record.PatientID]; ok && existing.OrganizationID != record.OrganizationID {
		return id.PatientID{}, fmt.Errorf("patient enrolled in another organization: %w", sentinel.ErrConflict)
	}

	now := requestcontext.Now(ctx)
	stored := record.Clone()
	if existing, ok := s.records[record.PatientID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.records[record.PatientID] = stored

	vec := vector
	vec.EncryptedVector = append([]byte(nil), vector.EncryptedVector...)
	s.vectorsByOrg[vector.OrganizationID] = append(s.vectorsByOrg[vector.OrganizationID], vec)
	return record.PatientID, nil
}

// VectorCount returns the number of vectors enrolled in the org (tests).
func (s *InMemoryStore) VectorCount(orgID id.OrgID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectorsByOrg[orgID])
}
