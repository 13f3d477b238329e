package records

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"medid/internal/biometric/models"
	id "medid/pkg/domain"
	"medid/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemoryStore
	org   id.OrgID
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
	s.org = id.OrgID(uuid.New())
}

func (s *InMemoryStoreSuite) enroll(org id.OrgID) id.PatientID {
	patientID := id.PatientID(uuid.New())
	vector := models.EnrolledVector{
		PatientID:       patientID,
		OrganizationID:  org,
		EncryptedVector: []byte{0x01, 0x02, 0x03},
		VectorHash:      "abc123",
	}
	record := PatientRecord{
		PatientID:       patientID,
		OrganizationID:  org,
		FullName:        "Jane Doe",
		DateOfBirth:     time.Date(1980, 3, 14, 0, 0, 0, 0, time.UTC),
		Allergies:       []string{"penicillin"},
		ClinicalSummary: "stable",
	}
	got, err := s.store.InsertEnrollment(s.ctx, vector, record)
	s.Require().NoError(err)
	s.Equal(patientID, got)
	return patientID
}

func (s *InMemoryStoreSuite) TestInsertAndGetRecord() {
	patientID := s.enroll(s.org)

	record, err := s.store.GetFullRecord(s.ctx, patientID, s.org)
	s.Require().NoError(err)
	s.Equal("Jane Doe", record.FullName)
	s.Equal([]string{"penicillin"}, record.Allergies)
	s.False(record.CreatedAt.IsZero())
}

func (s *InMemoryStoreSuite) TestGetRecordScopedByOrg() {
	patientID := s.enroll(s.org)

	_, err := s.store.GetFullRecord(s.ctx, patientID, id.OrgID(uuid.New()))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestGetUnknownRecord() {
	_, err := s.store.GetFullRecord(s.ctx, id.PatientID(uuid.New()), s.org)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestFindEnrolledVectorsScopedByOrg() {
	s.enroll(s.org)
	s.enroll(s.org)
	otherOrg := id.OrgID(uuid.New())
	s.enroll(otherOrg)

	vectors, err := s.store.FindEnrolledVectorsByOrg(s.ctx, s.org)
	s.Require().NoError(err)
	s.Len(vectors, 2)
	for _, vec := range vectors {
		s.Equal(s.org, vec.OrganizationID)
	}
}

func (s *InMemoryStoreSuite) TestFindEnrolledVectorsReturnsCopies() {
	s.enroll(s.org)

	vectors, err := s.store.FindEnrolledVectorsByOrg(s.ctx, s.org)
	s.Require().NoError(err)
	vectors[0].EncryptedVector[0] = 0xFF

	again, err := s.store.FindEnrolledVectorsByOrg(s.ctx, s.org)
	s.Require().NoError(err)
	s.Equal(byte(0x01), again[0].EncryptedVector[0])
}

func (s *InMemoryStoreSuite) TestReEnrollmentAppendsVectorHistory() {
	patientID := s.enroll(s.org)

	vector := models.EnrolledVector{
		PatientID:       patientID,
		OrganizationID:  s.org,
		EncryptedVector: []byte{0x09},
		VectorHash:      "def456",
	}
	record := PatientRecord{
		PatientID:      patientID,
		OrganizationID: s.org,
		FullName:       "Jane Q. Doe",
	}
	_, err := s.store.InsertEnrollment(s.ctx, vector, record)
	s.Require().NoError(err)

	s.Equal(2, s.store.VectorCount(s.org))

	updated, err := s.store.GetFullRecord(s.ctx, patientID, s.org)
	s.Require().NoError(err)
	s.Equal("Jane Q. Doe", updated.FullName)
}

func (s *InMemoryStoreSuite) TestCrossOrgReEnrollmentConflicts() {
	patientID := s.enroll(s.org)

	vector := models.EnrolledVector{
		PatientID:       patientID,
		OrganizationID:  id.OrgID(uuid.New()),
		EncryptedVector: []byte{0x09},
	}
	record := PatientRecord{
		PatientID:      patientID,
		OrganizationID: vector.OrganizationID,
	}
	_, err := s.store.InsertEnrollment(s.ctx, vector, record)
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}
