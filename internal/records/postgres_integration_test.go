//go:build integration

package records_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"medid/internal/biometric/models"
	"medid/internal/records"
	id "medid/pkg/domain"
	"medid/pkg/platform/sentinel"
	"medid/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *records.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = records.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "enrolled_vectors", "patient_records")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) enroll(ctx context.Context, org id.OrgID, hash string) id.PatientID {
	patientID := id.PatientID(uuid.New())
	vector := models.EnrolledVector{
		PatientID:       patientID,
		OrganizationID:  org,
		EncryptedVector: []byte{0xDE, 0xAD, 0xBE, 0xEF},
		VectorHash:      hash,
	}
	record := records.PatientRecord{
		PatientID:           patientID,
		OrganizationID:      org,
		FullName:            "Pat Example",
		DateOfBirth:         time.Date(1975, 7, 1, 0, 0, 0, 0, time.UTC),
		MedicalRecordNumber: "MRN-" + uuid.NewString(),
		Allergies:           []string{"latex", "penicillin"},
		ClinicalSummary:     "summary",
	}
	got, err := s.store.InsertEnrollment(ctx, vector, record)
	s.Require().NoError(err)
	s.Equal(patientID, got)
	return patientID
}

func (s *PostgresStoreSuite) TestInsertAndGetRecord() {
	ctx := context.Background()
	org := id.OrgID(uuid.New())
	patientID := s.enroll(ctx, org, "hash-a")

	record, err := s.store.GetFullRecord(ctx, patientID, org)
	s.Require().NoError(err)
	s.Equal("Pat Example", record.FullName)
	s.Equal([]string{"latex", "penicillin"}, record.Allergies)
	s.Equal(org, record.OrganizationID)
}

func (s *PostgresStoreSuite) TestGetRecordScopedByOrg() {
	ctx := context.Background()
	patientID := s.enroll(ctx, id.OrgID(uuid.New()), "hash-a")

	_, err := s.store.GetFullRecord(ctx, patientID, id.OrgID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestFindEnrolledVectorsScopedByOrg() {
	ctx := context.Background()
	org := id.OrgID(uuid.New())
	s.enroll(ctx, org, "hash-a")
	s.enroll(ctx, org, "hash-b")
	s.enroll(ctx, id.OrgID(uuid.New()), "hash-c")

	vectors, err := s.store.FindEnrolledVectorsByOrg(ctx, org)
	s.Require().NoError(err)
	s.Len(vectors, 2)
	for _, vec := range vectors {
		s.Equal(org, vec.OrganizationID)
		s.Equal([]byte{0xDE, 0xAD, 0xBE, 0xEF}, vec.EncryptedVector)
	}
}

func (s *PostgresStoreSuite) TestDuplicateVectorEnrollmentConflicts() {
	ctx := context.Background()
	org := id.OrgID(uuid.New())
	patientID := s.enroll(ctx, org, "hash-a")

	vector := models.EnrolledVector{
		PatientID:       patientID,
		OrganizationID:  org,
		EncryptedVector: []byte{0x01},
		VectorHash:      "hash-a",
	}
	record := records.PatientRecord{
		PatientID:      patientID,
		OrganizationID: org,
		FullName:       "Pat Example",
		DateOfBirth:    time.Date(1975, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	_, err := s.store.InsertEnrollment(ctx, vector, record)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestCrossOrgReEnrollmentConflicts() {
	ctx := context.Background()
	org := id.OrgID(uuid.New())
	otherOrg := id.OrgID(uuid.New())
	patientID := s.enroll(ctx, org, "hash-a")

	vector := models.EnrolledVector{
		PatientID:       patientID,
		OrganizationID:  otherOrg,
		EncryptedVector: []byte{0x02},
		VectorHash:      "hash-b",
	}
	record := records.PatientRecord{
		PatientID:      patientID,
		OrganizationID: otherOrg,
		FullName:       "Pat Example",
		DateOfBirth:    time.Date(1975, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	_, err := s.store.InsertEnrollment(ctx, vector, record)
	s.ErrorIs(err, sentinel.ErrConflict)

	// The rejected enrollment must leave no vector behind in the other org.
	vectors, err := s.store.FindEnrolledVectorsByOrg(ctx, otherOrg)
	s.Require().NoError(err)
	s.Empty(vectors)
}

func (s *PostgresStoreSuite) TestReEnrollmentAppendsVectorHistory() {
	ctx := context.Background()
	org := id.OrgID(uuid.New())
	patientID := s.enroll(ctx, org, "hash-a")

	vector := models.EnrolledVector{
		PatientID:       patientID,
		OrganizationID:  org,
		EncryptedVector: []byte{0x02},
		VectorHash:      "hash-b",
	}
	record := records.PatientRecord{
		PatientID:      patientID,
		OrganizationID: org,
		FullName:       "Pat Q. Example",
		DateOfBirth:    time.Date(1975, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	_, err := s.store.InsertEnrollment(ctx, vector, record)
	s.Require().NoError(err)

	vectors, err := s.store.FindEnrolledVectorsByOrg(ctx, org)
	s.Require().NoError(err)
	s.Len(vectors, 2)

	updated, err := s.store.GetFullRecord(ctx, patientID, org)
	s.Require().NoError(err)
	s.Equal("Pat Q. Example", updated.FullName)
}
