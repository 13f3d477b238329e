package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"medid/internal/biometric/models"
	id "medid/pkg/domain"
	"medid/pkg/platform/sentinel"
	"medid/pkg/requestcontext"
)

const uniqueViolation = "23505"

// PostgresStore persists patient records and enrolled vectors in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed record store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindEnrolledVectorsByOrg(ctx context.Context, orgID id.OrgID) ([]models.EnrolledVector, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT patient_id, organization_id, encrypted_vector, vector_hash, created_at
		FROM enrolled_vectors
		WHERE organization_id = $1
		ORDER BY created_at
	`, uuid.UUID(orgID))
	if err != nil {
		return nil, fmt.Errorf("find enrolled vectors: %w", err)
	}
	defer rows.Close()

	var vectors []models.EnrolledVector
	for rows.Next() {
		var (
			vec                 models.EnrolledVector
			patientID, orgRowID uuid.UUID
		)
		if err := rows.Scan(&patientID, &orgRowID, &vec.EncryptedVector, &vec.VectorHash, &vec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan enrolled vector: %w", err)
		}
		vec.PatientID = id.PatientID(patientID)
		vec.OrganizationID = id.OrgID(orgRowID)
		vectors = append(vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrolled vectors: %w", err)
	}
	return vectors, nil
}

func (s *PostgresStore) GetFullRecord(ctx context.Context, patientID id.PatientID, orgID id.OrgID) (PatientRecord, error) {
	var (
		record   PatientRecord
		rowPID   uuid.UUID
		rowOrgID uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT patient_id, organization_id, full_name, date_of_birth,
		       medical_record_number, allergies, clinical_summary, created_at, updated_at
		FROM patient_records
		WHERE patient_id = $1 AND organization_id = $2
	`, uuid.UUID(patientID), uuid.UUID(orgID)).Scan(
		&rowPID, &rowOrgID, &record.FullName, &record.DateOfBirth,
		&record.MedicalRecordNumber, pq.Array(&record.Allergies),
		&record.ClinicalSummary, &record.CreatedAt, &record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return PatientRecord{}, fmt.Errorf("patient record not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return PatientRecord{}, fmt.Errorf("get patient record: %w", err)
	}
	record.PatientID = id.PatientID(rowPID)
	record.OrganizationID = id.OrgID(rowOrgID)
	return record, nil
}

// InsertEnrollment upserts the record and appends the vector in one
// transaction, so a reader never observes a vector without its record.
func (s *PostgresStore) InsertEnrollment(ctx context.Context, vector models.EnrolledVector, record PatientRecord) (id.PatientID, error) {
	now := requestcontext.Now(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return id.PatientID{}, fmt.Errorf("begin enrollment: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO patient_records (
			patient_id, organization_id, full_name, date_of_birth,
			medical_record_number, allergies, clinical_summary, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (patient_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			date_of_birth = EXCLUDED.date_of_birth,
			medical_record_number = EXCLUDED.medical_record_number,
			allergies = EXCLUDED.allergies,
			clinical_summary = EXCLUDED.clinical_summary,
			updated_at = EXCLUDED.updated_at
		WHERE patient_records.organization_id = EXCLUDED.organization_id
	`,
		uuid.UUID(record.PatientID), uuid.UUID(record.OrganizationID),
		record.FullName, record.DateOfBirth, record.MedicalRecordNumber,
		pq.Array(record.Allergies), record.ClinicalSummary, now,
	)
	if err != nil {
		return id.PatientID{}, mapInsertError(err)
	}
	// The upsert's WHERE clause turns a cross-org re-enrollment into a zero-row
	// no-op. Surface it as a conflict so no vector lands under an org that
	// holds no record for the patient.
	affected, err := res.RowsAffected()
	if err != nil {
		return id.PatientID{}, fmt.Errorf("insert enrollment: %w", err)
	}
	if affected == 0 {
		return id.PatientID{}, fmt.Errorf("patient enrolled under another organization: %w", sentinel.ErrConflict)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO enrolled_vectors (patient_id, organization_id, encrypted_vector, vector_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		uuid.UUID(vector.PatientID), uuid.UUID(vector.OrganizationID),
		vector.EncryptedVector, vector.VectorHash, now,
	)
	if err != nil {
		return id.PatientID{}, mapInsertError(err)
	}

	if err := tx.Commit(); err != nil {
		return id.PatientID{}, fmt.Errorf("commit enrollment: %w", err)
	}
	return record.PatientID, nil
}

func mapInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("enrollment already exists: %w", sentinel.ErrConflict)
	}
	return fmt.Errorf("insert enrollment: %w", err)
}
