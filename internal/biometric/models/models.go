package models

import (
	"time"

	id "medid/pkg/domain"
)

// FeatureVector is a numeric embedding representing a face. It is used only
// for similarity comparison, never for visual reconstruction.
type FeatureVector []float64

// Clone returns an independent copy so callers cannot alias the backing array.
func (v FeatureVector) Clone() FeatureVector {
	if v == nil {
		return nil
	}
	out := make(FeatureVector, len(v))
	copy(out, v)
	return out
}

// EnrolledVector is the long-term encrypted reference for one patient within
// one organization. Created once at registration and immutable thereafter;
// re-enrollment inserts a new record so the audit history stays continuous.
type EnrolledVector struct {
	PatientID       id.PatientID
	OrganizationID  id.OrgID
	EncryptedVector []byte
	// VectorHash is a one-way digest of the plaintext vector, used for
	// integrity checks without decryption.
	VectorHash string
	CreatedAt  time.Time
}

// MatchCandidate is an ephemeral per-identification result. It is never
// persisted.
type MatchCandidate struct {
	PatientID      id.PatientID
	OrganizationID id.OrgID
	// Confidence is a normalized similarity score in [0,1] where 1 means the
	// query and enrolled vectors are identical.
	Confidence  float64
	LastUpdated time.Time
}
