package models

import (
	"sort"
	"time"

	id "medid/pkg/domain"
)

// AccessToken is a short-lived credential authorizing disclosure of specific
// patients' records to one clinician until an expiry time.
//
// PatientIDs is fixed at creation and never appended to. The only mutation a
// token ever sees is revocation; expiry is purely time-based.
type AccessToken struct {
	ID             id.TokenID
	PatientIDs     []id.PatientID
	IssuedTo       id.ClinicianID
	OrganizationID id.OrgID
	IssuedAt       time.Time
	ExpiresAt      time.Time
	Revoked        bool
}

// NewAccessToken builds a token over a defensive, deduplicated, sorted copy
// of patientIDs so callers cannot alias or reorder the set afterwards.
func NewAccessToken(
	tokenID id.TokenID,
	patientIDs []id.PatientID,
	clinicianID id.ClinicianID,
	orgID id.OrgID,
	issuedAt time.Time,
	ttl time.Duration,
) AccessToken {
	return AccessToken{
		ID:             tokenID,
		PatientIDs:     normalizePatientSet(patientIDs),
		IssuedTo:       clinicianID,
		OrganizationID: orgID,
		IssuedAt:       issuedAt,
		ExpiresAt:      issuedAt.Add(ttl),
	}
}

// Valid reports whether the token is usable at all: not revoked and now is at
// or before expiry.
func (t AccessToken) Valid(now time.Time) bool {
	return !t.Revoked && !now.After(t.ExpiresAt)
}

// Covers reports whether the token's patient set names patientID.
func (t AccessToken) Covers(patientID id.PatientID) bool {
	for _, pid := range t.PatientIDs {
		if pid == patientID {
			return true
		}
	}
	return false
}

// CanDisclose encodes the disclosure invariant: a token discloses data for a
// patient iff that patient is in the set AND the token is not revoked AND now
// is at or before expiry.
func (t AccessToken) CanDisclose(patientID id.PatientID, now time.Time) bool {
	return t.Valid(now) && t.Covers(patientID)
}

// Remaining returns the time left until expiry (negative once expired).
func (t AccessToken) Remaining(now time.Time) time.Duration {
	return t.ExpiresAt.Sub(now)
}

// Clone returns a deep copy so store reads never alias internal state.
func (t AccessToken) Clone() AccessToken {
	out := t
	out.PatientIDs = append([]id.PatientID{}, t.PatientIDs...)
	return out
}

func normalizePatientSet(patientIDs []id.PatientID) []id.PatientID {
	seen := make(map[id.PatientID]struct{}, len(patientIDs))
	out := make([]id.PatientID, 0, len(patientIDs))
	for _, pid := range patientIDs {
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		out = append(out, pid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
