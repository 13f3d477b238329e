package domain

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"

	dErrors "medid/pkg/domain-errors"
)

// Typed UUID wrappers for the identifiers that cross component boundaries.
// The distinct types make cross-assignment a compile error: a PatientID can
// never be passed where an OrgID is expected, which matters for the tenant
// boundary checks.
//
// Construct via the Parse* functions at trust boundaries; direct casting
// bypasses validation.
type (
	PatientID   uuid.UUID
	ClinicianID uuid.UUID
	OrgID       uuid.UUID
	SessionID   uuid.UUID
)

// TokenID is an opaque access token identifier. Unlike the UUID-backed ids it
// is a crypto/rand-generated string carrying at least 128 bits of entropy, so
// it cannot be enumerated or guessed.
type TokenID string

// tokenIDBytes is the entropy of a generated token id (256 bits).
const tokenIDBytes = 32

// NewTokenID generates an unguessable token identifier from the secure random
// source.
func NewTokenID() (TokenID, error) {
	buf := make([]byte, tokenIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate token id")
	}
	return TokenID(base64.RawURLEncoding.EncodeToString(buf)), nil
}

// ParseTokenID validates an externally supplied token identifier. It only
// checks shape, never existence: rejection here is input validation, not an
// access decision.
func ParseTokenID(s string) (TokenID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "token id cannot be empty")
	}
	if len(s) > 128 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "token id is too long")
	}
	return TokenID(s), nil
}

func (id TokenID) String() string { return string(id) }
func (id TokenID) IsNil() bool    { return id == "" }

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is too long")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return parsed, nil
}

// ParsePatientID validates and returns a PatientID.
func ParsePatientID(s string) (PatientID, error) {
	parsed, err := parseUUID(s)
	return PatientID(parsed), err
}

// ParseClinicianID validates and returns a ClinicianID.
func ParseClinicianID(s string) (ClinicianID, error) {
	parsed, err := parseUUID(s)
	return ClinicianID(parsed), err
}

// ParseOrgID validates and returns an OrgID.
func ParseOrgID(s string) (OrgID, error) {
	parsed, err := parseUUID(s)
	return OrgID(parsed), err
}

// ParseSessionID validates and returns a SessionID.
func ParseSessionID(s string) (SessionID, error) {
	parsed, err := parseUUID(s)
	return SessionID(parsed), err
}

func (id PatientID) String() string   { return uuid.UUID(id).String() }
func (id ClinicianID) String() string { return uuid.UUID(id).String() }
func (id OrgID) String() string       { return uuid.UUID(id).String() }
func (id SessionID) String() string   { return uuid.UUID(id).String() }

func (id PatientID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ClinicianID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id OrgID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
