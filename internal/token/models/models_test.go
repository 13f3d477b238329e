package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "medid/pkg/domain"
)

func newToken(t *testing.T, ttl time.Duration, patients ...id.PatientID) AccessToken {
	t.Helper()
	tokenID, err := id.NewTokenID()
	require.NoError(t, err)
	return NewAccessToken(tokenID, patients, id.ClinicianID(uuid.New()), id.OrgID(uuid.New()), time.Now(), ttl)
}

func TestCanDisclose(t *testing.T) {
	patient := id.PatientID(uuid.New())
	other := id.PatientID(uuid.New())
	now := time.Now()

	t.Run("covered patient within window", func(t *testing.T) {
		token := newToken(t, 20*time.Minute, patient)
		assert.True(t, token.CanDisclose(patient, now))
	})

	t.Run("patient outside the set always fails even when otherwise valid", func(t *testing.T) {
		token := newToken(t, 20*time.Minute, patient)
		assert.True(t, token.Valid(now))
		assert.False(t, token.CanDisclose(other, now))
	})

	t.Run("revoked token fails for every patient", func(t *testing.T) {
		token := newToken(t, 20*time.Minute, patient)
		token.Revoked = true
		assert.False(t, token.CanDisclose(patient, now))
	})

	t.Run("expiry is exclusive past the boundary", func(t *testing.T) {
		token := newToken(t, 20*time.Minute, patient)
		assert.True(t, token.CanDisclose(patient, token.ExpiresAt))
		assert.False(t, token.CanDisclose(patient, token.ExpiresAt.Add(time.Nanosecond)))
	})
}

func TestPatientSetNormalization(t *testing.T) {
	a := id.PatientID(uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000000"))
	b := id.PatientID(uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000000"))

	token := newToken(t, time.Minute, b, a, b, a)

	require.Len(t, token.PatientIDs, 2)
	assert.Equal(t, a, token.PatientIDs[0])
	assert.Equal(t, b, token.PatientIDs[1])
}

func TestCloneDoesNotAlias(t *testing.T) {
	patient := id.PatientID(uuid.New())
	token := newToken(t, time.Minute, patient)

	clone := token.Clone()
	clone.PatientIDs[0] = id.PatientID(uuid.New())

	assert.Equal(t, patient, token.PatientIDs[0])
}

func TestRemaining(t *testing.T) {
	token := newToken(t, 20*time.Minute, id.PatientID(uuid.New()))
	remaining := token.Remaining(token.IssuedAt.Add(15 * time.Minute))
	assert.Equal(t, 5*time.Minute, remaining)
	assert.Negative(t, token.Remaining(token.ExpiresAt.Add(time.Second)))
}
