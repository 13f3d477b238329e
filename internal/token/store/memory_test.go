package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"medid/internal/token/models"
	id "medid/pkg/domain"
	"medid/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
}

func (s *InMemoryStoreSuite) newToken(ttl time.Duration) models.AccessToken {
	tokenID, err := id.NewTokenID()
	s.Require().NoError(err)
	return models.NewAccessToken(
		tokenID,
		[]id.PatientID{id.PatientID(uuid.New())},
		id.ClinicianID(uuid.New()),
		id.OrgID(uuid.New()),
		time.Now(),
		ttl,
	)
}

func (s *InMemoryStoreSuite) TestSaveAndFind() {
	token := s.newToken(20 * time.Minute)
	s.Require().NoError(s.store.Save(s.ctx, token))

	found, err := s.store.Find(s.ctx, token.ID)
	s.Require().NoError(err)
	s.Equal(token.ID, found.ID)
	s.Equal(token.PatientIDs, found.PatientIDs)
	s.False(found.Revoked)
}

func (s *InMemoryStoreSuite) TestFindUnknownToken() {
	tokenID, err := id.NewTokenID()
	s.Require().NoError(err)

	_, err = s.store.Find(s.ctx, tokenID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestFindReturnsCopy() {
	token := s.newToken(20 * time.Minute)
	s.Require().NoError(s.store.Save(s.ctx, token))

	found, err := s.store.Find(s.ctx, token.ID)
	s.Require().NoError(err)
	found.PatientIDs[0] = id.PatientID(uuid.New())

	again, err := s.store.Find(s.ctx, token.ID)
	s.Require().NoError(err)
	s.Equal(token.PatientIDs, again.PatientIDs)
}

func (s *InMemoryStoreSuite) TestMarkRevoked() {
	token := s.newToken(20 * time.Minute)
	s.Require().NoError(s.store.Save(s.ctx, token))

	s.Require().NoError(s.store.MarkRevoked(s.ctx, token.ID))

	found, err := s.store.Find(s.ctx, token.ID)
	s.Require().NoError(err)
	s.True(found.Revoked)
}

func (s *InMemoryStoreSuite) TestMarkRevokedUnknownTokenIsNoOp() {
	tokenID, err := id.NewTokenID()
	s.Require().NoError(err)
	s.NoError(s.store.MarkRevoked(s.ctx, tokenID))
}

func (s *InMemoryStoreSuite) TestMarkRevokedIsIdempotent() {
	token := s.newToken(20 * time.Minute)
	s.Require().NoError(s.store.Save(s.ctx, token))

	s.Require().NoError(s.store.MarkRevoked(s.ctx, token.ID))
	s.Require().NoError(s.store.MarkRevoked(s.ctx, token.ID))

	found, err := s.store.Find(s.ctx, token.ID)
	s.Require().NoError(err)
	s.True(found.Revoked)
}

func (s *InMemoryStoreSuite) TestDeleteExpired() {
	live := s.newToken(20 * time.Minute)
	expired := s.newToken(time.Minute)
	s.Require().NoError(s.store.Save(s.ctx, live))
	s.Require().NoError(s.store.Save(s.ctx, expired))

	deleted, err := s.store.DeleteExpired(s.ctx, expired.ExpiresAt.Add(time.Second))
	s.Require().NoError(err)
	s.Equal(1, deleted)
	s.Equal(1, s.store.Len())

	_, err = s.store.Find(s.ctx, expired.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.Find(s.ctx, live.ID)
	s.NoError(err)
}

func (s *InMemoryStoreSuite) TestDeleteExpiredKeepsTokenAtBoundary() {
	token := s.newToken(time.Minute)
	s.Require().NoError(s.store.Save(s.ctx, token))

	deleted, err := s.store.DeleteExpired(s.ctx, token.ExpiresAt)
	s.Require().NoError(err)
	s.Equal(0, deleted)
	s.Equal(1, s.store.Len())
}
