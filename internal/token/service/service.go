// Package service issues, validates, and revokes temporary access tokens.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"medid/internal/audit"
	"medid/internal/token/models"
	id "medid/pkg/domain"
	dErrors "medid/pkg/domain-errors"
	"medid/pkg/platform/sentinel"
	"medid/pkg/requestcontext"
)

// DefaultTTLMinutes applies when the caller does not request a TTL.
const DefaultTTLMinutes = 30

// Store is the persistence port for access tokens.
type Store interface {
	Save(ctx context.Context, token models.AccessToken) error
	Find(ctx context.Context, tokenID id.TokenID) (models.AccessToken, error)
	MarkRevoked(ctx context.Context, tokenID id.TokenID) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Service owns the token lifecycle. It is the only component that mutates
// token state; everyone else holds the opaque token id.
type Service struct {
	store      Store
	auditor    *audit.Recorder
	logger     *slog.Logger
	newToken   func() (id.TokenID, error)
	defaultTTL int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAuditor attaches the security auditor.
func WithAuditor(auditor *audit.Recorder) Option {
	return func(s *Service) { s.auditor = auditor }
}

// WithTokenIDSource overrides token id generation (tests only).
func WithTokenIDSource(fn func() (id.TokenID, error)) Option {
	return func(s *Service) { s.newToken = fn }
}

// WithDefaultTTL overrides the TTL applied when the caller requests none.
func WithDefaultTTL(minutes int) Option {
	return func(s *Service) {
		if minutes > 0 {
			s.defaultTTL = minutes
		}
	}
}

// New constructs a token service.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("token store is required")
	}
	svc := &Service{store: store, newToken: id.NewTokenID, defaultTTL: DefaultTTLMinutes}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Issue creates a token scoped to patientIDs for one clinician. The patient
// set is fixed at creation; issuing with an empty set is an input error.
func (s *Service) Issue(
	ctx context.Context,
	patientIDs []id.PatientID,
	clinicianID id.ClinicianID,
	orgID id.OrgID,
	ttlMinutes int,
) (models.AccessToken, error) {
	if len(patientIDs) == 0 {
		return models.AccessToken{}, dErrors.New(dErrors.CodeInvalidInput, "patient set cannot be empty")
	}
	if clinicianID.IsNil() {
		return models.AccessToken{}, dErrors.New(dErrors.CodeInvalidInput, "clinician id is required")
	}
	if orgID.IsNil() {
		return models.AccessToken{}, dErrors.New(dErrors.CodeTenantScope, "organization scope is required")
	}
	if ttlMinutes <= 0 {
		ttlMinutes = s.defaultTTL
	}

	tokenID, err := s.newToken()
	if err != nil {
		return models.AccessToken{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate token id")
	}

	now := requestcontext.Now(ctx)
	token := models.NewAccessToken(tokenID, patientIDs, clinicianID, orgID, now, time.Duration(ttlMinutes)*time.Minute)

	if err := s.store.Save(ctx, token); err != nil {
		return models.AccessToken{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not save access token")
	}

	s.audit(ctx, audit.ActionTokenIssued, true, map[string]any{
		"patient_count": len(token.PatientIDs),
		"org_id":        orgID.String(),
		"ttl_minutes":   ttlMinutes,
		"expires_at":    token.ExpiresAt,
	})
	return token.Clone(), nil
}

// Validate reports whether the token exists, is not revoked, and has not
// expired. Store failures surface as errors; a missing token is simply false.
func (s *Service) Validate(ctx context.Context, tokenID id.TokenID) (bool, error) {
	token, err := s.store.Find(ctx, tokenID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "could not look up access token")
	}
	return token.Valid(requestcontext.Now(ctx)), nil
}

// Find returns the stored token for orchestration-level checks (patient
// scope, remaining TTL). Missing tokens map to wrapped sentinel.ErrNotFound.
func (s *Service) Find(ctx context.Context, tokenID id.TokenID) (models.AccessToken, error) {
	return s.store.Find(ctx, tokenID)
}

// Revoke sets the revoked flag. Idempotent: revoking an already revoked or
// unknown token succeeds without distinguishing the cases, so the call leaks
// nothing about token existence.
func (s *Service) Revoke(ctx context.Context, tokenID id.TokenID) error {
	if err := s.store.MarkRevoked(ctx, tokenID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not revoke access token")
	}
	s.audit(ctx, audit.ActionTokenRevoked, true, nil)
	return nil
}

func (s *Service) audit(ctx context.Context, action audit.Action, success bool, metadata map[string]any) {
	if s.auditor != nil {
		s.auditor.Record(ctx, action, success, metadata)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(action), "log_type", "audit", "success", success)
	}
}
