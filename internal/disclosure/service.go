// Package disclosure orchestrates the release of one patient record against a
// scoped access token. Every attempt, allowed or denied, leaves an audit
// entry; callers only ever see a generic denial.
package disclosure

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"medid/internal/audit"
	"medid/internal/records"
	tokensvc "medid/internal/token/service"
	id "medid/pkg/domain"
	dErrors "medid/pkg/domain-errors"
	"medid/pkg/platform/sentinel"
	"medid/pkg/requestcontext"
)

var tracer = otel.Tracer("medid/disclosure")

// DefaultReason is recorded when the caller does not state a disclosure
// reason.
const DefaultReason = "MEDICAL_CONSULTATION"

// ExpiryWarningWindow is the remaining-TTL threshold below which an
// informational expiring-soon audit entry is emitted.
const ExpiryWarningWindow = 5 * time.Minute

// Disclosure is a granted record release.
type Disclosure struct {
	Record    records.PatientRecord
	Remaining time.Duration
}

// Service runs the disclosure pipeline: token check, record lookup, TTL
// compute, audit and return.
type Service struct {
	tokens  *tokensvc.Service
	store   records.Store
	auditor *audit.Recorder
	logger  *slog.Logger
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

// New constructs a disclosure service.
func New(tokens *tokensvc.Service, store records.Store, opts ...Option) (*Service, error) {
	if tokens == nil || store == nil {
		return nil, errors.New("token service and record store are required")
	}
	svc := &Service{tokens: tokens, store: store}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Disclose releases the record for patientID iff the token covers it right
// now. Token rejections are indistinguishable to the caller; the sub-reason
// (expired, revoked, unknown, out of scope) lives only in the audit trail.
func (s *Service) Disclose(
	ctx context.Context,
	patientID id.PatientID,
	tokenID id.TokenID,
	clinicianID id.ClinicianID,
	orgID id.OrgID,
	reason string,
) (Disclosure, error) {
	ctx, span := tracer.Start(ctx, "disclosure.Disclose",
		trace.WithAttributes(attribute.String("org_id", orgID.String())))
	defer span.End()

	if reason == "" {
		reason = DefaultReason
	}
	now := requestcontext.Now(ctx)

	denyMeta := map[string]any{
		"patient_id": patientID.String(),
		"org_id":     orgID.String(),
	}

	// TOKEN_CHECK
	token, err := s.tokens.Find(ctx, tokenID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Disclosure{}, s.deny(ctx, "token_unknown", denyMeta)
		}
		s.audit(ctx, audit.ActionAccessError, false, map[string]any{"stage": "token_check", "error": err.Error()})
		return Disclosure{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not check access token")
	}
	switch {
	case token.Revoked:
		return Disclosure{}, s.deny(ctx, "token_revoked", denyMeta)
	case now.After(token.ExpiresAt):
		return Disclosure{}, s.deny(ctx, "token_expired", denyMeta)
	case token.IssuedTo != clinicianID:
		return Disclosure{}, s.deny(ctx, "token_wrong_clinician", denyMeta)
	case token.OrganizationID != orgID:
		s.audit(ctx, audit.ActionScopeViolation, false, denyMeta)
		return Disclosure{}, dErrors.New(dErrors.CodeAccessDenied, "access denied")
	case !token.Covers(patientID):
		return Disclosure{}, s.deny(ctx, "patient_not_in_token_scope", denyMeta)
	}

	// RECORD_LOOKUP
	record, err := s.store.GetFullRecord(ctx, patientID, orgID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.audit(ctx, audit.ActionAccessError, false, map[string]any{
				"stage":      "record_lookup",
				"patient_id": patientID.String(),
				"reason":     "record_not_found",
			})
			return Disclosure{}, dErrors.New(dErrors.CodeNotFound, "patient record not found")
		}
		s.audit(ctx, audit.ActionAccessError, false, map[string]any{"stage": "record_lookup", "error": err.Error()})
		return Disclosure{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not load patient record")
	}

	// TTL_COMPUTE
	remaining := token.Remaining(now)
	if remaining <= ExpiryWarningWindow {
		s.audit(ctx, audit.ActionTokenExpiringSoon, true, map[string]any{
			"remaining": remaining.String(),
		})
	}

	// AUDIT_AND_RETURN
	s.audit(ctx, audit.ActionPatientDataAccessed, true, map[string]any{
		"patient_id":   patientID.String(),
		"clinician_id": clinicianID.String(),
		"org_id":       orgID.String(),
		"reason":       reason,
		"expires_at":   token.ExpiresAt,
	})
	span.SetAttributes(attribute.String("outcome", "disclosed"))
	return Disclosure{Record: record, Remaining: remaining}, nil
}

// RevokeAccess revokes the token and reports success as a boolean. Revoking
// an unknown or already-expired token still reports true; the operation is
// idempotent and leaks nothing about token existence.
func (s *Service) RevokeAccess(ctx context.Context, tokenID id.TokenID, clinicianID id.ClinicianID) bool {
	ctx, span := tracer.Start(ctx, "disclosure.RevokeAccess")
	defer span.End()

	if err := s.tokens.Revoke(ctx, tokenID); err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "revoke access failed",
				"clinician_id", clinicianID.String(), "error", err)
		}
		return false
	}
	return true
}

// deny records an ACCESS_DENIED audit entry carrying the sub-reason and
// returns the caller-facing generic denial.
func (s *Service) deny(ctx context.Context, subReason string, metadata map[string]any) error {
	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["denial_reason"] = subReason
	s.audit(ctx, audit.ActionAccessDenied, false, meta)
	return dErrors.New(dErrors.CodeAccessDenied, "access denied")
}

func (s *Service) audit(ctx context.Context, action audit.Action, success bool, metadata map[string]any) {
	if s.auditor != nil {
		s.auditor.Record(ctx, action, success, metadata)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(action), "log_type", "audit", "success", success)
	}
}
