// Package identity orchestrates biometric identification and enrollment:
// extraction, quality gating, encryption, matching, and token issuance.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"medid/internal/audit"
	"medid/internal/biometric/match"
	"medid/internal/biometric/models"
	"medid/internal/biometric/quality"
	"medid/internal/extraction"
	"medid/internal/records"
	tokenmodels "medid/internal/token/models"
	tokensvc "medid/internal/token/service"
	"medid/internal/vectorcipher"
	id "medid/pkg/domain"
	dErrors "medid/pkg/domain-errors"
	"medid/pkg/platform/sentinel"
	"medid/pkg/requestcontext"
)

var tracer = otel.Tracer("medid/identity")

// IdentifyOutcome is the typed result of one identification attempt. Exactly
// one of the three shapes is populated:
//   - quality rejection: QualityRejected true, Admission set
//   - no matches: NoMatchReason set
//   - matches: Candidates non-empty and Token issued
type IdentifyOutcome struct {
	QualityRejected bool
	Admission       quality.Admission
	NoMatchReason   match.NoMatchReason
	Candidates      []models.MatchCandidate
	Token           tokenmodels.AccessToken
}

// EnrollOutcome is the typed result of one enrollment attempt.
type EnrollOutcome struct {
	QualityRejected bool
	Admission       quality.Admission
	Vector          models.EnrolledVector
}

// PatientMetadata carries the demographic fields captured at enrollment.
type PatientMetadata struct {
	PatientID           id.PatientID
	FullName            string
	DateOfBirth         time.Time
	MedicalRecordNumber string
	Allergies           []string
	ClinicalSummary     string
}

// Service wires the identification pipeline together.
type Service struct {
	extractor extraction.Extractor
	gate      *quality.Gate
	cipher    *vectorcipher.Cipher
	engine    *match.Engine
	store     records.Store
	tokens    *tokensvc.Service
	auditor   *audit.Recorder
	logger    *slog.Logger
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

// New constructs the identification service.
func New(
	extractor extraction.Extractor,
	gate *quality.Gate,
	cipher *vectorcipher.Cipher,
	engine *match.Engine,
	store records.Store,
	tokens *tokensvc.Service,
	opts ...Option,
) (*Service, error) {
	if extractor == nil || gate == nil || cipher == nil || engine == nil || store == nil || tokens == nil {
		return nil, errors.New("all identification collaborators are required")
	}
	svc := &Service{
		extractor: extractor,
		gate:      gate,
		cipher:    cipher,
		engine:    engine,
		store:     store,
		tokens:    tokens,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Identify runs the full pipeline for one captured image. A token is issued
// only when at least one candidate clears the high confidence tier; its
// patient set is exactly the eligible candidates.
func (s *Service) Identify(
	ctx context.Context,
	image []byte,
	clinicianID id.ClinicianID,
	orgID id.OrgID,
	ttlMinutes int,
) (IdentifyOutcome, error) {
	ctx, span := tracer.Start(ctx, "identity.Identify",
		trace.WithAttributes(attribute.String("org_id", orgID.String())))
	defer span.End()

	if orgID.IsNil() {
		return IdentifyOutcome{}, dErrors.New(dErrors.CodeTenantScope, "organization scope is required")
	}

	extracted, err := s.extractor.ExtractFeatureVector(ctx, image)
	if err != nil {
		s.audit(ctx, audit.ActionIdentificationFailed, false, map[string]any{
			"stage": "extraction", "error": err.Error(),
		})
		return IdentifyOutcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "feature extraction failed")
	}

	admission := s.gate.AdmitForIdentification(extracted.Vector, extracted.Quality)
	if !admission.Admitted {
		s.audit(ctx, audit.ActionQualityRejected, false, map[string]any{
			"flow": "identification", "quality": admission.Quality, "threshold": admission.Threshold,
		})
		return IdentifyOutcome{QualityRejected: true, Admission: admission}, nil
	}

	encrypted, err := s.cipher.EncryptVector(extracted.Vector)
	if err != nil {
		s.audit(ctx, audit.ActionAccessError, false, map[string]any{
			"stage": "encryption", "error": err.Error(),
		})
		return IdentifyOutcome{}, dErrors.Wrap(err, dErrors.CodeCrypto, "could not encrypt query vector")
	}

	result, err := s.engine.Identify(ctx, encrypted, orgID)
	if err != nil {
		s.audit(ctx, audit.ActionIdentificationFailed, false, map[string]any{
			"stage": "matching", "error": err.Error(),
		})
		return IdentifyOutcome{}, err
	}

	eligible := result.Eligible()
	if len(eligible) == 0 {
		s.audit(ctx, audit.ActionIdentificationFailed, false, map[string]any{
			"reason":     string(result.Reason),
			"candidates": len(result.Candidates),
		})
		return IdentifyOutcome{NoMatchReason: result.Reason}, nil
	}

	patientIDs := make([]id.PatientID, len(eligible))
	for i, c := range eligible {
		patientIDs[i] = c.PatientID
	}
	token, err := s.tokens.Issue(ctx, patientIDs, clinicianID, orgID, ttlMinutes)
	if err != nil {
		return IdentifyOutcome{}, err
	}

	s.audit(ctx, audit.ActionIdentificationSucceeded, true, map[string]any{
		"candidates":     len(result.Candidates),
		"eligible":       len(eligible),
		"top_confidence": eligible[0].Confidence,
	})
	span.SetAttributes(attribute.Int("eligible", len(eligible)))
	return IdentifyOutcome{Candidates: eligible, Token: token}, nil
}

// Enroll admits one sample against the stricter enrollment threshold and
// persists the encrypted vector alongside the patient record. Re-enrollment
// appends a new vector; history is immutable.
func (s *Service) Enroll(
	ctx context.Context,
	image []byte,
	meta PatientMetadata,
	orgID id.OrgID,
) (EnrollOutcome, error) {
	ctx, span := tracer.Start(ctx, "identity.Enroll",
		trace.WithAttributes(attribute.String("org_id", orgID.String())))
	defer span.End()

	if orgID.IsNil() {
		return EnrollOutcome{}, dErrors.New(dErrors.CodeTenantScope, "organization scope is required")
	}
	if err := validateMetadata(meta); err != nil {
		return EnrollOutcome{}, err
	}

	extracted, err := s.extractor.ExtractFeatureVector(ctx, image)
	if err != nil {
		s.audit(ctx, audit.ActionEnrollmentRejected, false, map[string]any{
			"stage": "extraction", "error": err.Error(),
		})
		return EnrollOutcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "feature extraction failed")
	}

	admission := s.gate.AdmitForEnrollment(extracted.Vector, extracted.Quality)
	if !admission.Admitted {
		s.audit(ctx, audit.ActionQualityRejected, false, map[string]any{
			"flow": "enrollment", "quality": admission.Quality, "threshold": admission.Threshold,
		})
		return EnrollOutcome{QualityRejected: true, Admission: admission}, nil
	}

	encrypted, err := s.cipher.EncryptVector(extracted.Vector)
	if err != nil {
		return EnrollOutcome{}, dErrors.Wrap(err, dErrors.CodeCrypto, "could not encrypt enrollment vector")
	}

	vector := models.EnrolledVector{
		PatientID:       meta.PatientID,
		OrganizationID:  orgID,
		EncryptedVector: encrypted,
		VectorHash:      vectorcipher.HashVector(extracted.Vector),
		CreatedAt:       requestcontext.Now(ctx),
	}
	record := records.PatientRecord{
		PatientID:           meta.PatientID,
		OrganizationID:      orgID,
		FullName:            meta.FullName,
		DateOfBirth:         meta.DateOfBirth,
		MedicalRecordNumber: meta.MedicalRecordNumber,
		Allergies:           meta.Allergies,
		ClinicalSummary:     meta.ClinicalSummary,
	}

	if _, err := s.store.InsertEnrollment(ctx, vector, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.audit(ctx, audit.ActionEnrollmentRejected, false, map[string]any{
				"reason": "conflict",
			})
			return EnrollOutcome{}, dErrors.Wrap(err, dErrors.CodeConflict, "enrollment conflicts with existing state")
		}
		return EnrollOutcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not persist enrollment")
	}

	s.audit(ctx, audit.ActionEnrollmentCompleted, true, map[string]any{
		"org_id":  orgID.String(),
		"quality": admission.Quality,
	})
	return EnrollOutcome{Admission: admission, Vector: vector}, nil
}

func validateMetadata(meta PatientMetadata) error {
	if meta.PatientID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "patient id is required")
	}
	if strings.TrimSpace(meta.FullName) == "" {
		return dErrors.New(dErrors.CodeValidation, "patient full name is required")
	}
	if meta.DateOfBirth.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "patient date of birth is required")
	}
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
