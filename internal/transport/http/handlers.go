package httptransport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"medid/internal/disclosure"
	"medid/internal/identity"
	tokenmodels "medid/internal/token/models"
	id "medid/pkg/domain"
	dErrors "medid/pkg/domain-errors"
)

// IdentityService is the slice of the identification service the routes use.
type IdentityService interface {
	Identify(ctx context.Context, image []byte, clinicianID id.ClinicianID, orgID id.OrgID, ttlMinutes int) (identity.IdentifyOutcome, error)
	Enroll(ctx context.Context, image []byte, meta identity.PatientMetadata, orgID id.OrgID) (identity.EnrollOutcome, error)
}

// DisclosureService is the slice of the disclosure service the routes use.
type DisclosureService interface {
	Disclose(ctx context.Context, patientID id.PatientID, tokenID id.TokenID, clinicianID id.ClinicianID, orgID id.OrgID, reason string) (disclosure.Disclosure, error)
	RevokeAccess(ctx context.Context, tokenID id.TokenID, clinicianID id.ClinicianID) bool
}

// SessionChecker gates requests on session liveness.
type SessionChecker interface {
	CheckValidity(ctx context.Context, sessionID id.SessionID) bool
	RecordActivity(ctx context.Context, sessionID id.SessionID)
}

// BearerCodec seals token ids for transport.
type BearerCodec interface {
	Encode(token tokenmodels.AccessToken) (string, error)
	Decode(raw string) (id.TokenID, error)
}

type identifyRequest struct {
	ImageB64    string `json:"image"`
	ClinicianID string `json:"clinician_id"`
	OrgID       string `json:"organization_id"`
	TTLMinutes  int    `json:"ttl_minutes"`
}

type matchResponse struct {
	PatientID  string  `json:"patient_id"`
	Confidence float64 `json:"confidence"`
}

type identifyResponse struct {
	Matches        []matchResponse `json:"matches,omitempty"`
	Token          string          `json:"token,omitempty"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	NoMatchesFound bool            `json:"no_matches_found,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

func (h *Handler) handleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.checkSession(w, r) {
		return
	}

	var req identifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	clinicianID, orgID, err := parseActors(req.ClinicianID, req.OrgID)
	if err != nil {
		writeError(w, err)
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageB64)
	if err != nil || len(image) == 0 {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "image must be non-empty base64"))
		return
	}

	if h.metrics != nil {
		h.metrics.IdentificationsTotal.Inc()
	}
	outcome, err := h.identity.Identify(ctx, image, clinicianID, orgID, req.TTLMinutes)
	if err != nil {
		writeError(w, err)
		return
	}

	switch {
	case outcome.QualityRejected:
		if h.metrics != nil {
			h.metrics.QualityRejections.Inc()
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     "quality_rejected",
			"message":   "sample quality below threshold, capture again",
			"quality":   outcome.Admission.Quality,
			"threshold": outcome.Admission.Threshold,
		})
	case len(outcome.Candidates) == 0:
		writeJSON(w, http.StatusOK, identifyResponse{
			NoMatchesFound: true,
			Reason:         string(outcome.NoMatchReason),
		})
	default:
		sealed, err := h.bearer.Encode(outcome.Token)
		if err != nil {
			writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "could not seal access token"))
			return
		}
		matches := make([]matchResponse, len(outcome.Candidates))
		for i, c := range outcome.Candidates {
			matches[i] = matchResponse{PatientID: c.PatientID.String(), Confidence: c.Confidence}
		}
		expires := outcome.Token.ExpiresAt
		writeJSON(w, http.StatusOK, identifyResponse{
			Matches:   matches,
			Token:     sealed,
			ExpiresAt: &expires,
		})
	}
}

type discloseRequest struct {
	PatientID   string `json:"patient_id"`
	Token       string `json:"token"`
	ClinicianID string `json:"clinician_id"`
	OrgID       string `json:"organization_id"`
	Reason      string `json:"reason"`
}

type discloseResponse struct {
	Record           recordResponse `json:"record"`
	RemainingMinutes float64        `json:"remaining_minutes"`
}

type recordResponse struct {
	PatientID           string   `json:"patient_id"`
	FullName            string   `json:"full_name"`
	DateOfBirth         string   `json:"date_of_birth"`
	MedicalRecordNumber string   `json:"medical_record_number,omitempty"`
	Allergies           []string `json:"allergies,omitempty"`
	ClinicalSummary     string   `json:"clinical_summary,omitempty"`
}

func (h *Handler) handleDisclose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.checkSession(w, r) {
		return
	}

	var req discloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	clinicianID, orgID, err := parseActors(req.ClinicianID, req.OrgID)
	if err != nil {
		writeError(w, err)
		return
	}
	patientID, err := id.ParsePatientID(req.PatientID)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid patient_id"))
		return
	}
	tokenID, err := h.bearer.Decode(req.Token)
	if err != nil {
		if h.metrics != nil {
			h.metrics.AccessDenialsTotal.Inc()
		}
		writeError(w, err)
		return
	}

	disclosed, err := h.disclosure.Disclose(ctx, patientID, tokenID, clinicianID, orgID, req.Reason)
	if err != nil {
		if h.metrics != nil && dErrors.HasCode(err, dErrors.CodeAccessDenied) {
			h.metrics.AccessDenialsTotal.Inc()
		}
		writeError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.DisclosuresTotal.Inc()
	}
	writeJSON(w, http.StatusOK, discloseResponse{
		Record: recordResponse{
			PatientID:           disclosed.Record.PatientID.String(),
			FullName:            disclosed.Record.FullName,
			DateOfBirth:         disclosed.Record.DateOfBirth.Format("2006-01-02"),
			MedicalRecordNumber: disclosed.Record.MedicalRecordNumber,
			Allergies:           disclosed.Record.Allergies,
			ClinicalSummary:     disclosed.Record.ClinicalSummary,
		},
		RemainingMinutes: disclosed.Remaining.Minutes(),
	})
}

type revokeRequest struct {
	Token       string `json:"token"`
	ClinicianID string `json:"clinician_id"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	clinicianID, err := id.ParseClinicianID(req.ClinicianID)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid clinician_id"))
		return
	}
	tokenID, err := h.bearer.Decode(req.Token)
	if err != nil {
		writeError(w, err)
		return
	}

	revoked := h.disclosure.RevokeAccess(r.Context(), tokenID, clinicianID)
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

type enrollRequest struct {
	ImageB64            string   `json:"image"`
	OrgID               string   `json:"organization_id"`
	PatientID           string   `json:"patient_id"`
	FullName            string   `json:"full_name"`
	DateOfBirth         string   `json:"date_of_birth"`
	MedicalRecordNumber string   `json:"medical_record_number"`
	Allergies           []string `json:"allergies"`
	ClinicalSummary     string   `json:"clinical_summary"`
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	orgID, err := id.ParseOrgID(req.OrgID)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid organization_id"))
		return
	}
	patientID, err := id.ParsePatientID(req.PatientID)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid patient_id"))
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageB64)
	if err != nil || len(image) == 0 {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "image must be non-empty base64"))
		return
	}
	meta := identity.PatientMetadata{
		PatientID:           patientID,
		FullName:            req.FullName,
		MedicalRecordNumber: req.MedicalRecordNumber,
		Allergies:           req.Allergies,
		ClinicalSummary:     req.ClinicalSummary,
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeValidation, "date_of_birth must be YYYY-MM-DD"))
			return
		}
		meta.DateOfBirth = dob
	}

	if h.metrics != nil {
		h.metrics.EnrollmentsTotal.Inc()
	}
	outcome, err := h.identity.Enroll(r.Context(), image, meta, orgID)
	if err != nil {
		writeError(w, err)
		return
	}
	if outcome.QualityRejected {
		if h.metrics != nil {
			h.metrics.QualityRejections.Inc()
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     "quality_rejected",
			"message":   "sample quality below enrollment threshold, capture again",
			"quality":   outcome.Admission.Quality,
			"threshold": outcome.Admission.Threshold,
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"patient_id":  outcome.Vector.PatientID.String(),
		"vector_hash": outcome.Vector.VectorHash,
	})
}

// checkSession validates and refreshes the caller's session when the header
// is present. Requests without a session header pass through unless the
// handler was built with WithSessionRequired.
func (h *Handler) checkSession(w http.ResponseWriter, r *http.Request) bool {
	if h.sessions == nil {
		return true
	}
	raw := r.Header.Get("X-Session-ID")
	if raw == "" {
		if h.sessionGated {
			writeError(w, dErrors.New(dErrors.CodeAccessDenied, "access denied"))
			return false
		}
		return true
	}
	sessionID, err := id.ParseSessionID(raw)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid session id"))
		return false
	}
	if !h.sessions.CheckValidity(r.Context(), sessionID) {
		writeError(w, dErrors.New(dErrors.CodeAccessDenied, "access denied"))
		return false
	}
	h.sessions.RecordActivity(r.Context(), sessionID)
	return true
}

func parseActors(clinician, org string) (id.ClinicianID, id.OrgID, error) {
	clinicianID, err := id.ParseClinicianID(clinician)
	if err != nil {
		return id.ClinicianID{}, id.OrgID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid clinician_id")
	}
	orgID, err := id.ParseOrgID(org)
	if err != nil {
		return id.ClinicianID{}, id.OrgID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid organization_id")
	}
	return clinicianID, orgID, nil
}
