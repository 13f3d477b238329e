package httptransport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"medid/internal/biometric/models"
	"medid/internal/disclosure"
	"medid/internal/identity"
	"medid/internal/records"
	tokenmodels "medid/internal/token/models"
	id "medid/pkg/domain"
	dErrors "medid/pkg/domain-errors"
)

type fakeIdentity struct {
	identifyOutcome identity.IdentifyOutcome
	identifyErr     error
	enrollOutcome   identity.EnrollOutcome
	enrollErr       error
}

func (f *fakeIdentity) Identify(_ context.Context, _ []byte, _ id.ClinicianID, _ id.OrgID, _ int) (identity.IdentifyOutcome, error) {
	return f.identifyOutcome, f.identifyErr
}

func (f *fakeIdentity) Enroll(_ context.Context, _ []byte, _ identity.PatientMetadata, _ id.OrgID) (identity.EnrollOutcome, error) {
	return f.enrollOutcome, f.enrollErr
}

type fakeDisclosure struct {
	disclosed   disclosure.Disclosure
	discloseErr error
	revoked     bool
}

func (f *fakeDisclosure) Disclose(_ context.Context, _ id.PatientID, _ id.TokenID, _ id.ClinicianID, _ id.OrgID, _ string) (disclosure.Disclosure, error) {
	return f.disclosed, f.discloseErr
}

func (f *fakeDisclosure) RevokeAccess(_ context.Context, _ id.TokenID, _ id.ClinicianID) bool {
	return f.revoked
}

type fakeSessions struct {
	valid    bool
	activity int
}

func (f *fakeSessions) CheckValidity(_ context.Context, _ id.SessionID) bool { return f.valid }
func (f *fakeSessions) RecordActivity(_ context.Context, _ id.SessionID)     { f.activity++ }

// passthroughBearer moves token ids verbatim, so tests assert on the raw id.
type passthroughBearer struct{}

func (passthroughBearer) Encode(token tokenmodels.AccessToken) (string, error) {
	return token.ID.String(), nil
}

func (passthroughBearer) Decode(raw string) (id.TokenID, error) {
	if raw == "" {
		return "", dErrors.New(dErrors.CodeAccessDenied, "access denied")
	}
	return id.TokenID(raw), nil
}

type HandlerSuite struct {
	suite.Suite
	identity   *fakeIdentity
	disclosure *fakeDisclosure
	sessions   *fakeSessions
	router     http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.identity = &fakeIdentity{}
	s.disclosure = &fakeDisclosure{revoked: true}
	s.sessions = &fakeSessions{valid: true}
	handler := NewHandler(s.identity, s.disclosure, s.sessions, passthroughBearer{}, nil,
		slog.New(slog.DiscardHandler))
	s.router = NewRouter(handler, slog.New(slog.DiscardHandler))
}

func (s *HandlerSuite) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) image() string {
	return base64.StdEncoding.EncodeToString([]byte("image-bytes"))
}

func (s *HandlerSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/healthz", nil, nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlerSuite) TestIdentifyWithMatches() {
	patientID := id.PatientID(uuid.New())
	tokenID, err := id.NewTokenID()
	s.Require().NoError(err)
	s.identity.identifyOutcome = identity.IdentifyOutcome{
		Candidates: []models.MatchCandidate{{PatientID: patientID, Confidence: 0.93}},
		Token: tokenmodels.AccessToken{
			ID:        tokenID,
			ExpiresAt: time.Now().Add(20 * time.Minute),
		},
	}

	rec := s.do(http.MethodPost, "/v1/identify", identifyRequest{
		ImageB64:    s.image(),
		ClinicianID: uuid.NewString(),
		OrgID:       uuid.NewString(),
		TTLMinutes:  20,
	}, nil)

	s.Equal(http.StatusOK, rec.Code)
	var resp identifyResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Require().Len(resp.Matches, 1)
	s.Equal(patientID.String(), resp.Matches[0].PatientID)
	s.Equal(tokenID.String(), resp.Token)
}

func (s *HandlerSuite) TestIdentifyQualityRejected() {
	s.identity.identifyOutcome = identity.IdentifyOutcome{QualityRejected: true}

	rec := s.do(http.MethodPost, "/v1/identify", identifyRequest{
		ImageB64:    s.image(),
		ClinicianID: uuid.NewString(),
		OrgID:       uuid.NewString(),
	}, nil)

	s.Equal(http.StatusUnprocessableEntity, rec.Code)
}

func (s *HandlerSuite) TestIdentifyNoMatches() {
	s.identity.identifyOutcome = identity.IdentifyOutcome{NoMatchReason: "no_matches"}

	rec := s.do(http.MethodPost, "/v1/identify", identifyRequest{
		ImageB64:    s.image(),
		ClinicianID: uuid.NewString(),
		OrgID:       uuid.NewString(),
	}, nil)

	s.Equal(http.StatusOK, rec.Code)
	var resp identifyResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.True(resp.NoMatchesFound)
	s.Empty(resp.Token)
}

func (s *HandlerSuite) TestIdentifyValidation() {
	cases := []struct {
		name string
		req  identifyRequest
	}{
		{"bad clinician id", identifyRequest{ImageB64: s.image(), ClinicianID: "nope", OrgID: uuid.NewString()}},
		{"bad org id", identifyRequest{ImageB64: s.image(), ClinicianID: uuid.NewString(), OrgID: ""}},
		{"bad image", identifyRequest{ImageB64: "!!!", ClinicianID: uuid.NewString(), OrgID: uuid.NewString()}},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			rec := s.do(http.MethodPost, "/v1/identify", tc.req, nil)
			s.Equal(http.StatusBadRequest, rec.Code)
		})
	}
}

func (s *HandlerSuite) TestIdentifyExpiredSession() {
	s.sessions.valid = false

	rec := s.do(http.MethodPost, "/v1/identify", identifyRequest{
		ImageB64:    s.image(),
		ClinicianID: uuid.NewString(),
		OrgID:       uuid.NewString(),
	}, map[string]string{"X-Session-ID": uuid.NewString()})

	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *HandlerSuite) TestIdentifySessionRequired() {
	handler := NewHandler(s.identity, s.disclosure, s.sessions, passthroughBearer{}, nil,
		slog.New(slog.DiscardHandler), WithSessionRequired())
	s.router = NewRouter(handler, slog.New(slog.DiscardHandler))

	req := identifyRequest{
		ImageB64:    s.image(),
		ClinicianID: uuid.NewString(),
		OrgID:       uuid.NewString(),
	}

	rec := s.do(http.MethodPost, "/v1/identify", req, nil)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/v1/identify", req, map[string]string{"X-Session-ID": uuid.NewString()})
	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlerSuite) TestDisclose() {
	patientID := id.PatientID(uuid.New())
	s.disclosure.disclosed = disclosure.Disclosure{
		Record: records.PatientRecord{
			PatientID:   patientID,
			FullName:    "Jane Doe",
			DateOfBirth: time.Date(1980, 3, 14, 0, 0, 0, 0, time.UTC),
		},
		Remaining: 18 * time.Minute,
	}

	rec := s.do(http.MethodPost, "/v1/disclose", discloseRequest{
		PatientID:   patientID.String(),
		Token:       "sealed-token",
		ClinicianID: uuid.NewString(),
		OrgID:       uuid.NewString(),
	}, nil)

	s.Equal(http.StatusOK, rec.Code)
	var resp discloseResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("Jane Doe", resp.Record.FullName)
	s.Equal("1980-03-14", resp.Record.DateOfBirth)
	s.InDelta(18.0, resp.RemainingMinutes, 1e-9)
}

func (s *HandlerSuite) TestDiscloseDeniedIsGeneric() {
	s.disclosure.discloseErr = dErrors.New(dErrors.CodeAccessDenied, "access denied")

	rec := s.do(http.MethodPost, "/v1/disclose", discloseRequest{
		PatientID:   uuid.NewString(),
		Token:       "sealed-token",
		ClinicianID: uuid.NewString(),
		OrgID:       uuid.NewString(),
	}, nil)

	s.Equal(http.StatusForbidden, rec.Code)
	var resp map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("access denied", resp["message"])
}

func (s *HandlerSuite) TestRevoke() {
	rec := s.do(http.MethodPost, "/v1/revoke", revokeRequest{
		Token:       "sealed-token",
		ClinicianID: uuid.NewString(),
	}, nil)

	s.Equal(http.StatusOK, rec.Code)
	var resp map[string]bool
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.True(resp["revoked"])
}

func (s *HandlerSuite) TestEnroll() {
	patientID := id.PatientID(uuid.New())
	s.identity.enrollOutcome = identity.EnrollOutcome{
		Vector: models.EnrolledVector{PatientID: patientID, VectorHash: "abc"},
	}

	rec := s.do(http.MethodPost, "/v1/enroll", enrollRequest{
		ImageB64:    s.image(),
		OrgID:       uuid.NewString(),
		PatientID:   patientID.String(),
		FullName:    "Jane Doe",
		DateOfBirth: "1980-03-14",
	}, nil)

	s.Equal(http.StatusCreated, rec.Code)
}

func (s *HandlerSuite) TestEnrollBadDateOfBirth() {
	rec := s.do(http.MethodPost, "/v1/enroll", enrollRequest{
		ImageB64:    s.image(),
		OrgID:       uuid.NewString(),
		PatientID:   uuid.NewString(),
		FullName:    "Jane Doe",
		DateOfBirth: "14/03/1980",
	}, nil)

	s.Equal(http.StatusBadRequest, rec.Code)
}
