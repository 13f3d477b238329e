// Package httptransport is the thin HTTP layer. It delegates to domain
// services without embedding business logic so transport concerns remain
// isolated.
package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medid/internal/platform/metrics"
	"medid/internal/platform/middleware"
	dErrors "medid/pkg/domain-errors"
)

// NewRouter wires all public endpoints behind the shared middleware chain.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientContext)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/v1/identify", h.handleIdentify)
	r.Post("/v1/disclose", h.handleDisclose)
	r.Post("/v1/revoke", h.handleRevoke)
	r.Post("/v1/enroll", h.handleEnroll)

	return r
}

// Handler carries the domain services the routes delegate to.
type Handler struct {
	identity     IdentityService
	disclosure   DisclosureService
	sessions     SessionChecker
	bearer       BearerCodec
	metrics      *metrics.Metrics
	logger       *slog.Logger
	sessionGated bool
}

// HandlerOption configures optional handler behavior.
type HandlerOption func(*Handler)

// WithSessionRequired makes the identify and disclose routes refuse requests
// that carry no session header instead of passing them through.
func WithSessionRequired() HandlerOption {
	return func(h *Handler) { h.sessionGated = true }
}

// NewHandler constructs the HTTP handler set.
func NewHandler(
	identity IdentityService,
	disclosure DisclosureService,
	sessions SessionChecker,
	bearer BearerCodec,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts ...HandlerOption,
) *Handler {
	h := &Handler{
		identity:   identity,
		disclosure: disclosure,
		sessions:   sessions,
		bearer:     bearer,
		metrics:    m,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError centralizes domain error translation so every route produces the
// same JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		code = domainErr.Code
	}
	writeJSON(w, statusFor(code), map[string]string{
		"error":   string(code),
		"message": publicMessage(code, err),
	})
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeAccessDenied, dErrors.CodeForbidden, dErrors.CodeTenantScope:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps security-relevant rejections generic; only input
// validation failures surface their detail.
func publicMessage(code dErrors.Code, err error) string {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeValidation, dErrors.CodeConflict:
		return err.Error()
	case dErrors.CodeAccessDenied, dErrors.CodeForbidden, dErrors.CodeTenantScope, dErrors.CodeUnauthorized:
		return "access denied"
	case dErrors.CodeNotFound:
		return "not found"
	default:
		return "internal error"
	}
}
