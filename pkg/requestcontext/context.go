// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets values, services read them. Keeping this package free of
// net/http dependencies means services import only what they need.
//
// Usage in services (read values):
//
//	clinicianID := requestcontext.ClinicianID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "medid/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	clinicianIDKey struct{}
	orgIDKey       struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// WithClinicianID stores the authenticated clinician's ID on the context.
func WithClinicianID(ctx context.Context, cid id.ClinicianID) context.Context {
	return context.WithValue(ctx, clinicianIDKey{}, cid)
}

// ClinicianID returns the clinician ID or the zero value when unset.
func ClinicianID(ctx context.Context) id.ClinicianID {
	cid, _ := ctx.Value(clinicianIDKey{}).(id.ClinicianID)
	return cid
}

// WithOrgID stores the caller's organization scope on the context.
func WithOrgID(ctx context.Context, oid id.OrgID) context.Context {
	return context.WithValue(ctx, orgIDKey{}, oid)
}

// OrgID returns the organization scope or the zero value when unset.
func OrgID(ctx context.Context) id.OrgID {
	oid, _ := ctx.Value(orgIDKey{}).(id.OrgID)
	return oid
}

// WithClientIP stores the client IP address on the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP returns the client IP or empty string when unset.
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// WithUserAgent stores the raw User-Agent header on the context.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey{}, ua)
}

// UserAgent returns the raw User-Agent or empty string when unset.
func UserAgent(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey{}).(string)
	return ua
}

// WithRequestID stores the correlation ID on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the correlation ID or empty string when unset.
func RequestID(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey{}).(string)
	return rid
}

// WithTime pins the request time on the context. Tests use this to simulate
// clocks; middleware sets it once per request so a request sees one instant.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now returns the pinned request time, falling back to time.Now().
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}
