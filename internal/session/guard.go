// Package session enforces inactivity timeouts for clinician sessions,
// independently of access token expiry.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mssola/useragent"

	"medid/internal/audit"
	id "medid/pkg/domain"
	"medid/pkg/platform/sentinel"
	"medid/pkg/requestcontext"
)

// DefaultMaxInactivity is the inactivity window after which a session expires.
const DefaultMaxInactivity = 15 * time.Minute

// State is the lifecycle state of one session.
type State string

const (
	StateActive  State = "ACTIVE"
	StateExpired State = "EXPIRED"
)

// Session is one clinician session tracked by the guard. All fields are
// guarded by the owning Guard's mutex.
type Session struct {
	ID             id.SessionID
	ClinicianID    id.ClinicianID
	State          State
	LastActivityAt time.Time
	StartedAt      time.Time
	DeviceLabel    string
	forceExpired   bool
}

// Guard tracks sessions and expires them after inactivity. Expiry is
// terminal: a session re-enters ACTIVE only through Reauthenticate, never
// through activity alone.
type Guard struct {
	mu            sync.Mutex
	sessions      map[id.SessionID]*Session
	maxInactivity time.Duration
	maxLifetime   time.Duration
	auditor       *audit.Recorder
	logger        *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

// WithAuditor attaches the security auditor.
func WithAuditor(auditor *audit.Recorder) Option {
	return func(g *Guard) { g.auditor = auditor }
}

// WithMaxInactivity overrides the inactivity window.
func WithMaxInactivity(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.maxInactivity = d
		}
	}
}

// WithMaxLifetime caps total session age regardless of activity. Zero leaves
// sessions bounded by inactivity alone.
func WithMaxLifetime(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.maxLifetime = d
		}
	}
}

// NewGuard constructs a session guard.
func NewGuard(opts ...Option) *Guard {
	g := &Guard{
		sessions:      make(map[id.SessionID]*Session),
		maxInactivity: DefaultMaxInactivity,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start registers a new ACTIVE session for the clinician. The user agent from
// the request context is condensed to a device label for the audit trail.
func (g *Guard) Start(ctx context.Context, sessionID id.SessionID, clinicianID id.ClinicianID) (Session, error) {
	if sessionID.IsNil() {
		return Session{}, fmt.Errorf("session id is required: %w", sentinel.ErrInvalidState)
	}
	now := requestcontext.Now(ctx)
	label := deviceLabel(requestcontext.UserAgent(ctx))

	g.mu.Lock()
	if _, exists := g.sessions[sessionID]; exists {
		g.mu.Unlock()
		return Session{}, fmt.Errorf("session already registered: %w", sentinel.ErrConflict)
	}
	sess := &Session{
		ID:             sessionID,
		ClinicianID:    clinicianID,
		State:          StateActive,
		LastActivityAt: now,
		StartedAt:      now,
		DeviceLabel:    label,
	}
	g.sessions[sessionID] = sess
	snapshot := *sess
	g.mu.Unlock()

	if g.logger != nil {
		g.logger.InfoContext(ctx, "session started",
			"session_id", sessionID.String(), "device", label)
	}
	return snapshot, nil
}

// RecordActivity forward-advances the last-activity timestamp of an ACTIVE
// session. Activity on an EXPIRED session is ignored: re-entering ACTIVE
// requires Reauthenticate, so a stale session cannot resurrect itself.
func (g *Guard) RecordActivity(ctx context.Context, sessionID id.SessionID) {
	now := requestcontext.Now(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()
	sess, ok := g.sessions[sessionID]
	if !ok || sess.State != StateActive {
		return
	}
	if now.After(sess.LastActivityAt) {
		sess.LastActivityAt = now
	}
}

// CheckValidity reports whether the session is ACTIVE, expiring it first if
// the inactivity window has elapsed. Idempotent: re-checking an EXPIRED
// session returns false without a second audit entry.
func (g *Guard) CheckValidity(ctx context.Context, sessionID id.SessionID) bool {
	now := requestcontext.Now(ctx)

	g.mu.Lock()
	sess, ok := g.sessions[sessionID]
	if !ok {
		g.mu.Unlock()
		return false
	}
	if sess.State == StateExpired {
		g.mu.Unlock()
		return false
	}
	inactive := now.Sub(sess.LastActivityAt)
	age := now.Sub(sess.StartedAt)
	overLifetime := g.maxLifetime > 0 && age >= g.maxLifetime
	if inactive < g.maxInactivity && !overLifetime {
		g.mu.Unlock()
		return true
	}
	sess.State = StateExpired
	snapshot := *sess
	g.mu.Unlock()

	metadata := map[string]any{
		"session_id":         snapshot.ID.String(),
		"inactive_for":       inactive.String(),
		"max_inactivity":     g.maxInactivity.String(),
		"device":             snapshot.DeviceLabel,
		"expired_forcefully": false,
	}
	if overLifetime {
		metadata["session_age"] = age.String()
		metadata["max_lifetime"] = g.maxLifetime.String()
	}
	g.emit(ctx, audit.ActionSessionExpired, metadata)
	return false
}

// ForceExpire transitions the session to EXPIRED immediately. Idempotent.
func (g *Guard) ForceExpire(ctx context.Context, sessionID id.SessionID) {
	g.mu.Lock()
	sess, ok := g.sessions[sessionID]
	if !ok || sess.State == StateExpired {
		g.mu.Unlock()
		return
	}
	sess.State = StateExpired
	sess.forceExpired = true
	snapshot := *sess
	g.mu.Unlock()

	g.emit(ctx, audit.ActionSessionRevoked, map[string]any{
		"session_id":         snapshot.ID.String(),
		"device":             snapshot.DeviceLabel,
		"expired_forcefully": true,
	})
}

// Reauthenticate re-enters ACTIVE after the excluded auth subsystem has
// re-verified the clinician. This is the only path out of EXPIRED.
func (g *Guard) Reauthenticate(ctx context.Context, sessionID id.SessionID) error {
	now := requestcontext.Now(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()
	sess, ok := g.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	sess.State = StateActive
	sess.forceExpired = false
	sess.LastActivityAt = now
	return nil
}

// Snapshot returns a copy of the session state.
func (g *Guard) Snapshot(sessionID id.SessionID) (Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sess, ok := g.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// sweep runs CheckValidity over every tracked session.
func (g *Guard) sweep(ctx context.Context) {
	g.mu.Lock()
	ids := make([]id.SessionID, 0, len(g.sessions))
	for sessionID := range g.sessions {
		ids = append(ids, sessionID)
	}
	g.mu.Unlock()

	for _, sessionID := range ids {
		g.CheckValidity(ctx, sessionID)
	}
}

func (g *Guard) emit(ctx context.Context, action audit.Action, metadata map[string]any) {
	if g.auditor != nil {
		g.auditor.Record(ctx, action, true, metadata)
	}
	if g.logger != nil {
		g.logger.InfoContext(ctx, string(action), "log_type", "audit")
	}
}

// deviceLabel condenses a raw User-Agent header to "Browser/Version (OS)".
func deviceLabel(raw string) string {
	if raw == "" {
		return "unknown"
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	// Browser() echoes the raw token as the name for unrecognized agents, so
	// a missing version is the unrecognized signal.
	if name == "" || version == "" {
		return "unknown"
	}
	if os := ua.OS(); os != "" {
		return fmt.Sprintf("%s/%s (%s)", name, version, os)
	}
	return fmt.Sprintf("%s/%s", name, version)
}
