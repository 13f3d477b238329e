// Package audit appends structured, redacted entries for every
// security-relevant event. The in-memory log is bounded; durable sinks
// (postgres, kafka) receive a copy of each entry for retention and SIEM
// routing.
package audit

import (
	"context"
	"log/slog"
	"sync"

	"medid/pkg/requestcontext"
)

// MaxEntries bounds the in-memory log. Appending beyond the bound drops the
// oldest entry (ring semantics, not an error).
const MaxEntries = 100

// Sink receives every recorded entry for durable storage or forwarding.
// Sink failures never fail the recording operation.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// Recorder is the security auditor. Appends are mutually exclusive; reads
// return a snapshot.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry

	enabled bool
	max     int
	logger  *slog.Logger
	sinks   []Sink
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger attaches a structured logger; each entry is also logged with
// log_type=audit.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// WithSink attaches a durable sink. May be given multiple times.
func WithSink(sink Sink) Option {
	return func(r *Recorder) {
		if sink != nil {
			r.sinks = append(r.sinks, sink)
		}
	}
}

// WithMaxEntries overrides the in-memory bound (tests).
func WithMaxEntries(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.max = n
		}
	}
}

// NewRecorder constructs a Recorder. When enabled is false every Record call
// is a no-op.
func NewRecorder(enabled bool, opts ...Option) *Recorder {
	r := &Recorder{enabled: enabled, max: MaxEntries}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one entry. Metadata is sanitized before storage; the caller's
// map is never retained. Timestamps come from the request context so tests can
// pin clocks.
func (r *Recorder) Record(ctx context.Context, action Action, success bool, metadata map[string]any) {
	if r == nil || !r.enabled {
		return
	}

	entry := newEntry(
		action,
		requestcontext.ClinicianID(ctx).String(),
		success,
		Sanitize(metadata),
		requestcontext.Now(ctx),
	)
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		if entry.Metadata == nil {
			entry.Metadata = map[string]any{}
		}
		entry.Metadata["request_id"] = requestID
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	if len(r.entries) > r.max {
		r.entries = r.entries[len(r.entries)-r.max:]
	}
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.InfoContext(ctx, string(action),
			"log_type", "audit",
			"audit_id", entry.ID,
			"actor_id", entry.ActorID,
			"success", success,
			"severity", string(SeverityOf(action)),
		)
	}

	for _, sink := range r.sinks {
		if err := sink.Append(ctx, entry); err != nil && r.logger != nil {
			r.logger.ErrorContext(ctx, "audit sink append failed", "error", err, "audit_id", entry.ID)
		}
	}
}

// Entries returns a snapshot of the bounded log, oldest first.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry{}, r.entries...)
}

// Len returns the current number of retained entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
