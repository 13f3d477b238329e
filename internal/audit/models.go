package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action classifies audit entries. Every security-relevant event in the
// disclosure pipeline maps to exactly one action.
type Action string

const (
	// Disclosure pipeline
	ActionPatientDataAccessed Action = "patient_data_accessed"
	ActionAccessDenied        Action = "access_denied"
	ActionAccessError         Action = "access_error"
	ActionTokenExpiringSoon   Action = "token_expiring_soon"

	// Identification pipeline
	ActionIdentificationSucceeded Action = "identification_succeeded"
	ActionIdentificationFailed    Action = "identification_failed"
	ActionQualityRejected         Action = "quality_rejected"

	// Token lifecycle
	ActionTokenIssued  Action = "token_issued"
	ActionTokenRevoked Action = "token_revoked"

	// Enrollment
	ActionEnrollmentCompleted Action = "enrollment_completed"
	ActionEnrollmentRejected  Action = "enrollment_rejected"

	// Sessions
	ActionSessionExpired Action = "session_expired"
	ActionSessionRevoked Action = "session_revoked"

	// Tenant boundary
	ActionScopeViolation Action = "tenant_scope_violation"
)

// Severity levels for downstream routing.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// severities maps actions to their routing severity. Unknown actions default
// to SeverityInfo.
var severities = map[Action]Severity{
	ActionPatientDataAccessed: SeverityWarning,
	ActionAccessDenied:        SeverityWarning,
	ActionAccessError:         SeverityCritical,
	ActionScopeViolation:      SeverityCritical,
	ActionSessionExpired:      SeverityInfo,
	ActionTokenExpiringSoon:   SeverityInfo,
}

// SeverityOf returns the routing severity for an action.
func SeverityOf(action Action) Severity {
	if s, ok := severities[action]; ok {
		return s
	}
	return SeverityInfo
}

// Entry is one immutable, sanitized audit record. The metadata is redacted
// before storage so an entry can never leak the secret it records.
type Entry struct {
	ID        string
	Timestamp time.Time
	Action    Action
	ActorID   string
	Success   bool
	Metadata  map[string]any
}

func newEntry(action Action, actorID string, success bool, metadata map[string]any, at time.Time) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Timestamp: at,
		Action:    action,
		ActorID:   actorID,
		Success:   success,
		Metadata:  metadata,
	}
}
