package audit

import "strings"

// RedactionMarker replaces sensitive metadata values.
const RedactionMarker = "[REDACTED]"

// sensitiveKeyFragments flags metadata keys whose values must never be stored.
// Matching is a case-insensitive substring check so "faceVector",
// "refresh_token" and "clientSecret" are all caught.
var sensitiveKeyFragments = []string{
	"password",
	"token",
	"secret",
	"face",
	"vector",
}

// Sanitize returns a deep copy of metadata with every sensitive value replaced
// by the redaction marker, recursing into nested maps and slices. The input is
// never mutated.
func Sanitize(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if isSensitiveKey(key) {
			out[key] = RedactionMarker
			continue
		}
		out[key] = sanitizeValue(value)
	}
	return out
}

func sanitizeValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return Sanitize(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
