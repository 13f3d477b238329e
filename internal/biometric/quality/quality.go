// Package quality gates captured biometric samples before they enter the
// pipeline. Rejection is a normal outcome ("capture a better sample"), not an
// error.
package quality

import (
	"medid/internal/biometric/models"
)

// Default thresholds. Enrollment is stricter because the admitted vector
// becomes the long-term reference; identification is retried cheaply and a
// missed match is safer than a false admission, which is gated again by the
// match confidence floor downstream.
const (
	DefaultEnrollmentThreshold     = 0.70
	DefaultIdentificationThreshold = 0.60
)

// Admission is the typed outcome of a quality check.
type Admission struct {
	Admitted  bool
	Quality   float64
	Threshold float64
}

// Gate decides admit/reject for captured samples against calibrated
// thresholds, separately for enrollment and identification flows.
type Gate struct {
	enrollmentThreshold     float64
	identificationThreshold float64
}

// Option configures a Gate.
type Option func(*Gate)

// WithEnrollmentThreshold overrides the enrollment threshold.
func WithEnrollmentThreshold(t float64) Option {
	return func(g *Gate) { g.enrollmentThreshold = t }
}

// WithIdentificationThreshold overrides the identification threshold.
func WithIdentificationThreshold(t float64) Option {
	return func(g *Gate) { g.identificationThreshold = t }
}

// NewGate constructs a Gate with the default calibrated thresholds.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		enrollmentThreshold:     DefaultEnrollmentThreshold,
		identificationThreshold: DefaultIdentificationThreshold,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AdmitForEnrollment checks a sample against the stricter enrollment
// threshold.
func (g *Gate) AdmitForEnrollment(vector models.FeatureVector, qualityScore float64) Admission {
	return admit(vector, qualityScore, g.enrollmentThreshold)
}

// AdmitForIdentification checks a sample against the looser identification
// threshold.
func (g *Gate) AdmitForIdentification(vector models.FeatureVector, qualityScore float64) Admission {
	return admit(vector, qualityScore, g.identificationThreshold)
}

func admit(vector models.FeatureVector, qualityScore, threshold float64) Admission {
	return Admission{
		Admitted:  len(vector) > 0 && qualityScore >= threshold,
		Quality:   qualityScore,
		Threshold: threshold,
	}
}
