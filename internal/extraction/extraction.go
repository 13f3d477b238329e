// Package extraction defines the port to the external biometric feature
// extraction service.
package extraction

import (
	"context"
	"encoding/json"

	"medid/internal/biometric/models"
	dErrors "medid/pkg/domain-errors"
)

// Result is one extraction outcome: a feature vector plus the extractor's
// own quality score in [0,1].
type Result struct {
	Vector  models.FeatureVector
	Quality float64
}

// Extractor converts a captured image into a feature vector. Implementations
// wrap an external service; extraction failures are returned as errors, an
// unusable-but-processable sample comes back with a low quality score.
type Extractor interface {
	ExtractFeatureVector(ctx context.Context, image []byte) (Result, error)
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, image []byte) (Result, error)

func (f Func) ExtractFeatureVector(ctx context.Context, image []byte) (Result, error) {
	return f(ctx, image)
}

// EnvelopeExtractor reads samples produced by capture devices that run the
// extraction model on-device and post the result as a JSON envelope instead
// of a raw image. The envelope carries the vector and the device's quality
// score.
type EnvelopeExtractor struct{}

// NewEnvelopeExtractor constructs an extractor for pre-extracted envelopes.
func NewEnvelopeExtractor() *EnvelopeExtractor {
	return &EnvelopeExtractor{}
}

type envelope struct {
	Vector  []float64 `json:"vector"`
	Quality float64   `json:"quality"`
}

func (e *EnvelopeExtractor) ExtractFeatureVector(_ context.Context, image []byte) (Result, error) {
	var env envelope
	if err := json.Unmarshal(image, &env); err != nil {
		return Result{}, dErrors.New(dErrors.CodeInvalidInput, "sample is not a valid extraction envelope")
	}
	if len(env.Vector) == 0 {
		return Result{}, dErrors.New(dErrors.CodeInvalidInput, "extraction envelope has no feature vector")
	}
	if env.Quality < 0 || env.Quality > 1 {
		return Result{}, dErrors.New(dErrors.CodeInvalidInput, "quality score must be within [0,1]")
	}
	return Result{
		Vector:  models.FeatureVector(env.Vector),
		Quality: env.Quality,
	}, nil
}
