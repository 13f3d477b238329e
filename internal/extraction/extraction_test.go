package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "medid/pkg/domain-errors"
)

func TestEnvelopeExtractor(t *testing.T) {
	extractor := NewEnvelopeExtractor()

	t.Run("valid envelope", func(t *testing.T) {
		result, err := extractor.ExtractFeatureVector(context.Background(),
			[]byte(`{"vector": [0.1, -0.2, 0.3], "quality": 0.87}`))
		require.NoError(t, err)
		assert.Equal(t, []float64{0.1, -0.2, 0.3}, []float64(result.Vector))
		assert.InDelta(t, 0.87, result.Quality, 1e-9)
	})

	t.Run("rejects non JSON payload", func(t *testing.T) {
		_, err := extractor.ExtractFeatureVector(context.Background(), []byte("\xff\xd8\xff raw jpeg"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects empty vector", func(t *testing.T) {
		_, err := extractor.ExtractFeatureVector(context.Background(),
			[]byte(`{"vector": [], "quality": 0.9}`))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects out of range quality", func(t *testing.T) {
		_, err := extractor.ExtractFeatureVector(context.Background(),
			[]byte(`{"vector": [0.1], "quality": 1.4}`))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
