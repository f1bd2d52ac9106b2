// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/collabmatch/internal/metrics"
	"github.com/pdiddy/collabmatch/internal/vectorstore"
)

// mockBackend implements embedding.Embedder for testing.
type mockBackend struct {
	vectors [][]float64
	err     error
	calls   atomic.Int32
}

func (m *mockBackend) EmbedStrings(_ context.Context, _ []string, _ ...embedding.Option) ([][]float64, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.vectors, nil
}

var quiet = WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

func norm(v []float32) float64 {
	var s float64
	for _, f := range v {
		s += float64(f) * float64(f)
	}
	return math.Sqrt(s)
}

func TestEmbed_EmptyText(t *testing.T) {
	backend := &mockBackend{vectors: [][]float64{{1, 2, 3}}}
	e := New(backend, "m", 3, quiet)

	for _, text := range []string{"", "   ", "\n\t"} {
		r := e.Embed(context.Background(), text)
		assert.Equal(t, []float32{0, 0, 0}, r.Vector)
		assert.True(t, r.LowConfidence)
	}
	assert.Equal(t, int32(0), backend.calls.Load())
}

func TestEmbed_BackendAndCache(t *testing.T) {
	backend := &mockBackend{vectors: [][]float64{{0.1, 0.2, 0.3}}}
	m := metrics.New()
	e := New(backend, "test-model", 3, quiet, WithMetrics(m))

	r1 := e.Embed(context.Background(), "climate policy")
	assert.False(t, r1.LowConfidence)
	assert.Equal(t, "test-model", r1.Model)
	assert.InDelta(t, 0.2, r1.Vector[1], 1e-7)

	// Mutating a result must not corrupt the cache.
	r1.Vector[0] = 99

	r2 := e.Embed(context.Background(), "climate policy")
	assert.InDelta(t, 0.1, r2.Vector[0], 1e-7)
	assert.Equal(t, int32(1), backend.calls.Load())
}

func TestEmbed_CacheDisabled(t *testing.T) {
	backend := &mockBackend{vectors: [][]float64{{1, 0}}}
	e := New(backend, "m", 2, quiet, WithCacheSize(0))

	e.Embed(context.Background(), "x")
	e.Embed(context.Background(), "x")
	assert.Equal(t, int32(2), backend.calls.Load())
}

func TestEmbed_FallbackOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		backend *mockBackend
	}{
		{"backend error", &mockBackend{err: errors.New("connection refused")}},
		{"wrong dimension", &mockBackend{vectors: [][]float64{{1, 2}}}},
		{"no vectors", &mockBackend{vectors: [][]float64{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.backend, "m", 4, quiet)

			r := e.Embed(context.Background(), "quantum optics")
			assert.True(t, r.LowConfidence)
			assert.Equal(t, FallbackModel, r.Model)
			assert.Equal(t, Fallback("quantum optics", 4), r.Vector)

			// Fallback results are not cached: the backend is asked again.
			e.Embed(context.Background(), "quantum optics")
			assert.Equal(t, int32(2), tt.backend.calls.Load())
		})
	}
}

func TestEmbed_NoBackend(t *testing.T) {
	e := New(nil, "", 16, quiet)
	r := e.Embed(context.Background(), "hydrology")
	assert.True(t, r.LowConfidence)
	assert.Len(t, r.Vector, 16)
	assert.Equal(t, FallbackModel, e.Model())
	assert.Equal(t, 16, e.Dimension())
}

func TestFallback_Deterministic(t *testing.T) {
	a1 := Fallback("machine learning, climate", 384)
	a2 := Fallback("machine learning, climate", 384)
	b := Fallback("climate policy", 384)

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
	assert.Len(t, a1, 384)
	assert.InDelta(t, 1.0, norm(a1), 1e-5)
	assert.InDelta(t, 1.0, norm(b), 1e-5)
}

func TestLexical_SharedTermSimilarity(t *testing.T) {
	l := NewLexical(384)
	vecs, err := l.EmbedStrings(context.Background(), []string{
		"machine learning, climate",
		"climate policy",
		"quantum optics",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	toF32 := func(v []float64) []float32 {
		out := make([]float32, len(v))
		for i, f := range v {
			out[i] = float32(f)
		}
		return out
	}
	a, b, c := toF32(vecs[0]), toF32(vecs[1]), toF32(vecs[2])

	// One shared word out of three and two: 1/sqrt(6).
	assert.InDelta(t, 1/math.Sqrt(6), vectorstore.Cosine(a, b), 1e-6)
	assert.InDelta(t, 0, vectorstore.Cosine(a, c), 1e-6)
	assert.InDelta(t, 1.0, norm(a), 1e-6)
}

func TestLexical_EmptyText(t *testing.T) {
	v := NewLexical(8).Vector("the and of")
	assert.Equal(t, make([]float64, 8), v)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t,
		[]string{"machine", "learning", "climate", "co2"},
		Tokenize("Machine-Learning & the Climate (CO2), a"))
	assert.Empty(t, Tokenize("   "))
}

func TestContentHash(t *testing.T) {
	assert.Equal(t, ContentHash("abc"), ContentHash("abc"))
	assert.NotEqual(t, ContentHash("abc"), ContentHash("abd"))
	assert.Len(t, ContentHash(""), 64)
}
