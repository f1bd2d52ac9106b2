// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embed turns researcher and publication text into fixed-dimension
// vectors.
//
// An Embedder wraps an eino embedding.Embedder backend. When the backend is
// missing, fails, or returns a vector of the wrong dimension, the Embedder
// falls back to a deterministic content-seeded vector and marks the result
// low confidence. Embed never fails.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pdiddy/collabmatch/internal/metrics"
)

// FallbackModel names vectors produced without a backend.
const FallbackModel = "fallback"

// Result is one embedding.
type Result struct {
	Vector        []float32
	LowConfidence bool
	Model         string
}

// Embedder produces embeddings of a fixed dimension. It is safe for
// concurrent use.
type Embedder struct {
	backend embedding.Embedder
	model   string
	dim     int
	timeout time.Duration
	cache   *lru.Cache[string, []float32]
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithCacheSize keeps up to n backend vectors keyed by content hash. Zero
// disables caching.
func WithCacheSize(n int) Option {
	return func(e *Embedder) {
		if n <= 0 {
			e.cache = nil
			return
		}
		c, _ := lru.New[string, []float32](n)
		e.cache = c
	}
}

// WithTimeout bounds each backend call.
func WithTimeout(d time.Duration) Option {
	return func(e *Embedder) { e.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Embedder) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Embedder) { e.metrics = m }
}

// New returns an Embedder for dimension dim. backend may be nil, in which
// case every non-empty text gets a fallback vector.
func New(backend embedding.Embedder, model string, dim int, opts ...Option) *Embedder {
	e := &Embedder{
		backend: backend,
		model:   model,
		dim:     dim,
		logger:  slog.Default(),
	}
	WithCacheSize(1024)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimension returns the vector length every Result has.
func (e *Embedder) Dimension() int {
	return e.dim
}

// Model returns the backend model name.
func (e *Embedder) Model() string {
	if e.backend == nil {
		return FallbackModel
	}
	return e.model
}

// Embed returns the embedding of text. Empty or whitespace text yields the
// zero vector. Identical text always yields an identical vector for the
// same backend.
func (e *Embedder) Embed(ctx context.Context, text string) Result {
	start := time.Now()

	if strings.TrimSpace(text) == "" {
		e.metrics.RecordEmbed(metrics.EmbedEmpty, time.Since(start))
		return Result{Vector: make([]float32, e.dim), LowConfidence: true, Model: FallbackModel}
	}

	key := ContentHash(text)
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			e.metrics.RecordEmbed(metrics.EmbedCache, time.Since(start))
			return Result{Vector: slices.Clone(v), Model: e.model}
		}
	}

	if e.backend != nil {
		v, err := e.callBackend(ctx, text)
		if err == nil {
			if e.cache != nil {
				e.cache.Add(key, slices.Clone(v))
			}
			e.metrics.RecordEmbed(metrics.EmbedBackend, time.Since(start))
			return Result{Vector: v, Model: e.model}
		}
		e.logger.Warn("embedding backend unavailable, using fallback",
			"model", e.model, "error", err)
	}

	v := Fallback(text, e.dim)
	e.metrics.RecordEmbed(metrics.EmbedFallback, time.Since(start))
	return Result{Vector: v, LowConfidence: true, Model: FallbackModel}
}

func (e *Embedder) callBackend(ctx context.Context, text string) ([]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	vecs, err := e.backend.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("backend returned %d vectors for 1 text", len(vecs))
	}
	if len(vecs[0]) != e.dim {
		return nil, fmt.Errorf("backend returned dimension %d, want %d", len(vecs[0]), e.dim)
	}

	out := make([]float32, e.dim)
	for i, f := range vecs[0] {
		out[i] = float32(f)
	}
	return out, nil
}

// ContentHash returns the hex sha256 of text. It keys the cache and is
// stored with each embedding to detect unchanged content.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
