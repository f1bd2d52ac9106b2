// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// StoreConfig holds settings for the SQLite database.
type StoreConfig struct {
	// Path is the database file (default "data/collabmatch.db").
	Path string `json:"path" yaml:"path" mapstructure:"path" validate:"required"`

	// Retries is the number of retry attempts for a failed store call
	// before the operation is reported as failed (default 3).
	Retries int `json:"retries" yaml:"retries" mapstructure:"retries" validate:"gte=0,lte=10"`
}

// EmbedderProvider selects the inference backend behind the TextEmbedder.
type EmbedderProvider string

const (
	ProviderOpenAI  EmbedderProvider = "openai"
	ProviderOllama  EmbedderProvider = "ollama"
	ProviderHTTP    EmbedderProvider = "http"
	ProviderLexical EmbedderProvider = "lexical"
	ProviderNone    EmbedderProvider = "none"
)

// EmbedderConfig holds settings for the TextEmbedder.
type EmbedderConfig struct {
	// Provider is one of openai, ollama, http, lexical, none (default lexical).
	Provider EmbedderProvider `json:"provider" yaml:"provider" mapstructure:"provider" validate:"oneof=openai ollama http lexical none"`

	// Model is the backend model name (provider default when empty).
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// BaseURL is the endpoint for ollama and http providers.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// APIKey authenticates against the openai or http provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Dimension is the fixed embedding dimension D for every entity (default 384).
	Dimension int `json:"dimension" yaml:"dimension" mapstructure:"dimension" validate:"gte=8,lte=8192"`

	// Timeout bounds a single backend call (default 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// CacheSize is the number of content-hash keyed vectors kept in memory (default 4096).
	CacheSize int `json:"cache_size" yaml:"cache_size" mapstructure:"cache_size" validate:"gte=0"`
}

// GraphWeights combines structural signals into a graph score in [0,1].
// The score is the weighted mean of the three terms, so only the ratios
// between weights matter.
type GraphWeights struct {
	// Department weights an exact department match (default 0.5).
	Department float64 `json:"department" yaml:"department" mapstructure:"department" validate:"gte=0"`

	// TagOverlap weights the Jaccard index of SDG tags (default 0.3).
	TagOverlap float64 `json:"tag_overlap" yaml:"tag_overlap" mapstructure:"tag_overlap" validate:"gte=0"`

	// Proximity weights 1/pathDistance in the collaboration graph (default 0.2).
	Proximity float64 `json:"proximity" yaml:"proximity" mapstructure:"proximity" validate:"gte=0"`

	// MaxPathDepth caps the breadth-first search; farther pairs are unreachable (default 3).
	MaxPathDepth int `json:"max_path_depth" yaml:"max_path_depth" mapstructure:"max_path_depth" validate:"gte=1,lte=10"`
}

// Sum returns the total weight.
func (w GraphWeights) Sum() float64 {
	return w.Department + w.TagOverlap + w.Proximity
}

// MatchConfig holds the composite score weights and ranking thresholds.
//
//	score = clamp(100 * (Embedding*cos + Graph*graphScore + Recency*decay
//	                     - StrongPenalty*strength/AlreadyCollaboratingStrength), 0, 100)
type MatchConfig struct {
	// Embedding weights cosine similarity of interest embeddings (default 0.5).
	Embedding float64 `json:"embedding" yaml:"embedding" mapstructure:"embedding" validate:"gte=0,lte=1"`

	// Graph weights the structural graph score (default 0.35).
	Graph float64 `json:"graph" yaml:"graph" mapstructure:"graph" validate:"gte=0,lte=1"`

	// Recency weights the decay of the last collaboration; zero if the pair
	// never collaborated (default 0.15).
	Recency float64 `json:"recency" yaml:"recency" mapstructure:"recency" validate:"gte=0,lte=1"`

	// StrongPenalty discounts pairs in proportion to existing edge strength (default 0.2).
	StrongPenalty float64 `json:"strong_penalty" yaml:"strong_penalty" mapstructure:"strong_penalty" validate:"gte=0,lte=1"`

	// LowConfidenceFactor multiplies the cosine term when either side was
	// embedded by the fallback (default 0.5).
	LowConfidenceFactor float64 `json:"low_confidence_factor" yaml:"low_confidence_factor" mapstructure:"low_confidence_factor" validate:"gte=0,lte=1"`

	// RecencyHalfLife is the time for the recency term to halve (default 365 days).
	RecencyHalfLife time.Duration `json:"recency_half_life" yaml:"recency_half_life" mapstructure:"recency_half_life" validate:"gt=0"`

	// AlreadyCollaboratingStrength excludes pairs whose edge strength is
	// above it from candidate generation (default 3).
	AlreadyCollaboratingStrength int `json:"already_collaborating_strength" yaml:"already_collaborating_strength" mapstructure:"already_collaborating_strength" validate:"gte=1"`

	// CooldownWindow suppresses a dismissed pair from re-creation (default 30 days).
	CooldownWindow time.Duration `json:"cooldown_window" yaml:"cooldown_window" mapstructure:"cooldown_window" validate:"gte=0"`

	// MaxOpportunitiesPerSweep is the top-K committed by one sweep (default 50).
	MaxOpportunitiesPerSweep int `json:"max_opportunities_per_sweep" yaml:"max_opportunities_per_sweep" mapstructure:"max_opportunities_per_sweep" validate:"gte=1"`

	// CandidateNeighbors is the nearest neighbours considered per researcher;
	// zero or less considers all pairs (default 20).
	CandidateNeighbors int `json:"candidate_neighbors" yaml:"candidate_neighbors" mapstructure:"candidate_neighbors"`

	// MinSimilarity is the neighbour threshold for candidate generation (default -1).
	MinSimilarity float64 `json:"min_similarity" yaml:"min_similarity" mapstructure:"min_similarity" validate:"gte=-1,lte=1"`

	// MinMatchScore drops drafts scoring below it (default 1).
	MinMatchScore float64 `json:"min_match_score" yaml:"min_match_score" mapstructure:"min_match_score" validate:"gte=0,lte=100"`

	// SweepInterval is the period of the scheduled ranking sweep (default 10m).
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval" mapstructure:"sweep_interval"`

	GraphWeights GraphWeights `json:"graph_weights" yaml:"graph_weights" mapstructure:"graph_weights"`
}

// PipelineConfig holds settings for the embedding worker pool.
type PipelineConfig struct {
	// Workers is the number of concurrent embedding workers (default 4).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers" validate:"gte=1,lte=64"`

	// QueueDepth bounds the number of pending jobs (default 256).
	QueueDepth int `json:"queue_depth" yaml:"queue_depth" mapstructure:"queue_depth" validate:"gte=1"`

	// MaxAttempts moves a job to the dead letter state after this many
	// infrastructure failures (default 5).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1"`

	// BaseBackoff is the first retry delay; it doubles per attempt (default 2s).
	BaseBackoff time.Duration `json:"base_backoff" yaml:"base_backoff" mapstructure:"base_backoff" validate:"gte=0"`

	// MaxBackoff caps the retry delay (default 5m).
	MaxBackoff time.Duration `json:"max_backoff" yaml:"max_backoff" mapstructure:"max_backoff" validate:"gte=0"`

	// RankTriggerBurst triggers a ranking sweep after this many completed
	// jobs; zero disables burst triggering (default 25).
	RankTriggerBurst int `json:"rank_trigger_burst" yaml:"rank_trigger_burst" mapstructure:"rank_trigger_burst" validate:"gte=0"`
}

// ServerConfig holds settings for the HTTP adapter.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// ShutdownTimeout bounds graceful shutdown (default 10s).
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// LogConfig controls slog output.
type LogConfig struct {
	// Level is debug, info, warn or error (default info).
	Level string `json:"level" yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`

	// Format is text or json (default text).
	Format string `json:"format" yaml:"format" mapstructure:"format" validate:"omitempty,oneof=text json"`
}

// Config groups all component configurations.
type Config struct {
	Store    StoreConfig    `json:"store" yaml:"store" mapstructure:"store"`
	Embedder EmbedderConfig `json:"embedder" yaml:"embedder" mapstructure:"embedder"`
	Match    MatchConfig    `json:"match" yaml:"match" mapstructure:"match"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Server   ServerConfig   `json:"server" yaml:"server" mapstructure:"server"`
	Log      LogConfig      `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultMatchConfig returns the documented scoring defaults.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		Embedding:                    0.5,
		Graph:                        0.35,
		Recency:                      0.15,
		StrongPenalty:                0.2,
		LowConfidenceFactor:          0.5,
		RecencyHalfLife:              365 * 24 * time.Hour,
		AlreadyCollaboratingStrength: 3,
		CooldownWindow:               30 * 24 * time.Hour,
		MaxOpportunitiesPerSweep:     50,
		CandidateNeighbors:           20,
		MinSimilarity:                -1,
		MinMatchScore:                1,
		SweepInterval:                10 * time.Minute,
		GraphWeights: GraphWeights{
			Department:   0.5,
			TagOverlap:   0.3,
			Proximity:    0.2,
			MaxPathDepth: 3,
		},
	}
}

// DefaultPipelineConfig returns the worker pool defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Workers:          4,
		QueueDepth:       256,
		MaxAttempts:      5,
		BaseBackoff:      2 * time.Second,
		MaxBackoff:       5 * time.Minute,
		RankTriggerBurst: 25,
	}
}

// DefaultConfig returns a complete configuration with all defaults applied.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Path:    "data/collabmatch.db",
			Retries: 3,
		},
		Embedder: EmbedderConfig{
			Provider:  ProviderLexical,
			Dimension: 384,
			Timeout:   30 * time.Second,
			CacheSize: 4096,
		},
		Match:    DefaultMatchConfig(),
		Pipeline: DefaultPipelineConfig(),
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

var validate = validator.New()

// Validate checks field ranges and cross-field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return c.Match.Validate()
}

// Validate checks the scoring configuration on its own, for callers that
// build a MatchConfig without the surrounding Config.
func (m MatchConfig) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid match config: %w", err)
	}
	if m.Embedding+m.Graph+m.Recency == 0 {
		return fmt.Errorf("invalid match config: embedding, graph and recency weights are all zero")
	}
	if m.GraphWeights.Sum() == 0 {
		return fmt.Errorf("invalid match config: graph weights are all zero")
	}
	return nil
}
