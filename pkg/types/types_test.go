// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPair(t *testing.T) {
	assert.Equal(t, Pair{A: "a", B: "b"}, NewPair("b", "a"))
	assert.Equal(t, "a:b", NewPair("b", "a").Key())
	assert.True(t, NewPair("a", "b").Contains("b"))
	assert.False(t, NewPair("a", "b").Contains("c"))

	p, err := ParsePair(" b : a ")
	require.NoError(t, err)
	assert.Equal(t, Pair{A: "a", B: "b"}, p)

	for _, bad := range []string{"", "a", "a:", ":b", "a:a"} {
		_, err := ParsePair(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseEnums(t *testing.T) {
	et, err := ParseEntityType(" Researcher ")
	require.NoError(t, err)
	assert.Equal(t, EntityResearcher, et)
	_, err = ParseEntityType("grant")
	assert.ErrorIs(t, err, ErrInvalidEntity)

	st, err := ParseOpportunityStatus("dismissed")
	require.NoError(t, err)
	assert.Equal(t, StatusDismissed, st)
	_, err = ParseOpportunityStatus("archived")
	assert.Error(t, err)

	js, err := ParseJobState("deadletter")
	require.NoError(t, err)
	assert.Equal(t, JobDeadLetter, js)
	_, err = ParseJobState("stuck")
	assert.Error(t, err)
}

func TestHasTextChange(t *testing.T) {
	tests := []struct {
		name    string
		t       EntityType
		changed []string
		want    bool
	}{
		{"unknown fields", EntityResearcher, nil, true},
		{"interests", EntityResearcher, []string{"Interests"}, true},
		{"department only", EntityResearcher, []string{"department", "profile"}, false},
		{"abstract", EntityPublication, []string{"abstract"}, true},
		{"authors only", EntityPublication, []string{"authors"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasTextChange(tt.t, tt.changed))
		})
	}
}

func TestEmbeddingText(t *testing.T) {
	r := Researcher{Interests: []string{" machine learning ", "", "climate"}}
	assert.Equal(t, "machine learning, climate", r.EmbeddingText())

	assert.Equal(t, "Title. Abstract", Publication{Title: "Title", Abstract: "Abstract"}.EmbeddingText())
	assert.Equal(t, "Abstract", Publication{Abstract: "Abstract"}.EmbeddingText())
	assert.Equal(t, "Title", Publication{Title: "Title"}.EmbeddingText())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero score weights", func(c *Config) { c.Match.Embedding, c.Match.Graph, c.Match.Recency = 0, 0, 0 }},
		{"zero graph weights", func(c *Config) { c.Match.GraphWeights = GraphWeights{MaxPathDepth: 3} }},
		{"unknown provider", func(c *Config) { c.Embedder.Provider = "magic" }},
		{"missing store path", func(c *Config) { c.Store.Path = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"no workers", func(c *Config) { c.Pipeline.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(&c)
			assert.Error(t, c.Validate())
		})
	}
}
