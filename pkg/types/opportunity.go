// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
	"time"
)

// Pair is an unordered researcher pair in canonical form: A < B.
type Pair struct {
	A string `json:"a" yaml:"a"`
	B string `json:"b" yaml:"b"`
}

// NewPair canonicalises x and y so that lookups are order independent.
func NewPair(x, y string) Pair {
	if y < x {
		x, y = y, x
	}
	return Pair{A: x, B: y}
}

// ParsePair parses "a:b" (either order) into a canonical Pair.
func ParsePair(s string) (Pair, error) {
	a, b, ok := strings.Cut(s, ":")
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if !ok || a == "" || b == "" || a == b {
		return Pair{}, fmt.Errorf("invalid pair %q: want <id>:<id>", s)
	}
	return NewPair(a, b), nil
}

// Key returns the canonical pair id used for deterministic tie-breaks.
func (p Pair) Key() string {
	return p.A + ":" + p.B
}

// Contains reports whether id is one side of the pair.
func (p Pair) Contains(id string) bool {
	return p.A == id || p.B == id
}

// OpportunityStatus is the lifecycle state of an Opportunity.
type OpportunityStatus string

const (
	StatusPending   OpportunityStatus = "pending"
	StatusActioned  OpportunityStatus = "actioned"
	StatusDismissed OpportunityStatus = "dismissed"
)

// ParseOpportunityStatus validates s.
func ParseOpportunityStatus(s string) (OpportunityStatus, error) {
	switch OpportunityStatus(s) {
	case StatusPending, StatusActioned, StatusDismissed:
		return OpportunityStatus(s), nil
	default:
		return "", fmt.Errorf("unknown opportunity status %q", s)
	}
}

// Opportunity is a persisted, ranked collaboration suggestion.
type Opportunity struct {
	ID          string            `json:"id" yaml:"id"`
	Pair        Pair              `json:"pair" yaml:"pair"`
	Topic       string            `json:"topic" yaml:"topic"`
	MatchScore  float64           `json:"match_score" yaml:"match_score"`
	Reason      string            `json:"reason" yaml:"reason"`
	Status      OpportunityStatus `json:"status" yaml:"status"`
	CreatedAt   time.Time         `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" yaml:"updated_at"`
	DismissedAt time.Time         `json:"dismissed_at,omitempty" yaml:"dismissed_at,omitempty"`
}

// OpportunityDraft is a scored pair produced by a ranking sweep, not yet
// committed to storage.
type OpportunityDraft struct {
	Pair       Pair
	Topic      string
	MatchScore float64
	Reason     string

	// PublicationCount is the combined publication count of both researchers,
	// used as the first tie-break.
	PublicationCount int
}

// OpportunityFilter selects opportunities for listing. Zero values mean
// "no filter"; dismissed rows are only listed when Status asks for them.
type OpportunityFilter struct {
	Status   OpportunityStatus
	MinScore float64
	Pair     *Pair
	Limit    int
}
