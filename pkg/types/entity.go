// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
	"time"
)

// EntityType identifies which kind of entity an embedding or job refers to.
type EntityType string

const (
	EntityResearcher  EntityType = "researcher"
	EntityPublication EntityType = "publication"
)

// ParseEntityType validates s and returns the matching EntityType.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(strings.ToLower(strings.TrimSpace(s))) {
	case EntityResearcher:
		return EntityResearcher, nil
	case EntityPublication:
		return EntityPublication, nil
	default:
		return "", fmt.Errorf("%w: unknown entity type %q", ErrInvalidEntity, s)
	}
}

// EntityRef is the identity key shared by embeddings and jobs.
type EntityRef struct {
	Type EntityType `json:"type" yaml:"type"`
	ID   string     `json:"id" yaml:"id"`
}

// String renders the ref as "type/id".
func (r EntityRef) String() string {
	return string(r.Type) + "/" + r.ID
}

// Less orders refs by type, then id.
func (r EntityRef) Less(o EntityRef) bool {
	if r.Type != o.Type {
		return r.Type < o.Type
	}
	return r.ID < o.ID
}

// Researcher is a person in the collaboration graph. The ingestion layer owns
// researcher records; the matching core only reads them.
type Researcher struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Department string   `json:"department" yaml:"department"`
	Interests  []string `json:"interests" yaml:"interests"`

	// SDGTags holds the researcher's own SDG labels (e.g. "SDG_13").
	SDGTags []string `json:"sdg_tags,omitempty" yaml:"sdg_tags,omitempty"`

	// ScholarID, HIndex and Citations come from profile enrichment.
	ScholarID string `json:"scholar_id,omitempty" yaml:"scholar_id,omitempty"`
	HIndex    int    `json:"h_index,omitempty" yaml:"h_index,omitempty"`
	Citations int    `json:"citations,omitempty" yaml:"citations,omitempty"`

	// PublicationCount is derived from authorships at read time.
	PublicationCount int `json:"publication_count" yaml:"-"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// EmbeddingText returns the text the embedder sees for this researcher.
func (r Researcher) EmbeddingText() string {
	parts := make([]string, 0, len(r.Interests))
	for _, in := range r.Interests {
		if s := strings.TrimSpace(in); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Publication is a paper authored by one or more researchers.
type Publication struct {
	ID       string    `json:"id" yaml:"id"`
	Title    string    `json:"title" yaml:"title"`
	Abstract string    `json:"abstract" yaml:"abstract"`
	Date     time.Time `json:"date" yaml:"date"`

	// AuthorIDs lists researcher ids in author order.
	AuthorIDs []string `json:"author_ids" yaml:"authors"`

	// Department is the owning department, if any.
	Department string `json:"department,omitempty" yaml:"department,omitempty"`

	SDGTags []string `json:"sdg_tags,omitempty" yaml:"sdg_tags,omitempty"`

	// SDGAutoGenerated is set when SDGTags came from the keyword classifier.
	SDGAutoGenerated bool `json:"sdg_auto_generated" yaml:"-"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// EmbeddingText returns the text the embedder sees for this publication.
func (p Publication) EmbeddingText() string {
	title := strings.TrimSpace(p.Title)
	abstract := strings.TrimSpace(p.Abstract)
	switch {
	case title == "":
		return abstract
	case abstract == "":
		return title
	default:
		return title + ". " + abstract
	}
}

// Entity is the read-only view of a researcher or publication used by the
// embedding pipeline.
type Entity struct {
	Ref        EntityRef
	Text       string
	Department string
	SDGTags    []string
	UpdatedAt  time.Time
}

// Version returns the monotonic source version used to order embedding writes.
func (e Entity) Version() int64 {
	return e.UpdatedAt.UnixNano()
}

// TextFields lists the entity fields whose change requires re-embedding.
var TextFields = map[EntityType][]string{
	EntityResearcher:  {"interests"},
	EntityPublication: {"title", "abstract"},
}

// HasTextChange reports whether changed names any text-bearing field of t.
// An empty change set is treated as "unknown" and counts as a change.
func HasTextChange(t EntityType, changed []string) bool {
	if len(changed) == 0 {
		return true
	}
	for _, c := range changed {
		for _, f := range TextFields[t] {
			if strings.EqualFold(strings.TrimSpace(c), f) {
				return true
			}
		}
	}
	return false
}

// CollaborationEdge is an unordered researcher pair with a strength that
// counts joint work.
type CollaborationEdge struct {
	ResearcherA      string    `json:"researcher_a" yaml:"researcher_a"`
	ResearcherB      string    `json:"researcher_b" yaml:"researcher_b"`
	Strength         int       `json:"strength" yaml:"strength"`
	LastCollaborated time.Time `json:"last_collaborated,omitempty" yaml:"last_collaborated,omitempty"`
}

// Pair returns the edge's canonical pair.
func (e CollaborationEdge) Pair() Pair {
	return NewPair(e.ResearcherA, e.ResearcherB)
}
