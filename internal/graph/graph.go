// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package graph derives structural signals for a researcher pair from the
// collaboration graph: shared department, SDG tag overlap, shortest path
// distance and direct co-authorship.
//
// Scoring uses only the structured department and tag fields.
package graph

import (
	"strings"
	"time"

	"github.com/pdiddy/collabmatch/pkg/types"
)

// Unreachable is the PathDistance of pairs farther apart than the search
// depth or in different components.
const Unreachable = -1

// Profile is the structural view of one researcher.
type Profile struct {
	ID         string
	Department string

	// SDGTags is the researcher's effective tag set: own tags plus tags of
	// authored publications.
	SDGTags []string
}

// Signals describes how two researchers relate structurally.
type Signals struct {
	DeptMatch        bool
	TagOverlap       float64
	PathDistance     int
	CoAuthorCount    int
	LastCollaborated time.Time
}

// Graph is an immutable adjacency view. It is safe for concurrent reads.
type Graph struct {
	profiles map[string]Profile
	adj      map[string]map[string]types.CollaborationEdge
	maxDepth int
}

// New builds a graph from profiles and edges. Edges with non-positive
// strength are ignored. maxDepth bounds the path search.
func New(profiles []Profile, edges []types.CollaborationEdge, maxDepth int) *Graph {
	g := &Graph{
		profiles: make(map[string]Profile, len(profiles)),
		adj:      make(map[string]map[string]types.CollaborationEdge),
		maxDepth: maxDepth,
	}
	for _, p := range profiles {
		g.profiles[p.ID] = p
	}
	for _, e := range edges {
		if e.Strength <= 0 || e.ResearcherA == e.ResearcherB {
			continue
		}
		g.link(e.ResearcherA, e.ResearcherB, e)
		g.link(e.ResearcherB, e.ResearcherA, e)
	}
	return g
}

func (g *Graph) link(from, to string, e types.CollaborationEdge) {
	if g.adj[from] == nil {
		g.adj[from] = make(map[string]types.CollaborationEdge)
	}
	g.adj[from][to] = e
}

// Profile returns the profile for id.
func (g *Graph) Profile(id string) (Profile, bool) {
	p, ok := g.profiles[id]
	return p, ok
}

// Edge returns the direct edge between a and b, if any.
func (g *Graph) Edge(a, b string) (types.CollaborationEdge, bool) {
	e, ok := g.adj[a][b]
	return e, ok
}

// Signals computes the structural signals for the pair (a, b). The result
// does not depend on argument order.
func (g *Graph) Signals(a, b string) Signals {
	pa, pb := g.profiles[a], g.profiles[b]
	s := Signals{
		DeptMatch:    SameDepartment(pa.Department, pb.Department),
		TagOverlap:   Jaccard(pa.SDGTags, pb.SDGTags),
		PathDistance: g.PathDistance(a, b),
	}
	if e, ok := g.Edge(a, b); ok {
		s.CoAuthorCount = e.Strength
		s.LastCollaborated = e.LastCollaborated
	}
	return s
}

// PathDistance returns the number of hops between a and b, 0 for the same
// researcher, or Unreachable if no path of at most maxDepth hops exists.
func (g *Graph) PathDistance(a, b string) int {
	if a == b {
		return 0
	}
	visited := map[string]bool{a: true}
	frontier := []string{a}
	for depth := 1; depth <= g.maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, n := range frontier {
			for m := range g.adj[n] {
				if m == b {
					return depth
				}
				if !visited[m] {
					visited[m] = true
					next = append(next, m)
				}
			}
		}
		frontier = next
	}
	return Unreachable
}

// Score combines signals into [0,1] as the weighted mean of department
// match, tag overlap and proximity (1/distance, 0 when unreachable).
func Score(s Signals, w types.GraphWeights) float64 {
	total := w.Sum()
	if total <= 0 {
		return 0
	}

	var dept, proximity float64
	if s.DeptMatch {
		dept = 1
	}
	switch {
	case s.PathDistance == 0:
		proximity = 1
	case s.PathDistance > 0:
		proximity = 1 / float64(s.PathDistance)
	}

	score := (w.Department*dept + w.TagOverlap*s.TagOverlap + w.Proximity*proximity) / total
	return max(0, min(1, score))
}

// SameDepartment compares departments after trimming and case folding.
// An empty department never matches.
func SameDepartment(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

// Jaccard returns |a ∩ b| / |a ∪ b| over normalised tags. Two empty sets
// have overlap 0.
func Jaccard(a, b []string) float64 {
	sa, sb := tagSet(a), tagSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 0
	}
	inter := 0
	for t := range sa {
		if sb[t] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// SharedTags returns the normalised tags present in both a and b, in the
// order they appear in a.
func SharedTags(a, b []string) []string {
	sb := tagSet(b)
	seen := map[string]bool{}
	var out []string
	for _, t := range a {
		n := NormalizeTag(t)
		if n != "" && sb[n] && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// NormalizeTag trims and upper-cases a tag so "sdg_13" and "SDG_13 " match.
func NormalizeTag(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

func tagSet(tags []string) map[string]bool {
	s := make(map[string]bool, len(tags))
	for _, t := range tags {
		if n := NormalizeTag(t); n != "" {
			s[n] = true
		}
	}
	return s
}
