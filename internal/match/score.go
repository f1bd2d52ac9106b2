// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package match

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/pdiddy/collabmatch/internal/embed"
	"github.com/pdiddy/collabmatch/internal/graph"
	"github.com/pdiddy/collabmatch/internal/sdg"
	"github.com/pdiddy/collabmatch/pkg/types"
)

// maxTopicTerms caps the number of shared terms named in a topic.
const maxTopicTerms = 3

// Inputs are the per-pair signals the composite score is computed from.
type Inputs struct {
	Cosine        float64
	LowConfidence bool
	Signals       graph.Signals
}

// Score returns the composite match score in [0,100]:
//
//	100 * (Embedding*cos + Graph*graphScore + Recency*decay - StrongPenalty*strength/AlreadyCollaboratingStrength)
//
// The cosine term is scaled by LowConfidenceFactor when either embedding
// came from the fallback. Recency decays with RecencyHalfLife since the last
// collaboration and is zero for pairs that never collaborated.
func Score(cfg types.MatchConfig, in Inputs, now time.Time) float64 {
	cos := in.Cosine
	if in.LowConfidence {
		cos *= cfg.LowConfidenceFactor
	}

	g := graph.Score(in.Signals, cfg.GraphWeights)
	rec := RecencyDecay(in.Signals.LastCollaborated, now, cfg.RecencyHalfLife)

	var strong float64
	if cfg.AlreadyCollaboratingStrength > 0 {
		strong = math.Min(float64(in.Signals.CoAuthorCount)/float64(cfg.AlreadyCollaboratingStrength), 1)
	}

	raw := cfg.Embedding*cos + cfg.Graph*g + cfg.Recency*rec - cfg.StrongPenalty*strong
	return clamp(100*raw, 0, 100)
}

// RecencyDecay is 2^(-elapsed/halfLife), 1 for a collaboration at or after
// now and 0 when last is zero.
func RecencyDecay(last, now time.Time, halfLife time.Duration) float64 {
	if last.IsZero() || halfLife <= 0 {
		return 0
	}
	elapsed := now.Sub(last)
	if elapsed <= 0 {
		return 1
	}
	return math.Exp2(-float64(elapsed) / float64(halfLife))
}

// AlreadyCollaborating reports whether the pair's direct edge is strong
// enough to exclude it from new opportunities.
func AlreadyCollaborating(cfg types.MatchConfig, s graph.Signals) bool {
	return s.CoAuthorCount > cfg.AlreadyCollaboratingStrength
}

// Topic names the theme of a pair: shared interest terms, else shared SDG
// labels, else the two departments.
func Topic(a, b types.Researcher, tagsA, tagsB []string) string {
	if terms := sharedInterests(a.Interests, b.Interests); len(terms) > 0 {
		return strings.Join(terms, ", ")
	}
	if shared := graph.SharedTags(tagsA, tagsB); len(shared) > 0 {
		labels := make([]string, 0, len(shared))
		for _, t := range shared {
			labels = append(labels, sdg.Label(t))
		}
		if len(labels) > maxTopicTerms {
			labels = labels[:maxTopicTerms]
		}
		return strings.Join(labels, ", ")
	}

	da, db := strings.TrimSpace(a.Department), strings.TrimSpace(b.Department)
	switch {
	case da == "" && db == "":
		return "Cross-disciplinary collaboration"
	case da == "":
		return db
	case db == "" || graph.SameDepartment(da, db):
		return da
	}
	if db < da {
		da, db = db, da
	}
	return da + " × " + db
}

// sharedInterests returns whole interest phrases both researchers list, or
// failing that the individual terms they share, sorted and capped.
func sharedInterests(a, b []string) []string {
	phrases := intersect(normalizePhrases(a), normalizePhrases(b))
	if len(phrases) == 0 {
		phrases = intersect(embed.Tokenize(strings.Join(a, " ")), embed.Tokenize(strings.Join(b, " ")))
	}
	if len(phrases) > maxTopicTerms {
		phrases = phrases[:maxTopicTerms]
	}
	return phrases
}

func normalizePhrases(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.Join(strings.Fields(s), " ")); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	var out []string
	for _, s := range b {
		if set[s] {
			out = append(out, s)
			delete(set, s)
		}
	}
	slices.Sort(out)
	return out
}

// Reason summarises the signals behind a score in one line.
func Reason(in Inputs) string {
	parts := []string{fmt.Sprintf("interest similarity %.2f", in.Cosine)}
	if in.LowConfidence {
		parts = append(parts, "low-confidence embedding")
	}
	if in.Signals.DeptMatch {
		parts = append(parts, "same department")
	} else {
		parts = append(parts, "different departments")
	}
	if in.Signals.TagOverlap > 0 {
		parts = append(parts, fmt.Sprintf("SDG overlap %.0f%%", 100*in.Signals.TagOverlap))
	}
	switch d := in.Signals.PathDistance; {
	case d == graph.Unreachable:
		parts = append(parts, "not connected")
	case d > 1:
		parts = append(parts, fmt.Sprintf("%d hops apart", d))
	}
	if n := in.Signals.CoAuthorCount; n > 0 {
		parts = append(parts, fmt.Sprintf("co-authored %d time(s)", n))
	}
	return strings.Join(parts, "; ")
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
