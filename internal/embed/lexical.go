// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/components/embedding"
)

// LexicalModel names vectors produced by the Lexical backend.
const LexicalModel = "lexical-fnv"

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "we": true, "with": true,
}

// Lexical is an offline backend that hashes word counts into a fixed
// number of signed buckets (the hashing trick). Texts sharing words get a
// positive cosine similarity. It needs no network and is deterministic.
type Lexical struct {
	dim int
}

var _ embedding.Embedder = (*Lexical)(nil)

// NewLexical returns a Lexical backend producing vectors of length dim.
func NewLexical(dim int) *Lexical {
	return &Lexical{dim: dim}
}

// EmbedStrings implements embedding.Embedder.
func (l *Lexical) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = l.Vector(t)
	}
	return out, nil
}

// Vector returns the L2-normalised hashed bag of words for text.
func (l *Lexical) Vector(text string) []float64 {
	v := make([]float64, l.dim)
	for _, tok := range Tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		sign := 1.0
		if sum>>31 == 1 {
			sign = -1
		}
		v[int(sum%uint32(l.dim))] += sign
	}

	var norm float64
	for _, f := range v {
		norm += f * f
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

// Tokenize lowercases text and splits it into words of two or more letters
// or digits, dropping common stop words.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 2 || stopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}
