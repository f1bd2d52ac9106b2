// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/pdiddy/collabmatch/internal/httputil"
	"github.com/pdiddy/collabmatch/pkg/types"
)

// openAlexAuthorsBase is the OpenAlex Authors search endpoint. Declared as
// a var so tests can substitute an httptest server.
var openAlexAuthorsBase = "https://api.openalex.org/authors"

// OpenAlex looks researchers up in the OpenAlex author index.
type OpenAlex struct {
	Client *http.Client
	// Email is sent as mailto parameter for polite pool access.
	Email     string
	UserAgent string
	// MaxRetries bounds retries on 429 and 503 (0 means the default).
	MaxRetries int
}

// Name returns the source identifier.
func (o *OpenAlex) Name() string { return "openalex" }

// Lookup returns the best OpenAlex match for name, or types.ErrNotFound.
func (o *OpenAlex) Lookup(ctx context.Context, name string) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Profile{}, fmt.Errorf("empty author name")
	}

	params := url.Values{
		"search":   {name},
		"per_page": {"1"},
	}
	if o.Email != "" {
		params.Set("mailto", o.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexAuthorsBase+"?"+params.Encode(), nil)
	if err != nil {
		return Profile{}, fmt.Errorf("creating request: %w", err)
	}
	if o.UserAgent != "" {
		req.Header.Set("User-Agent", o.UserAgent)
	}

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, o.MaxRetries)
	if err != nil {
		return Profile{}, fmt.Errorf("OpenAlex API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("OpenAlex API returned HTTP %d", resp.StatusCode)
	}

	var oar openAlexAuthorsResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return Profile{}, fmt.Errorf("parsing OpenAlex response: %w", err)
	}
	if len(oar.Results) == 0 {
		return Profile{}, fmt.Errorf("OpenAlex author %q: %w", name, types.ErrNotFound)
	}
	return oar.Results[0].profile(), nil
}

func (a openAlexAuthor) profile() Profile {
	p := Profile{
		ID:          strings.TrimPrefix(a.ID, "https://openalex.org/"),
		DisplayName: a.DisplayName,
		HIndex:      a.SummaryStats.HIndex,
		Citations:   a.CitedByCount,
		Works:       a.WorksCount,
	}
	for _, inst := range a.LastKnownInstitutions {
		if inst.DisplayName != "" {
			p.Institution = inst.DisplayName
			break
		}
	}

	// Highest work count first.
	topics := slices.Clone(a.Topics)
	slices.SortStableFunc(topics, func(x, y openAlexTopic) int { return cmp.Compare(y.Count, x.Count) })
	for _, t := range topics {
		if t.DisplayName != "" {
			p.Topics = append(p.Topics, t.DisplayName)
		}
		if t.Field.DisplayName != "" && !slices.Contains(p.Fields, t.Field.DisplayName) {
			p.Fields = append(p.Fields, t.Field.DisplayName)
		}
	}

	// Older author records only carry concepts.
	if len(p.Topics) == 0 {
		concepts := slices.Clone(a.XConcepts)
		slices.SortStableFunc(concepts, func(x, y openAlexConcept) int { return cmp.Compare(y.Score, x.Score) })
		for _, c := range concepts {
			if c.DisplayName != "" {
				p.Topics = append(p.Topics, c.DisplayName)
			}
		}
	}
	return p
}

// OpenAlex API JSON structures.
type openAlexAuthorsResponse struct {
	Results []openAlexAuthor `json:"results"`
}

type openAlexAuthor struct {
	ID                    string                `json:"id"`
	DisplayName           string                `json:"display_name"`
	WorksCount            int                   `json:"works_count"`
	CitedByCount          int                   `json:"cited_by_count"`
	SummaryStats          openAlexSummaryStats  `json:"summary_stats"`
	LastKnownInstitutions []openAlexInstitution `json:"last_known_institutions"`
	Topics                []openAlexTopic       `json:"topics"`
	XConcepts             []openAlexConcept     `json:"x_concepts"`
}

type openAlexSummaryStats struct {
	HIndex int `json:"h_index"`
}

type openAlexInstitution struct {
	DisplayName string `json:"display_name"`
}

type openAlexTopic struct {
	DisplayName string        `json:"display_name"`
	Count       int           `json:"count"`
	Field       openAlexField `json:"field"`
}

type openAlexField struct {
	DisplayName string `json:"display_name"`
}

type openAlexConcept struct {
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}
