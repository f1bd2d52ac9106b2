// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/collabmatch/pkg/types"
)

// ExportEntry holds an opportunity with researcher details for export.
type ExportEntry struct {
	ID          string             `json:"id" yaml:"id"`
	Topic       string             `json:"topic" yaml:"topic"`
	MatchScore  float64            `json:"match_score" yaml:"match_score"`
	Reason      string             `json:"reason" yaml:"reason"`
	Status      string             `json:"status" yaml:"status"`
	CreatedAt   time.Time          `json:"created_at" yaml:"created_at"`
	Researchers []ExportResearcher `json:"researchers" yaml:"researchers"`
}

// ExportResearcher holds the researcher fields included in each export entry.
type ExportResearcher struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
	Department string `json:"department,omitempty" yaml:"department,omitempty"`
}

// ExportYAML writes the opportunities selected by f to path as YAML.
func (s *Store) ExportYAML(ctx context.Context, path string, f types.OpportunityFilter) error {
	entries, err := s.exportEntries(ctx, f)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return writeExport(path, data)
}

// ExportJSON writes the opportunities selected by f to path as JSON.
func (s *Store) ExportJSON(ctx context.Context, path string, f types.OpportunityFilter) error {
	entries, err := s.exportEntries(ctx, f)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return writeExport(path, data)
}

func writeExport(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) exportEntries(ctx context.Context, f types.OpportunityFilter) ([]ExportEntry, error) {
	opps, err := s.ListOpportunities(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	researchers, err := s.ListResearchers(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	byID := make(map[string]types.Researcher, len(researchers))
	for _, r := range researchers {
		byID[r.ID] = r
	}

	entries := make([]ExportEntry, len(opps))
	for i, o := range opps {
		entries[i] = ExportEntry{
			ID:         o.ID,
			Topic:      o.Topic,
			MatchScore: o.MatchScore,
			Reason:     o.Reason,
			Status:     string(o.Status),
			CreatedAt:  o.CreatedAt,
		}
		for _, id := range []string{o.Pair.A, o.Pair.B} {
			r := byID[id]
			entries[i].Researchers = append(entries[i].Researchers, ExportResearcher{
				ID:         id,
				Name:       r.Name,
				Department: r.Department,
			})
		}
	}
	return entries, nil
}
