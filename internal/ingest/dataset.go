// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/collabmatch/pkg/types"
)

// Dataset is the import format: researchers, their publications, and
// optionally explicit collaboration edges. When no edges are listed they
// are derived from co-authorship.
type Dataset struct {
	Researchers    []types.Researcher        `yaml:"researchers"`
	Publications   []types.Publication       `yaml:"publications"`
	Collaborations []types.CollaborationEdge `yaml:"collaborations,omitempty"`
}

// LoadFile reads a dataset from a .yaml/.yml file or a CSV export with
// the columns Title, Authors, Abstract, Year, Department.
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(f)
	case ".csv":
		return ParseCSV(f)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q (want .yaml or .csv)", filepath.Ext(path))
	}
}

// ParseYAML decodes a YAML dataset.
func ParseYAML(r io.Reader) (*Dataset, error) {
	var ds Dataset
	if err := yaml.NewDecoder(r).Decode(&ds); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing dataset: %w", err)
	}
	return &ds, nil
}

var requiredColumns = []string{"Title", "Authors", "Abstract", "Year", "Department"}

// ParseCSV converts a publication list into a dataset. Each row is one
// publication; authors are separated by commas or semicolons and become
// researchers keyed by a slug of their name, in the department of the
// first row that names them. Rows with the same title are merged.
func ParseCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := col[c]; !ok {
			return nil, fmt.Errorf("CSV must have columns: %s", strings.Join(requiredColumns, ", "))
		}
	}

	ds := &Dataset{}
	researchers := map[string]int{}
	pubs := map[string]int{}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", line, err)
		}
		field := func(name string) string {
			if i := col[name]; i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		title, authors, year := field("Title"), field("Authors"), field("Year")
		if title == "" || authors == "" || year == "" {
			return nil, fmt.Errorf("line %d: title, authors and year are required", line)
		}
		y, err := strconv.Atoi(year)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid year %q", line, year)
		}
		dept := field("Department")

		var authorIDs []string
		for _, name := range strings.FieldsFunc(authors, func(r rune) bool { return r == ',' || r == ';' }) {
			name = strings.TrimSpace(name)
			id := Slug(name)
			if id == "" {
				continue
			}
			if _, ok := researchers[id]; !ok {
				researchers[id] = len(ds.Researchers)
				ds.Researchers = append(ds.Researchers, types.Researcher{ID: id, Name: name, Department: dept})
			}
			authorIDs = append(authorIDs, id)
		}
		if len(authorIDs) == 0 {
			return nil, fmt.Errorf("line %d: no valid authors", line)
		}

		id := PublicationID(title)
		if _, ok := pubs[id]; ok {
			continue
		}
		pubs[id] = len(ds.Publications)
		ds.Publications = append(ds.Publications, types.Publication{
			ID:         id,
			Title:      title,
			Abstract:   field("Abstract"),
			Date:       time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC),
			AuthorIDs:  authorIDs,
			Department: dept,
		})
	}
	return ds, nil
}

// Slug lowercases s and joins its letter and digit runs with "-".
func Slug(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, "-")
}

// PublicationID derives a stable id from a title so that re-importing the
// same CSV updates rather than duplicates.
func PublicationID(title string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.Join(strings.Fields(title), " "))))
	return "pub-" + hex.EncodeToString(sum[:6])
}
