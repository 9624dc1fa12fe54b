package atoms

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/cyclotron/internal/model"
)

// DefaultSearchLimit caps search results when no limit is given
const DefaultSearchLimit = 20

// Index is a loaded, read-only atom index
type Index struct {
	data model.AtomIndex
}

// SearchOptions narrows a search
type SearchOptions struct {
	Limit int    // <= 0 means DefaultSearchLimit
	Type  string // Exact type filter; empty matches all
}

// Parse decodes index.json content
func Parse(raw []byte) (*Index, error) {
	var data model.AtomIndex
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse atom index: %w", err)
	}
	return &Index{data: data}, nil
}

// Len returns the number of atoms actually present
func (ix *Index) Len() int {
	return len(ix.data.Atoms)
}

// Search returns atoms whose name or path contains query (case-insensitive).
// Name matches sort before path-only matches; order is otherwise preserved.
func (ix *Index) Search(query string, opts SearchOptions) []model.Atom {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	q := strings.ToLower(query)

	type hit struct {
		atom      model.Atom
		nameMatch bool
	}

	var hits []hit
	for _, atom := range ix.data.Atoms {
		if opts.Type != "" && atom.Type != opts.Type {
			continue
		}
		nameMatch := strings.Contains(strings.ToLower(atom.Name), q)
		if nameMatch || strings.Contains(strings.ToLower(atom.Path), q) {
			hits = append(hits, hit{atom: atom, nameMatch: nameMatch})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].nameMatch && !hits[j].nameMatch
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]model.Atom, len(hits))
	for i, h := range hits {
		out[i] = h.atom
	}
	return out
}

// Stats summarizes the index. Per-type counts come from the index header
// when present, otherwise they are tallied from the atoms.
func (ix *Index) Stats() model.AtomStats {
	total := ix.data.TotalAtoms
	if total == 0 {
		total = len(ix.data.Atoms)
	}

	types := make(map[string]int)
	if len(ix.data.AtomsByType) > 0 {
		for k, v := range ix.data.AtomsByType {
			types[k] = v
		}
	} else {
		for _, atom := range ix.data.Atoms {
			types[atom.Type]++
		}
	}

	return model.AtomStats{
		TotalAtoms:  total,
		Types:       types,
		LastUpdated: time.Unix(ix.data.LastUpdated, 0).UTC(),
	}
}
