package model

import "time"

// Atom is a named, typed, path-addressable record in the atom index
type Atom struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// AtomIndex is the on-disk index.json layout
type AtomIndex struct {
	TotalAtoms  int            `json:"total_atoms"`
	LastUpdated int64          `json:"last_updated"` // Unix seconds
	AtomsByType map[string]int `json:"atoms_by_type,omitempty"`
	Atoms       []Atom         `json:"atoms"`
}

// AtomStats summarizes a loaded index
type AtomStats struct {
	TotalAtoms  int            `json:"total_atoms"`
	Types       map[string]int `json:"types"`
	LastUpdated time.Time      `json:"last_updated"`
}
