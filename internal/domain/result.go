package domain

import (
	"encoding/json"
	"fmt"
)

// Reserved facet names in a normalized result.
const (
	FacetStats      = "stats"
	FacetCategories = "categories"
)

// Result is the normalized outcome of one search.
type Result struct {
	IDs        []string         `json:"ids"`
	Documents  []map[string]any `json:"documents,omitempty"`
	TotalCount int64            `json:"total_count"`
	Facets     *Facets          `json:"facets,omitempty"`
}

// EmptyResult is returned when the engine produced nothing usable.
func EmptyResult() *Result {
	return &Result{IDs: []string{}}
}

// Facets holds per-name value counts and statistical records. It serialises
// to a single object where statistical records live under the "stats" key.
type Facets struct {
	Counts map[string]map[string]int64
	Stats  map[string]map[string]any
}

// NewFacets returns an empty Facets ready to be filled.
func NewFacets() *Facets {
	return &Facets{
		Counts: make(map[string]map[string]int64),
		Stats:  make(map[string]map[string]any),
	}
}

// Set records count for label under facet name. A later count for the same
// label replaces the earlier one.
func (f *Facets) Set(name, label string, count int64) {
	bucket, ok := f.Counts[name]
	if !ok {
		bucket = make(map[string]int64)
		f.Counts[name] = bucket
	}
	bucket[label] = count
}

// Len returns the number of populated facet names, stats included.
func (f *Facets) Len() int {
	if f == nil {
		return 0
	}
	n := len(f.Counts)
	if len(f.Stats) > 0 {
		n++
	}
	return n
}

// MarshalJSON flattens counts and stats into one object.
func (f Facets) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Counts)+1)
	for name, bucket := range f.Counts {
		out[name] = bucket
	}
	if len(f.Stats) > 0 {
		out[FacetStats] = f.Stats
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the flat object back into counts and stats.
func (f *Facets) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = *NewFacets()
	for name, body := range raw {
		if name == FacetStats {
			if err := json.Unmarshal(body, &f.Stats); err != nil {
				return fmt.Errorf("decode stats facet: %w", err)
			}
			continue
		}
		var bucket map[string]int64
		if err := json.Unmarshal(body, &bucket); err != nil {
			return fmt.Errorf("decode facet %q: %w", name, err)
		}
		f.Counts[name] = bucket
	}
	return nil
}
