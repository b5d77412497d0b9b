package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Query is the search input: either plain text or a structured field mapping.
type Query struct {
	Text   string
	Fields Conditions
}

// TextQuery builds a plain-text query.
func TextQuery(text string) Query {
	return Query{Text: text}
}

// FieldQuery builds a structured query.
func FieldQuery(fields Conditions) Query {
	return Query{Fields: fields}
}

// IsStructured reports whether the query is a field mapping.
func (q Query) IsStructured() bool {
	return q.Fields != nil
}

// IsEmpty reports whether the query carries no text and no fields.
func (q Query) IsEmpty() bool {
	return q.Text == "" && len(q.Fields) == 0
}

// UnmarshalJSON accepts either a string or an object.
func (q *Query) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = Query{}
		return nil
	}
	if data[0] == '{' {
		var fields Conditions
		if err := fields.UnmarshalJSON(data); err != nil {
			return fmt.Errorf("decode query fields: %w", err)
		}
		*q = Query{Fields: fields}
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("decode query text: %w", err)
	}
	*q = Query{Text: text}
	return nil
}

// MarshalJSON encodes the query in the same shape it is decoded from.
func (q Query) MarshalJSON() ([]byte, error) {
	if q.IsStructured() {
		return q.Fields.MarshalJSON()
	}
	return json.Marshal(q.Text)
}

// FacetField requests a facet over one field. No conditions means a term
// facet over every value; Range conditions produce range buckets; Text
// conditions produce query facets.
type FacetField struct {
	Field      string
	Conditions []Value
}

// FacetSpec is the ordered list of requested facets.
type FacetSpec []FacetField

// UnmarshalJSON decodes {"field": [conditions...]} preserving key order.
func (f *FacetSpec) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = nil
		return nil
	}
	out := FacetSpec{}
	err := decodeOrderedObject(data, func(key string, raw json.RawMessage) error {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("facet %q: %w", key, err)
		}
		field := FacetField{Field: key}
		for _, item := range items {
			v, err := DecodeValue(item)
			if err != nil {
				return fmt.Errorf("facet %q: %w", key, err)
			}
			if v != nil {
				field.Conditions = append(field.Conditions, v)
			}
		}
		out = append(out, field)
		return nil
	})
	if err != nil {
		return err
	}
	*f = out
	return nil
}

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Logical sort keys with dedicated resolution rules.
const (
	SortRelevance = "relevance"
	SortPosition  = "position"
	SortPrice     = "price"
)

// Sort is one logical sort directive.
type Sort struct {
	Field     string
	Direction string
}

// Sorts is an ordered list of directives. Its JSON form is a list of
// single-entry objects: [{"price": "asc"}, {"name": "desc"}].
type Sorts []Sort

// UnmarshalJSON decodes the list of single-entry objects.
func (s *Sorts) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("decode sort: %w", err)
	}
	out := make(Sorts, 0, len(items))
	for _, item := range items {
		err := decodeOrderedObject(item, func(key string, raw json.RawMessage) error {
			var dir string
			if err := json.Unmarshal(raw, &dir); err != nil {
				return fmt.Errorf("sort %q: %w", key, err)
			}
			out = append(out, Sort{Field: key, Direction: dir})
			return nil
		})
		if err != nil {
			return err
		}
	}
	*s = out
	return nil
}

// MarshalJSON encodes the directives as single-entry objects.
func (s Sorts) MarshalJSON() ([]byte, error) {
	items := make([]map[string]string, 0, len(s))
	for _, d := range s {
		items = append(items, map[string]string{d.Field: d.Direction})
	}
	return json.Marshal(items)
}

// SortField is a resolved sort on a physical index field.
type SortField struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// NormalizeDirection lower-cases and trims a direction.
func NormalizeDirection(dir string) string {
	return strings.ToLower(strings.TrimSpace(dir))
}

// FacetRange is one bucket of a range facet. Blank bounds are left empty.
type FacetRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// RangeFacet lists the buckets requested for one field.
type RangeFacet struct {
	Field   string       `json:"field"`
	Buckets []FacetRange `json:"buckets"`
}

// FacetRequest is the compiled facet request. Each section is evaluated
// independently by the engine.
type FacetRequest struct {
	Fields  []string     `json:"fields,omitempty"`
	Ranges  []RangeFacet `json:"ranges,omitempty"`
	Queries []string     `json:"queries,omitempty"`
}

// IsEmpty reports whether no section is populated.
func (r FacetRequest) IsEmpty() bool {
	return len(r.Fields) == 0 && len(r.Ranges) == 0 && len(r.Queries) == 0
}

// RangeFilter restricts a numeric field outside the query string.
type RangeFilter struct {
	Field string `json:"field" validate:"required"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}
