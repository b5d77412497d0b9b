// Package result turns backend search responses into domain results.
package result

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	"github.com/utafrali/catalogsearch/internal/query"
)

// Hits returns the flattened source of every hit in engine order. Error
// flagged and empty responses yield an empty list.
func Hits(resp *engine.Response) []map[string]any {
	if resp == nil || resp.HasError() || resp.Count() == 0 {
		return []map[string]any{}
	}
	docs := make([]map[string]any, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		doc := Flatten(hit.Source)
		if doc == nil {
			doc = map[string]any{}
		}
		if _, ok := doc[engine.FieldID]; !ok && hit.ID != "" {
			doc[engine.FieldID] = hit.ID
		}
		docs = append(docs, doc)
	}
	return docs
}

// IDs extracts entity identifiers from normalized hits.
func IDs(docs []map[string]any) []string {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if id, ok := stringValue(doc[engine.FieldID]); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Normalize builds the result of one search. The total count is always set;
// facets are decoded only when withFacets is true.
func Normalize(resp *engine.Response, withFacets bool) *domain.Result {
	if resp == nil {
		return domain.EmptyResult()
	}
	docs := Hits(resp)
	res := &domain.Result{
		IDs:       IDs(docs),
		Documents: docs,
	}
	if !resp.HasError() {
		res.TotalCount = resp.TotalHits
	}
	if withFacets {
		res.Facets = Facets(resp.Facets)
	}
	return res
}

type bucketKind int

const (
	bucketUnknown bucketKind = iota
	bucketTerms
	bucketStats
	bucketRanges
	bucketCategory
)

// classify resolves the bucket kind by priority: terms, statistical, ranges,
// then the category clause name.
func classify(name string, bucket map[string]any) bucketKind {
	if _, ok := bucket["terms"]; ok {
		return bucketTerms
	}
	if t, _ := bucket["_type"].(string); t == "statistical" {
		return bucketStats
	}
	if _, ok := bucket["ranges"]; ok {
		return bucketRanges
	}
	if _, ok := query.ParseCategoryCondition(name); ok {
		return bucketCategory
	}
	return bucketUnknown
}

// Facets decodes raw facet buckets. Unrecognized shapes are skipped.
// Buckets are read in name order and a count replaces any earlier count
// for the same label, so a term facet called "categories" overrides the
// category query buckets.
func Facets(raw map[string]map[string]any) *domain.Facets {
	facets := domain.NewFacets()
	for _, name := range slices.Sorted(maps.Keys(raw)) {
		bucket := raw[name]
		switch classify(name, bucket) {
		case bucketTerms:
			for _, entry := range listOfObjects(bucket["terms"]) {
				term, ok := stringValue(entry["term"])
				if !ok {
					continue
				}
				count, _ := intValue(entry["count"])
				facets.Set(name, term, count)
			}
		case bucketStats:
			facets.Stats[name] = Flatten(bucket)
		case bucketRanges:
			for _, entry := range listOfObjects(bucket["ranges"]) {
				from, _ := stringValue(entry["from_str"])
				to, _ := stringValue(entry["to_str"])
				count, _ := intValue(entry["total_count"])
				facets.Set(name, "["+from+" TO "+to+"]", count)
			}
		case bucketCategory:
			id, _ := query.ParseCategoryCondition(name)
			count, _ := intValue(bucket["count"])
			facets.Set(domain.FacetCategories, id, count)
		}
	}
	return facets
}

// Flatten converts a decoded document into plain maps, slices and scalars.
// Nested objects become map[string]any and JSON numbers become int64 or
// float64.
func Flatten(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = flattenValue(v)
	}
	return out
}

func flattenValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Flatten(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = flattenValue(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Flatten(e)
		}
		return out
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

func listOfObjects(v any) []map[string]any {
	switch t := v.(type) {
	case []map[string]any:
		return t
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		if t {
			return "1", true
		}
		return "0", true
	default:
		return fmt.Sprint(t), true
	}
}

func intValue(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		return int64(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		f, err := t.Float64()
		return int64(f), err == nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
