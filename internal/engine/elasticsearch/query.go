package elasticsearch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
)

// defaultFacetSize bounds the buckets returned per term facet.
const defaultFacetSize = 100

// passthroughParams are request params copied verbatim into the search body.
var passthroughParams = map[string]struct{}{
	"min_score":       {},
	"timeout":         {},
	"terminate_after": {},
	"explain":         {},
	"track_scores":    {},
}

type aggKind int

const (
	aggTerms aggKind = iota
	aggRange
	aggQuery
	aggStats
)

// aggPlan remembers what each generated aggregation stands for. Aggregation
// names are generated because facet names may hold characters Elasticsearch
// rejects in names.
type aggPlan struct {
	kind   aggKind
	facet  string
	ranges []domain.FacetRange
}

// buildSearchBody constructs the query DSL as a map along with the
// aggregation plan needed to read the response back.
func buildSearchBody(conditions string, req engine.Request, docType string) (map[string]any, map[string]aggPlan) {
	var must any
	if strings.TrimSpace(conditions) != "" {
		must = map[string]any{
			"query_string": map[string]any{
				"query":   conditions,
				"lenient": true,
			},
		}
	} else {
		must = map[string]any{
			"match_all": map[string]any{},
		}
	}

	filters := []any{
		map[string]any{
			"term": map[string]any{engine.FieldDocType: docType},
		},
	}
	if req.Filters != "" {
		filters = append(filters, map[string]any{
			"query_string": map[string]any{
				"query": req.Filters,
			},
		})
	}
	for _, rf := range req.RangeFilters {
		bounds := map[string]any{}
		if rf.From != "" {
			bounds["gte"] = numberOrString(rf.From)
		}
		if rf.To != "" {
			bounds["lte"] = numberOrString(rf.To)
		}
		if len(bounds) == 0 {
			continue
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{rf.Field: bounds},
		})
	}

	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must":   []any{must},
				"filter": filters,
			},
		},
		"from":             req.Offset,
		"size":             req.Limit,
		"track_total_hits": true,
	}

	if sort := buildSort(req.Sort); len(sort) > 0 {
		body["sort"] = sort
	}

	aggs, plan := buildAggregations(req.Facets, req.Stats)
	if len(aggs) > 0 {
		body["aggs"] = aggs
	}

	for name, value := range req.Params {
		if _, ok := passthroughParams[name]; ok {
			body[name] = value
		}
	}

	return body, plan
}

// buildSort constructs the sort clause. Dynamic fields may not be mapped yet,
// so they sort as missing rather than failing the search.
func buildSort(fields []domain.SortField) []any {
	sort := make([]any, 0, len(fields))
	for _, f := range fields {
		if f.Field == "_score" {
			sort = append(sort, map[string]any{"_score": map[string]any{"order": f.Direction}})
			continue
		}
		sort = append(sort, map[string]any{
			f.Field: map[string]any{
				"order":         f.Direction,
				"unmapped_type": "keyword",
			},
		})
	}
	return sort
}

func buildAggregations(facets *domain.FacetRequest, stats []string) (map[string]any, map[string]aggPlan) {
	aggs := map[string]any{}
	plan := map[string]aggPlan{}
	taken := map[string]struct{}{}

	if facets != nil {
		for i, field := range facets.Fields {
			name := "terms_" + strconv.Itoa(i)
			aggs[name] = map[string]any{
				"terms": map[string]any{
					"field": termsField(field),
					"size":  defaultFacetSize,
				},
			}
			plan[name] = aggPlan{kind: aggTerms, facet: field}
			taken[field] = struct{}{}
		}
		for i, rf := range facets.Ranges {
			name := "range_" + strconv.Itoa(i)
			ranges := make([]any, 0, len(rf.Buckets))
			for _, b := range rf.Buckets {
				r := map[string]any{}
				if b.From != "" {
					r["from"] = numberOrString(b.From)
				}
				if b.To != "" {
					r["to"] = numberOrString(b.To)
				}
				ranges = append(ranges, r)
			}
			aggs[name] = map[string]any{
				"range": map[string]any{
					"field":  rf.Field,
					"ranges": ranges,
				},
			}
			plan[name] = aggPlan{kind: aggRange, facet: rf.Field, ranges: rf.Buckets}
			taken[rf.Field] = struct{}{}
		}
		for i, clause := range facets.Queries {
			name := "query_" + strconv.Itoa(i)
			aggs[name] = map[string]any{
				"filter": map[string]any{
					"query_string": map[string]any{"query": clause},
				},
			}
			plan[name] = aggPlan{kind: aggQuery, facet: clause}
			taken[clause] = struct{}{}
		}
	}

	for i, field := range stats {
		name := "stats_" + strconv.Itoa(i)
		facet := field
		if _, clash := taken[facet]; clash {
			facet += "_stats"
		}
		aggs[name] = map[string]any{
			"stats": map[string]any{"field": field},
		}
		plan[name] = aggPlan{kind: aggStats, facet: facet}
	}

	return aggs, plan
}

// termsField returns the aggregatable field for a term facet. Reserved
// fields are keywords already; dynamic strings carry a keyword sub-field.
func termsField(field string) string {
	if _, ok := keywordFields[field]; ok {
		return field
	}
	return field + ".keyword"
}

func buildCleanQuery(storeID int64, id string, docType string) map[string]any {
	filters := []any{
		map[string]any{"term": map[string]any{engine.FieldDocType: docType}},
	}
	if storeID > 0 {
		filters = append(filters, map[string]any{"term": map[string]any{engine.FieldStoreID: storeID}})
	}
	if id != "" {
		filters = append(filters, map[string]any{"term": map[string]any{engine.FieldID: id}})
	}
	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{"filter": filters},
		},
	}
}

// numberOrString sends numeric bounds as numbers.
func numberOrString(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

type esTermsAgg struct {
	Buckets []struct {
		Key         any    `json:"key"`
		KeyAsString string `json:"key_as_string"`
		DocCount    int64  `json:"doc_count"`
	} `json:"buckets"`
}

type esRangeAgg struct {
	Buckets []struct {
		DocCount int64 `json:"doc_count"`
	} `json:"buckets"`
}

type esFilterAgg struct {
	DocCount int64 `json:"doc_count"`
}

type esStatsAgg struct {
	Count int64    `json:"count"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Avg   *float64 `json:"avg"`
	Sum   *float64 `json:"sum"`
}

// translateAggregations reshapes aggregation results into facet buckets:
// a "terms" list, a "ranges" list, a "statistical" record or a "count".
func translateAggregations(plan map[string]aggPlan, aggs map[string]json.RawMessage) (map[string]map[string]any, error) {
	facets := make(map[string]map[string]any, len(plan))
	for name, raw := range aggs {
		p, ok := plan[name]
		if !ok {
			continue
		}
		switch p.kind {
		case aggTerms:
			var agg esTermsAgg
			if err := json.Unmarshal(raw, &agg); err != nil {
				return nil, fmt.Errorf("decode terms facet %q: %w", p.facet, err)
			}
			terms := make([]any, 0, len(agg.Buckets))
			for _, b := range agg.Buckets {
				term := b.KeyAsString
				if term == "" {
					term = keyString(b.Key)
				}
				terms = append(terms, map[string]any{"term": term, "count": b.DocCount})
			}
			facets[p.facet] = map[string]any{"_type": "terms", "terms": terms}
		case aggRange:
			var agg esRangeAgg
			if err := json.Unmarshal(raw, &agg); err != nil {
				return nil, fmt.Errorf("decode range facet %q: %w", p.facet, err)
			}
			ranges := make([]any, 0, len(agg.Buckets))
			for i, b := range agg.Buckets {
				entry := map[string]any{"total_count": b.DocCount}
				if i < len(p.ranges) {
					entry["from_str"] = p.ranges[i].From
					entry["to_str"] = p.ranges[i].To
				}
				ranges = append(ranges, entry)
			}
			facets[p.facet] = map[string]any{"_type": "range", "ranges": ranges}
		case aggQuery:
			var agg esFilterAgg
			if err := json.Unmarshal(raw, &agg); err != nil {
				return nil, fmt.Errorf("decode query facet %q: %w", p.facet, err)
			}
			facets[p.facet] = map[string]any{"_type": "query", "count": agg.DocCount}
		case aggStats:
			var agg esStatsAgg
			if err := json.Unmarshal(raw, &agg); err != nil {
				return nil, fmt.Errorf("decode stats facet %q: %w", p.facet, err)
			}
			facets[p.facet] = map[string]any{
				"_type": "statistical",
				"count": agg.Count,
				"min":   floatOrNil(agg.Min),
				"max":   floatOrNil(agg.Max),
				"mean":  floatOrNil(agg.Avg),
				"total": floatOrNil(agg.Sum),
			}
		}
	}
	return facets, nil
}

func keyString(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(k)
	default:
		return fmt.Sprint(k)
	}
}

func floatOrNil(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
