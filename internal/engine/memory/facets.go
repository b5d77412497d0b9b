package memory

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
)

// computeFacets counts facet buckets over the matched documents, using the
// same bucket shapes the Elasticsearch engine reports.
func computeFacets(docs []engine.Document, req *domain.FacetRequest, stats []string) (map[string]map[string]any, error) {
	facets := make(map[string]map[string]any)
	taken := make(map[string]struct{})

	if req != nil {
		for _, field := range req.Fields {
			facets[field] = termsFacet(docs, field)
			taken[field] = struct{}{}
		}
		for _, rf := range req.Ranges {
			facets[rf.Field] = rangeFacet(docs, rf)
			taken[rf.Field] = struct{}{}
		}
		for _, clause := range req.Queries {
			m, err := parseQuery(clause)
			if err != nil {
				return nil, fmt.Errorf("facet query %q: %w", clause, err)
			}
			var count int64
			for _, doc := range docs {
				if m(doc.Fields) {
					count++
				}
			}
			facets[clause] = map[string]any{"_type": "query", "count": count}
			taken[clause] = struct{}{}
		}
	}

	for _, field := range stats {
		name := field
		if _, clash := taken[name]; clash {
			name += "_stats"
		}
		facets[name] = statsFacet(docs, field)
	}
	return facets, nil
}

func termsFacet(docs []engine.Document, field string) map[string]any {
	counts := make(map[string]int64)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, v := range stringify(doc.Fields[field]) {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			counts[v]++
		}
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	terms := make([]any, 0, len(keys))
	for _, k := range keys {
		terms = append(terms, map[string]any{"term": k, "count": counts[k]})
	}
	return map[string]any{"_type": "terms", "terms": terms}
}

// rangeFacet counts documents per bucket; from is inclusive and to exclusive.
func rangeFacet(docs []engine.Document, rf domain.RangeFacet) map[string]any {
	ranges := make([]any, 0, len(rf.Buckets))
	for _, b := range rf.Buckets {
		var count int64
		for _, doc := range docs {
			if inBucket(stringify(doc.Fields[rf.Field]), b) {
				count++
			}
		}
		ranges = append(ranges, map[string]any{
			"from_str":    b.From,
			"to_str":      b.To,
			"total_count": count,
		})
	}
	return map[string]any{"_type": "range", "ranges": ranges}
}

func inBucket(vals []string, b domain.FacetRange) bool {
	for _, v := range vals {
		if (b.From == "" || compare(v, b.From) >= 0) && (b.To == "" || compare(v, b.To) < 0) {
			return true
		}
	}
	return false
}

func statsFacet(docs []engine.Document, field string) map[string]any {
	var (
		count           int64
		minV, maxV, sum float64
	)
	for _, doc := range docs {
		for _, v := range stringify(doc.Fields[field]) {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			if count == 0 || f < minV {
				minV = f
			}
			if count == 0 || f > maxV {
				maxV = f
			}
			sum += f
			count++
		}
	}

	out := map[string]any{"_type": "statistical", "count": count}
	if count == 0 {
		out["min"], out["max"], out["mean"], out["total"] = nil, nil, nil, nil
		return out
	}
	out["min"] = minV
	out["max"] = maxV
	out["mean"] = sum / float64(count)
	out["total"] = sum
	return out
}
