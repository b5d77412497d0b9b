package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/utafrali/catalogsearch/internal/domain"
)

// ErrReservedFacet is returned for a facet named like a section of the
// normalized facets object.
var ErrReservedFacet = errors.New("reserved facet name")

// CompileFacets compiles a facet specification into the engine's facet
// request sections. A facet may not be called "stats"; that key holds the
// statistical records of a result.
func CompileFacets(spec domain.FacetSpec) (domain.FacetRequest, error) {
	var req domain.FacetRequest
	for _, f := range spec {
		if f.Field == domain.FacetStats {
			return domain.FacetRequest{}, fmt.Errorf("%w: %q", ErrReservedFacet, f.Field)
		}
		if len(f.Conditions) == 0 {
			req.Fields = append(req.Fields, f.Field)
			continue
		}
		var buckets []domain.FacetRange
		for _, cond := range f.Conditions {
			switch v := cond.(type) {
			case domain.Range:
				buckets = append(buckets, domain.FacetRange{
					From: facetBound(v.From),
					To:   facetBound(v.To),
				})
			case domain.Text:
				req.Queries = append(req.Queries, FieldCondition(f.Field, PrepareQueryText(string(v))))
			case domain.List:
				for _, part := range v {
					req.Queries = append(req.Queries, FieldCondition(f.Field, PrepareQueryText(part)))
				}
			}
		}
		if len(buckets) > 0 {
			req.Ranges = append(req.Ranges, domain.RangeFacet{Field: f.Field, Buckets: buckets})
		}
	}
	return req, nil
}

// facetBound prepares a bucket bound; blank bounds are dropped.
func facetBound(bound string) string {
	if strings.TrimSpace(bound) == "" {
		return ""
	}
	return PrepareQueryText(bound)
}
