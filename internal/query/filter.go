package query

import (
	"strings"

	"github.com/utafrali/catalogsearch/internal/domain"
)

// CompileFilters compiles a filter set into one clause per field, in order.
// The caller joins them with JoinFilters. Fields whose value compiles to
// nothing (an empty list) are skipped.
func CompileFilters(filters domain.Conditions) []string {
	clauses := make([]string, 0, len(filters))
	for _, c := range filters {
		if clause := compileFilter(c.Field, c.Value); clause != "" {
			clauses = append(clauses, clause)
		}
	}
	return clauses
}

// JoinFilters joins compiled filter clauses into a conjunction. No clauses
// yield an empty string so the filter can be omitted entirely.
func JoinFilters(clauses []string) string {
	return strings.Join(clauses, " AND ")
}

func compileFilter(field string, value domain.Value) string {
	switch v := value.(type) {
	case domain.Range:
		return rangeCondition(field, filterBound(v.From), filterBound(v.To))
	case domain.List:
		if field == FieldPrice {
			r := listAsRange(v)
			return rangeCondition(field, filterBound(r.From), filterBound(r.To))
		}
		if len(v) == 0 {
			return ""
		}
		parts := make([]string, 0, len(v))
		for _, part := range v {
			parts = append(parts, FieldCondition(field, PrepareFilterQueryText(part)))
		}
		return disjunction(parts)
	case domain.Text:
		return FieldCondition(field, PrepareFilterQueryText(string(v)))
	default:
		return ""
	}
}

func filterBound(bound string) string {
	if bound == "" {
		return ""
	}
	return PrepareFilterQueryText(bound)
}

// listAsRange reads a price list as [from, to].
func listAsRange(l domain.List) domain.Range {
	var r domain.Range
	if len(l) > 0 {
		r.From = l[0]
	}
	if len(l) > 1 {
		r.To = l[1]
	}
	return r
}
