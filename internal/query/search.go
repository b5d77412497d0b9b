package query

import (
	"strings"

	"github.com/utafrali/catalogsearch/internal/domain"
)

// Wildcard matches every value and is never escaped.
const Wildcard = "*"

// CompileSearch compiles the search input. Plain text becomes a bare
// expression matched against the engine's default fields; a structured query
// becomes a conjunction of field-qualified clauses.
func CompileSearch(q domain.Query) string {
	if !q.IsStructured() {
		return PrepareQueryText(q.Text)
	}
	clauses := make([]string, 0, len(q.Fields))
	for _, c := range q.Fields {
		if clause := compileSearchField(c.Field, c.Value); clause != "" {
			clauses = append(clauses, clause)
		}
	}
	return strings.Join(clauses, " AND ")
}

func compileSearchField(field string, value domain.Value) string {
	switch v := value.(type) {
	case domain.Range:
		return rangeCondition(field, searchBound(v.From), searchBound(v.To))
	case domain.List:
		if field == FieldPrice {
			r := listAsRange(v)
			return rangeCondition(field, searchBound(r.From), searchBound(r.To))
		}
		if len(v) == 0 {
			return ""
		}
		parts := make([]string, 0, len(v))
		for _, part := range v {
			parts = append(parts, field+":"+PrepareFilterQueryText(part))
		}
		return disjunction(parts)
	case domain.Text:
		text := string(v)
		if text != Wildcard {
			text = PrepareQueryText(text)
		}
		return field + ":" + text
	default:
		return ""
	}
}

// searchBound prepares a range bound; blank bounds are open.
func searchBound(bound string) string {
	if strings.TrimSpace(bound) == "" {
		return ""
	}
	return PrepareQueryText(bound)
}
