package query

import (
	"regexp"
	"strings"
)

// Fields with dedicated compilation rules.
const (
	FieldCategories       = "categories"
	FieldShowInCategories = "show_in_categories"
	FieldPrice            = "price"
)

// categoryCondition matches the clause FieldCondition emits for categories.
// The facet normalizer relies on this exact shape to recover category ids
// from query facet names.
var categoryCondition = regexp.MustCompile(`\(categories:(\d+) OR show_in_categories:\d+\)`)

// FieldCondition builds a single field clause from an already prepared value.
// Category membership is checked against both the direct and the inherited
// category fields.
func FieldCondition(field, value string) string {
	if field == FieldCategories {
		return "(" + FieldCategories + ":" + value + " OR " + FieldShowInCategories + ":" + value + ")"
	}
	return field + ":" + value
}

// ParseCategoryCondition extracts the category id from a clause built by
// FieldCondition for the categories field.
func ParseCategoryCondition(clause string) (string, bool) {
	m := categoryCondition.FindStringSubmatch(clause)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// rangeCondition renders field:[from TO to]; empty bounds stay empty.
func rangeCondition(field, from, to string) string {
	return field + ":[" + from + " TO " + to + "]"
}

// disjunction wraps clauses as (a OR b OR c).
func disjunction(clauses []string) string {
	return "(" + strings.Join(clauses, " OR ") + ")"
}
