// Package indexer enriches raw entity rows with the computed fields the
// search index needs.
package indexer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/utafrali/catalogsearch/internal/domain"
)

// FieldOptions collects resolved option labels of a row.
const FieldOptions = "_options"

// AttributeSource provides the attribute metadata rows are enriched with.
type AttributeSource interface {
	SearchableAttributes() map[string]domain.Attribute
	SortableAttributes() map[string]domain.Attribute
	SortableFieldName(attr domain.Attribute, locale string) string
}

// dateLayouts are the stored date formats, tried in order.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Adapter prepares rows for indexing in one store.
type Adapter struct {
	attrs AttributeSource
}

// NewAdapter creates an Adapter backed by the given metadata.
func NewAdapter(attrs AttributeSource) *Adapter {
	return &Adapter{attrs: attrs}
}

// Prepare returns enriched copies of rows for store. Input rows are left
// untouched.
func (a *Adapter) Prepare(store domain.Store, rows []domain.EntityRow) []domain.EntityRow {
	searchables := a.attrs.SearchableAttributes()
	sortables := a.attrs.SortableAttributes()

	out := make([]domain.EntityRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.EntityRow{
			ID:   row.ID,
			Data: a.prepareRow(store, row.Data, searchables, sortables),
		})
	}
	return out
}

func (a *Adapter) prepareRow(store domain.Store, src domain.Row, searchables, sortables map[string]domain.Attribute) domain.Row {
	data := make(domain.Row, len(src)+2)
	for k, v := range src {
		data[k] = v
	}

	// Sorted so _options accumulates in a stable order.
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := data[key]
		if list, ok := asList(value); ok {
			value = compact(list)
		}

		if attr, ok := searchables[key]; ok {
			switch {
			case attr.Kind == domain.KindDate:
				value = localizeDates(store, value)
			case attr.Kind == domain.KindOption && !isEmpty(value):
				raw := firstText(value)
				if attr.Multiselect {
					value = splitOptions(raw)
				} else if attr.UsesOptions {
					appendOption(data, attr.OptionLabel(store.ID, raw))
				}
			}
		}
		data[key] = value

		if attr, ok := sortables[key]; ok {
			if sortValue, ok := sortableValue(store, attr, value); ok {
				data[a.attrs.SortableFieldName(attr, store.Locale)] = sortValue
			}
		}
	}

	data[domain.FieldStoreID] = store.ID
	return data
}

// sortableValue computes the comparison value from the first element.
// Rows without any element get no sortable field.
func sortableValue(store domain.Store, attr domain.Attribute, value any) (any, bool) {
	v, ok := first(value)
	if !ok {
		return nil, false
	}
	switch attr.Kind {
	case domain.KindOption:
		return attr.OptionLabel(store.ID, toText(v)), true
	case domain.KindDecimal:
		f, err := strconv.ParseFloat(strings.TrimSpace(toText(v)), 64)
		if err != nil {
			return float64(0), true
		}
		return f, true
	default:
		return v, true
	}
}

func appendOption(data domain.Row, label string) {
	options, _ := data[FieldOptions].([]any)
	data[FieldOptions] = append(options, label)
}

func splitOptions(value string) []any {
	parts := strings.Split(value, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		out = append(out, p)
	}
	return out
}

func localizeDates(store domain.Store, value any) any {
	if list, ok := value.([]any); ok {
		out := make([]any, len(list))
		for i, v := range list {
			out[i] = localizeDate(store, v)
		}
		return out
	}
	if value == nil {
		return nil
	}
	return localizeDate(store, value)
}

func localizeDate(store domain.Store, v any) any {
	switch t := v.(type) {
	case time.Time:
		return store.LocalizeDate(t).Format(time.RFC3339)
	case string:
		for _, layout := range dateLayouts {
			parsed, err := time.ParseInLocation(layout, t, time.UTC)
			if err == nil {
				return store.LocalizeDate(parsed).Format(time.RFC3339)
			}
		}
	}
	return v
}

// asList normalizes the slice shapes a row value may arrive in.
func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case []int64:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

// compact drops duplicate and falsy entries, keeping first occurrences.
func compact(list []any) []any {
	seen := make(map[string]struct{}, len(list))
	out := make([]any, 0, len(list))
	for _, v := range list {
		if isFalsy(v) {
			continue
		}
		key := fmt.Sprintf("%T:%v", v, v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == "" || t == "0"
	case bool:
		return !t
	case int:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	default:
		return false
	}
}

func isEmpty(v any) bool {
	if list, ok := v.([]any); ok {
		return len(list) == 0
	}
	return isFalsy(v)
}

func first(v any) (any, bool) {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil, false
		}
		return list[0], true
	}
	if v == nil {
		return nil, false
	}
	return v, true
}

func firstText(v any) string {
	f, _ := first(v)
	return toText(f)
}

func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}
