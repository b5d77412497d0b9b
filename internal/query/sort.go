package query

import (
	"strconv"

	"github.com/utafrali/catalogsearch/internal/domain"
)

// Physical sort fields.
const (
	FieldScore          = "_score"
	positionFieldPrefix = "position_category_"
	priceFieldPrefix    = "price_"
)

// FieldNamer resolves an attribute code to its sortable index field.
type FieldNamer interface {
	SortableFieldName(code, locale string) string
}

// SortContext is the request context sort fields depend on.
type SortContext struct {
	// CategoryID is the category being browsed; zero when none.
	CategoryID      int64
	CustomerGroupID int64
	WebsiteID       int64
	Locale          string
}

// ResolveSort maps logical sort directives to physical index fields.
func ResolveSort(sorts domain.Sorts, sc SortContext, namer FieldNamer) []domain.SortField {
	fields := make([]domain.SortField, 0, len(sorts))
	for _, s := range sorts {
		fields = append(fields, resolveSortField(s, sc, namer))
	}
	return fields
}

func resolveSortField(s domain.Sort, sc SortContext, namer FieldNamer) domain.SortField {
	field := s.Field
	dir := domain.NormalizeDirection(s.Direction)

	// Position only makes sense inside a category.
	if field == domain.SortPosition && sc.CategoryID == 0 {
		field = domain.SortRelevance
	}

	switch field {
	case domain.SortRelevance:
		// Least relevant first is never wanted.
		return domain.SortField{Field: FieldScore, Direction: domain.SortDesc}
	case domain.SortPosition:
		field = positionFieldPrefix + strconv.FormatInt(sc.CategoryID, 10)
	case domain.SortPrice:
		field = priceFieldPrefix + strconv.FormatInt(sc.CustomerGroupID, 10) + "_" + strconv.FormatInt(sc.WebsiteID, 10)
	default:
		if namer != nil {
			field = namer.SortableFieldName(field, sc.Locale)
		}
	}
	return domain.SortField{Field: field, Direction: dir}
}
