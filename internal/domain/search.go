package domain

// Default search parameters.
const (
	DefaultRowsLimit  = 100
	DefaultEntityType = "product"
)

// Reserved filter fields injected by the search service.
const (
	FieldStoreID    = "store_id"
	FieldInStock    = "in_stock"
	FieldVisibility = "visibility"
)

// SearchParams are the caller-supplied search parameters. Nil fields keep the
// defaults returned by DefaultSearchParams.
type SearchParams struct {
	Offset       *int
	Limit        *int
	SortBy       Sorts
	Params       map[string]any
	StoreID      *int64
	Filters      Conditions
	Facets       FacetSpec
	RangeFilters []RangeFilter
	Stats        []string
}

// DefaultSearchParams returns the defaults every search starts from.
func DefaultSearchParams() SearchParams {
	offset := 0
	limit := DefaultRowsLimit
	var storeID int64
	return SearchParams{
		Offset:  &offset,
		Limit:   &limit,
		SortBy:  Sorts{{Field: SortRelevance, Direction: SortDesc}},
		Params:  map[string]any{},
		StoreID: &storeID,
		Filters: Conditions{},
	}
}

// Merge overlays p on top of defaults: fields set in p win, the rest keep
// the default value.
func (p SearchParams) Merge(defaults SearchParams) SearchParams {
	out := defaults
	if p.Offset != nil {
		out.Offset = p.Offset
	}
	if p.Limit != nil {
		out.Limit = p.Limit
	}
	if p.SortBy != nil {
		out.SortBy = p.SortBy
	}
	if p.Params != nil {
		out.Params = p.Params
	}
	if p.StoreID != nil {
		out.StoreID = p.StoreID
	}
	if p.Filters != nil {
		out.Filters = p.Filters
	}
	if p.Facets != nil {
		out.Facets = p.Facets
	}
	if p.RangeFilters != nil {
		out.RangeFilters = p.RangeFilters
	}
	if p.Stats != nil {
		out.Stats = p.Stats
	}
	return out
}

// Scope carries the session context a search runs in.
type Scope struct {
	CustomerGroupID int64
	// CategoryID is the category being browsed; zero when none.
	CategoryID int64
}
