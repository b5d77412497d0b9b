package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	"github.com/utafrali/catalogsearch/pkg/httputil"
	"github.com/utafrali/catalogsearch/pkg/logger"
	"github.com/utafrali/catalogsearch/pkg/pagination"
)

const (
	maxSearchBody = 64 << 10
	maxIndexBody  = 8 << 20

	// categoryField is the filter a category browse narrows on.
	categoryField = "categories"
)

// SearchService is what the HTTP layer needs from the search service.
type SearchService interface {
	Search(ctx context.Context, q domain.Query, params domain.SearchParams, scope domain.Scope, docType string) (*domain.Result, error)
	GetStats(ctx context.Context, q domain.Query, params domain.SearchParams, scope domain.Scope, docType string) (map[string]map[string]any, error)
	SaveEntityIndexes(ctx context.Context, storeID int64, rows []domain.EntityRow, docType string) error
	CleanIndex(ctx context.Context, storeID int64, id string, docType string) error
	DeleteIndex(ctx context.Context) error
	CleanCache(ctx context.Context) error
	Status(ctx context.Context) (*engine.Status, error)
}

// SearchHandler handles HTTP requests for search endpoints.
type SearchHandler struct {
	service SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// SearchRequest is the JSON body of POST /api/v1/search. Paging is either
// offset/limit or page/per_page, never both.
type SearchRequest struct {
	Query           domain.Query         `json:"query"`
	Filters         domain.Conditions    `json:"filters"`
	Facets          domain.FacetSpec     `json:"facets"`
	Sort            domain.Sorts         `json:"sort"`
	RangeFilters    []domain.RangeFilter `json:"range_filters" validate:"max=50,dive"`
	Stats           []string             `json:"stats" validate:"max=50,dive,required"`
	Params          map[string]any       `json:"params"`
	Offset          *int                 `json:"offset" validate:"omitempty,gte=0"`
	Limit           *int                 `json:"limit" validate:"omitempty,gte=0,lte=1000"`
	Page            int                  `json:"page" validate:"gte=0,excluded_with=Offset"`
	PerPage         int                  `json:"per_page" validate:"gte=0,lte=100"`
	StoreID         *int64               `json:"store_id" validate:"omitempty,gte=0"`
	CustomerGroupID int64                `json:"customer_group_id" validate:"gte=0"`
	CategoryID      int64                `json:"category_id" validate:"gte=0"`
	Type            string               `json:"type" validate:"max=64"`
}

// page returns the page window when page-based paging was requested.
func (req *SearchRequest) page() (pagination.Params, bool) {
	if req.Page == 0 && req.PerPage == 0 {
		return pagination.Params{}, false
	}
	return pagination.New(req.Page, req.PerPage), true
}

func (req *SearchRequest) params() domain.SearchParams {
	p := domain.SearchParams{
		Offset:       req.Offset,
		Limit:        req.Limit,
		SortBy:       req.Sort,
		Params:       req.Params,
		StoreID:      req.StoreID,
		Filters:      req.Filters,
		Facets:       req.Facets,
		RangeFilters: req.RangeFilters,
		Stats:        req.Stats,
	}
	if pg, ok := req.page(); ok {
		p.Offset = &pg.Offset
		p.Limit = &pg.PerPage
	}
	return p
}

func (req *SearchRequest) scope() domain.Scope {
	return domain.Scope{CustomerGroupID: req.CustomerGroupID, CategoryID: req.CategoryID}
}

// SearchResponse is the data half of a search answer.
type SearchResponse struct {
	*domain.Result
	Pagination *pagination.Meta `json:"pagination,omitempty"`
}

// --- Handlers ---

// Search handles POST /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !httputil.DecodeJSON(w, r, maxSearchBody, &req) {
		return
	}
	h.search(w, r, &req)
}

// SearchSimple handles GET /api/v1/search?q=
func (h *SearchHandler) SearchSimple(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()

	storeID, ok := httputil.ParseInt64(w, "store_id", qs.Get("store_id"))
	if !ok {
		return
	}
	groupID, ok := httputil.ParseInt64(w, "customer_group_id", qs.Get("customer_group_id"))
	if !ok {
		return
	}
	categoryID, ok := httputil.ParseInt64(w, "category_id", qs.Get("category_id"))
	if !ok {
		return
	}

	pg := pagination.FromRequest(r)
	req := SearchRequest{
		Query:           domain.TextQuery(strings.TrimSpace(qs.Get("q"))),
		StoreID:         &storeID,
		CustomerGroupID: groupID,
		CategoryID:      categoryID,
		Type:            qs.Get("type"),
		Page:            pg.Page,
		PerPage:         pg.PerPage,
	}
	if categoryID > 0 {
		req.Filters = domain.Conditions{{Field: categoryField, Value: domain.Text(qs.Get("category_id"))}}
	}
	if sort := qs.Get("sort"); sort != "" {
		req.Sort = parseSort(sort)
	}
	h.search(w, r, &req)
}

func (h *SearchHandler) search(w http.ResponseWriter, r *http.Request, req *SearchRequest) {
	ctx := r.Context()
	if req.StoreID != nil {
		ctx = logger.WithStoreID(ctx, *req.StoreID)
	}

	res, err := h.service.Search(ctx, req.Query, req.params(), req.scope(), req.Type)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	resp := SearchResponse{Result: res}
	if pg, ok := req.page(); ok {
		meta := pagination.NewMeta(res.TotalCount, pg)
		resp.Pagination = &meta
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: resp})
}

// Stats handles POST /api/v1/search/stats
func (h *SearchHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !httputil.DecodeJSON(w, r, maxSearchBody, &req) {
		return
	}
	if len(req.Stats) == 0 {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "stats must name at least one field"},
		})
		return
	}

	stats, err := h.service.GetStats(r.Context(), req.Query, req.params(), req.scope(), req.Type)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"stats": stats}})
}

// parseSort reads "field[:dir],field[:dir]".
func parseSort(raw string) domain.Sorts {
	var sorts domain.Sorts
	for _, part := range strings.Split(raw, ",") {
		field, dir, _ := strings.Cut(strings.TrimSpace(part), ":")
		if field == "" {
			continue
		}
		if dir == "" {
			dir = domain.SortAsc
		}
		sorts = append(sorts, domain.Sort{Field: field, Direction: domain.NormalizeDirection(dir)})
	}
	return sorts
}
