package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/utafrali/catalogsearch/internal/cache"
	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	"github.com/utafrali/catalogsearch/internal/indexer"
	"github.com/utafrali/catalogsearch/internal/query"
	"github.com/utafrali/catalogsearch/internal/result"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
	"github.com/utafrali/catalogsearch/pkg/tracing"
)

// Catalog provides attribute metadata and catalog-wide settings.
type Catalog interface {
	indexer.AttributeSource
	SortableFieldNameByCode(code, locale string) string
	ShowOutOfStock() bool
}

// StoreResolver resolves store ids and their locale. Id 0 is the default
// store.
type StoreResolver interface {
	Store(id int64) (domain.Store, error)
	LocaleCode(store domain.Store) string
}

// Visibility lists the visibility ids a listing may show.
type Visibility interface {
	VisibleInSearchIDs() []string
	VisibleInCatalogIDs() []string
}

// ResultCache stores normalized results between index writes.
type ResultCache interface {
	GetOrCompute(ctx context.Context, key string, compute func(context.Context) (*domain.Result, error)) (*domain.Result, bool, error)
	Invalidate(ctx context.Context) error
}

var errNoResponse = errors.New("engine returned no response")

// SearchService compiles search input, dispatches it to the engine and
// normalizes what comes back.
type SearchService struct {
	engine     engine.Client
	catalog    Catalog
	stores     StoreResolver
	visibility Visibility
	adapter    *indexer.Adapter
	cache      ResultCache
	logger     *slog.Logger

	probe     singleflight.Group
	probed    atomic.Bool
	available atomic.Bool
}

// Option configures a SearchService.
type Option func(*SearchService)

// WithCache caches normalized results in c.
func WithCache(c ResultCache) Option {
	return func(s *SearchService) {
		s.cache = c
	}
}

// NewSearchService creates a new search service.
func NewSearchService(
	eng engine.Client,
	catalog Catalog,
	stores StoreResolver,
	visibility Visibility,
	logger *slog.Logger,
	opts ...Option,
) *SearchService {
	s := &SearchService{
		engine:     eng,
		catalog:    catalog,
		stores:     stores,
		visibility: visibility,
		adapter:    indexer.NewAdapter(catalog),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// compiled is one search ready for dispatch.
type compiled struct {
	Conditions string         `json:"conditions"`
	Request    engine.Request `json:"request"`
	DocType    string         `json:"doc_type"`
	WithFacets bool           `json:"with_facets"`
}

// Search runs q with params against entities of docType. Engine failures
// degrade to an empty result; only an unknown store is reported as an error.
func (s *SearchService) Search(ctx context.Context, q domain.Query, params domain.SearchParams, scope domain.Scope, docType string) (*domain.Result, error) {
	c, err := s.compile(q, params, scope, docType)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	start := time.Now()
	res, hit, err := s.run(ctx, c)
	observeSearch(c.DocType, outcome(hit, err), time.Since(start))
	if err != nil {
		s.logger.WarnContext(ctx, "search failed, returning empty result",
			slog.String("doc_type", c.DocType),
			slog.String("conditions", c.Conditions),
			slog.String("error", err.Error()),
		)
		return domain.EmptyResult(), nil
	}

	s.logger.DebugContext(ctx, "search executed",
		slog.String("conditions", c.Conditions),
		slog.String("filters", c.Request.Filters),
		slog.Int64("total", res.TotalCount),
		slog.Bool("cached", hit),
	)
	return res, nil
}

// GetStats runs the search and returns only its statistical facets.
func (s *SearchService) GetStats(ctx context.Context, q domain.Query, params domain.SearchParams, scope domain.Scope, docType string) (map[string]map[string]any, error) {
	res, err := s.Search(ctx, q, params, scope, docType)
	if err != nil {
		return nil, err
	}
	if res.Facets == nil || res.Facets.Stats == nil {
		return map[string]map[string]any{}, nil
	}
	return res.Facets.Stats, nil
}

func (s *SearchService) compile(q domain.Query, params domain.SearchParams, scope domain.Scope, docType string) (compiled, error) {
	if docType == "" {
		docType = domain.DefaultEntityType
	}
	p := params.Merge(domain.DefaultSearchParams())

	storeID := *p.StoreID
	store, err := s.stores.Store(storeID)
	if err != nil {
		return compiled{}, err
	}

	sc := query.SortContext{
		CategoryID:      scope.CategoryID,
		CustomerGroupID: scope.CustomerGroupID,
		WebsiteID:       store.WebsiteID,
		Locale:          s.stores.LocaleCode(store),
	}

	req := engine.Request{
		Offset:       *p.Offset,
		Limit:        *p.Limit,
		Sort:         query.ResolveSort(p.SortBy, sc, sortNamer{catalog: s.catalog}),
		RangeFilters: p.RangeFilters,
		Stats:        p.Stats,
		Params:       p.Params,
	}
	withFacets := len(p.Facets) > 0 || len(p.Stats) > 0
	if len(p.Facets) > 0 {
		facets, err := query.CompileFacets(p.Facets)
		if err != nil {
			return compiled{}, apperrors.InvalidInput(err.Error())
		}
		req.Facets = &facets
	}

	filters := s.defaultFilters(p.Filters, storeID, q)
	req.Filters = query.JoinFilters(query.CompileFilters(filters))

	return compiled{
		Conditions: query.CompileSearch(q),
		Request:    req,
		DocType:    docType,
		WithFacets: withFacets,
	}, nil
}

// defaultFilters adds store scoping, stock and visibility to the caller's
// filters.
func (s *SearchService) defaultFilters(filters domain.Conditions, storeID int64, q domain.Query) domain.Conditions {
	if storeID > 0 {
		filters = filters.With(domain.FieldStoreID, domain.Text(strconv.FormatInt(storeID, 10)))
	}
	if !s.catalog.ShowOutOfStock() {
		filters = filters.With(domain.FieldInStock, domain.Text("1"))
	}
	visible := s.visibility.VisibleInSearchIDs()
	if q.IsEmpty() {
		visible = s.visibility.VisibleInCatalogIDs()
	}
	return filters.With(domain.FieldVisibility, domain.List(visible))
}

func (s *SearchService) run(ctx context.Context, c compiled) (*domain.Result, bool, error) {
	if s.cache == nil {
		res, err := s.execute(ctx, c)
		return res, false, err
	}
	key, err := cache.Key(c)
	if err != nil {
		res, err := s.execute(ctx, c)
		return res, false, err
	}
	return s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*domain.Result, error) {
		return s.execute(ctx, c)
	})
}

func (s *SearchService) execute(ctx context.Context, c compiled) (_ *domain.Result, err error) {
	ctx, span := tracing.Start(ctx, "engine.search",
		attribute.String("search.doc_type", c.DocType),
		attribute.Int("search.offset", c.Request.Offset),
		attribute.Int("search.limit", c.Request.Limit),
	)
	defer func() { tracing.End(span, err) }()

	resp, err := s.engine.Search(ctx, c.Conditions, c.Request, c.DocType)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errNoResponse
	}
	if resp.HasError() {
		s.logger.WarnContext(ctx, "engine flagged search response",
			slog.String("conditions", c.Conditions),
			slog.String("error", resp.Error),
		)
	}
	return result.Normalize(resp, c.WithFacets), nil
}

// Status reports backend health.
func (s *SearchService) Status(ctx context.Context) (*engine.Status, error) {
	status, err := s.engine.GetStatus(ctx)
	if err != nil {
		return nil, apperrors.EngineUnavailable(err)
	}
	return status, nil
}

// Test reports whether the engine answered its first status probe. The
// outcome is kept for the lifetime of the service and errors never escape.
func (s *SearchService) Test(ctx context.Context) bool {
	if s.probed.Load() {
		return s.available.Load()
	}
	v, _, _ := s.probe.Do("status", func() (any, error) {
		if s.probed.Load() {
			return s.available.Load(), nil
		}
		_, err := s.engine.GetStatus(ctx)
		ok := err == nil
		if err != nil {
			s.logger.DebugContext(ctx, "search engine unavailable", slog.String("error", err.Error()))
		}
		s.available.Store(ok)
		s.probed.Store(true)
		return ok, nil
	})
	return v.(bool)
}

// sortNamer resolves sortable field names by attribute code.
type sortNamer struct {
	catalog Catalog
}

func (n sortNamer) SortableFieldName(code, locale string) string {
	return n.catalog.SortableFieldNameByCode(code, locale)
}
