package engine

import (
	"context"
	"strconv"

	"github.com/utafrali/catalogsearch/internal/domain"
)

// Reserved document fields every backend maintains.
const (
	FieldID      = "id"
	FieldUnique  = "unique"
	FieldDocType = "doc_type"
	FieldStoreID = domain.FieldStoreID
)

// Client defines the operations the search service needs from a document
// search backend. Implementations may use Elasticsearch, in-memory storage,
// or other backends.
type Client interface {
	// Search runs the compiled conditions with the given request against
	// documents of docType.
	Search(ctx context.Context, conditions string, req Request, docType string) (*Response, error)

	// AddDocuments adds or replaces documents in the index.
	AddDocuments(ctx context.Context, docs []Document) error

	// RefreshIndex makes previously added documents visible to search.
	RefreshIndex(ctx context.Context) error

	// CreateDoc wraps indexed fields into a document of docType.
	CreateDoc(id string, fields map[string]any, docType string) Document

	// CleanIndex removes documents of docType. A zero storeID or empty id
	// widens the scope to every store or every entity.
	CleanIndex(ctx context.Context, storeID int64, id string, docType string) error

	// DeleteIndex drops the whole index.
	DeleteIndex(ctx context.Context) error

	// GetStatus probes the backend. It fails when the backend is unreachable.
	GetStatus(ctx context.Context) (*Status, error)
}

// Document is one indexed entity for one store.
type Document struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields"`
}

// UniqueID identifies a document across stores.
func UniqueID(id string, storeID int64) string {
	return id + "|" + strconv.FormatInt(storeID, 10)
}

// Request carries everything besides the query conditions.
type Request struct {
	Offset       int
	Limit        int
	Sort         []domain.SortField
	Filters      string
	Facets       *domain.FacetRequest
	RangeFilters []domain.RangeFilter
	Stats        []string
	Params       map[string]any
}

// Hit is one matching document.
type Hit struct {
	ID     string
	Score  float64
	Source map[string]any
}

// Response is a backend search response. Facets are keyed by facet name and
// keep the bucket shape the backend reported: a "terms" list, a "ranges"
// list, a "_type": "statistical" record or a plain "count".
type Response struct {
	Error     string
	TotalHits int64
	Hits      []Hit
	Facets    map[string]map[string]any
}

// HasError reports whether the backend flagged the response as failed.
func (r *Response) HasError() bool {
	return r.Error != ""
}

// Count returns the number of hits in this page.
func (r *Response) Count() int {
	return len(r.Hits)
}

// Status summarizes backend health.
type Status struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Nodes     int    `json:"nodes"`
	Documents int64  `json:"documents"`
}
