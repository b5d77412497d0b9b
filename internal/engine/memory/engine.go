package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
)

// Engine is an in-memory implementation of engine.Client. It understands the
// query-string subset the compiler produces. Added documents become visible
// after RefreshIndex, like a real index.
// Thread-safe via sync.RWMutex.
type Engine struct {
	mu      sync.RWMutex
	order   []string
	docs    map[string]engine.Document
	pending []engine.Document
	last    *SearchCall
	failure error
}

// SearchCall records the arguments of the latest Search.
type SearchCall struct {
	Conditions string
	Request    engine.Request
	DocType    string
}

var _ engine.Client = (*Engine)(nil)

// New creates a new in-memory search engine.
func New() *Engine {
	return &Engine{
		docs: make(map[string]engine.Document),
	}
}

// FailWith makes every later call fail with err; nil restores the engine.
func (e *Engine) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failure = err
}

// LastSearch returns the latest Search call, if any.
func (e *Engine) LastSearch() (SearchCall, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return SearchCall{}, false
	}
	return *e.last, true
}

// Len returns the number of searchable documents.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs)
}

// Search evaluates conditions and filters against the searchable documents.
// Queries outside the supported grammar produce an error-flagged response.
func (e *Engine) Search(_ context.Context, conditions string, req engine.Request, docType string) (*engine.Response, error) {
	e.mu.Lock()
	e.last = &SearchCall{Conditions: conditions, Request: req, DocType: docType}
	failure := e.failure
	e.mu.Unlock()
	if failure != nil {
		return nil, failure
	}

	match, err := parseQuery(conditions)
	if err != nil {
		return &engine.Response{Error: err.Error()}, nil
	}
	filter, err := parseQuery(req.Filters)
	if err != nil {
		return &engine.Response{Error: err.Error()}, nil
	}

	e.mu.RLock()
	matched := make([]engine.Document, 0)
	for _, id := range e.order {
		doc := e.docs[id]
		if doc.Type != docType {
			continue
		}
		if !filter(doc.Fields) || !match(doc.Fields) || !inRanges(doc.Fields, req.RangeFilters) {
			continue
		}
		matched = append(matched, doc)
	}
	e.mu.RUnlock()

	sortDocuments(matched, req.Sort)

	total := len(matched)
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if req.Limit >= 0 && offset+req.Limit < total {
		end = offset + req.Limit
	}

	resp := &engine.Response{
		TotalHits: int64(total),
		Hits:      make([]engine.Hit, 0, end-offset),
	}
	for _, doc := range matched[offset:end] {
		resp.Hits = append(resp.Hits, engine.Hit{ID: doc.ID, Score: 1, Source: copyFields(doc.Fields)})
	}

	facets, err := computeFacets(matched, req.Facets, req.Stats)
	if err != nil {
		return &engine.Response{Error: err.Error()}, nil
	}
	resp.Facets = facets
	return resp, nil
}

// CreateDoc wraps fields into a document of docType keyed by id.
func (e *Engine) CreateDoc(id string, fields map[string]any, docType string) engine.Document {
	src := copyFields(fields)
	src[engine.FieldDocType] = docType
	return engine.Document{ID: id, Type: docType, Fields: src}
}

// AddDocuments queues documents until the next RefreshIndex.
func (e *Engine) AddDocuments(_ context.Context, docs []engine.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failure != nil {
		return e.failure
	}
	e.pending = append(e.pending, docs...)
	return nil
}

// RefreshIndex publishes queued documents, replacing any with the same id.
func (e *Engine) RefreshIndex(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failure != nil {
		return e.failure
	}
	for _, doc := range e.pending {
		if _, ok := e.docs[doc.ID]; !ok {
			e.order = append(e.order, doc.ID)
		}
		e.docs[doc.ID] = doc
	}
	e.pending = nil
	return nil
}

// CleanIndex removes documents of docType, narrowed by storeID and id when
// they are set.
func (e *Engine) CleanIndex(_ context.Context, storeID int64, id string, docType string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failure != nil {
		return e.failure
	}

	store := strconv.FormatInt(storeID, 10)
	kept := e.order[:0]
	for _, key := range e.order {
		doc := e.docs[key]
		drop := doc.Type == docType &&
			(storeID <= 0 || hasValue(doc.Fields, engine.FieldStoreID, store)) &&
			(id == "" || hasValue(doc.Fields, engine.FieldID, id))
		if drop {
			delete(e.docs, key)
			continue
		}
		kept = append(kept, key)
	}
	e.order = kept
	return nil
}

// DeleteIndex drops every document.
func (e *Engine) DeleteIndex(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failure != nil {
		return e.failure
	}
	e.order = nil
	e.docs = make(map[string]engine.Document)
	e.pending = nil
	return nil
}

// GetStatus always reports a healthy single node unless a failure is set.
func (e *Engine) GetStatus(_ context.Context) (*engine.Status, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.failure != nil {
		return nil, e.failure
	}
	return &engine.Status{
		Name:      "memory",
		Status:    "green",
		Nodes:     1,
		Documents: int64(len(e.docs)),
	}, nil
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func hasValue(fields map[string]any, field, want string) bool {
	for _, v := range stringify(fields[field]) {
		if v == want {
			return true
		}
	}
	return false
}

func inRanges(fields map[string]any, ranges []domain.RangeFilter) bool {
	for _, rf := range ranges {
		if rf.From == "" && rf.To == "" {
			continue
		}
		if !rangeMatcher(rf.Field, rf.From, rf.To)(fields) {
			return false
		}
	}
	return true
}

// sortDocuments orders documents by the sort fields. Relevance is uniform, so
// _score keeps insertion order; documents missing a field sort last.
func sortDocuments(docs []engine.Document, fields []domain.SortField) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			if f.Field == "_score" {
				continue
			}
			a, okA := firstValue(docs[i].Fields, f.Field)
			b, okB := firstValue(docs[j].Fields, f.Field)
			switch {
			case !okA && !okB:
				continue
			case !okA:
				return false
			case !okB:
				return true
			}
			c := compare(a, b)
			if c == 0 {
				continue
			}
			if f.Direction == domain.SortDesc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func firstValue(fields map[string]any, field string) (string, bool) {
	vs := stringify(fields[field])
	if len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}
