package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/catalogsearch/internal/engine"
	"github.com/utafrali/catalogsearch/pkg/tracing"
)

// Engine is an Elasticsearch-backed implementation of engine.Client.
type Engine struct {
	client    *elasticsearch.Client
	indexName string
	logger    *slog.Logger
	tracer    trace.Tracer
}

var _ engine.Client = (*Engine)(nil)

// esSearchResponse is the structure used to decode Elasticsearch search responses.
type esSearchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string         `json:"_id"`
			Score  *float64       `json:"_score"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

type esHealthResponse struct {
	ClusterName   string `json:"cluster_name"`
	Status        string `json:"status"`
	NumberOfNodes int    `json:"number_of_nodes"`
}

type esCountResponse struct {
	Count int64 `json:"count"`
}

// Config configures the Elasticsearch engine.
type Config struct {
	Addresses []string
	IndexName string
	// Transport carries every request; nil uses the client default.
	Transport http.RoundTripper
}

// New creates a new Elasticsearch engine. It ensures the index exists,
// creating it if necessary. If IndexName is empty, DefaultIndexName is used.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.IndexName == "" {
		cfg.IndexName = DefaultIndexName
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	e := &Engine{
		client:    client,
		indexName: cfg.IndexName,
		logger:    logger,
		tracer:    tracing.Tracer("catalogsearch/elasticsearch"),
	}

	if err := e.ensureIndex(); err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to ensure index: %w", err)
	}

	return e, nil
}

// IndexName returns the index documents are written to.
func (e *Engine) IndexName() string {
	return e.indexName
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// ensureIndex checks whether the index exists and creates it if not.
func (e *Engine) ensureIndex() error {
	res, err := e.client.Indices.Exists([]string{e.indexName})
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	// Status 200 means the index exists.
	if res.StatusCode == http.StatusOK {
		e.logger.Info("elasticsearch index already exists", "index", e.indexName)
		return nil
	}

	res, err = e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(strings.NewReader(buildIndexMapping())),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("create index", res)
	}

	e.logger.Info("elasticsearch index created", "index", e.indexName)
	return nil
}

// Search runs the compiled conditions against documents of docType.
// Requests Elasticsearch rejects as malformed come back as an error-flagged
// response; transport failures and server errors are returned as errors.
func (e *Engine) Search(ctx context.Context, conditions string, req engine.Request, docType string) (*engine.Response, error) {
	ctx, span := e.tracer.Start(ctx, "elasticsearch.search", trace.WithAttributes(
		attribute.String("search.doc_type", docType),
		attribute.Int("search.limit", req.Limit),
	))
	defer span.End()

	body, plan := buildSearchBody(conditions, req, docType)

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		err := responseError("elasticsearch search", res)
		span.RecordError(err)
		span.SetStatus(codes.Error, "search rejected")
		if res.StatusCode >= http.StatusInternalServerError {
			return nil, err
		}
		e.logger.WarnContext(ctx, "elasticsearch rejected search",
			slog.String("conditions", conditions),
			slog.String("error", err.Error()),
		)
		return &engine.Response{Error: err.Error()}, nil
	}

	var esResp esSearchResponse
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	out := &engine.Response{
		TotalHits: esResp.Hits.Total.Value,
		Hits:      make([]engine.Hit, 0, len(esResp.Hits.Hits)),
	}
	for _, h := range esResp.Hits.Hits {
		hit := engine.Hit{ID: h.ID, Source: h.Source}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		out.Hits = append(out.Hits, hit)
	}
	facets, err := translateAggregations(plan, esResp.Aggregations)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	out.Facets = facets

	span.SetAttributes(attribute.Int64("search.total_hits", out.TotalHits))
	return out, nil
}

// CreateDoc wraps fields into a document of docType keyed by id.
func (e *Engine) CreateDoc(id string, fields map[string]any, docType string) engine.Document {
	src := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		src[k] = v
	}
	src[engine.FieldDocType] = docType
	return engine.Document{ID: id, Type: docType, Fields: src}
}

// AddDocuments adds or replaces documents using the bulk NDJSON API.
// Documents become searchable after RefreshIndex.
func (e *Engine) AddDocuments(ctx context.Context, docs []engine.Document) error {
	if len(docs) == 0 {
		return nil
	}
	ctx, span := e.tracer.Start(ctx, "elasticsearch.bulk", trace.WithAttributes(
		attribute.Int("bulk.documents", len(docs)),
	))
	defer span.End()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	for i := range docs {
		// Action line.
		action := map[string]any{
			"index": map[string]any{
				"_index": e.indexName,
				"_id":    docs[i].ID,
			},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode action: %w", err)
		}

		// Document line.
		if err := enc.Encode(docs[i].Fields); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("elasticsearch bulk index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("elasticsearch bulk index", res)
	}

	// Parse the bulk response to check for per-item errors.
	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("elasticsearch bulk index: decode response: %w", err)
	}

	if bulkResp.Errors {
		var errMsgs []string
		for _, item := range bulkResp.Items {
			if item.Index.Error.Type != "" {
				errMsgs = append(errMsgs, fmt.Sprintf("id=%s: %s: %s", item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason))
			}
		}
		return fmt.Errorf("elasticsearch bulk index: partial errors: %s", strings.Join(errMsgs, "; "))
	}

	e.logger.InfoContext(ctx, "bulk indexed documents", slog.Int("count", len(docs)))
	return nil
}

// RefreshIndex makes recent writes visible to search.
func (e *Engine) RefreshIndex(ctx context.Context) error {
	res, err := e.client.Indices.Refresh(
		e.client.Indices.Refresh.WithIndex(e.indexName),
		e.client.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch refresh: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("elasticsearch refresh", res)
	}
	return nil
}

// CleanIndex deletes documents of docType, optionally narrowed to one store
// and one entity id.
func (e *Engine) CleanIndex(ctx context.Context, storeID int64, id string, docType string) error {
	data, err := json.Marshal(buildCleanQuery(storeID, id, docType))
	if err != nil {
		return fmt.Errorf("elasticsearch clean index: marshal query: %w", err)
	}

	res, err := e.client.DeleteByQuery(
		[]string{e.indexName},
		bytes.NewReader(data),
		e.client.DeleteByQuery.WithContext(ctx),
		e.client.DeleteByQuery.WithConflicts("proceed"),
		e.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch clean index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	// Ignore 404: nothing to clean when the index is gone.
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("elasticsearch clean index", res)
	}

	e.logger.InfoContext(ctx, "elasticsearch index cleaned",
		slog.Int64("store_id", storeID),
		slog.String("id", id),
		slog.String("doc_type", docType),
	)
	return nil
}

// DeleteIndex removes the entire Elasticsearch index.
// A 404 response is treated as success (index already absent).
func (e *Engine) DeleteIndex(ctx context.Context) error {
	res, err := e.client.Indices.Delete(
		[]string{e.indexName},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("elasticsearch delete index", res)
	}

	e.logger.InfoContext(ctx, "elasticsearch index deleted", slog.String("index", e.indexName))
	return nil
}

// GetStatus reports cluster health and the number of indexed documents.
func (e *Engine) GetStatus(ctx context.Context) (*engine.Status, error) {
	res, err := e.client.Cluster.Health(e.client.Cluster.Health.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch status: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError("elasticsearch status", res)
	}

	var health esHealthResponse
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("elasticsearch status: decode response: %w", err)
	}

	status := &engine.Status{
		Name:   health.ClusterName,
		Status: health.Status,
		Nodes:  health.NumberOfNodes,
	}

	count, err := e.client.Count(
		e.client.Count.WithIndex(e.indexName),
		e.client.Count.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch status: count: %w", err)
	}
	defer func() { _ = count.Body.Close() }()

	if !count.IsError() {
		var c esCountResponse
		if err := json.NewDecoder(count.Body).Decode(&c); err == nil {
			status.Documents = c.Count
		}
	}
	return status, nil
}

// responseError turns a failed Elasticsearch response into an error.
func responseError(op string, res *esapi.Response) error {
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err == nil {
		var errResp esErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Type != "" {
			return fmt.Errorf("%s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
		}
	}
	return fmt.Errorf("%s: unexpected status %s", op, res.Status())
}
