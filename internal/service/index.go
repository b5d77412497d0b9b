package service

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
	"github.com/utafrali/catalogsearch/pkg/tracing"
)

// SaveEntityIndexes prepares rows for storeID and writes them as documents
// of docType. Batches are not atomic: a failure may leave earlier documents
// written.
func (s *SearchService) SaveEntityIndexes(ctx context.Context, storeID int64, rows []domain.EntityRow, docType string) (err error) {
	if docType == "" {
		docType = domain.DefaultEntityType
	}
	ctx, span := tracing.Start(ctx, "index.save",
		attribute.Int64("index.store_id", storeID),
		attribute.String("index.doc_type", docType),
		attribute.Int("index.rows", len(rows)),
	)
	defer func() { tracing.End(span, err) }()

	store, err := s.stores.Store(storeID)
	if err != nil {
		return fmt.Errorf("save entity indexes: %w", err)
	}

	prepared := s.adapter.Prepare(store, rows)
	docs := make([]engine.Document, 0, len(prepared))
	for _, row := range prepared {
		if row.ID == "" {
			continue
		}
		unique := engine.UniqueID(row.ID, store.ID)
		fields := row.Data
		fields[engine.FieldID] = row.ID
		fields[engine.FieldUnique] = unique
		docs = append(docs, s.engine.CreateDoc(unique, fields, docType))
	}

	if len(docs) > 0 {
		if err := s.engine.AddDocuments(ctx, docs); err != nil {
			return apperrors.EngineUnavailable(fmt.Errorf("add documents: %w", err))
		}
	}
	if err := s.engine.RefreshIndex(ctx); err != nil {
		return apperrors.EngineUnavailable(fmt.Errorf("refresh index: %w", err))
	}
	s.invalidate(ctx)

	indexedDocuments.WithLabelValues(docType).Add(float64(len(docs)))
	s.logger.InfoContext(ctx, "entity indexes saved",
		slog.Int64("store_id", store.ID),
		slog.String("doc_type", docType),
		slog.Int("count", len(docs)),
	)
	return nil
}

// CleanIndex removes documents of docType, narrowed to storeID and id when
// they are set.
func (s *SearchService) CleanIndex(ctx context.Context, storeID int64, id string, docType string) error {
	if docType == "" {
		docType = domain.DefaultEntityType
	}
	if err := s.engine.CleanIndex(ctx, storeID, id, docType); err != nil {
		return apperrors.EngineUnavailable(fmt.Errorf("clean index: %w", err))
	}
	s.invalidate(ctx)

	s.logger.InfoContext(ctx, "index cleaned",
		slog.Int64("store_id", storeID),
		slog.String("id", id),
		slog.String("doc_type", docType),
	)
	return nil
}

// DeleteIndex drops the whole index.
func (s *SearchService) DeleteIndex(ctx context.Context) error {
	if err := s.engine.DeleteIndex(ctx); err != nil {
		return apperrors.EngineUnavailable(fmt.Errorf("delete index: %w", err))
	}
	s.invalidate(ctx)

	s.logger.InfoContext(ctx, "index deleted")
	return nil
}

// CleanCache drops every cached result.
func (s *SearchService) CleanCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		return fmt.Errorf("clean cache: %w", err)
	}
	return nil
}

func (s *SearchService) invalidate(ctx context.Context) {
	if err := s.CleanCache(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate result cache", slog.String("error", err.Error()))
	}
}
