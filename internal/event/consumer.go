package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/catalogsearch/internal/domain"
	pkgkafka "github.com/utafrali/catalogsearch/pkg/kafka"
)

// Kafka topic constants for the catalog events that drive indexing.
const (
	TopicProductCreated = pkgkafka.TopicPrefix + ".product.created"
	TopicProductUpdated = pkgkafka.TopicPrefix + ".product.updated"
	TopicProductDeleted = pkgkafka.TopicPrefix + ".product.deleted"
	TopicCatalogChanged = pkgkafka.TopicPrefix + ".catalog.changed"
)

// Topics lists every topic the consumer handles.
var Topics = []string{TopicProductCreated, TopicProductUpdated, TopicProductDeleted, TopicCatalogChanged}

// EntityEventData is the payload of product created and updated events.
// Attributes holds the raw attribute row keyed by attribute code.
type EntityEventData struct {
	ID         string         `json:"id"`
	StoreID    int64          `json:"store_id"`
	Type       string         `json:"type,omitempty"`
	Attributes map[string]any `json:"attributes"`
}

// EntityDeletedData is the payload of a product.deleted event. A zero
// StoreID removes the entity from every store.
type EntityDeletedData struct {
	ID      string `json:"id"`
	StoreID int64  `json:"store_id"`
	Type    string `json:"type,omitempty"`
}

// Indexer is the part of the search service the consumer writes through.
type Indexer interface {
	SaveEntityIndexes(ctx context.Context, storeID int64, rows []domain.EntityRow, docType string) error
	CleanIndex(ctx context.Context, storeID int64, id string, docType string) error
	CleanCache(ctx context.Context) error
}

// Consumer keeps the index in step with catalog events.
type Consumer struct {
	indexer Indexer
	logger  *slog.Logger
}

// NewConsumer creates a new event consumer.
func NewConsumer(indexer Indexer, logger *slog.Logger) *Consumer {
	return &Consumer{
		indexer: indexer,
		logger:  logger,
	}
}

// Handle processes a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicProductCreated, TopicProductUpdated:
		return c.handleEntitySaved(ctx, event)
	case TopicProductDeleted:
		return c.handleEntityDeleted(ctx, event)
	case TopicCatalogChanged:
		return c.handleCatalogChanged(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (c *Consumer) handleEntitySaved(ctx context.Context, event *pkgkafka.Event) error {
	var data EntityEventData
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}
	if data.ID == "" {
		c.logger.WarnContext(ctx, "entity event without id skipped",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	row := domain.EntityRow{ID: data.ID, Data: domain.Row(data.Attributes)}
	if row.Data == nil {
		row.Data = domain.Row{}
	}
	if err := c.indexer.SaveEntityIndexes(ctx, data.StoreID, []domain.EntityRow{row}, data.Type); err != nil {
		return fmt.Errorf("index entity from %s: %w", event.EventType, err)
	}

	c.logger.InfoContext(ctx, "indexed entity from event",
		slog.String("event_type", event.EventType),
		slog.String("entity_id", data.ID),
		slog.Int64("store_id", data.StoreID),
	)
	return nil
}

func (c *Consumer) handleEntityDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data EntityDeletedData
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}
	if data.ID == "" {
		c.logger.WarnContext(ctx, "delete event without id skipped",
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	if err := c.indexer.CleanIndex(ctx, data.StoreID, data.ID, data.Type); err != nil {
		return fmt.Errorf("remove entity from %s: %w", event.EventType, err)
	}

	c.logger.InfoContext(ctx, "removed entity from event",
		slog.String("entity_id", data.ID),
		slog.Int64("store_id", data.StoreID),
	)
	return nil
}

// handleCatalogChanged drops cached results after attribute or store
// configuration changes upstream.
func (c *Consumer) handleCatalogChanged(ctx context.Context, event *pkgkafka.Event) error {
	if err := c.indexer.CleanCache(ctx); err != nil {
		return fmt.Errorf("clean cache from %s: %w", event.EventType, err)
	}
	c.logger.InfoContext(ctx, "result cache cleared from catalog event",
		slog.String("event_id", event.EventID),
	)
	return nil
}
