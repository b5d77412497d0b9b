package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers which events were already handled. It must be
// safe for concurrent use.
type IdempotencyStore interface {
	Contains(ctx context.Context, eventID string) (bool, error)
	Add(ctx context.Context, eventID string) error
}

// MemoryIdempotencyStore is a per-process IdempotencyStore. An id is
// forgotten ttl after it was added; expired ids are purged when looked up.
type MemoryIdempotencyStore struct {
	ttl time.Duration

	mu        sync.Mutex
	deadlines map[string]time.Time
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{ttl: ttl, deadlines: make(map[string]time.Time)}
}

func (s *MemoryIdempotencyStore) Contains(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := s.deadlines[eventID]
	if ok && time.Now().After(deadline) {
		delete(s.deadlines, eventID)
		ok = false
	}
	return ok, nil
}

func (s *MemoryIdempotencyStore) Add(_ context.Context, eventID string) error {
	s.mu.Lock()
	s.deadlines[eventID] = time.Now().Add(s.ttl)
	s.mu.Unlock()
	return nil
}

// Len counts remembered ids, including expired ones not yet purged.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deadlines)
}

// RedisIdempotencyStore shares handled ids between consumer replicas.
type RedisIdempotencyStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client redis.Cmdable, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func processedKey(eventID string) string { return "kafka:processed:" + eventID }

func (s *RedisIdempotencyStore) Contains(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, processedKey(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("check processed event %s: %w", eventID, err)
	}
	return n == 1, nil
}

func (s *RedisIdempotencyStore) Add(ctx context.Context, eventID string) error {
	if err := s.client.Set(ctx, processedKey(eventID), 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("mark processed event %s: %w", eventID, err)
	}
	return nil
}

// IdempotentHandler drops events the store has already seen. Events without
// an id and lookups that fail go straight to inner; an id is remembered only
// once inner succeeds.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, ev *Event) error {
		if ev.EventID == "" {
			return inner(ctx, ev)
		}

		seen, err := store.Contains(ctx, ev.EventID)
		switch {
		case err != nil:
			logger.WarnContext(ctx, "idempotency lookup failed",
				slog.String("event_id", ev.EventID),
				slog.String("error", err.Error()),
			)
		case seen:
			topic, group := deliveryFromContext(ctx)
			countOutcome(topic, group, OutcomeDuplicate)
			logger.DebugContext(ctx, "duplicate event dropped",
				slog.String("event_id", ev.EventID),
				slog.String("event_type", ev.EventType),
				slog.String("aggregate_id", ev.AggregateID),
			)
			return nil
		}

		if err := inner(ctx, ev); err != nil {
			return err
		}
		if err := store.Add(ctx, ev.EventID); err != nil {
			logger.WarnContext(ctx, "could not remember processed event",
				slog.String("event_id", ev.EventID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
}

type deliveryKey struct{}

type delivery struct{ topic, group string }

// WithDelivery tags ctx with the topic and consumer group a message came from.
func WithDelivery(ctx context.Context, topic, group string) context.Context {
	return context.WithValue(ctx, deliveryKey{}, delivery{topic: topic, group: group})
}

func deliveryFromContext(ctx context.Context) (topic, group string) {
	d, _ := ctx.Value(deliveryKey{}).(delivery)
	return d.topic, d.group
}
