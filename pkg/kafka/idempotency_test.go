package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent(eventID string) *Event {
	return &Event{EventID: eventID, EventType: "ecommerce.product.updated", AggregateID: "42"}
}

func newRedisStore(t *testing.T) (*RedisIdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisIdempotencyStore(client, time.Minute), mr
}

// Both stores must satisfy the same contract.
func TestIdempotencyStores_Contract(t *testing.T) {
	stores := map[string]func(t *testing.T) IdempotencyStore{
		"memory": func(*testing.T) IdempotencyStore { return NewMemoryIdempotencyStore(time.Minute) },
		"redis": func(t *testing.T) IdempotencyStore {
			s, _ := newRedisStore(t)
			return s
		},
	}
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()

			seen, err := store.Contains(ctx, "evt-1")
			require.NoError(t, err)
			assert.False(t, seen)

			for range 3 {
				require.NoError(t, store.Add(ctx, "evt-1"))
			}
			seen, err = store.Contains(ctx, "evt-1")
			require.NoError(t, err)
			assert.True(t, seen)

			seen, err = store.Contains(ctx, "evt-2")
			require.NoError(t, err)
			assert.False(t, seen)
		})
	}
}

func TestMemoryIdempotencyStore_ExpiresLazily(t *testing.T) {
	store := NewMemoryIdempotencyStore(10 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, "evt"))
	assert.Equal(t, 1, store.Len())

	require.Eventually(t, func() bool {
		seen, _ := store.Contains(ctx, "evt")
		return !seen
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryIdempotencyStore_ConcurrentWriters(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Add(ctx, "evt-shared")
			_, _ = store.Contains(ctx, "evt-shared")
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, store.Len())
}

func TestRedisIdempotencyStore_KeyAndTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "evt-1"))
	assert.True(t, mr.Exists("kafka:processed:evt-1"))
	assert.Equal(t, time.Minute, mr.TTL("kafka:processed:evt-1"))

	mr.FastForward(2 * time.Minute)
	seen, err := store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisIdempotencyStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.SetError("LOADING redis is loading the dataset")

	_, err := store.Contains(context.Background(), "evt-1")
	assert.ErrorContains(t, err, "evt-1")
	assert.Error(t, store.Add(context.Background(), "evt-1"))
}

type brokenStore struct{}

func (brokenStore) Contains(context.Context, string) (bool, error) {
	return false, errors.New("store unavailable")
}

func (brokenStore) Add(context.Context, string) error {
	return errors.New("store unavailable")
}

type countingHandler struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (h *countingHandler) handle(_ context.Context, e *Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, e.EventID)
	return h.err
}

func TestIdempotentHandler(t *testing.T) {
	boom := errors.New("index write failed")

	tests := []struct {
		name      string
		store     IdempotencyStore
		innerErr  error
		deliver   []string
		wantCalls []string
		wantErr   error
	}{
		{
			name:      "redelivery skipped",
			store:     NewMemoryIdempotencyStore(time.Minute),
			deliver:   []string{"a", "a", "b", "a"},
			wantCalls: []string{"a", "b"},
		},
		{
			name:      "missing id always handled",
			store:     NewMemoryIdempotencyStore(time.Minute),
			deliver:   []string{"", "", ""},
			wantCalls: []string{"", "", ""},
		},
		{
			name:      "failure not recorded",
			store:     NewMemoryIdempotencyStore(time.Minute),
			innerErr:  boom,
			deliver:   []string{"a", "a"},
			wantCalls: []string{"a", "a"},
			wantErr:   boom,
		},
		{
			name:      "store outage handled anyway",
			store:     brokenStore{},
			deliver:   []string{"a", "a"},
			wantCalls: []string{"a", "a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &countingHandler{err: tt.innerErr}
			handler := IdempotentHandler(tt.store, inner.handle, testLogger())

			for _, id := range tt.deliver {
				err := handler(context.Background(), testEvent(id))
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				} else {
					assert.NoError(t, err)
				}
			}
			assert.Equal(t, tt.wantCalls, inner.calls)
		})
	}
}

func TestIdempotentHandler_CountsDuplicatesPerTopic(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	handler := IdempotentHandler(store, func(context.Context, *Event) error { return nil }, testLogger())

	topic, group := "dup-count-topic", "dup-count-group"
	ctx := WithDelivery(context.Background(), topic, group)
	before := outcomeCount(topic, group, OutcomeDuplicate)

	require.NoError(t, handler(ctx, testEvent("evt-count")))
	require.NoError(t, handler(ctx, testEvent("evt-count")))

	assert.Equal(t, before+1, outcomeCount(topic, group, OutcomeDuplicate))
}
