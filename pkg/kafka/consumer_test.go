package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedReader hands out msgs in order, then blocks until ctx is done.
type scriptedReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    int
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *scriptedReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *scriptedReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type recordingDLQ struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	causes []error
}

func (d *recordingDLQ) Publish(_ context.Context, msg kafka.Message, cause error, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
	d.causes = append(d.causes, cause)
	return nil
}

func eventMessage(t *testing.T, topic string, offset int64, id string) kafka.Message {
	t.Helper()
	ev, err := NewEvent(topic, id, "product", "catalog", map[string]string{"id": id})
	require.NoError(t, err)
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafka.Message{Topic: topic, Offset: offset, Value: raw}
}

func runConsumer(t *testing.T, c *Consumer, r *scriptedReader, wantCommits int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(r.commits()) >= wantCommits }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumer_CommitsHandledMessages(t *testing.T) {
	topic := "consumer-ok-topic"
	r := &scriptedReader{msgs: []kafka.Message{
		eventMessage(t, topic, 1, "a"),
		eventMessage(t, topic, 2, "b"),
	}}
	var seen []string
	handler := func(_ context.Context, e *Event) error {
		seen = append(seen, e.AggregateID)
		return nil
	}
	c := newConsumer(r, ConsumerConfig{GroupID: "g-ok", Topics: []string{topic}}, handler, nil, testLogger())

	runConsumer(t, c, r, 2)

	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, []int64{1, 2}, r.commits())
	assert.Equal(t, 1, r.closed)
	assert.Equal(t, 2.0, outcomeCount(topic, "g-ok", OutcomeProcessed))
}

func TestConsumer_RetriesThenDeadLetters(t *testing.T) {
	topic := "consumer-retry-topic"
	r := &scriptedReader{msgs: []kafka.Message{eventMessage(t, topic, 7, "a")}}
	dlq := &recordingDLQ{}
	boom := errors.New("engine down")
	attempts := 0
	handler := func(context.Context, *Event) error {
		attempts++
		return boom
	}
	c := newConsumer(r, ConsumerConfig{
		GroupID:      "g-retry",
		MaxAttempts:  2,
		RetryBackoff: time.Millisecond,
	}, handler, dlq, testLogger())

	runConsumer(t, c, r, 1)

	assert.Equal(t, 2, attempts)
	assert.Equal(t, []int64{7}, r.commits())
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, int64(7), dlq.msgs[0].Offset)
	assert.ErrorIs(t, dlq.causes[0], boom)
	assert.Equal(t, 1.0, outcomeCount(topic, "g-retry", OutcomeFailed))
	assert.Equal(t, 1.0, outcomeCount(topic, "g-retry", OutcomeDeadLetter))
}

func TestConsumer_UndecodableMessageSkipped(t *testing.T) {
	topic := "consumer-garbage-topic"
	r := &scriptedReader{msgs: []kafka.Message{
		{Topic: topic, Offset: 3, Value: []byte("not json")},
		eventMessage(t, topic, 4, "b"),
	}}
	dlq := &recordingDLQ{}
	calls := 0
	handler := func(context.Context, *Event) error {
		calls++
		return nil
	}
	c := newConsumer(r, ConsumerConfig{GroupID: "g-garbage"}, handler, dlq, testLogger())

	runConsumer(t, c, r, 2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, []int64{3, 4}, r.commits())
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, 1.0, outcomeCount(topic, "g-garbage", OutcomeUndecoded))
}

func TestConsumer_CancelDuringBackoffLeavesMessageUncommitted(t *testing.T) {
	r := &scriptedReader{msgs: []kafka.Message{eventMessage(t, "consumer-cancel-topic", 9, "a")}}
	ctx, cancel := context.WithCancel(context.Background())
	handler := func(context.Context, *Event) error {
		cancel()
		return errors.New("fail")
	}
	c := newConsumer(r, ConsumerConfig{GroupID: "g-cancel", RetryBackoff: time.Hour}, handler, nil, testLogger())

	require.NoError(t, c.Start(ctx))
	assert.Empty(t, r.commits())
	assert.Equal(t, 1, r.closed)
}

func TestConsumer_CloseOnce(t *testing.T) {
	r := &scriptedReader{}
	c := newConsumer(r, ConsumerConfig{}, nil, nil, testLogger())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, r.closed)
}
