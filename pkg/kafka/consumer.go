package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 100 * time.Millisecond
)

// Handler is a function that processes a Kafka event.
type Handler func(ctx context.Context, event *Event) error

// DeadLetterPublisher receives messages whose handler failed every retry.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, originalMsg kafka.Message, lastErr error, consumerGroup string) error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topics   []string
	MinBytes int
	MaxBytes int

	// MaxAttempts bounds handler invocations per message. Zero means 3.
	MaxAttempts int
	// RetryBackoff is multiplied by the attempt number between retries.
	// Zero means 100ms.
	RetryBackoff time.Duration
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a consumer group's topics and settles every message: it is
// committed once the handler succeeds, is dead-lettered or cannot be decoded.
type Consumer struct {
	reader      messageReader
	topics      []string
	group       string
	maxAttempts int
	backoff     time.Duration
	handler     Handler
	dlq         DeadLetterPublisher
	logger      *slog.Logger
	closeOnce   sync.Once
}

// NewConsumer creates a new Kafka consumer for a group subscribed to topics.
// A nil dlq drops poison messages after logging them.
func NewConsumer(cfg ConsumerConfig, handler Handler, dlq DeadLetterPublisher, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
	})
	return newConsumer(r, cfg, handler, dlq, logger)
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, dlq DeadLetterPublisher, logger *slog.Logger) *Consumer {
	c := &Consumer{
		reader:      r,
		topics:      cfg.Topics,
		group:       cfg.GroupID,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.RetryBackoff,
		handler:     handler,
		dlq:         dlq,
		logger:      logger,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.backoff <= 0 {
		c.backoff = defaultRetryBackoff
	}
	return c
}

// Start consumes until ctx is canceled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started",
		slog.Any("topics", c.topics),
		slog.String("group", c.group),
	)
	defer func() {
		c.logger.Info("consumer stopping", slog.String("group", c.group))
		_ = c.Close()
	}()

	for ctx.Err() == nil {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			continue
		}
		countFetched(msg.Topic, c.group)

		if !c.settle(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// settle reports whether msg may be committed. It is false only when ctx was
// canceled during a retry wait.
func (c *Consumer) settle(ctx context.Context, msg kafka.Message) bool {
	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.Error("dropping undecodable message",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		countOutcome(msg.Topic, c.group, OutcomeUndecoded)
		c.deadLetter(ctx, msg, err)
		return true
	}

	msgCtx := WithDelivery(extractTraceContext(ctx, &msg), msg.Topic, c.group)
	defer observeHandle(msg.Topic, c.group, time.Now())

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 && !c.wait(ctx, attempt-1) {
			return false
		}
		if lastErr = c.handler(msgCtx, event); lastErr == nil {
			countOutcome(msg.Topic, c.group, OutcomeProcessed)
			return true
		}
		c.logger.WarnContext(msgCtx, "event handler failed",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.maxAttempts),
			slog.String("error", lastErr.Error()),
		)
	}

	c.logger.ErrorContext(msgCtx, "giving up on event",
		slog.String("event_type", event.EventType),
		slog.String("aggregate_id", event.AggregateID),
		slog.String("topic", msg.Topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
		slog.String("error", lastErr.Error()),
	)
	countOutcome(msg.Topic, c.group, OutcomeFailed)
	c.deadLetter(ctx, msg, lastErr)
	return true
}

func (c *Consumer) wait(ctx context.Context, n int) bool {
	t := time.NewTimer(time.Duration(n) * c.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, c.group); err == nil {
		countOutcome(msg.Topic, c.group, OutcomeDeadLetter)
	}
}

// Close closes the reader once; later calls return nil.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}

// PingBrokers succeeds when at least one broker answers a metadata request.
func PingBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}

	var errs []error
	for _, addr := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("kafka ping: all brokers unreachable: %w", errors.Join(errs...))
}
