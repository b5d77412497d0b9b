package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// DLQTopicPrefix is the default prefix for dead-letter topics.
const DLQTopicPrefix = TopicPrefix + ".dlq"

// Dead-letter headers appended to the original message headers.
const (
	HeaderDLQOriginalTopic     = "dlq.original_topic"
	HeaderDLQOriginalPartition = "dlq.original_partition"
	HeaderDLQOriginalOffset    = "dlq.original_offset"
	HeaderDLQConsumerGroup     = "dlq.consumer_group"
	HeaderDLQError             = "dlq.error"
	HeaderDLQFailedAt          = "dlq.failed_at"
)

// messageWriter is the part of *kafka.Writer the DLQ producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DLQProducer republishes messages that exhausted their retries to
// prefix.<original topic>.
type DLQProducer struct {
	writer messageWriter
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewDLQProducer creates a DLQ producer. An empty prefix means DLQTopicPrefix.
func NewDLQProducer(brokers []string, prefix string, logger *slog.Logger) *DLQProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              1,
		BatchTimeout:           100 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newDLQProducer(w, prefix, logger)
}

func newDLQProducer(w messageWriter, prefix string, logger *slog.Logger) *DLQProducer {
	if prefix == "" {
		prefix = DLQTopicPrefix
	}
	return &DLQProducer{writer: w, prefix: prefix, logger: logger, now: time.Now}
}

// DLQTopic returns the dead-letter topic for originalTopic under prefix.
func DLQTopic(prefix, originalTopic string) string {
	return prefix + "." + originalTopic
}

// Topic returns the dead-letter topic this producer uses for originalTopic.
func (d *DLQProducer) Topic(originalTopic string) string {
	return DLQTopic(d.prefix, originalTopic)
}

func (d *DLQProducer) deadLetter(msg kafka.Message, lastErr error, group string) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers)+6)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderDLQOriginalTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderDLQOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: HeaderDLQOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: HeaderDLQConsumerGroup, Value: []byte(group)},
		kafka.Header{Key: HeaderDLQFailedAt, Value: []byte(d.now().UTC().Format(time.RFC3339))},
	)
	if lastErr != nil {
		headers = append(headers, kafka.Header{Key: HeaderDLQError, Value: []byte(lastErr.Error())})
	}
	return kafka.Message{
		Topic:   d.Topic(msg.Topic),
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
}

// Publish writes msg to its dead-letter topic with the failure recorded in
// headers. Trace headers on msg are carried over unchanged.
func (d *DLQProducer) Publish(ctx context.Context, msg kafka.Message, lastErr error, group string) error {
	dl := d.deadLetter(msg, lastErr, group)

	if err := d.writer.WriteMessages(ctx, dl); err != nil {
		d.logger.ErrorContext(ctx, "failed to publish message to DLQ",
			slog.String("dlq_topic", dl.Topic),
			slog.String("original_topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("publish to DLQ %s: %w", dl.Topic, err)
	}

	d.logger.WarnContext(ctx, "message sent to DLQ",
		slog.String("dlq_topic", dl.Topic),
		slog.String("original_topic", msg.Topic),
		slog.Int64("offset", msg.Offset),
		slog.String("consumer_group", group),
	)
	return nil
}

// Close closes the underlying writer.
func (d *DLQProducer) Close() error {
	return d.writer.Close()
}
