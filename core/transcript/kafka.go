package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// MessageWriter is the part of kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each record to a topic keyed by session id, so one
// session's records stay on one partition in order.
type KafkaSink struct {
	writer MessageWriter
	topic  string
}

type KafkaOption func(*KafkaSink)

// WithMessageWriter replaces the kafka.Writer built from the brokers.
func WithMessageWriter(writer MessageWriter) KafkaOption {
	return func(s *KafkaSink) { s.writer = writer }
}

func NewKafkaSink(brokers []string, topic string, opts ...KafkaOption) *KafkaSink {
	s := &KafkaSink{topic: topic}
	for _, opt := range opts {
		opt(s)
	}
	if s.writer == nil {
		s.writer = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		}
	}
	return s
}

func (s *KafkaSink) Write(ctx context.Context, record Record) error {
	ctx, span := tracer.Start(ctx, "publish transcript record")
	defer span.End()
	span.SetAttributes(
		attribute.String("kafka.topic", s.topic),
		attribute.String("transcript.type", string(record.Type)),
	)

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode transcript record: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(record.SessionID),
		Value: value,
		Time:  record.Timestamp,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(record.Type)},
			{Key: "turn_id", Value: []byte(strconv.Itoa(record.TurnID))},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "failed to publish transcript record", "error", err, "type", record.Type)
		return fmt.Errorf("failed to publish transcript record: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
