// Package stream publishes ledger events to Kafka.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/oyster/internal/events"
)

// Producer is the part of *kafka.Producer the sink uses.
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// NewProducer creates an idempotent producer for brokers, a comma
// separated host:port list.
func NewProducer(brokers string) (*kafka.Producer, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":        brokers,
		"acks":                     "all",
		"enable.idempotence":       true,
		"compression.type":         "snappy",
		"linger.ms":                10,
		"message.send.max.retries": 10,
		"retry.backoff.ms":         100,
		"delivery.timeout.ms":      30000,
		"request.timeout.ms":       5000,
	})
	if err != nil {
		return nil, fmt.Errorf("stream: create producer: %w", err)
	}
	return producer, nil
}

// Sink is an events.Sink producing one message per event. Messages are
// keyed by call ID so consumers can deduplicate redeliveries, and carry the
// event kind in a header.
type Sink struct {
	producer     Producer
	topic        string
	flushTimeout time.Duration
	logger       zerolog.Logger
}

var _ events.Sink = (*Sink)(nil)

// New creates a sink writing to topic.
func New(p Producer, topic string, logger zerolog.Logger) *Sink {
	return &Sink{producer: p, topic: topic, flushTimeout: 5 * time.Second, logger: logger}
}

// Name implements events.Sink.
func (s *Sink) Name() string { return "kafka" }

// Deliver implements events.Sink. It returns once the broker acknowledged
// every message, or with the first delivery failure.
func (s *Sink) Deliver(ctx context.Context, evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	reports := make(chan kafka.Event, len(evs))
	for i := range evs {
		value, err := json.Marshal(&evs[i])
		if err != nil {
			return fmt.Errorf("stream: encode %s: %w", evs[i].CallID, err)
		}
		msg := &kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &s.topic, Partition: kafka.PartitionAny},
			Key:            []byte(evs[i].CallID.String()),
			Value:          value,
			Headers:        []kafka.Header{{Key: "kind", Value: []byte(evs[i].Kind)}},
			Timestamp:      evs[i].Time,
		}
		if err := s.producer.Produce(msg, reports); err != nil {
			return fmt.Errorf("stream: produce %s: %w", evs[i].CallID, err)
		}
	}

	for pending := len(evs); pending > 0; pending-- {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case report := <-reports:
			m, ok := report.(*kafka.Message)
			if !ok {
				return fmt.Errorf("stream: unexpected delivery report %v", report)
			}
			if err := m.TopicPartition.Error; err != nil {
				return fmt.Errorf("stream: deliver %s: %w", m.Key, err)
			}
		}
	}
	s.logger.Debug().Int("count", len(evs)).Str("topic", s.topic).Msg("Events published")
	return nil
}

// Close flushes outstanding messages and closes the producer.
func (s *Sink) Close() error {
	if left := s.producer.Flush(int(s.flushTimeout.Milliseconds())); left > 0 {
		s.logger.Warn().Int("unflushed", left).Msg("Closing producer with undelivered messages")
	}
	s.producer.Close()
	return nil
}
