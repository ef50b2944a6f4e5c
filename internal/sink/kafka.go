package sink

import (
	"context"
	"fmt"
	"time"

	"coffeeshop/internal/config"
	"coffeeshop/internal/sale"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes every record to a topic, keyed by record id.
//
// The writer is synchronous so that a broker failure is reported on the cycle
// that produced the record.
type Kafka struct {
	writer messageWriter
	topic  string
}

func NewKafka(cfg config.KafkaConfig) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  1,
	}
	return &Kafka{writer: w, topic: cfg.Topic}
}

func (s *Kafka) Name() string { return "kafka" }

func (s *Kafka) Write(ctx context.Context, rec *sale.Record) error {
	payload, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	// Time stays zero: the writer stamps produce time, the sale date lives in
	// the payload only.
	msg := kafka.Message{Key: []byte(rec.RecordID), Value: payload}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: kafka publish to %s: %v", ErrTransport, s.topic, err)
	}
	return nil
}

func (s *Kafka) Close() error {
	return s.writer.Close()
}
