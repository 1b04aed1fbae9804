package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaReporterConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic to write stage events to.
	Topic string

	// MaxAttempts per event. Defaults to 3 if <= 0.
	MaxAttempts int

	// WriteTimeout is the per-attempt timeout. Defaults to 5s if zero.
	WriteTimeout time.Duration
}

// KafkaReporter streams stage events keyed by account so one account's runs
// stay ordered within a partition.
type KafkaReporter struct {
	writer      *kafka.Writer
	maxAttempts int
}

func NewKafkaReporter(cfg KafkaReporterConfig) (*KafkaReporter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})
	return &KafkaReporter{writer: w, maxAttempts: cfg.MaxAttempts}, nil
}

func (r *KafkaReporter) Report(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.AccountID.String()),
		Value: value,
	}
	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = r.writer.WriteMessages(ctx, msg); lastErr == nil {
			return nil
		}
		if attempt < r.maxAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return fmt.Errorf("kafka: produce stage event: %w", lastErr)
}

func (r *KafkaReporter) Close() error {
	return r.writer.Close()
}
