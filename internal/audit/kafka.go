package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

const clientFlushTimeout = 5 * time.Second

// KafkaForwarder ships audit entries to a Kafka topic for SIEM consumption.
// Entries are buffered in a channel; a full buffer drops the entry rather
// than blocking the disclosure path (the bounded in-memory log and the
// postgres sink remain authoritative).
type KafkaForwarder struct {
	client *kgo.Client
	topic  string
	inbox  chan Entry
	logger *slog.Logger
}

// NewKafkaForwarder constructs a forwarder producing to topic via brokers.
func NewKafkaForwarder(brokers []string, topic string, logger *slog.Logger) (*KafkaForwarder, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaForwarder{
		client: client,
		topic:  topic,
		inbox:  make(chan Entry, 1024),
		logger: logger,
	}, nil
}

// Append implements Sink. Non-blocking: if the inbox is full the entry is
// dropped and counted against the logger.
func (f *KafkaForwarder) Append(_ context.Context, entry Entry) error {
	select {
	case f.inbox <- entry:
		return nil
	default:
		if f.logger != nil {
			f.logger.Warn("kafka audit inbox full, dropping entry", "audit_id", entry.ID)
		}
		return nil
	}
}

// Run drains the inbox until ctx is cancelled, then flushes and closes the
// client.
func (f *KafkaForwarder) Run(ctx context.Context) error {
	defer f.client.Close()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), clientFlushTimeout)
			defer cancel()
			_ = f.client.Flush(flushCtx)
			return ctx.Err()
		case entry := <-f.inbox:
			payload, err := json.Marshal(entry)
			if err != nil {
				if f.logger != nil {
					f.logger.Error("could not marshal audit entry", "error", err, "audit_id", entry.ID)
				}
				continue
			}
			record := &kgo.Record{
				Key:   []byte(string(entry.Action)),
				Value: payload,
			}
			f.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
				if err != nil && f.logger != nil {
					f.logger.Error("kafka produce failed", "error", err, "audit_id", entry.ID)
				}
			})
		}
	}
}
