package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig describes the topic deposit events travel on.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	// GroupID defaults to one group per instance so every instance sees
	// every event.
	GroupID string
	Origin  string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaBroker fans deposit events out through a Kafka topic keyed by app_id.
type KafkaBroker struct {
	origin string
	writer messageWriter
	reader messageReader
	// retryDelay is the pause after a failed read.
	retryDelay time.Duration
}

func NewKafkaBroker(cfg KafkaConfig) (*KafkaBroker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	if cfg.Origin == "" {
		cfg.Origin = NewOrigin()
	}
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "nitip-feed-" + cfg.Origin
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        groupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       1e6,
		CommitInterval: time.Second,
		MaxWait:        time.Second,
		StartOffset:    kafka.LastOffset,
	})

	return newKafkaBroker(cfg.Origin, w, r), nil
}

func newKafkaBroker(origin string, w messageWriter, r messageReader) *KafkaBroker {
	return &KafkaBroker{origin: origin, writer: w, reader: r, retryDelay: 5 * time.Second}
}

func (b *KafkaBroker) Publish(ctx context.Context, e Event) error {
	e.Origin = b.origin
	value, err := Encode(e)
	if err != nil {
		return err
	}
	if err := b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.AppID),
		Value: value,
		Time:  e.At,
	}); err != nil {
		return fmt.Errorf("kafka publish %s: %w", e.Kind, err)
	}
	return nil
}

func (b *KafkaBroker) Run(ctx context.Context, h Handler) error {
	slog.Info("deposit event consumer started", "origin", b.origin)
	for {
		m, err := b.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("deposit event read failed", "error", err)
			select {
			case <-time.After(b.retryDelay):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		e, err := Decode(m.Value)
		if err != nil {
			slog.Warn("skipping malformed deposit event", "offset", m.Offset, "error", err)
			continue
		}
		if e.Origin == b.origin {
			continue
		}
		h(e)
	}
}

func (b *KafkaBroker) Close() error {
	return errors.Join(b.writer.Close(), b.reader.Close())
}
