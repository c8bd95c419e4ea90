package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"orderpipeline/internal/domain/event"

	"github.com/segmentio/kafka-go"
)

const headerContentType = "content-type"

type Config struct {
	Brokers []string
}

// Producer publishes envelopes synchronously. The writer is limited to one
// attempt; retrying is the caller's decision.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg Config) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		MaxAttempts:            1,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &Producer{writer: w}
}

// Publish writes env to topic. Envelopes about the same subject share a
// partition key.
func (p *Producer) Publish(ctx context.Context, topic string, env event.Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope %s: %w", env.ID, err)
	}

	key := []byte(env.Subject)
	if len(key) == 0 {
		key = []byte(env.ID)
	}

	return p.SendMessage(ctx, topic, key, value)
}

func (p *Producer) SendMessage(ctx context.Context, topic string, key, value []byte) error {
	err := p.writer.WriteMessages(ctx,
		kafka.Message{
			Topic: topic,
			Key:   key,
			Value: value,
			Headers: []kafka.Header{
				{Key: headerContentType, Value: []byte(event.ContentTypeCloudEvent)},
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
