package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-booking/internal/logger"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	Logger *logger.Logger
}

// NewProducer builds a producer whose messages carry their own topic.
func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Logger: log}
}

// Publish streams v as JSON to topic. Messages with the same key land on the
// same partition, so events for one booking stay ordered.
func (p *Producer) Publish(ctx context.Context, topic, key string, v interface{}) error {
	msgBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}

	if err := p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	}); err != nil {
		p.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish to %s: %v", topic, err))
		return err
	}

	p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s bytes=%d", key, len(msgBytes)))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
