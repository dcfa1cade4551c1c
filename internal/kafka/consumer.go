package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PaymentHandler applies one payment event. Returning an error leaves the
// message uncommitted.
type PaymentHandler func(ctx context.Context, event models.PaymentEvent) error

type Consumer struct {
	Reader MessageReader
	Logger *logger.Logger
	topic  string
	// Backoff is the pause after a failed fetch or handler call.
	Backoff time.Duration
}

// NewConsumer creates a Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{Reader: reader, Logger: log, topic: topic, Backoff: time.Second}
}

// Run consumes payment events until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handler PaymentHandler) error {
	c.Logger.LogKafka("START", c.topic, "Payment consumer started")
	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			if !c.pause(ctx) {
				return nil
			}
			continue
		}

		if !c.process(ctx, msg, handler) {
			return nil
		}
	}
}

// process retries msg until it is committed, so a failed event is never
// skipped. It returns false once ctx ends.
func (c *Consumer) process(ctx context.Context, msg kafka.Message, handler PaymentHandler) bool {
	for attempt := 1; ; attempt++ {
		err := c.Handle(ctx, msg, handler)
		if err == nil {
			return true
		}
		c.Logger.Error("KAFKA", fmt.Sprintf("Payment event at offset %d not applied (attempt %d): %v", msg.Offset, attempt, err))
		if !c.pause(ctx) {
			return false
		}
	}
}

// Handle decodes and applies one message, committing it unless the handler
// failed. Malformed messages are committed and dropped.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message, handler PaymentHandler) error {
	var event models.PaymentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil || event.BookingID == "" {
		c.Logger.Warn("KAFKA", fmt.Sprintf("Dropping malformed payment event at offset %d", msg.Offset))
		return c.Reader.CommitMessages(ctx, msg)
	}

	c.Logger.LogKafka("RECEIVE", c.topic, fmt.Sprintf("%s for booking %s", event.Type, event.BookingID))
	if err := handler(ctx, event); err != nil {
		return err
	}
	return c.Reader.CommitMessages(ctx, msg)
}

func (c *Consumer) pause(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.Backoff):
		return true
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.Reader.Close()
}
