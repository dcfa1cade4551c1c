package kafka

import (
	"context"

	"ms-booking/internal/models"
)

// Publisher is satisfied by the shared Kafka producer.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, v interface{}) error
}

// Notifier streams lifecycle notifications to a topic keyed by booking id.
// A mailer or push service consumes them downstream.
type Notifier struct {
	Publisher Publisher
	Topic     string
}

func NewNotifier(p Publisher, topic string) *Notifier {
	return &Notifier{Publisher: p, Topic: topic}
}

func (n *Notifier) Notify(ctx context.Context, msg models.Notification) error {
	return n.Publisher.Publish(ctx, n.Topic, msg.Booking.ID, msg)
}
