package kafka_test

import (
	"context"
	"errors"
	"testing"

	"ms-booking/internal/booking"
	bookingkafka "ms-booking/internal/booking/kafka"
	"ms-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key string, v interface{}) error {
	args := m.Called(ctx, topic, key, v)
	return args.Error(0)
}

var _ booking.NotificationPort = (*bookingkafka.Notifier)(nil)

func TestNotifier_PublishesKeyedByBooking(t *testing.T) {
	pub := new(MockPublisher)
	n := models.Notification{Recipient: "user-1", Type: models.EventApproved, Booking: &models.Booking{ID: "b-1"}}
	pub.On("Publish", mock.Anything, "booking.notifications", "b-1", n).Return(nil)

	err := bookingkafka.NewNotifier(pub, "booking.notifications").Notify(context.Background(), n)
	assert.NoError(t, err)
	pub.AssertExpectations(t)
}

func TestNotifier_PropagatesPublishError(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	err := bookingkafka.NewNotifier(pub, "t").Notify(context.Background(), models.Notification{Booking: &models.Booking{ID: "b-1"}})
	assert.EqualError(t, err, "broker down")
}
