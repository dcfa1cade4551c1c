package models

import (
	"time"
)

type EventType string

const (
	EventApproved      EventType = "approved"
	EventRejected      EventType = "rejected"
	EventWaiting       EventType = "waiting"
	EventConfirmed     EventType = "confirmed"
	EventCancelled     EventType = "cancelled"
	EventAutoCancelled EventType = "auto_cancelled"
	EventAutoRejected  EventType = "auto_rejected"
)

// Notification is what the lifecycle hands to the notification port after a
// transition. Booking is a snapshot taken at transition time.
type Notification struct {
	Recipient  string    `json:"recipient"`
	Type       EventType `json:"type"`
	Booking    *Booking  `json:"booking"`
	Schedule   []string  `json:"schedule,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PaymentEvent is published by the payment provider integration when a
// booking's payment clears.
type PaymentEvent struct {
	Type      string    `json:"type"`
	BookingID string    `json:"booking_id"`
	Reference string    `json:"reference"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

type PaymentIntentResponse struct {
	BookingID    string  `json:"booking_id"`
	ClientSecret string  `json:"client_secret"`
	IntentID     string  `json:"intent_id"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
}
