package models

import (
	"time"

	"ms-booking/internal/slots"

	"github.com/uptrace/bun"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusWaiting   Status = "waiting"
	StatusRejected  Status = "rejected"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCancelled
}

// IsCommitted reports whether a booking in s holds its slots in the availability index.
func (s Status) IsCommitted() bool {
	return s == StatusApproved || s == StatusConfirmed
}

func ParseStatus(v string) (Status, bool) {
	switch s := Status(v); s {
	case StatusPending, StatusApproved, StatusWaiting, StatusRejected, StatusConfirmed, StatusCancelled:
		return s, true
	}
	return "", false
}

type PaymentStatus string

const (
	PaymentNotPaid    PaymentStatus = "not_paid"
	PaymentPending    PaymentStatus = "pending"
	PaymentSuccessful PaymentStatus = "successful"
)

type BookingRequest struct {
	AuditoriumID string           `json:"auditorium_id"`
	UserID       string           `json:"user_id"`
	EventName    string           `json:"event_name"`
	Dates        []slots.DateSlot `json:"dates"`
	Amenities    []string         `json:"amenities"`
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID               string           `bun:"id,pk" json:"id"`
	AuditoriumID     string           `bun:"auditorium_id,notnull" json:"auditorium_id"`
	UserID           string           `bun:"user_id,notnull" json:"user_id"`
	EventName        string           `bun:"event_name,notnull" json:"event_name"`
	Dates            []slots.DateSlot `bun:"dates,type:jsonb" json:"dates"`
	Amenities        []string         `bun:"amenities,type:jsonb" json:"amenities"`
	TotalAmount      float64          `bun:"total_amount,notnull" json:"total_amount"`
	DiscountPercent  *float64         `bun:"discount_percent" json:"discount_percent,omitempty"`
	DiscountAmount   *float64         `bun:"discount_amount" json:"discount_amount,omitempty"`
	Status           Status           `bun:"status,notnull" json:"status"`
	PaymentStatus    PaymentStatus    `bun:"payment_status,notnull" json:"payment_status"`
	PaymentDue       *time.Time       `bun:"payment_due" json:"payment_due,omitempty"`
	PaymentReference string           `bun:"payment_reference,nullzero" json:"payment_reference,omitempty"`
	RejectReason     string           `bun:"reject_reason,nullzero" json:"reject_reason,omitempty"`
	CancelReason     string           `bun:"cancel_reason,nullzero" json:"cancel_reason,omitempty"`
	RefundAmount     *float64         `bun:"refund_amount" json:"refund_amount,omitempty"`
	CreatedAt        time.Time        `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time        `bun:"updated_at,notnull" json:"updated_at"`
}

// PayableAmount is what the requester owes: the discounted amount once the
// booking is approved, the list total before that.
func (b *Booking) PayableAmount() float64 {
	if b.DiscountAmount != nil {
		return *b.DiscountAmount
	}
	return b.TotalAmount
}

// Clone returns a deep copy, safe to hand to goroutines.
func (b *Booking) Clone() *Booking {
	c := *b
	c.Dates = make([]slots.DateSlot, len(b.Dates))
	for i, ds := range b.Dates {
		c.Dates[i] = slots.DateSlot{Span: ds.Span, Intervals: append([]slots.Interval(nil), ds.Intervals...)}
	}
	c.Amenities = append([]string(nil), b.Amenities...)
	c.DiscountPercent = copyFloat(b.DiscountPercent)
	c.DiscountAmount = copyFloat(b.DiscountAmount)
	c.RefundAmount = copyFloat(b.RefundAmount)
	if b.PaymentDue != nil {
		due := *b.PaymentDue
		c.PaymentDue = &due
	}
	return &c
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

type ApproveRequest struct {
	DiscountPercent float64 `json:"discount_percent"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type PaymentRecordRequest struct {
	Reference string `json:"reference"`
}

type QuoteRequest struct {
	Dates     []slots.DateSlot `json:"dates"`
	Amenities []string         `json:"amenities"`
}
