package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request DTOs

type CreateCheckoutRequest struct {
	CustomerName  string          `json:"customerName" validate:"required,min=2,max=200"`
	CustomerEmail string          `json:"customerEmail" validate:"required,email,max=254"`
	CustomerPhone string          `json:"customerPhone" validate:"omitempty,max=40"`
	ServiceID     string          `json:"serviceId" validate:"omitempty,max=100"`
	ServiceName   string          `json:"service" validate:"required,max=200"`
	Date          string          `json:"date" validate:"required,slotdate"`
	Time          string          `json:"time" validate:"required,slottime"`
	Duration      int             `json:"duration" validate:"omitempty,min=15,max=480"`
	Timezone      string          `json:"timezone" validate:"omitempty,timezone"`
	Message       string          `json:"message" validate:"omitempty,max=2000"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency" validate:"omitempty,iso4217"`
	SuccessURL    string          `json:"successUrl" validate:"omitempty,url"`
	CancelURL     string          `json:"cancelUrl" validate:"omitempty,url"`
}

type BookingListRequest struct {
	Status string `validate:"omitempty,oneof=pending confirmed expired cancelled"`
	Date   string `validate:"omitempty,slotdate"`
	Failed bool
	Page   int `validate:"omitempty,min=1"`
	Limit  int `validate:"omitempty,min=1,max=100"`
}

// Response DTOs

type CheckoutResponse struct {
	BookingID uuid.UUID `json:"bookingId"`
	SessionID string    `json:"sessionId"`
	URL       string    `json:"url"`
}

type BookedSlotsResponse struct {
	Date        string   `json:"date"`
	BookedSlots []string `json:"bookedSlots"`
}

// BookingResponse is the customer-facing view of a booking.
type BookingResponse struct {
	ID                uuid.UUID       `json:"id"`
	CustomerName      string          `json:"customer_name"`
	CustomerEmail     string          `json:"customer_email"`
	ServiceName       string          `json:"service_name"`
	Date              string          `json:"date"`
	Time              string          `json:"time"`
	Timezone          string          `json:"timezone"`
	Duration          int             `json:"duration"`
	Price             decimal.Decimal `json:"price"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	PaymentStatus     string          `json:"payment_status"`
	Stage             string          `json:"stage"`
	MeetingCreated    bool            `json:"meeting_created"`
	MeetingID         string          `json:"meeting_id,omitempty"`
	MeetingJoinURL    string          `json:"meeting_join_url,omitempty"`
	MeetingPassword   string          `json:"meeting_password,omitempty"`
	NotificationsSent bool            `json:"notifications_sent"`
	CreatedAt         time.Time       `json:"created_at"`
}

// AdminBookingResponse carries everything an operator needs to remediate.
type AdminBookingResponse struct {
	BookingResponse
	CustomerPhone        string     `json:"customer_phone,omitempty"`
	ServiceID            string     `json:"service_id,omitempty"`
	Message              string     `json:"message,omitempty"`
	PaymentSessionID     string     `json:"payment_session_id,omitempty"`
	MeetingStartURL      string     `json:"meeting_start_url,omitempty"`
	MeetingError         string     `json:"meeting_error,omitempty"`
	NotificationError    string     `json:"notification_error,omitempty"`
	NeedsAttention       bool       `json:"needs_attention"`
	FulfillmentClaimedAt *time.Time `json:"fulfillment_claimed_at,omitempty"`
	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

type BookingListResponse struct {
	Bookings []AdminBookingResponse `json:"bookings"`
	Page     int                    `json:"-"`
	Limit    int                    `json:"-"`
	Total    int64                  `json:"-"`
}

type FulfillmentQueuedResponse struct {
	BookingID uuid.UUID `json:"bookingId"`
	Queued    bool      `json:"queued"`
}
