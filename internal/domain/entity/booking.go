package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusExpired   BookingStatus = "expired"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// SlotHoldingStatuses are the statuses that occupy a (date, time) slot.
var SlotHoldingStatuses = []BookingStatus{BookingStatusPending, BookingStatusConfirmed}

type PaymentStatus string

const (
	PaymentStatusUnpaid    PaymentStatus = "unpaid"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusExpired   PaymentStatus = "expired"
)

// FulfillmentStage is the position of a booking in the post-payment pipeline.
type FulfillmentStage string

const (
	StagePending       FulfillmentStage = "pending"
	StageConfirmed     FulfillmentStage = "confirmed"
	StageMeetingOK     FulfillmentStage = "meeting_ok"
	StageMeetingFailed FulfillmentStage = "meeting_failed"
	StageNotified      FulfillmentStage = "notified"
	StageNotifyFailed  FulfillmentStage = "notify_failed"
	StageExpired       FulfillmentStage = "expired"
	StageCancelled     FulfillmentStage = "cancelled"
)

const (
	DefaultDuration = 30
	DefaultTimezone = "America/New_York"
	DefaultCurrency = "USD"
)

type Booking struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerName         string          `gorm:"type:varchar(200);not null" json:"customer_name"`
	CustomerEmail        string          `gorm:"type:varchar(254);not null" json:"customer_email"`
	CustomerPhone        string          `gorm:"type:varchar(40)" json:"customer_phone"`
	ServiceID            string          `gorm:"type:varchar(100)" json:"service_id"`
	ServiceName          string          `gorm:"type:varchar(200);not null" json:"service_name"`
	Date                 string          `gorm:"type:varchar(10);not null" json:"date"`
	Time                 string          `gorm:"type:varchar(16);not null" json:"time"`
	Duration             int             `gorm:"not null;default:30" json:"duration"`
	Timezone             string          `gorm:"type:varchar(64);not null" json:"timezone"`
	Message              string          `gorm:"type:text" json:"message"`
	Price                decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Currency             string          `gorm:"type:varchar(3);not null" json:"currency"`
	PaymentStatus        PaymentStatus   `gorm:"type:varchar(20);not null" json:"payment_status"`
	Status               BookingStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentSessionID     string          `gorm:"type:varchar(255)" json:"payment_session_id"`
	MeetingID            string          `gorm:"type:varchar(64)" json:"meeting_id"`
	MeetingJoinURL       string          `gorm:"type:text" json:"meeting_join_url"`
	MeetingStartURL      string          `gorm:"type:text" json:"meeting_start_url"`
	MeetingPassword      string          `gorm:"type:varchar(64)" json:"meeting_password"`
	MeetingCreated       bool            `gorm:"not null;default:false" json:"meeting_created"`
	MeetingError         string          `gorm:"type:text" json:"meeting_error"`
	NotificationsSent    bool            `gorm:"not null;default:false" json:"notifications_sent"`
	NotificationError    string          `gorm:"type:text" json:"notification_error"`
	FulfillmentClaimedAt *time.Time      `json:"fulfillment_claimed_at,omitempty"`
	CancelledAt          *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Booking) TableName() string {
	return "bookings"
}

func (b *Booking) IsPending() bool {
	return b.Status == BookingStatusPending
}

func (b *Booking) IsConfirmed() bool {
	return b.Status == BookingStatusConfirmed
}

func (b *Booking) IsCancelled() bool {
	return b.Status == BookingStatusCancelled
}

// HoldsSlot reports whether the booking currently occupies its slot.
func (b *Booking) HoldsSlot() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// IsFulfilled reports whether both the meeting and the notifications are done.
func (b *Booking) IsFulfilled() bool {
	return b.MeetingCreated && b.NotificationsSent
}

// Slot returns the (date, time) pair the booking occupies.
func (b *Booking) Slot() Slot {
	return Slot{Date: b.Date, Time: b.Time}
}

// ApplyDefaults fills the optional attributes the checkout form may omit.
func (b *Booking) ApplyDefaults() {
	if b.Duration <= 0 {
		b.Duration = DefaultDuration
	}
	if b.Timezone == "" {
		b.Timezone = DefaultTimezone
	}
	if b.Currency == "" {
		b.Currency = DefaultCurrency
	}
}

// FulfillmentStage derives the pipeline stage from status and result flags.
func (b *Booking) FulfillmentStage() FulfillmentStage {
	switch b.Status {
	case BookingStatusPending:
		return StagePending
	case BookingStatusExpired:
		return StageExpired
	case BookingStatusCancelled:
		return StageCancelled
	}

	switch {
	case b.MeetingCreated && b.NotificationsSent:
		return StageNotified
	case b.MeetingCreated && b.NotificationError != "":
		return StageNotifyFailed
	case b.MeetingCreated:
		return StageMeetingOK
	case b.MeetingError != "":
		return StageMeetingFailed
	default:
		return StageConfirmed
	}
}

// BookingFilter narrows the operator booking list.
type BookingFilter struct {
	Status     BookingStatus
	Date       string
	FailedOnly bool
	Page       int
	Limit      int
}

func (f BookingFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// MeetingDetails is what the meeting provider returns for a booking.
type MeetingDetails struct {
	ID       string
	JoinURL  string
	StartURL string
	Password string
}

// Valid reports whether the details satisfy the meeting-created invariant.
func (m MeetingDetails) Valid() bool {
	return m.ID != "" && m.JoinURL != ""
}
