package repository

import (
	"errors"
	"time"

	"consultation-booking/internal/domain/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrSlotTaken is returned by writes that collide with another booking
// holding the same (date, time).
var ErrSlotTaken = errors.New("slot already taken")

type BookingRepository interface {
	Create(db *gorm.DB, booking *entity.Booking) error
	// UpsertConfirmed inserts the booking or merges the payload into the
	// existing row with the same id. Cancelled and expired rows are left
	// untouched and report zero rows affected.
	UpsertConfirmed(db *gorm.DB, booking *entity.Booking) (int64, error)
	FindByID(db *gorm.DB, id uuid.UUID) (*entity.Booking, error)
	FindByPaymentSessionID(db *gorm.DB, sessionID string) (*entity.Booking, error)
	FindOccupiedTimes(db *gorm.DB, date string) ([]string, error)
	FindAll(db *gorm.DB, filter entity.BookingFilter) ([]entity.Booking, int64, error)
	SetPaymentSession(db *gorm.DB, id uuid.UUID, sessionID string) error
	TransitionStatus(db *gorm.DB, id uuid.UUID, from []entity.BookingStatus, to entity.BookingStatus) (int64, error)
	ClaimFulfillment(db *gorm.DB, id uuid.UUID, now time.Time, lease time.Duration) (int64, error)
	RecordMeeting(db *gorm.DB, id uuid.UUID, meeting entity.MeetingDetails) error
	RecordMeetingFailure(db *gorm.DB, id uuid.UUID, reason string) error
	RecordNotification(db *gorm.DB, id uuid.UUID, sent bool, reason string) error
}
