package repository

import (
	"errors"
	"time"

	"consultation-booking/internal/domain/entity"
	domainRepo "consultation-booking/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const activeSlotIndex = "idx_bookings_active_slot"

// confirmColumns are overwritten when a completed payment is merged into an
// existing row. Meeting and notification columns are deliberately absent.
var confirmColumns = []string{
	"customer_name",
	"customer_email",
	"customer_phone",
	"service_id",
	"service_name",
	"date",
	"time",
	"duration",
	"timezone",
	"message",
	"price",
	"currency",
	"payment_status",
	"status",
	"payment_session_id",
	"updated_at",
}

type bookingRepository struct{}

func NewBookingRepository() domainRepo.BookingRepository {
	return &bookingRepository{}
}

func (r *bookingRepository) Create(db *gorm.DB, booking *entity.Booking) error {
	return translateError(db.Create(booking).Error)
}

func (r *bookingRepository) UpsertConfirmed(db *gorm.DB, booking *entity.Booking) (int64, error) {
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(confirmColumns),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Neq{Column: clause.Column{Table: "bookings", Name: "status"}, Value: string(entity.BookingStatusCancelled)},
			clause.Neq{Column: clause.Column{Table: "bookings", Name: "status"}, Value: string(entity.BookingStatusExpired)},
		}},
	}).Create(booking)
	return result.RowsAffected, translateError(result.Error)
}

func (r *bookingRepository) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Booking, error) {
	var booking entity.Booking
	err := db.Where("id = ?", id).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}

func (r *bookingRepository) FindByPaymentSessionID(db *gorm.DB, sessionID string) (*entity.Booking, error) {
	var booking entity.Booking
	err := db.Where("payment_session_id = ?", sessionID).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}

func (r *bookingRepository) FindOccupiedTimes(db *gorm.DB, date string) ([]string, error) {
	var times []string
	err := db.Model(&entity.Booking{}).
		Where("date = ? AND status IN ?", date, statusStrings(entity.SlotHoldingStatuses)).
		Pluck("time", &times).Error
	if err != nil {
		return nil, err
	}
	return times, nil
}

func (r *bookingRepository) FindAll(db *gorm.DB, filter entity.BookingFilter) ([]entity.Booking, int64, error) {
	query := db.Model(&entity.Booking{})
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.Date != "" {
		query = query.Where("date = ?", filter.Date)
	}
	if filter.FailedOnly {
		query = query.Where("status = ? AND (meeting_created = FALSE OR notifications_sent = FALSE)", string(entity.BookingStatusConfirmed))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var bookings []entity.Booking
	err := query.Order("created_at DESC").
		Offset(filter.Offset()).
		Limit(filter.Limit).
		Find(&bookings).Error
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

func (r *bookingRepository) SetPaymentSession(db *gorm.DB, id uuid.UUID, sessionID string) error {
	return db.Model(&entity.Booking{}).
		Where("id = ?", id).
		Update("payment_session_id", sessionID).Error
}

// TransitionStatus moves a booking to `to` only while its status is one of
// `from`. Returns affected rows: 1 = moved, 0 = already elsewhere.
func (r *bookingRepository) TransitionStatus(db *gorm.DB, id uuid.UUID, from []entity.BookingStatus, to entity.BookingStatus) (int64, error) {
	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now().UTC(),
	}
	switch to {
	case entity.BookingStatusExpired:
		updates["payment_status"] = string(entity.PaymentStatusExpired)
	case entity.BookingStatusCancelled:
		updates["cancelled_at"] = time.Now().UTC()
	}

	result := db.Model(&entity.Booking{}).
		Where("id = ? AND status IN ?", id, statusStrings(from)).
		Updates(updates)
	return result.RowsAffected, translateError(result.Error)
}

// ClaimFulfillment takes the pipeline lease on a confirmed, unfinished
// booking. Returns 0 when another worker holds a live lease or nothing is left to do.
func (r *bookingRepository) ClaimFulfillment(db *gorm.DB, id uuid.UUID, now time.Time, lease time.Duration) (int64, error) {
	result := db.Model(&entity.Booking{}).
		Where("id = ? AND status = ?", id, string(entity.BookingStatusConfirmed)).
		Where("NOT (meeting_created AND notifications_sent)").
		Where("fulfillment_claimed_at IS NULL OR fulfillment_claimed_at < ?", now.Add(-lease)).
		Update("fulfillment_claimed_at", now)
	return result.RowsAffected, result.Error
}

func (r *bookingRepository) RecordMeeting(db *gorm.DB, id uuid.UUID, meeting entity.MeetingDetails) error {
	return db.Model(&entity.Booking{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"meeting_id":        meeting.ID,
			"meeting_join_url":  meeting.JoinURL,
			"meeting_start_url": meeting.StartURL,
			"meeting_password":  meeting.Password,
			"meeting_created":   true,
			"meeting_error":     "",
			"updated_at":        time.Now().UTC(),
		}).Error
}

func (r *bookingRepository) RecordMeetingFailure(db *gorm.DB, id uuid.UUID, reason string) error {
	return db.Model(&entity.Booking{}).
		Where("id = ? AND meeting_created = FALSE", id).
		Updates(map[string]interface{}{
			"meeting_error":          reason,
			"fulfillment_claimed_at": gorm.Expr("NULL"),
			"updated_at":             time.Now().UTC(),
		}).Error
}

func (r *bookingRepository) RecordNotification(db *gorm.DB, id uuid.UUID, sent bool, reason string) error {
	return db.Model(&entity.Booking{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"notifications_sent":     sent,
			"notification_error":     reason,
			"fulfillment_claimed_at": gorm.Expr("NULL"),
			"updated_at":             time.Now().UTC(),
		}).Error
}

func statusStrings(statuses []entity.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// translateError maps a unique violation on the active-slot index to
// ErrSlotTaken (PostgreSQL error code 23505 = unique_violation).
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == activeSlotIndex {
		return domainRepo.ErrSlotTaken
	}
	return err
}
