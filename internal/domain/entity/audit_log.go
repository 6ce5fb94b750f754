package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditLog is one entry of the booking lifecycle trail.
type AuditLog struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	BookingID *uuid.UUID `gorm:"type:uuid;index" json:"booking_id,omitempty"`
	Actor     string     `gorm:"type:varchar(254);not null" json:"actor"`
	Action    string     `gorm:"type:varchar(100);not null;index" json:"action"`
	Metadata  JSON       `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// JSON type for GORM JSONB support
type JSON map[string]interface{}

// Value returns json value, implement driver.Valuer interface
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan scan value into Jsonb, implements sql.Scanner interface
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New(fmt.Sprint("Failed to unmarshal JSONB value:", value))
	}

	result := map[string]interface{}{}
	err := json.Unmarshal(bytes, &result)
	*j = JSON(result)
	return err
}

const (
	AuditActorSystem  = "system"
	AuditActorWebhook = "webhook"
)

const (
	AuditActionBookingReserve      = "booking.reserve"
	AuditActionBookingConfirm      = "booking.confirm"
	AuditActionBookingExpire       = "booking.expire"
	AuditActionBookingCancel       = "booking.cancel"
	AuditActionSlotConflict        = "booking.slot_conflict"
	AuditActionMeetingCreated      = "booking.meeting_created"
	AuditActionMeetingFailed       = "booking.meeting_failed"
	AuditActionNotified            = "booking.notified"
	AuditActionNotifyFailed        = "booking.notify_failed"
	AuditActionFulfillmentQueued   = "booking.fulfillment_queued"
	AuditActionFulfillmentRequeued = "booking.fulfillment_requeued"
	AuditActionEnqueueFailed       = "booking.enqueue_failed"
	AuditActionAdminLogin          = "admin.login"
	AuditActionAdminLogout         = "admin.logout"
)

// AuditLogFilter narrows the audit trail listing.
type AuditLogFilter struct {
	BookingID *uuid.UUID
	Limit     int
}
