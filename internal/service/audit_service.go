package service

import (
	"context"

	"consultation-booking/internal/domain/entity"
	"consultation-booking/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type AuditService interface {
	// Record writes one lifecycle entry. tx may be a running transaction; nil
	// uses the service's own connection.
	Record(ctx context.Context, tx *gorm.DB, bookingID *uuid.UUID, actor string, action string, metadata entity.JSON) error
	// RecordBooking is Record for a booking row, with the slot attached to the metadata.
	RecordBooking(ctx context.Context, tx *gorm.DB, booking *entity.Booking, actor string, action string, metadata entity.JSON) error
}

type auditService struct {
	db        *gorm.DB
	log       *logrus.Logger
	auditRepo repository.AuditLogRepository
}

func NewAuditService(db *gorm.DB, log *logrus.Logger, auditRepo repository.AuditLogRepository) AuditService {
	return &auditService{
		db:        db,
		log:       log,
		auditRepo: auditRepo,
	}
}

func (s *auditService) Record(ctx context.Context, tx *gorm.DB, bookingID *uuid.UUID, actor string, action string, metadata entity.JSON) error {
	if tx == nil {
		tx = s.db
	}

	auditLog := &entity.AuditLog{
		BookingID: bookingID,
		Actor:     actor,
		Action:    action,
		Metadata:  metadata,
	}

	if err := s.auditRepo.Create(tx.WithContext(ctx), auditLog); err != nil {
		s.log.Warnf("Failed to create audit log %s: %+v", action, err)
		return err
	}

	return nil
}

func (s *auditService) RecordBooking(ctx context.Context, tx *gorm.DB, booking *entity.Booking, actor string, action string, metadata entity.JSON) error {
	if metadata == nil {
		metadata = entity.JSON{}
	}
	metadata["date"] = booking.Date
	metadata["time"] = booking.Time
	metadata["status"] = string(booking.Status)

	id := booking.ID
	return s.Record(ctx, tx, &id, actor, action, metadata)
}
