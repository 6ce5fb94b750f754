package usecase

import (
	"context"

	"consultation-booking/internal/converter"
	"consultation-booking/internal/delivery/dto"
	"consultation-booking/internal/delivery/http/middleware"
	"consultation-booking/internal/domain/entity"
	"consultation-booking/internal/domain/repository"
	"consultation-booking/internal/service"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultPageLimit = 20
)

type AdminBookingUsecase interface {
	ListBookings(ctx context.Context, req *dto.BookingListRequest) (*dto.BookingListResponse, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*dto.AdminBookingResponse, error)
	CancelBooking(ctx context.Context, id uuid.UUID) (*dto.AdminBookingResponse, error)
}

type adminBookingUsecase struct {
	db           *gorm.DB
	log          *logrus.Logger
	bookingRepo  repository.BookingRepository
	writer       ReservationWriter
	auditService service.AuditService
}

func NewAdminBookingUsecase(
	db *gorm.DB,
	log *logrus.Logger,
	bookingRepo repository.BookingRepository,
	writer ReservationWriter,
	auditService service.AuditService,
) AdminBookingUsecase {
	return &adminBookingUsecase{
		db:           db,
		log:          log,
		bookingRepo:  bookingRepo,
		writer:       writer,
		auditService: auditService,
	}
}

func (u *adminBookingUsecase) ListBookings(ctx context.Context, req *dto.BookingListRequest) (*dto.BookingListResponse, error) {
	filter := entity.BookingFilter{
		Status:     entity.BookingStatus(req.Status),
		Date:       entity.NormalizeSlotDate(req.Date),
		FailedOnly: req.Failed,
		Page:       req.Page,
		Limit:      req.Limit,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageLimit
	}

	bookings, total, err := u.bookingRepo.FindAll(u.db.WithContext(ctx), filter)
	if err != nil {
		u.log.Warnf("Failed to list bookings: %+v", err)
		return nil, err
	}

	return &dto.BookingListResponse{
		Bookings: converter.BookingsToAdminResponses(bookings),
		Page:     filter.Page,
		Limit:    filter.Limit,
		Total:    total,
	}, nil
}

func (u *adminBookingUsecase) GetBooking(ctx context.Context, id uuid.UUID) (*dto.AdminBookingResponse, error) {
	booking, err := u.bookingRepo.FindByID(u.db.WithContext(ctx), id)
	if err != nil {
		u.log.Warnf("Failed to find booking %s: %+v", id, err)
		return nil, err
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}

	return converter.BookingToAdminResponse(booking), nil
}

// CancelBooking frees the slot of a pending or confirmed booking.
// Meetings and refunds are handled outside the system.
func (u *adminBookingUsecase) CancelBooking(ctx context.Context, id uuid.UUID) (*dto.AdminBookingResponse, error) {
	booking, err := u.bookingRepo.FindByID(u.db.WithContext(ctx), id)
	if err != nil {
		u.log.Warnf("Failed to find booking %s: %+v", id, err)
		return nil, err
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	if !booking.HoldsSlot() {
		return nil, ErrBookingAlreadyFinal
	}

	previous := booking.Status
	rows, err := u.writer.Release(ctx, booking, entity.BookingStatusCancelled)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrBookingAlreadyFinal
	}

	u.auditService.RecordBooking(ctx, nil, booking, actorFromContext(ctx), entity.AuditActionBookingCancel, entity.JSON{
		"previous_status": string(previous),
	})

	updated, err := u.bookingRepo.FindByID(u.db.WithContext(ctx), id)
	if err != nil || updated == nil {
		u.log.Warnf("Failed to reload booking %s: %+v", id, err)
		return converter.BookingToAdminResponse(booking), nil
	}
	return converter.BookingToAdminResponse(updated), nil
}

// actorFromContext names the operator for the audit trail.
func actorFromContext(ctx context.Context) string {
	if email, ok := middleware.GetAdminEmailFromContext(ctx); ok {
		return email
	}
	return entity.AuditActorSystem
}
