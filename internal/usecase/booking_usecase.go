package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"consultation-booking/config"
	"consultation-booking/internal/converter"
	"consultation-booking/internal/delivery/dto"
	"consultation-booking/internal/domain/entity"
	"consultation-booking/internal/domain/gateway"
	"consultation-booking/internal/domain/repository"
	"consultation-booking/internal/service"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type BookingUsecase interface {
	CreateCheckout(ctx context.Context, req *dto.CreateCheckoutRequest) (*dto.CheckoutResponse, error)
	GetBookedSlots(ctx context.Context, date string) (*dto.BookedSlotsResponse, error)
	GetBookingBySession(ctx context.Context, sessionID string) (*dto.BookingResponse, error)
}

type bookingUsecase struct {
	db             *gorm.DB
	log            *logrus.Logger
	bookingRepo    repository.BookingRepository
	writer         ReservationWriter
	paymentGateway gateway.PaymentGateway
	auditService   service.AuditService
	checkout       config.StripeConfig
	now            func() time.Time
}

func NewBookingUsecase(
	db *gorm.DB,
	log *logrus.Logger,
	bookingRepo repository.BookingRepository,
	writer ReservationWriter,
	paymentGateway gateway.PaymentGateway,
	auditService service.AuditService,
	checkout config.StripeConfig,
) BookingUsecase {
	return &bookingUsecase{
		db:             db,
		log:            log,
		bookingRepo:    bookingRepo,
		writer:         writer,
		paymentGateway: paymentGateway,
		auditService:   auditService,
		checkout:       checkout,
		now:            time.Now,
	}
}

// CreateCheckout reserves the slot and opens a hosted payment page for it.
//
// Flow:
// 1. Validate price and reject past slots
// 2. Reserve a pending placeholder (Redis lock + unique index)
// 3. Create the checkout session with the booking id in its metadata
// 4. If the provider fails -> compensate: expire the placeholder
func (u *bookingUsecase) CreateCheckout(ctx context.Context, req *dto.CreateCheckoutRequest) (*dto.CheckoutResponse, error) {
	if !req.Price.IsPositive() {
		return nil, ErrInvalidPrice
	}

	booking := &entity.Booking{
		ID:            uuid.New(),
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		ServiceID:     req.ServiceID,
		ServiceName:   strings.TrimSpace(req.ServiceName),
		Date:          entity.NormalizeSlotDate(req.Date),
		Time:          req.Time,
		Duration:      req.Duration,
		Timezone:      req.Timezone,
		Message:       req.Message,
		Price:         req.Price.Round(2),
		Currency:      strings.ToUpper(req.Currency),
	}
	booking.ApplyDefaults()

	start, err := entity.SlotStart(booking.Date, booking.Time, booking.Timezone)
	if err != nil {
		return nil, err
	}
	if !start.After(u.now()) {
		return nil, ErrSlotInPast
	}

	if err := u.writer.ReservePending(ctx, booking); err != nil {
		return nil, err
	}
	u.auditService.RecordBooking(ctx, nil, booking, booking.CustomerEmail, entity.AuditActionBookingReserve, nil)

	session, err := u.paymentGateway.CreateCheckoutSession(ctx, gateway.CheckoutSessionRequest{
		BookingID:     booking.ID.String(),
		ProductName:   booking.ServiceName,
		Description:   checkoutDescription(booking),
		Amount:        booking.Price,
		Currency:      booking.Currency,
		CustomerEmail: booking.CustomerEmail,
		SuccessURL:    firstNonEmpty(req.SuccessURL, u.checkout.SuccessURL),
		CancelURL:     firstNonEmpty(req.CancelURL, u.checkout.CancelURL),
		Metadata:      checkoutMetadata(booking),
	})
	if err != nil {
		u.log.Warnf("Failed to create checkout session for booking %s, releasing slot: %+v", booking.ID, err)

		releaseCtx, cancel := context.WithTimeout(context.Background(), slotLockCallTimeout)
		defer cancel()
		if _, relErr := u.writer.Release(releaseCtx, booking, entity.BookingStatusExpired); relErr != nil {
			u.log.Errorf("Failed to release booking %s after checkout failure: %+v", booking.ID, relErr)
		} else {
			u.auditService.RecordBooking(releaseCtx, nil, booking, entity.AuditActorSystem, entity.AuditActionBookingExpire, entity.JSON{
				"reason": "checkout_failed",
			})
		}
		return nil, ErrPaymentProvider
	}

	if err := u.bookingRepo.SetPaymentSession(u.db.WithContext(ctx), booking.ID, session.ID); err != nil {
		// The webhook carries the booking id, so the flow still completes
		u.log.Warnf("Failed to store session %s for booking %s: %+v", session.ID, booking.ID, err)
	}

	return &dto.CheckoutResponse{
		BookingID: booking.ID,
		SessionID: session.ID,
		URL:       session.URL,
	}, nil
}

func (u *bookingUsecase) GetBookedSlots(ctx context.Context, date string) (*dto.BookedSlotsResponse, error) {
	date = entity.NormalizeSlotDate(date)
	if _, err := entity.ParseSlotDate(date); err != nil {
		return nil, err
	}

	times, err := u.bookingRepo.FindOccupiedTimes(u.db.WithContext(ctx), date)
	if err != nil {
		u.log.Warnf("Failed to find booked slots for %s: %+v", date, err)
		return nil, err
	}
	if times == nil {
		times = []string{}
	}

	return &dto.BookedSlotsResponse{
		Date:        date,
		BookedSlots: times,
	}, nil
}

func (u *bookingUsecase) GetBookingBySession(ctx context.Context, sessionID string) (*dto.BookingResponse, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}

	booking, err := u.bookingRepo.FindByPaymentSessionID(u.db.WithContext(ctx), sessionID)
	if err != nil {
		u.log.Warnf("Failed to find booking for session %s: %+v", sessionID, err)
		return nil, err
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}

	return converter.BookingToResponse(booking), nil
}

func checkoutDescription(b *entity.Booking) string {
	return b.Date + " at " + b.Time + " (" + b.Timezone + "), " + strconv.Itoa(b.Duration) + " minutes"
}

// checkoutMetadata is everything the webhook needs to rebuild the booking.
func checkoutMetadata(b *entity.Booking) map[string]string {
	return map[string]string{
		gateway.MetaBookingID:     b.ID.String(),
		gateway.MetaCustomerName:  b.CustomerName,
		gateway.MetaCustomerEmail: b.CustomerEmail,
		gateway.MetaCustomerPhone: b.CustomerPhone,
		gateway.MetaService:       b.ServiceName,
		gateway.MetaServiceID:     b.ServiceID,
		gateway.MetaDate:          b.Date,
		gateway.MetaTime:          b.Time,
		gateway.MetaDuration:      strconv.Itoa(b.Duration),
		gateway.MetaTimezone:      b.Timezone,
		gateway.MetaMessage:       truncate(b.Message, 500),
		gateway.MetaCurrency:      b.Currency,
	}
}

// Stripe caps metadata values at 500 characters.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// IsValidationError reports errors caused by malformed slot input.
func IsValidationError(err error) bool {
	return errors.Is(err, entity.ErrInvalidSlot)
}
