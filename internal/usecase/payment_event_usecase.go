package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"consultation-booking/internal/delivery/dto"
	"consultation-booking/internal/domain/entity"
	"consultation-booking/internal/domain/gateway"
	"consultation-booking/internal/domain/repository"
	"consultation-booking/internal/service"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	WebhookErrorSlotUnavailable = "slot_unavailable"
	WebhookErrorBookingCanceled = "booking_cancelled"
	WebhookErrorBookingExpired  = "booking_expired"
)

type PaymentEventUsecase interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*dto.WebhookResponse, error)
}

type paymentEventUsecase struct {
	db             *gorm.DB
	log            *logrus.Logger
	bookingRepo    repository.BookingRepository
	writer         ReservationWriter
	paymentGateway gateway.PaymentGateway
	eventDeduper   gateway.EventDeduper
	jobQueue       gateway.JobQueue
	auditService   service.AuditService
	tracer         trace.Tracer
}

func NewPaymentEventUsecase(
	db *gorm.DB,
	log *logrus.Logger,
	bookingRepo repository.BookingRepository,
	writer ReservationWriter,
	paymentGateway gateway.PaymentGateway,
	eventDeduper gateway.EventDeduper,
	jobQueue gateway.JobQueue,
	auditService service.AuditService,
) PaymentEventUsecase {
	return &paymentEventUsecase{
		db:             db,
		log:            log,
		bookingRepo:    bookingRepo,
		writer:         writer,
		paymentGateway: paymentGateway,
		eventDeduper:   eventDeduper,
		jobQueue:       jobQueue,
		auditService:   auditService,
		tracer:         otel.Tracer("consultation-booking/payments"),
	}
}

// HandleWebhook verifies a provider delivery and applies it.
//
// A returned error means the provider should retry; a response with Error
// set means the event was accepted but needs an operator (refund).
func (u *paymentEventUsecase) HandleWebhook(ctx context.Context, payload []byte, signature string) (*dto.WebhookResponse, error) {
	if signature == "" {
		return nil, ErrMissingSignature
	}

	event, err := u.paymentGateway.ParseEvent(payload, signature)
	if err != nil {
		u.log.Warnf("Rejected payment event: %+v", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	ctx, span := u.tracer.Start(ctx, "payment_event.handle", trace.WithAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.type", event.Type),
	))
	defer span.End()

	seen, err := u.eventDeduper.Seen(ctx, event.ID)
	if err != nil {
		// Confirm is idempotent, so processing twice is safe
		u.log.Warnf("Failed to check event %s for duplicates: %+v", event.ID, err)
	}
	if seen {
		u.log.Infof("Duplicate payment event %s ignored", event.ID)
		return &dto.WebhookResponse{Received: true, Duplicate: true}, nil
	}

	var resp *dto.WebhookResponse
	switch event.Type {
	case gateway.EventCheckoutCompleted:
		resp, err = u.handleCompleted(ctx, event)
	case gateway.EventCheckoutExpired:
		resp, err = u.handleExpired(ctx, event)
	default:
		u.log.Debugf("Ignoring payment event %s of type %s", event.ID, event.Type)
		resp = &dto.WebhookResponse{Received: true}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handle event")
		return nil, err
	}
	if resp.Error != "" {
		span.AddEvent("event.needs_refund", trace.WithAttributes(attribute.String("reason", resp.Error)))
	}

	if err := u.eventDeduper.MarkProcessed(ctx, event.ID); err != nil {
		u.log.Warnf("Failed to mark event %s processed: %+v", event.ID, err)
	}
	return resp, nil
}

// handleCompleted confirms the paid booking and hands it to the workers.
//
// Flow:
// 1. Rebuild the booking from session metadata
// 2. Upsert it as confirmed (idempotent by booking id)
// 3. Slot conflict -> accept, audit for refund, no meeting
// 4. Publish a fulfillment job
func (u *paymentEventUsecase) handleCompleted(ctx context.Context, event *gateway.PaymentEvent) (*dto.WebhookResponse, error) {
	booking, err := bookingFromEvent(event)
	if err != nil {
		u.log.Warnf("Payment event %s has unusable metadata: %+v", event.ID, err)
		return nil, err
	}

	log := u.log.WithField("booking_id", booking.ID.String())

	err = u.writer.Confirm(ctx, booking)
	switch {
	case errors.Is(err, ErrSlotUnavailable):
		log.Warnf("Paid booking lost its slot %s, refund required (session %s)", booking.Slot(), event.SessionID)
		u.auditService.RecordBooking(ctx, nil, booking, entity.AuditActorWebhook, entity.AuditActionSlotConflict, entity.JSON{
			"session_id":      event.SessionID,
			"amount":          booking.Price.StringFixed(2),
			"currency":        booking.Currency,
			"refund_required": true,
		})
		return &dto.WebhookResponse{Received: true, BookingID: booking.ID.String(), Error: WebhookErrorSlotUnavailable}, nil
	case errors.Is(err, ErrBookingCancelled), errors.Is(err, ErrBookingExpired):
		reason := WebhookErrorBookingCanceled
		if errors.Is(err, ErrBookingExpired) {
			reason = WebhookErrorBookingExpired
		}
		log.Warnf("Payment completed for a closed booking (%s), refund required (session %s)", reason, event.SessionID)
		u.auditService.RecordBooking(ctx, nil, booking, entity.AuditActorWebhook, entity.AuditActionSlotConflict, entity.JSON{
			"session_id":      event.SessionID,
			"reason":          reason,
			"refund_required": true,
		})
		return &dto.WebhookResponse{Received: true, BookingID: booking.ID.String(), Error: reason}, nil
	case err != nil:
		return nil, err
	}

	u.auditService.RecordBooking(ctx, nil, booking, entity.AuditActorWebhook, entity.AuditActionBookingConfirm, entity.JSON{
		"session_id": event.SessionID,
		"event_id":   event.ID,
	})

	job := gateway.FulfillmentJob{BookingID: booking.ID, Reason: event.Type}
	if err := u.jobQueue.Publish(ctx, job); err != nil {
		log.Errorf("Failed to queue fulfillment: %+v", err)
		u.auditService.RecordBooking(ctx, nil, booking, entity.AuditActorSystem, entity.AuditActionEnqueueFailed, entity.JSON{
			"error": err.Error(),
		})
	}

	return &dto.WebhookResponse{
		Received:  true,
		BookingID: booking.ID.String(),
		SessionID: event.SessionID,
	}, nil
}

func (u *paymentEventUsecase) handleExpired(ctx context.Context, event *gateway.PaymentEvent) (*dto.WebhookResponse, error) {
	booking, err := u.findEventBooking(ctx, event)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return &dto.WebhookResponse{Received: true}, nil
	}

	rows, err := u.writer.Release(ctx, booking, entity.BookingStatusExpired)
	if err != nil {
		return nil, err
	}
	if rows > 0 {
		u.auditService.RecordBooking(ctx, nil, booking, entity.AuditActorWebhook, entity.AuditActionBookingExpire, entity.JSON{
			"session_id": event.SessionID,
		})
	}

	return &dto.WebhookResponse{Received: true, BookingID: booking.ID.String()}, nil
}

// findEventBooking resolves the booking by metadata id, else by session id.
func (u *paymentEventUsecase) findEventBooking(ctx context.Context, event *gateway.PaymentEvent) (*entity.Booking, error) {
	db := u.db.WithContext(ctx)

	if raw := event.Metadata[gateway.MetaBookingID]; raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			u.log.Warnf("Payment event %s has malformed booking id %q", event.ID, raw)
			return nil, nil
		}
		return u.bookingRepo.FindByID(db, id)
	}
	if event.SessionID != "" {
		return u.bookingRepo.FindByPaymentSessionID(db, event.SessionID)
	}
	return nil, nil
}

func bookingFromEvent(event *gateway.PaymentEvent) (*entity.Booking, error) {
	if missing := event.MissingMetadata(gateway.RequiredCompletionMetadata); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingMetadata, strings.Join(missing, ", "))
	}

	md := event.Metadata
	id, err := uuid.Parse(md[gateway.MetaBookingID])
	if err != nil {
		return nil, fmt.Errorf("%w: bookingId is not a valid id", ErrMissingMetadata)
	}

	duration, _ := strconv.Atoi(md[gateway.MetaDuration])

	currency := strings.ToUpper(firstNonEmpty(md[gateway.MetaCurrency], event.Currency))

	booking := &entity.Booking{
		ID:               id,
		CustomerName:     md[gateway.MetaCustomerName],
		CustomerEmail:    md[gateway.MetaCustomerEmail],
		CustomerPhone:    md[gateway.MetaCustomerPhone],
		ServiceID:        md[gateway.MetaServiceID],
		ServiceName:      md[gateway.MetaService],
		Date:             entity.NormalizeSlotDate(md[gateway.MetaDate]),
		Time:             md[gateway.MetaTime],
		Duration:         duration,
		Timezone:         md[gateway.MetaTimezone],
		Message:          md[gateway.MetaMessage],
		Price:            service.FromMinorUnits(event.AmountTotal),
		Currency:         currency,
		PaymentSessionID: event.SessionID,
	}
	booking.ApplyDefaults()

	if _, err := entity.SlotStart(booking.Date, booking.Time, booking.Timezone); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingMetadata, err)
	}

	return booking, nil
}
