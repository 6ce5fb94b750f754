package usecase

import (
	"context"
	"time"

	"consultation-booking/internal/delivery/dto"
	"consultation-booking/internal/domain/entity"
	"consultation-booking/internal/domain/gateway"
	"consultation-booking/internal/domain/repository"
	"consultation-booking/internal/service"
	"consultation-booking/pkg/retry"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const fulfillmentTracerName = "consultation-booking/fulfillment"

var defaultRecordRetry = retry.Policy{MaxAttempts: 3, Delay: retry.Linear(250 * time.Millisecond)}

type FulfillmentUsecase interface {
	// Fulfill provisions the meeting and sends confirmations for a paid booking.
	Fulfill(ctx context.Context, bookingID uuid.UUID) error
	// Requeue schedules another fulfillment attempt for an operator.
	Requeue(ctx context.Context, bookingID uuid.UUID) (*dto.FulfillmentQueuedResponse, error)
}

type fulfillmentUsecase struct {
	db           *gorm.DB
	log          *logrus.Logger
	bookingRepo  repository.BookingRepository
	meetings     gateway.MeetingProvisioner
	notifier     gateway.NotificationDispatcher
	jobQueue     gateway.JobQueue
	auditService service.AuditService
	lease        time.Duration
	recordRetry  retry.Policy
	tracer       trace.Tracer
	now          func() time.Time
}

func NewFulfillmentUsecase(
	db *gorm.DB,
	log *logrus.Logger,
	bookingRepo repository.BookingRepository,
	meetings gateway.MeetingProvisioner,
	notifier gateway.NotificationDispatcher,
	jobQueue gateway.JobQueue,
	auditService service.AuditService,
	lease time.Duration,
) FulfillmentUsecase {
	return &fulfillmentUsecase{
		db:           db,
		log:          log,
		bookingRepo:  bookingRepo,
		meetings:     meetings,
		notifier:     notifier,
		jobQueue:     jobQueue,
		auditService: auditService,
		lease:        lease,
		recordRetry:  defaultRecordRetry,
		tracer:       otel.Tracer(fulfillmentTracerName),
		now:          time.Now,
	}
}

// Fulfill runs the post-payment pipeline for one booking.
//
// Flow:
// 1. Load the booking, skip unless confirmed and unfinished
// 2. Claim it (lease) so concurrent jobs do not duplicate work
// 3. Create the meeting if missing; on failure record it and stop. A
//    meeting that cannot be stored also stops the run before any email
// 4. Send confirmations if not yet sent and record the outcome
//
// Only meeting, notification and claim columns are written here; the
// booking status never changes.
func (u *fulfillmentUsecase) Fulfill(ctx context.Context, bookingID uuid.UUID) error {
	ctx, span := u.tracer.Start(ctx, "fulfillment.fulfill", trace.WithAttributes(
		attribute.String("booking.id", bookingID.String()),
	))
	defer span.End()

	db := u.db.WithContext(ctx)
	log := u.log.WithField("booking_id", bookingID.String())

	booking, err := u.bookingRepo.FindByID(db, bookingID)
	if err != nil {
		log.Warnf("Failed to load booking for fulfillment: %+v", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "load booking")
		return err
	}
	if booking == nil {
		span.AddEvent("booking.missing")
		log.Warnf("Fulfillment skipped, booking not found")
		return nil
	}
	if !booking.IsConfirmed() || booking.IsFulfilled() {
		span.AddEvent("booking.skipped", trace.WithAttributes(attribute.String("booking.stage", string(booking.FulfillmentStage()))))
		return nil
	}

	rows, err := u.bookingRepo.ClaimFulfillment(db, bookingID, u.now(), u.lease)
	if err != nil {
		log.Warnf("Failed to claim booking for fulfillment: %+v", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim")
		return err
	}
	if rows == 0 {
		span.AddEvent("claim.held")
		log.Debugf("Fulfillment already claimed or done")
		return nil
	}

	meeting := entity.MeetingDetails{
		ID:       booking.MeetingID,
		JoinURL:  booking.MeetingJoinURL,
		StartURL: booking.MeetingStartURL,
		Password: booking.MeetingPassword,
	}

	if !booking.MeetingCreated {
		created, err := u.meetings.CreateMeeting(ctx, gateway.MeetingRequest{
			BookingID:    booking.ID.String(),
			ServiceName:  booking.ServiceName,
			CustomerName: booking.CustomerName,
			Date:         booking.Date,
			Time:         booking.Time,
			Timezone:     booking.Timezone,
			Duration:     booking.Duration,
			Agenda:       booking.Message,
		})
		if err != nil {
			log.Errorf("Failed to create meeting: %+v", err)
			span.RecordError(err)
			span.AddEvent("meeting.failed")
			span.SetStatus(codes.Error, "meeting")

			// Background context so the failure is stored even after a timeout
			recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), slotLockCallTimeout)
			defer cancel()
			if recErr := u.bookingRepo.RecordMeetingFailure(u.db.WithContext(recordCtx), bookingID, err.Error()); recErr != nil {
				log.Errorf("Failed to record meeting failure: %+v", recErr)
			}
			u.auditService.RecordBooking(recordCtx, nil, booking, entity.AuditActorSystem, entity.AuditActionMeetingFailed, entity.JSON{
				"error": err.Error(),
			})
			return err
		}

		meeting = *created
		if err := u.recordMeeting(ctx, bookingID, meeting); err != nil {
			// Claim stays held until the lease lapses; no mail without a stored meeting
			log.Errorf("Failed to record meeting %s: %+v", meeting.ID, err)
			span.RecordError(err)
			span.AddEvent("meeting.unrecorded", trace.WithAttributes(attribute.String("meeting.id", meeting.ID)))
			span.SetStatus(codes.Error, "record meeting")

			auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), slotLockCallTimeout)
			defer cancel()
			u.auditService.RecordBooking(auditCtx, nil, booking, entity.AuditActorSystem, entity.AuditActionMeetingFailed, entity.JSON{
				"meeting_id":       meeting.ID,
				"meeting_join_url": meeting.JoinURL,
				"error":            err.Error(),
			})
			return err
		}
		booking.MeetingCreated = true
		booking.MeetingID = meeting.ID
		booking.MeetingJoinURL = meeting.JoinURL
		booking.MeetingStartURL = meeting.StartURL
		booking.MeetingPassword = meeting.Password
		booking.MeetingError = ""

		span.AddEvent("meeting.created", trace.WithAttributes(attribute.String("meeting.id", meeting.ID)))
		u.auditService.RecordBooking(ctx, nil, booking, entity.AuditActorSystem, entity.AuditActionMeetingCreated, entity.JSON{
			"meeting_id": meeting.ID,
		})
	}

	result := u.notifier.SendConfirmations(ctx, booking, meeting)

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), slotLockCallTimeout)
	defer cancel()
	if err := u.bookingRepo.RecordNotification(u.db.WithContext(recordCtx), bookingID, result.Sent(), result.Error()); err != nil {
		log.Errorf("Failed to record notification outcome: %+v", err)
	}

	if result.Sent() {
		span.AddEvent("notifications.sent")
		u.auditService.RecordBooking(recordCtx, nil, booking, entity.AuditActorSystem, entity.AuditActionNotified, nil)
		log.Infof("Booking fulfilled: meeting=%s", meeting.ID)
	} else {
		span.AddEvent("notifications.failed", trace.WithAttributes(attribute.String("error", result.Error())))
		u.auditService.RecordBooking(recordCtx, nil, booking, entity.AuditActorSystem, entity.AuditActionNotifyFailed, entity.JSON{
			"error": result.Error(),
		})
		log.Warnf("Booking confirmed with meeting %s but notifications failed: %s", meeting.ID, result.Error())
	}

	return nil
}

// recordMeeting persists a provisioned meeting, detached from ctx cancellation.
func (u *fulfillmentUsecase) recordMeeting(ctx context.Context, bookingID uuid.UUID, meeting entity.MeetingDetails) error {
	ctx = context.WithoutCancel(ctx)
	return u.recordRetry.Do(ctx, func(ctx context.Context, attempt int) error {
		callCtx, cancel := context.WithTimeout(ctx, slotLockCallTimeout)
		defer cancel()
		return u.bookingRepo.RecordMeeting(u.db.WithContext(callCtx), bookingID, meeting)
	}, func(err error, wait time.Duration) {
		u.log.Warnf("Recording meeting %s for booking %s failed, retrying in %s: %v", meeting.ID, bookingID, wait, err)
	})
}

func (u *fulfillmentUsecase) Requeue(ctx context.Context, bookingID uuid.UUID) (*dto.FulfillmentQueuedResponse, error) {
	booking, err := u.bookingRepo.FindByID(u.db.WithContext(ctx), bookingID)
	if err != nil {
		u.log.Warnf("Failed to find booking %s: %+v", bookingID, err)
		return nil, err
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	if !booking.IsConfirmed() || booking.IsFulfilled() {
		return nil, ErrNothingToFulfill
	}

	if err := u.jobQueue.Publish(ctx, gateway.FulfillmentJob{BookingID: bookingID, Reason: "operator_requeue"}); err != nil {
		u.log.Errorf("Failed to requeue fulfillment for %s: %+v", bookingID, err)
		return nil, err
	}

	u.auditService.RecordBooking(ctx, nil, booking, actorFromContext(ctx), entity.AuditActionFulfillmentRequeued, entity.JSON{
		"stage": string(booking.FulfillmentStage()),
	})

	return &dto.FulfillmentQueuedResponse{BookingID: bookingID, Queued: true}, nil
}
