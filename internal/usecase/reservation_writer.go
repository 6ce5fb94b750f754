package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"consultation-booking/internal/domain/entity"
	"consultation-booking/internal/domain/gateway"
	"consultation-booking/internal/domain/repository"
	"consultation-booking/internal/service"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const slotLockCallTimeout = 5 * time.Second

// ReservationWriter is the only path that changes which booking holds a slot.
type ReservationWriter interface {
	// ReservePending stores a pending placeholder while checkout is open.
	ReservePending(ctx context.Context, booking *entity.Booking) error
	// Confirm upserts the paid booking by id. Safe to repeat.
	Confirm(ctx context.Context, booking *entity.Booking) error
	// Release moves the booking to expired or cancelled and frees the slot.
	// It returns the number of rows changed; zero means nothing to release.
	Release(ctx context.Context, booking *entity.Booking, to entity.BookingStatus) (int64, error)
}

type reservationWriter struct {
	db          *gorm.DB
	log         *logrus.Logger
	bookingRepo repository.BookingRepository
	slotLocker  gateway.SlotLocker
	pendingTTL  time.Duration
}

func NewReservationWriter(
	db *gorm.DB,
	log *logrus.Logger,
	bookingRepo repository.BookingRepository,
	slotLocker gateway.SlotLocker,
	pendingTTL time.Duration,
) ReservationWriter {
	return &reservationWriter{
		db:          db,
		log:         log,
		bookingRepo: bookingRepo,
		slotLocker:  slotLocker,
		pendingTTL:  pendingTTL,
	}
}

// ReservePending claims the slot for a new booking.
//
// Flow:
// 1. Normalize the slot label
// 2. Redis slot lock (fast rejection under contention)
// 3. Insert the pending row; the partial unique index decides
// 4. If the insert fails -> compensate: release the Redis lock
func (w *reservationWriter) ReservePending(ctx context.Context, booking *entity.Booking) error {
	label, err := entity.NormalizeSlotLabel(booking.Time)
	if err != nil {
		return err
	}
	booking.Time = label
	booking.Date = entity.NormalizeSlotDate(booking.Date)
	booking.ApplyDefaults()
	booking.Status = entity.BookingStatusPending
	booking.PaymentStatus = entity.PaymentStatusUnpaid

	slot := booking.Slot()
	owner := booking.ID.String()

	claimed, err := w.slotLocker.Claim(ctx, slot, owner, w.pendingTTL)
	if err != nil {
		// Redis is only a fast path; the database still guards the slot
		w.log.Warnf("Failed to take slot lock for %s, falling back to database: %+v", slot, err)
	} else if !claimed {
		return ErrSlotUnavailable
	}

	if err := w.bookingRepo.Create(w.db.WithContext(ctx), booking); err != nil {
		w.releaseLock(slot, owner)

		if errors.Is(err, repository.ErrSlotTaken) {
			return ErrSlotUnavailable
		}
		w.log.Errorf("Failed to insert pending booking %s: %+v", booking.ID, err)
		return err
	}

	w.log.Infof("Booking reserved: id=%s, slot=%s", booking.ID, slot)
	return nil
}

func (w *reservationWriter) Confirm(ctx context.Context, booking *entity.Booking) error {
	label, err := entity.NormalizeSlotLabel(booking.Time)
	if err != nil {
		return err
	}
	booking.Time = label
	booking.Date = entity.NormalizeSlotDate(booking.Date)
	booking.ApplyDefaults()
	booking.Status = entity.BookingStatusConfirmed
	booking.PaymentStatus = entity.PaymentStatusCompleted

	rows, err := w.bookingRepo.UpsertConfirmed(w.db.WithContext(ctx), booking)
	if err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			return ErrSlotUnavailable
		}
		w.log.Errorf("Failed to confirm booking %s: %+v", booking.ID, err)
		return err
	}
	if rows == 0 {
		existing, err := w.bookingRepo.FindByID(w.db.WithContext(ctx), booking.ID)
		if err == nil && existing != nil && existing.Status == entity.BookingStatusExpired {
			return ErrBookingExpired
		}
		return ErrBookingCancelled
	}

	// Keep the advisory lock for the life of the appointment
	if start, err := entity.SlotStart(booking.Date, booking.Time, booking.Timezone); err == nil {
		lockCtx, cancel := context.WithTimeout(context.Background(), slotLockCallTimeout)
		defer cancel()
		if ok, err := w.slotLocker.Claim(lockCtx, booking.Slot(), booking.ID.String(), service.SlotLockTTL(start)); err != nil || !ok {
			w.log.Debugf("Slot lock not extended for %s (held=%t): %v", booking.ID, ok, err)
		}
	}

	w.log.Infof("Booking confirmed: id=%s, slot=%s", booking.ID, booking.Slot())
	return nil
}

func (w *reservationWriter) Release(ctx context.Context, booking *entity.Booking, to entity.BookingStatus) (int64, error) {
	var from []entity.BookingStatus
	switch to {
	case entity.BookingStatusExpired:
		from = []entity.BookingStatus{entity.BookingStatusPending}
	case entity.BookingStatusCancelled:
		from = entity.SlotHoldingStatuses
	default:
		return 0, fmt.Errorf("cannot release booking to status %q", to)
	}

	rows, err := w.bookingRepo.TransitionStatus(w.db.WithContext(ctx), booking.ID, from, to)
	if err != nil {
		w.log.Warnf("Failed to move booking %s to %s: %+v", booking.ID, to, err)
		return 0, err
	}
	if rows == 0 {
		return 0, nil
	}

	w.releaseLock(booking.Slot(), booking.ID.String())
	booking.Status = to

	w.log.Infof("Booking released: id=%s, slot=%s, status=%s", booking.ID, booking.Slot(), to)
	return rows, nil
}

func (w *reservationWriter) releaseLock(slot entity.Slot, owner string) {
	syncCtx, cancel := context.WithTimeout(context.Background(), slotLockCallTimeout)
	defer cancel()
	if err := w.slotLocker.Release(syncCtx, slot, owner); err != nil {
		// Log but don't fail - the lock expires on its own
		w.log.Warnf("Failed to release slot lock %s (non-fatal): %+v", slot, err)
	}
}
