package usecase

import (
	"testing"
	"time"

	"consultation-booking/config"
	"consultation-booking/internal/domain/entity"
	"consultation-booking/internal/domain/gateway"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	testDate  = "2025-08-01"
	testLabel = "2:00 PM"
)

var testNow = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	db          *gorm.DB
	repo        *fakeBookingRepo
	locker      *fakeSlotLocker
	deduper     *fakeDeduper
	queue       *fakeQueue
	payments    *fakePaymentGateway
	meetings    *mockMeetingProvisioner
	notifier    *mockNotifier
	audit       *fakeAuditService
	writer      ReservationWriter
	bookings    *bookingUsecase
	events      PaymentEventUsecase
	fulfillment *fulfillmentUsecase
	admin       AdminBookingUsecase
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		db:       testDB(t),
		repo:     newFakeBookingRepo(),
		locker:   newFakeSlotLocker(),
		deduper:  &fakeDeduper{},
		queue:    &fakeQueue{},
		payments: &fakePaymentGateway{},
		meetings: &mockMeetingProvisioner{},
		notifier: &mockNotifier{},
		audit:    &fakeAuditService{},
	}
	log := testLogger()

	h.writer = NewReservationWriter(h.db, log, h.repo, h.locker, 30*time.Minute)
	h.bookings = NewBookingUsecase(h.db, log, h.repo, h.writer, h.payments, h.audit, config.StripeConfig{
		SuccessURL: "https://example.com/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "https://example.com/book",
	}).(*bookingUsecase)
	h.bookings.now = func() time.Time { return testNow }
	h.events = NewPaymentEventUsecase(h.db, log, h.repo, h.writer, h.payments, h.deduper, h.queue, h.audit)
	h.fulfillment = NewFulfillmentUsecase(h.db, log, h.repo, h.meetings, h.notifier, h.queue, h.audit, 5*time.Minute).(*fulfillmentUsecase)
	h.admin = NewAdminBookingUsecase(h.db, log, h.repo, h.writer, h.audit)
	return h
}

func pendingBooking(date, label string) *entity.Booking {
	return &entity.Booking{
		ID:            uuid.New(),
		CustomerName:  "Jane Doe",
		CustomerEmail: "jane@example.com",
		ServiceName:   "Strategy Session",
		Date:          date,
		Time:          label,
	}
}

func completedEvent(bookingID uuid.UUID, eventID string) *gateway.PaymentEvent {
	return &gateway.PaymentEvent{
		ID:          eventID,
		Type:        gateway.EventCheckoutCompleted,
		SessionID:   "cs_test_" + bookingID.String()[:8],
		AmountTotal: 15000,
		Currency:    "USD",
		Metadata: map[string]string{
			gateway.MetaBookingID:     bookingID.String(),
			gateway.MetaCustomerName:  "Jane Doe",
			gateway.MetaCustomerEmail: "jane@example.com",
			gateway.MetaService:       "Strategy Session",
			gateway.MetaDate:          testDate,
			gateway.MetaTime:          testLabel,
			gateway.MetaDuration:      "45",
		},
	}
}

var providerMeeting = &entity.MeetingDetails{
	ID:       "85746065432",
	JoinURL:  "https://zoom.us/j/85746065432",
	StartURL: "https://zoom.us/s/85746065432",
	Password: "abc123",
}
