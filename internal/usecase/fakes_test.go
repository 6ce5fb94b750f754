package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"consultation-booking/internal/domain/entity"
	"consultation-booking/internal/domain/gateway"
	"consultation-booking/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// testDB is a lazily connected handle; the fakes below never touch it.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 port=1 user=test dbname=test sslmode=disable",
	}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

// fakeBookingRepo mirrors the table constraints: one slot-holding row per
// (date, time), cancelled and expired rows are never resurrected.
type fakeBookingRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]entity.Booking
	failNext error
	// meetingWriteFailures fails that many RecordMeeting calls
	meetingWriteFailures int
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{bookings: map[uuid.UUID]entity.Booking{}}
}

var _ repository.BookingRepository = (*fakeBookingRepo)(nil)

func (r *fakeBookingRepo) takeFailure() error {
	err := r.failNext
	r.failNext = nil
	return err
}

func (r *fakeBookingRepo) slotHeldByOther(id uuid.UUID, date, label string) bool {
	for otherID, b := range r.bookings {
		if otherID != id && b.Date == date && b.Time == label && b.HoldsSlot() {
			return true
		}
	}
	return false
}

func (r *fakeBookingRepo) Create(db *gorm.DB, booking *entity.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	if r.slotHeldByOther(booking.ID, booking.Date, booking.Time) {
		return repository.ErrSlotTaken
	}
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt
	r.bookings[booking.ID] = *booking
	return nil
}

func (r *fakeBookingRepo) UpsertConfirmed(db *gorm.DB, booking *entity.Booking) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return 0, err
	}

	existing, ok := r.bookings[booking.ID]
	if ok && (existing.IsCancelled() || existing.Status == entity.BookingStatusExpired) {
		return 0, nil
	}
	if r.slotHeldByOther(booking.ID, booking.Date, booking.Time) {
		return 0, repository.ErrSlotTaken
	}

	next := *booking
	if ok {
		next.CreatedAt = existing.CreatedAt
		next.MeetingCreated = existing.MeetingCreated
		next.MeetingID = existing.MeetingID
		next.MeetingJoinURL = existing.MeetingJoinURL
		next.MeetingStartURL = existing.MeetingStartURL
		next.MeetingPassword = existing.MeetingPassword
		next.MeetingError = existing.MeetingError
		next.NotificationsSent = existing.NotificationsSent
		next.NotificationError = existing.NotificationError
		next.FulfillmentClaimedAt = existing.FulfillmentClaimedAt
	} else {
		next.CreatedAt = time.Now()
	}
	next.UpdatedAt = time.Now()
	r.bookings[booking.ID] = next
	return 1, nil
}

func (r *fakeBookingRepo) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return nil, err
	}
	b, ok := r.bookings[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *fakeBookingRepo) FindByPaymentSessionID(db *gorm.DB, sessionID string) (*entity.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bookings {
		if b.PaymentSessionID == sessionID {
			return &b, nil
		}
	}
	return nil, nil
}

func (r *fakeBookingRepo) FindOccupiedTimes(db *gorm.DB, date string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var times []string
	for _, b := range r.bookings {
		if b.Date == date && b.HoldsSlot() {
			times = append(times, b.Time)
		}
	}
	return times, nil
}

func (r *fakeBookingRepo) FindAll(db *gorm.DB, filter entity.BookingFilter) ([]entity.Booking, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Booking
	for _, b := range r.bookings {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.Date != "" && b.Date != filter.Date {
			continue
		}
		if filter.FailedOnly && (!b.IsConfirmed() || b.IsFulfilled()) {
			continue
		}
		out = append(out, b)
	}
	return out, int64(len(out)), nil
}

func (r *fakeBookingRepo) SetPaymentSession(db *gorm.DB, id uuid.UUID, sessionID string) error {
	return r.update(id, func(b *entity.Booking) { b.PaymentSessionID = sessionID })
}

func (r *fakeBookingRepo) TransitionStatus(db *gorm.DB, id uuid.UUID, from []entity.BookingStatus, to entity.BookingStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return 0, err
	}
	b, ok := r.bookings[id]
	if !ok {
		return 0, nil
	}
	for _, s := range from {
		if b.Status == s {
			b.Status = to
			if to == entity.BookingStatusExpired {
				b.PaymentStatus = entity.PaymentStatusExpired
			}
			r.bookings[id] = b
			return 1, nil
		}
	}
	return 0, nil
}

func (r *fakeBookingRepo) ClaimFulfillment(db *gorm.DB, id uuid.UUID, now time.Time, lease time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || !b.IsConfirmed() || b.IsFulfilled() {
		return 0, nil
	}
	if b.FulfillmentClaimedAt != nil && !b.FulfillmentClaimedAt.Before(now.Add(-lease)) {
		return 0, nil
	}
	b.FulfillmentClaimedAt = &now
	r.bookings[id] = b
	return 1, nil
}

func (r *fakeBookingRepo) RecordMeeting(db *gorm.DB, id uuid.UUID, meeting entity.MeetingDetails) error {
	r.mu.Lock()
	if r.meetingWriteFailures > 0 {
		r.meetingWriteFailures--
		r.mu.Unlock()
		return errStorage
	}
	r.mu.Unlock()
	return r.update(id, func(b *entity.Booking) {
		b.MeetingCreated = true
		b.MeetingID = meeting.ID
		b.MeetingJoinURL = meeting.JoinURL
		b.MeetingStartURL = meeting.StartURL
		b.MeetingPassword = meeting.Password
		b.MeetingError = ""
	})
}

func (r *fakeBookingRepo) RecordMeetingFailure(db *gorm.DB, id uuid.UUID, reason string) error {
	return r.update(id, func(b *entity.Booking) {
		if !b.MeetingCreated {
			b.MeetingError = reason
		}
		b.FulfillmentClaimedAt = nil
	})
}

func (r *fakeBookingRepo) RecordNotification(db *gorm.DB, id uuid.UUID, sent bool, reason string) error {
	return r.update(id, func(b *entity.Booking) {
		b.NotificationsSent = sent
		b.NotificationError = reason
		b.FulfillmentClaimedAt = nil
	})
}

func (r *fakeBookingRepo) update(id uuid.UUID, fn func(b *entity.Booking)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	b, ok := r.bookings[id]
	if !ok {
		return nil
	}
	fn(&b)
	r.bookings[id] = b
	return nil
}

func (r *fakeBookingRepo) get(id uuid.UUID) entity.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bookings[id]
}

func (r *fakeBookingRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bookings)
}

// fakeSlotLocker is an in-memory owner-keyed lock.
type fakeSlotLocker struct {
	mu    sync.Mutex
	locks map[entity.Slot]string
	err   error
}

func newFakeSlotLocker() *fakeSlotLocker {
	return &fakeSlotLocker{locks: map[entity.Slot]string{}}
}

func (l *fakeSlotLocker) Claim(ctx context.Context, slot entity.Slot, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if current, ok := l.locks[slot]; ok && current != owner {
		return false, nil
	}
	l.locks[slot] = owner
	return true, nil
}

func (l *fakeSlotLocker) Release(ctx context.Context, slot entity.Slot, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	if l.locks[slot] == owner {
		delete(l.locks, slot)
	}
	return nil
}

type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *fakeDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[eventID], nil
}

func (d *fakeDeduper) MarkProcessed(ctx context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	d.seen[eventID] = true
	return nil
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []gateway.FulfillmentJob
	err  error
}

func (q *fakeQueue) Publish(ctx context.Context, job gateway.FulfillmentJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Subscribe(ctx context.Context, handle gateway.JobHandler) error {
	<-ctx.Done()
	return nil
}

func (q *fakeQueue) Close() error { return nil }

type fakePaymentGateway struct {
	event      *gateway.PaymentEvent
	parseErr   error
	createErr  error
	lastCreate gateway.CheckoutSessionRequest
}

func (g *fakePaymentGateway) CreateCheckoutSession(ctx context.Context, req gateway.CheckoutSessionRequest) (*gateway.CheckoutSession, error) {
	g.lastCreate = req
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &gateway.CheckoutSession{ID: "cs_test_" + req.BookingID[:8], URL: "https://checkout.stripe.com/c/pay/cs_test"}, nil
}

func (g *fakePaymentGateway) ParseEvent(payload []byte, signature string) (*gateway.PaymentEvent, error) {
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	return g.event, nil
}

// mockMeetingProvisioner and mockNotifier record calls with testify/mock.
type mockMeetingProvisioner struct {
	mock.Mock
}

func (m *mockMeetingProvisioner) CreateMeeting(ctx context.Context, req gateway.MeetingRequest) (*entity.MeetingDetails, error) {
	args := m.Called(ctx, req)
	meeting, _ := args.Get(0).(*entity.MeetingDetails)
	return meeting, args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendConfirmations(ctx context.Context, booking *entity.Booking, meeting entity.MeetingDetails) gateway.DispatchResult {
	args := m.Called(ctx, booking, meeting)
	return args.Get(0).(gateway.DispatchResult)
}

type auditEntry struct {
	bookingID *uuid.UUID
	actor     string
	action    string
	metadata  entity.JSON
}

type fakeAuditService struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (s *fakeAuditService) Record(ctx context.Context, tx *gorm.DB, bookingID *uuid.UUID, actor string, action string, metadata entity.JSON) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, auditEntry{bookingID: bookingID, actor: actor, action: action, metadata: metadata})
	return nil
}

func (s *fakeAuditService) RecordBooking(ctx context.Context, tx *gorm.DB, booking *entity.Booking, actor string, action string, metadata entity.JSON) error {
	id := booking.ID
	return s.Record(ctx, tx, &id, actor, action, metadata)
}

func (s *fakeAuditService) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.entries {
		out = append(out, e.action)
	}
	return out
}

var errStorage = errors.New("storage unavailable")
