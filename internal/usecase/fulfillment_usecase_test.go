package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"consultation-booking/internal/domain/entity"
	"consultation-booking/internal/domain/gateway"
	"consultation-booking/pkg/retry"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func confirmedBooking(t *testing.T, h *harness) *entity.Booking {
	t.Helper()
	booking := pendingBooking(testDate, testLabel)
	booking.Timezone = "Europe/London"
	require.NoError(t, h.writer.Confirm(context.Background(), booking))
	return booking
}

func TestFulfillmentUsecase_Fulfill(t *testing.T) {
	h := newHarness(t)
	booking := confirmedBooking(t, h)

	h.meetings.On("CreateMeeting", mock.Anything, mock.MatchedBy(func(req gateway.MeetingRequest) bool {
		return req.BookingID == booking.ID.String() &&
			req.Date == testDate && req.Time == testLabel && req.Timezone == "Europe/London"
	})).Return(providerMeeting, nil).Once()
	h.notifier.On("SendConfirmations", mock.Anything, mock.MatchedBy(func(b *entity.Booking) bool {
		return b.MeetingCreated && b.MeetingJoinURL == providerMeeting.JoinURL
	}), *providerMeeting).Return(gateway.DispatchResult{}).Once()

	require.NoError(t, h.fulfillment.Fulfill(context.Background(), booking.ID))

	stored := h.repo.get(booking.ID)
	assert.Equal(t, entity.BookingStatusConfirmed, stored.Status)
	assert.True(t, stored.MeetingCreated)
	assert.Equal(t, providerMeeting.ID, stored.MeetingID)
	assert.True(t, stored.NotificationsSent)
	assert.Nil(t, stored.FulfillmentClaimedAt)
	assert.Equal(t, entity.StageNotified, stored.FulfillmentStage())

	assert.Subset(t, h.audit.actions(), []string{entity.AuditActionMeetingCreated, entity.AuditActionNotified})
	h.meetings.AssertExpectations(t)
	h.notifier.AssertExpectations(t)
}

func TestFulfillmentUsecase_MeetingFailureKeepsBookingConfirmed(t *testing.T) {
	h := newHarness(t)
	booking := confirmedBooking(t, h)

	h.meetings.On("CreateMeeting", mock.Anything, mock.Anything).Return(nil, errors.New("meeting provider unavailable: status 503")).Once()

	err := h.fulfillment.Fulfill(context.Background(), booking.ID)
	assert.Error(t, err)

	stored := h.repo.get(booking.ID)
	assert.Equal(t, entity.BookingStatusConfirmed, stored.Status)
	assert.False(t, stored.MeetingCreated)
	assert.Contains(t, stored.MeetingError, "503")
	assert.False(t, stored.NotificationsSent)
	assert.Nil(t, stored.FulfillmentClaimedAt)
	assert.Equal(t, entity.StageMeetingFailed, stored.FulfillmentStage())

	h.notifier.AssertNotCalled(t, "SendConfirmations", mock.Anything, mock.Anything, mock.Anything)
	assert.Contains(t, h.audit.actions(), entity.AuditActionMeetingFailed)

	// operator retry provisions the meeting this time
	_, err = h.fulfillment.Requeue(context.Background(), booking.ID)
	require.NoError(t, err)

	h.meetings.On("CreateMeeting", mock.Anything, mock.Anything).Return(providerMeeting, nil).Once()
	h.notifier.On("SendConfirmations", mock.Anything, mock.Anything, mock.Anything).Return(gateway.DispatchResult{}).Once()
	require.NoError(t, h.fulfillment.Fulfill(context.Background(), h.queue.jobs[0].BookingID))

	stored = h.repo.get(booking.ID)
	assert.True(t, stored.IsFulfilled())
	assert.Empty(t, stored.MeetingError)
}

func TestFulfillmentUsecase_NotificationFailureIsRecorded(t *testing.T) {
	h := newHarness(t)
	booking := confirmedBooking(t, h)

	h.meetings.On("CreateMeeting", mock.Anything, mock.Anything).Return(providerMeeting, nil).Once()
	h.notifier.On("SendConfirmations", mock.Anything, mock.Anything, mock.Anything).
		Return(gateway.DispatchResult{CustomerErr: errors.New("mailbox unavailable")}).Once()

	require.NoError(t, h.fulfillment.Fulfill(context.Background(), booking.ID))

	stored := h.repo.get(booking.ID)
	assert.True(t, stored.MeetingCreated)
	assert.False(t, stored.NotificationsSent)
	assert.Equal(t, "customer: mailbox unavailable", stored.NotificationError)
	assert.Equal(t, entity.StageNotifyFailed, stored.FulfillmentStage())

	// a retry only resends mail
	h.notifier.On("SendConfirmations", mock.Anything, mock.Anything, *providerMeeting).Return(gateway.DispatchResult{}).Once()
	require.NoError(t, h.fulfillment.Fulfill(context.Background(), booking.ID))

	h.meetings.AssertNumberOfCalls(t, "CreateMeeting", 1)
	assert.True(t, h.repo.get(booking.ID).NotificationsSent)
}

func TestFulfillmentUsecase_ConcurrentJobsProvisionOnce(t *testing.T) {
	h := newHarness(t)
	booking := confirmedBooking(t, h)

	h.meetings.On("CreateMeeting", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(10 * time.Millisecond) }).
		Return(providerMeeting, nil)
	h.notifier.On("SendConfirmations", mock.Anything, mock.Anything, mock.Anything).Return(gateway.DispatchResult{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.fulfillment.Fulfill(context.Background(), booking.ID))
		}()
	}
	wg.Wait()

	h.meetings.AssertNumberOfCalls(t, "CreateMeeting", 1)
	h.notifier.AssertNumberOfCalls(t, "SendConfirmations", 1)
}

func TestFulfillmentUsecase_SkipsIneligibleBookings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pending := pendingBooking(testDate, testLabel)
	require.NoError(t, h.writer.ReservePending(ctx, pending))

	assert.NoError(t, h.fulfillment.Fulfill(ctx, pending.ID))
	assert.NoError(t, h.fulfillment.Fulfill(ctx, uuid.New()))
	h.meetings.AssertNotCalled(t, "CreateMeeting", mock.Anything, mock.Anything)
}

func TestFulfillmentUsecase_ExpiredClaimCanBeTakenOver(t *testing.T) {
	h := newHarness(t)
	booking := confirmedBooking(t, h)

	stale := time.Now().Add(-time.Hour)
	rows, err := h.repo.ClaimFulfillment(h.db, booking.ID, stale, 5*time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)

	h.meetings.On("CreateMeeting", mock.Anything, mock.Anything).Return(providerMeeting, nil).Once()
	h.notifier.On("SendConfirmations", mock.Anything, mock.Anything, mock.Anything).Return(gateway.DispatchResult{}).Once()

	require.NoError(t, h.fulfillment.Fulfill(context.Background(), booking.ID))
	stored := h.repo.get(booking.ID)
	assert.True(t, stored.IsFulfilled())
}

func TestFulfillmentUsecase_MeetingWriteIsRetried(t *testing.T) {
	h := newHarness(t)
	h.fulfillment.recordRetry = retry.Policy{MaxAttempts: 3}
	ctx := context.Background()
	booking := confirmedBooking(t, h)
	h.repo.meetingWriteFailures = 1

	h.meetings.On("CreateMeeting", mock.Anything, mock.Anything).Return(providerMeeting, nil)
	h.notifier.On("SendConfirmations", mock.Anything, mock.Anything, mock.Anything).Return(gateway.DispatchResult{})

	require.NoError(t, h.fulfillment.Fulfill(ctx, booking.ID))

	stored := h.repo.get(booking.ID)
	assert.True(t, stored.MeetingCreated)
	assert.Equal(t, providerMeeting.ID, stored.MeetingID)
	assert.True(t, stored.NotificationsSent)

	_, err := h.fulfillment.Requeue(ctx, booking.ID)
	assert.ErrorIs(t, err, ErrNothingToFulfill)
	require.NoError(t, h.fulfillment.Fulfill(ctx, booking.ID))

	h.meetings.AssertNumberOfCalls(t, "CreateMeeting", 1)
	h.notifier.AssertNumberOfCalls(t, "SendConfirmations", 1)
}

func TestFulfillmentUsecase_UnrecordedMeetingStopsBeforeNotifying(t *testing.T) {
	h := newHarness(t)
	h.fulfillment.recordRetry = retry.Policy{MaxAttempts: 3}
	ctx := context.Background()
	booking := confirmedBooking(t, h)
	h.repo.meetingWriteFailures = 3

	h.meetings.On("CreateMeeting", mock.Anything, mock.Anything).Return(providerMeeting, nil)

	err := h.fulfillment.Fulfill(ctx, booking.ID)
	assert.ErrorIs(t, err, errStorage)

	stored := h.repo.get(booking.ID)
	assert.False(t, stored.MeetingCreated)
	assert.False(t, stored.NotificationsSent)
	assert.NotNil(t, stored.FulfillmentClaimedAt)
	assert.Contains(t, h.audit.actions(), entity.AuditActionMeetingFailed)

	// the held claim keeps a second job from provisioning again
	require.NoError(t, h.fulfillment.Fulfill(ctx, booking.ID))
	h.meetings.AssertNumberOfCalls(t, "CreateMeeting", 1)
	h.notifier.AssertNotCalled(t, "SendConfirmations", mock.Anything, mock.Anything, mock.Anything)
}

func TestFulfillmentUsecase_Requeue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.fulfillment.Requeue(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrBookingNotFound)

	pending := pendingBooking(testDate, "9:00 AM")
	require.NoError(t, h.writer.ReservePending(ctx, pending))
	_, err = h.fulfillment.Requeue(ctx, pending.ID)
	assert.ErrorIs(t, err, ErrNothingToFulfill)

	booking := confirmedBooking(t, h)
	resp, err := h.fulfillment.Requeue(ctx, booking.ID)
	require.NoError(t, err)
	assert.True(t, resp.Queued)
	require.Len(t, h.queue.jobs, 1)
	assert.Contains(t, h.audit.actions(), entity.AuditActionFulfillmentRequeued)

	require.NoError(t, h.repo.RecordMeeting(h.db, booking.ID, *providerMeeting))
	require.NoError(t, h.repo.RecordNotification(h.db, booking.ID, true, ""))
	_, err = h.fulfillment.Requeue(ctx, booking.ID)
	assert.ErrorIs(t, err, ErrNothingToFulfill)
}
