package usecase

import (
	"context"
	"errors"
	"testing"

	"consultation-booking/internal/domain/entity"
	"consultation-booking/internal/domain/gateway"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPaymentEventUsecase_CompletedConfirmsAndQueues(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()
	h.payments.event = completedEvent(id, "evt_1")

	resp, err := h.events.HandleWebhook(context.Background(), []byte(`{}`), "t=1,v1=sig")
	require.NoError(t, err)
	assert.True(t, resp.Received)
	assert.Equal(t, id.String(), resp.BookingID)
	assert.Empty(t, resp.Error)

	stored := h.repo.get(id)
	assert.Equal(t, entity.BookingStatusConfirmed, stored.Status)
	assert.Equal(t, 45, stored.Duration)
	assert.Equal(t, entity.DefaultTimezone, stored.Timezone)
	assert.Equal(t, "150.00", stored.Price.StringFixed(2))

	require.Len(t, h.queue.jobs, 1)
	assert.Equal(t, id, h.queue.jobs[0].BookingID)
	assert.Contains(t, h.audit.actions(), entity.AuditActionBookingConfirm)
}

func TestPaymentEventUsecase_ConfirmsPendingPlaceholder(t *testing.T) {
	h := newHarness(t)
	pending := pendingBooking(testDate, testLabel)
	require.NoError(t, h.writer.ReservePending(context.Background(), pending))

	h.payments.event = completedEvent(pending.ID, "evt_1")
	resp, err := h.events.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.Empty(t, resp.Error)
	assert.Equal(t, 1, h.repo.count())
	assert.Equal(t, entity.BookingStatusConfirmed, h.repo.get(pending.ID).Status)
}

func TestPaymentEventUsecase_RedeliveryCreatesOneBookingAndOneMeeting(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()

	h.meetings.On("CreateMeeting", mock.Anything, mock.Anything).Return(providerMeeting, nil)
	h.notifier.On("SendConfirmations", mock.Anything, mock.Anything, mock.Anything).Return(gateway.DispatchResult{})

	// same event id is deduplicated, a different id for the same session is
	// absorbed by the upsert and the fulfillment claim
	for _, eventID := range []string{"evt_1", "evt_1", "evt_2"} {
		h.payments.event = completedEvent(id, eventID)
		_, err := h.events.HandleWebhook(context.Background(), []byte(`{}`), "sig")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, h.repo.count())
	assert.Len(t, h.queue.jobs, 2)

	for _, job := range h.queue.jobs {
		require.NoError(t, h.fulfillment.Fulfill(context.Background(), job.BookingID))
	}

	h.meetings.AssertNumberOfCalls(t, "CreateMeeting", 1)
	h.notifier.AssertNumberOfCalls(t, "SendConfirmations", 1)
	stored := h.repo.get(id)
	assert.True(t, stored.IsFulfilled())
}

func TestPaymentEventUsecase_DuplicateEvent(t *testing.T) {
	h := newHarness(t)
	h.payments.event = completedEvent(uuid.New(), "evt_1")

	_, err := h.events.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	require.NoError(t, err)

	resp, err := h.events.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.True(t, resp.Duplicate)
}

func TestPaymentEventUsecase_SlotConflictNeedsRefund(t *testing.T) {
	h := newHarness(t)
	holder := pendingBooking(testDate, testLabel)
	require.NoError(t, h.writer.Confirm(context.Background(), holder))

	late := uuid.New()
	h.payments.event = completedEvent(late, "evt_late")
	resp, err := h.events.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	require.NoError(t, err)

	assert.True(t, resp.Received)
	assert.Equal(t, late.String(), resp.BookingID)
	assert.Equal(t, WebhookErrorSlotUnavailable, resp.Error)
	assert.Empty(t, h.queue.jobs)
	assert.Contains(t, h.audit.actions(), entity.AuditActionSlotConflict)
	assert.Equal(t, entity.BookingStatusConfirmed, h.repo.get(holder.ID).Status)

	h.meetings.AssertNotCalled(t, "CreateMeeting", mock.Anything, mock.Anything)
}

func TestPaymentEventUsecase_CancelledBookingIsNotRevived(t *testing.T) {
	h := newHarness(t)
	booking := pendingBooking(testDate, testLabel)
	require.NoError(t, h.writer.ReservePending(context.Background(), booking))
	_, err := h.writer.Release(context.Background(), booking, entity.BookingStatusCancelled)
	require.NoError(t, err)

	h.payments.event = completedEvent(booking.ID, "evt_1")
	resp, err := h.events.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.Equal(t, WebhookErrorBookingCanceled, resp.Error)
	assert.Equal(t, entity.BookingStatusCancelled, h.repo.get(booking.ID).Status)
	assert.Empty(t, h.queue.jobs)
}

func TestPaymentEventUsecase_ExpiredBookingIsNotRevived(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	booking := pendingBooking(testDate, testLabel)
	require.NoError(t, h.writer.ReservePending(ctx, booking))

	h.payments.event = &gateway.PaymentEvent{
		ID:       "evt_exp",
		Type:     gateway.EventCheckoutExpired,
		Metadata: map[string]string{gateway.MetaBookingID: booking.ID.String()},
	}
	_, err := h.events.HandleWebhook(ctx, []byte(`{}`), "sig")
	require.NoError(t, err)

	h.payments.event = completedEvent(booking.ID, "evt_late_pay")
	resp, err := h.events.HandleWebhook(ctx, []byte(`{}`), "sig")
	require.NoError(t, err)

	assert.True(t, resp.Received)
	assert.Equal(t, WebhookErrorBookingExpired, resp.Error)
	assert.Equal(t, entity.BookingStatusExpired, h.repo.get(booking.ID).Status)
	assert.Empty(t, h.queue.jobs)
	assert.Contains(t, h.audit.actions(), entity.AuditActionSlotConflict)
}

func TestPaymentEventUsecase_QueueFailureStillConfirms(t *testing.T) {
	h := newHarness(t)
	h.queue.err = gateway.ErrQueueFull
	id := uuid.New()
	h.payments.event = completedEvent(id, "evt_1")

	resp, err := h.events.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.Empty(t, resp.Error)
	assert.Equal(t, entity.BookingStatusConfirmed, h.repo.get(id).Status)
	assert.Contains(t, h.audit.actions(), entity.AuditActionEnqueueFailed)
}

func TestPaymentEventUsecase_StorageErrorIsRetried(t *testing.T) {
	h := newHarness(t)
	h.payments.event = completedEvent(uuid.New(), "evt_1")
	h.repo.failNext = errStorage

	_, err := h.events.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	assert.ErrorIs(t, err, errStorage)

	// not marked, so the provider's retry goes through
	resp, err := h.events.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.False(t, resp.Duplicate)
}

func TestPaymentEventUsecase_RejectsBadDeliveries(t *testing.T) {
	h := newHarness(t)

	_, err := h.events.HandleWebhook(context.Background(), []byte(`{}`), "")
	assert.ErrorIs(t, err, ErrMissingSignature)

	h.payments.parseErr = errors.New("signature mismatch")
	_, err = h.events.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	h.payments.parseErr = nil

	event := completedEvent(uuid.New(), "evt_1")
	delete(event.Metadata, gateway.MetaCustomerEmail)
	delete(event.Metadata, gateway.MetaTime)
	h.payments.event = event
	_, err = h.events.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	assert.ErrorIs(t, err, ErrMissingMetadata)
	assert.Contains(t, err.Error(), "customer_email")
	assert.Contains(t, err.Error(), "time")
	assert.Equal(t, 0, h.repo.count())
}

func TestPaymentEventUsecase_Expired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pending := pendingBooking(testDate, testLabel)
	require.NoError(t, h.writer.ReservePending(ctx, pending))
	confirmed := pendingBooking(testDate, "3:00 PM")
	require.NoError(t, h.writer.Confirm(ctx, confirmed))

	for i, id := range []uuid.UUID{pending.ID, confirmed.ID} {
		h.payments.event = &gateway.PaymentEvent{
			ID:       "evt_exp_" + string(rune('a'+i)),
			Type:     gateway.EventCheckoutExpired,
			Metadata: map[string]string{gateway.MetaBookingID: id.String()},
		}
		resp, err := h.events.HandleWebhook(ctx, []byte(`{}`), "sig")
		require.NoError(t, err)
		assert.True(t, resp.Received)
	}

	assert.Equal(t, entity.BookingStatusExpired, h.repo.get(pending.ID).Status)
	assert.Equal(t, entity.BookingStatusConfirmed, h.repo.get(confirmed.ID).Status)

	// unknown booking and unrelated events are acknowledged
	h.payments.event = &gateway.PaymentEvent{ID: "evt_x", Type: gateway.EventCheckoutExpired}
	resp, err := h.events.HandleWebhook(ctx, []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.True(t, resp.Received)

	h.payments.event = &gateway.PaymentEvent{ID: "evt_y", Type: "invoice.paid"}
	resp, err = h.events.HandleWebhook(ctx, []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.True(t, resp.Received)
}
