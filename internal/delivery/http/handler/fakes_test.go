package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"consultation-booking/internal/delivery/dto"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeBookingUsecase struct {
	checkout    *dto.CheckoutResponse
	checkoutErr error
	slots       *dto.BookedSlotsResponse
	slotsErr    error
	lookup      *dto.BookingResponse
	lookupErr   error
	lastRequest *dto.CreateCheckoutRequest
}

func (f *fakeBookingUsecase) CreateCheckout(ctx context.Context, req *dto.CreateCheckoutRequest) (*dto.CheckoutResponse, error) {
	f.lastRequest = req
	return f.checkout, f.checkoutErr
}

func (f *fakeBookingUsecase) GetBookedSlots(ctx context.Context, date string) (*dto.BookedSlotsResponse, error) {
	return f.slots, f.slotsErr
}

func (f *fakeBookingUsecase) GetBookingBySession(ctx context.Context, sessionID string) (*dto.BookingResponse, error) {
	return f.lookup, f.lookupErr
}

type fakePaymentEventUsecase struct {
	resp          *dto.WebhookResponse
	err           error
	lastPayload   []byte
	lastSignature string
}

func (f *fakePaymentEventUsecase) HandleWebhook(ctx context.Context, payload []byte, signature string) (*dto.WebhookResponse, error) {
	f.lastPayload = payload
	f.lastSignature = signature
	return f.resp, f.err
}

type fakeAdminUsecase struct {
	list     *dto.BookingListResponse
	lastList *dto.BookingListRequest
	booking  *dto.AdminBookingResponse
	err      error
}

func (f *fakeAdminUsecase) ListBookings(ctx context.Context, req *dto.BookingListRequest) (*dto.BookingListResponse, error) {
	f.lastList = req
	return f.list, f.err
}

func (f *fakeAdminUsecase) GetBooking(ctx context.Context, id uuid.UUID) (*dto.AdminBookingResponse, error) {
	return f.booking, f.err
}

func (f *fakeAdminUsecase) CancelBooking(ctx context.Context, id uuid.UUID) (*dto.AdminBookingResponse, error) {
	return f.booking, f.err
}

type fakeFulfillmentUsecase struct {
	err error
}

func (f *fakeFulfillmentUsecase) Fulfill(ctx context.Context, bookingID uuid.UUID) error {
	return nil
}

func (f *fakeFulfillmentUsecase) Requeue(ctx context.Context, bookingID uuid.UUID) (*dto.FulfillmentQueuedResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.FulfillmentQueuedResponse{BookingID: bookingID, Queued: true}, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}
