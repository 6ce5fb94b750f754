package handler

import (
	"errors"
	"net/http"
	"strconv"

	"consultation-booking/internal/delivery/dto"
	"consultation-booking/internal/usecase"
	"consultation-booking/pkg/response"
	"consultation-booking/pkg/validator"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type AdminBookingHandler struct {
	adminUsecase       usecase.AdminBookingUsecase
	fulfillmentUsecase usecase.FulfillmentUsecase
	validator          *validator.CustomValidator
}

func NewAdminBookingHandler(
	adminUsecase usecase.AdminBookingUsecase,
	fulfillmentUsecase usecase.FulfillmentUsecase,
	validator *validator.CustomValidator,
) *AdminBookingHandler {
	return &AdminBookingHandler{
		adminUsecase:       adminUsecase,
		fulfillmentUsecase: fulfillmentUsecase,
		validator:          validator,
	}
}

func (h *AdminBookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := dto.BookingListRequest{
		Status: q.Get("status"),
		Date:   q.Get("date"),
	}
	req.Failed, _ = strconv.ParseBool(q.Get("failed"))
	if v := q.Get("page"); v != "" {
		req.Page, _ = strconv.Atoi(v)
	}
	if v := q.Get("limit"); v != "" {
		req.Limit, _ = strconv.Atoi(v)
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	list, err := h.adminUsecase.ListBookings(r.Context(), &req)
	if err != nil {
		response.InternalServerError(w, "Failed to get bookings")
		return
	}

	response.SuccessWithMeta(w, http.StatusOK, "Bookings retrieved successfully", list.Bookings,
		response.NewMeta(list.Page, list.Limit, list.Total))
}

func (h *AdminBookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := bookingIDFromPath(w, r)
	if !ok {
		return
	}

	booking, err := h.adminUsecase.GetBooking(r.Context(), bookingID)
	if err != nil {
		if errors.Is(err, usecase.ErrBookingNotFound) {
			response.NotFound(w, "Booking not found")
			return
		}
		response.InternalServerError(w, "Failed to get booking")
		return
	}

	response.Success(w, http.StatusOK, "Booking retrieved successfully", booking)
}

func (h *AdminBookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := bookingIDFromPath(w, r)
	if !ok {
		return
	}

	booking, err := h.adminUsecase.CancelBooking(r.Context(), bookingID)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrBookingNotFound):
			response.NotFound(w, "Booking not found")
		case errors.Is(err, usecase.ErrBookingAlreadyFinal):
			response.Error(w, http.StatusConflict, "Booking is already expired or cancelled", nil)
		default:
			response.InternalServerError(w, "Failed to cancel booking")
		}
		return
	}

	response.Success(w, http.StatusOK, "Booking cancelled successfully", booking)
}

// RequeueFulfillment retries meeting creation and confirmations.
func (h *AdminBookingHandler) RequeueFulfillment(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := bookingIDFromPath(w, r)
	if !ok {
		return
	}

	queued, err := h.fulfillmentUsecase.Requeue(r.Context(), bookingID)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrBookingNotFound):
			response.NotFound(w, "Booking not found")
		case errors.Is(err, usecase.ErrNothingToFulfill):
			response.Error(w, http.StatusConflict, "Booking has nothing left to fulfill", nil)
		default:
			response.InternalServerError(w, "Failed to queue fulfillment")
		}
		return
	}

	response.Success(w, http.StatusAccepted, "Fulfillment queued", queued)
}

func bookingIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	bookingID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid booking ID", nil)
		return uuid.Nil, false
	}
	return bookingID, true
}
