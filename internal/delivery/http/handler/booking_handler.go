package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"consultation-booking/internal/delivery/dto"
	"consultation-booking/internal/usecase"
	"consultation-booking/pkg/response"
	"consultation-booking/pkg/validator"
)

const codeSlotUnavailable = "slot_unavailable"

type BookingHandler struct {
	bookingUsecase usecase.BookingUsecase
	validator      *validator.CustomValidator
}

func NewBookingHandler(bookingUsecase usecase.BookingUsecase, validator *validator.CustomValidator) *BookingHandler {
	return &BookingHandler{
		bookingUsecase: bookingUsecase,
		validator:      validator,
	}
}

// CreateCheckout handles checkout initiation
// @Summary Reserve a slot and open a checkout session
// @Tags Booking
// @Accept json
// @Produce json
// @Param request body dto.CreateCheckoutRequest true "Checkout Request"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 502 {object} response.Response
// @Router /checkout [post]
func (h *BookingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	checkout, err := h.bookingUsecase.CreateCheckout(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrSlotUnavailable):
			response.Conflict(w, codeSlotUnavailable, "This time slot is no longer available")
		case errors.Is(err, usecase.ErrSlotInPast), errors.Is(err, usecase.ErrInvalidPrice):
			response.Error(w, http.StatusBadRequest, err.Error(), nil)
		case usecase.IsValidationError(err):
			response.Error(w, http.StatusBadRequest, err.Error(), nil)
		case errors.Is(err, usecase.ErrPaymentProvider):
			response.BadGateway(w, "Failed to create checkout session")
		default:
			response.InternalServerError(w, "Failed to create checkout")
		}
		return
	}

	response.Success(w, http.StatusCreated, "Checkout session created", checkout)
}

// GetBookedSlots lists the times already held on a date.
// @Router /slots [get]
func (h *BookingHandler) GetBookedSlots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		response.Error(w, http.StatusBadRequest, "date is required", nil)
		return
	}

	slots, err := h.bookingUsecase.GetBookedSlots(r.Context(), date)
	if err != nil {
		if usecase.IsValidationError(err) {
			response.Error(w, http.StatusBadRequest, "date must be YYYY-MM-DD", nil)
			return
		}
		response.InternalServerError(w, "Failed to get booked slots")
		return
	}

	response.Success(w, http.StatusOK, "Booked slots retrieved successfully", slots)
}

// GetBookingBySession backs the checkout success page.
// @Router /bookings/lookup [get]
func (h *BookingHandler) GetBookingBySession(w http.ResponseWriter, r *http.Request) {
	booking, err := h.bookingUsecase.GetBookingBySession(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrMissingSessionID):
			response.Error(w, http.StatusBadRequest, "session_id is required", nil)
		case errors.Is(err, usecase.ErrBookingNotFound):
			response.NotFound(w, "Booking not found")
		default:
			response.InternalServerError(w, "Failed to get booking")
		}
		return
	}

	response.Success(w, http.StatusOK, "Booking retrieved successfully", booking)
}
