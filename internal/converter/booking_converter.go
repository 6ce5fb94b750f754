package converter

import (
	"consultation-booking/internal/delivery/dto"
	"consultation-booking/internal/domain/entity"
)

// BookingToResponse converts a Booking entity to the customer-facing DTO
func BookingToResponse(booking *entity.Booking) *dto.BookingResponse {
	if booking == nil {
		return nil
	}

	response := &dto.BookingResponse{
		ID:                booking.ID,
		CustomerName:      booking.CustomerName,
		CustomerEmail:     booking.CustomerEmail,
		ServiceName:       booking.ServiceName,
		Date:              booking.Date,
		Time:              booking.Time,
		Timezone:          booking.Timezone,
		Duration:          booking.Duration,
		Price:             booking.Price,
		Currency:          booking.Currency,
		Status:            string(booking.Status),
		PaymentStatus:     string(booking.PaymentStatus),
		Stage:             string(booking.FulfillmentStage()),
		MeetingCreated:    booking.MeetingCreated,
		NotificationsSent: booking.NotificationsSent,
		CreatedAt:         booking.CreatedAt,
	}

	// Meeting details only once they are valid
	if booking.MeetingCreated {
		response.MeetingID = booking.MeetingID
		response.MeetingJoinURL = booking.MeetingJoinURL
		response.MeetingPassword = booking.MeetingPassword
	}

	return response
}

// BookingToAdminResponse converts a Booking entity to the operator DTO
func BookingToAdminResponse(booking *entity.Booking) *dto.AdminBookingResponse {
	if booking == nil {
		return nil
	}

	return &dto.AdminBookingResponse{
		BookingResponse:      *BookingToResponse(booking),
		CustomerPhone:        booking.CustomerPhone,
		ServiceID:            booking.ServiceID,
		Message:              booking.Message,
		PaymentSessionID:     booking.PaymentSessionID,
		MeetingStartURL:      booking.MeetingStartURL,
		MeetingError:         booking.MeetingError,
		NotificationError:    booking.NotificationError,
		NeedsAttention:       booking.IsConfirmed() && !booking.IsFulfilled(),
		FulfillmentClaimedAt: booking.FulfillmentClaimedAt,
		CancelledAt:          booking.CancelledAt,
		UpdatedAt:            booking.UpdatedAt,
	}
}

// BookingsToAdminResponses converts a slice of Booking entities to operator DTOs
func BookingsToAdminResponses(bookings []entity.Booking) []dto.AdminBookingResponse {
	responses := make([]dto.AdminBookingResponse, len(bookings))
	for i := range bookings {
		responses[i] = *BookingToAdminResponse(&bookings[i])
	}
	return responses
}
