package gateway

import (
	"context"

	"consultation-booking/internal/domain/entity"
)

type MeetingRequest struct {
	BookingID    string
	ServiceName  string
	CustomerName string
	Date         string
	Time         string
	Timezone     string
	Duration     int
	Agenda       string
}

type MeetingProvisioner interface {
	CreateMeeting(ctx context.Context, req MeetingRequest) (*entity.MeetingDetails, error)
}
