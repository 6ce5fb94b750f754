package gateway

import (
	"context"
	"fmt"
	"strings"

	"consultation-booking/internal/domain/entity"
)

// DispatchResult carries the outcome of each confirmation message.
type DispatchResult struct {
	OperatorErr error
	CustomerErr error
}

func (r DispatchResult) Sent() bool {
	return r.OperatorErr == nil && r.CustomerErr == nil
}

// Error summarizes failed recipients, empty when both were sent.
func (r DispatchResult) Error() string {
	var parts []string
	if r.OperatorErr != nil {
		parts = append(parts, fmt.Sprintf("operator: %v", r.OperatorErr))
	}
	if r.CustomerErr != nil {
		parts = append(parts, fmt.Sprintf("customer: %v", r.CustomerErr))
	}
	return strings.Join(parts, "; ")
}

type NotificationDispatcher interface {
	SendConfirmations(ctx context.Context, booking *entity.Booking, meeting entity.MeetingDetails) DispatchResult
}
