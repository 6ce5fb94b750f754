package gateway

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

const FulfillmentRoutingKey = "booking.fulfill"

var ErrQueueFull = errors.New("job queue is full")

// FulfillmentJob asks a worker to provision and notify for a booking.
type FulfillmentJob struct {
	BookingID uuid.UUID `json:"booking_id"`
	Reason    string    `json:"reason"`
}

// JobHandler processes a single job. A returned error is logged by the
// queue; the outcome is already recorded on the booking.
type JobHandler func(ctx context.Context, job FulfillmentJob) error

type JobQueue interface {
	Publish(ctx context.Context, job FulfillmentJob) error
	// Subscribe blocks, dispatching jobs to handle until ctx is done.
	Subscribe(ctx context.Context, handle JobHandler) error
	Close() error
}
