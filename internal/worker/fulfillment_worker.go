package worker

import (
	"context"
	"time"

	"consultation-booking/internal/domain/gateway"
	"consultation-booking/internal/usecase"

	"github.com/sirupsen/logrus"
)

const defaultJobTimeout = 2 * time.Minute

// FulfillmentWorker drains the job queue into the fulfillment pipeline.
type FulfillmentWorker struct {
	queue       gateway.JobQueue
	fulfillment usecase.FulfillmentUsecase
	timeout     time.Duration
	log         *logrus.Logger
}

func NewFulfillmentWorker(queue gateway.JobQueue, fulfillment usecase.FulfillmentUsecase, timeout time.Duration, log *logrus.Logger) *FulfillmentWorker {
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	return &FulfillmentWorker{
		queue:       queue,
		fulfillment: fulfillment,
		timeout:     timeout,
		log:         log,
	}
}

// Run blocks until ctx is done or the queue stops delivering.
func (w *FulfillmentWorker) Run(ctx context.Context) error {
	w.log.Info("Fulfillment worker started")
	defer w.log.Info("Fulfillment worker stopped")
	return w.queue.Subscribe(ctx, w.handle)
}

func (w *FulfillmentWorker) handle(ctx context.Context, job gateway.FulfillmentJob) error {
	jobCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	w.log.WithFields(logrus.Fields{
		"booking_id": job.BookingID.String(),
		"reason":     job.Reason,
	}).Debug("Processing fulfillment job")

	return w.fulfillment.Fulfill(jobCtx, job.BookingID)
}
