package queue

import (
	"context"
	"errors"
	"sync"

	"consultation-booking/internal/domain/gateway"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

var ErrQueueClosed = errors.New("job queue is closed")

// Local is an in-process job queue backed by a bounded channel. Jobs are
// lost on restart; use RabbitMQ when that matters.
type Local struct {
	jobs    chan gateway.FulfillmentJob
	workers int
	log     *logrus.Logger

	mu     sync.RWMutex
	closed bool
}

func NewLocal(buffer, workers int, log *logrus.Logger) *Local {
	if buffer <= 0 {
		buffer = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &Local{
		jobs:    make(chan gateway.FulfillmentJob, buffer),
		workers: workers,
		log:     log,
	}
}

func (q *Local) Publish(ctx context.Context, job gateway.FulfillmentJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return gateway.ErrQueueFull
	}
}

func (q *Local) Subscribe(ctx context.Context, handle gateway.JobHandler) error {
	p := pool.New().WithMaxGoroutines(q.workers)
	for i := 0; i < q.workers; i++ {
		p.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-q.jobs:
					if !ok {
						return
					}
					if err := handle(ctx, job); err != nil {
						q.log.Warnf("Job for booking %s failed: %+v", job.BookingID, err)
					}
				}
			}
		})
	}
	p.Wait()
	return nil
}

// Close stops accepting jobs. Subscribers drain what is buffered and return.
func (q *Local) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}
