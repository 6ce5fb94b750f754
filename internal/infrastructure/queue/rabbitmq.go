package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"consultation-booking/config"
	"consultation-booking/internal/domain/gateway"
	"consultation-booking/pkg/retry"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

// ErrDeliveriesClosed is returned when the broker closes the consumer
// while the subscriber still wants jobs.
var ErrDeliveriesClosed = errors.New("rabbitmq deliveries closed")

// DefaultReconnect redials for roughly a minute before giving up.
var DefaultReconnect = retry.Policy{MaxAttempts: 10, Delay: retry.Linear(time.Second)}

// RabbitMQ publishes fulfillment jobs to a durable topic exchange and
// consumes them from a durable queue bound to gateway.FulfillmentRoutingKey.
type RabbitMQ struct {
	url       string
	mu        sync.Mutex // guards conn and pubCh
	conn      *amqp.Connection
	pubCh     *amqp.Channel
	exchange  string
	queue     string
	workers   int
	reconnect retry.Policy
	log       *logrus.Logger
}

func NewRabbitMQ(cfg config.QueueConfig, workers int, log *logrus.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, gateway.FulfillmentRoutingKey, cfg.Exchange, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("bind %s: %w", gateway.FulfillmentRoutingKey, err)
	}
	if workers <= 0 {
		workers = 1
	}

	return &RabbitMQ{
		url:       cfg.URL,
		conn:      conn,
		pubCh:     ch,
		exchange:  cfg.Exchange,
		queue:     q.Name,
		workers:   workers,
		reconnect: DefaultReconnect,
		log:       log,
	}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, job gateway.FulfillmentJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pubCh.PublishWithContext(ctx, r.exchange, gateway.FulfillmentRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.BookingID.String(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// Subscribe consumes until ctx is done. A dropped connection is redialed;
// an error is returned only once reconnecting is given up.
func (r *RabbitMQ) Subscribe(ctx context.Context, handle gateway.JobHandler) error {
	for {
		err := r.subscribeOnce(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		if !errors.Is(err, ErrDeliveriesClosed) {
			return err
		}

		r.log.Warnf("Fulfillment consumer lost its channel, reconnecting: %v", err)
		if err := r.redial(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: reconnect failed: %v", ErrDeliveriesClosed, err)
		}
		r.log.Info("Fulfillment consumer reconnected")
	}
}

func (r *RabbitMQ) subscribeOnce(ctx context.Context, handle gateway.JobHandler) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	ch, err := conn.Channel()
	if err != nil {
		if conn.IsClosed() {
			return fmt.Errorf("%w: %v", ErrDeliveriesClosed, err)
		}
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(r.workers, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, r.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", r.queue, err)
	}

	return r.consume(ctx, deliveries, handle)
}

// consume dispatches deliveries until the channel closes. A close that ctx
// did not cause is reported as ErrDeliveriesClosed.
func (r *RabbitMQ) consume(ctx context.Context, deliveries <-chan amqp.Delivery, handle gateway.JobHandler) error {
	p := pool.New().WithMaxGoroutines(r.workers)
	for d := range deliveries {
		d := d
		p.Go(func() {
			r.dispatch(ctx, d, handle)
		})
	}
	p.Wait()

	if ctx.Err() != nil {
		return nil
	}
	return ErrDeliveriesClosed
}

// redial replaces the connection and publishing channel.
func (r *RabbitMQ) redial(ctx context.Context) error {
	return r.reconnect.Do(ctx, func(ctx context.Context, attempt int) error {
		conn, err := amqp.Dial(r.url)
		if err != nil {
			return fmt.Errorf("dial rabbitmq: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("open channel: %w", err)
		}

		r.mu.Lock()
		oldConn := r.conn
		r.conn, r.pubCh = conn, ch
		r.mu.Unlock()

		if oldConn != nil && !oldConn.IsClosed() {
			_ = oldConn.Close()
		}
		return nil
	}, func(err error, wait time.Duration) {
		r.log.Warnf("RabbitMQ reconnect failed, retrying in %s: %v", wait, err)
	})
}

func (r *RabbitMQ) dispatch(ctx context.Context, d amqp.Delivery, handle gateway.JobHandler) {
	var job gateway.FulfillmentJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		r.log.Errorf("Dropping malformed fulfillment job: %+v", err)
		_ = d.Nack(false, false)
		return
	}

	if err := handle(ctx, job); err != nil {
		// The failure is recorded on the booking; redelivery would only repeat it.
		r.log.Warnf("Job for booking %s failed: %+v", job.BookingID, err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubCh != nil {
		_ = r.pubCh.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
