package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// DefaultQueueName is the learning job queue.
	DefaultQueueName = "compass_learning_jobs"
	// DefaultDLQName receives jobs that were rejected or ran out of retries.
	DefaultDLQName = "compass_learning_jobs_dlq"
	// DefaultExchangeName is the direct exchange jobs are published to.
	DefaultExchangeName = "compass_jobs"
	// DefaultDelayedExchangeName needs the rabbitmq_delayed_message_exchange
	// plugin. Without it delayed retries fall back to consumer requeues.
	DefaultDelayedExchangeName = "compass_jobs_delayed"

	jobsRoutingKey = "jobs"
	dlqRoutingKey  = "dlq"
)

// topology names the exchanges and queues one RabbitMQQueue uses.
type topology struct {
	queue           string
	dlq             string
	exchange        string
	delayedExchange string
}

func defaultTopology() topology {
	return topology{
		queue:           DefaultQueueName,
		dlq:             DefaultDLQName,
		exchange:        DefaultExchangeName,
		delayedExchange: DefaultDelayedExchangeName,
	}
}

// queueArgs dead-letters rejected jobs onto the DLQ. Passive declares must
// repeat them exactly.
func (t topology) queueArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    t.exchange,
		"x-dead-letter-routing-key": dlqRoutingKey,
	}
}

// declarer is the subset of *amqp.Channel that setup needs.
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// declare creates the durable exchange, DLQ and job queue. The job queue is
// also bound to the delayed exchange when withDelayed is set.
func (t topology) declare(ch declarer, withDelayed bool) error {
	if err := ch.ExchangeDeclare(t.exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", t.exchange, err)
	}
	if _, err := ch.QueueDeclare(t.dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ %s: %w", t.dlq, err)
	}
	if err := ch.QueueBind(t.dlq, dlqRoutingKey, t.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(t.queue, true, false, false, false, t.queueArgs()); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", t.queue, err)
	}
	if err := ch.QueueBind(t.queue, jobsRoutingKey, t.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	if withDelayed {
		if err := ch.QueueBind(t.queue, jobsRoutingKey, t.delayedExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue to delayed exchange: %w", err)
		}
	}
	return nil
}

// RabbitMQQueue implements JobQueue using RabbitMQ
type RabbitMQQueue struct {
	conn             *amqp.Connection
	mu               sync.Mutex // guards channel
	channel          *amqp.Channel
	logger           *zap.Logger
	topo             topology
	delayedAvailable bool
}

var (
	_ JobQueue  = (*RabbitMQQueue)(nil)
	_ DLQPurger = (*RabbitMQQueue)(nil)
)

// NewRabbitMQQueue dials amqpURL and declares the job topology.
func NewRabbitMQQueue(amqpURL string, logger *zap.Logger) (*RabbitMQQueue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	q := &RabbitMQQueue{conn: conn, logger: logger, topo: defaultTopology()}
	q.delayedAvailable = q.probeDelayedExchange()

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := q.topo.declare(ch, q.delayedAvailable); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set up queues: %w", err)
	}
	q.channel = ch
	return q, nil
}

// probeDelayedExchange declares the delayed exchange on a throwaway channel,
// since the broker closes the channel when the plugin is missing.
func (q *RabbitMQQueue) probeDelayedExchange() bool {
	ch, err := q.conn.Channel()
	if err != nil {
		return false
	}
	defer func() { _ = ch.Close() }()

	err = ch.ExchangeDeclare(q.topo.delayedExchange, "x-delayed-message", true, false, false, false,
		amqp.Table{"x-delayed-type": "direct"})
	if err != nil {
		q.logger.Warn("delayed_exchange_unavailable",
			zap.String("exchange", q.topo.delayedExchange),
			zap.Error(err),
		)
		return false
	}
	return true
}

// publishing builds the message for job and picks its exchange. Jobs with
// a future NotBefore go through the delayed exchange when it exists.
func (t topology) publishing(job *Job, body []byte, delayed bool, now time.Time) (string, amqp.Publishing) {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    job.DedupKey(),
		Type:         string(job.Type),
		Timestamp:    job.CreatedAt,
	}
	if job.NotAfter != nil {
		if ttl := job.NotAfter.Sub(now); ttl > 0 {
			msg.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
		}
	}

	exchange := t.exchange
	if delayed && job.NotBefore != nil {
		if delay := job.NotBefore.Sub(now); delay > 0 {
			exchange = t.delayedExchange
			msg.Headers = amqp.Table{"x-delay": delay.Milliseconds()}
		}
	}
	return exchange, msg
}

// Enqueue publishes job persistently.
func (q *RabbitMQQueue) Enqueue(ctx context.Context, job *Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	exchange, msg := q.topo.publishing(job, body, q.delayedAvailable, time.Now())

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.channel.PublishWithContext(ctx, exchange, jobsRoutingKey, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish job %s: %w", job.DedupKey(), err)
	}
	return nil
}

// deliveryAction is what the consumer does with a raw delivery before any
// handler sees it.
type deliveryAction int

const (
	deliverToHandler deliveryAction = iota
	deadLetter
	requeueNotDue
)

var errMalformedJob = errors.New("malformed job")

// decodeDelivery parses body and decides whether the job is handed out.
// Malformed and expired jobs are dead-lettered; jobs not yet due go back.
func decodeDelivery(body []byte) (*Job, deliveryAction, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, deadLetter, fmt.Errorf("%w: %v", errMalformedJob, err)
	}
	if job.IsExpired() {
		return &job, deadLetter, nil
	}
	if !job.ShouldProcess() {
		return &job, requeueNotDue, nil
	}
	return &job, deliverToHandler, nil
}

// Consume starts delivering jobs on a dedicated channel with the given
// prefetch. Both returned channels close when ctx is cancelled or the
// broker goes away; the caller settles every Message it receives.
func (q *RabbitMQQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error) {
	consumeCh, err := q.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer channel: %w", err)
	}
	if err := consumeCh.Qos(prefetchCount, 0, false); err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}
	deliveries, err := consumeCh.Consume(q.topo.queue, "", false, false, false, false, nil)
	if err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	msgChan := make(chan *Message, prefetchCount)
	errChan := make(chan error, 1)

	// Errors are dropped rather than blocking delivery when nobody reads.
	report := func(err error) {
		select {
		case errChan <- err:
		default:
			q.logger.Warn("queue_error_dropped", zap.Error(err))
		}
	}

	go func() {
		defer close(msgChan)
		defer close(errChan)
		defer func() { _ = consumeCh.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					report(fmt.Errorf("delivery channel closed"))
					return
				}

				job, action, err := decodeDelivery(delivery.Body)
				switch action {
				case deadLetter:
					_ = delivery.Nack(false, false)
					if err != nil {
						report(err)
					}
					continue
				case requeueNotDue:
					_ = delivery.Nack(false, true)
					continue
				}

				msg := &Message{
					Job:         job,
					DeliveryTag: delivery.DeliveryTag,
					Redelivered: delivery.Redelivered,
					acker:       consumeCh,
				}
				select {
				case <-ctx.Done():
					_ = delivery.Nack(false, true)
					return
				case msgChan <- msg:
				}
			}
		}
	}()

	return msgChan, errChan, nil
}

// HealthCheck verifies the connection is open and the job queue exists.
func (q *RabbitMQQueue) HealthCheck(ctx context.Context) error {
	if q.conn == nil || q.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open health check channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclarePassive(q.topo.queue, true, false, false, false, q.topo.queueArgs()); err != nil {
		return fmt.Errorf("queue %s unavailable: %w", q.topo.queue, err)
	}
	return nil
}

// PurgeOlderThan drops dead-lettered jobs published more than retention ago.
// The DLQ is drained in order and the first younger message stops the pass.
func (q *RabbitMQQueue) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return 0, fmt.Errorf("failed to open purge channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	info, err := ch.QueueDeclarePassive(q.topo.dlq, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect DLQ: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	purged := 0
	for i := 0; i < info.Messages; i++ {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		delivery, ok, err := ch.Get(q.topo.dlq, false)
		if err != nil {
			return purged, fmt.Errorf("failed to read DLQ: %w", err)
		}
		if !ok {
			break
		}
		if delivery.Timestamp.IsZero() || delivery.Timestamp.After(cutoff) {
			if err := delivery.Nack(false, true); err != nil {
				return purged, fmt.Errorf("failed to return DLQ message: %w", err)
			}
			break
		}
		if err := delivery.Ack(false); err != nil {
			return purged, fmt.Errorf("failed to drop DLQ message: %w", err)
		}
		purged++
	}
	return purged, nil
}

// Close closes the publish channel and the connection.
func (q *RabbitMQQueue) Close() error {
	var err error
	if q.channel != nil {
		err = q.channel.Close()
	}
	if q.conn != nil {
		if closeErr := q.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
