package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/jobs"
	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/Guizzs26/go-saksstatistikk/pkg/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// JobHandler runs one sync job
type JobHandler interface {
	Handle(ctx context.Context, entry jobs.Entry) error
}

// DeadLetterHandler is told about every job the consumer gave up on
type DeadLetterHandler interface {
	HandleDeadLetter(ctx context.Context, body []byte, reason string) error
}

// RabbitMQConsumer runs one goroutine per shard queue. Prefetch 1 per shard keeps jobs of the same
// case strictly sequential while different shards progress in parallel
type RabbitMQConsumer struct {
	conn       *amqp.Connection
	handler    JobHandler
	feedback   DeadLetterHandler
	shards     int
	retryDelay time.Duration
	logger     *slog.Logger
}

func NewRabbitMQConsumer(url string, shards int, handler JobHandler, feedback DeadLetterHandler, logger *slog.Logger) (*RabbitMQConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	defer ch.Close()
	if err := DeclareTopology(ch, shards); err != nil {
		conn.Close()
		return nil, err
	}

	return &RabbitMQConsumer{
		conn:       conn,
		handler:    handler,
		feedback:   feedback,
		shards:     shards,
		retryDelay: 5 * time.Second,
		logger:     logger,
	}, nil
}

// Listen consumes every shard until ctx ends or a channel breaks
func (c *RabbitMQConsumer) Listen(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for shard := 0; shard < c.shards; shard++ {
		msgs, err := c.subscribe(jobs.ShardQueue(shard))
		if err != nil {
			return err
		}
		shard := shard
		g.Go(func() error { return c.consumeShard(gctx, shard, msgs) })
	}

	if c.feedback != nil {
		msgs, err := c.subscribe(SyncDeadLetters)
		if err != nil {
			return err
		}
		g.Go(func() error { return c.consumeDeadLetters(gctx, msgs) })
	}

	c.logger.Info("Consumer is online and waiting for jobs", "shards", c.shards)
	return g.Wait()
}

func (c *RabbitMQConsumer) subscribe(queue string) (<-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	// QoS: Prefetch 1 ensures we process messages one by one, maintaining strict order
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer on %s: %w", queue, err)
	}
	return msgs, nil
}

func (c *RabbitMQConsumer) consumeShard(ctx context.Context, shard int, msgs <-chan amqp.Delivery) error {
	label := strconv.Itoa(shard)
	l := c.logger.With("shard", shard)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("shard %d: message channel closed", shard)
			}
			if !c.settle(ctx, l, label, d) {
				return nil
			}
		}
	}
}

// settle runs one job and acks, dead-letters or requeues it. It returns false when ctx ended while
// a retry was being throttled
func (c *RabbitMQConsumer) settle(ctx context.Context, l *slog.Logger, label string, d amqp.Delivery) bool {
	var entry jobs.Entry
	if err := json.Unmarshal(d.Body, &entry); err != nil {
		l.Error("Failed to unmarshal job", "error", err)
		metrics.ConsumerMessages.WithLabelValues("fatal", label).Inc()
		d.Nack(false, false) // Drop malformed messages
		return true
	}

	err := c.handler.Handle(ctx, entry)
	switch {
	case err == nil:
		metrics.ConsumerMessages.WithLabelValues("success", label).Inc()
		// Manual Ack: Only confirmed after the handler committed
		if err := d.Ack(false); err != nil {
			l.Error("Failed to Ack job", "correlation_id", entry.CorrelationID, "error", err)
		}
	case models.IsFatal(err):
		metrics.ConsumerMessages.WithLabelValues("fatal", label).Inc()
		l.Error("Job can never succeed, dead-lettering", "correlation_id", entry.CorrelationID, "error", err)
		d.Nack(false, false)
	default:
		metrics.ConsumerMessages.WithLabelValues("transient", label).Inc()
		l.Error("Processing failed, requeueing", "correlation_id", entry.CorrelationID, "error", err)
		if !sleep(ctx, c.retryDelay) { // Throttling retries
			d.Nack(false, true)
			return false
		}
		d.Nack(false, true) // Requeue for another attempt
	}
	return true
}

func (c *RabbitMQConsumer) consumeDeadLetters(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("dead letter channel closed")
			}
			if !c.settleDeadLetter(ctx, d) {
				return nil
			}
		}
	}
}

// settleDeadLetter records one dead-lettered job. The message stays on the DLQ until the outbox
// row is marked, so a failed write is requeued after the retry delay. Only a body that can never
// be recorded is dropped
func (c *RabbitMQConsumer) settleDeadLetter(ctx context.Context, d amqp.Delivery) bool {
	reason, _ := d.Headers["x-first-death-reason"].(string)
	err := c.feedback.HandleDeadLetter(ctx, d.Body, reason)
	if err != nil && models.IsFatal(err) {
		c.logger.Error("Dropping unreadable dead letter", "error", err)
		d.Nack(false, false)
		return true
	}
	if err != nil {
		c.logger.Error("Failed to record dead letter, requeueing", "reason", reason, "error", err)
		if !sleep(ctx, c.retryDelay) {
			d.Nack(false, true)
			return false
		}
		d.Nack(false, true)
		return true
	}
	if err := d.Ack(false); err != nil {
		c.logger.Error("Failed to Ack dead letter", "error", err)
	}
	return true
}

// Close gracefully terminates RabbitMQ resources
func (c *RabbitMQConsumer) Close() {
	c.logger.Info("Shutting down RabbitMQ consumer")
	c.conn.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
