package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// EventFunc handles one inbound event
type EventFunc func(ctx context.Context, h models.Hendelse) error

// HendelseConsumer feeds inbound events from HendelseQueue to a pool of workers
type HendelseConsumer struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	handle     EventFunc
	workers    int
	retryDelay time.Duration
	logger     *slog.Logger
}

func NewHendelseConsumer(url string, workers int, handle EventFunc, logger *slog.Logger) (*HendelseConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := DeclareTopology(ch, 0); err != nil {
		conn.Close()
		return nil, err
	}
	// One unacked message per worker
	if err := ch.Qos(workers, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &HendelseConsumer{
		conn:       conn,
		channel:    ch,
		handle:     handle,
		workers:    workers,
		retryDelay: 2 * time.Second,
		logger:     logger,
	}, nil
}

func (c *HendelseConsumer) Listen(ctx context.Context) error {
	msgs, err := c.channel.Consume(HendelseQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < c.workers; w++ {
		w := w
		g.Go(func() error { return c.work(gctx, w, msgs) })
	}

	c.logger.Info("Event consumer is online", "queue", HendelseQueue, "workers", c.workers)
	return g.Wait()
}

func (c *HendelseConsumer) work(ctx context.Context, worker int, msgs <-chan amqp.Delivery) error {
	l := c.logger.With("worker", worker)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			var h models.Hendelse
			if err := json.Unmarshal(d.Body, &h); err != nil {
				l.Error("Failed to unmarshal event", "error", err)
				d.Nack(false, false)
				continue
			}

			err := c.handle(ctx, h)
			switch {
			case err == nil:
				d.Ack(false)
			case models.IsFatal(err):
				// Redelivery cannot fix the payload; the broker dead-letters it
				l.Warn("Event rejected", "saksnummer", h.Saksnummer, "error", err)
				d.Nack(false, false)
			default:
				l.Error("Event failed, requeueing", "saksnummer", h.Saksnummer, "error", err)
				sleep(ctx, c.retryDelay)
				d.Nack(false, true)
			}
		}
	}
}

func (c *HendelseConsumer) Close() {
	c.logger.Info("Shutting down event consumer")
	c.channel.Close()
	c.conn.Close()
}
