package broker

import (
	"fmt"

	"github.com/Guizzs26/go-saksstatistikk/internal/jobs"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	SyncExchange       = "saksstatistikk.sync"
	DeadLetterExchange = "saksstatistikk.dlx"
	SyncDeadLetters    = "saksstatistikk.sync.dlq"
	HendelseQueue      = "saksstatistikk.hendelser"
	HendelseDeadLetter = "saksstatistikk.hendelser.dlq"
)

// DeclareTopology makes sure every exchange and queue exists. Declarations are idempotent, so
// each process runs this on connect. Rejected messages go to the dead letter exchange under their
// original routing key
func DeclareTopology(ch *amqp.Channel, shards int) error {
	for _, ex := range []string{SyncExchange, DeadLetterExchange} {
		if err := ch.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", ex, err)
		}
	}

	quorum := amqp.Table{"x-queue-type": "quorum"}
	withDLX := amqp.Table{
		"x-queue-type":           "quorum",
		"x-dead-letter-exchange": DeadLetterExchange,
	}

	bindings := []struct {
		queue, key, exchange string
		args                 amqp.Table
	}{
		{SyncDeadLetters, "saksstatistikk.sync.#", DeadLetterExchange, quorum},
		{HendelseDeadLetter, HendelseQueue, DeadLetterExchange, quorum},
		// Published to the default exchange with the queue name as key
		{HendelseQueue, "", "", withDLX},
	}
	for shard := 0; shard < shards; shard++ {
		bindings = append(bindings, struct {
			queue, key, exchange string
			args                 amqp.Table
		}{jobs.ShardQueue(shard), jobs.ShardRoutingKey(shard), SyncExchange, withDLX})
	}

	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, b.args); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", b.queue, err)
		}
		if b.exchange == "" {
			continue
		}
		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", b.queue, err)
		}
	}
	return nil
}
