package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/jobs"
	"github.com/Guizzs26/go-saksstatistikk/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// settlement records how the consumer answered the broker for one delivery
type settlement struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue []bool
}

func (s *settlement) Ack(tag uint64, multiple bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks++
	return nil
}

func (s *settlement) Nack(tag uint64, multiple, requeue bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nacks++
	s.requeue = append(s.requeue, requeue)
	return nil
}

func (s *settlement) Reject(tag uint64, requeue bool) error {
	return s.Nack(tag, false, requeue)
}

type stubHandler struct {
	err   error
	calls int
}

func (h *stubHandler) Handle(ctx context.Context, entry jobs.Entry) error {
	h.calls++
	return h.err
}

func (h *stubHandler) HandleDeadLetter(ctx context.Context, body []byte, reason string) error {
	h.calls++
	return h.err
}

func delivery(t *testing.T, ack amqp.Acknowledger) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(jobs.NewEntry(jobs.SakSync{SakID: 3}))
	require.NoError(t, err)
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Body:         body,
		Headers:      amqp.Table{"x-first-death-reason": "rejected"},
	}
}

func newTestConsumer(h *stubHandler) *RabbitMQConsumer {
	return &RabbitMQConsumer{handler: h, feedback: h, shards: 1, retryDelay: time.Millisecond, logger: discard}
}

func TestSettle_AcksDeadLettersOrRequeues(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		acks      int
		requeue   []bool
		continues bool
	}{
		{"success acks", nil, 1, nil, true},
		{"fatal dead-letters", models.NewValidationError("x", "bad"), 0, []bool{false}, true},
		{"transient requeues", errors.New("sink down"), 0, []bool{true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &settlement{}
			h := &stubHandler{err: tt.err}
			c := newTestConsumer(h)

			assert.Equal(t, tt.continues, c.settle(context.Background(), discard, "0", delivery(t, ack)))
			assert.Equal(t, tt.acks, ack.acks)
			assert.Equal(t, tt.requeue, ack.requeue)
		})
	}
}

func TestSettle_MalformedBodyIsDropped(t *testing.T) {
	ack := &settlement{}
	h := &stubHandler{}
	d := delivery(t, ack)
	d.Body = []byte("{")

	assert.True(t, newTestConsumer(h).settle(context.Background(), discard, "0", d))
	assert.Zero(t, h.calls)
	assert.Equal(t, []bool{false}, ack.requeue)
}

func TestSettleDeadLetter_FailedRecordIsRequeued(t *testing.T) {
	ack := &settlement{}
	h := &stubHandler{err: errors.New("connection refused")}

	assert.True(t, newTestConsumer(h).settleDeadLetter(context.Background(), delivery(t, ack)))
	assert.Zero(t, ack.acks)
	assert.Equal(t, []bool{true}, ack.requeue, "the dead letter must survive until it is recorded")
}

func TestSettleDeadLetter_RecordedIsAcked(t *testing.T) {
	ack := &settlement{}

	assert.True(t, newTestConsumer(&stubHandler{}).settleDeadLetter(context.Background(), delivery(t, ack)))
	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
}

func TestSettleDeadLetter_UnreadableBodyIsDropped(t *testing.T) {
	ack := &settlement{}
	h := &stubHandler{err: models.NewValidationError("body", "is not a job record")}

	assert.True(t, newTestConsumer(h).settleDeadLetter(context.Background(), delivery(t, ack)))
	assert.Equal(t, []bool{false}, ack.requeue)
}

func TestSettleDeadLetter_ShutdownStillRequeues(t *testing.T) {
	ack := &settlement{}
	h := &stubHandler{err: errors.New("connection refused")}
	c := newTestConsumer(h)
	c.retryDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, c.settleDeadLetter(ctx, delivery(t, ack)))
	assert.Equal(t, []bool{true}, ack.requeue)
}
