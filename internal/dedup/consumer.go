package dedup

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Alkatripathi-004/chat-fanout/internal/broker"
	"github.com/Alkatripathi-004/chat-fanout/internal/domain"
	"github.com/Alkatripathi-004/chat-fanout/pkg/log"
)

// DeadLetterRecord is the payload published for a message that
// exhausted its redelivery budget.
type DeadLetterRecord struct {
	MessageID     string          `json:"messageId"`
	RoomID        string          `json:"roomId"`
	Original      json.RawMessage `json:"original"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"lastError,omitempty"`
	FirstFailedAt time.Time       `json:"firstFailedAt"`
	LastAttemptAt time.Time       `json:"lastAttemptAt"`
}

type failureState struct {
	attempts      int
	firstFailedAt time.Time
}

// Consumer filters duplicate messages out of the work stream and
// republishes survivors to the broadcast topic. The original delivery
// is acked only after the republish succeeds; a failed republish is
// nacked for broker redelivery until the attempt cap, after which the
// message is dead-lettered instead of cycling forever.
type Consumer struct {
	ledger       Ledger
	broadcast    broker.Publisher
	deadLetter   broker.Publisher
	redeliverCap int

	mu       sync.Mutex
	failures map[string]*failureState
}

func NewConsumer(ledger Ledger, broadcast, deadLetter broker.Publisher, redeliverCap int) *Consumer {
	return &Consumer{
		ledger:       ledger,
		broadcast:    broadcast,
		deadLetter:   deadLetter,
		redeliverCap: redeliverCap,
		failures:     make(map[string]*failureState),
	}
}

// HandleDelivery processes one work-topic delivery. It is the
// broker.Handler for every replicated dedup consumer.
func (c *Consumer) HandleDelivery(ctx context.Context, d *broker.Delivery) {
	l := log.Ctx(ctx)

	var msg domain.QueueMessage
	if err := json.Unmarshal(d.Value, &msg); err != nil {
		// Garbled payloads can never republish; dead-letter them
		// immediately instead of requeueing.
		l.Error().Err(err).Msg("unparseable work message, dead-lettering")
		c.publishDeadLetter(ctx, "", "", d.Value, 1, err, time.Now())
		if err := d.Ack(); err != nil {
			l.Error().Err(err).Msg("failed to ack unparseable message")
		}
		return
	}

	admitted, err := c.ledger.Admit(ctx, msg.MessageID)
	if err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, msg.MessageID).Msg("ledger admit failed, requeueing")
		c.nack(ctx, d, &msg, err)
		return
	}
	if !admitted {
		l.Warn().Str(log.FieldMessageID, msg.MessageID).Msg("duplicate message in work stream, ignoring")
		if err := d.Ack(); err != nil {
			l.Error().Err(err).Str(log.FieldMessageID, msg.MessageID).Msg("failed to ack duplicate")
		}
		return
	}

	if err := c.broadcast.Publish(ctx, "", d.Value); err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, msg.MessageID).Msg("broadcast republish failed")
		// Withdraw the admission so the redelivered copy is not
		// suppressed as a duplicate.
		if ferr := c.ledger.Forget(ctx, msg.MessageID); ferr != nil {
			l.Error().Err(ferr).Str(log.FieldMessageID, msg.MessageID).Msg("failed to withdraw ledger admission")
		}
		c.nack(ctx, d, &msg, err)
		return
	}

	c.clearFailure(msg.MessageID)
	l.Debug().Str(log.FieldMessageID, msg.MessageID).Str(log.FieldRoomID, msg.RoomID).Msg("message republished for broadcast")
	if err := d.Ack(); err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, msg.MessageID).Msg("failed to ack work delivery")
	}
}

// nack records the failed attempt and either requeues the delivery or,
// past the cap, dead-letters it and acks the original.
func (c *Consumer) nack(ctx context.Context, d *broker.Delivery, msg *domain.QueueMessage, cause error) {
	l := log.Ctx(ctx)

	c.mu.Lock()
	st, ok := c.failures[msg.MessageID]
	if !ok {
		st = &failureState{firstFailedAt: time.Now()}
		c.failures[msg.MessageID] = st
	}
	st.attempts++
	attempts := st.attempts
	firstFailedAt := st.firstFailedAt
	c.mu.Unlock()

	if attempts >= c.redeliverCap {
		l.Error().
			Str(log.FieldMessageID, msg.MessageID).
			Int(log.FieldAttempts, attempts).
			Msg("redelivery cap reached, dead-lettering")
		c.publishDeadLetter(ctx, msg.MessageID, msg.RoomID, d.Value, attempts, cause, firstFailedAt)
		c.clearFailure(msg.MessageID)
		if err := d.Ack(); err != nil {
			l.Error().Err(err).Str(log.FieldMessageID, msg.MessageID).Msg("failed to ack dead-lettered message")
		}
		return
	}

	if err := d.Nack(); err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, msg.MessageID).Msg("failed to nack work delivery")
	}
}

func (c *Consumer) publishDeadLetter(ctx context.Context, messageID, roomID string, original []byte, attempts int, cause error, firstFailedAt time.Time) {
	rec := DeadLetterRecord{
		MessageID:     messageID,
		RoomID:        roomID,
		Original:      append(json.RawMessage(nil), original...),
		Attempts:      attempts,
		FirstFailedAt: firstFailedAt,
		LastAttemptAt: time.Now(),
	}
	if cause != nil {
		rec.LastError = cause.Error()
	}

	logger := log.Ctx(ctx)
	data, err := json.Marshal(rec)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldMessageID, messageID).Msg("failed to marshal dead-letter record")
		return
	}

	if err := c.deadLetter.Publish(ctx, roomID, data); err != nil {
		logger.Error().Err(err).Str(log.FieldMessageID, messageID).Msg("failed to publish dead-letter record")
	}
}

func (c *Consumer) clearFailure(messageID string) {
	c.mu.Lock()
	delete(c.failures, messageID)
	c.mu.Unlock()
}
