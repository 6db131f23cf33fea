package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alkatripathi-004/chat-fanout/internal/broker"
	"github.com/Alkatripathi-004/chat-fanout/internal/domain"
)

type fakePublisher struct {
	mu        sync.Mutex
	published [][]byte
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, _ string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, append([]byte(nil), value...))
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type deliveryProbe struct {
	acked  int
	nacked int
}

func (d *deliveryProbe) delivery(value []byte) *broker.Delivery {
	return broker.NewDelivery(nil, value,
		func() error { d.acked++; return nil },
		func() error { d.nacked++; return nil },
	)
}

func queuePayload(t *testing.T, id string) []byte {
	t.Helper()
	msg := domain.QueueMessage{
		MessageID:   id,
		RoomID:      "room3",
		UserID:      "7",
		Username:    "bob",
		Message:     "hi",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		MessageType: domain.MessageTypeText,
		ServerID:    "srv-a",
	}
	data, err := json.Marshal(&msg)
	require.NoError(t, err)
	return data
}

func TestConsumer_RepublishesAndAcks(t *testing.T) {
	broadcast := &fakePublisher{}
	dlq := &fakePublisher{}
	c := NewConsumer(NewMemoryLedger(time.Minute), broadcast, dlq, 5)

	probe := &deliveryProbe{}
	c.HandleDelivery(context.Background(), probe.delivery(queuePayload(t, "msg-1")))

	assert.Equal(t, 1, broadcast.count())
	assert.Equal(t, 1, probe.acked)
	assert.Equal(t, 0, probe.nacked)
	assert.Equal(t, 0, dlq.count())
}

func TestConsumer_SuppressesDuplicate(t *testing.T) {
	broadcast := &fakePublisher{}
	c := NewConsumer(NewMemoryLedger(time.Minute), broadcast, &fakePublisher{}, 5)

	payload := queuePayload(t, "msg-dup")
	first := &deliveryProbe{}
	second := &deliveryProbe{}

	c.HandleDelivery(context.Background(), first.delivery(payload))
	c.HandleDelivery(context.Background(), second.delivery(payload))

	// The redelivered copy is acked but never republished.
	assert.Equal(t, 1, broadcast.count())
	assert.Equal(t, 1, first.acked)
	assert.Equal(t, 1, second.acked)
	assert.Equal(t, 0, second.nacked)
}

func TestConsumer_NacksOnRepublishFailure(t *testing.T) {
	broadcast := &fakePublisher{err: errors.New("broker down")}
	ledger := NewMemoryLedger(time.Minute)
	c := NewConsumer(ledger, broadcast, &fakePublisher{}, 5)

	payload := queuePayload(t, "msg-fail")
	probe := &deliveryProbe{}
	c.HandleDelivery(context.Background(), probe.delivery(payload))

	assert.Equal(t, 0, probe.acked)
	assert.Equal(t, 1, probe.nacked)

	// The admission was withdrawn: once the broker recovers, the
	// redelivered copy must broadcast, not be dropped as a duplicate.
	broadcast.err = nil
	retry := &deliveryProbe{}
	c.HandleDelivery(context.Background(), retry.delivery(payload))
	assert.Equal(t, 1, broadcast.count())
	assert.Equal(t, 1, retry.acked)
}

func TestConsumer_DeadLettersAfterCap(t *testing.T) {
	broadcast := &fakePublisher{err: errors.New("broker down")}
	dlq := &fakePublisher{}
	c := NewConsumer(NewMemoryLedger(time.Minute), broadcast, dlq, 3)

	payload := queuePayload(t, "msg-poison")
	probe := &deliveryProbe{}

	// Attempts 1 and 2 requeue; attempt 3 hits the cap.
	c.HandleDelivery(context.Background(), probe.delivery(payload))
	c.HandleDelivery(context.Background(), probe.delivery(payload))
	c.HandleDelivery(context.Background(), probe.delivery(payload))

	assert.Equal(t, 2, probe.nacked)
	assert.Equal(t, 1, probe.acked)
	require.Equal(t, 1, dlq.count())

	var rec DeadLetterRecord
	require.NoError(t, json.Unmarshal(dlq.published[0], &rec))
	assert.Equal(t, "msg-poison", rec.MessageID)
	assert.Equal(t, "room3", rec.RoomID)
	assert.Equal(t, 3, rec.Attempts)
	assert.Contains(t, rec.LastError, "broker down")
}

func TestConsumer_DeadLettersUnparseablePayload(t *testing.T) {
	broadcast := &fakePublisher{}
	dlq := &fakePublisher{}
	c := NewConsumer(NewMemoryLedger(time.Minute), broadcast, dlq, 5)

	probe := &deliveryProbe{}
	c.HandleDelivery(context.Background(), probe.delivery([]byte("{not json")))

	assert.Equal(t, 0, broadcast.count())
	assert.Equal(t, 1, dlq.count())
	assert.Equal(t, 1, probe.acked)
	assert.Equal(t, 0, probe.nacked)
}
