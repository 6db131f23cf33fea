package broadcast

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alkatripathi-004/chat-fanout/internal/broker"
	"github.com/Alkatripathi-004/chat-fanout/internal/config"
	"github.com/Alkatripathi-004/chat-fanout/internal/domain"
	"github.com/Alkatripathi-004/chat-fanout/internal/hub"
)

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	}
}

func startInstance(t *testing.T, serverID string) (*hub.Hub, *Consumer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := hub.NewHub(testWSConfig())
	go h.Run(ctx)
	return h, NewConsumer(h, serverID)
}

func registerClient(t *testing.T, h *hub.Hub, id, roomID string) *hub.Client {
	t.Helper()
	c := hub.NewClient(id, roomID, h, nil, testWSConfig())
	h.Register(c)
	require.Eventually(t, func() bool {
		return h.RoomClientCount(roomID) > 0
	}, 2*time.Second, 5*time.Millisecond)
	return c
}

func broadcastPayload(t *testing.T, id, roomID, originServer string) []byte {
	t.Helper()
	msg := domain.QueueMessage{
		MessageID:   id,
		RoomID:      roomID,
		UserID:      "5",
		Username:    "carol",
		Message:     "hey",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		MessageType: domain.MessageTypeText,
		ServerID:    originServer,
	}
	data, err := json.Marshal(&msg)
	require.NoError(t, err)
	return data
}

func expectMessage(t *testing.T, c *hub.Client, wantID string) {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg domain.QueueMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, wantID, msg.MessageID)
	case <-time.After(2 * time.Second):
		t.Fatalf("client %s never received message %s", c.ID, wantID)
	}
}

func TestConsumer_DeliversToLocalRoomSessions(t *testing.T) {
	h, consumer := startInstance(t, "srv-a")
	inRoom := registerClient(t, h, "c1", "room2")
	otherRoom := registerClient(t, h, "c2", "room3")

	payload := broadcastPayload(t, "b-1", "room2", "srv-a")
	consumer.HandleDelivery(context.Background(), broker.NewDelivery(nil, payload, nil, nil))

	expectMessage(t, inRoom, "b-1")

	select {
	case data := <-otherRoom.Send:
		t.Fatalf("wrong-room client received %q", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConsumer_FanOutAcrossInstances(t *testing.T) {
	// Instance A ingests; the session lives only on instance B. Both
	// instances consume the broadcast stream, and B's session receives
	// the message without A ever referencing it.
	hubA, consumerA := startInstance(t, "srv-a")
	hubB, consumerB := startInstance(t, "srv-b")

	sessionOnB := registerClient(t, hubB, "remote", "room4")
	assert.Equal(t, 0, hubA.RoomClientCount("room4"))

	payload := broadcastPayload(t, "b-2", "room4", "srv-a")
	consumerA.HandleDelivery(context.Background(), broker.NewDelivery(nil, payload, nil, nil))
	consumerB.HandleDelivery(context.Background(), broker.NewDelivery(nil, payload, nil, nil))

	expectMessage(t, sessionOnB, "b-2")
}

func TestConsumer_SkipsUnparseablePayload(t *testing.T) {
	h, consumer := startInstance(t, "srv-a")
	client := registerClient(t, h, "c1", "room1")

	consumer.HandleDelivery(context.Background(), broker.NewDelivery(nil, []byte("garbage"), nil, nil))

	// Bad payloads are dropped; the next good one still flows.
	payload := broadcastPayload(t, "b-3", "room1", "srv-a")
	consumer.HandleDelivery(context.Background(), broker.NewDelivery(nil, payload, nil, nil))
	expectMessage(t, client, "b-3")
}
