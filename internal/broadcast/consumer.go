package broadcast

import (
	"context"
	"encoding/json"

	"github.com/Alkatripathi-004/chat-fanout/internal/broker"
	"github.com/Alkatripathi-004/chat-fanout/internal/domain"
	"github.com/Alkatripathi-004/chat-fanout/internal/hub"
	"github.com/Alkatripathi-004/chat-fanout/pkg/log"
)

// Consumer receives every message the dedup stage republishes,
// including ones that originated on other instances, and pushes each
// to the local sessions of its room. Each instance subscribes to the
// broadcast topic under its own consumer group, so every instance
// sees the full stream.
type Consumer struct {
	hub      *hub.Hub
	serverID string
}

func NewConsumer(h *hub.Hub, serverID string) *Consumer {
	return &Consumer{
		hub:      h,
		serverID: serverID,
	}
}

// HandleDelivery is the broker.Handler for the instance's broadcast
// subscription. Delivery problems are logged and skipped; the stream
// must keep moving.
func (c *Consumer) HandleDelivery(ctx context.Context, d *broker.Delivery) {
	l := log.Ctx(ctx)

	var msg domain.QueueMessage
	if err := json.Unmarshal(d.Value, &msg); err != nil {
		l.Error().Err(err).Msg("unparseable broadcast message, skipping")
		return
	}

	// Re-serialize our own representation rather than forwarding the
	// raw broker bytes.
	data, err := json.Marshal(&msg)
	if err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, msg.MessageID).Msg("failed to encode broadcast payload")
		return
	}

	l.Debug().
		Str(log.FieldMessageID, msg.MessageID).
		Str(log.FieldRoomID, msg.RoomID).
		Str("origin_server_id", msg.ServerID).
		Msg("pushing broadcast to local sessions")

	c.hub.BroadcastToRoom(msg.RoomID, data)
}
