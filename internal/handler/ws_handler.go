package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Alkatripathi-004/chat-fanout/internal/broker"
	"github.com/Alkatripathi-004/chat-fanout/internal/config"
	"github.com/Alkatripathi-004/chat-fanout/internal/domain"
	"github.com/Alkatripathi-004/chat-fanout/internal/hub"
	"github.com/Alkatripathi-004/chat-fanout/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler is the ingest surface: it accepts room-scoped WebSocket
// connections, validates each inbound chat message, acknowledges the
// sender immediately, and hands accepted messages to the work
// publisher. The acknowledgement only covers ingestion; the broadcast
// arrives through the fan-out pipeline.
type WSHandler struct {
	hub      *hub.Hub
	work     broker.Publisher
	serverID string
	wsCfg    config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, work broker.Publisher, serverID string, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:      h,
		work:     work,
		serverID: serverID,
		wsCfg:    wsCfg,
	}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := roomIDFromPath(r.URL.Path)
	if roomID == "" {
		http.Error(w, "room id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), roomID, h.hub, conn, h.wsCfg)
	client.RemoteAddr = r.RemoteAddr

	h.hub.Register(client)

	l := log.L()
	l.Info().
		Str(log.FieldClientID, client.ID).
		Str(log.FieldRoomID, roomID).
		Str(log.FieldClientIP, client.RemoteAddr).
		Msg("connection established")

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	ctx := context.Background()

	var msg domain.ChatMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		client.SendMessage(domain.NewErrorAck("invalid message format"))
		return
	}

	if err := msg.Validate(); err != nil {
		client.SendMessage(domain.NewErrorAck(err.Error()))
		return
	}

	// Acknowledge before publishing: the ack confirms ingestion, not
	// broadcast.
	client.SendMessage(domain.NewOKAck(msg.MessageID))

	queueMsg := domain.NewQueueMessage(&msg, client.RoomID, h.serverID, client.RemoteAddr)
	payload, err := json.Marshal(queueMsg)
	if err != nil {
		l := log.L()
		l.Error().Err(err).Str(log.FieldMessageID, msg.MessageID).Msg("failed to encode queue message")
		return
	}

	if err := h.work.Publish(ctx, client.RoomID, payload); err != nil {
		l := log.L()
		l.Error().Err(err).
			Str(log.FieldMessageID, msg.MessageID).
			Str(log.FieldRoomID, client.RoomID).
			Msg("failed to publish to work topic")
	}
}

// roomIDFromPath derives the room id from the connection target's last
// path segment, e.g. /chat/room7 -> room7.
func roomIDFromPath(path string) string {
	path = strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 || idx == len(path)-1 {
		return ""
	}
	segment := path[idx+1:]
	if segment == "chat" {
		return ""
	}
	return segment
}

func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/chat/", h.HandleWebSocket)
}
