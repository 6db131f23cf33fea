package hub

import (
	"context"
	"sync"

	"github.com/Alkatripathi-004/chat-fanout/internal/config"
	"github.com/Alkatripathi-004/chat-fanout/pkg/log"
)

// Hub is the process-local session registry: it maps room ids to the
// set of live local WebSocket clients. It is constructed once at
// startup and injected into the ingest handler and the broadcast
// consumer; cross-instance visibility goes through the broker, never
// through shared hub state.
type Hub struct {
	clients    map[string]*Client            // clientID -> client
	rooms      map[string]map[string]*Client // roomID -> clientID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *RoomMessage
	done       chan struct{}
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

// RoomMessage is a payload addressed to every client in one room.
type RoomMessage struct {
	RoomID  string
	Message []byte
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *RoomMessage, 256),
		done:       make(chan struct{}),
		config:     cfg,
	}
}

// Run processes registry events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if _, ok := h.rooms[client.RoomID]; !ok {
				h.rooms[client.RoomID] = make(map[string]*Client)
			}
			h.rooms[client.RoomID][client.ID] = client
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldClientID, client.ID).Str(log.FieldRoomID, client.RoomID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				if roomClients, ok := h.rooms[client.RoomID]; ok {
					delete(roomClients, client.ID)
					if len(roomClients) == 0 {
						delete(h.rooms, client.RoomID)
					}
				}
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldClientID, client.ID).Str(log.FieldRoomID, client.RoomID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.rooms[msg.RoomID] {
				select {
				case client.Send <- msg.Message:
				default:
					// Send buffer full; drop the client rather than
					// block delivery to the rest of the room.
					go h.Unregister(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register, Unregister and BroadcastToRoom select against the hub's
// done channel so read pumps and broker consumers still in flight
// during shutdown cannot block on a stopped Run loop.

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToRoom queues data for delivery to every client currently
// registered in the room.
func (h *Hub) BroadcastToRoom(roomID string, data []byte) {
	select {
	case h.broadcast <- &RoomMessage{RoomID: roomID, Message: data}:
	case <-h.done:
	}
}

// RoomClientCount reports the number of local clients in a room.
func (h *Hub) RoomClientCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) closeAll() {
	close(h.done)
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.Send)
		delete(h.clients, id)
	}
	h.rooms = make(map[string]map[string]*Client)
}
