package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies a chat message.
type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeJoin  MessageType = "JOIN"
	MessageTypeLeave MessageType = "LEAVE"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeJoin, MessageTypeLeave:
		return true
	}
	return false
}

// ChatMessage is the client → server wire message.
type ChatMessage struct {
	MessageID   string      `json:"messageId"`
	UserID      string      `json:"userId"`
	Username    string      `json:"username"`
	Message     string      `json:"message"`
	Timestamp   string      `json:"timestamp"`
	MessageType MessageType `json:"messageType"`
}

// NewChatMessage creates a TEXT message with a fresh id.
// The timestamp is stamped later, at send time.
func NewChatMessage(userID, username, body string) *ChatMessage {
	return &ChatMessage{
		MessageID:   uuid.New().String(),
		UserID:      userID,
		Username:    username,
		Message:     body,
		MessageType: MessageTypeText,
	}
}

// QueueMessage is the broker payload: a validated ChatMessage plus
// ingress metadata. It flows unmodified through the work and broadcast
// topics.
type QueueMessage struct {
	MessageID       string      `json:"messageId"`
	RoomID          string      `json:"roomId"`
	UserID          string      `json:"userId"`
	Username        string      `json:"username"`
	Message         string      `json:"message"`
	Timestamp       string      `json:"timestamp"`
	MessageType     MessageType `json:"messageType"`
	ServerID        string      `json:"serverId"`
	ClientIP        string      `json:"clientIp"`
	ClientMessageID string      `json:"clientMessageId"`
}

// NewQueueMessage wraps a validated chat message with ingress metadata.
func NewQueueMessage(msg *ChatMessage, roomID, serverID, clientIP string) *QueueMessage {
	return &QueueMessage{
		MessageID:       msg.MessageID,
		RoomID:          roomID,
		UserID:          msg.UserID,
		Username:        msg.Username,
		Message:         msg.Message,
		Timestamp:       msg.Timestamp,
		MessageType:     msg.MessageType,
		ServerID:        serverID,
		ClientIP:        clientIP,
		ClientMessageID: msg.MessageID,
	}
}

// Acknowledgement statuses.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Acknowledgement is the server → client response to one inbound message.
// OriginalMessageID is set on OK responses; Message carries the error
// detail on ERROR responses.
type Acknowledgement struct {
	Status            string `json:"status"`
	Timestamp         string `json:"timestamp"`
	OriginalMessageID string `json:"originalMessageId,omitempty"`
	Message           string `json:"message,omitempty"`
}

// NewOKAck builds a success acknowledgement for the given message id.
func NewOKAck(originalMessageID string) *Acknowledgement {
	return &Acknowledgement{
		Status:            StatusOK,
		Timestamp:         time.Now().UTC().Format(time.RFC3339Nano),
		OriginalMessageID: originalMessageID,
	}
}

// NewErrorAck builds a rejection acknowledgement with a human-readable reason.
func NewErrorAck(reason string) *Acknowledgement {
	return &Acknowledgement{
		Status:    StatusError,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Message:   reason,
	}
}
