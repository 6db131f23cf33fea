package log

const (
	// Message
	FieldMessageID = "message_id"
	FieldRoomID    = "room_id"
	FieldUserID    = "user_id"
	FieldUsername  = "username"

	// Connection
	FieldClientID = "client_id"
	FieldClientIP = "client_ip"
	FieldWorkerID = "worker_id"

	// Pipeline
	FieldServerID = "server_id"
	FieldTopic    = "topic"
	FieldOffset   = "offset"
	FieldAttempts = "attempts"
	FieldLatency  = "latency_ms"

	// Service
	FieldService = "service"
)
