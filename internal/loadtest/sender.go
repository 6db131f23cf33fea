package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Alkatripathi-004/chat-fanout/internal/domain"
	"github.com/Alkatripathi-004/chat-fanout/pkg/log"
)

// SenderConfig carries the reliable-send protocol knobs.
type SenderConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	ConnectTimeout time.Duration
	DrainTimeout   time.Duration
	Rooms          int
}

// DefaultSenderConfig returns the protocol constants used by the load
// harness.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		MaxRetries:     5,
		InitialBackoff: 100 * time.Millisecond,
		ConnectTimeout: 5 * time.Second,
		DrainTimeout:   100 * time.Second,
		Rooms:          20,
	}
}

// pendingRequest tracks one sent message awaiting acknowledgement.
type pendingRequest struct {
	msg    *domain.ChatMessage
	sentAt time.Time
}

// Worker owns one room and one connection at a time. It drains
// messages from the shared queue, transmits each with bounded retries,
// and correlates acknowledgements back to pending sends. Every message
// resolves exactly once, into either the success or the failure
// counter.
type Worker struct {
	id      int
	roomID  int
	url     string
	queue   <-chan *domain.ChatMessage
	rep     *Reporter
	limiter *rate.Limiter
	cfg     SenderConfig
	dialer  *websocket.Dialer

	conn *wsConn

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	successful    atomic.Int64
	failed        atomic.Int64
	connections   atomic.Int64
	reconnections atomic.Int64

	latMu     sync.Mutex
	latencies []time.Duration
}

// NewWorker assigns the worker its room by index modulo room count and
// builds the room-scoped connection target.
func NewWorker(id int, baseURL string, queue <-chan *domain.ChatMessage, rep *Reporter, limiter *rate.Limiter, cfg SenderConfig) *Worker {
	roomID := id%cfg.Rooms + 1
	return &Worker{
		id:      id,
		roomID:  roomID,
		url:     fmt.Sprintf("%s/room%d", baseURL, roomID),
		queue:   queue,
		rep:     rep,
		limiter: limiter,
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout},
		pending: make(map[string]*pendingRequest),
	}
}

// Run consumes from the shared queue until the sentinel arrives, then
// waits out the pending acknowledgements. The connection is closed on
// every exit path.
func (w *Worker) Run(ctx context.Context) error {
	defer w.closeConn()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg := <-w.queue:
			if msg == nil {
				// Sentinel: stop consuming, drain outstanding acks.
				w.drainAcks(ctx)
				return nil
			}

			if w.limiter != nil {
				if err := w.limiter.Wait(ctx); err != nil {
					w.failMessage(msg, false)
					return err
				}
			}

			if err := w.ensureConnection(ctx); err != nil {
				w.failMessage(msg, false)
				continue
			}

			msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
			w.sendWithRetry(ctx, msg)
		}
	}
}

// ensureConnection opens a connection if none is live. A connect
// failure fails the current operation, not the worker.
func (w *Worker) ensureConnection(ctx context.Context) error {
	if w.conn != nil && w.conn.isOpen() {
		return nil
	}

	conn, err := dialConn(ctx, w.url, w.dialer, w)
	if err != nil {
		l := log.L()
		l.Warn().Err(err).Int(log.FieldWorkerID, w.id).Str("url", w.url).Msg("connect failed")
		return err
	}

	if w.connections.Load() > 0 {
		w.reconnections.Add(1)
	} else {
		w.connections.Add(1)
	}

	w.conn = conn
	return nil
}

// sendWithRetry transmits msg with up to MaxRetries attempts and a
// doubling backoff. Each attempt re-records the pending entry before
// transmitting; exhausting the budget resolves the message as failed.
func (w *Worker) sendWithRetry(ctx context.Context, msg *domain.ChatMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		w.failMessage(msg, false)
		return
	}

	backoff := w.cfg.InitialBackoff
	transmitted := false

	for attempt := 0; attempt < w.cfg.MaxRetries; attempt++ {
		if w.conn != nil && w.conn.isOpen() {
			w.trackPending(msg)
			transmitted = true
			if err := w.conn.send(payload); err == nil {
				return
			}
		}

		// Cancellable backoff: shutdown must not wait out the timer.
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.failMessage(msg, transmitted)
			return
		case <-timer.C:
		}
		backoff *= 2

		w.ensureConnection(ctx)
	}

	w.failMessage(msg, transmitted)
}

func (w *Worker) trackPending(msg *domain.ChatMessage) {
	w.pendingMu.Lock()
	w.pending[msg.MessageID] = &pendingRequest{msg: msg, sentAt: time.Now()}
	w.pendingMu.Unlock()
}

// failMessage resolves msg as failed. If the message was transmitted
// and its pending entry is already gone, an acknowledgement resolved
// it first and no failure is recorded.
func (w *Worker) failMessage(msg *domain.ChatMessage, transmitted bool) {
	w.pendingMu.Lock()
	_, wasPending := w.pending[msg.MessageID]
	delete(w.pending, msg.MessageID)
	w.pendingMu.Unlock()

	if transmitted && !wasPending {
		return
	}

	w.failed.Add(1)
	w.rep.AddEntry(Entry{
		StartTimestamp: msg.Timestamp,
		EndTimestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		MessageType:    string(msg.MessageType),
		Latency:        -1,
		StatusCode:     500,
		RoomID:         w.roomID,
	})
}

// drainAcks blocks until the pending map empties or the drain window
// elapses; on timeout every still-pending message is marked failed.
func (w *Worker) drainAcks(ctx context.Context) {
	deadline := time.Now().Add(w.cfg.DrainTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if w.pendingCount() == 0 {
			return
		}
		if time.Now().After(deadline) {
			w.failAllPending()
			return
		}

		select {
		case <-ctx.Done():
			w.failAllPending()
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) failAllPending() {
	w.pendingMu.Lock()
	stale := make([]*pendingRequest, 0, len(w.pending))
	for id, pr := range w.pending {
		stale = append(stale, pr)
		delete(w.pending, id)
	}
	w.pendingMu.Unlock()

	if len(stale) == 0 {
		return
	}

	l := log.L()
	l.Warn().Int(log.FieldWorkerID, w.id).Int("stale", len(stale)).Msg("timed out waiting for acks")

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, pr := range stale {
		w.failed.Add(1)
		w.rep.AddEntry(Entry{
			StartTimestamp: pr.msg.Timestamp,
			EndTimestamp:   now,
			MessageType:    string(pr.msg.MessageType),
			Latency:        -1,
			StatusCode:     500,
			RoomID:         w.roomID,
		})
	}
}

func (w *Worker) pendingCount() int {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	return len(w.pending)
}

func (w *Worker) closeConn() {
	if w.conn != nil {
		w.conn.close()
	}
}

// connection event callbacks; invoked from the connection's read loop.

func (w *Worker) onOpen() {}

// onMessage correlates an acknowledgement with its pending entry.
// Late or duplicate acks find no entry and are discarded silently.
func (w *Worker) onMessage(data []byte) {
	var ack domain.Acknowledgement
	if err := json.Unmarshal(data, &ack); err != nil {
		l := log.L()
		l.Warn().Err(err).Int(log.FieldWorkerID, w.id).Msg("unparseable ack")
		return
	}
	if ack.OriginalMessageID == "" {
		return
	}

	w.pendingMu.Lock()
	pr, ok := w.pending[ack.OriginalMessageID]
	delete(w.pending, ack.OriginalMessageID)
	w.pendingMu.Unlock()

	if !ok {
		return
	}

	now := time.Now()
	latency := now.Sub(pr.sentAt)
	w.successful.Add(1)

	w.latMu.Lock()
	w.latencies = append(w.latencies, latency)
	w.latMu.Unlock()

	w.rep.AddEntry(Entry{
		StartTimestamp: pr.msg.Timestamp,
		EndTimestamp:   now.UTC().Format(time.RFC3339Nano),
		MessageType:    string(pr.msg.MessageType),
		Latency:        latency.Milliseconds(),
		StatusCode:     200,
		RoomID:         w.roomID,
	})
}

func (w *Worker) onClose(err error) {
	l := log.L()
	l.Debug().Err(err).Int(log.FieldWorkerID, w.id).Msg("connection closed")
}

func (w *Worker) onError(err error) {
	l := log.L()
	l.Warn().Err(err).Int(log.FieldWorkerID, w.id).Msg("websocket error")
}

// SuccessCount reports acknowledged messages.
func (w *Worker) SuccessCount() int64 { return w.successful.Load() }

// FailureCount reports terminally failed messages.
func (w *Worker) FailureCount() int64 { return w.failed.Load() }

// Connections reports first-time connects.
func (w *Worker) Connections() int64 { return w.connections.Load() }

// Reconnections reports re-establishments after a drop.
func (w *Worker) Reconnections() int64 { return w.reconnections.Load() }

// Latencies returns a copy of the recorded latency samples.
func (w *Worker) Latencies() []time.Duration {
	w.latMu.Lock()
	defer w.latMu.Unlock()
	out := make([]time.Duration, len(w.latencies))
	copy(out, w.latencies)
	return out
}
