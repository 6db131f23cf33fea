package hub

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alkatripathi-004/chat-fanout/internal/config"
)

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(testWSConfig())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func waitForCount(t *testing.T, h *Hub, roomID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.RoomClientCount(roomID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %s never reached %d clients", roomID, want)
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	h := startHub(t)

	c := NewClient("c1", "room1", h, nil, testWSConfig())
	h.Register(c)
	waitForCount(t, h, "room1", 1)

	h.Unregister(c)
	waitForCount(t, h, "room1", 0)

	// Send channel is closed on unregister.
	_, open := <-c.Send
	assert.False(t, open)
}

func TestHub_BroadcastReachesOnlyTargetRoom(t *testing.T) {
	h := startHub(t)

	inRoom := NewClient("c1", "room1", h, nil, testWSConfig())
	otherRoom := NewClient("c2", "room2", h, nil, testWSConfig())
	h.Register(inRoom)
	h.Register(otherRoom)
	waitForCount(t, h, "room1", 1)
	waitForCount(t, h, "room2", 1)

	h.BroadcastToRoom("room1", []byte("hello"))

	select {
	case data := <-inRoom.Send:
		assert.Equal(t, "hello", string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("room1 client never received broadcast")
	}

	select {
	case data := <-otherRoom.Send:
		t.Fatalf("room2 client unexpectedly received %q", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BroadcastToAllRoomClients(t *testing.T) {
	h := startHub(t)

	const clients = 10
	all := make([]*Client, clients)
	for i := range all {
		all[i] = NewClient(fmt.Sprintf("c%d", i), "room1", h, nil, testWSConfig())
		h.Register(all[i])
	}
	waitForCount(t, h, "room1", clients)

	h.BroadcastToRoom("room1", []byte("fan"))

	for i, c := range all {
		select {
		case data := <-c.Send:
			require.Equal(t, "fan", string(data), "client %d", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("client %d never received broadcast", i)
		}
	}
}

func TestHub_ConcurrentChurnDuringBroadcast(t *testing.T) {
	h := startHub(t)

	stable := NewClient("stable", "room1", h, nil, testWSConfig())
	h.Register(stable)
	waitForCount(t, h, "room1", 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			c := NewClient(fmt.Sprintf("churn%d", i), "room1", h, nil, testWSConfig())
			h.Register(c)
			h.Unregister(c)
		}
	}()

	for i := 0; i < 20; i++ {
		h.BroadcastToRoom("room1", []byte("x"))
	}
	<-done

	// The stable client saw every broadcast despite concurrent churn.
	received := 0
	timeout := time.After(2 * time.Second)
	for received < 20 {
		select {
		case <-stable.Send:
			received++
		case <-timeout:
			t.Fatalf("stable client received %d of 20 broadcasts", received)
		}
	}
}

func TestHub_CallsReturnAfterShutdown(t *testing.T) {
	h := NewHub(testWSConfig())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := NewClient("c1", "room1", h, nil, testWSConfig())
	h.Register(c)
	waitForCount(t, h, "room1", 1)

	cancel()
	<-stopped

	// Read pumps and broker consumers may still call into the hub
	// during shutdown; none of these may block once Run has exited.
	returned := make(chan struct{})
	go func() {
		h.BroadcastToRoom("room1", []byte("late"))
		h.Register(NewClient("c2", "room1", h, nil, testWSConfig()))
		h.Unregister(c)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("hub call blocked after shutdown")
	}
}

func TestHub_SlowClientIsEvicted(t *testing.T) {
	h := startHub(t)

	slow := NewClient("slow", "room1", h, nil, testWSConfig())
	h.Register(slow)
	waitForCount(t, h, "room1", 1)

	// Fill the send buffer without draining it; the next broadcast
	// drops the client instead of blocking the room.
	for i := 0; i < cap(slow.Send)+1; i++ {
		h.BroadcastToRoom("room1", []byte("x"))
	}

	waitForCount(t, h, "room1", 0)
}
