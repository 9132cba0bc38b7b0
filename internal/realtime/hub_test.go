package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/learnloop/analytics-engine/internal/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubOrderingPerChannel(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := uuid.New().String()

	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, channel)

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventAlertCreated, Seq: 1})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventMetricsUpdated, Seq: 2})

	first := recvMessage(t, client.Outbound, time.Second)
	second := recvMessage(t, client.Outbound, time.Second)
	if first.Seq != 1 || first.Event != SSEEventAlertCreated {
		t.Fatalf("first message: %+v", first)
	}
	if second.Seq != 2 || second.Event != SSEEventMetricsUpdated {
		t.Fatalf("second message: %+v", second)
	}
}

func TestSSEHubChannelIsolation(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	userA := hub.NewSSEClient(uuid.New())
	userB := hub.NewSSEClient(uuid.New())
	hub.AddChannel(userA, "user-a")
	hub.AddChannel(userB, "user-b")

	hub.Broadcast(SSEMessage{Channel: "user-a", Event: SSEEventAlertCreated, Seq: 1})

	recvMessage(t, userA.Outbound, time.Second)
	select {
	case msg := <-userB.Outbound:
		t.Fatalf("user-b received user-a's message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHubCloseClient(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := uuid.New().String()
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, channel)

	hub.CloseClient(client)
	select {
	case _, ok := <-client.Outbound:
		if ok {
			t.Fatalf("outbound should be closed")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for close")
	}

	// Broadcast to the now-empty channel must not panic.
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventAlertCreated, Seq: 9})
}

func TestSequenceSourceMonotonicPerUser(t *testing.T) {
	seq := NewSequenceSource()
	userA, userB := "a", "b"

	if got := seq.Next(userA); got != 1 {
		t.Fatalf("first seq: %d", got)
	}
	if got := seq.Next(userA); got != 2 {
		t.Fatalf("second seq: %d", got)
	}
	if got := seq.Next(userB); got != 1 {
		t.Fatalf("independent user seq: %d", got)
	}

	seq.Seed(userA, 100)
	if got := seq.Next(userA); got != 101 {
		t.Fatalf("seeded seq: %d", got)
	}
	seq.Seed(userA, 5)
	if got := seq.Next(userA); got != 102 {
		t.Fatalf("seed must never lower the floor: %d", got)
	}
}
