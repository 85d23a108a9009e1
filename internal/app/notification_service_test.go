package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/bus"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/config"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/domain"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/notify"
)

func newTestMessageBus(t *testing.T) *bus.PubSubBus {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	messageBus := bus.New(logger)
	t.Cleanup(func() {
		messageBus.Close()
	})

	return messageBus
}

func startNotificationService(t *testing.T, messageBus *bus.PubSubBus, cfg config.AppConfig) *collectingNotificationSender {
	t.Helper()

	sender := newCollectingNotificationSender()
	service := NewNotificationService(
		messageBus,
		func() config.AppConfig { return cfg },
		sender,
		nil,
	)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	service.Start(ctx)

	return sender
}

func TestNotificationServiceIncomingMessage(t *testing.T) {
	messageBus := newTestMessageBus(t)
	sender := startNotificationService(t, messageBus, config.Default())

	messageBus.Publish(events.TopicMessage, domain.ChatMessage{
		SenderID:   "device-remote",
		SenderName: "Alice",
		Text:       "Hello there",
		SentAt:     time.Now(),
	})

	got := sender.waitForCount(t, 1)
	if got[0].Title != "@Alice" {
		t.Fatalf("expected title @Alice, got %q", got[0].Title)
	}
	if got[0].Content != "Hello there" {
		t.Fatalf("expected content %q, got %q", "Hello there", got[0].Content)
	}
}

func TestNotificationServiceSkipsOwnMessages(t *testing.T) {
	messageBus := newTestMessageBus(t)
	sender := startNotificationService(t, messageBus, config.Default())

	messageBus.Publish(events.TopicMessage, domain.ChatMessage{
		SenderID:   "device-local",
		SenderName: "Me",
		Text:       "outgoing",
		Mine:       true,
	})

	sender.assertCount(t, 0)
}

func TestNotificationServicePresenceFormatting(t *testing.T) {
	messageBus := newTestMessageBus(t)
	sender := startNotificationService(t, messageBus, config.Default())

	messageBus.Publish(events.TopicPresence, events.PeerPresence{
		Kind:   events.PresenceJoined,
		PeerID: "peer-1",
		Name:   "Medic One",
	})
	messageBus.Publish(events.TopicPresence, events.PeerPresence{
		Kind:   events.PresenceLeft,
		PeerID: "peer-1",
		Name:   "Medic One",
	})

	got := sender.waitForCount(t, 2)
	if got[0].Title != notificationTitlePeerJoined || got[0].Content != "Medic One" {
		t.Fatalf("unexpected join notification: %+v", got[0])
	}
	if got[1].Title != notificationTitlePeerLeft {
		t.Fatalf("unexpected leave notification: %+v", got[1])
	}
}

func TestNotificationServiceHonorsEventToggles(t *testing.T) {
	messageBus := newTestMessageBus(t)
	cfg := config.Default()
	cfg.Notifications.Events.PeerJoined = false
	sender := startNotificationService(t, messageBus, cfg)

	messageBus.Publish(events.TopicPresence, events.PeerPresence{
		Kind: events.PresenceJoined,
		Name: "Medic One",
	})
	messageBus.Publish(events.TopicPresence, events.PeerPresence{
		Kind: events.PresenceLeft,
		Name: "Medic One",
	})

	got := sender.waitForCount(t, 1)
	if got[0].Title != notificationTitlePeerLeft {
		t.Fatalf("expected only the leave notification, got %+v", got[0])
	}
	sender.assertCount(t, 1)
}

func TestNotificationServiceMasterToggleSilencesAll(t *testing.T) {
	messageBus := newTestMessageBus(t)
	cfg := config.Default()
	cfg.Notifications.Enabled = false
	sender := startNotificationService(t, messageBus, cfg)

	messageBus.Publish(events.TopicMessage, domain.ChatMessage{SenderName: "Alice", Text: "hi"})
	messageBus.Publish(events.TopicPresence, events.PeerPresence{Kind: events.PresenceJoined, Name: "Alice"})
	messageBus.Publish(events.TopicSocket, events.SocketConnected{Role: events.SocketRoleListening})

	sender.assertCount(t, 0)
}

func TestNotificationServiceDeduplicatesSocketState(t *testing.T) {
	messageBus := newTestMessageBus(t)
	sender := startNotificationService(t, messageBus, config.Default())

	messageBus.Publish(events.TopicSocket, events.SocketConnectFailed{
		Addr:     "10.0.0.9:47331",
		Attempts: 3,
		Err:      "connection refused",
	})
	messageBus.Publish(events.TopicSocket, events.SocketConnectFailed{
		Addr:     "10.0.0.9:47331",
		Attempts: 3,
		Err:      "connection refused",
	})
	messageBus.Publish(events.TopicSocket, events.SocketConnected{
		Role:       events.SocketRoleConnecting,
		RemoteAddr: "10.0.0.9:47331",
	})

	got := sender.waitForCount(t, 2)
	if got[0].Title != notificationTitleRelayFailure {
		t.Fatalf("expected failure notification first, got %+v", got[0])
	}
	if got[1].Title != notificationTitleRelayUp {
		t.Fatalf("expected connect notification second, got %+v", got[1])
	}
	sender.assertCount(t, 2)
}

type collectingNotificationSender struct {
	mu       sync.Mutex
	payloads []notify.Payload
	changes  chan struct{}
}

func newCollectingNotificationSender() *collectingNotificationSender {
	return &collectingNotificationSender{
		changes: make(chan struct{}, 1),
	}
}

func (s *collectingNotificationSender) Send(payload notify.Payload) {
	s.mu.Lock()
	s.payloads = append(s.payloads, payload)
	s.mu.Unlock()

	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *collectingNotificationSender) snapshot() []notify.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]notify.Payload, len(s.payloads))
	copy(out, s.payloads)

	return out
}

func (s *collectingNotificationSender) waitForCount(t *testing.T, expected int) []notify.Payload {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		current := s.snapshot()
		if len(current) >= expected {
			return current
		}
		select {
		case <-s.changes:
		case <-time.After(10 * time.Millisecond):
		}
	}

	t.Fatalf("timed out waiting for %d notifications", expected)

	return nil
}

func (s *collectingNotificationSender) assertCount(t *testing.T, expected int) {
	t.Helper()

	time.Sleep(100 * time.Millisecond)
	current := s.snapshot()
	if len(current) != expected {
		t.Fatalf("expected %d notifications, got %d", expected, len(current))
	}
}
