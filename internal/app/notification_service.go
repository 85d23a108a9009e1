package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/bus"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/config"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/domain"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/notify"
)

const (
	notificationTitlePeerJoined   = "Peer joined"
	notificationTitlePeerLeft     = "Peer left"
	notificationTitleRelayUp      = "Chat link established"
	notificationTitleRelayDown    = "Chat link lost"
	notificationTitleRelayFailure = "Chat link failed"
)

// NotificationService listens to bus events and emits user-facing
// notifications, honoring the per-event config toggles.
type NotificationService struct {
	bus           bus.MessageBus
	currentConfig func() config.AppConfig
	sender        notify.Sender
	logger        *slog.Logger

	socketMu        sync.Mutex
	lastSocketState string
}

func NewNotificationService(
	messageBus bus.MessageBus,
	currentConfig func() config.AppConfig,
	sender notify.Sender,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default().With("component", "app.notifications")
	}

	return &NotificationService{
		bus:           messageBus,
		currentConfig: currentConfig,
		sender:        sender,
		logger:        logger,
	}
}

func (s *NotificationService) Start(ctx context.Context) {
	if s == nil || s.bus == nil || s.sender == nil {
		return
	}

	msgSub := s.bus.Subscribe(events.TopicMessage)
	presenceSub := s.bus.Subscribe(events.TopicPresence)
	socketSub := s.bus.Subscribe(events.TopicSocket)

	go func() {
		defer s.bus.Unsubscribe(msgSub, events.TopicMessage)
		defer s.bus.Unsubscribe(presenceSub, events.TopicPresence)
		defer s.bus.Unsubscribe(socketSub, events.TopicSocket)

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-msgSub:
				if !ok {
					return
				}
				msg, ok := raw.(domain.ChatMessage)
				if !ok {
					continue
				}
				s.handleIncomingMessage(msg)
			case raw, ok := <-presenceSub:
				if !ok {
					return
				}
				presence, ok := raw.(events.PeerPresence)
				if !ok {
					continue
				}
				s.handlePresence(presence)
			case raw, ok := <-socketSub:
				if !ok {
					return
				}
				s.handleSocketEvent(raw)
			}
		}
	}()
}

func (s *NotificationService) handleIncomingMessage(msg domain.ChatMessage) {
	if msg.Mine {
		return
	}
	prefs := s.notificationPrefs()
	if !s.shouldNotify(prefs, prefs.Events.IncomingMessage) {
		return
	}

	senderName := strings.TrimSpace(msg.SenderName)
	if senderName == "" {
		senderName = "Unknown"
	}
	body := strings.TrimSpace(msg.Text)
	if body == "" {
		body = "(empty)"
	}

	s.send(notify.Payload{
		Title:   "@" + senderName,
		Content: body,
	})
}

func (s *NotificationService) handlePresence(presence events.PeerPresence) {
	prefs := s.notificationPrefs()

	title := notificationTitlePeerJoined
	enabled := prefs.Events.PeerJoined
	if presence.Kind == events.PresenceLeft {
		title = notificationTitlePeerLeft
		enabled = prefs.Events.PeerLeft
	}
	if !s.shouldNotify(prefs, enabled) {
		return
	}

	subject := strings.TrimSpace(presence.Name)
	if subject == "" {
		subject = strings.TrimSpace(presence.PeerID)
	}
	if subject == "" {
		subject = "unknown"
	}

	s.send(notify.Payload{
		Title:   title,
		Content: subject,
	})
}

func (s *NotificationService) handleSocketEvent(raw any) {
	prefs := s.notificationPrefs()
	if !s.shouldNotify(prefs, prefs.Events.SocketStatus) {
		return
	}

	switch event := raw.(type) {
	case events.SocketConnected:
		if !s.socketStateChanged("connected") {
			return
		}
		remote := strings.TrimSpace(event.RemoteAddr)
		if remote == "" {
			remote = "peer"
		}
		s.send(notify.Payload{
			Title:   notificationTitleRelayUp,
			Content: fmt.Sprintf("%s (%s)", remote, event.Role),
		})
	case events.SocketDisconnected:
		if !s.socketStateChanged("disconnected") {
			return
		}
		reason := strings.TrimSpace(event.Reason)
		if reason == "" {
			reason = "connection closed"
		}
		s.send(notify.Payload{
			Title:   notificationTitleRelayDown,
			Content: reason,
		})
	case events.SocketConnectFailed:
		if !s.socketStateChanged("failed") {
			return
		}
		s.send(notify.Payload{
			Title:   notificationTitleRelayFailure,
			Content: fmt.Sprintf("%s after %d attempts: %s", event.Addr, event.Attempts, event.Err),
		})
	}
}

// socketStateChanged suppresses repeats of the same terminal state so retry
// loops do not spam the desktop.
func (s *NotificationService) socketStateChanged(state string) bool {
	s.socketMu.Lock()
	defer s.socketMu.Unlock()
	if s.lastSocketState == state {
		return false
	}
	s.lastSocketState = state

	return true
}

func (s *NotificationService) shouldNotify(prefs config.NotificationConfig, kindEnabled bool) bool {
	return prefs.Enabled && kindEnabled
}

func (s *NotificationService) notificationPrefs() config.NotificationConfig {
	cfg := config.Default()
	if s.currentConfig != nil {
		cfg = s.currentConfig()
		cfg.FillMissingDefaults()
	}

	return cfg.Notifications
}

func (s *NotificationService) send(payload notify.Payload) {
	title := strings.TrimSpace(payload.Title)
	content := strings.TrimSpace(payload.Content)
	if title == "" && content == "" {
		return
	}
	s.logger.Debug("sending notification", "title", title)
	s.sender.Send(notify.Payload{
		Title:   title,
		Content: content,
	})
}
