package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/bus"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/domain"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

// frame is one bus event as it appears on the websocket stream.
type frame struct {
	Topic string `json:"topic"`
	Event any    `json:"event"`
}

type peerView struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	DeviceType string    `json:"deviceType"`
	Status     string    `json:"status"`
	Signal     int       `json:"signal"`
	Emergency  bool      `json:"emergency"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

type messageView struct {
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sentAt"`
	Mine       bool      `json:"mine"`
	Fallback   bool      `json:"fallback"`
}

var streamedTopics = []string{
	events.TopicSupport,
	events.TopicDiscovery,
	events.TopicTopology,
	events.TopicSocket,
	events.TopicMessage,
	events.TopicPresence,
}

// Server exposes a local diagnostics surface: JSON snapshots of the peer
// directory and message log, plus a websocket stream mirroring bus traffic.
// It is config-gated and intended for loopback use only.
type Server struct {
	logger     *slog.Logger
	bus        bus.MessageBus
	directory  *domain.PeerDirectory
	messageLog *domain.MessageLog
	addr       string

	hub        *hub
	listener   net.Listener
	httpServer *http.Server
}

func NewServer(logger *slog.Logger, b bus.MessageBus, directory *domain.PeerDirectory, messageLog *domain.MessageLog, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "diag")

	return &Server{
		logger:     logger,
		bus:        b,
		directory:  directory,
		messageLog: messageLog,
		addr:       addr,
		hub:        newHub(logger),
	}
}

// Start binds the listen address and serves until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("bind diagnostics address %s: %w", s.addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/peers", s.handlePeers)
	mux.HandleFunc("/messages", s.handleMessages)
	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.hub.run(ctx)
	go s.mirrorBus(ctx)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("diagnostics server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	s.logger.Info("diagnostics server listening", "addr", listener.Addr().String())

	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}

	return s.listener.Addr().String()
}

func (s *Server) Close() error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// mirrorBus republishes every bus event as a JSON frame on the websocket
// stream. Marshal failures drop the single frame, never the stream.
func (s *Server) mirrorBus(ctx context.Context) {
	subs := make(map[string]bus.Subscription, len(streamedTopics))
	for _, topic := range streamedTopics {
		subs[topic] = s.bus.Subscribe(topic)
	}
	defer func() {
		for topic, sub := range subs {
			s.bus.Unsubscribe(sub, topic)
		}
	}()

	for topic, sub := range subs {
		go s.forward(ctx, topic, sub)
	}
	<-ctx.Done()
}

func (s *Server) forward(ctx context.Context, topic string, sub bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub:
			if !ok {
				return
			}
			data, err := json.Marshal(frame{Topic: topic, Event: raw})
			if err != nil {
				s.logger.Warn("encode diagnostics frame", "topic", topic, "error", err)
				continue
			}
			select {
			case s.hub.broadcast <- data:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)

		return
	}

	client := &wsClient{hub: s.hub, conn: conn, send: make(chan []byte, clientSendBuffer)}
	if !s.hub.attach(client) {
		_ = conn.Close()

		return
	}
	go client.writePump()
	go client.readPump()
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers := s.directory.Snapshot()
	views := make([]peerView, 0, len(peers))
	for _, p := range peers {
		views = append(views, peerView{
			ID:         p.ID,
			Name:       p.Name,
			DeviceType: p.DeviceType,
			Status:     string(p.Status),
			Signal:     p.Signal,
			Emergency:  p.Emergency,
			LastSeenAt: p.LastSeenAt,
		})
	}
	s.writeJSON(w, views)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	messages := s.messageLog.Messages()
	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, messageView{
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Text:       m.Text,
			SentAt:     m.SentAt,
			Mine:       m.Mine,
			Fallback:   m.Fallback,
		})
	}
	s.writeJSON(w, views)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode diagnostics response", "error", err)
	}
}
