package diag

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	clientSendBuffer = 64
	writeDeadline    = 10 * time.Second
	readLimitBytes   = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The stream binds to loopback for local tooling; origin checks stay open.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClient struct {
	hub  *hub
	conn *websocket.Conn
	send chan []byte
}

// hub fans every broadcast frame out to all connected websocket clients.
// Clients that cannot keep up are dropped rather than backpressuring the
// event stream.
type hub struct {
	logger     *slog.Logger
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		logger:     logger,
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
}

func (h *hub) run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				_ = client.conn.Close()
				close(client.send)
			}
			h.clients = nil

			return
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case frame := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					h.logger.Debug("dropping slow diagnostics client")
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

func (h *hub) attach(client *wsClient) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *hub) detach(client *wsClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// readPump discards client input; the stream is one-way. Reading is still
// required to notice the peer closing the connection.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.detach(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(readLimitBytes)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	defer func() {
		_ = c.conn.Close()
	}()
	for frame := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}
