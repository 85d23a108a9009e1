package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/bus"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/domain"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/envelope"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

const maxMessageBytes = 1024

var errMessengerStopped = errors.New("messenger stopped")

// LineSender is the write side of the socket relay.
type LineSender interface {
	Send(line []byte) error
}

type SendResult struct {
	Message domain.ChatMessage
	Err     error
}

type sendRequest struct {
	text   string
	result chan SendResult
}

// Messenger orchestrates outbound chat: it stamps the local identity and
// send time, encodes the envelope, writes it through the relay, and
// publishes the sent message so the log, persistence, and UI consumers all
// see it. Send failures go to the caller only; nothing else reacts.
type Messenger struct {
	logger   *slog.Logger
	bus      bus.MessageBus
	sender   LineSender
	codec    *envelope.Codec
	identity domain.Identity
	outbox   chan sendRequest

	mu      sync.Mutex
	stopped bool
}

func NewMessenger(logger *slog.Logger, b bus.MessageBus, sender LineSender, codec *envelope.Codec, identity domain.Identity) *Messenger {
	if logger == nil {
		logger = slog.Default()
	}

	return &Messenger{
		logger:   logger.With("component", "chat"),
		bus:      b,
		sender:   sender,
		codec:    codec,
		identity: identity,
		outbox:   make(chan sendRequest, 128),
	}
}

func (m *Messenger) Start(ctx context.Context) {
	go m.runOutbox(ctx)
}

// SendText queues one outbound message and returns a channel that yields the
// single result once the write has settled. The channel always yields exactly
// one result, shutdown included.
func (m *Messenger) SendText(text string) <-chan SendResult {
	resCh := make(chan SendResult, 1)
	if utf8.RuneCountInString(text) == 0 {
		resCh <- SendResult{Err: errors.New("message body is empty")}
		close(resCh)
		return resCh
	}
	if len([]byte(text)) > maxMessageBytes {
		resCh <- SendResult{Err: fmt.Errorf("message body exceeds %d bytes: %d", maxMessageBytes, len([]byte(text)))}
		close(resCh)
		return resCh
	}

	// The stopped check and the enqueue share the mutex with the outbox
	// drain, so a request either lands before the drain or fails here.
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		resCh <- SendResult{Err: errMessengerStopped}
		close(resCh)
		return resCh
	}
	select {
	case m.outbox <- sendRequest{text: text, result: resCh}:
		m.mu.Unlock()
	default:
		m.mu.Unlock()
		resCh <- SendResult{Err: errors.New("chat outbox is full")}
		close(resCh)
	}

	return resCh
}

func (m *Messenger) runOutbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.stopped = true
			m.mu.Unlock()
			m.failPending()
			return
		case req := <-m.outbox:
			res := m.handleSend(req)
			req.result <- res
			close(req.result)
		}
	}
}

// failPending answers every queued request so no caller stays parked on a
// result channel across shutdown.
func (m *Messenger) failPending() {
	for {
		select {
		case req := <-m.outbox:
			req.result <- SendResult{Err: errMessengerStopped}
			close(req.result)
		default:
			return
		}
	}
}

func (m *Messenger) handleSend(req sendRequest) SendResult {
	msg := domain.ChatMessage{
		SenderID:   m.identity.ID,
		SenderName: m.identity.Name,
		Text:       req.text,
		SentAt:     time.Now(),
		Mine:       true,
	}

	if err := m.sender.Send(m.codec.Encode(msg)); err != nil {
		m.logger.Warn("send failed", "error", err)
		return SendResult{Err: fmt.Errorf("send chat line: %w", err)}
	}

	m.bus.Publish(events.TopicMessage, msg)

	return SendResult{Message: msg}
}
