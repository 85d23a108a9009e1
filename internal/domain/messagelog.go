package domain

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/bus"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

// MessageLog is the in-memory history of the single shared conversation.
// It is append-only: disconnects and topology churn never drop entries.
type MessageLog struct {
	mu       sync.RWMutex
	messages []ChatMessage
	changes  chan struct{}
}

func NewMessageLog() *MessageLog {
	return &MessageLog{
		changes: make(chan struct{}, 1),
	}
}

func (l *MessageLog) Load(messages []ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cloned := make([]ChatMessage, len(messages))
	copy(cloned, messages)
	l.messages = cloned
	l.notify()
}

// Start appends every chat message published on the bus, whichever side
// produced it.
func (l *MessageLog) Start(ctx context.Context, b bus.MessageBus) {
	messageSub := b.Subscribe(events.TopicMessage)

	go func() {
		defer b.Unsubscribe(messageSub, events.TopicMessage)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-messageSub:
				if !ok {
					return
				}
				msg, ok := raw.(ChatMessage)
				if !ok {
					continue
				}
				l.Append(msg)
			}
		}
	}()
}

func (l *MessageLog) Append(msg ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	l.messages = append(l.messages, msg)
	l.notify()
}

// Messages returns the history ordered by send time, ties resolved by
// arrival order.
func (l *MessageLog) Messages() []ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cloned := make([]ChatMessage, len(l.messages))
	copy(cloned, l.messages)
	sort.SliceStable(cloned, func(i, j int) bool {
		return cloned[i].SentAt.Before(cloned[j].SentAt)
	})
	return cloned
}

func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

func (l *MessageLog) Changes() <-chan struct{} {
	return l.changes
}

func (l *MessageLog) Reset() {
	l.mu.Lock()
	l.messages = nil
	l.mu.Unlock()
	l.notify()
}

func (l *MessageLog) notify() {
	select {
	case l.changes <- struct{}{}:
	default:
	}
}
