package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/bus"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/domain"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/envelope"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

type fakeSender struct {
	lines [][]byte
	err   error
}

func (s *fakeSender) Send(line []byte) error {
	if s.err != nil {
		return s.err
	}
	s.lines = append(s.lines, line)
	return nil
}

func newTestMessenger(sender *fakeSender) (*Messenger, *bus.PubSubBus) {
	b := bus.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	identity := domain.Identity{ID: "device-a", Name: "Ada"}
	m := NewMessenger(nil, b, sender, envelope.NewCodec(identity.ID), identity)

	return m, b
}

func TestMessengerSendText_StampsIdentityAndPublishes(t *testing.T) {
	sender := &fakeSender{}
	m, b := newTestMessenger(sender)
	defer b.Close()
	messageSub := b.Subscribe(events.TopicMessage)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	res := <-m.SendText("water needed at tent 4")
	if res.Err != nil {
		t.Fatalf("send: %v", res.Err)
	}
	if res.Message.SenderID != "device-a" || res.Message.SenderName != "Ada" {
		t.Fatalf("expected local identity stamped, got %+v", res.Message)
	}
	if !res.Message.Mine {
		t.Fatalf("expected local message flagged as mine")
	}
	if res.Message.SentAt.IsZero() {
		t.Fatalf("expected send time stamped")
	}

	if len(sender.lines) != 1 {
		t.Fatalf("expected one line on the wire, got %d", len(sender.lines))
	}
	line := string(sender.lines[0])
	if !strings.HasSuffix(line, "\n") || !strings.Contains(line, `"water needed at tent 4"`) {
		t.Fatalf("expected newline-terminated envelope, got %q", line)
	}

	select {
	case raw := <-messageSub:
		msg, ok := raw.(domain.ChatMessage)
		if !ok || msg.Text != "water needed at tent 4" {
			t.Fatalf("expected sent message on the bus, got %#v", raw)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("sent message never published")
	}
}

func TestMessengerSendText_RejectsEmptyAndOversized(t *testing.T) {
	m, b := newTestMessenger(&fakeSender{})
	defer b.Close()

	if res := <-m.SendText(""); res.Err == nil {
		t.Fatalf("expected empty message rejected")
	}
	if res := <-m.SendText(strings.Repeat("a", maxMessageBytes+1)); res.Err == nil {
		t.Fatalf("expected oversized message rejected")
	}
}

func TestMessengerSendText_RelayFailureReachesCallerOnly(t *testing.T) {
	sender := &fakeSender{err: errors.New("socket not open")}
	m, b := newTestMessenger(sender)
	defer b.Close()
	messageSub := b.Subscribe(events.TopicMessage)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	res := <-m.SendText("hello")
	if res.Err == nil {
		t.Fatalf("expected relay failure surfaced to the caller")
	}

	select {
	case raw := <-messageSub:
		t.Fatalf("failed send must not publish, got %#v", raw)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMessengerSendText_ShutdownNeverStrandsCaller(t *testing.T) {
	m, b := newTestMessenger(&fakeSender{})
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()

	// Sends racing the cancellation may still succeed; once the outbox has
	// wound down every result must carry the stopped error immediately.
	deadline := time.Now().Add(3 * time.Second)
	for {
		select {
		case res := <-m.SendText("radio check"):
			if res.Err != nil {
				if !errors.Is(res.Err, errMessengerStopped) {
					t.Fatalf("expected stopped error, got %v", res.Err)
				}
				return
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("send result never arrived after shutdown")
		}
		if time.Now().After(deadline) {
			t.Fatalf("sends kept succeeding after shutdown")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
