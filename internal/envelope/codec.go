package envelope

import (
	"encoding/json"
	"net"
	"strings"
	"time"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/domain"
)

const (
	messageTypeChat = "chat"

	unknownSenderName  = "Unknown"
	maxFallbackNameLen = 16
)

// wireMessage is the newline-delimited JSON chat envelope:
//
//	{"type":"chat","senderId":"<id>","senderName":"<name>","timestamp":"<ISO-8601>","text":"<body>"}\n
type wireMessage struct {
	Type       string `json:"type"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Timestamp  string `json:"timestamp"`
	Text       string `json:"text"`
}

// Codec translates between chat messages and wire lines. It holds the local
// device identifier so the origin flag is always recomputed on receipt and
// never trusted from the payload.
type Codec struct {
	localID string
}

func NewCodec(localID string) *Codec {
	return &Codec{localID: localID}
}

// Encode serializes a chat message as one newline-terminated envelope.
// Every message is representable: the payload is flat strings, so
// serialization cannot fail.
func (c *Codec) Encode(msg domain.ChatMessage) []byte {
	wire := wireMessage{
		Type:       messageTypeChat,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Timestamp:  msg.SentAt.UTC().Format(time.RFC3339),
		Text:       msg.Text,
	}
	data, err := json.Marshal(wire)
	if err != nil {
		// Unreachable for a flat string struct; keep the message anyway.
		data = []byte(`{"type":"chat","text":""}`)
	}
	return append(data, '\n')
}

// Decode is total: any input line yields a chat message. A structured
// envelope needs only a sender id; missing name, timestamp, or text default
// instead of failing. Anything else becomes a plain-text message whose body
// is the input verbatim and whose sender name is derived from the remote
// address.
func (c *Codec) Decode(line []byte, remoteAddr string, receivedAt time.Time) domain.ChatMessage {
	var wire wireMessage
	if err := json.Unmarshal(line, &wire); err == nil && wire.SenderID != "" {
		msg := domain.ChatMessage{
			SenderID:   wire.SenderID,
			SenderName: wire.SenderName,
			Text:       wire.Text,
			SentAt:     receivedAt,
			Mine:       wire.SenderID == c.localID,
		}
		if msg.SenderName == "" {
			msg.SenderName = unknownSenderName
		}
		if ts, err := time.Parse(time.RFC3339, wire.Timestamp); err == nil {
			msg.SentAt = ts
		}
		return msg
	}

	return domain.ChatMessage{
		SenderName: fallbackSenderName(remoteAddr),
		Text:       string(line),
		SentAt:     receivedAt,
		Fallback:   true,
	}
}

// fallbackSenderName labels an unstructured sender from its transport
// address: the last path segment with any port stripped, truncated to a
// displayable length.
func fallbackSenderName(remoteAddr string) string {
	name := remoteAddr
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if host, _, err := net.SplitHostPort(name); err == nil && host != "" {
		name = host
	}
	if name == "" {
		return unknownSenderName
	}
	if len(name) > maxFallbackNameLen {
		name = name[:maxFallbackNameLen]
	}
	return name
}
