package domain

import (
	"time"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

// Peer is one known participant device in the mesh.
type Peer struct {
	ID         string
	Name       string
	DeviceType string
	Status     events.PeerState
	LastSeenAt time.Time
	Signal     int
	Emergency  bool
	UpdatedAt  time.Time
}

// DisplayName returns the advertised name, falling back to the identifier for
// peers synthesized from a bare connection event.
func (p Peer) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// ChatMessage is one entry of the append-only message log. Mine is always
// derived locally by comparing SenderID against this device's identity, never
// read from the wire.
type ChatMessage struct {
	LocalID    int64
	SenderID   string
	SenderName string
	Text       string
	SentAt     time.Time
	Mine       bool
	Fallback   bool
}
