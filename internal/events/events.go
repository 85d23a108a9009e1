package events

import "time"

// PeerState is the transport-level discovery state of a nearby device.
type PeerState string

const (
	PeerStateUnknown     PeerState = "unknown"
	PeerStateAvailable   PeerState = "available"
	PeerStateInvited     PeerState = "invited"
	PeerStateConnected   PeerState = "connected"
	PeerStateFailed      PeerState = "failed"
	PeerStateUnavailable PeerState = "unavailable"
)

// SupportNotice reports whether the platform exposes the ad-hoc radio capability.
type SupportNotice struct {
	Supported bool
	Reason    string
}

// DiscoveredPeer is one entry of a transport discovery listing.
type DiscoveredPeer struct {
	ID         string
	Name       string
	DeviceType string
	Status     PeerState
}

// DiscoverySnapshot is a full replacement of the adapter's visible peer set.
// Snapshots are never incremental; consumers reconcile, they do not overwrite.
type DiscoverySnapshot struct {
	Peers []DiscoveredPeer
	At    time.Time
}

// TopologyChange announces a radio-level group change. CoordinatorAddr is the
// coordinator's network address without port, empty until known or when this
// device coordinates. Peers lists the ids currently joined to the group.
type TopologyChange struct {
	Connected       bool
	IsCoordinator   bool
	CoordinatorAddr string
	Peers           []string
	At              time.Time
}

// SocketRole distinguishes the listening (coordinator) and connecting ends
// of the application byte stream.
type SocketRole string

const (
	SocketRoleListening  SocketRole = "listening"
	SocketRoleConnecting SocketRole = "connecting"
)

// SocketConnected is emitted once when the relay channel reaches Open.
type SocketConnected struct {
	Role       SocketRole
	LocalAddr  string
	RemoteAddr string
	At         time.Time
}

// SocketDisconnected is emitted exactly once per open channel when it closes,
// whatever the cause.
type SocketDisconnected struct {
	Reason string
	At     time.Time
}

// SocketConnectFailed is the terminal event after the relay has exhausted its
// connection attempts toward the coordinator.
type SocketConnectFailed struct {
	Addr     string
	Attempts int
	Err      string
	At       time.Time
}

// PresenceKind labels peer lifecycle events consumed by notification and UI
// subscribers.
type PresenceKind string

const (
	PresenceJoined PresenceKind = "peer_joined"
	PresenceLeft   PresenceKind = "peer_left"
)

// PeerPresence reports one peer joining or leaving the connected topology.
type PeerPresence struct {
	Kind   PresenceKind
	PeerID string
	Name   string
	At     time.Time
}
