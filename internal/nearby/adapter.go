package nearby

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnsupportedPlatform = errors.New("nearby: platform not supported")
	ErrPermissionDenied    = errors.New("nearby: permission denied")
	ErrNotInitialized      = errors.New("nearby: adapter not initialized")
	ErrPeerNotFound        = errors.New("nearby: peer not in discovery snapshot")
)

// ConnectError reports a failed radio-level join request.
type ConnectError struct {
	Reason string
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nearby: connect failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("nearby: connect failed: %s", e.Reason)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Adapter wraps one ad-hoc discovery/connection backend. Implementations
// emit events.SupportNotice, events.DiscoverySnapshot, and
// events.TopologyChange values on Events(); snapshots are full replacements
// of the currently visible peer set, never increments.
//
// ConnectToPeer is asynchronous: a nil error means the join was requested,
// the outcome arrives as a TopologyChange event. The peer id must appear in
// the latest discovery snapshot or ErrPeerNotFound is returned.
type Adapter interface {
	Supported() bool
	Initialize(ctx context.Context) error
	StartDiscovery(ctx context.Context) error
	StopDiscovery(ctx context.Context) error
	ConnectToPeer(ctx context.Context, peerID string) error
	Disconnect(ctx context.Context) error
	Events() <-chan any
	Close() error
}
