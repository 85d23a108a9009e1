package nearby

import (
	"context"
	"sync"
	"time"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

// SimulatedAdapter is a scripted Adapter for tests and the --simulate run
// mode. It replays a fixed peer roster as discovery snapshots on a timer and
// answers every join request with a local-coordinator topology, so the full
// relay path can be exercised without any radio hardware.
type SimulatedAdapter struct {
	interval time.Duration
	roster   []events.DiscoveredPeer

	mu            sync.Mutex
	out           chan any
	closed        bool
	initialized   bool
	discovering   bool
	stopDiscovery context.CancelFunc
	joinedPeer    string
}

func NewSimulatedAdapter(roster []events.DiscoveredPeer, interval time.Duration) *SimulatedAdapter {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &SimulatedAdapter{
		interval: interval,
		roster:   roster,
		out:      make(chan any, 64),
	}
}

func (a *SimulatedAdapter) Supported() bool { return true }

func (a *SimulatedAdapter) Initialize(_ context.Context) error {
	a.mu.Lock()
	a.initialized = true
	a.mu.Unlock()
	a.Emit(events.SupportNotice{Supported: true})
	return nil
}

func (a *SimulatedAdapter) StartDiscovery(ctx context.Context) error {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return ErrNotInitialized
	}
	if a.discovering {
		a.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.discovering = true
	a.stopDiscovery = cancel
	a.mu.Unlock()

	go a.runDiscovery(runCtx)
	return nil
}

func (a *SimulatedAdapter) runDiscovery(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.emitSnapshot()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.emitSnapshot()
		}
	}
}

func (a *SimulatedAdapter) emitSnapshot() {
	peers := make([]events.DiscoveredPeer, len(a.roster))
	copy(peers, a.roster)
	a.Emit(events.DiscoverySnapshot{Peers: peers, At: time.Now()})
}

func (a *SimulatedAdapter) StopDiscovery(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return ErrNotInitialized
	}
	if !a.discovering {
		return nil
	}
	a.stopDiscovery()
	a.stopDiscovery = nil
	a.discovering = false
	return nil
}

// ConnectToPeer always elects the local device as coordinator, so a relay
// fed by this adapter listens on loopback.
func (a *SimulatedAdapter) ConnectToPeer(_ context.Context, peerID string) error {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return ErrNotInitialized
	}
	known := false
	for _, p := range a.roster {
		if p.ID == peerID {
			known = true
			break
		}
	}
	if !known {
		a.mu.Unlock()
		return ErrPeerNotFound
	}
	a.joinedPeer = peerID
	a.mu.Unlock()

	a.Emit(events.TopologyChange{
		Connected:       true,
		IsCoordinator:   true,
		CoordinatorAddr: "127.0.0.1",
		Peers:           []string{peerID},
		At:              time.Now(),
	})
	return nil
}

func (a *SimulatedAdapter) Disconnect(_ context.Context) error {
	a.mu.Lock()
	if a.joinedPeer == "" {
		a.mu.Unlock()
		return nil
	}
	a.joinedPeer = ""
	a.mu.Unlock()

	a.Emit(events.TopologyChange{Connected: false, At: time.Now()})
	return nil
}

func (a *SimulatedAdapter) Events() <-chan any { return a.out }

// Emit injects an arbitrary event into the stream. Tests use it to script
// sequences the timer-driven loop does not produce. When nothing drains the
// stream the event is dropped rather than wedging the caller.
func (a *SimulatedAdapter) Emit(event any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.out <- event:
	default:
	}
}

func (a *SimulatedAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	if a.stopDiscovery != nil {
		a.stopDiscovery()
		a.stopDiscovery = nil
	}
	a.discovering = false
	a.closed = true
	close(a.out)
	return nil
}
