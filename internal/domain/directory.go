package domain

import (
	"context"
	"sync"
	"time"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/bus"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

const defaultPeerExpiry = 5 * time.Minute

// PeerDirectory keeps the authoritative peer view in memory for consumers.
// Discovery snapshots are full replacements at the radio layer, so the
// directory reconciles them against connection state instead of overwriting:
// a connected peer missing from a refresh stays listed as connected, and a
// merely unlisted peer is demoted and aged out rather than dropped on the
// spot.
type PeerDirectory struct {
	mu      sync.RWMutex
	peers   map[string]Peer
	order   []string
	expiry  time.Duration
	now     func() time.Time
	changes chan struct{}
}

func NewPeerDirectory() *PeerDirectory {
	return &PeerDirectory{
		peers:   make(map[string]Peer),
		expiry:  defaultPeerExpiry,
		now:     time.Now,
		changes: make(chan struct{}, 1),
	}
}

// SetExpiry overrides the absence window after which unlisted peers are
// dropped. Call before Start.
func (d *PeerDirectory) SetExpiry(v time.Duration) {
	if v <= 0 {
		return
	}
	d.mu.Lock()
	d.expiry = v
	d.mu.Unlock()
}

// Load seeds the directory from persisted peers. Stored entries describe a
// previous run, so their status is not trusted; derived fields are recomputed.
func (d *PeerDirectory) Load(peers []Peer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range peers {
		if p.ID == "" {
			continue
		}
		if _, ok := d.peers[p.ID]; !ok {
			d.order = append(d.order, p.ID)
		}
		d.peers[p.ID] = d.finalize(p)
	}
	d.notify()
}

// Start consumes discovery and topology events from the bus and publishes
// presence events for peers joining or leaving the connected topology.
func (d *PeerDirectory) Start(ctx context.Context, b bus.MessageBus) {
	discoverySub := b.Subscribe(events.TopicDiscovery)
	topologySub := b.Subscribe(events.TopicTopology)

	go func() {
		defer b.Unsubscribe(discoverySub, events.TopicDiscovery)
		defer b.Unsubscribe(topologySub, events.TopicTopology)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-discoverySub:
				if !ok {
					return
				}
				snap, ok := raw.(events.DiscoverySnapshot)
				if !ok {
					continue
				}
				d.ApplyDiscoverySnapshot(snap)
			case raw, ok := <-topologySub:
				if !ok {
					return
				}
				change, ok := raw.(events.TopologyChange)
				if !ok {
					continue
				}
				for _, presence := range d.ApplyTopologyChange(change) {
					b.Publish(events.TopicPresence, presence)
				}
			}
		}
	}()
}

// ApplyDiscoverySnapshot folds a full discovery listing into the directory.
// Listed peers are upserted; connected peers absent from the listing are
// re-kept as connected with a refreshed last-seen time; other absentees are
// demoted to unavailable and removed only once older than the expiry window.
func (d *PeerDirectory) ApplyDiscoverySnapshot(snap events.DiscoverySnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	at := snap.At
	if at.IsZero() {
		at = d.now()
	}

	listed := make(map[string]struct{}, len(snap.Peers))
	for _, discovered := range snap.Peers {
		if discovered.ID == "" {
			continue
		}
		listed[discovered.ID] = struct{}{}
		d.upsertDiscoveredLocked(discovered, at)
	}

	var expired []string
	for id, p := range d.peers {
		if _, ok := listed[id]; ok {
			continue
		}
		if p.Status == events.PeerStateConnected {
			p.LastSeenAt = at
			p.UpdatedAt = at
			d.peers[id] = d.finalize(p)
			continue
		}
		if at.Sub(p.LastSeenAt) > d.expiry {
			expired = append(expired, id)
			continue
		}
		p.Status = events.PeerStateUnavailable
		p.UpdatedAt = at
		d.peers[id] = d.finalize(p)
	}
	for _, id := range expired {
		d.removeLocked(id)
	}

	d.notify()
}

func (d *PeerDirectory) upsertDiscoveredLocked(discovered events.DiscoveredPeer, at time.Time) {
	existing, ok := d.peers[discovered.ID]
	if !ok {
		d.order = append(d.order, discovered.ID)
		existing = Peer{ID: discovered.ID}
	}

	if discovered.Name != "" {
		existing.Name = discovered.Name
	}
	if discovered.DeviceType != "" {
		existing.DeviceType = discovered.DeviceType
	}
	// Connection state is owned by topology events; a refresh never demotes
	// a connected peer.
	if existing.Status != events.PeerStateConnected {
		status := discovered.Status
		if status == "" || status == events.PeerStateUnknown {
			status = events.PeerStateAvailable
		}
		existing.Status = status
	}
	existing.LastSeenAt = at
	existing.UpdatedAt = at
	d.peers[discovered.ID] = d.finalize(existing)
}

// ApplyConnectionChange marks a single peer connected or available. Connect
// events may arrive before any discovery snapshot mentioned the peer, in
// which case an entry is synthesized. Disconnects demote, never remove.
func (d *PeerDirectory) ApplyConnectionChange(connected bool, peerID string) {
	if peerID == "" {
		return
	}
	d.mu.Lock()
	d.applyConnectionChangeLocked(connected, peerID, d.now())
	d.mu.Unlock()
	d.notify()
}

func (d *PeerDirectory) applyConnectionChangeLocked(connected bool, peerID string, at time.Time) bool {
	p, ok := d.peers[peerID]
	if !ok {
		if !connected {
			return false
		}
		d.order = append(d.order, peerID)
		p = Peer{ID: peerID}
	}

	if connected {
		if ok && p.Status == events.PeerStateConnected {
			return false
		}
		p.Status = events.PeerStateConnected
		p.LastSeenAt = at
	} else {
		if p.Status != events.PeerStateConnected {
			return false
		}
		p.Status = events.PeerStateAvailable
	}
	p.UpdatedAt = at
	d.peers[peerID] = d.finalize(p)
	return true
}

// ApplyTopologyChange reconciles the directory's connected peers with the
// set the radio layer reports and returns the presence transitions to
// publish.
func (d *PeerDirectory) ApplyTopologyChange(change events.TopologyChange) []events.PeerPresence {
	d.mu.Lock()

	at := change.At
	if at.IsZero() {
		at = d.now()
	}

	want := make(map[string]struct{}, len(change.Peers))
	if change.Connected {
		for _, id := range change.Peers {
			if id != "" {
				want[id] = struct{}{}
			}
		}
	}

	var presences []events.PeerPresence
	changed := false
	for _, id := range d.order {
		p := d.peers[id]
		if p.Status != events.PeerStateConnected {
			continue
		}
		if _, keep := want[id]; keep {
			continue
		}
		if d.applyConnectionChangeLocked(false, id, at) {
			changed = true
			presences = append(presences, events.PeerPresence{Kind: events.PresenceLeft, PeerID: id, Name: p.DisplayName(), At: at})
		}
	}
	for id := range want {
		if d.applyConnectionChangeLocked(true, id, at) {
			changed = true
			presences = append(presences, events.PeerPresence{Kind: events.PresenceJoined, PeerID: id, Name: d.peers[id].DisplayName(), At: at})
		}
	}

	d.mu.Unlock()
	if changed {
		d.notify()
	}
	return presences
}

// Snapshot returns the directory contents in stable insertion order.
func (d *PeerDirectory) Snapshot() []Peer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Peer, 0, len(d.order))
	for _, id := range d.order {
		if p, ok := d.peers[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (d *PeerDirectory) Get(peerID string) (Peer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[peerID]
	return p, ok
}

func (d *PeerDirectory) Changes() <-chan struct{} {
	return d.changes
}

func (d *PeerDirectory) Reset() {
	d.mu.Lock()
	d.peers = make(map[string]Peer)
	d.order = nil
	d.mu.Unlock()
	d.notify()
}

func (d *PeerDirectory) finalize(p Peer) Peer {
	return finalizePeer(p)
}

// finalizePeer recomputes the fields derived from status and identity so
// stored and published records never carry stale values.
func finalizePeer(p Peer) Peer {
	if p.Status == "" {
		p.Status = events.PeerStateUnknown
	}
	p.Signal = SignalBars(p.Status)
	p.Emergency = IsEmergencyDevice(p.Name, p.DeviceType)
	return p
}

func (d *PeerDirectory) removeLocked(peerID string) {
	delete(d.peers, peerID)
	for i, id := range d.order {
		if id == peerID {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

func (d *PeerDirectory) notify() {
	select {
	case d.changes <- struct{}{}:
	default:
	}
}
