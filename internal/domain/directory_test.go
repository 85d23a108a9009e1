package domain

import (
	"testing"
	"time"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

func snapshotOf(at time.Time, peers ...events.DiscoveredPeer) events.DiscoverySnapshot {
	return events.DiscoverySnapshot{Peers: peers, At: at}
}

func TestDirectorySnapshot_KeepsConnectedPeerMissingFromRefresh(t *testing.T) {
	dir := NewPeerDirectory()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	dir.ApplyDiscoverySnapshot(snapshotOf(base,
		events.DiscoveredPeer{ID: "peer-a", Name: "Alice", Status: events.PeerStateAvailable},
		events.DiscoveredPeer{ID: "peer-b", Name: "Bob", Status: events.PeerStateAvailable},
	))
	dir.ApplyConnectionChange(true, "peer-a")

	dir.ApplyDiscoverySnapshot(snapshotOf(base.Add(10*time.Second),
		events.DiscoveredPeer{ID: "peer-b", Name: "Bob", Status: events.PeerStateAvailable},
	))

	p, ok := dir.Get("peer-a")
	if !ok {
		t.Fatalf("expected connected peer to survive the refresh")
	}
	if p.Status != events.PeerStateConnected {
		t.Fatalf("expected peer-a to stay connected, got %s", p.Status)
	}
	if !p.LastSeenAt.Equal(base.Add(10 * time.Second)) {
		t.Fatalf("expected last-seen refreshed to snapshot time, got %v", p.LastSeenAt)
	}
}

func TestDirectorySnapshot_DemotesAbsentPeerAndExpiresStaleOnes(t *testing.T) {
	dir := NewPeerDirectory()
	dir.expiry = time.Minute
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	dir.ApplyDiscoverySnapshot(snapshotOf(base,
		events.DiscoveredPeer{ID: "peer-a", Status: events.PeerStateAvailable},
	))

	dir.ApplyDiscoverySnapshot(snapshotOf(base.Add(30 * time.Second)))
	p, ok := dir.Get("peer-a")
	if !ok {
		t.Fatalf("expected recently seen peer to remain listed")
	}
	if p.Status != events.PeerStateUnavailable {
		t.Fatalf("expected absent peer demoted to unavailable, got %s", p.Status)
	}

	dir.ApplyDiscoverySnapshot(snapshotOf(base.Add(2 * time.Minute)))
	if _, ok := dir.Get("peer-a"); ok {
		t.Fatalf("expected stale peer removed after expiry window")
	}
}

func TestDirectorySnapshot_RefreshDoesNotDemoteConnectedPeer(t *testing.T) {
	dir := NewPeerDirectory()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	dir.ApplyDiscoverySnapshot(snapshotOf(base,
		events.DiscoveredPeer{ID: "peer-a", Status: events.PeerStateAvailable},
	))
	dir.ApplyConnectionChange(true, "peer-a")

	// The radio layer can report a connected peer as merely available in a
	// discovery refresh; connection state is owned by topology events.
	dir.ApplyDiscoverySnapshot(snapshotOf(base.Add(time.Second),
		events.DiscoveredPeer{ID: "peer-a", Status: events.PeerStateAvailable},
	))

	p, _ := dir.Get("peer-a")
	if p.Status != events.PeerStateConnected {
		t.Fatalf("expected refresh to keep connected status, got %s", p.Status)
	}
}

func TestDirectoryConnectionChange_SynthesizesUnknownPeer(t *testing.T) {
	dir := NewPeerDirectory()

	dir.ApplyConnectionChange(true, "peer-x")

	p, ok := dir.Get("peer-x")
	if !ok {
		t.Fatalf("expected entry synthesized for unknown connected peer")
	}
	if p.Status != events.PeerStateConnected {
		t.Fatalf("expected synthesized peer connected, got %s", p.Status)
	}
	if p.Signal != SignalBarsConnected {
		t.Fatalf("expected full signal for connected peer, got %d", p.Signal)
	}
}

func TestDirectoryConnectionChange_DisconnectDemotesWithoutRemoving(t *testing.T) {
	dir := NewPeerDirectory()
	dir.ApplyConnectionChange(true, "peer-x")

	dir.ApplyConnectionChange(false, "peer-x")

	p, ok := dir.Get("peer-x")
	if !ok {
		t.Fatalf("expected disconnected peer to remain listed")
	}
	if p.Status != events.PeerStateAvailable {
		t.Fatalf("expected disconnect to demote to available, got %s", p.Status)
	}
}

func TestDirectoryTopologyChange_DiffsConnectedSetIntoPresences(t *testing.T) {
	dir := NewPeerDirectory()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dir.ApplyDiscoverySnapshot(snapshotOf(base,
		events.DiscoveredPeer{ID: "peer-a", Name: "Alice", Status: events.PeerStateAvailable},
	))

	joined := dir.ApplyTopologyChange(events.TopologyChange{Connected: true, Peers: []string{"peer-a"}, At: base})
	if len(joined) != 1 || joined[0].Kind != events.PresenceJoined || joined[0].PeerID != "peer-a" {
		t.Fatalf("expected one joined presence for peer-a, got %+v", joined)
	}
	if joined[0].Name != "Alice" {
		t.Fatalf("expected presence to carry display name, got %q", joined[0].Name)
	}

	repeat := dir.ApplyTopologyChange(events.TopologyChange{Connected: true, Peers: []string{"peer-a"}, At: base.Add(time.Second)})
	if len(repeat) != 0 {
		t.Fatalf("expected unchanged topology to produce no presences, got %+v", repeat)
	}

	left := dir.ApplyTopologyChange(events.TopologyChange{Connected: false, At: base.Add(2 * time.Second)})
	if len(left) != 1 || left[0].Kind != events.PresenceLeft || left[0].PeerID != "peer-a" {
		t.Fatalf("expected one left presence for peer-a, got %+v", left)
	}
	p, _ := dir.Get("peer-a")
	if p.Status != events.PeerStateAvailable {
		t.Fatalf("expected departed peer demoted to available, got %s", p.Status)
	}
}

func TestDirectorySnapshot_PreservesInsertionOrder(t *testing.T) {
	dir := NewPeerDirectory()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	dir.ApplyDiscoverySnapshot(snapshotOf(base,
		events.DiscoveredPeer{ID: "peer-c"},
		events.DiscoveredPeer{ID: "peer-a"},
	))
	dir.ApplyDiscoverySnapshot(snapshotOf(base.Add(time.Second),
		events.DiscoveredPeer{ID: "peer-a"},
		events.DiscoveredPeer{ID: "peer-b"},
	))

	snap := dir.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected three peers, got %d", len(snap))
	}
	got := []string{snap[0].ID, snap[1].ID, snap[2].ID}
	want := []string{"peer-c", "peer-a", "peer-b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestDirectory_DerivesEmergencyFlagFromNameAndType(t *testing.T) {
	dir := NewPeerDirectory()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	dir.ApplyDiscoverySnapshot(snapshotOf(base,
		events.DiscoveredPeer{ID: "peer-a", Name: "Field MEDICAL kit"},
		events.DiscoveredPeer{ID: "peer-b", Name: "Phone", DeviceType: "rescue-beacon"},
		events.DiscoveredPeer{ID: "peer-c", Name: "Plain phone"},
	))

	a, _ := dir.Get("peer-a")
	b, _ := dir.Get("peer-b")
	c, _ := dir.Get("peer-c")
	if !a.Emergency || !b.Emergency {
		t.Fatalf("expected keyword matches flagged as emergency devices")
	}
	if c.Emergency {
		t.Fatalf("expected plain device not flagged")
	}
}
