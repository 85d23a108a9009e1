package domain

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/bus"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

type syncWriteQueue struct{}

func (syncWriteQueue) Enqueue(_ string, fn func(context.Context) error) {
	_ = fn(context.Background())
}

type recordingPeerRepo struct {
	mu      sync.Mutex
	upserts []Peer
}

func (r *recordingPeerRepo) Upsert(_ context.Context, p Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, p)

	return nil
}

func (r *recordingPeerRepo) ListSortedByLastSeen(context.Context) ([]Peer, error) {
	return nil, nil
}

func (r *recordingPeerRepo) snapshot() []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Peer, len(r.upserts))
	copy(out, r.upserts)

	return out
}

type recordingMessageRepo struct {
	mu      sync.Mutex
	inserts []ChatMessage
}

func (r *recordingMessageRepo) Insert(_ context.Context, m ChatMessage) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts = append(r.inserts, m)

	return int64(len(r.inserts)), nil
}

func (r *recordingMessageRepo) LoadRecent(context.Context, int) ([]ChatMessage, error) {
	return nil, nil
}

func (r *recordingMessageRepo) snapshot() []ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChatMessage, len(r.inserts))
	copy(out, r.inserts)

	return out
}

func startProjection(t *testing.T, directory *PeerDirectory) (*bus.PubSubBus, *recordingPeerRepo, *recordingMessageRepo) {
	t.Helper()
	b := bus.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(b.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	peerRepo := &recordingPeerRepo{}
	msgRepo := &recordingMessageRepo{}
	StartPersistenceProjection(ctx, b, syncWriteQueue{}, directory, peerRepo, msgRepo)

	return b, peerRepo, msgRepo
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached within deadline")
}

func TestPersistenceProjection_WritesDiscoveredPeers(t *testing.T) {
	b, peerRepo, _ := startProjection(t, NewPeerDirectory())

	b.Publish(events.TopicDiscovery, events.DiscoverySnapshot{
		Peers: []events.DiscoveredPeer{
			{ID: "peer-a", Name: "Rescue Boat", Status: events.PeerStateAvailable},
			{ID: "peer-b", Name: "Phone", Status: events.PeerStateAvailable},
		},
		At: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})

	waitForCondition(t, func() bool { return len(peerRepo.snapshot()) == 2 })

	first := peerRepo.snapshot()[0]
	if first.ID != "peer-a" || !first.Emergency {
		t.Fatalf("expected finalized rescue peer first, got %+v", first)
	}
	if first.Signal != SignalBarsAvailable {
		t.Fatalf("expected derived signal persisted record, got %d", first.Signal)
	}
}

func TestPersistenceProjection_PresenceUsesDirectoryRecord(t *testing.T) {
	directory := NewPeerDirectory()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	directory.ApplyDiscoverySnapshot(events.DiscoverySnapshot{
		Peers: []events.DiscoveredPeer{{ID: "peer-a", Name: "Alice", DeviceType: "tablet"}},
		At:    base,
	})
	directory.ApplyConnectionChange(true, "peer-a")

	b, peerRepo, _ := startProjection(t, directory)

	b.Publish(events.TopicPresence, events.PeerPresence{
		Kind:   events.PresenceJoined,
		PeerID: "peer-a",
		Name:   "Alice",
		At:     base.Add(time.Second),
	})

	waitForCondition(t, func() bool { return len(peerRepo.snapshot()) == 1 })

	got := peerRepo.snapshot()[0]
	if got.DeviceType != "tablet" {
		t.Fatalf("expected device type from directory record, got %q", got.DeviceType)
	}
	if got.Status != events.PeerStateConnected {
		t.Fatalf("expected connected status, got %s", got.Status)
	}
}

func TestPersistenceProjection_PresenceForUnknownPeerSynthesizesRecord(t *testing.T) {
	b, peerRepo, _ := startProjection(t, NewPeerDirectory())

	b.Publish(events.TopicPresence, events.PeerPresence{
		Kind:   events.PresenceJoined,
		PeerID: "ghost",
		Name:   "Ghost",
	})

	waitForCondition(t, func() bool { return len(peerRepo.snapshot()) == 1 })

	got := peerRepo.snapshot()[0]
	if got.ID != "ghost" || got.Status != events.PeerStateConnected {
		t.Fatalf("expected synthesized connected record, got %+v", got)
	}
}

func TestPersistenceProjection_MirrorsChatMessages(t *testing.T) {
	b, _, msgRepo := startProjection(t, NewPeerDirectory())

	b.Publish(events.TopicMessage, ChatMessage{
		SenderID:   "peer-a",
		SenderName: "Alice",
		Text:       "supplies at the school",
		SentAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})

	waitForCondition(t, func() bool { return len(msgRepo.snapshot()) == 1 })

	if got := msgRepo.snapshot()[0].Text; got != "supplies at the school" {
		t.Fatalf("expected message text mirrored, got %q", got)
	}
}
