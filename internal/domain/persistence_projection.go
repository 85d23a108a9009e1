package domain

import (
	"context"
	"time"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/bus"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

// StartPersistenceProjection mirrors bus events into the repositories via
// the write queue so the UI-facing stores never wait on the database.
func StartPersistenceProjection(ctx context.Context, b bus.MessageBus, queue WriteQueue, directory *PeerDirectory, peerRepo PeerRepository, msgRepo MessageRepository) {
	discoverySub := b.Subscribe(events.TopicDiscovery)
	presenceSub := b.Subscribe(events.TopicPresence)
	messageSub := b.Subscribe(events.TopicMessage)

	go func() {
		defer b.Unsubscribe(discoverySub, events.TopicDiscovery)
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
				at := snap.At
				if at.IsZero() {
					at = time.Now()
				}
				for _, discovered := range snap.Peers {
					if discovered.ID == "" {
						continue
					}
					p := finalizePeer(Peer{
						ID:         discovered.ID,
						Name:       discovered.Name,
						DeviceType: discovered.DeviceType,
						Status:     discovered.Status,
						LastSeenAt: at,
						UpdatedAt:  at,
					})
					queue.Enqueue("upsert_peer", func(writeCtx context.Context) error {
						return peerRepo.Upsert(writeCtx, p)
					})
				}
			}
		}
	}()

	go func() {
		defer b.Unsubscribe(presenceSub, events.TopicPresence)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-presenceSub:
				if !ok {
					return
				}
				presence, ok := raw.(events.PeerPresence)
				if !ok || presence.PeerID == "" {
					continue
				}
				// The directory applies a topology change before publishing
				// its presence events, so its record is current here and
				// keeps fields the event does not carry, like device type.
				p, ok := directory.Get(presence.PeerID)
				if !ok {
					at := presence.At
					if at.IsZero() {
						at = time.Now()
					}
					status := events.PeerStateAvailable
					if presence.Kind == events.PresenceJoined {
						status = events.PeerStateConnected
					}
					p = finalizePeer(Peer{
						ID:         presence.PeerID,
						Name:       presence.Name,
						Status:     status,
						LastSeenAt: at,
						UpdatedAt:  at,
					})
				}
				queue.Enqueue("upsert_peer_presence", func(writeCtx context.Context) error {
					return peerRepo.Upsert(writeCtx, p)
				})
			}
		}
	}()

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
				copyMsg := msg
				queue.Enqueue("insert_message", func(writeCtx context.Context) error {
					_, err := msgRepo.Insert(writeCtx, copyMsg)
					return err
				})
			}
		}
	}()
}
