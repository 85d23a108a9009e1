package domain

import (
	"context"
	"fmt"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

const defaultRecentMessagesLoad = 200

// LoadStoresFromRepositories seeds the in-memory stores from the database.
// Persisted peers describe a previous session, so every loaded entry starts
// out unavailable until discovery says otherwise.
func LoadStoresFromRepositories(ctx context.Context, directory *PeerDirectory, log *MessageLog, peerRepo PeerRepository, msgRepo MessageRepository) error {
	peers, err := peerRepo.ListSortedByLastSeen(ctx)
	if err != nil {
		return fmt.Errorf("load peers from db: %w", err)
	}
	messages, err := msgRepo.LoadRecent(ctx, defaultRecentMessagesLoad)
	if err != nil {
		return fmt.Errorf("load messages from db: %w", err)
	}

	for i := range peers {
		peers[i].Status = events.PeerStateUnavailable
	}
	directory.Load(peers)
	log.Load(messages)

	return nil
}
