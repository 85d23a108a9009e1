package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/domain"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

type PeerRepo struct {
	db *sql.DB
}

func NewPeerRepo(db *sql.DB) *PeerRepo {
	return &PeerRepo{db: db}
}

// Upsert writes the durable subset of a peer. Signal and the emergency flag
// are derived from stored fields on load, so they are not persisted.
func (r *PeerRepo) Upsert(ctx context.Context, p domain.Peer) error {
	if p.ID == "" {
		return fmt.Errorf("upsert peer: empty peer id")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO peers(peer_id, name, device_type, status, last_seen_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(peer_id) DO UPDATE SET
			name = excluded.name,
			device_type = excluded.device_type,
			status = excluded.status,
			last_seen_at = excluded.last_seen_at,
			updated_at = excluded.updated_at
	`, p.ID, p.Name, p.DeviceType, string(p.Status), toUnixMillis(p.LastSeenAt), toUnixMillis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert peer: %w", err)
	}

	return nil
}

func (r *PeerRepo) ListSortedByLastSeen(ctx context.Context) ([]domain.Peer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT peer_id, name, device_type, status, last_seen_at, updated_at
		FROM peers
		ORDER BY last_seen_at DESC, peer_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.Peer
	for rows.Next() {
		var (
			p        domain.Peer
			status   string
			seenMs   int64
			updateMs int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.DeviceType, &status, &seenMs, &updateMs); err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		p.Status = events.PeerState(status)
		p.LastSeenAt = fromUnixMillis(seenMs)
		p.UpdatedAt = fromUnixMillis(updateMs)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate peers: %w", err)
	}

	return out, nil
}
