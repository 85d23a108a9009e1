package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/domain"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

func TestClearDatabase_EmptiesAllTables(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	now := time.Now().UTC()
	require.NoError(t, NewPeerRepo(db).Upsert(ctx, domain.Peer{
		ID:         "peer-1",
		Name:       "Base Camp",
		Status:     events.PeerStateAvailable,
		LastSeenAt: now,
		UpdatedAt:  now,
	}))
	_, err := NewMessageRepo(db).Insert(ctx, domain.ChatMessage{
		SenderID: "peer-1",
		Text:     "hello",
		SentAt:   now,
	})
	require.NoError(t, err)

	require.NoError(t, ClearDatabase(ctx, db))

	for _, table := range []string{"peers", "messages"} {
		var count int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+`;`).Scan(&count))
		assert.Zero(t, count, "expected %s to be empty after clear", table)
	}
}

func TestClearDatabase_NilHandleFails(t *testing.T) {
	assert.Error(t, ClearDatabase(context.Background(), nil))
}
