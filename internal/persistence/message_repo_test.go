package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/domain"
)

func TestMessageRepoLoadRecent_ReturnsNewestInChronologicalOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepo(openTestDB(t))

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		_, err := repo.Insert(ctx, domain.ChatMessage{
			SenderID:   "device-a",
			SenderName: "Ada",
			Text:       fmt.Sprintf("message %d", i),
			SentAt:     base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	msgs, err := repo.LoadRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3, "limit caps the result")

	assert.Equal(t, "message 2", msgs[0].Text, "window starts at the oldest of the newest three")
	assert.Equal(t, "message 3", msgs[1].Text)
	assert.Equal(t, "message 4", msgs[2].Text)
	assert.True(t, msgs[0].SentAt.Before(msgs[1].SentAt), "chronological order, oldest first")
}

func TestMessageRepoInsert_RoundTripsFlags(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepo(openTestDB(t))

	sent := time.Now().UTC().Truncate(time.Millisecond)
	id, err := repo.Insert(ctx, domain.ChatMessage{
		SenderID:   "device-local",
		SenderName: "Me",
		Text:       "own structured message",
		SentAt:     sent,
		Mine:       true,
	})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	_, err = repo.Insert(ctx, domain.ChatMessage{
		SenderName: "10.0.0.2",
		Text:       "HELP plain line",
		SentAt:     sent.Add(time.Second),
		Fallback:   true,
	})
	require.NoError(t, err)

	msgs, err := repo.LoadRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.True(t, msgs[0].Mine)
	assert.False(t, msgs[0].Fallback)
	assert.True(t, msgs[0].SentAt.Equal(sent))
	assert.False(t, msgs[1].Mine)
	assert.True(t, msgs[1].Fallback)
	assert.Equal(t, "", msgs[1].SenderID, "fallback lines have no sender id")
}

func TestMessageRepoLoadRecent_NonPositiveLimitReturnsNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepo(openTestDB(t))

	_, err := repo.Insert(ctx, domain.ChatMessage{Text: "row", SentAt: time.Now()})
	require.NoError(t, err)

	msgs, err := repo.LoadRecent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
