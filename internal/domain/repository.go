package domain

import "context"

type PeerRepository interface {
	Upsert(ctx context.Context, p Peer) error
	ListSortedByLastSeen(ctx context.Context) ([]Peer, error)
}

type MessageRepository interface {
	Insert(ctx context.Context, m ChatMessage) (int64, error)
	LoadRecent(ctx context.Context, limit int) ([]ChatMessage, error)
}

// WriteQueue serializes persistence writes from async domain events.
type WriteQueue interface {
	Enqueue(name string, fn func(context.Context) error)
}
