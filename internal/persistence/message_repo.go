package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) Insert(ctx context.Context, m domain.ChatMessage) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages(sender_id, sender_name, body, sent_at, mine, fallback)
		VALUES(?, ?, ?, ?, ?, ?)
	`, m.SenderID, m.SenderName, m.Text, toUnixMillis(m.SentAt), boolToInt(m.Mine), boolToInt(m.Fallback))
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get message local id: %w", err)
	}

	return id, nil
}

// LoadRecent returns up to limit of the newest messages in chronological
// order, oldest first.
func (r *MessageRepo) LoadRecent(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT local_id, sender_id, sender_name, body, sent_at, mine, fallback
		FROM messages
		ORDER BY sent_at DESC, local_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent messages: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out, nil
}

func scanMessage(scanner interface {
	Scan(dest ...any) error
}) (domain.ChatMessage, error) {
	var (
		m        domain.ChatMessage
		sentMs   int64
		mine     int64
		fallback int64
	)
	if err := scanner.Scan(&m.LocalID, &m.SenderID, &m.SenderName, &m.Text, &sentMs, &mine, &fallback); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("scan message: %w", err)
	}
	m.SentAt = fromUnixMillis(sentMs)
	m.Mine = mine != 0
	m.Fallback = fallback != 0

	return m, nil
}
