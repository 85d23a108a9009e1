package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema history is tracked through PRAGMA user_version. Each entry upgrades
// the database by exactly one version and runs inside a transaction together
// with the version bump.
var migrations = []struct {
	version int
	stmts   []string
}{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS peers (
				peer_id TEXT PRIMARY KEY,
				name TEXT NOT NULL DEFAULT '',
				device_type TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT '',
				last_seen_at INTEGER NOT NULL DEFAULT 0,
				updated_at INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS peers_last_seen_at_idx ON peers(last_seen_at DESC);`,
			`CREATE TABLE IF NOT EXISTS messages (
				local_id INTEGER PRIMARY KEY AUTOINCREMENT,
				sender_id TEXT NOT NULL DEFAULT '',
				sender_name TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL,
				sent_at INTEGER NOT NULL,
				mine INTEGER NOT NULL DEFAULT 0
			);`,
			`CREATE INDEX IF NOT EXISTS messages_sent_at_idx ON messages(sent_at);`,
		},
	},
	{
		// Plaintext lines from non-conforming senders are kept with a marker
		// so reloads can distinguish them from structured chat.
		version: 2,
		stmts: []string{
			`ALTER TABLE messages ADD COLUMN fallback INTEGER NOT NULL DEFAULT 0;`,
		},
	},
}

func migrate(ctx context.Context, db *sql.DB) error {
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m.version, m.stmts); err != nil {
			return err
		}
		current = m.version
	}

	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	return version, nil
}

func applyMigration(ctx context.Context, db *sql.DB, version int, stmts []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, version)); err != nil {
		return fmt.Errorf("bump schema version to %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", version, err)
	}

	return nil
}
