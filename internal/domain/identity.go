package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Identity is this device's stable chat identity. The ID is generated once
// per install and persisted; the display name follows the current config.
type Identity struct {
	ID   string
	Name string
}

type identityFile struct {
	ID string `json:"id"`
}

// LoadOrCreateIdentity returns the persisted device identifier, generating
// and persisting a fresh one on first run or when the stored file is
// unreadable.
func LoadOrCreateIdentity(path, displayName string) (Identity, error) {
	if id, ok := readIdentityID(path); ok {
		return Identity{ID: id, Name: displayName}, nil
	}

	id := uuid.NewString()
	raw, err := json.MarshalIndent(identityFile{ID: id}, "", "  ")
	if err != nil {
		return Identity{}, fmt.Errorf("encode identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return Identity{}, fmt.Errorf("create identity dir: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return Identity{}, fmt.Errorf("write temp identity: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return Identity{}, fmt.Errorf("rename temp identity: %w", err)
	}

	return Identity{ID: id, Name: displayName}, nil
}

func readIdentityID(path string) (string, bool) {
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by app runtime and points to user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", false
	}

	var stored identityFile
	if err := json.Unmarshal(raw, &stored); err != nil {
		return "", false
	}
	id := strings.TrimSpace(stored.ID)
	if id == "" {
		return "", false
	}
	return id, true
}
