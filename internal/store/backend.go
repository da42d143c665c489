package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fieldworkshq/surveysync/internal/survey"
	"go.uber.org/zap"
)

// SnapshotStore is a durable home for the full collection snapshot. Save
// overwrites the previous snapshot wholesale; there is no incremental write.
type SnapshotStore interface {
	Load() (survey.Snapshot, error)
	Save(snapshot survey.Snapshot) error
}

// JSONFileStore persists the snapshot as a single JSON document on disk,
// the layout the browser clients and the relay have always shared:
// {"surveys": [...], "files": {...}}.
type JSONFileStore struct {
	path   string
	logger *zap.Logger
}

// NewJSONFileStore constructs a file-backed snapshot store.
func NewJSONFileStore(path string, logger *zap.Logger) (*JSONFileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store: snapshot file path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONFileStore{path: path, logger: logger}, nil
}

// Load reads the snapshot document. A missing or unreadable file yields an
// empty collection; so does corrupt JSON. Corruption is recoverable, never
// fatal — the store logs and starts fresh.
func (f *JSONFileStore) Load() (survey.Snapshot, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn("snapshot file unreadable, starting empty",
				zap.String("path", f.path), zap.Error(err))
		}
		return survey.EmptySnapshot(), nil
	}

	var snapshot survey.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		f.logger.Warn("snapshot file corrupt, starting empty",
			zap.String("path", f.path), zap.Error(err))
		return survey.EmptySnapshot(), nil
	}
	snapshot.Normalize()
	return snapshot, nil
}

// Save writes the snapshot atomically: the document lands in a temp file in
// the same directory and is renamed over the previous snapshot.
func (f *JSONFileStore) Save(snapshot survey.Snapshot) error {
	encoded, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("store: create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("store: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: close snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: replace snapshot: %w", err)
	}
	return nil
}

// MemoryStore keeps the snapshot in process memory. It backs the local-only
// client mode and tests, where durability across restarts is not wanted.
type MemoryStore struct {
	mu       sync.Mutex
	snapshot survey.Snapshot
	loaded   bool
}

// NewMemoryStore constructs an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the last saved snapshot, or an empty collection.
func (m *MemoryStore) Load() (survey.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return survey.EmptySnapshot(), nil
	}
	return m.snapshot.Clone(), nil
}

// Save retains a copy of the snapshot.
func (m *MemoryStore) Save(snapshot survey.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = snapshot.Clone()
	m.loaded = true
	return nil
}
