package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound means no snapshot exists yet under the given name. Components
// treat this as "start from seed state", not as a failure.
var ErrNotFound = errors.New("snapshot not found")

// Store persists one named JSON document per component.
type Store interface {
	Load(ctx context.Context, name string, target interface{}) error
	Save(ctx context.Context, name string, data interface{}) error
}

// LocalStore keeps snapshots as indented JSON files in a data directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the data directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) path(name string) string {
	// Sanitize name for filename
	return filepath.Join(s.dir, filepath.Base(name)+".json")
}

// Load reads a snapshot into target. Returns ErrNotFound when the file does
// not exist.
func (s *LocalStore) Load(_ context.Context, name string, target interface{}) error {
	data, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading snapshot %s: %w", name, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshaling snapshot %s: %w", name, err)
	}
	return nil
}

// Save writes the snapshot atomically (temp file + rename) so a crash mid-write
// never leaves a truncated document behind.
func (s *LocalStore) Save(_ context.Context, name string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot %s: %w", name, err)
	}

	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, jsonData, 0644); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", name, err)
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		return fmt.Errorf("renaming snapshot %s: %w", name, err)
	}
	return nil
}

// Writer performs fire-and-forget snapshot writes for one component. The
// component's state is serialized synchronously (callers still hold their
// state mutex), then flushed by a single background goroutine so writes for
// a name can never land out of order. Rapid mutations coalesce: only the
// newest pending state reaches the store.
type Writer struct {
	store Store
	name  string

	mu       sync.Mutex
	pending  []byte
	flushing bool
}

// NewWriter creates a writer for a named snapshot. A nil store yields a
// writer whose Save is a no-op.
func NewWriter(store Store, name string) *Writer {
	return &Writer{store: store, name: name}
}

// Save queues the serialized state for a background write. Failures are
// logged; they never propagate to the mutating operation.
func (w *Writer) Save(data interface{}) {
	if w == nil || w.store == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("Snapshot: failed to serialize %s: %v", w.name, err)
		return
	}

	w.mu.Lock()
	w.pending = raw
	start := !w.flushing
	if start {
		w.flushing = true
	}
	w.mu.Unlock()

	if start {
		go w.flush()
	}
}

func (w *Writer) flush() {
	for {
		w.mu.Lock()
		raw := w.pending
		w.pending = nil
		if raw == nil {
			w.flushing = false
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()

		if err := w.store.Save(context.Background(), w.name, json.RawMessage(raw)); err != nil {
			log.Printf("Snapshot: failed to save %s: %v", w.name, err)
		}
	}
}
