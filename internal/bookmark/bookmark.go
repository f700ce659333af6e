// Package bookmark persists, per live source, the id of the last record
// whose batch was acknowledged, so a restarted service resumes after it.
package bookmark

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Entry is the persisted state of one source.
type Entry struct {
	RecordID  uint64    `yaml:"record_id"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

type document struct {
	Sources map[string]Entry `yaml:"sources"`
}

// Store is a YAML file of bookmarks keyed by source name. Commits are
// written through with a rename so the file is never left half written.
// A Store with an empty path keeps bookmarks in memory only.
type Store struct {
	mu      sync.Mutex
	path    string
	sources map[string]Entry
	now     func() time.Time
}

// Open loads the store at path. A missing file is an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, sources: map[string]Entry{}, now: time.Now}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("bookmark: read %s: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("bookmark: parse %s: %w", path, err)
	}
	for name, e := range doc.Sources {
		s.sources[name] = e
	}
	return s, nil
}

// Get returns the last committed record id for source, 0 when none.
func (s *Store) Get(source string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sources[source].RecordID
}

// Commit records recordID for source and persists the store. Bookmarks
// never move backwards; a lower id is ignored.
func (s *Store) Commit(source string, recordID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if recordID <= s.sources[source].RecordID {
		return nil
	}
	s.sources[source] = Entry{RecordID: recordID, UpdatedAt: s.now().UTC()}
	return s.persistLocked()
}

// Snapshot returns a copy of all bookmarks.
func (s *Store) Snapshot() map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Entry, len(s.sources))
	for k, v := range s.sources {
		out[k] = v
	}
	return out
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(document{Sources: s.sources})
	if err != nil {
		return fmt.Errorf("bookmark: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("bookmark: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("bookmark: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("bookmark: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("bookmark: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("bookmark: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("bookmark: rename: %w", err)
	}
	return nil
}
