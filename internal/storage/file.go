package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"duebot/pkg/logx"
)

// fileStore is the dependency-free backend: one JSON document, rewritten
// atomically (temp file + rename) on every mutation. Good enough for the
// handful of writes per day this subsystem does.
type fileStore struct {
	path string
	log  logx.Logger

	mu   sync.Mutex
	data fileData
}

type fileData struct {
	Settings map[string]Settings `json:"settings,omitempty"`
	Marks    map[string]string   `json:"marks,omitempty"` // scope -> last sent calendar date
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "./duebot_store.json"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	st := &fileStore{path: path, log: log}
	st.data = fileData{Settings: map[string]Settings{}, Marks: map[string]string{}}

	b, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// fresh store
	case err != nil:
		return nil, err
	default:
		var d fileData
		if jerr := json.Unmarshal(b, &d); jerr != nil {
			// Malformed state is treated as absent, not fatal.
			log.Warn("store file unreadable; starting empty", logx.String("path", path), logx.Err(jerr))
		} else {
			if d.Settings == nil {
				d.Settings = map[string]Settings{}
			}
			if d.Marks == nil {
				d.Marks = map[string]string{}
			}
			st.data = d
		}
	}
	return st, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) LoadSettings(ctx context.Context, scope string) (Settings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data.Settings[scope]
	return v, ok, nil
}

func (s *fileStore) SaveSettings(ctx context.Context, scope string, v Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Settings[scope] = v
	return s.flushLocked()
}

func (s *fileStore) LastSent(ctx context.Context, scope string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data.Marks[scope]
	return d, ok, nil
}

func (s *fileStore) TryMarkSent(ctx context.Context, scope, date string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Marks[scope] == date {
		return false, nil
	}
	s.data.Marks[scope] = date
	if err := s.flushLocked(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStore) flushLocked() error {
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
