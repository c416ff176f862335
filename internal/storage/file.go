package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mofkobot/pkg/logx"
)

// fileStore is a dependency-free persistence backend: one JSON file holding
// every namespace, rewritten atomically (tmp + rename) on each Set/Delete.
type fileStore struct {
	log  logx.Logger
	path string

	mu   sync.Mutex
	data map[string]map[string]json.RawMessage
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: path, data: map[string]map[string]json.RawMessage{}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) load() error {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, &s.data)
}

func (s *fileStore) flushLocked() error {
	b, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) Get(ctx context.Context, namespace, key string) (json.RawMessage, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.data[namespace]
	if ns == nil {
		return nil, ErrNotFound
	}
	v, ok := ns[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make(json.RawMessage, len(v))
	copy(cp, v)
	return cp, nil
}

func (s *fileStore) Set(ctx context.Context, namespace, key string, value json.RawMessage) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.data[namespace]
	if ns == nil {
		ns = map[string]json.RawMessage{}
		s.data[namespace] = ns
	}
	cp := make(json.RawMessage, len(value))
	copy(cp, value)
	ns[key] = cp
	return s.flushLocked()
}

func (s *fileStore) Delete(ctx context.Context, namespace, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.data[namespace]
	if ns == nil {
		return nil
	}
	if _, ok := ns[key]; !ok {
		return nil
	}
	delete(ns, key)
	if len(ns) == 0 {
		delete(s.data, namespace)
	}
	return s.flushLocked()
}

func (s *fileStore) Close() error { return nil }
