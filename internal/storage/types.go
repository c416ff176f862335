package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("storage: key not found")
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSON file backend (snapshot + atomic rename)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the minimal persistence API consumed by plugins and services.
// Values are opaque JSON documents.
type Store interface {
	Get(ctx context.Context, namespace, key string) (json.RawMessage, error)
	Set(ctx context.Context, namespace, key string, value json.RawMessage) error
	Delete(ctx context.Context, namespace, key string) error
	Close() error
}

// GetJSON loads (namespace, key) into out. A missing key leaves out untouched
// and returns false.
func GetJSON(ctx context.Context, s Store, namespace, key string, out any) (bool, error) {
	if s == nil {
		return false, ErrDisabled
	}
	raw, err := s.Get(ctx, namespace, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and stores it under (namespace, key).
func SetJSON(ctx context.Context, s Store, namespace, key string, v any) error {
	if s == nil {
		return ErrDisabled
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, namespace, key, b)
}
