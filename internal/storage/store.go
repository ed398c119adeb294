// Package storage provides the path-keyed key/value log the orchestrator
// persists its state into. Keys are path segments such as
// ["message", sessionID, messageID]; values are JSON-serializable blobs.
//
// The core depends only on the Store contract and never observes whether a
// backend is in-memory, file-backed, or remote.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by ReadInto and Update when the key is absent.
var ErrNotFound = errors.New("not found")

// NotFoundError wraps ErrNotFound with the missing key.
type NotFoundError struct {
	Key []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", strings.Join(e.Key, "/"))
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// IsNotFound reports whether err means a missing key.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Store is the key/value log contract.
//
// Writes are durable before the call returns; List is consistent with
// writes from the same process; concurrent writes to one key serialize.
type Store interface {
	// Write marshals value as JSON and stores it under key.
	Write(ctx context.Context, key []string, value any) error

	// Read returns the raw JSON for key, or (nil, nil) when absent.
	Read(ctx context.Context, key []string) (json.RawMessage, error)

	// ReadInto unmarshals the value for key into out, returning a
	// *NotFoundError when absent.
	ReadInto(ctx context.Context, key []string, out any) error

	// Update reads the value for key into a generic map, applies fn, and
	// writes the result back.
	Update(ctx context.Context, key []string, fn func(map[string]any)) (map[string]any, error)

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key []string) error

	// List returns every key under the given prefix.
	List(ctx context.Context, prefix []string) ([][]string, error)

	// Clear removes everything.
	Clear(ctx context.Context) error
}

// JoinKey renders a key as its canonical slash-joined path.
func JoinKey(key []string) string { return strings.Join(key, "/") }

// SplitKey parses a slash-joined path back into segments.
func SplitKey(path string) []string { return strings.Split(path, "/") }

// readInto is the shared ReadInto implementation over Read.
func readInto(ctx context.Context, s Store, key []string, out any) error {
	raw, err := s.Read(ctx, key)
	if err != nil {
		return err
	}
	if raw == nil {
		return &NotFoundError{Key: key}
	}
	return json.Unmarshal(raw, out)
}

// update is the shared Update implementation over ReadInto/Write.
func update(ctx context.Context, s Store, key []string, fn func(map[string]any)) (map[string]any, error) {
	var data map[string]any
	if err := s.ReadInto(ctx, key, &data); err != nil {
		return nil, err
	}
	fn(data)
	if err := s.Write(ctx, key, data); err != nil {
		return nil, err
	}
	return data, nil
}
