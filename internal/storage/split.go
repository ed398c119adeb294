package storage

import (
	"context"
	"encoding/json"
)

// SplitStore routes keys to one of two backends by their first path
// segment. Conversation state (sessions, messages) can live in a durable
// backend while auxiliary namespaces stay local.
type SplitStore struct {
	primary       Store
	local         Store
	primaryPrefix map[string]bool
}

// NewSplitStore creates a router sending the given first-segment prefixes
// to primary and everything else to local.
func NewSplitStore(primary, local Store, prefixes ...string) *SplitStore {
	set := make(map[string]bool, len(prefixes))
	for _, p := range prefixes {
		set[p] = true
	}
	return &SplitStore{primary: primary, local: local, primaryPrefix: set}
}

func (s *SplitStore) route(key []string) Store {
	if len(key) > 0 && s.primaryPrefix[key[0]] {
		return s.primary
	}
	return s.local
}

func (s *SplitStore) Write(ctx context.Context, key []string, value any) error {
	return s.route(key).Write(ctx, key, value)
}

func (s *SplitStore) Read(ctx context.Context, key []string) (json.RawMessage, error) {
	return s.route(key).Read(ctx, key)
}

func (s *SplitStore) ReadInto(ctx context.Context, key []string, out any) error {
	return s.route(key).ReadInto(ctx, key, out)
}

func (s *SplitStore) Update(ctx context.Context, key []string, fn func(map[string]any)) (map[string]any, error) {
	return s.route(key).Update(ctx, key, fn)
}

func (s *SplitStore) Remove(ctx context.Context, key []string) error {
	return s.route(key).Remove(ctx, key)
}

func (s *SplitStore) List(ctx context.Context, prefix []string) ([][]string, error) {
	return s.route(prefix).List(ctx, prefix)
}

// Clear clears both backends.
func (s *SplitStore) Clear(ctx context.Context) error {
	if err := s.primary.Clear(ctx); err != nil {
		return err
	}
	return s.local.Clear(ctx)
}
