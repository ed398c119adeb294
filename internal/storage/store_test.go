package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := []string{"session", "ses_1"}
			if err := s.Write(ctx, key, map[string]any{"id": "ses_1", "title": "hi"}); err != nil {
				t.Fatal(err)
			}
			var got map[string]any
			if err := s.ReadInto(ctx, key, &got); err != nil {
				t.Fatal(err)
			}
			if got["title"] != "hi" {
				t.Fatalf("title = %v", got["title"])
			}
		})
	}
}

func TestReadAbsentKey(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			raw, err := s.Read(ctx, []string{"session", "nope"})
			if err != nil || raw != nil {
				t.Fatalf("Read absent = (%v, %v), want (nil, nil)", raw, err)
			}

			var out map[string]any
			err = s.ReadInto(ctx, []string{"session", "nope"}, &out)
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("ReadInto absent err = %v, want ErrNotFound", err)
			}
			var nf *NotFoundError
			if !errors.As(err, &nf) {
				t.Fatalf("err %T does not unwrap to *NotFoundError", err)
			}
		})
	}
}

func TestUpdateMutatesInPlace(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := []string{"session", "ses_1"}
			if err := s.Write(ctx, key, map[string]any{"title": "old", "cost": 1.0}); err != nil {
				t.Fatal(err)
			}
			got, err := s.Update(ctx, key, func(m map[string]any) {
				m["title"] = "new"
			})
			if err != nil {
				t.Fatal(err)
			}
			if got["title"] != "new" || got["cost"] != 1.0 {
				t.Fatalf("updated = %v", got)
			}

			var persisted map[string]any
			if err := s.ReadInto(ctx, key, &persisted); err != nil {
				t.Fatal(err)
			}
			if persisted["title"] != "new" {
				t.Fatalf("persisted title = %v", persisted["title"])
			}
		})
	}
}

func TestUpdateAbsentKey(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Update(ctx, []string{"session", "nope"}, func(map[string]any) {})
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestListReturnsSortedKeysUnderPrefix(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range [][]string{
				{"message", "ses_1", "msg_b"},
				{"message", "ses_1", "msg_a"},
				{"message", "ses_2", "msg_c"},
				{"session", "ses_1"},
			} {
				if err := s.Write(ctx, k, map[string]any{}); err != nil {
					t.Fatal(err)
				}
			}
			keys, err := s.List(ctx, []string{"message", "ses_1"})
			if err != nil {
				t.Fatal(err)
			}
			want := [][]string{
				{"message", "ses_1", "msg_a"},
				{"message", "ses_1", "msg_b"},
			}
			if !reflect.DeepEqual(keys, want) {
				t.Fatalf("keys = %v, want %v", keys, want)
			}
		})
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := []string{"todo", "ses_1"}
			if err := s.Write(ctx, key, []any{}); err != nil {
				t.Fatal(err)
			}
			if err := s.Remove(ctx, key); err != nil {
				t.Fatal(err)
			}
			if err := s.Remove(ctx, key); err != nil {
				t.Fatalf("second Remove: %v", err)
			}
		})
	}
}

func TestSplitStoreRoutesByPrefix(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryStore()
	local := NewMemoryStore()
	s := NewSplitStore(primary, local, "session", "message")

	if err := s.Write(ctx, []string{"session", "ses_1"}, map[string]any{"id": "ses_1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, []string{"todo", "ses_1"}, []any{"x"}); err != nil {
		t.Fatal(err)
	}

	if raw, _ := primary.Read(ctx, []string{"session", "ses_1"}); raw == nil {
		t.Fatal("session key did not reach primary")
	}
	if raw, _ := local.Read(ctx, []string{"session", "ses_1"}); raw != nil {
		t.Fatal("session key leaked into local")
	}
	if raw, _ := local.Read(ctx, []string{"todo", "ses_1"}); raw == nil {
		t.Fatal("todo key did not reach local")
	}

	// Reads route the same way as writes.
	var sess map[string]any
	if err := s.ReadInto(ctx, []string{"session", "ses_1"}, &sess); err != nil {
		t.Fatal(err)
	}
	if sess["id"] != "ses_1" {
		t.Fatalf("sess = %v", sess)
	}
}

func TestJoinSplitKey(t *testing.T) {
	key := []string{"message", "ses_1", "msg_1"}
	if got := SplitKey(JoinKey(key)); !reflect.DeepEqual(got, key) {
		t.Fatalf("round trip = %v", got)
	}
}
