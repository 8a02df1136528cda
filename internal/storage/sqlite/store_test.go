package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/erenbertr/chatrelay/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Insert(ctx, "ai_providers", storage.Record{
		"name":         "primary",
		"kind":         "openai",
		"model":        "gpt-4o",
		"enabled":      true,
		"capabilities": []any{"streaming", "web_search"},
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	rec, err := s.FindOne(ctx, "ai_providers", storage.Query{Where: map[string]any{"name": "primary"}})
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	if rec.ID() != id {
		t.Errorf("id = %q, want %q", rec.ID(), id)
	}
	if rec.String("model") != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", rec.String("model"))
	}
	if !rec.Bool("enabled") {
		t.Error("enabled flag lost in round trip")
	}
	caps, ok := rec["capabilities"].([]any)
	if !ok || len(caps) != 2 {
		t.Errorf("capabilities = %v, want two entries", rec["capabilities"])
	}
}

func TestStore_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, _ := s.Insert(ctx, "ai_providers", storage.Record{"name": "p", "active": false})

	affected, err := s.Update(ctx, "ai_providers", id, storage.Record{"active": true})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if affected != 1 {
		t.Errorf("Update() affected = %d, want 1", affected)
	}
	rec, _ := s.FindOne(ctx, "ai_providers", storage.Query{Where: map[string]any{"id": id}})
	if !rec.Bool("active") {
		t.Error("active flag not updated")
	}

	if affected, _ := s.Update(ctx, "ai_providers", "missing", storage.Record{"active": true}); affected != 0 {
		t.Errorf("Update() on missing id affected = %d, want 0", affected)
	}

	if affected, _ := s.Delete(ctx, "ai_providers", id); affected != 1 {
		t.Errorf("Delete() affected = %d, want 1", affected)
	}
	if _, err := s.FindOne(ctx, "ai_providers", storage.Query{Where: map[string]any{"id": id}}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindOne() after delete error = %v, want ErrNotFound", err)
	}
}

func TestStore_OrderedHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	turns := []struct {
		role, content, created string
	}{
		{"user", "one", "2026-01-01T00:00:01Z"},
		{"assistant", "two", "2026-01-01T00:00:02Z"},
		{"user", "three", "2026-01-01T00:00:03Z"},
	}
	for _, turn := range turns {
		if _, err := s.Insert(ctx, "messages", storage.Record{
			"conversation_id": "c1",
			"role":            turn.role,
			"content":         turn.content,
			"created_at":      turn.created,
		}); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	recs, err := s.FindMany(ctx, "messages", storage.Query{
		Where:   map[string]any{"conversation_id": "c1"},
		OrderBy: "created_at",
	})
	if err != nil {
		t.Fatalf("FindMany() error = %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("FindMany() returned %d records, want 3", len(recs))
	}
	for i, want := range []string{"one", "two", "three"} {
		if recs[i].String("content") != want {
			t.Errorf("recs[%d] = %q, want %q", i, recs[i].String("content"), want)
		}
	}

	n, err := s.Count(ctx, "messages", storage.Query{Where: map[string]any{"role": "user"}})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}
