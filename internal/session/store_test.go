package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/jewelbot/internal/catalog"
	"github.com/google/go-cmp/cmp"
)

func sampleSession() *Session {
	s := New("thread-1")
	s.Append(NewTurn(RoleUser, "I want a halo ring", nil))
	s.Append(NewTurn(RoleAgent, "Here are some materials", []string{"http://img/a.jpg"}))
	s.Summary = "User likes halo rings."
	s.Constraints["style"] = ValuesOf("Halo")
	s.Constraints["material"] = NoRequirement()
	s.Constraints["price"] = RangeOf(catalog.Between(0, 1000))
	s.InferenceStatus = "no_preference"
	s.NodeName = "price"
	return s
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	stores := map[string]Store{
		"file":   NewFileStore(t.TempDir()),
		"memory": NewMemoryStore(),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Load(ctx, "thread-1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Load(missing) error = %v, want ErrNotFound", err)
			}

			session := sampleSession()
			if err := store.Save(ctx, session); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			loaded, err := store.Load(ctx, session.ID)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if diff := cmp.Diff(session, loaded); diff != "" {
				t.Errorf("loaded session mismatch (-want +got):\n%s", diff)
			}

			// Mutating the loaded copy must not leak into the store.
			loaded.Turns[0].Content = "changed"
			again, err := store.Load(ctx, session.ID)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if again.Turns[0].Content != "I want a halo ring" {
				t.Errorf("stored session was mutated through a loaded copy")
			}

			list, err := store.List(ctx)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(list) != 1 || list[0].ID != "thread-1" || list[0].Turns != 2 {
				t.Errorf("List() = %+v, want one session with 2 turns", list)
			}

			if err := store.Delete(ctx, session.ID); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := store.Load(ctx, session.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("Load after Delete error = %v, want ErrNotFound", err)
			}
			if err := store.Delete(ctx, session.ID); err != nil {
				t.Errorf("Delete(missing) error = %v, want nil", err)
			}
		})
	}
}

func TestFileStoreHashesIDs(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	s := New("../../etc/passwd")
	if err := store.Save(context.Background(), s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	entries, err := os.ReadDir(store.basePath)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one session file, got %d", len(entries))
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := sampleSession()
	c := s.Clone()

	c.Turns[1].ImageRefs[0] = "changed"
	c.Constraints["style"] = ValuesOf("Vintage")
	*c.Constraints["price"].Range.Max = 5

	if s.Turns[1].ImageRefs[0] != "http://img/a.jpg" {
		t.Error("clone shares image refs")
	}
	if s.Constraints["style"].Values[0] != "Halo" {
		t.Error("clone shares constraints map")
	}
	if *s.Constraints["price"].Range.Max != 1000 {
		t.Error("clone shares price bound")
	}
}

func TestSessionTimestamps(t *testing.T) {
	s := New("")
	if s.ID == "" {
		t.Fatal("New(\"\") should assign an id")
	}
	before := s.UpdatedAt
	time.Sleep(time.Millisecond)
	s.Append(NewTurn(RoleUser, "hi", nil))
	if !s.UpdatedAt.After(before) {
		t.Error("Append should bump UpdatedAt")
	}
}
