package storage_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

// exerciseBlobStore checks the BlobStore contract against an empty store.
func exerciseBlobStore(t *testing.T, s storage.BlobStore) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "attempts/a1.json"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
	if err := s.Put(ctx, "attempts/a1.json", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "attempts/a1.json", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	if err := s.Put(ctx, "attempts/a2.json", []byte(`{}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "other/x", []byte(`x`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "attempts/a1.json")
	if err != nil || string(got) != `{"v":2}` {
		t.Fatalf("Get = %q, %v; want latest write", got, err)
	}

	keys, err := s.List(ctx, "attempts/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{"attempts/a1.json", "attempts/a2.json"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("List = %v, want %v", keys, want)
	}

	if err := s.Delete(ctx, "attempts/a1.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "attempts/a1.json"); err != nil {
		t.Fatalf("Delete twice: %v", err)
	}
	if _, err := s.Get(ctx, "attempts/a1.json"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestFSStore(t *testing.T) {
	s, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	exerciseBlobStore(t, s)
}

func TestFSStoreKeysStayInsideBase(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := storage.NewFSStore(base)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "../escape.json", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	keys, err := s.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(keys, []string{"escape.json"}) {
		t.Fatalf("List = %v, want key kept inside base", keys)
	}
}
