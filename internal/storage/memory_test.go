package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/voicetory/apiserver/config"
)

func TestMemoryBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(NewMemoryBackend("imports"))

	if err := s.Put(ctx, "imports/u1/a.csv", strings.NewReader("name,quantity"), 13, "text/csv"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	rc, err := s.Get(ctx, "imports/u1/a.csv")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "name,quantity" {
		t.Fatalf("Get returned %q", data)
	}

	if err := s.Delete(ctx, "imports/u1/a.csv"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "imports/u1/a.csv"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestMemoryBackendKeys(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend("imports")
	for _, key := range []string{"imports/u2/b.csv", "imports/u1/b.csv", "imports/u1/a.csv"} {
		if err := m.Put(ctx, key, strings.NewReader("x"), 1, "text/csv"); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	keys := m.Keys("imports/u1/")
	if len(keys) != 2 || keys[0] != "imports/u1/a.csv" || keys[1] != "imports/u1/b.csv" {
		t.Fatalf("Keys = %v", keys)
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), config.Config{ObjectStorage: "none"})
	if err != nil || s != nil {
		t.Fatalf("Open(none) = %v, %v; want nil, nil", s, err)
	}

	s, err = Open(context.Background(), config.Config{ObjectStorage: config.BackendMemory})
	if err != nil {
		t.Fatalf("Open(memory): %v", err)
	}
	if s.Bucket() != "imports" {
		t.Fatalf("Bucket() = %q", s.Bucket())
	}
}
