package catalog

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"tuw-telemetry/internal/session"
	"tuw-telemetry/internal/wire"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func info(id, area string, started time.Time) session.Info {
	return session.Info{
		ID:        id,
		Path:      "out/" + id + ".tuw",
		Metadata:  wire.StreamMetadata{AreaID: area, DisplayName: "Name " + area},
		StartedAt: started,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  ", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := s.Put(ctx, info("a", "x", time.Unix(100, 0))); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, ok, err := s.Get(ctx, "a"); err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
}

func TestObserverLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in := info("s1", "Celeste/1-ForsakenCity", start)

	s.SessionStarted(in)
	got, ok, err := s.Get(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !got.EndedAt.IsZero() || got.Frames != 0 || !got.StartedAt.Equal(start) {
		t.Fatalf("started row = %+v", got)
	}
	if got.Metadata.DisplayName != "Name Celeste/1-ForsakenCity" {
		t.Fatalf("metadata = %+v", got.Metadata)
	}

	in.EndedAt = start.Add(time.Minute)
	in.Frames = 3600
	s.SessionEnded(in)
	got, _, _ = s.Get(ctx, "s1")
	if got.Frames != 3600 || !got.EndedAt.Equal(in.EndedAt) {
		t.Fatalf("ended row = %+v", got)
	}
}

func TestGetUnknown(t *testing.T) {
	s := openTestStore(t)
	if _, ok, err := s.Get(context.Background(), "nope"); err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Unix(1000, 0)
	for i, id := range []string{"a", "b", "c"} {
		area := "one"
		if id == "b" {
			area = "two"
		}
		if err := s.Put(ctx, info(id, area, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.List(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Fatalf("list = %+v", all)
	}
	one, err := s.List(ctx, "one", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(one) != 1 || one[0].ID != "c" {
		t.Fatalf("filtered = %+v", one)
	}
	if _, err := s.List(ctx, "", 0); err == nil {
		t.Fatal("expected error for zero limit")
	}
}

func TestPutRequiresID(t *testing.T) {
	s := openTestStore(t)
	if err := s.Put(context.Background(), session.Info{}); err == nil {
		t.Fatal("expected error")
	}
}
