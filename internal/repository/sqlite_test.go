package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jiuai233/StreamDeck/internal/domain"
	"github.com/jiuai233/StreamDeck/internal/protocol"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func sampleRun(id string, started time.Time) *domain.RunResult {
	run := &domain.RunResult{
		RunID:      id,
		Endpoint:   "ws://localhost:8001",
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	}
	run.Add(domain.Entry{
		Model: protocol.Model{ModelID: "m1", ModelName: "Hiyori"},
		Icon:  "ABC.png",
		Hotkeys: []protocol.Hotkey{
			{HotkeyID: "h1", Name: "Smile", Type: "ToggleExpression"},
			{HotkeyID: "h2", Type: "TriggerAnimation"},
		},
	})
	run.Add(domain.Placeholder(protocol.Model{ModelID: "m2", ModelName: "Mao"}, domain.DefaultIcon, context.DeadlineExceeded))
	return run
}

func TestSQLiteStoreSaveAndGetRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	run := sampleRun("r1", time.Now().Add(-time.Hour))
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got == nil {
		t.Fatalf("expected run")
	}
	if got.Succeeded != 1 || got.Skipped != 1 {
		t.Fatalf("unexpected counts: %+v", got)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got.Entries))
	}
	first, second := got.Entries[0], got.Entries[1]
	if first.Model.ModelName != "Hiyori" || len(first.Hotkeys) != 2 || first.Hotkeys[1].Type != "TriggerAnimation" {
		t.Fatalf("unexpected first entry: %+v", first)
	}
	if !second.Skipped || second.Failure == "" || second.Hotkeys == nil || len(second.Hotkeys) != 0 {
		t.Fatalf("unexpected placeholder entry: %+v", second)
	}
	if !got.StartedAt.Equal(run.StartedAt) {
		t.Fatalf("started_at mismatch: %v != %v", got.StartedAt, run.StartedAt)
	}
}

func TestSQLiteStoreGetRunMissing(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	got, err := store.GetRun(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil run, got %+v", got)
	}

	latest, err := store.LatestRun(context.Background())
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected no latest run")
	}
}

func TestSQLiteStoreListAndLatest(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	base := time.Now().Add(-24 * time.Hour)
	for i, id := range []string{"old", "newest", "middle"} {
		offsets := []time.Duration{0, 2 * time.Hour, time.Hour}
		if err := store.SaveRun(ctx, sampleRun(id, base.Add(offsets[i]))); err != nil {
			t.Fatalf("SaveRun(%s) failed: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "newest" || runs[1].RunID != "middle" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if runs[0].Entries != nil {
		t.Fatalf("ListRuns should not load entries")
	}

	latest, err := store.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latest == nil || latest.RunID != "newest" || len(latest.Entries) != 2 {
		t.Fatalf("unexpected latest run: %+v", latest)
	}
}

func TestSQLiteStoreDuplicateRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	run := sampleRun("r1", time.Now())
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := store.SaveRun(ctx, run); err == nil {
		t.Fatalf("expected duplicate run id to fail")
	}
}

func TestSQLiteStoreOnDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := store.SaveRun(ctx, sampleRun("r1", time.Now())); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.GetRun(ctx, "r1")
	if err != nil || got == nil {
		t.Fatalf("GetRun after reopen: %v %+v", err, got)
	}
}
