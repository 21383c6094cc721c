package history_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"chromascale/internal/history"
	"chromascale/internal/testsupport"
)

func sampleEntry(id, outcome string, finished time.Time) history.Entry {
	return history.Entry{
		ID:         id,
		Path:       "/in/" + id + ".png",
		Outcome:    outcome,
		Width:      640,
		Height:     480,
		AcceptedAt: finished.Add(-3 * time.Second),
		StartedAt:  finished.Add(-2 * time.Second),
		FinishedAt: finished,
	}
}

func TestRecordAndRecent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := sampleEntry("a", "processed", base)
	first.OutputPath = "/out/a.png"
	second := sampleEntry("b", "failed", base.Add(time.Minute))
	second.ErrorMessage = "transform exited 1"

	for _, e := range []history.Entry{first, second} {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record(%s): %v", e.ID, err)
		}
	}

	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "b" || entries[1].ID != "a" {
		t.Fatalf("expected newest first, got %s then %s", entries[0].ID, entries[1].ID)
	}
	if entries[0].ErrorMessage != "transform exited 1" {
		t.Fatalf("unexpected error message: %q", entries[0].ErrorMessage)
	}
	if entries[1].OutputPath != "/out/a.png" || entries[1].Width != 640 {
		t.Fatalf("unexpected entry: %#v", entries[1])
	}
	if !entries[1].FinishedAt.Equal(base) {
		t.Fatalf("finished time round trip: got %v want %v", entries[1].FinishedAt, base)
	}
	if entries[1].Duration() != 2*time.Second {
		t.Fatalf("unexpected duration: %v", entries[1].Duration())
	}
}

func TestRecentFiltersByOutcome(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	base := time.Now().UTC()
	outcomes := []string{"processed", "failed", "processed", "skipped_moved"}
	for i, outcome := range outcomes {
		if err := store.Record(ctx, sampleEntry(fmt.Sprintf("job-%d", i), outcome, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := store.Recent(ctx, 10, "processed", "skipped_moved")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Outcome == "failed" {
			t.Fatalf("failed entry leaked through filter: %#v", e)
		}
	}

	limited, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "job-3" {
		t.Fatalf("expected newest entry only, got %#v", limited)
	}
}

func TestCountsAndPrune(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	now := time.Now().UTC()
	old := sampleEntry("old", "processed", now.Add(-48*time.Hour))
	recent := sampleEntry("recent", "processed", now)
	failed := sampleEntry("failed", "failed", now)
	for _, e := range []history.Entry{old, recent, failed} {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts["processed"] != 2 || counts["failed"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	removed, err := store.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", removed)
	}
	counts, err = store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts["processed"] != 1 {
		t.Fatalf("expected old entry pruned, counts=%v", counts)
	}
}

func TestRecordRequiresID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	if err := store.Record(context.Background(), history.Entry{Outcome: "processed"}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Record(context.Background(), sampleEntry("keep", "processed", time.Now())); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenHistory(t, cfg)
	entries, err := reopened.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "keep" {
		t.Fatalf("expected persisted entry, got %#v", entries)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	raw, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := raw.ExecForTest(context.Background(), "UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = raw.Close()

	if _, err := history.OpenPath(cfg.HistoryPath()); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
