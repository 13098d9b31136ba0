package history

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	if err := EnsureSchema(db); err != nil {
		t.Fatal(err)
	}
	return NewSQLiteRepo(db)
}

func TestAppendAndRecent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, e := range []Entry{
		{TaskID: "t1", ExecutorID: "w1", Outcome: OutcomeCompleted, FinishedAt: base},
		{TaskID: "t2", Outcome: OutcomeFailed, Detail: "no executor available", Attempts: 20, FinishedAt: base.Add(time.Minute)},
	} {
		id, err := repo.Append(ctx, e)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if id == "" {
			t.Fatalf("append %d: empty id", i)
		}
	}

	entries, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("recent returned %d entries, want 2", len(entries))
	}
	// Newest first.
	if entries[0].TaskID != "t2" || entries[1].TaskID != "t1" {
		t.Errorf("order = %s,%s; want t2,t1", entries[0].TaskID, entries[1].TaskID)
	}
	if entries[0].Outcome != OutcomeFailed || entries[0].Detail != "no executor available" {
		t.Errorf("failed entry = %+v", entries[0])
	}
	if entries[0].Attempts != 20 {
		t.Errorf("attempts = %d, want 20", entries[0].Attempts)
	}
}

func TestCountByOutcome(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, outcome := range []string{OutcomeCompleted, OutcomeCompleted, OutcomeFailed} {
		if _, err := repo.Append(ctx, Entry{TaskID: "t", Outcome: outcome}); err != nil {
			t.Fatal(err)
		}
	}

	counts, err := repo.CountByOutcome(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[OutcomeCompleted] != 2 || counts[OutcomeFailed] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestPrune(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	repo.Append(ctx, Entry{TaskID: "old", Outcome: OutcomeCompleted, FinishedAt: old})
	repo.Append(ctx, Entry{TaskID: "fresh", Outcome: OutcomeCompleted, FinishedAt: fresh})

	n, err := repo.Prune(ctx, fresh.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("pruned %d rows, want 1", n)
	}

	entries, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].TaskID != "fresh" {
		t.Errorf("remaining = %+v, want just fresh", entries)
	}
}
