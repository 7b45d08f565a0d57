package activity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"signoff/internal/activity"
	"signoff/internal/db"
	"signoff/internal/domain"
	"signoff/internal/migrate"
	"signoff/internal/repo"
)

func newLog(t *testing.T) (activity.Log, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	r := repo.Repo{DB: conn}
	const ts = "2025-01-01T00:00:00.000000000Z"
	if err := r.InsertEmployee(ctx, domain.Employee{ID: "a", Name: "Alice", Email: "a@x.io", Role: domain.RoleMember, Active: true, CreatedAt: ts}); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertProject(ctx, domain.Project{ID: "p1", Title: "P", OwnerID: "a", DurationDays: 1, Deadline: "2025-02-01", CreatedAt: ts}); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return activity.Log{Repo: r, Now: func() time.Time { return now }}, ctx
}

func TestAppendSnapshotsActorName(t *testing.T) {
	l, ctx := newLog(t)
	e, err := l.Append(ctx, nil, "p1", "a", "", domain.ActionProjectCreated, "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if e.ActorName != "Alice" || e.Seq == 0 {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestAppendRejectsUnknownRefs(t *testing.T) {
	l, ctx := newLog(t)
	if _, err := l.Append(ctx, nil, "nope", "a", "", domain.ActionProjectCreated, ""); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for project, got %v", err)
	}
	if _, err := l.Append(ctx, nil, "p1", "ghost", "", domain.ActionProjectCreated, ""); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for actor, got %v", err)
	}
	if _, err := l.Append(ctx, nil, "p1", "a", "", "made_up", ""); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}

func TestByProjectNewestFirstWithTies(t *testing.T) {
	l, ctx := newLog(t)
	for _, action := range []string{domain.ActionProjectCreated, domain.ActionTaskCreated, domain.ActionTaskValidated} {
		if _, err := l.Append(ctx, nil, "p1", "a", "", action, ""); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := l.ByProject(ctx, "p1", 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{domain.ActionTaskValidated, domain.ActionTaskCreated, domain.ActionProjectCreated}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries", len(entries))
	}
	for i, e := range entries {
		if e.Action != want[i] {
			t.Fatalf("entry %d: got %s want %s", i, e.Action, want[i])
		}
	}
	if _, err := l.ByProject(ctx, "nope", 0); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
