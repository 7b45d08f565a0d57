package repo_test

import (
	"context"
	"errors"
	"testing"

	"signoff/internal/db"
	"signoff/internal/domain"
	"signoff/internal/migrate"
	"signoff/internal/repo"
)

const ts = "2025-01-01T00:00:00.000000000Z"

func newRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}, context.Background()
}

func seed(t *testing.T, r repo.Repo, ctx context.Context) {
	t.Helper()
	for _, e := range []domain.Employee{
		{ID: "a", Name: "Alice", Email: "Alice@Example.com", Role: domain.RoleMember, Active: true, CreatedAt: ts},
		{ID: "b", Name: "Bob", Email: "bob@example.com", Role: domain.RoleSupervisor, Active: true, CreatedAt: ts},
	} {
		if err := r.InsertEmployee(ctx, e); err != nil {
			t.Fatalf("insert employee: %v", err)
		}
	}
	if err := r.InsertProject(ctx, domain.Project{ID: "p1", Title: "P", OwnerID: "a", DurationDays: 10, Deadline: "2025-02-01", CreatedAt: ts}); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	if err := r.InsertTask(ctx, domain.Task{ID: "t1", ProjectID: "p1", Title: "T1", FinalDate: "2025-01-10", CreatedAt: ts}); err != nil {
		t.Fatalf("insert task: %v", err)
	}
}

func TestEmployeeEmailUniqueCaseInsensitive(t *testing.T) {
	r, ctx := newRepo(t)
	seed(t, r, ctx)
	got, err := r.GetEmployeeByEmail(ctx, "ALICE@example.COM")
	if err != nil || got.ID != "a" {
		t.Fatalf("lookup by email: %+v %v", got, err)
	}
	if got.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %s", got.Email)
	}
	err = r.InsertEmployee(ctx, domain.Employee{ID: "c", Name: "C", Email: "alice@EXAMPLE.com", Role: domain.RoleMember, Active: true, CreatedAt: ts})
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestNotFoundErrors(t *testing.T) {
	r, ctx := newRepo(t)
	if _, err := r.GetTask(ctx, "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	var nf repo.NotFoundError
	_, err := r.GetProject(ctx, "nope")
	if !errors.As(err, &nf) || nf.Kind != "project" {
		t.Fatalf("expected project NotFoundError, got %v", err)
	}
}

func TestVotesAreExclusivePerEmployee(t *testing.T) {
	r, ctx := newRepo(t)
	seed(t, r, ctx)
	if err := r.SetVote(ctx, "t1", "a", domain.VoteNotPertinent, ts); err != nil {
		t.Fatal(err)
	}
	if err := r.SetVote(ctx, "t1", "a", domain.VoteValidated, ts); err != nil {
		t.Fatal(err)
	}
	task, err := r.GetTask(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(task.ValidatedBy) != 1 || task.ValidatedBy[0] != "a" || len(task.NotPertinentBy) != 0 {
		t.Fatalf("unexpected votes: %+v", task)
	}
	if !task.Ready() {
		t.Fatalf("expected task ready")
	}
}

func TestTaskReadiness(t *testing.T) {
	r, ctx := newRepo(t)
	seed(t, r, ctx)
	if err := r.InsertTask(ctx, domain.Task{ID: "t2", ProjectID: "p1", Title: "T2", FinalDate: "2025-01-10", CreatedAt: ts}); err != nil {
		t.Fatal(err)
	}
	if err := r.SetVote(ctx, "t1", "b", domain.VoteValidated, ts); err != nil {
		t.Fatal(err)
	}
	if err := r.SetVote(ctx, "t2", "b", domain.VoteNotPertinent, ts); err != nil {
		t.Fatal(err)
	}
	rd, err := r.TaskReadiness(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if rd.Total != 2 || len(rd.Pending) != 1 || rd.Pending[0] != "t2" {
		t.Fatalf("unexpected readiness: %+v", rd)
	}
	tasks, err := r.ListTasks(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 || len(tasks[0].ValidatedBy) != 1 || len(tasks[1].NotPertinentBy) != 1 {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestUpdateTaskVersionConflict(t *testing.T) {
	r, ctx := newRepo(t)
	seed(t, r, ctx)
	task, err := r.GetTask(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	task.Title = "renamed"
	updated, err := r.UpdateTask(ctx, task, task.Version)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != task.Version+1 || updated.Title != "renamed" {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if _, err := r.UpdateTask(ctx, task, task.Version); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}
	task.ID = "missing"
	if _, err := r.UpdateTask(ctx, task, 1); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	r, ctx := newRepo(t)
	seed(t, r, ctx)
	if err := r.SetVote(ctx, "t1", "a", domain.VoteValidated, ts); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertComment(ctx, domain.Comment{ID: "c1", TaskID: "t1", UserID: "a", Content: "hi", Type: domain.CommentDaily, CreatedAt: ts}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.InsertActivity(ctx, domain.ActivityEntry{ID: "l1", ProjectID: "p1", ActorID: "a", ActorName: "Alice", Action: domain.ActionProjectCreated, Timestamp: ts}); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteProject(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetTask(ctx, "t1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("task should be gone: %v", err)
	}
	if _, err := r.GetComment(ctx, "c1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("comment should be gone: %v", err)
	}
	entries, err := r.ListActivity(ctx, "p1", 0)
	if err != nil || len(entries) != 0 {
		t.Fatalf("activity should be gone: %v %v", entries, err)
	}
}

func TestActivityOrderingTies(t *testing.T) {
	r, ctx := newRepo(t)
	seed(t, r, ctx)
	for _, id := range []string{"l1", "l2", "l3"} {
		if _, err := r.InsertActivity(ctx, domain.ActivityEntry{ID: id, ProjectID: "p1", ActorID: "a", ActorName: "Alice", Action: domain.ActionTaskUpdated, Timestamp: ts}); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := r.ListActivity(ctx, "p1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].ID != "l3" || entries[1].ID != "l2" {
		t.Fatalf("unexpected order: %+v", entries)
	}
	after, err := r.ListActivityAfter(ctx, entries[1].Seq, nil, 0)
	if err != nil || len(after) != 1 || after[0].ID != "l3" {
		t.Fatalf("unexpected after: %+v %v", after, err)
	}
}

func TestDeadlineNotificationUnique(t *testing.T) {
	r, ctx := newRepo(t)
	seed(t, r, ctx)
	taskID := "t1"
	n := domain.Notification{ID: "n1", UserID: "a", Title: "x", Message: "y", RelatedTaskID: &taskID, CreatedAt: ts}
	created, err := r.InsertDeadlineNotification(ctx, n)
	if err != nil || !created {
		t.Fatalf("first insert: %v %v", created, err)
	}
	n.ID = "n2"
	created, err = r.InsertDeadlineNotification(ctx, n)
	if err != nil || created {
		t.Fatalf("second insert should be ignored: %v %v", created, err)
	}
	count, err := r.CountDeadlineNotifications(ctx, "a", taskID)
	if err != nil || count != 1 {
		t.Fatalf("count: %d %v", count, err)
	}
	read, err := r.MarkAllNotificationsRead(ctx, "a")
	if err != nil || read != 1 {
		t.Fatalf("mark all read: %d %v", read, err)
	}
}

func TestPreferencesDefaultAndUpsert(t *testing.T) {
	r, ctx := newRepo(t)
	seed(t, r, ctx)
	p, err := r.GetPreferences(ctx, "a")
	if err != nil || !p.ReceiveDeadlineAlerts || !p.ReceiveNotPertinentAlerts || p.GroupByProject {
		t.Fatalf("defaults: %+v %v", p, err)
	}
	p.ReceiveDeadlineAlerts = false
	p.GroupByProject = true
	if err := r.UpsertPreferences(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err := r.GetPreferences(ctx, "a")
	if err != nil || got != p {
		t.Fatalf("round trip: %+v %v", got, err)
	}
}

func TestAttachmentReplace(t *testing.T) {
	r, ctx := newRepo(t)
	seed(t, r, ctx)
	a := domain.Attachment{ProjectID: "p1", FileName: "spec.pdf", MimeType: "application/pdf", Size: 3, Content: []byte("abc"), UploadedAt: ts}
	replaced, err := r.PutAttachment(ctx, a)
	if err != nil || replaced {
		t.Fatalf("first upload: %v %v", replaced, err)
	}
	a.FileName = "spec-v2.pdf"
	replaced, err = r.PutAttachment(ctx, a)
	if err != nil || !replaced {
		t.Fatalf("second upload: %v %v", replaced, err)
	}
	got, err := r.GetAttachment(ctx, "p1")
	if err != nil || got.FileName != "spec-v2.pdf" || string(got.Content) != "abc" {
		t.Fatalf("get attachment: %+v %v", got, err)
	}
}

func TestStats(t *testing.T) {
	r, ctx := newRepo(t)
	seed(t, r, ctx)
	if err := r.SetTaskState(ctx, "t1", domain.TaskValidated); err != nil {
		t.Fatal(err)
	}
	o, err := r.Overview(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if o.Projects != 1 || o.Tasks != 1 || o.ActiveMembers != 2 || o.CompletionRate != 100 {
		t.Fatalf("unexpected overview: %+v", o)
	}
	top, err := r.TopProjects(ctx, 5)
	if err != nil || len(top) != 1 || top[0].Progress != 100 {
		t.Fatalf("unexpected top: %+v %v", top, err)
	}
}
