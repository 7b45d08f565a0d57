package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"signoff/internal/config"
	"signoff/internal/db"
	"signoff/internal/domain"
	"signoff/internal/engine"
	"signoff/internal/engine/auth"
	"signoff/internal/migrate"
	"signoff/internal/notify"
	"signoff/internal/repo"
)

var baseTime = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Chief  domain.Employee
	Member domain.Employee
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return baseTime }
	ctx := context.Background()
	chief, err := eng.RegisterEmployee(ctx, engine.RegisterOptions{ID: "A", Name: "Alice", Email: "alice@example.com", Password: "secret1", Role: domain.RoleSupervisor})
	if err != nil {
		t.Fatalf("register supervisor: %v", err)
	}
	member, err := eng.RegisterEmployee(ctx, engine.RegisterOptions{ID: "B", Name: "Bob", Email: "bob@example.com", Password: "secret2"})
	if err != nil {
		t.Fatalf("register member: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Chief: chief, Member: member}
}

func (env testEnv) project(t *testing.T, id string) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ID: id, Title: "Project " + id, Budget: 1000, DurationDays: 30, Deadline: "2025-03-01", ActorID: env.Member.ID,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func (env testEnv) task(t *testing.T, projectID, id string, due time.Duration) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ID: id, ProjectID: projectID, Title: "Task " + id, FinalDate: domain.FormatTime(baseTime.Add(due)), ActorID: env.Member.ID,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func actions(t *testing.T, env testEnv, projectID string) []string {
	t.Helper()
	entries, err := env.Engine.Activity.ByProject(env.Ctx, projectID, 0)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	var res []string
	for _, e := range entries {
		res = append(res, e.Action)
	}
	return res
}

func count(list []string, want string) int {
	n := 0
	for _, v := range list {
		if v == want {
			n++
		}
	}
	return n
}

func TestValidateIsIdempotentAndFlipsState(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "P")
	env.task(t, "P", "T1", 48*time.Hour)

	task, err := env.Engine.Validate(env.Ctx, "T1", "B")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if task.State != domain.TaskValidated || len(task.ValidatedBy) != 1 {
		t.Fatalf("unexpected task after validate: %+v", task)
	}
	again, err := env.Engine.Validate(env.Ctx, "T1", "B")
	if err != nil {
		t.Fatalf("second validate: %v", err)
	}
	if len(again.ValidatedBy) != 1 || again.Version != task.Version {
		t.Fatalf("second validate changed task: %+v", again)
	}
	if n := count(actions(t, env, "P"), domain.ActionTaskValidated); n != 1 {
		t.Fatalf("expected one task_validated entry, got %d", n)
	}
}

func TestVoteSetsStayDisjoint(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "P")
	env.task(t, "P", "T1", 48*time.Hour)

	if _, err := env.Engine.Validate(env.Ctx, "T1", "B"); err != nil {
		t.Fatal(err)
	}
	task, err := env.Engine.MarkNotPertinent(env.Ctx, "T1", "B")
	if err != nil {
		t.Fatalf("mark not pertinent: %v", err)
	}
	if len(task.ValidatedBy) != 0 || len(task.NotPertinentBy) != 1 {
		t.Fatalf("sets not disjoint: %+v", task)
	}
	if task.State != domain.TaskValidated {
		t.Fatalf("mark not pertinent must keep state, got %s", task.State)
	}
	ready, err := env.Engine.IsValidatedByAnyone(env.Ctx, "T1")
	if err != nil || ready {
		t.Fatalf("task should not be ready: %v %v", ready, err)
	}
	task, err = env.Engine.Validate(env.Ctx, "T1", "B")
	if err != nil {
		t.Fatal(err)
	}
	if len(task.ValidatedBy) != 1 || len(task.NotPertinentBy) != 0 {
		t.Fatalf("sets not disjoint after revalidate: %+v", task)
	}
}

func TestMarkNotPertinentNotifiesOwner(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "P")
	env.task(t, "P", "T1", 48*time.Hour)
	if _, err := env.Engine.MarkNotPertinent(env.Ctx, "T1", "A"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.MarkNotPertinent(env.Ctx, "T1", "A"); err != nil {
		t.Fatalf("repeat must not fail: %v", err)
	}
	list, err := env.Engine.Repo.ListNotifications(env.Ctx, "B", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Type != domain.NotificationInfo {
		t.Fatalf("expected one info notification for owner, got %+v", list)
	}
}

func TestVoteUnknownReferences(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "P")
	env.task(t, "P", "T1", 48*time.Hour)
	if _, err := env.Engine.Validate(env.Ctx, "nope", "B"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for task, got %v", err)
	}
	if _, err := env.Engine.Validate(env.Ctx, "T1", "ghost"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for employee, got %v", err)
	}
	task, err := env.Engine.GetTask(env.Ctx, "T1")
	if err != nil || len(task.ValidatedBy) != 0 {
		t.Fatalf("failed vote must not mutate: %+v %v", task, err)
	}
}

func TestGateRejectsEmptyProject(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "P")
	ok, err := env.Engine.CanValidate(env.Ctx, "P")
	if err != nil || ok {
		t.Fatalf("empty project must not be validatable: %v %v", ok, err)
	}
	_, err = env.Engine.SetSupervisorValidation(env.Ctx, "P", true, "A")
	var gv engine.GateViolation
	if !errors.As(err, &gv) {
		t.Fatalf("expected gate violation, got %v", err)
	}
	if n := count(actions(t, env, "P"), domain.ActionProjectValidated); n != 0 {
		t.Fatalf("gate violation must not log, got %d entries", n)
	}
	if _, err := env.Engine.CanValidate(env.Ctx, "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewTaskClosesGateWithoutDowngrade(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "P")
	env.task(t, "P", "T1", 48*time.Hour)
	if _, err := env.Engine.Validate(env.Ctx, "T1", "B"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := env.Engine.CanValidate(env.Ctx, "P"); !ok {
		t.Fatalf("expected gate open")
	}
	if _, err := env.Engine.SetSupervisorValidation(env.Ctx, "P", true, "A"); err != nil {
		t.Fatalf("certify: %v", err)
	}
	env.task(t, "P", "T2", 72*time.Hour)
	st, err := env.Engine.GateStatus(env.Ctx, "P")
	if err != nil {
		t.Fatal(err)
	}
	if st.CanValidate || len(st.PendingTasks) != 1 || st.PendingTasks[0] != "T2" {
		t.Fatalf("new task should close the gate: %+v", st)
	}
	if !st.ValidatedBySupervisor {
		t.Fatalf("existing certification must be kept")
	}
	_, err = env.Engine.SetSupervisorValidation(env.Ctx, "P", true, "A")
	var gv engine.GateViolation
	if !errors.As(err, &gv) || len(gv.Pending) != 1 {
		t.Fatalf("expected gate violation listing T2, got %v", err)
	}
}

func TestRevokeAlwaysSucceeds(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "P")
	env.task(t, "P", "T1", 48*time.Hour)
	p, err := env.Engine.SetSupervisorValidation(env.Ctx, "P", false, "A")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if p.ValidatedBySupervisor {
		t.Fatalf("expected not validated")
	}
	if n := count(actions(t, env, "P"), domain.ActionProjectInvalidated); n != 1 {
		t.Fatalf("expected one project_invalidated entry, got %d", n)
	}
}

func TestCertifyRequiresSupervisor(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "P")
	env.task(t, "P", "T1", 48*time.Hour)
	if _, err := env.Engine.Validate(env.Ctx, "T1", "B"); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.SetSupervisorValidation(env.Ctx, "P", true, "B")
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestScenarioTwoTasksTwoEmployees(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "P")
	env.task(t, "P", "T1", 10*24*time.Hour)
	env.task(t, "P", "T2", 20*24*time.Hour)

	gen := notify.Generator{Repo: env.Engine.Repo, Now: env.Engine.Now, Window: 15 * 24 * time.Hour}
	created, err := gen.Run(env.Ctx)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 notifications, got %d", created)
	}
	for _, user := range []string{"A", "B"} {
		list, err := env.Engine.Repo.ListNotifications(env.Ctx, user, false)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 || list[0].RelatedTaskID == nil || *list[0].RelatedTaskID != "T1" {
			t.Fatalf("unexpected notifications for %s: %+v", user, list)
		}
	}
	if again, err := gen.Run(env.Ctx); err != nil || again != 0 {
		t.Fatalf("second run should create nothing: %d %v", again, err)
	}

	if _, err := env.Engine.Validate(env.Ctx, "T1", "A"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := env.Engine.CanValidate(env.Ctx, "P"); ok {
		t.Fatalf("gate must stay closed while T2 has no validator")
	}
	if _, err := env.Engine.Validate(env.Ctx, "T2", "B"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := env.Engine.CanValidate(env.Ctx, "P"); !ok {
		t.Fatalf("gate should be open")
	}
	if _, err := env.Engine.SetSupervisorValidation(env.Ctx, "P", true, "A"); err != nil {
		t.Fatalf("certify: %v", err)
	}

	entries, err := env.Engine.Activity.ByProject(env.Ctx, "P", 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		domain.ActionProjectValidated,
		domain.ActionTaskValidated,
		domain.ActionTaskValidated,
		domain.ActionTaskCreated,
		domain.ActionTaskCreated,
		domain.ActionProjectCreated,
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.Action != want[i] {
			t.Fatalf("entry %d: got %s want %s", i, e.Action, want[i])
		}
	}
	if entries[1].Details != `Tâche "Task T2"` || entries[2].Details != `Tâche "Task T1"` {
		t.Fatalf("unexpected validation order: %q, %q", entries[1].Details, entries[2].Details)
	}
}

func TestUpdateTaskStaleVersion(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "P")
	task := env.task(t, "P", "T1", 48*time.Hour)
	title := "renamed"
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: "T1", Title: &title, ExpectedVersion: task.Version, ActorID: "B"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	_, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: "T1", Title: &title, ExpectedVersion: task.Version, ActorID: "B"})
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	bad := "done"
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: "T1", State: &bad, ActorID: "B"}); !engine.IsInvalid(err) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
}

func TestDeleteTaskLogsAndReopensGate(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "P")
	env.task(t, "P", "T1", 48*time.Hour)
	env.task(t, "P", "T2", 48*time.Hour)
	if _, err := env.Engine.Validate(env.Ctx, "T1", "B"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, "T2", "B"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := env.Engine.CanValidate(env.Ctx, "P"); !ok {
		t.Fatalf("gate should open once the unready task is gone")
	}
	if n := count(actions(t, env, "P"), domain.ActionTaskDeleted); n != 1 {
		t.Fatalf("expected task_deleted entry, got %d", n)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []engine.ProjectCreateOptions{
		{Title: "", DurationDays: 1, Deadline: "2025-02-01", ActorID: "B"},
		{Title: "x", Budget: -1, DurationDays: 1, Deadline: "2025-02-01", ActorID: "B"},
		{Title: "x", DurationDays: 0, Deadline: "2025-02-01", ActorID: "B"},
		{Title: "x", DurationDays: 1, Deadline: "someday", ActorID: "B"},
	}
	for i, opts := range cases {
		if _, err := env.Engine.CreateProject(env.Ctx, opts); !engine.IsInvalid(err) {
			t.Fatalf("case %d: expected invalid, got %v", i, err)
		}
	}
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Title: "x", DurationDays: 1, Deadline: "2025-02-01", ActorID: "ghost"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found owner, got %v", err)
	}
}

func TestCommentsAndAttachments(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "P")
	env.task(t, "P", "T1", 48*time.Hour)
	c, err := env.Engine.AddComment(env.Ctx, "T1", "A", "looks good", domain.CommentDaily)
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if _, err := env.Engine.AddComment(env.Ctx, "T1", "A", "x", "gossip"); !engine.IsInvalid(err) {
		t.Fatalf("expected invalid comment type, got %v", err)
	}
	var fe auth.ForbiddenError
	if err := env.Engine.DeleteComment(env.Ctx, c.ID, "B"); err != nil && !errors.As(err, &fe) {
		t.Fatalf("unexpected error: %v", err)
	} else if err == nil {
		t.Fatalf("non-author member must not delete the comment")
	}
	if err := env.Engine.DeleteComment(env.Ctx, c.ID, "A"); err != nil {
		t.Fatalf("author delete: %v", err)
	}

	if _, err := env.Engine.UploadAttachment(env.Ctx, "P", "B", "cdc.pdf", "application/pdf", []byte("%PDF-1")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := env.Engine.UploadAttachment(env.Ctx, "P", "B", "cdc-v2.txt", "", []byte("plain text")); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err := env.Engine.GetAttachment(env.Ctx, "P")
	if err != nil || got.FileName != "cdc-v2.txt" || got.MimeType != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected attachment: %+v %v", got, err)
	}
	acts := actions(t, env, "P")
	if count(acts, domain.ActionAttachmentUploaded) != 1 || count(acts, domain.ActionAttachmentReplaced) != 1 || count(acts, domain.ActionCommentAdded) != 1 {
		t.Fatalf("unexpected activity: %v", acts)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.RegisterEmployee(env.Ctx, engine.RegisterOptions{Name: "C", Email: "BOB@example.com", Password: "secret3"}); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected duplicate email conflict, got %v", err)
	}
	if _, err := env.Engine.RegisterEmployee(env.Ctx, engine.RegisterOptions{Name: "C", Email: "c@example.com", Password: "123"}); !engine.IsInvalid(err) {
		t.Fatalf("expected short password rejection, got %v", err)
	}
	if _, err := env.Engine.RegisterEmployee(env.Ctx, engine.RegisterOptions{Name: "C", Email: "c.example.com", Password: "secret3"}); !engine.IsInvalid(err) {
		t.Fatalf("expected bad email rejection, got %v", err)
	}
	var fe auth.ForbiddenError
	if _, err := env.Engine.RegisterEmployee(env.Ctx, engine.RegisterOptions{Name: "C", Email: "c@example.com", Password: "secret3", Role: domain.RoleSupervisor}); !errors.As(err, &fe) {
		t.Fatalf("anonymous supervisor registration must be forbidden, got %v", err)
	}

	emp, err := env.Engine.Login(env.Ctx, "Bob@Example.com", "secret2")
	if err != nil || emp.ID != "B" || emp.LastLoginAt == nil {
		t.Fatalf("login: %+v %v", emp, err)
	}
	for i := 0; i < engine.MaxFailedLogins-1; i++ {
		if _, err := env.Engine.Login(env.Ctx, "bob@example.com", "wrong"); !errors.Is(err, engine.ErrBadCredentials) {
			t.Fatalf("attempt %d: expected bad credentials, got %v", i, err)
		}
	}
	var locked engine.LockedError
	if _, err := env.Engine.Login(env.Ctx, "bob@example.com", "wrong"); !errors.As(err, &locked) {
		t.Fatalf("expected lock, got %v", err)
	}
	if _, err := env.Engine.Login(env.Ctx, "bob@example.com", "secret2"); !errors.As(err, &locked) {
		t.Fatalf("locked account must refuse even good password, got %v", err)
	}
	env.Engine.Now = func() time.Time { return baseTime.Add(engine.LockoutDuration + time.Minute) }
	if _, err := env.Engine.Login(env.Ctx, "bob@example.com", "secret2"); err != nil {
		t.Fatalf("login after lockout: %v", err)
	}

	if _, err := env.Engine.DeactivateEmployee(env.Ctx, "B", "A"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := env.Engine.Login(env.Ctx, "bob@example.com", "secret2"); !errors.Is(err, engine.ErrAccountDisabled) {
		t.Fatalf("expected disabled, got %v", err)
	}
}
