package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"signoff/internal/domain"
	"signoff/internal/engine/auth"
	"signoff/internal/events"
	"signoff/internal/repo"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID           string
	ProjectID    string
	Title        string
	Description  string
	FinalDate    string
	DurationDays int
	ActorID      string
}

// CreateTask adds an unvalidated task. A project that could be certified
// stops being certifiable until the new task gets a validator; an existing
// certification is left untouched.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, invalidf("title is required")
	}
	if opts.ProjectID == "" {
		return domain.Task{}, invalidf("project is required")
	}
	if opts.DurationDays < 0 {
		return domain.Task{}, invalidf("duration_days must not be negative")
	}
	finalDate, err := normalizeDate(opts.FinalDate, "final_date")
	if err != nil {
		return domain.Task{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	var out domain.Task
	err = e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) ([]events.Change, error) {
		project, err := r.GetProject(ctx, opts.ProjectID)
		if err != nil {
			return nil, err
		}
		emp, err := actor(ctx, r, opts.ActorID, auth.TaskEdit, &project)
		if err != nil {
			return nil, err
		}
		t := domain.Task{
			ID:           id,
			ProjectID:    project.ID,
			Title:        strings.TrimSpace(opts.Title),
			Description:  opts.Description,
			FinalDate:    finalDate,
			DurationDays: opts.DurationDays,
			State:        domain.TaskPending,
			CreatedAt:    e.stamp(),
		}
		if err := r.InsertTask(ctx, t); err != nil {
			return nil, err
		}
		if _, err := e.activityLog().Append(ctx, tx, project.ID, emp.ID, emp.Name, domain.ActionTaskCreated, quoted("Tâche", t.Title)); err != nil {
			return nil, err
		}
		out, err = r.GetTask(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		return []events.Change{{Kind: events.KindTask, ProjectID: project.ID, TaskID: t.ID}}, nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return out, nil
}

// TaskUpdateOptions carries optional field changes. ExpectedVersion of
// zero skips the optimistic check.
type TaskUpdateOptions struct {
	ID              string
	Title           *string
	Description     *string
	FinalDate       *string
	DurationDays    *int
	State           *string
	ExpectedVersion int64
	ActorID         string
}

// UpdateTask edits a task. Vote sets are not writable here; they change
// through Validate and MarkNotPertinent only.
func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	var out domain.Task
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) ([]events.Change, error) {
		t, err := r.GetTask(ctx, opts.ID)
		if err != nil {
			return nil, err
		}
		emp, err := actor(ctx, r, opts.ActorID, auth.TaskEdit, nil)
		if err != nil {
			return nil, err
		}
		expected := opts.ExpectedVersion
		if expected == 0 {
			expected = t.Version
		}
		details := quoted("Tâche", t.Title)
		if opts.Title != nil {
			if strings.TrimSpace(*opts.Title) == "" {
				return nil, invalidf("title must not be empty")
			}
			t.Title = strings.TrimSpace(*opts.Title)
		}
		if opts.Description != nil {
			t.Description = *opts.Description
		}
		if opts.FinalDate != nil {
			d, err := normalizeDate(*opts.FinalDate, "final_date")
			if err != nil {
				return nil, err
			}
			t.FinalDate = d
		}
		if opts.DurationDays != nil {
			if *opts.DurationDays < 0 {
				return nil, invalidf("duration_days must not be negative")
			}
			t.DurationDays = *opts.DurationDays
		}
		if opts.State != nil {
			if !domain.ValidTaskState(*opts.State) {
				return nil, invalidf("unknown task state %q", *opts.State)
			}
			t.State = *opts.State
			details = fmt.Sprintf("%s → %s", quoted("Tâche", t.Title), t.State)
		}
		updated, err := r.UpdateTask(ctx, t, expected)
		if err != nil {
			return nil, err
		}
		if _, err := e.activityLog().Append(ctx, tx, t.ProjectID, emp.ID, emp.Name, domain.ActionTaskUpdated, details); err != nil {
			return nil, err
		}
		out = updated
		return []events.Change{{Kind: events.KindTask, ProjectID: t.ProjectID, TaskID: t.ID}}, nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return out, nil
}

// DeleteTask removes the task with its votes and comments.
func (e Engine) DeleteTask(ctx context.Context, taskID, actorID string) error {
	return e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) ([]events.Change, error) {
		t, err := r.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		project, err := r.GetProject(ctx, t.ProjectID)
		if err != nil {
			return nil, err
		}
		emp, err := actor(ctx, r, actorID, auth.TaskDelete, &project)
		if err != nil {
			return nil, err
		}
		if err := r.DeleteTask(ctx, taskID); err != nil {
			return nil, err
		}
		if _, err := e.activityLog().Append(ctx, tx, t.ProjectID, emp.ID, emp.Name, domain.ActionTaskDeleted, quoted("Tâche", t.Title)); err != nil {
			return nil, err
		}
		return []events.Change{{Kind: events.KindTask, ProjectID: t.ProjectID, TaskID: taskID}}, nil
	})
}

func (e Engine) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	return e.Repo.GetTask(ctx, taskID)
}

// ListTasks fails with not found when the project does not exist.
func (e Engine) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.Repo.ListTasks(ctx, projectID)
}
