package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"signoff/internal/domain"
	"signoff/internal/engine/auth"
	"signoff/internal/events"
	"signoff/internal/repo"
)

const notPertinentTitle = "Tâche jugée non pertinente"

// Validate records employeeID as a validator of the task, moving it out of
// the not-pertinent set. The first validator moves the task to the
// validated state. Repeating the call changes nothing and logs nothing.
func (e Engine) Validate(ctx context.Context, taskID, employeeID string) (domain.Task, error) {
	return e.vote(ctx, taskID, employeeID, domain.VoteValidated)
}

// MarkNotPertinent records employeeID as judging the task not pertinent,
// moving it out of the validator set. The task state is left as is and the
// project owner receives an info notification.
func (e Engine) MarkNotPertinent(ctx context.Context, taskID, employeeID string) (domain.Task, error) {
	return e.vote(ctx, taskID, employeeID, domain.VoteNotPertinent)
}

func (e Engine) vote(ctx context.Context, taskID, employeeID, kind string) (domain.Task, error) {
	var out domain.Task
	changed := false
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) ([]events.Change, error) {
		task, err := r.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		emp, err := actor(ctx, r, employeeID, auth.TaskVote, nil)
		if err != nil {
			return nil, err
		}
		prev, err := r.GetVote(ctx, taskID, employeeID)
		if err != nil {
			return nil, err
		}
		if prev == kind {
			out = task
			return nil, nil
		}
		validators, err := r.CountVotes(ctx, taskID, domain.VoteValidated)
		if err != nil {
			return nil, err
		}
		if err := r.SetVote(ctx, taskID, employeeID, kind, e.stamp()); err != nil {
			return nil, fmt.Errorf("record vote: %w", err)
		}
		if kind == domain.VoteValidated && validators == 0 {
			if err := r.SetTaskState(ctx, taskID, domain.TaskValidated); err != nil {
				return nil, err
			}
		} else if err := r.TouchTask(ctx, taskID); err != nil {
			return nil, err
		}

		action := domain.ActionTaskValidated
		if kind == domain.VoteNotPertinent {
			action = domain.ActionTaskMarkedNotPertinent
			if err := e.notifyOwner(ctx, r, task, emp); err != nil {
				return nil, err
			}
		}
		if _, err := e.activityLog().Append(ctx, tx, task.ProjectID, emp.ID, emp.Name, action, quoted("Tâche", task.Title)); err != nil {
			return nil, err
		}
		out, err = r.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		changed = true
		return []events.Change{{Kind: events.KindVote, ProjectID: task.ProjectID, TaskID: taskID}}, nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	if changed {
		e.logger().WithFields(logrus.Fields{"task_id": taskID, "actor_id": employeeID, "vote": kind}).Info("task vote recorded")
	}
	return out, nil
}

func (e Engine) notifyOwner(ctx context.Context, r repo.Repo, task domain.Task, by domain.Employee) error {
	project, err := r.GetProject(ctx, task.ProjectID)
	if err != nil {
		return err
	}
	projectID, taskID := project.ID, task.ID
	return r.InsertNotification(ctx, domain.Notification{
		ID:               uuid.NewString(),
		UserID:           project.OwnerID,
		Type:             domain.NotificationInfo,
		Title:            notPertinentTitle,
		Message:          fmt.Sprintf(`La tâche "%s" a été jugée non pertinente par %s.`, task.Title, by.Name),
		RelatedProjectID: &projectID,
		RelatedTaskID:    &taskID,
		CreatedAt:        e.stamp(),
	})
}

// IsValidatedByAnyone is the readiness predicate used by the project gate.
func (e Engine) IsValidatedByAnyone(ctx context.Context, taskID string) (bool, error) {
	task, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	return task.Ready(), nil
}

// Votes returns both vote sets of a task.
func (e Engine) Votes(ctx context.Context, taskID string) (validated, notPertinent []string, err error) {
	task, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	return task.ValidatedBy, task.NotPertinentBy, nil
}
