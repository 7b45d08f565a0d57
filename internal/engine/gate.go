package engine

import (
	"context"
	"database/sql"

	"github.com/sirupsen/logrus"

	"signoff/internal/domain"
	"signoff/internal/engine/auth"
	"signoff/internal/events"
	"signoff/internal/repo"
)

// GateStatus describes how far a project is from supervisor sign-off.
type GateStatus struct {
	ProjectID             string   `json:"project_id"`
	TotalTasks            int      `json:"total_tasks"`
	ReadyTasks            int      `json:"ready_tasks"`
	PendingTasks          []string `json:"pending_tasks"`
	CanValidate           bool     `json:"can_validate"`
	ValidatedBySupervisor bool     `json:"validated_by_supervisor"`
}

// CanValidate is false for a project without tasks, otherwise true iff
// every task has at least one validator.
func (e Engine) CanValidate(ctx context.Context, projectID string) (bool, error) {
	st, err := e.gateStatus(ctx, e.Repo, projectID)
	if err != nil {
		return false, err
	}
	return st.CanValidate, nil
}

func (e Engine) GateStatus(ctx context.Context, projectID string) (GateStatus, error) {
	return e.gateStatus(ctx, e.Repo, projectID)
}

func (e Engine) gateStatus(ctx context.Context, r repo.Repo, projectID string) (GateStatus, error) {
	project, err := r.GetProject(ctx, projectID)
	if err != nil {
		return GateStatus{}, err
	}
	rd, err := r.TaskReadiness(ctx, projectID)
	if err != nil {
		return GateStatus{}, err
	}
	return GateStatus{
		ProjectID:             projectID,
		TotalTasks:            rd.Total,
		ReadyTasks:            rd.Total - len(rd.Pending),
		PendingTasks:          rd.Pending,
		CanValidate:           rd.Total > 0 && len(rd.Pending) == 0,
		ValidatedBySupervisor: project.ValidatedBySupervisor,
	}, nil
}

// SetSupervisorValidation certifies or revokes a project. Certification is
// checked against the task set inside the same transaction that writes the
// flag. Revocation is always allowed. Every successful call logs one entry,
// even when the flag already had the requested value.
func (e Engine) SetSupervisorValidation(ctx context.Context, projectID string, desired bool, actorID string) (domain.Project, error) {
	var out domain.Project
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) ([]events.Change, error) {
		project, err := r.GetProject(ctx, projectID)
		if err != nil {
			return nil, err
		}
		emp, err := actor(ctx, r, actorID, auth.ProjectCertify, &project)
		if err != nil {
			return nil, err
		}
		action := domain.ActionProjectInvalidated
		if desired {
			st, err := e.gateStatus(ctx, r, projectID)
			if err != nil {
				return nil, err
			}
			if !st.CanValidate {
				return nil, GateViolation{ProjectID: projectID, Pending: st.PendingTasks}
			}
			action = domain.ActionProjectValidated
		}
		if err := r.SetProjectValidated(ctx, projectID, desired); err != nil {
			return nil, err
		}
		if _, err := e.activityLog().Append(ctx, tx, projectID, emp.ID, emp.Name, action, ""); err != nil {
			return nil, err
		}
		out, err = r.GetProject(ctx, projectID)
		if err != nil {
			return nil, err
		}
		return []events.Change{{Kind: events.KindGate, ProjectID: projectID}}, nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	e.logger().WithFields(logrus.Fields{"project_id": projectID, "actor_id": actorID, "validated": desired}).Info("supervisor validation set")
	return out, nil
}
