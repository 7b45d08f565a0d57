package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"signoff/internal/domain"
	"signoff/internal/engine/auth"
	"signoff/internal/events"
	"signoff/internal/repo"
)

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	ID           string
	Title        string
	Description  string
	ServiceID    string
	Budget       float64
	DurationDays int
	Deadline     string
	ActorID      string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Project{}, invalidf("title is required")
	}
	if opts.Budget < 0 {
		return domain.Project{}, invalidf("budget must not be negative")
	}
	if opts.DurationDays <= 0 {
		return domain.Project{}, invalidf("duration_days must be positive")
	}
	deadline, err := normalizeDate(opts.Deadline, "deadline")
	if err != nil {
		return domain.Project{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	var out domain.Project
	err = e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) ([]events.Change, error) {
		owner, err := actor(ctx, r, opts.ActorID, "", nil)
		if err != nil {
			return nil, err
		}
		if !owner.Active {
			return nil, auth.ForbiddenError{Permission: auth.ProjectEdit, ActorID: owner.ID}
		}
		serviceID := opts.ServiceID
		if serviceID == "" {
			serviceID = owner.ServiceID
		}
		p := domain.Project{
			ID:           id,
			Title:        strings.TrimSpace(opts.Title),
			Description:  opts.Description,
			OwnerID:      owner.ID,
			ServiceID:    serviceID,
			Budget:       opts.Budget,
			DurationDays: opts.DurationDays,
			Deadline:     deadline,
			CreatedAt:    e.stamp(),
		}
		if err := r.InsertProject(ctx, p); err != nil {
			return nil, err
		}
		if _, err := e.activityLog().Append(ctx, tx, p.ID, owner.ID, owner.Name, domain.ActionProjectCreated, quoted("Projet", p.Title)); err != nil {
			return nil, err
		}
		out, err = r.GetProject(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return []events.Change{{Kind: events.KindProject, ProjectID: p.ID}}, nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	return out, nil
}

// ProjectUpdateOptions carries optional field changes. ExpectedVersion of
// zero skips the optimistic check.
type ProjectUpdateOptions struct {
	ID              string
	Title           *string
	Description     *string
	ServiceID       *string
	Budget          *float64
	DurationDays    *int
	Deadline        *string
	ExpectedVersion int64
	ActorID         string
}

func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	var out domain.Project
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) ([]events.Change, error) {
		p, err := r.GetProject(ctx, opts.ID)
		if err != nil {
			return nil, err
		}
		emp, err := actor(ctx, r, opts.ActorID, auth.ProjectEdit, &p)
		if err != nil {
			return nil, err
		}
		expected := opts.ExpectedVersion
		if expected == 0 {
			expected = p.Version
		}
		if opts.Title != nil {
			if strings.TrimSpace(*opts.Title) == "" {
				return nil, invalidf("title must not be empty")
			}
			p.Title = strings.TrimSpace(*opts.Title)
		}
		if opts.Description != nil {
			p.Description = *opts.Description
		}
		if opts.ServiceID != nil {
			p.ServiceID = *opts.ServiceID
		}
		if opts.Budget != nil {
			if *opts.Budget < 0 {
				return nil, invalidf("budget must not be negative")
			}
			p.Budget = *opts.Budget
		}
		if opts.DurationDays != nil {
			if *opts.DurationDays <= 0 {
				return nil, invalidf("duration_days must be positive")
			}
			p.DurationDays = *opts.DurationDays
		}
		if opts.Deadline != nil {
			d, err := normalizeDate(*opts.Deadline, "deadline")
			if err != nil {
				return nil, err
			}
			p.Deadline = d
		}
		updated, err := r.UpdateProject(ctx, p, expected)
		if err != nil {
			return nil, err
		}
		if _, err := e.activityLog().Append(ctx, tx, p.ID, emp.ID, emp.Name, domain.ActionProjectUpdated, quoted("Projet", p.Title)); err != nil {
			return nil, err
		}
		out = updated
		return []events.Change{{Kind: events.KindProject, ProjectID: p.ID}}, nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	return out, nil
}

// DeleteProject removes the project with its tasks, votes, comments,
// attachment and activity entries.
func (e Engine) DeleteProject(ctx context.Context, projectID, actorID string) error {
	return e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) ([]events.Change, error) {
		p, err := r.GetProject(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if _, err := actor(ctx, r, actorID, auth.ProjectEdit, &p); err != nil {
			return nil, err
		}
		if err := r.DeleteProject(ctx, projectID); err != nil {
			return nil, err
		}
		return []events.Change{{Kind: events.KindProject, ProjectID: projectID}}, nil
	})
}

func (e Engine) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	return e.Repo.GetProject(ctx, projectID)
}

func (e Engine) ListProjects(ctx context.Context, f repo.ProjectFilters) ([]domain.Project, error) {
	return e.Repo.ListProjects(ctx, f)
}

// normalizeDate accepts a date or timestamp and stores it in TimeLayout.
func normalizeDate(value, field string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", invalidf("%s is required", field)
	}
	t, err := domain.ParseTime(strings.TrimSpace(value))
	if err != nil {
		return "", invalidf("%s: %v", field, err)
	}
	return domain.FormatTime(t), nil
}

// IsInvalid reports whether err is an input validation failure.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}
