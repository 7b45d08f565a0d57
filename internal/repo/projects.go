package repo

import (
	"context"
	"database/sql"
	"strings"

	"signoff/internal/domain"
)

const projectColumns = `id,title,COALESCE(description,''),owner_id,COALESCE(service_id,''),budget,duration_days,deadline,validated_by_supervisor,version,created_at`

type ProjectFilters struct {
	OwnerID   string
	ServiceID string
	Validated *bool
}

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var validated int
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.OwnerID, &p.ServiceID, &p.Budget, &p.DurationDays, &p.Deadline, &validated, &p.Version, &p.CreatedAt)
	p.ValidatedBySupervisor = validated == 1
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO projects(id,title,description,owner_id,service_id,budget,duration_days,deadline,validated_by_supervisor,version,created_at) VALUES (?,?,?,?,?,?,?,?,0,1,?)`,
		p.ID, p.Title, nullable(p.Description), p.OwnerID, nullable(p.ServiceID), p.Budget, p.DurationDays, p.Deadline, p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := scanProject(r.q().QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return p, notFound("project", id)
	}
	return p, err
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, f.OwnerID)
	}
	if f.ServiceID != "" {
		clauses = append(clauses, "service_id=?")
		args = append(args, f.ServiceID)
	}
	if f.Validated != nil {
		clauses = append(clauses, "validated_by_supervisor=?")
		args = append(args, boolInt(*f.Validated))
	}
	rows, err := r.q().QueryContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE `+strings.Join(clauses, " AND ")+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdateProject writes the editable fields when the stored version equals
// expectedVersion and bumps it. The certification flag is not touched here.
func (r Repo) UpdateProject(ctx context.Context, p domain.Project, expectedVersion int64) (domain.Project, error) {
	res, err := r.q().ExecContext(ctx, `UPDATE projects SET title=?, description=?, service_id=?, budget=?, duration_days=?, deadline=?, version=version+1 WHERE id=? AND version=?`,
		p.Title, nullable(p.Description), nullable(p.ServiceID), p.Budget, p.DurationDays, p.Deadline, p.ID, expectedVersion)
	if err != nil {
		return domain.Project{}, err
	}
	if err := r.versionCheck(ctx, res, "projects", "project", p.ID); err != nil {
		return domain.Project{}, err
	}
	return r.GetProject(ctx, p.ID)
}

// SetProjectValidated is the only writer of validated_by_supervisor.
func (r Repo) SetProjectValidated(ctx context.Context, id string, validated bool) error {
	res, err := r.q().ExecContext(ctx, `UPDATE projects SET validated_by_supervisor=?, version=version+1 WHERE id=?`, boolInt(validated), id)
	if err != nil {
		return err
	}
	return affectedOne(res, "project", id)
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.q().ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOne(res, "project", id)
}

// versionCheck tells a missing row apart from a stale version after a
// conditional update touched nothing.
func (r Repo) versionCheck(ctx context.Context, res sql.Result, table, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = r.q().QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return notFound(kind, id)
	}
	if err != nil {
		return err
	}
	return ConflictError{Kind: kind, ID: id, Reason: "version mismatch"}
}
