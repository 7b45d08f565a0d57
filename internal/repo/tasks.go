package repo

import (
	"context"
	"database/sql"

	"signoff/internal/domain"
)

const taskColumns = `id,project_id,title,COALESCE(description,''),final_date,duration_days,state,version,created_at`

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.FinalDate, &t.DurationDays, &t.State, &t.Version, &t.CreatedAt)
	t.ValidatedBy = []string{}
	t.NotPertinentBy = []string{}
	return t, err
}

func (r Repo) InsertTask(ctx context.Context, t domain.Task) error {
	if t.State == "" {
		t.State = domain.TaskPending
	}
	_, err := r.q().ExecContext(ctx, `INSERT INTO tasks(id,project_id,title,description,final_date,duration_days,state,version,created_at) VALUES (?,?,?,?,?,?,?,1,?)`,
		t.ID, t.ProjectID, t.Title, nullable(t.Description), t.FinalDate, t.DurationDays, t.State, t.CreatedAt)
	return err
}

// GetTask loads the task together with both vote sets.
func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := scanTask(r.q().QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return t, notFound("task", id)
	}
	if err != nil {
		return t, err
	}
	votes, err := r.votesWhere(ctx, `task_id=?`, id)
	if err != nil {
		return t, err
	}
	applyVotes(&t, votes[id])
	return t, nil
}

// ListTasks returns the tasks of a project, oldest first, with their votes.
func (r Repo) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	return r.listTasks(ctx, `WHERE project_id=?`, projectID)
}

// ListAllTasks returns every task in the store with its votes.
func (r Repo) ListAllTasks(ctx context.Context) ([]domain.Task, error) {
	return r.listTasks(ctx, ``)
}

func (r Repo) listTasks(ctx context.Context, where string, args ...any) ([]domain.Task, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(res) == 0 {
		return res, nil
	}
	voteWhere := `1=1`
	if where != "" {
		voteWhere = `task_id IN (SELECT id FROM tasks ` + where + `)`
	}
	votes, err := r.votesWhere(ctx, voteWhere, args...)
	if err != nil {
		return nil, err
	}
	for i := range res {
		applyVotes(&res[i], votes[res[i].ID])
	}
	return res, nil
}

// UpdateTask writes title, description, dates and state when the stored
// version equals expectedVersion.
func (r Repo) UpdateTask(ctx context.Context, t domain.Task, expectedVersion int64) (domain.Task, error) {
	res, err := r.q().ExecContext(ctx, `UPDATE tasks SET title=?, description=?, final_date=?, duration_days=?, state=?, version=version+1 WHERE id=? AND version=?`,
		t.Title, nullable(t.Description), t.FinalDate, t.DurationDays, t.State, t.ID, expectedVersion)
	if err != nil {
		return domain.Task{}, err
	}
	if err := r.versionCheck(ctx, res, "tasks", "task", t.ID); err != nil {
		return domain.Task{}, err
	}
	return r.GetTask(ctx, t.ID)
}

func (r Repo) SetTaskState(ctx context.Context, id, state string) error {
	res, err := r.q().ExecContext(ctx, `UPDATE tasks SET state=?, version=version+1 WHERE id=?`, state, id)
	if err != nil {
		return err
	}
	return affectedOne(res, "task", id)
}

// TouchTask bumps the version after a vote change.
func (r Repo) TouchTask(ctx context.Context, id string) error {
	res, err := r.q().ExecContext(ctx, `UPDATE tasks SET version=version+1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOne(res, "task", id)
}

func (r Repo) DeleteTask(ctx context.Context, id string) error {
	res, err := r.q().ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOne(res, "task", id)
}

// GetVote returns the employee's vote kind on a task, or "" when none.
func (r Repo) GetVote(ctx context.Context, taskID, employeeID string) (string, error) {
	var kind string
	err := r.q().QueryRowContext(ctx, `SELECT kind FROM task_votes WHERE task_id=? AND employee_id=?`, taskID, employeeID).Scan(&kind)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return kind, err
}

// SetVote records the employee's vote, replacing any previous one.
func (r Repo) SetVote(ctx context.Context, taskID, employeeID, kind, at string) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO task_votes(task_id,employee_id,kind,voted_at) VALUES (?,?,?,?)
ON CONFLICT(task_id,employee_id) DO UPDATE SET kind=excluded.kind, voted_at=excluded.voted_at`, taskID, employeeID, kind, at)
	return err
}

// CountVotes returns how many employees cast kind on the task.
func (r Repo) CountVotes(ctx context.Context, taskID, kind string) (int, error) {
	var n int
	err := r.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM task_votes WHERE task_id=? AND kind=?`, taskID, kind).Scan(&n)
	return n, err
}

// TaskReadiness summarizes a project's tasks for the gate.
type TaskReadiness struct {
	Total   int
	Pending []string
}

func (r Repo) TaskReadiness(ctx context.Context, projectID string) (TaskReadiness, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT t.id, EXISTS(SELECT 1 FROM task_votes v WHERE v.task_id=t.id AND v.kind='validated')
FROM tasks t WHERE t.project_id=? ORDER BY t.created_at, t.id`, projectID)
	if err != nil {
		return TaskReadiness{}, err
	}
	defer rows.Close()
	res := TaskReadiness{Pending: []string{}}
	for rows.Next() {
		var id string
		var ready int
		if err := rows.Scan(&id, &ready); err != nil {
			return TaskReadiness{}, err
		}
		res.Total++
		if ready == 0 {
			res.Pending = append(res.Pending, id)
		}
	}
	return res, rows.Err()
}

type vote struct {
	employeeID string
	kind       string
}

func (r Repo) votesWhere(ctx context.Context, where string, args ...any) (map[string][]vote, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT task_id, employee_id, kind FROM task_votes WHERE `+where+` ORDER BY voted_at, employee_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string][]vote{}
	for rows.Next() {
		var taskID string
		var v vote
		if err := rows.Scan(&taskID, &v.employeeID, &v.kind); err != nil {
			return nil, err
		}
		res[taskID] = append(res[taskID], v)
	}
	return res, rows.Err()
}

func applyVotes(t *domain.Task, votes []vote) {
	for _, v := range votes {
		switch v.kind {
		case domain.VoteValidated:
			t.ValidatedBy = append(t.ValidatedBy, v.employeeID)
		case domain.VoteNotPertinent:
			t.NotPertinentBy = append(t.NotPertinentBy, v.employeeID)
		}
	}
}
