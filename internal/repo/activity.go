package repo

import (
	"context"
	"strings"

	"signoff/internal/domain"
)

const activityColumns = `seq,id,project_id,actor_id,actor_name,action,COALESCE(details,''),ts`

// InsertActivity appends an entry and returns it with its assigned seq.
func (r Repo) InsertActivity(ctx context.Context, e domain.ActivityEntry) (domain.ActivityEntry, error) {
	res, err := r.q().ExecContext(ctx, `INSERT INTO activity_logs(id,project_id,actor_id,actor_name,action,details,ts) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.ProjectID, e.ActorID, e.ActorName, e.Action, nullable(e.Details), e.Timestamp)
	if err != nil {
		return e, err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return e, err
	}
	e.Seq = seq
	return e, nil
}

// ListActivity returns a project's entries newest first. Entries sharing a
// timestamp come back newest-appended first.
func (r Repo) ListActivity(ctx context.Context, projectID string, limit int) ([]domain.ActivityEntry, error) {
	query := `SELECT ` + activityColumns + ` FROM activity_logs WHERE project_id=? ORDER BY ts DESC, seq DESC`
	args := []any{projectID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.queryActivity(ctx, query, args...)
}

// ListActivityAfter returns entries with seq greater than cursor in append
// order, optionally restricted to a set of actions.
func (r Repo) ListActivityAfter(ctx context.Context, cursor int64, actions []string, limit int) ([]domain.ActivityEntry, error) {
	clauses := []string{"seq > ?"}
	args := []any{cursor}
	if len(actions) > 0 {
		clauses = append(clauses, "action IN ("+strings.TrimSuffix(strings.Repeat("?,", len(actions)), ",")+")")
		for _, a := range actions {
			args = append(args, a)
		}
	}
	query := `SELECT ` + activityColumns + ` FROM activity_logs WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY seq`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.queryActivity(ctx, query, args...)
}

func (r Repo) queryActivity(ctx context.Context, query string, args ...any) ([]domain.ActivityEntry, error) {
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ActivityEntry{}
	for rows.Next() {
		var e domain.ActivityEntry
		if err := rows.Scan(&e.Seq, &e.ID, &e.ProjectID, &e.ActorID, &e.ActorName, &e.Action, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestActivitySeq returns the highest seq, or zero on an empty log.
func (r Repo) LatestActivitySeq(ctx context.Context) (int64, error) {
	var seq int64
	err := r.q().QueryRowContext(ctx, `SELECT COALESCE(MAX(seq),0) FROM activity_logs`).Scan(&seq)
	return seq, err
}
