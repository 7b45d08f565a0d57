package repo

import (
	"context"
	"database/sql"

	"signoff/internal/domain"
)

func (r Repo) InsertComment(ctx context.Context, c domain.Comment) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO comments(id,task_id,user_id,content,type,created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.TaskID, c.UserID, c.Content, c.Type, c.CreatedAt)
	return err
}

func (r Repo) GetComment(ctx context.Context, id string) (domain.Comment, error) {
	var c domain.Comment
	err := r.q().QueryRowContext(ctx, `SELECT id,task_id,user_id,content,type,created_at FROM comments WHERE id=?`, id).
		Scan(&c.ID, &c.TaskID, &c.UserID, &c.Content, &c.Type, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, notFound("comment", id)
	}
	return c, err
}

// ListComments returns a task's comments, oldest first.
func (r Repo) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT id,task_id,user_id,content,type,created_at FROM comments WHERE task_id=? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.UserID, &c.Content, &c.Type, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) DeleteComment(ctx context.Context, id string) error {
	res, err := r.q().ExecContext(ctx, `DELETE FROM comments WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOne(res, "comment", id)
}
