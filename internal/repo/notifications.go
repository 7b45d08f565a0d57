package repo

import (
	"context"
	"database/sql"

	"signoff/internal/domain"
)

// InsertNotification stores n unconditionally.
func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO notifications(id,user_id,type,title,message,related_project_id,related_task_id,read,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, nullableStringPtr(n.RelatedProjectID), nullableStringPtr(n.RelatedTaskID), boolInt(n.Read), n.CreatedAt)
	return err
}

// InsertDeadlineNotification stores n unless the user already holds a
// deadline notification for the same task. It reports whether a row was written.
func (r Repo) InsertDeadlineNotification(ctx context.Context, n domain.Notification) (bool, error) {
	res, err := r.q().ExecContext(ctx, `INSERT OR IGNORE INTO notifications(id,user_id,type,title,message,related_project_id,related_task_id,read,created_at) VALUES (?,?,'deadline',?,?,?,?,0,?)`,
		n.ID, n.UserID, n.Title, n.Message, nullableStringPtr(n.RelatedProjectID), nullableStringPtr(n.RelatedTaskID), n.CreatedAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanNotification(row rowScanner) (domain.Notification, error) {
	var n domain.Notification
	var project, task sql.NullString
	var read int
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &project, &task, &read, &n.CreatedAt)
	n.RelatedProjectID = stringPtr(project)
	n.RelatedTaskID = stringPtr(task)
	n.Read = read == 1
	return n, err
}

// ListNotifications returns a user's notifications newest first.
func (r Repo) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	query := `SELECT id,user_id,type,title,message,related_project_id,related_task_id,read,created_at FROM notifications WHERE user_id=?`
	if unreadOnly {
		query += ` AND read=0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.q().QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) CountDeadlineNotifications(ctx context.Context, userID, taskID string) (int, error) {
	var n int
	err := r.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id=? AND related_task_id=? AND type='deadline'`, userID, taskID).Scan(&n)
	return n, err
}

// MarkNotificationRead flags one of the user's notifications as read.
func (r Repo) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := r.q().ExecContext(ctx, `UPDATE notifications SET read=1 WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	return affectedOne(res, "notification", id)
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.q().ExecContext(ctx, `UPDATE notifications SET read=1 WHERE user_id=? AND read=0`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) ClearNotifications(ctx context.Context, userID string) (int64, error) {
	res, err := r.q().ExecContext(ctx, `DELETE FROM notifications WHERE user_id=?`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
