package repo

import (
	"context"
	"database/sql"

	"signoff/internal/domain"
)

// GetPreferences falls back to the defaults when the user never saved any.
func (r Repo) GetPreferences(ctx context.Context, userID string) (domain.Preferences, error) {
	p := domain.DefaultPreferences(userID)
	var deadline, notPertinent, group int
	err := r.q().QueryRowContext(ctx, `SELECT receive_deadline_alerts,receive_not_pertinent_alerts,group_by_project FROM preferences WHERE user_id=?`, userID).
		Scan(&deadline, &notPertinent, &group)
	if err == sql.ErrNoRows {
		return p, nil
	}
	if err != nil {
		return p, err
	}
	p.ReceiveDeadlineAlerts = deadline == 1
	p.ReceiveNotPertinentAlerts = notPertinent == 1
	p.GroupByProject = group == 1
	return p, nil
}

func (r Repo) UpsertPreferences(ctx context.Context, p domain.Preferences) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO preferences(user_id,receive_deadline_alerts,receive_not_pertinent_alerts,group_by_project) VALUES (?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET receive_deadline_alerts=excluded.receive_deadline_alerts, receive_not_pertinent_alerts=excluded.receive_not_pertinent_alerts, group_by_project=excluded.group_by_project`,
		p.UserID, boolInt(p.ReceiveDeadlineAlerts), boolInt(p.ReceiveNotPertinentAlerts), boolInt(p.GroupByProject))
	return err
}
