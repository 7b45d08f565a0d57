package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"signoff/internal/domain"
	"signoff/internal/logging"
	"signoff/internal/repo"
)

const (
	DefaultWindow = 15 * 24 * time.Hour
	deadlineTitle = "Échéance proche"
)

// Generator creates deadline alerts for tasks whose final date falls in
// (now, now+Window]. Each active employee gets at most one alert per task.
type Generator struct {
	Repo   repo.Repo
	Now    func() time.Time
	Window time.Duration
	Log    *logrus.Logger
}

func (g Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g Generator) window() time.Duration {
	if g.Window > 0 {
		return g.Window
	}
	return DefaultWindow
}

func (g Generator) logger() *logrus.Logger {
	if g.Log == nil {
		return logging.Discard()
	}
	return g.Log
}

// InWindow reports whether due falls in the half-open window (now, now+window].
func InWindow(due, now time.Time, window time.Duration) bool {
	diff := due.Sub(now)
	return diff > 0 && diff <= window
}

// Run returns the number of notifications written. Running it again with no
// task changes in between writes nothing.
func (g Generator) Run(ctx context.Context) (int, error) {
	now := g.now()
	tasks, err := g.Repo.ListAllTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tasks: %w", err)
	}
	var due []domain.Task
	for _, t := range tasks {
		final, err := domain.ParseTime(t.FinalDate)
		if err != nil {
			g.logger().WithFields(logrus.Fields{"task_id": t.ID, "final_date": t.FinalDate}).Warn("skipping task with unreadable final date")
			continue
		}
		if InWindow(final, now, g.window()) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return 0, nil
	}
	employees, err := g.Repo.ListEmployees(ctx, repo.EmployeeFilters{ActiveOnly: true})
	if err != nil {
		return 0, fmt.Errorf("list employees: %w", err)
	}

	tx, err := g.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	r := g.Repo.WithTx(tx)
	stamp := domain.FormatTime(now)
	created := 0
	for _, t := range due {
		projectID, taskID := t.ProjectID, t.ID
		for _, emp := range employees {
			ok, err := r.InsertDeadlineNotification(ctx, domain.Notification{
				ID:               uuid.NewString(),
				UserID:           emp.ID,
				Type:             domain.NotificationDeadline,
				Title:            deadlineTitle,
				Message:          fmt.Sprintf(`La tâche "%s" approche.`, t.Title),
				RelatedProjectID: &projectID,
				RelatedTaskID:    &taskID,
				CreatedAt:        stamp,
			})
			if err != nil {
				return 0, fmt.Errorf("insert deadline notification: %w", err)
			}
			if ok {
				created++
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if created > 0 {
		g.logger().WithField("created", created).Info("deadline notifications generated")
	}
	return created, nil
}
