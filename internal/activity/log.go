package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"signoff/internal/domain"
	"signoff/internal/repo"
)

// Log is the append-only audit trail kept per project.
type Log struct {
	Repo repo.Repo
	Now  func() time.Time
}

func (l Log) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Append records action inside tx. Both the project and the actor must
// resolve. An empty actorName is copied from the employee record so later
// renames do not rewrite history.
func (l Log) Append(ctx context.Context, tx *sql.Tx, projectID, actorID, actorName, action, details string) (domain.ActivityEntry, error) {
	if !domain.ValidAction(action) {
		return domain.ActivityEntry{}, fmt.Errorf("unknown activity action %q", action)
	}
	r := l.Repo
	if tx != nil {
		r = r.WithTx(tx)
	}
	if _, err := r.GetProject(ctx, projectID); err != nil {
		return domain.ActivityEntry{}, err
	}
	actor, err := r.GetEmployee(ctx, actorID)
	if err != nil {
		return domain.ActivityEntry{}, err
	}
	if actorName == "" {
		actorName = actor.Name
	}
	entry := domain.ActivityEntry{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		ActorID:   actorID,
		ActorName: actorName,
		Action:    action,
		Details:   details,
		Timestamp: domain.FormatTime(l.now()),
	}
	entry, err = r.InsertActivity(ctx, entry)
	if err != nil {
		return domain.ActivityEntry{}, fmt.Errorf("append activity: %w", err)
	}
	return entry, nil
}

// ByProject returns the newest entries first. A limit of zero returns all.
func (l Log) ByProject(ctx context.Context, projectID string, limit int) ([]domain.ActivityEntry, error) {
	if _, err := l.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return l.Repo.ListActivity(ctx, projectID, limit)
}

// After returns entries appended after cursor in append order.
func (l Log) After(ctx context.Context, cursor int64, actions []string, limit int) ([]domain.ActivityEntry, error) {
	return l.Repo.ListActivityAfter(ctx, cursor, actions, limit)
}

// Head is the cursor a new reader starts from to see only future entries.
func (l Log) Head(ctx context.Context) (int64, error) {
	return l.Repo.LatestActivitySeq(ctx)
}
