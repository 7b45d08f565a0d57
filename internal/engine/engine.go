package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"signoff/internal/activity"
	"signoff/internal/config"
	"signoff/internal/domain"
	"signoff/internal/engine/auth"
	"signoff/internal/events"
	"signoff/internal/logging"
	"signoff/internal/repo"
)

// ErrInvalid marks input that failed validation.
var ErrInvalid = errors.New("invalid input")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// GateViolation is returned when certification is requested while some
// tasks are not validated by anyone, or the project has no task at all.
type GateViolation struct {
	ProjectID string
	Pending   []string
}

func (e GateViolation) Error() string {
	if len(e.Pending) == 0 {
		return fmt.Sprintf("project %s cannot be validated: it has no task", e.ProjectID)
	}
	return fmt.Sprintf("project %s cannot be validated: tasks not validated: %s", e.ProjectID, strings.Join(e.Pending, ", "))
}

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Activity activity.Log
	Bus      *events.Bus
	Config   *config.Config
	Log      *logrus.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	e := Engine{
		DB:     db,
		Repo:   r,
		Bus:    events.NewBus(),
		Config: cfg,
		Log:    logging.Discard(),
		Now:    time.Now,
	}
	e.Activity = activity.Log{Repo: r, Now: e.now}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return domain.FormatTime(e.now())
}

func (e Engine) logger() logrus.FieldLogger {
	if e.Log == nil {
		return logging.Discard()
	}
	return e.Log
}

// activityLog binds the log to the engine clock so injected times apply.
func (e Engine) activityLog() activity.Log {
	l := e.Activity
	l.Repo = e.Repo
	l.Now = e.now
	return l
}

// inTx runs fn in a transaction and publishes changes only once it commits.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx, r repo.Repo) ([]events.Change, error)) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	changes, err := fn(tx, e.Repo.WithTx(tx))
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, c := range changes {
		e.Bus.Publish(c)
	}
	return nil
}

// actor loads an employee and checks capability against project.
func actor(ctx context.Context, r repo.Repo, actorID, capability string, project *domain.Project) (domain.Employee, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.Employee{}, invalidf("actor is required")
	}
	emp, err := r.GetEmployee(ctx, actorID)
	if err != nil {
		return domain.Employee{}, err
	}
	if capability != "" {
		if err := auth.Require(emp, capability, project); err != nil {
			return domain.Employee{}, err
		}
	}
	return emp, nil
}

func quoted(prefix, title string) string {
	return fmt.Sprintf(`%s "%s"`, prefix, title)
}
