package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"signoff/internal/config"
	"signoff/internal/db"
	"signoff/internal/domain"
	"signoff/internal/engine"
	"signoff/internal/logging"
	"signoff/internal/migrate"
	"signoff/internal/notify"
	"signoff/internal/repo"
)

// App bundles what a CLI command or the server needs for one workspace.
type App struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Log       *logrus.Logger
	Engine    engine.Engine
}

// Open loads the workspace config, opens and migrates the database and
// wires the engine.
func Open(ctx context.Context, workspace string) (*App, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(workspace, cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	eng := engine.New(conn, cfg)
	eng.Log = logger
	return &App{Workspace: workspace, DB: conn, Config: cfg, Log: logger, Engine: eng}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

func (a *App) Generator() notify.Generator {
	return notify.Generator{
		Repo:   a.Engine.Repo,
		Now:    a.Engine.Now,
		Window: a.Config.NotificationWindow(),
		Log:    a.Log,
	}
}

func (a *App) Scheduler() (notify.Scheduler, error) {
	interval, err := a.Config.NotificationInterval()
	if err != nil {
		return notify.Scheduler{}, err
	}
	return notify.Scheduler{Generator: a.Generator(), Interval: interval, Bus: a.Engine.Bus}, nil
}

func (a *App) Inbox() notify.Inbox {
	return notify.Inbox{Repo: a.Engine.Repo}
}

// ResolveActor accepts an employee id or email. An empty value resolves
// only when the workspace has exactly one active supervisor.
func ResolveActor(ctx context.Context, r repo.Repo, actor string) (domain.Employee, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		sups, err := r.ListEmployees(ctx, repo.EmployeeFilters{Role: domain.RoleSupervisor, ActiveOnly: true})
		if err != nil {
			return domain.Employee{}, err
		}
		if len(sups) != 1 {
			return domain.Employee{}, fmt.Errorf("actor not specified; use --actor or SIGNOFF_ACTOR")
		}
		return sups[0], nil
	}
	emp, err := r.GetEmployee(ctx, actor)
	if err == nil {
		return emp, nil
	}
	if !errors.Is(err, repo.ErrNotFound) || !strings.Contains(actor, "@") {
		return domain.Employee{}, err
	}
	return r.GetEmployeeByEmail(ctx, actor)
}
