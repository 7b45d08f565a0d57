package repo

import (
	"context"
	"math"
	"sort"

	"signoff/internal/domain"
)

type ServiceBudget struct {
	ServiceID string  `json:"service_id"`
	Budget    float64 `json:"budget"`
}

type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

type Overview struct {
	Projects          int             `json:"projects"`
	ValidatedProjects int             `json:"validated_projects"`
	Tasks             int             `json:"tasks"`
	ActiveMembers     int             `json:"active_members"`
	TotalBudget       float64         `json:"total_budget"`
	TasksByState      map[string]int  `json:"tasks_by_state"`
	CompletionRate    int             `json:"completion_rate"`
	BudgetPerService  []ServiceBudget `json:"budget_per_service"`
	ProjectsPerMonth  []MonthCount    `json:"projects_per_month"`
}

type ProjectProgress struct {
	ProjectID string  `json:"project_id"`
	Title     string  `json:"title"`
	Budget    float64 `json:"budget"`
	Tasks     int     `json:"tasks"`
	Validated bool    `json:"validated"`
	Progress  int     `json:"progress"`
}

func (r Repo) Overview(ctx context.Context) (Overview, error) {
	o := Overview{TasksByState: map[string]int{
		domain.TaskPending:    0,
		domain.TaskInProgress: 0,
		domain.TaskValidated:  0,
		domain.TaskRejected:   0,
	}}
	err := r.q().QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(validated_by_supervisor),0), COALESCE(SUM(budget),0) FROM projects`).
		Scan(&o.Projects, &o.ValidatedProjects, &o.TotalBudget)
	if err != nil {
		return o, err
	}
	if err := r.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM employees WHERE active=1`).Scan(&o.ActiveMembers); err != nil {
		return o, err
	}

	rows, err := r.q().QueryContext(ctx, `SELECT state, COUNT(*) FROM tasks GROUP BY state`)
	if err != nil {
		return o, err
	}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			rows.Close()
			return o, err
		}
		o.TasksByState[state] = n
		o.Tasks += n
	}
	rows.Close()
	if o.Tasks > 0 {
		o.CompletionRate = percent(o.TasksByState[domain.TaskValidated], o.Tasks)
	}

	rows, err = r.q().QueryContext(ctx, `SELECT COALESCE(service_id,''), SUM(budget) FROM projects GROUP BY COALESCE(service_id,'') ORDER BY 2 DESC`)
	if err != nil {
		return o, err
	}
	for rows.Next() {
		var sb ServiceBudget
		if err := rows.Scan(&sb.ServiceID, &sb.Budget); err != nil {
			rows.Close()
			return o, err
		}
		o.BudgetPerService = append(o.BudgetPerService, sb)
	}
	rows.Close()

	rows, err = r.q().QueryContext(ctx, `SELECT substr(created_at,1,7), COUNT(*) FROM projects GROUP BY 1 ORDER BY 1`)
	if err != nil {
		return o, err
	}
	defer rows.Close()
	for rows.Next() {
		var mc MonthCount
		if err := rows.Scan(&mc.Month, &mc.Count); err != nil {
			return o, err
		}
		o.ProjectsPerMonth = append(o.ProjectsPerMonth, mc)
	}
	return o, rows.Err()
}

// TopProjects ranks projects by the share of their tasks in the validated
// state. A project without tasks has zero progress.
func (r Repo) TopProjects(ctx context.Context, limit int) ([]ProjectProgress, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.q().QueryContext(ctx, `SELECT p.id, p.title, p.budget, p.validated_by_supervisor,
  COUNT(t.id), COALESCE(SUM(CASE WHEN t.state='validated' THEN 1 ELSE 0 END),0)
FROM projects p LEFT JOIN tasks t ON t.project_id=p.id
GROUP BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var all []ProjectProgress
	for rows.Next() {
		var pp ProjectProgress
		var validated, done int
		if err := rows.Scan(&pp.ProjectID, &pp.Title, &pp.Budget, &validated, &pp.Tasks, &done); err != nil {
			return nil, err
		}
		pp.Validated = validated == 1
		if pp.Tasks > 0 {
			pp.Progress = percent(done, pp.Tasks)
		}
		all = append(all, pp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortByProgress(all)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func percent(part, total int) int {
	return int(math.Round(float64(part) / float64(total) * 100))
}

func sortByProgress(list []ProjectProgress) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Progress != list[j].Progress {
			return list[i].Progress > list[j].Progress
		}
		return list[i].ProjectID < list[j].ProjectID
	})
}
