package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"signoff/internal/app"
	"signoff/internal/domain"
	"signoff/internal/engine/auth"
	"signoff/internal/notify"
)

func notifyCmd() *cobra.Command {
	n := &cobra.Command{
		Use:     "notify",
		Aliases: []string{"notifications"},
		Short:   "Deadline alerts and the notification inbox",
	}

	n.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Generate deadline notifications for tasks due soon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				if err := auth.Require(actor, auth.EmployeeManage, nil); err != nil {
					return err
				}
				created, err := a.Generator().Run(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%d notification(s) created\n", created)
				return nil
			})
		},
	})

	n.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Regenerate notifications on an interval and on task changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Scheduler()
				if err != nil {
					return err
				}
				a.Log.WithField("interval", s.Interval).Info("notification scheduler started")
				s.Run(ctx)
				return nil
			})
		},
	})

	var unread bool
	list := &cobra.Command{
		Use:   "list",
		Short: "Show the acting employee's notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				items, prefs, err := a.Inbox().List(ctx, actor.ID, unread)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if prefs.GroupByProject {
						return printJSON(notify.GroupByProject(items))
					}
					return printJSON(items)
				}
				if !prefs.GroupByProject {
					renderNotifications(items)
					return nil
				}
				for _, g := range notify.GroupByProject(items) {
					name := g.ProjectID
					if name == "" {
						name = "(no project)"
					}
					fmt.Printf("== %s ==\n", name)
					renderNotifications(g.Notifications)
				}
				return nil
			})
		},
	}
	list.Flags().BoolVar(&unread, "unread", false, "unread notifications only")
	n.AddCommand(list)

	n.AddCommand(&cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				return a.Inbox().MarkRead(ctx, actor.ID, args[0])
			})
		},
	})

	n.AddCommand(&cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification read",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				count, err := a.Inbox().MarkAllRead(ctx, actor.ID)
				if err != nil {
					return err
				}
				fmt.Printf("%d marked read\n", count)
				return nil
			})
		},
	})

	n.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every notification of the acting employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				count, err := a.Inbox().Clear(ctx, actor.ID)
				if err != nil {
					return err
				}
				fmt.Printf("%d removed\n", count)
				return nil
			})
		},
	})

	n.AddCommand(notifyPrefsCmd())
	return n
}

func notifyPrefsCmd() *cobra.Command {
	var deadline, notPertinent, group bool
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change notification preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				inbox := a.Inbox()
				prefs, err := inbox.Preferences(ctx, actor.ID)
				if err != nil {
					return err
				}
				changed := false
				if cmd.Flags().Changed("deadline-alerts") {
					prefs.ReceiveDeadlineAlerts, changed = deadline, true
				}
				if cmd.Flags().Changed("not-pertinent-alerts") {
					prefs.ReceiveNotPertinentAlerts, changed = notPertinent, true
				}
				if cmd.Flags().Changed("group-by-project") {
					prefs.GroupByProject, changed = group, true
				}
				if changed {
					if err := inbox.SavePreferences(ctx, prefs); err != nil {
						return err
					}
				}
				return printJSONOrTable(prefs)
			})
		},
	}
	cmd.Flags().BoolVar(&deadline, "deadline-alerts", true, "receive deadline alerts")
	cmd.Flags().BoolVar(&notPertinent, "not-pertinent-alerts", true, "receive not-pertinent alerts")
	cmd.Flags().BoolVar(&group, "group-by-project", false, "group the inbox by project")
	return cmd
}

func renderNotifications(items []domain.Notification) {
	tw := newTable(table.Row{"ID", "Type", "Title", "Message", "Read", "At"})
	for _, n := range items {
		tw.AppendRow(table.Row{n.ID, n.Type, n.Title, n.Message, n.Read, shortDate(n.CreatedAt)})
	}
	tw.Render()
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Project activity log"}
	var limit int
	tail := &cobra.Command{
		Use:   "tail <project-id>",
		Short: "Show the newest activity entries of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.Engine.GetProject(ctx, args[0]); err != nil {
					return err
				}
				entries, err := a.Engine.Activity.ByProject(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := newTable(table.Row{"At", "Who", "Action", "Details"})
				for _, e := range entries {
					tw.AppendRow(table.Row{e.Timestamp, e.ActorName, domain.ActionLabel(e.Action), e.Details})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	l.AddCommand(tail)
	return l
}

func statsCmd() *cobra.Command {
	s := &cobra.Command{Use: "stats", Short: "Dashboard figures"}
	s.AddCommand(&cobra.Command{
		Use:   "overview",
		Short: "Counts, budget per service and projects per month",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				o, err := a.Engine.Repo.Overview(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(o)
				}
				tw := newTable(table.Row{"Metric", "Value"})
				tw.AppendRows([]table.Row{
					{"Projects", o.Projects},
					{"Validated projects", o.ValidatedProjects},
					{"Tasks", o.Tasks},
					{"Completion rate", fmt.Sprintf("%d%%", o.CompletionRate)},
					{"Active members", o.ActiveMembers},
					{"Total budget", o.TotalBudget},
				})
				tw.Render()
				if len(o.BudgetPerService) > 0 {
					bs := newTable(table.Row{"Service", "Budget"})
					for _, b := range o.BudgetPerService {
						bs.AppendRow(table.Row{b.ServiceID, b.Budget})
					}
					bs.Render()
				}
				return nil
			})
		},
	})
	var limit int
	top := &cobra.Command{
		Use:   "top",
		Short: "Projects ranked by validated tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.TopProjects(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"Project", "Title", "Tasks", "Progress", "Validated"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ProjectID, p.Title, p.Tasks, fmt.Sprintf("%d%%", p.Progress), p.Validated})
				}
				tw.Render()
				return nil
			})
		},
	}
	top.Flags().IntVar(&limit, "limit", 5, "number of projects")
	s.AddCommand(top)
	return s
}
