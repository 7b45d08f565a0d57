package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"signoff/internal/app"
	"signoff/internal/domain"
	"signoff/internal/engine"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks and votes",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskVoteCmd("validate", "Validate the task as the acting employee", false))
	task.AddCommand(taskVoteCmd("not-pertinent", "Mark the task not pertinent; the project owner is notified", true))
	task.AddCommand(taskVotesCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Add a task to a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				opts.ProjectID = args[0]
				opts.ActorID = actor.ID
				t, err := a.Engine.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (random if omitted)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.FinalDate, "final-date", "", "due date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.DurationDays, "duration", 0, "duration in days")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("final-date")
	return cmd
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List the tasks of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListTasks(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Title", "Due", "State", "Validators", "Not pertinent"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Title, shortDate(t.FinalDate), t.State, len(t.ValidatedBy), len(t.NotPertinentBy)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with its votes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var title, description, finalDate, state string
	var duration int
	var version int64
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				opts := engine.TaskUpdateOptions{
					ID:              args[0],
					Title:           optionalString(cmd, "title", title),
					Description:     optionalString(cmd, "description", description),
					FinalDate:       optionalString(cmd, "final-date", finalDate),
					State:           optionalString(cmd, "state", state),
					ExpectedVersion: version,
					ActorID:         actor.ID,
				}
				if cmd.Flags().Changed("duration") {
					opts.DurationDays = &duration
				}
				t, err := a.Engine.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&finalDate, "final-date", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&state, "state", "", "pending, in_progress, validated or rejected")
	cmd.Flags().IntVar(&duration, "duration", 0, "duration in days")
	cmd.Flags().Int64Var(&version, "expected-version", 0, "fail if the task changed since this version")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				return a.Engine.DeleteTask(ctx, args[0], actor.ID)
			})
		},
	}
}

func taskVoteCmd(use, short string, notPertinent bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				vote := a.Engine.Validate
				if notPertinent {
					vote = a.Engine.MarkNotPertinent
				}
				t, err := vote(ctx, args[0], actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskVotesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "votes <task-id>",
		Short: "List who validated the task and who marked it not pertinent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				validated, notPertinent, err := a.Engine.Votes(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string][]string{
						"validated_by":     nonNil(validated),
						"not_pertinent_by": nonNil(notPertinent),
					})
				}
				fmt.Printf("validated by: %s\n", strings.Join(validated, ", "))
				fmt.Printf("not pertinent: %s\n", strings.Join(notPertinent, ", "))
				return nil
			})
		},
	}
}

func commentCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "comment",
		Short: "Discuss tasks",
	}
	var content, typ string
	add := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Comment on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				cm, err := a.Engine.AddComment(ctx, args[0], actor.ID, content, typ)
				if err != nil {
					return err
				}
				return printJSONOrTable(cm)
			})
		},
	}
	add.Flags().StringVar(&content, "content", "", "comment text")
	add.Flags().StringVar(&typ, "type", domain.CommentInformative, "urgent, daily or informative")
	_ = add.MarkFlagRequired("content")

	list := &cobra.Command{
		Use:   "list <task-id>",
		Short: "List the comments of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListComments(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Author", "Type", "At", "Content"})
				for _, cm := range items {
					tw.AppendRow(table.Row{cm.ID, cm.UserID, cm.Type, shortDate(cm.CreatedAt), cm.Content})
				}
				tw.Render()
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <comment-id>",
		Short: "Delete a comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				return a.Engine.DeleteComment(ctx, args[0], actor.ID)
			})
		},
	}
	c.AddCommand(add, list, del)
	return c
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
