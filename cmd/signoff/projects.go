package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"signoff/internal/app"
	"signoff/internal/domain"
	"signoff/internal/engine"
	"signoff/internal/repo"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
		Long:  "Projects own tasks. A supervisor validates a project once every task has at least one validator; revoking is always possible.",
	}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectGateCmd())
	prj.AddCommand(projectValidateCmd(true))
	prj.AddCommand(projectValidateCmd(false))
	prj.AddCommand(projectAttachCmd())
	prj.AddCommand(projectAttachmentCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project owned by the acting employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				opts.ActorID = actor.ID
				p, err := a.Engine.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (random if omitted)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.ServiceID, "service", "", "service id (defaults to the owner's)")
	cmd.Flags().Float64Var(&opts.Budget, "budget", 0, "budget")
	cmd.Flags().IntVar(&opts.DurationDays, "duration", 0, "duration in days")
	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("duration")
	_ = cmd.MarkFlagRequired("deadline")
	return cmd
}

func projectListCmd() *cobra.Command {
	var owner, service, validated string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := repo.ProjectFilters{OwnerID: owner, ServiceID: service}
			if validated != "" {
				v, err := strconv.ParseBool(validated)
				if err != nil {
					return fmt.Errorf("--validated must be true or false")
				}
				f.Validated = &v
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Title", "Owner", "Budget", "Deadline", "Validated"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.OwnerID, p.Budget, shortDate(p.Deadline), p.ValidatedBySupervisor})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id filter")
	cmd.Flags().StringVar(&service, "service", "", "service filter")
	cmd.Flags().StringVar(&validated, "validated", "", "true or false")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project with its gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				gate, err := a.Engine.GateStatus(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"project": p, "gate": gate})
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var title, description, service, deadline string
	var budget float64
	var duration int
	var version int64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				opts := engine.ProjectUpdateOptions{
					ID:              args[0],
					Title:           optionalString(cmd, "title", title),
					Description:     optionalString(cmd, "description", description),
					ServiceID:       optionalString(cmd, "service", service),
					Deadline:        optionalString(cmd, "deadline", deadline),
					ExpectedVersion: version,
					ActorID:         actor.ID,
				}
				if cmd.Flags().Changed("budget") {
					opts.Budget = &budget
				}
				if cmd.Flags().Changed("duration") {
					opts.DurationDays = &duration
				}
				p, err := a.Engine.UpdateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&service, "service", "", "service id")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget")
	cmd.Flags().IntVar(&duration, "duration", 0, "duration in days")
	cmd.Flags().Int64Var(&version, "expected-version", 0, "fail if the project changed since this version")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project with its tasks and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				return a.Engine.DeleteProject(ctx, args[0], actor.ID)
			})
		},
	}
}

func projectGateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gate <id>",
		Short: "Show whether the project can be validated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				gate, err := a.Engine.GateStatus(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(gate)
				}
				fmt.Printf("%d/%d tasks validated, can validate: %t, validated: %t\n",
					gate.ReadyTasks, gate.TotalTasks, gate.CanValidate, gate.ValidatedBySupervisor)
				if len(gate.PendingTasks) > 0 {
					fmt.Printf("waiting on: %s\n", strings.Join(gate.PendingTasks, ", "))
				}
				return nil
			})
		},
	}
}

func projectValidateCmd(desired bool) *cobra.Command {
	use, short := "validate <id>", "Validate the project as supervisor"
	if !desired {
		use, short = "revoke <id>", "Withdraw the supervisor validation"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				p, err := a.Engine.SetSupervisorValidation(ctx, args[0], desired, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectAttachCmd() *cobra.Command {
	var mimeType string
	cmd := &cobra.Command{
		Use:   "attach <id> <file>",
		Short: "Upload the project specification, replacing the previous one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				att, err := a.Engine.UploadAttachment(ctx, args[0], actor.ID, baseName(args[1]), mimeType, content)
				if err != nil {
					return err
				}
				att.Content = nil
				return printJSONOrTable(att)
			})
		},
	}
	cmd.Flags().StringVar(&mimeType, "mime-type", "", "mime type (sniffed if omitted)")
	return cmd
}

func projectAttachmentCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "attachment <id>",
		Short: "Download the project specification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				att, err := a.Engine.GetAttachment(ctx, args[0])
				if err != nil {
					return err
				}
				if out == "" {
					out = att.FileName
				}
				if err := os.WriteFile(out, att.Content, 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s (%d bytes, %s)\n", out, att.Size, att.MimeType)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "destination file (defaults to the stored name)")
	return cmd
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
