package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"signoff/internal/app"
	"signoff/internal/domain"
	"signoff/internal/engine"
	"signoff/internal/engine/auth"
	"signoff/internal/repo"
)

func employeeCmd() *cobra.Command {
	emp := &cobra.Command{
		Use:     "employee",
		Aliases: []string{"emp"},
		Short:   "Manage employees",
	}
	emp.AddCommand(employeeRegisterCmd())
	emp.AddCommand(employeeListCmd())
	emp.AddCommand(employeeUpdateCmd())
	emp.AddCommand(employeeDeactivateCmd())
	emp.AddCommand(employeeResetPasswordCmd())
	emp.AddCommand(employeeWhoamiCmd())
	emp.AddCommand(employeeLoginCmd())
	return emp
}

func employeeRegisterCmd() *cobra.Command {
	var opts engine.RegisterOptions
	var self bool
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an employee",
		Long:  "Supervisors register anyone. With --self a member account is created without an acting employee.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if self {
				return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
					emp, err := a.Engine.RegisterEmployee(ctx, opts)
					if err != nil {
						return err
					}
					return printJSONOrTable(emp)
				})
			}
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				opts.ActorID = actor.ID
				emp, err := a.Engine.RegisterEmployee(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(emp)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "employee id (random if omitted)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "full name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email, used to log in")
	cmd.Flags().StringVar(&opts.Password, "password", "", "initial password")
	cmd.Flags().StringVar(&opts.Role, "role", domain.RoleMember, "member or supervisor")
	cmd.Flags().StringVar(&opts.ServiceID, "service", "", "service (department) id")
	cmd.Flags().BoolVar(&self, "self", false, "self-register as a member")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func employeeListCmd() *cobra.Command {
	var f repo.EmployeeFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List employees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListEmployees(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Name", "Email", "Role", "Service", "Active"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.Name, e.Email, e.Role, e.ServiceID, e.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ServiceID, "service", "", "service filter")
	cmd.Flags().StringVar(&f.Role, "role", "", "role filter")
	cmd.Flags().BoolVar(&f.ActiveOnly, "active", false, "active employees only")
	return cmd
}

func employeeUpdateCmd() *cobra.Command {
	var name, role, service string
	var active bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an employee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				opts := engine.EmployeeUpdateOptions{
					ID:        args[0],
					Name:      optionalString(cmd, "name", name),
					Role:      optionalString(cmd, "role", role),
					ServiceID: optionalString(cmd, "service", service),
					ActorID:   actor.ID,
				}
				if cmd.Flags().Changed("active") {
					opts.Active = &active
				}
				emp, err := a.Engine.UpdateEmployee(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(emp)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&role, "role", "", "member or supervisor")
	cmd.Flags().StringVar(&service, "service", "", "service id")
	cmd.Flags().BoolVar(&active, "active", true, "active flag")
	return cmd
}

func employeeDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate an employee; votes and history are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				emp, err := a.Engine.DeactivateEmployee(ctx, args[0], actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(emp)
			})
		},
	}
}

func employeeResetPasswordCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "reset-password <id>",
		Short: "Set a new password and clear any lockout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				if err := a.Engine.ResetPassword(ctx, args[0], password, actor.ID); err != nil {
					return err
				}
				fmt.Println("password updated")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func employeeWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the acting employee and its capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Employee) error {
				return printJSONOrTable(map[string]any{
					"employee":     actor,
					"capabilities": auth.Capabilities(actor, nil),
				})
			})
		},
	}
}

func employeeLoginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check credentials against the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				emp, err := a.Engine.Login(ctx, email, password)
				if err != nil {
					return err
				}
				return printJSONOrTable(emp)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
