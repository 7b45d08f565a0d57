package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"signoff/internal/app"
	"signoff/internal/config"
	"signoff/internal/db"
	"signoff/internal/domain"
	"signoff/internal/engine"
	"signoff/internal/migrate"
)

var rootCmd = &cobra.Command{
	Use:   "signoff",
	Short: "Signoff CLI",
	Long: `Signoff tracks projects whose tasks must be validated by the team before a supervisor signs the project off.
Core concepts:
- Workspace: a directory holding signoff.yml and the .signoff database.
- Employees: members and supervisors. Every command runs as an employee (--actor or SIGNOFF_ACTOR).
- Projects: owned by the employee who created them, with a budget, a duration and a deadline.
- Tasks: belong to a project. Any employee may validate a task or mark it not pertinent; the two are exclusive per employee.
- Gate: a supervisor can validate a project only once it has tasks and each of them has at least one validator.
- Notifications: deadline alerts for tasks due within the configured window, plus not-pertinent alerts for project owners.
- Activity log: per-project diary, newest first, view with 'signoff log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SIGNOFF")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "acting employee id or email (defaults to the only supervisor)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(employeeCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var opts engine.RegisterOptions
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create signoff.yml and the database, optionally with a first supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", path)
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			if err := migrate.MigrateContext(cmd.Context(), conn); err != nil {
				conn.Close()
				return err
			}
			conn.Close()
			if opts.Email == "" {
				return nil
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts.Role = domain.RoleSupervisor
				emp, err := a.Engine.RegisterEmployee(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(emp)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "supervisor-name", "", "name of the first supervisor")
	cmd.Flags().StringVar(&opts.Email, "supervisor-email", "", "email of the first supervisor")
	cmd.Flags().StringVar(&opts.Password, "supervisor-password", "", "password of the first supervisor")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect signoff.yml"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			c.Server.JWTSecret = redact(c.Server.JWTSecret)
			for i := range c.Webhooks {
				c.Webhooks[i].Secret = redact(c.Webhooks[i].Secret)
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate signoff.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.FromFile(config.Path(viper.GetString("workspace"))); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cfg
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// withActor is withApp plus the resolved acting employee.
func withActor(ctx context.Context, fn func(context.Context, *app.App, domain.Employee) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		emp, err := app.ResolveActor(ctx, a.Engine.Repo, viper.GetString("actor"))
		if err != nil {
			return err
		}
		return fn(ctx, a, emp)
	})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func shortDate(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
