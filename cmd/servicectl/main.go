package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/serviceline/serviceline/cmd/servicectl/cli"
	"github.com/serviceline/serviceline/internal/advisors"
	"github.com/serviceline/serviceline/internal/app"
	"github.com/serviceline/serviceline/internal/platform/db"
	"github.com/serviceline/serviceline/internal/records"
	"github.com/serviceline/serviceline/internal/shared"
	"github.com/serviceline/serviceline/internal/users"
	"github.com/serviceline/serviceline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping servicectl")
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := 0
	root := newRootCmd(&code)
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
	os.Exit(code)
}

// env holds the lazily opened dependencies shared by subcommands.
type env struct {
	cfg    *app.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
}

func (e *env) open(ctx context.Context) error {
	if e.pool != nil {
		return nil
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	e.cfg, e.pool = cfg, pool
	e.logger = app.NewLogger(cfg)
	return nil
}

func (e *env) close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

func newRootCmd(exitCode *int) *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "servicectl",
		Short:         "Operate the service performance dashboard backend",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}
	root.AddCommand(
		newMigrateCmd(e),
		newAdvisorsCmd(e, exitCode),
		newRematchCmd(),
		newJobsCmd(),
		newUsersCmd(e, exitCode),
	)
	return root
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			applied, err := db.Migrate(cmd.Context(), e.pool)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date.")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}

func newAdvisorsCmd(e *env, exitCode *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advisors",
		Short: "Advisor maintenance",
	}
	var opts cli.BackfillOptions
	backfill := &cobra.Command{
		Use:   "backfill",
		Short: "Link uploaded rows to service advisor accounts by name",
		Long: `Match advisor names on rows without an advisor id against the service
advisor accounts of the same showroom.

Names are compared ignoring case, first for equality and then as a substring
in either direction. Names matching several accounts are reported and left
unassigned.`,
		Example: `
  # Preview every showroom
  servicectl advisors backfill

  # Apply for one showroom without prompting
  servicectl advisors backfill --showroom 3 --apply --yes
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			svc := advisors.NewService(
				records.NewRepository(e.pool),
				users.NewService(users.NewRepository(e.pool)),
				advisors.NewRepository(e.pool),
				nil,
				shared.NewAuditLogger(e.pool),
				e.logger,
			)
			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()
			opts.Stdin = cmd.InOrStdin()
			*exitCode = cli.NewAdvisorsCLI(svc).BackfillCommand(cmd.Context(), opts)
			return nil
		},
	}
	backfill.Flags().Int64Var(&opts.ShowroomID, "showroom", 0, "Limit to one showroom id (default all)")
	backfill.Flags().BoolVar(&opts.Apply, "apply", false, "Write advisor ids instead of previewing")
	backfill.Flags().BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")
	backfill.Flags().BoolVar(&opts.JSONOutput, "json", false, "Print the report as JSON")
	cmd.AddCommand(backfill)
	return cmd
}

func newRematchCmd() *cobra.Command {
	var opts cli.TriggerOptions
	cmd := &cobra.Command{
		Use:   "rematch",
		Short: "Queue a booking to billing rematch for a showroom city",
		RunE: func(cmd *cobra.Command, args []string) error {
			return trigger(cmd, jobs.TaskRematch, opts)
		},
	}
	cmd.Flags().Int64Var(&opts.ShowroomID, "showroom", 0, "Showroom id")
	cmd.Flags().StringVar(&opts.City, "city", "", "City")
	_ = cmd.MarkFlagRequired("showroom")
	_ = cmd.MarkFlagRequired("city")
	return cmd
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}
	var opts cli.TriggerOptions
	triggerCmd := &cobra.Command{
		Use:       "trigger <task>",
		Short:     "Enqueue a job by task type",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskProcessUpload, jobs.TaskRematch, jobs.TaskAdvisorBackfill},
		RunE: func(cmd *cobra.Command, args []string) error {
			return trigger(cmd, args[0], opts)
		},
	}
	triggerCmd.Flags().StringVar(&opts.UploadID, "upload", "", "Upload id for uploads:process")
	triggerCmd.Flags().Int64Var(&opts.ShowroomID, "showroom", 0, "Showroom id for records:rematch")
	triggerCmd.Flags().StringVar(&opts.City, "city", "", "City for records:rematch")
	triggerCmd.Flags().BoolVar(&opts.Apply, "apply", false, "Apply assignments for advisors:backfill")

	var scheduled int
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := jobsClient()
			if err != nil {
				return err
			}
			defer c.Close()
			stats, err := c.InspectQueues(cmd.Context())
			if err != nil {
				return err
			}
			out := map[string]any{"queues": stats}
			if scheduled > 0 {
				tasks, err := c.ListScheduled(cmd.Context(), scheduled)
				if err != nil {
					return err
				}
				names := make([]string, 0, len(tasks))
				for _, t := range tasks {
					names = append(names, fmt.Sprintf("%s %s at %s", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04")))
				}
				out["scheduled"] = names
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	statsCmd.Flags().IntVar(&scheduled, "scheduled", 0, "Also list up to N scheduled tasks")

	cmd.AddCommand(triggerCmd, statsCmd)
	return cmd
}

func newUsersCmd(e *env, exitCode *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Account administration",
	}
	var opts cli.SeedOptions
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Create a showroom if needed and add an account to it",
		Example: `
  servicectl users seed --showroom PUN01 --city Pune --email gm@example.com \
    --name "Asha Rao" --password 'change-me-now' --roles "Owner | GM"
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			repo := users.NewRepository(e.pool)
			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()
			*exitCode = cli.NewUsersCLI(users.NewService(repo), repo).SeedCommand(cmd.Context(), opts)
			return nil
		},
	}
	seed.Flags().StringVar(&opts.ShowroomCode, "showroom", "", "Showroom code")
	seed.Flags().StringVar(&opts.ShowroomName, "showroom-name", "", "Showroom display name (defaults to the code)")
	seed.Flags().StringVar(&opts.City, "city", "", "Home city of the account")
	seed.Flags().StringVar(&opts.Email, "email", "", "Login email")
	seed.Flags().StringVar(&opts.Name, "name", "", "Display name")
	seed.Flags().StringVar(&opts.Password, "password", "", "Initial password")
	seed.Flags().StringVar(&opts.Roles, "roles", "", `Roles, e.g. "owner,general_manager" or "Owner | GM"`)
	cmd.AddCommand(seed)
	return cmd
}

func jobsClient() (*cli.JobsCLI, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cli.NewJobsCLI(cfg.RedisAddr)
}

func trigger(cmd *cobra.Command, name string, opts cli.TriggerOptions) error {
	c, err := jobsClient()
	if err != nil {
		return err
	}
	defer c.Close()
	info, err := c.Trigger(cmd.Context(), name, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	return nil
}
