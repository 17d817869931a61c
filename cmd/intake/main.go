package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/app"
	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
	"github.com/spec-kit/helpdesk-intake/internal/service"
	"github.com/spec-kit/helpdesk-intake/internal/worker"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:          "intake",
	Short:        "Helpdesk intake operations",
	Long:         "Runs mailbox ingestion, the inactivity sweep and administrative tasks against the helpdesk database.",
	Version:      version,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process unread mailbox messages once",
	RunE:  runIngestion,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close and escalate inactive tickets once",
	RunE:  runSweep,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run ingestion and the sweep on their cron schedules until interrupted",
	RunE:  runSchedule,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Closure reports",
}

var reportExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export daily closure counts to an .xlsx workbook",
	RunE:  runReportExport,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every ticket and its history",
	RunE:  runReset,
}

var staffCmd = &cobra.Command{
	Use:   "staff",
	Short: "Staff accounts",
}

var staffAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a specialist or program officer",
	RunE:  runStaffAdd,
}

var departmentsCmd = &cobra.Command{
	Use:   "departments",
	Short: "Load the department reference table",
	RunE:  runDepartmentsSync,
}

var (
	fromFlag string
	toFlag   string
	outFlag  string
	yesFlag  bool

	usernameFlag   string
	emailFlag      string
	passwordFlag   string
	firstNameFlag  string
	lastNameFlag   string
	roleFlag       string
	departmentFlag string
)

func init() {
	reportExportCmd.Flags().StringVar(&fromFlag, "from", "", "First day, YYYY-MM-DD (required)")
	reportExportCmd.Flags().StringVar(&toFlag, "to", "", "Last day, YYYY-MM-DD (required)")
	reportExportCmd.Flags().StringVar(&outFlag, "out", "", "Output path (default closures_<from>_<to>.xlsx)")
	_ = reportExportCmd.MarkFlagRequired("from")
	_ = reportExportCmd.MarkFlagRequired("to")
	reportCmd.AddCommand(reportExportCmd)

	resetCmd.Flags().BoolVar(&yesFlag, "yes", false, "Confirm deletion")

	staffAddCmd.Flags().StringVar(&usernameFlag, "username", "", "Username (required)")
	staffAddCmd.Flags().StringVar(&emailFlag, "email", "", "Email (required)")
	staffAddCmd.Flags().StringVar(&passwordFlag, "password", "", "Initial password (required)")
	staffAddCmd.Flags().StringVar(&firstNameFlag, "first-name", "", "First name")
	staffAddCmd.Flags().StringVar(&lastNameFlag, "last-name", "", "Last name")
	staffAddCmd.Flags().StringVar(&roleFlag, "role", string(domain.RoleSpecialist), "specialist or program_officer")
	staffAddCmd.Flags().StringVar(&departmentFlag, "department", "", "Department, required for specialists")
	_ = staffAddCmd.MarkFlagRequired("username")
	_ = staffAddCmd.MarkFlagRequired("email")
	_ = staffAddCmd.MarkFlagRequired("password")
	staffCmd.AddCommand(staffAddCmd)

	rootCmd.AddCommand(runCmd, sweepCmd, scheduleCmd, reportCmd, resetCmd, staffCmd, departmentsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp loads config, builds the application and hands it to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Staff.SyncDepartments(ctx); err != nil {
		return fmt.Errorf("sync departments: %w", err)
	}
	return fn(ctx, a)
}

func runIngestion(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		worker.StartNotificationWorker(a.Notifications)
		report, err := a.Ingestion.Run(ctx)
		if err != nil {
			return err
		}
		if report.Skipped {
			fmt.Fprintln(cmd.OutOrStdout(), "another ingestion run is in progress")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "fetched %d, created %d, duplicates %d, spam %d, bounces %d, failed %d\n",
			report.Fetched, report.Created, report.Duplicates, report.Spam, report.Bounces, report.Failed)
		return nil
	})
}

func runSweep(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		worker.StartNotificationWorker(a.Notifications)
		report, err := a.Lifecycle.Sweep(ctx, a.Config.Sweep)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "closed %d, escalated %d, failed %d\n", report.Closed, report.Escalated, report.Failed)
		return nil
	})
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		worker.StartNotificationWorker(a.Notifications)
		scheduler := worker.NewScheduler(a.Logger.Named("scheduler"))
		if err := worker.RegisterDefaultJobs(ctx, scheduler, *a.Config, a.Ingestion, a.Lifecycle); err != nil {
			return err
		}
		scheduler.Start()
		a.Logger.Info("scheduler running")
		<-ctx.Done()
		scheduler.Stop()
		return nil
	})
}

func runReportExport(cmd *cobra.Command, _ []string) error {
	from, err := time.Parse("2006-01-02", fromFlag)
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	to, err := time.Parse("2006-01-02", toFlag)
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}
	out := outFlag
	if out == "" {
		out = fmt.Sprintf("closures_%s_%s.xlsx", fromFlag, toFlag)
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		rows, err := a.Reports.ExportXLSX(ctx, from, to, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", rows, out)
		return nil
	})
}

func runReset(cmd *cobra.Command, _ []string) error {
	if !yesFlag {
		return fmt.Errorf("refusing to delete tickets without --yes")
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		n, err := a.Tickets.Reset(ctx)
		if err != nil {
			return err
		}
		a.Logger.Warn("tickets reset", zap.Int64("deleted", n))
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d tickets\n", n)
		return nil
	})
}

func runStaffAdd(cmd *cobra.Command, _ []string) error {
	input := service.StaffCreateInput{
		Username:  usernameFlag,
		FirstName: firstNameFlag,
		LastName:  lastNameFlag,
		Email:     emailFlag,
		Password:  passwordFlag,
		Role:      domain.Role(roleFlag),
	}
	if departmentFlag != "" {
		dept, ok := domain.ParseDepartment(departmentFlag)
		if !ok {
			return fmt.Errorf("unknown department %q", departmentFlag)
		}
		input.Department = &dept
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		user, err := a.Staff.CreateStaff(ctx, nil, input)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", user.Role, user.Username, user.ID)
		return nil
	})
}

func runDepartmentsSync(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		departments, err := a.Staff.ListDepartments(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d departments loaded\n", len(departments))
		return nil
	})
}
