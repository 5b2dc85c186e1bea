package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"snd-backend/internal/assignment"
	"snd-backend/internal/config"
	"snd-backend/internal/database"
	"snd-backend/internal/equipment"
	"snd-backend/internal/erpnext"
	"snd-backend/internal/logging"
	"snd-backend/internal/rbac"
	"snd-backend/internal/server"
	"snd-backend/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

var rootCmd = &cobra.Command{
	Use:           "snd-backend",
	Short:         "HR, equipment and rental backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()
		logger.Info("migration finished")
		return nil
	},
}

var seedRBACCmd = &cobra.Command{
	Use:   "seed-rbac",
	Short: "Create the default roles and permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()
		if err := rbac.Seed(database.DB, rbac.DefaultMatrix()); err != nil {
			return err
		}
		logger.Info("roles and permissions seeded")
		return nil
	},
}

var reconcileEmployee uint

var reconcileCmd = &cobra.Command{
	Use:   "reconcile-assignments",
	Short: "Repair assignment statuses and end dates",
	Long: `Walks each employee's assignments in start-date order. The latest one
stays active and every earlier one is completed the day before its successor
starts. Running it twice changes nothing the second time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if reconcileEmployee != 0 {
			changes, err := assignment.ReconcileEmployee(database.DB, reconcileEmployee)
			if err != nil {
				return err
			}
			for _, ch := range changes {
				logger.Info("assignment updated",
					zap.Uint("assignment_id", ch.AssignmentID),
					zap.String("name", ch.Name),
					zap.String("from", string(ch.FromStatus)),
					zap.String("to", string(ch.ToStatus)))
			}
			logger.Info("reconcile finished", zap.Uint("employee_id", reconcileEmployee), zap.Int("changed", len(changes)))
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		summary, err := assignment.ReconcileAll(ctx, database.DB)
		if err != nil {
			return err
		}
		logger.Info("reconcile finished",
			zap.Int("employees", summary.Employees),
			zap.Int("changed", summary.Changed),
			zap.Int("failed", summary.Failed))
		if summary.Failed > 0 {
			return fmt.Errorf("%d employees could not be reconciled", summary.Failed)
		}
		return nil
	},
}

var checkEquipmentCmd = &cobra.Command{
	Use:   "check-equipment-status",
	Short: "Repair equipment statuses that disagree with maintenance and deployments",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		report, err := equipment.CheckStatuses(cmd.Context(), database.DB, nil)
		if err != nil {
			return err
		}
		for _, is := range report.Issues {
			logger.Info("equipment status fixed", zap.Any("issue", is))
		}
		logger.Info("equipment check finished", zap.Int("checked", report.Checked), zap.Int("fixed", report.Fixed))
		return nil
	},
}

func init() {
	reconcileCmd.Flags().UintVar(&reconcileEmployee, "employee", 0, "only reconcile this employee id")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedRBACCmd, reconcileCmd, checkEquipmentCmd)
}

// bootstrap loads config, installs the logger and connects the database.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	if err := database.Init(cfg, logging.GormLogger(logger)); err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := rbac.Seed(database.DB, rbac.DefaultMatrix()); err != nil {
		return fmt.Errorf("seed rbac: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("object storage: %w", err)
	}
	erp := erpnext.New(cfg.ERPNext)
	if !cfg.ERPNext.Enabled() {
		logger.Warn("ERPNext is not configured, customer sync and invoicing are disabled")
	}

	monitor := &equipment.Monitor{DB: database.DB, Interval: cfg.EquipmentMonitorInterval}
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor.Run(ctx)
	}()

	app := server.New(server.Deps{Config: cfg, Logger: logger, Store: store, ERP: erp})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("port", cfg.HTTPPort))
		listenErr <- app.Listen(":" + cfg.HTTPPort)
	}()

	select {
	case err = <-listenErr:
		stop()
	case <-ctx.Done():
		logger.Info("shutting down")
		if serr := app.ShutdownWithTimeout(shutdownTimeout); serr != nil {
			logger.Error("shutdown", zap.Error(serr))
		}
		err = <-listenErr
	}
	<-monitorDone
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
