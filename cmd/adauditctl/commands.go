package main

import (
	"fmt"

	"github.com/justsurfingit/adaudit/internal/database"
	"github.com/justsurfingit/adaudit/internal/services"
	"github.com/spf13/cobra"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.Open(a.cfg.Database.Driver, a.cfg.Database.DSN, a.log)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func newUserCommand(a *app) *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage dashboard users",
	}

	var email, name, password, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a dashboard user",
		Long: "Create a dashboard user. Leave --password empty for an account that can only " +
			"sign in with Google.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.connect()
			if err != nil {
				return err
			}
			svc := services.NewAuthService(db, a.log, a.cfg.Auth.SessionTTL, nil)
			created, err := svc.CreateUser(email, name, password, role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s (id %d)\n", created.Role, created.Email, created.ID)
			return nil
		},
	}
	create.Flags().StringVar(&email, "email", "", "Email address (required)")
	create.Flags().StringVar(&name, "name", "", "Display name")
	create.Flags().StringVar(&password, "password", "", "Password, at least 8 characters")
	create.Flags().StringVar(&role, "role", services.RoleViewer, "admin, reviewer or viewer")
	_ = create.MarkFlagRequired("email")

	user.AddCommand(create)
	return user
}

func newReapCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Fail timed-out modifications, expire abandoned ingest runs and purge old sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.connect()
			if err != nil {
				return err
			}
			svc := services.NewMaintenanceService(
				services.NewModificationService(db, a.log),
				services.NewIngestService(db, a.log),
				services.NewAuthService(db, a.log, a.cfg.Auth.SessionTTL, nil),
				a.log,
			)
			svc.ProcessingTimeout = a.cfg.Workflow.ProcessingTimeout
			svc.RunTTL = a.cfg.Ingest.RunTTL

			report, err := svc.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reaped %d modifications, expired %d runs, purged %d sessions\n",
				report.Reaped, report.ExpiredRuns, report.PurgedSessions)
			return nil
		},
	}
}
