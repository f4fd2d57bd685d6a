// Command adauditctl runs administrative tasks against the adaudit database.
package main

import (
	"fmt"
	"os"

	"github.com/justsurfingit/adaudit/internal/config"
	"github.com/justsurfingit/adaudit/internal/database"
	"github.com/justsurfingit/adaudit/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand needs; it is filled by the root PersistentPreRunE.
type app struct {
	configFile string
	logLevel   string

	cfg *config.Config
	log *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "adauditctl",
		Short:        "Administrative commands for the adaudit API",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "Path to an adaudit.yaml configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(newMigrateCommand(a), newUserCommand(a), newReapCommand(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// connect opens the database and brings the schema up to date.
func (a *app) connect() (*gorm.DB, error) {
	db, err := database.Connect(a.cfg.Database.Driver, a.cfg.Database.DSN, a.log)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return db, nil
}
