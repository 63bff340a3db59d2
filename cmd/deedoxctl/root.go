package main

import (
	"context"
	"fmt"

	"github.com/deedox/platform/internal/config"
	"github.com/deedox/platform/internal/models"
	"github.com/deedox/platform/internal/services"
	"github.com/deedox/platform/internal/utils"
	"github.com/deedox/platform/pkg/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// env is what every subcommand works with. The change feed has no
// subscribers here; a running server picks writes up on its next reload.
type env struct {
	cfg  *config.Config
	db   *gorm.DB
	feed *services.ChangeFeed
}

func (e *env) credentials() (*services.CredentialService, error) {
	box, err := utils.NewSecretBox(e.cfg.Credential.Secret)
	if err != nil {
		return nil, err
	}
	return services.NewCredentialService(e.db, box, e.cfg.AI.APIKey), nil
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
		e          = &env{}
	)

	root := &cobra.Command{
		Use:           "deedoxctl",
		Short:         "Administer a Deedox installation",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := "warn"
			if verbose {
				level = "debug"
			}
			logger.Init(level)

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := models.Open(&cfg.Database, verbose)
			if err != nil {
				return err
			}
			e.cfg, e.db, e.feed = cfg, db, services.NewChangeFeed()
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if e.db == nil {
				return nil
			}
			sqlDB, err := e.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log SQL and debug output")

	root.AddCommand(
		newMigrateCmd(e),
		newSeedCmd(e),
		newCredentialCmd(e),
		newModelsCmd(e),
		newSettingsCmd(e),
		newProbeCmd(e),
	)
	return root
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := models.Migrate(e.db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func newSeedCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert default models, settings and the admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := models.Migrate(e.db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := models.SeedDefaultData(e.db); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			auth := services.NewAuthService(e.db, e.cfg, e.feed, nil)
			if err := auth.CreateAdminIfNotExists(context.Background(), e.cfg.Admin.Email, e.cfg.Admin.Password); err != nil {
				return fmt.Errorf("seed admin: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded defaults, admin %s\n", e.cfg.Admin.Email)
			return nil
		},
	}
}
