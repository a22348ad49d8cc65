package cmd

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goaide/internal/config"
	"github.com/nextlevelbuilder/goaide/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *migrate.Migrate) error {
					if err := m.Up(); err != nil {
						if errors.Is(err, migrate.ErrNoChange) {
							fmt.Println("Schema is up to date.")
							return nil
						}
						return err
					}
					fmt.Println("Migrations applied.")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *migrate.Migrate) error {
					if err := m.Steps(-1); err != nil {
						if errors.Is(err, migrate.ErrNoChange) {
							fmt.Println("Nothing to roll back.")
							return nil
						}
						return err
					}
					fmt.Println("Rolled back one migration.")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *migrate.Migrate) error {
					version, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						fmt.Println("Schema version: none (no migrations applied)")
						return nil
					}
					if err != nil {
						return err
					}
					fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)
					return nil
				})
			},
		},
	)
	return cmd
}

// withMigrator builds a migrator over the embedded SQL files and
// guarantees it is closed after fn runs.
func withMigrator(fn func(*migrate.Migrate) error) error {
	dsn, err := resolveDSN()
	if err != nil {
		return err
	}
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()
	return fn(m)
}

func resolveDSN() (string, error) {
	// The DSN is a secret: env only, never config.json. config.Load
	// copies GOAIDE_POSTGRES_DSN into cfg.Storage.PostgresDSN.
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	dsn := cfg.Storage.PostgresDSN
	if dsn == "" {
		return "", fmt.Errorf("GOAIDE_POSTGRES_DSN environment variable is not set")
	}
	return dsn, nil
}
