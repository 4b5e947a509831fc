package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getpup/keypool-orchestrator/config"
	"github.com/getpup/keypool-orchestrator/store/mysql"
	"github.com/getpup/keypool-orchestrator/store/postgres"
	"github.com/getpup/keypool-orchestrator/store/sqlite"
)

var migratePrint bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the credentials table in the configured database",
	Long: `Create the credentials table and its indexes in the configured database.

Use --print to write the SQL to stdout instead of executing it. For migration
files managed by external tooling, see cmd/migrate-gen.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migratePrint, "print", false, "print the migration instead of applying it")
}

// migrationFor returns the schema for driver.
func migrationFor(driver, table string) (string, error) {
	switch driver {
	case config.DriverSQLite:
		return sqlite.MigrationUp(sqlite.TableConfig{CredentialsTable: table}), nil
	case config.DriverPostgres:
		return postgres.MigrationUp(postgres.TableConfig{CredentialsTable: table}), nil
	case config.DriverMySQL:
		return mysql.MigrationUp(mysql.TableConfig{CredentialsTable: table}), nil
	default:
		return "", fmt.Errorf("driver %q has no schema to migrate", driver)
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	driver := app.Config.Database.Driver
	table := app.table()

	sql, err := migrationFor(driver, table)
	if err != nil {
		return err
	}

	if migratePrint {
		fmt.Fprint(cmd.OutOrStdout(), sql)
		return nil
	}

	if _, err := app.db.ExecContext(cmd.Context(), sql); err != nil {
		return fmt.Errorf("failed to execute migrations: %w", err)
	}

	app.Logger.Info(cmd.Context(), "migrations applied", "driver", driver, "table", table)
	return nil
}
