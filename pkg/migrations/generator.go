package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/getpup/keypool-orchestrator/store/mysql"
	"github.com/getpup/keypool-orchestrator/store/postgres"
	"github.com/getpup/keypool-orchestrator/store/sqlite"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// validateIdentifier ensures an identifier contains only safe characters for SQL.
// Returns an error if the identifier contains characters that could be used for SQL injection.
func validateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// Config configures migration generation for the credentials table.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// CredentialsTable is the name of the credentials table
	CredentialsTable string
}

// DefaultConfig returns the default configuration for credential migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:     "migrations",
		OutputFilename:   fmt.Sprintf("%s_init_keypool_credentials.sql", timestamp),
		CredentialsTable: postgres.DefaultTableConfig().CredentialsTable,
	}
}

// Adapters lists the supported database adapters.
var Adapters = []string{"postgres", "mysql", "sqlite"}

// Generate writes the migration for adapter ("postgres", "mysql" or "sqlite").
func Generate(adapter string, config *Config) error {
	switch adapter {
	case "postgres":
		return GeneratePostgres(config)
	case "mysql":
		return GenerateMySQL(config)
	case "sqlite":
		return GenerateSQLite(config)
	default:
		return fmt.Errorf("unsupported adapter %q (supported: %s)", adapter, strings.Join(Adapters, ", "))
	}
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	tc := postgres.TableConfig{CredentialsTable: config.CredentialsTable}
	return write(config, "PostgreSQL", postgres.MigrationUp(tc), postgres.MigrationDown(tc))
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	tc := mysql.TableConfig{CredentialsTable: config.CredentialsTable}
	return write(config, "MySQL/MariaDB", mysql.MigrationUp(tc), mysql.MigrationDown(tc))
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	tc := sqlite.TableConfig{CredentialsTable: config.CredentialsTable}
	return write(config, "SQLite", sqlite.MigrationUp(tc), sqlite.MigrationDown(tc))
}

func write(config *Config, database, up, down string) error {
	// Validate configuration to prevent SQL injection
	if err := validateIdentifier(config.CredentialsTable, "CredentialsTable"); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if config.OutputFilename == "" {
		return fmt.Errorf("invalid configuration: OutputFilename cannot be empty")
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(render(database, up, down)), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

// render lays out a migration file. The rollback is included commented out.
func render(database, up, down string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "-- Keypool Credentials Migration\n")
	fmt.Fprintf(&b, "-- Generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "-- Database: %s\n\n", database)
	b.WriteString(strings.TrimRight(up, "\n"))
	b.WriteString("\n\n-- Rollback:\n")
	for _, line := range strings.Split(strings.TrimRight(down, "\n"), "\n") {
		if strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString("-- " + line + "\n")
	}

	return b.String()
}
