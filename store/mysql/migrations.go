package mysql

import "fmt"

// TableConfig configures the table name used for credentials.
type TableConfig struct {
	// CredentialsTable is the name of the table storing credentials and their health.
	CredentialsTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		CredentialsTable: "keypool_credentials",
	}
}

// MigrationUp returns the SQL to create the credentials table.
// Indexes are declared inline so the migration is a single statement and
// does not require multiStatements on the connection.
func MigrationUp(config TableConfig) string {
	return fmt.Sprintf(`CREATE TABLE %s (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    owner_id VARCHAR(255) NOT NULL,
    provider VARCHAR(64) NOT NULL,
    secret TEXT NOT NULL,
    status VARCHAR(32) NOT NULL DEFAULT 'active',
    last_used DATETIME(6) NULL,
    last_failed DATETIME(6) NULL,
    failure_count INT NOT NULL DEFAULT 0,
    created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
    INDEX idx_%s_owner_provider (owner_id, provider),
    INDEX idx_%s_status (status)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`, config.CredentialsTable, config.CredentialsTable, config.CredentialsTable)
}

// MigrationDown returns the SQL to drop the credentials table.
func MigrationDown(config TableConfig) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;\n", config.CredentialsTable)
}
