package sqlite

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

// MigrationUp returns the SQL to create the credentials table and its indexes.
func MigrationUp(config TableConfig) string {
	return fmt.Sprintf(`-- Create %s table
CREATE TABLE %s (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    secret TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'rate_limited', 'failed')),
    last_used TIMESTAMP NULL,
    last_failed TIMESTAMP NULL,
    failure_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Index for loading an owner's pool for one provider
CREATE INDEX idx_%s_owner_provider ON %s(owner_id, provider);

-- Index for status inventory
CREATE INDEX idx_%s_status ON %s(status);
`, config.CredentialsTable, config.CredentialsTable,
		config.CredentialsTable, config.CredentialsTable,
		config.CredentialsTable, config.CredentialsTable)
}

// MigrationDown returns the SQL to drop the credentials table.
func MigrationDown(config TableConfig) string {
	return fmt.Sprintf(`-- Drop %s table
DROP TABLE IF EXISTS %s;
`, config.CredentialsTable, config.CredentialsTable)
}
