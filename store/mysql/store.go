// Package mysql provides a MySQL-backed CredentialStore.
package mysql

import (
	"database/sql"
	"time"

	"github.com/getpup/keypool-orchestrator/store"
	"github.com/getpup/keypool-orchestrator/store/sqlstore"
	driver "github.com/go-sql-driver/mysql"
)

// Dialect is the MySQL dialect.
var Dialect = sqlstore.Dialect{
	Name:        "mysql",
	Placeholder: sqlstore.Question,
}

// Store is a MySQL implementation of CredentialStore.
type Store struct {
	*sqlstore.Store
}

// Compile-time checks.
var (
	_ store.CredentialStore  = (*Store)(nil)
	_ store.CredentialWriter = (*Store)(nil)
)

// New creates a new MySQL store with the default table name.
func New(db *sql.DB) *Store {
	return NewWithConfig(db, DefaultTableConfig())
}

// NewWithConfig creates a new MySQL store with a custom table name.
func NewWithConfig(db *sql.DB, config TableConfig) *Store {
	if config.CredentialsTable == "" {
		config.CredentialsTable = DefaultTableConfig().CredentialsTable
	}
	return &Store{
		Store: sqlstore.New(db, config.CredentialsTable, Dialect),
	}
}

// Open opens a MySQL connection from a DSN.
// parseTime is forced on so timestamp columns scan into time.Time, and times are read as UTC.
func Open(dsn string) (*sql.DB, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := driver.NewConnector(cfg)
	if err != nil {
		return nil, err
	}

	return sql.OpenDB(connector), nil
}
