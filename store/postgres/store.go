// Package postgres provides a PostgreSQL-backed CredentialStore.
package postgres

import (
	"database/sql"

	"github.com/getpup/keypool-orchestrator/store"
	"github.com/getpup/keypool-orchestrator/store/sqlstore"
)

// Dialect is the PostgreSQL dialect.
var Dialect = sqlstore.Dialect{
	Name:        "postgres",
	Placeholder: sqlstore.Dollar,
}

// Store is a PostgreSQL implementation of CredentialStore.
// Open the *sql.DB with the "postgres" driver from github.com/lib/pq.
type Store struct {
	*sqlstore.Store
}

// Compile-time checks.
var (
	_ store.CredentialStore  = (*Store)(nil)
	_ store.CredentialWriter = (*Store)(nil)
)

// New creates a new PostgreSQL store with the default table name.
func New(db *sql.DB) *Store {
	return NewWithConfig(db, DefaultTableConfig())
}

// NewWithConfig creates a new PostgreSQL store with a custom table name.
func NewWithConfig(db *sql.DB, config TableConfig) *Store {
	if config.CredentialsTable == "" {
		config.CredentialsTable = DefaultTableConfig().CredentialsTable
	}
	return &Store{
		Store: sqlstore.New(db, config.CredentialsTable, Dialect),
	}
}
