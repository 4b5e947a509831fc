// Package sqlite provides a SQLite-backed CredentialStore for single-node deployments and tests.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/getpup/keypool-orchestrator/store"
	"github.com/getpup/keypool-orchestrator/store/sqlstore"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect is the SQLite dialect.
var Dialect = sqlstore.Dialect{
	Name:        "sqlite3",
	Placeholder: sqlstore.Question,
}

// Store is a SQLite implementation of CredentialStore.
type Store struct {
	*sqlstore.Store
}

// Compile-time checks.
var (
	_ store.CredentialStore  = (*Store)(nil)
	_ store.CredentialWriter = (*Store)(nil)
)

// New creates a new SQLite store with the default table name.
func New(db *sql.DB) *Store {
	return NewWithConfig(db, DefaultTableConfig())
}

// NewWithConfig creates a new SQLite store with a custom table name.
func NewWithConfig(db *sql.DB, config TableConfig) *Store {
	if config.CredentialsTable == "" {
		config.CredentialsTable = DefaultTableConfig().CredentialsTable
	}
	return &Store{
		Store: sqlstore.New(db, config.CredentialsTable, Dialect),
	}
}

// Open opens a SQLite database at path. Use ":memory:" for a private in-memory database.
// The pool is limited to one connection since SQLite serializes writers anyway
// and each in-memory connection would otherwise see its own database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// dsn adds a busy timeout to path unless it already carries one.
func dsn(path string) string {
	if strings.Contains(path, "_busy_timeout=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000"
}
