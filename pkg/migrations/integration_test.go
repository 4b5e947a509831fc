//go:build integration

package migrations_test

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/getpup/keypool-orchestrator/pkg/migrations"
)

// NOTE: Integration tests use string interpolation for SQL queries with validated
// configuration values. This is acceptable in test code as all config values are
// controlled by the test and have been validated by the migrations package.
// Production code should always use parameterized queries.

func generate(t *testing.T, generate func(*migrations.Config) error, table string) string {
	t.Helper()

	tmpDir := t.TempDir()
	config := migrations.Config{
		OutputFolder:     tmpDir,
		OutputFilename:   "test_migration.sql",
		CredentialsTable: table,
	}

	if err := generate(&config); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join(tmpDir, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	return string(migrationSQL)
}

// exerciseTable inserts a credential and moves it through every status.
func exerciseTable(t *testing.T, db *sql.DB, table, placeholders string) {
	t.Helper()

	_, err := db.Exec(fmt.Sprintf("INSERT INTO %s (id, owner_id, provider, secret) VALUES %s", table, placeholders),
		"cred-1", "owner-1", "gemini", "sk-test")
	if err != nil {
		t.Fatalf("Failed to insert credential: %v", err)
	}

	var status string
	var failureCount int
	err = db.QueryRow(fmt.Sprintf("SELECT status, failure_count FROM %s WHERE id = 'cred-1'", table)).Scan(&status, &failureCount)
	if err != nil {
		t.Fatalf("Failed to read credential: %v", err)
	}
	if status != "active" || failureCount != 0 {
		t.Errorf("Defaults not applied: status=%s, failure_count=%d", status, failureCount)
	}

	for _, s := range []string{"rate_limited", "failed", "active"} {
		if _, err := db.Exec(fmt.Sprintf("UPDATE %s SET status = '%s' WHERE id = 'cred-1'", table, s)); err != nil {
			t.Errorf("Failed to set status %s: %v", s, err)
		}
	}
}

func TestIntegrationPostgres(t *testing.T) {
	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping PostgreSQL integration test")
	}

	table := "migrations_it_credentials"
	migrationSQL := generate(t, migrations.GeneratePostgres, table)

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	_, _ = db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("Failed to execute migration: %v", err)
	}
	defer func() {
		if _, err := db.Exec(fmt.Sprintf("DROP TABLE %s", table)); err != nil {
			t.Logf("Warning: Failed to clean up table: %v", err)
		}
	}()

	exerciseTable(t, db, table, "($1, $2, $3, $4)")

	_, err = db.Exec(fmt.Sprintf("UPDATE %s SET status = 'disabled' WHERE id = 'cred-1'", table))
	if err == nil {
		t.Error("Expected status check constraint to reject unknown status")
	}
}

func TestIntegrationMySQL(t *testing.T) {
	dbURL := os.Getenv("MYSQL_URL")
	if dbURL == "" {
		t.Skip("MYSQL_URL not set, skipping MySQL integration test")
	}

	table := "migrations_it_credentials"
	migrationSQL := generate(t, migrations.GenerateMySQL, table)

	db, err := sql.Open("mysql", dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to MySQL: %v", err)
	}
	defer db.Close()

	_, _ = db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("Failed to execute migration: %v", err)
	}
	defer func() {
		if _, err := db.Exec(fmt.Sprintf("DROP TABLE %s", table)); err != nil {
			t.Logf("Warning: Failed to clean up table: %v", err)
		}
	}()

	exerciseTable(t, db, table, "(?, ?, ?, ?)")
}

func TestIntegrationSQLite(t *testing.T) {
	table := "keypool_credentials"
	migrationSQL := generate(t, migrations.GenerateSQLite, table)

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "keypool.db"))
	if err != nil {
		t.Fatalf("Failed to open SQLite: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("Failed to execute migration: %v", err)
	}

	exerciseTable(t, db, table, "(?, ?, ?, ?)")

	_, err = db.Exec(fmt.Sprintf("UPDATE %s SET status = 'disabled' WHERE id = 'cred-1'", table))
	if err == nil {
		t.Error("Expected status check constraint to reject unknown status")
	}
}
