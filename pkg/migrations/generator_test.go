package migrations

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func generateAndRead(t *testing.T, generate func(*Config) error, table string) string {
	t.Helper()

	tmpDir := t.TempDir()
	config := Config{
		OutputFolder:     tmpDir,
		OutputFilename:   "test_migration.sql",
		CredentialsTable: table,
	}

	if err := generate(&config); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read generated file: %v", err)
	}
	return string(content)
}

func TestGeneratePostgres(t *testing.T) {
	sql := generateAndRead(t, GeneratePostgres, "api_keys")

	required := []string{
		"-- Database: PostgreSQL",
		"CREATE TABLE api_keys",
		"id TEXT PRIMARY KEY",
		"last_used TIMESTAMPTZ NULL",
		"last_failed TIMESTAMPTZ NULL",
		"failure_count INTEGER NOT NULL DEFAULT 0",
		"CHECK (status IN ('active', 'rate_limited', 'failed'))",
		"CREATE INDEX idx_api_keys_owner_provider ON api_keys(owner_id, provider)",
		"CREATE INDEX idx_api_keys_status ON api_keys(status)",
		"-- Rollback:",
		"-- DROP TABLE IF EXISTS api_keys;",
	}
	for _, s := range required {
		if !strings.Contains(sql, s) {
			t.Errorf("migration missing required string: %s", s)
		}
	}
}

func TestGenerateMySQL(t *testing.T) {
	sql := generateAndRead(t, GenerateMySQL, "keypool_credentials")

	required := []string{
		"-- Database: MySQL/MariaDB",
		"CREATE TABLE keypool_credentials",
		"last_used DATETIME(6) NULL",
		"INDEX idx_keypool_credentials_owner_provider (owner_id, provider)",
		"ENGINE=InnoDB",
		"-- DROP TABLE IF EXISTS keypool_credentials;",
	}
	for _, s := range required {
		if !strings.Contains(sql, s) {
			t.Errorf("migration missing required string: %s", s)
		}
	}
}

func TestGenerateSQLite(t *testing.T) {
	sql := generateAndRead(t, GenerateSQLite, "keypool_credentials")

	required := []string{
		"-- Database: SQLite",
		"CREATE TABLE keypool_credentials",
		"last_used TIMESTAMP NULL",
		"CREATE INDEX idx_keypool_credentials_status ON keypool_credentials(status)",
	}
	for _, s := range required {
		if !strings.Contains(sql, s) {
			t.Errorf("migration missing required string: %s", s)
		}
	}
}

func TestGenerate_RollbackIsCommentedOut(t *testing.T) {
	sql := generateAndRead(t, GeneratePostgres, "keypool_credentials")

	for _, line := range strings.Split(sql, "\n") {
		if strings.HasPrefix(line, "DROP") {
			t.Errorf("rollback statement must be commented out: %s", line)
		}
	}
}

func TestGenerate_Dispatch(t *testing.T) {
	for _, adapter := range Adapters {
		t.Run(adapter, func(t *testing.T) {
			config := Config{OutputFolder: t.TempDir(), OutputFilename: "m.sql", CredentialsTable: "creds"}
			if err := Generate(adapter, &config); err != nil {
				t.Fatalf("Generate(%s) failed: %v", adapter, err)
			}
		})
	}

	config := DefaultConfig()
	config.OutputFolder = t.TempDir()
	if err := Generate("oracle", &config); err == nil {
		t.Error("expected error for unsupported adapter")
	}
}

func TestGenerate_CreatesOutputFolder(t *testing.T) {
	config := Config{
		OutputFolder:     filepath.Join(t.TempDir(), "nested", "migrations"),
		OutputFilename:   "init.sql",
		CredentialsTable: "keypool_credentials",
	}

	if err := GenerateSQLite(&config); err != nil {
		t.Fatalf("GenerateSQLite failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(config.OutputFolder, config.OutputFilename)); err != nil {
		t.Errorf("migration file not created: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.OutputFolder != "migrations" {
		t.Errorf("Expected OutputFolder 'migrations', got '%s'", config.OutputFolder)
	}
	if config.CredentialsTable != "keypool_credentials" {
		t.Errorf("Expected CredentialsTable 'keypool_credentials', got '%s'", config.CredentialsTable)
	}
	if !strings.HasSuffix(config.OutputFilename, "_init_keypool_credentials.sql") {
		t.Errorf("Unexpected OutputFilename '%s'", config.OutputFilename)
	}
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "credentials", false},
		{"valid with underscore", "api_keys", false},
		{"valid with numbers", "keys2", false},
		{"empty", "", true},
		{"starts with number", "2keys", true},
		{"contains dash", "api-keys", true},
		{"contains dot", "public.keys", true},
		{"sql injection", "keys; DROP TABLE users--", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateIdentifier(tt.input, "CredentialsTable")
			if (err != nil) != tt.wantErr {
				t.Errorf("validateIdentifier(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestGenerate_RejectsUnsafeTable(t *testing.T) {
	config := Config{OutputFolder: t.TempDir(), OutputFilename: "m.sql", CredentialsTable: "x; DROP TABLE y"}

	if err := GeneratePostgres(&config); err == nil {
		t.Fatal("expected error for unsafe table name")
	}
}
