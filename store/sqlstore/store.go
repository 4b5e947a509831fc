// Package sqlstore implements CredentialStore on database/sql.
// The dialect packages (postgres, mysql, sqlite) bind it to a driver's placeholder style
// and provide the matching migrations.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/getpup/keypool-orchestrator"
	"github.com/getpup/keypool-orchestrator/store"
	"github.com/google/uuid"
)

// Dialect describes the SQL differences between supported databases.
type Dialect struct {
	// Name identifies the dialect in error messages.
	Name string

	// Placeholder renders the n-th (1-indexed) bind parameter.
	Placeholder func(n int) string
}

// Dollar is the PostgreSQL placeholder style ($1, $2, ...).
func Dollar(n int) string {
	return fmt.Sprintf("$%d", n)
}

// Question is the MySQL and SQLite placeholder style (?).
func Question(int) string {
	return "?"
}

// Store is a database/sql implementation of CredentialStore.
type Store struct {
	db      *sql.DB
	table   string
	dialect Dialect
}

// Compile-time checks.
var (
	_ store.CredentialStore  = (*Store)(nil)
	_ store.CredentialWriter = (*Store)(nil)
)

// New creates a Store over db using the given table and dialect.
func New(db *sql.DB, table string, dialect Dialect) *Store {
	return &Store{
		db:      db,
		table:   table,
		dialect: dialect,
	}
}

// Table returns the credentials table name.
func (s *Store) Table() string {
	return s.table
}

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

const columns = "id, owner_id, provider, secret, status, last_used, last_failed, failure_count, created_at"

// ListByOwnerAndProvider returns every credential of the owner for the provider, ordered by ID.
// Returns an empty slice if none exist.
func (s *Store) ListByOwnerAndProvider(ctx context.Context, ownerID, provider string) (creds []keypool.Credential, err error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE owner_id = %s AND provider = %s
		ORDER BY id
	`, columns, s.table, s.dialect.Placeholder(1), s.dialect.Placeholder(2))

	rows, err := s.db.QueryContext(ctx, query, ownerID, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close rows: %w", closeErr)
		}
	}()

	creds = make([]keypool.Credential, 0)
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credentials: %w", err)
	}

	return creds, nil
}

// UpdateStatus applies a status update to a credential.
// Returns store.ErrCredentialNotFound if the credential does not exist.
func (s *Store) UpdateStatus(ctx context.Context, id string, update store.StatusUpdate) error {
	if !update.Status.Valid() {
		return store.ErrInvalidStatus
	}

	query, args := s.updateQuery(id, update)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update credential status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// MySQL reports zero affected rows when nothing changed, so confirm the row is missing.
		exists, err := s.exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return store.ErrCredentialNotFound
		}
	}

	return nil
}

func (s *Store) updateQuery(id string, update store.StatusUpdate) (string, []interface{}) {
	sets := []string{"status = " + s.dialect.Placeholder(1)}
	args := []interface{}{string(update.Status)}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = %s", column, s.dialect.Placeholder(len(args))))
	}

	if update.LastUsed != nil {
		add("last_used", update.LastUsed.UTC())
	}
	if update.LastFailed != nil {
		add("last_failed", update.LastFailed.UTC())
	}
	if update.FailureCount != nil {
		add("failure_count", *update.FailureCount)
	}

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s
		WHERE id = %s
	`, s.table, strings.Join(sets, ", "), s.dialect.Placeholder(len(args)))

	return query, args
}

func (s *Store) exists(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE id = %s`, s.table, s.dialect.Placeholder(1))

	var one int
	err := s.db.QueryRowContext(ctx, query, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check credential: %w", err)
	}

	return true, nil
}

// InsertCredential stores a new credential.
// An empty ID is replaced by a new UUID and an empty status by StatusActive.
func (s *Store) InsertCredential(ctx context.Context, cred keypool.Credential) (keypool.Credential, error) {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	if cred.Status == "" {
		cred.Status = keypool.StatusActive
	}
	if !cred.Status.Valid() {
		return keypool.Credential{}, store.ErrInvalidStatus
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}

	placeholders := make([]string, 9)
	for i := range placeholders {
		placeholders[i] = s.dialect.Placeholder(i + 1)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (%s)
	`, s.table, columns, strings.Join(placeholders, ", "))

	_, err := s.db.ExecContext(ctx, query,
		cred.ID,
		cred.OwnerID,
		cred.Provider,
		cred.Secret,
		string(cred.Status),
		nullTime(cred.LastUsed),
		nullTime(cred.LastFailed),
		cred.FailureCount,
		cred.CreatedAt,
	)
	if err != nil {
		return keypool.Credential{}, fmt.Errorf("failed to insert credential: %w", err)
	}

	return cred, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCredential(row scanner) (keypool.Credential, error) {
	var (
		cred       keypool.Credential
		status     string
		lastUsed   sql.NullTime
		lastFailed sql.NullTime
	)

	err := row.Scan(
		&cred.ID,
		&cred.OwnerID,
		&cred.Provider,
		&cred.Secret,
		&status,
		&lastUsed,
		&lastFailed,
		&cred.FailureCount,
		&cred.CreatedAt,
	)
	if err != nil {
		return keypool.Credential{}, fmt.Errorf("failed to scan credential: %w", err)
	}

	cred.Status = keypool.Status(status)
	if lastUsed.Valid {
		t := lastUsed.Time
		cred.LastUsed = &t
	}
	if lastFailed.Valid {
		t := lastFailed.Time
		cred.LastFailed = &t
	}

	return cred, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
