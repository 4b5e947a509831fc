package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/getpup/keypool-orchestrator"
	"github.com/getpup/keypool-orchestrator/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()

	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	_, err = db.Exec(MigrationUp(DefaultTableConfig()))
	require.NoError(t, err)

	return New(db), db
}

func TestStore_InsertAndList(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, cred := range []keypool.Credential{
		{ID: "k2", OwnerID: "owner-1", Provider: "gemini", Secret: "s2"},
		{ID: "k1", OwnerID: "owner-1", Provider: "gemini", Secret: "s1", Status: keypool.StatusFailed},
		{ID: "k3", OwnerID: "owner-1", Provider: "openai", Secret: "s3"},
		{ID: "k4", OwnerID: "owner-2", Provider: "gemini", Secret: "s4"},
	} {
		_, err := s.InsertCredential(ctx, cred)
		require.NoError(t, err)
	}

	creds, err := s.ListByOwnerAndProvider(ctx, "owner-1", "gemini")
	require.NoError(t, err)
	require.Len(t, creds, 2)

	assert.Equal(t, "k1", creds[0].ID)
	assert.Equal(t, keypool.StatusFailed, creds[0].Status)
	assert.Equal(t, "k2", creds[1].ID)
	assert.Equal(t, keypool.StatusActive, creds[1].Status)
	assert.Equal(t, "s2", creds[1].Secret)
	assert.Nil(t, creds[1].LastUsed)
	assert.Nil(t, creds[1].LastFailed)
	assert.False(t, creds[1].CreatedAt.IsZero())
}

func TestStore_ListEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	creds, err := s.ListByOwnerAndProvider(context.Background(), "nobody", "gemini")

	require.NoError(t, err)
	assert.NotNil(t, creds)
	assert.Empty(t, creds)
}

func TestStore_InsertGeneratesID(t *testing.T) {
	s, _ := newTestStore(t)

	cred, err := s.InsertCredential(context.Background(), keypool.Credential{OwnerID: "o", Provider: "p", Secret: "x"})

	require.NoError(t, err)
	assert.NotEmpty(t, cred.ID)
	assert.Equal(t, keypool.StatusActive, cred.Status)
}

func TestStore_UpdateStatus(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertCredential(ctx, keypool.Credential{ID: "k1", OwnerID: "o", Provider: "p", Secret: "x", FailureCount: 1})
	require.NoError(t, err)

	failedAt := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	count := 2
	err = s.UpdateStatus(ctx, "k1", store.StatusUpdate{
		Status:       keypool.StatusRateLimited,
		LastFailed:   &failedAt,
		FailureCount: &count,
	})
	require.NoError(t, err)

	creds, err := s.ListByOwnerAndProvider(ctx, "o", "p")
	require.NoError(t, err)
	require.Len(t, creds, 1)

	cred := creds[0]
	assert.Equal(t, keypool.StatusRateLimited, cred.Status)
	require.NotNil(t, cred.LastFailed)
	assert.True(t, failedAt.Equal(*cred.LastFailed), "last_failed should round-trip, got %v", *cred.LastFailed)
	assert.Nil(t, cred.LastUsed, "unset fields are left unchanged")
	assert.Equal(t, 2, cred.FailureCount)
}

func TestStore_UpdateStatusUnchangedRow(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertCredential(ctx, keypool.Credential{ID: "k1", OwnerID: "o", Provider: "p", Secret: "x"})
	require.NoError(t, err)

	err = s.UpdateStatus(ctx, "k1", store.StatusUpdate{Status: keypool.StatusActive})

	assert.NoError(t, err)
}

func TestStore_UpdateStatusNotFound(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.UpdateStatus(context.Background(), "missing", store.StatusUpdate{Status: keypool.StatusFailed})

	assert.ErrorIs(t, err, store.ErrCredentialNotFound)
}

func TestStore_UpdateStatusInvalid(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.UpdateStatus(context.Background(), "k1", store.StatusUpdate{Status: "paused"})

	assert.ErrorIs(t, err, store.ErrInvalidStatus)
}

func TestStore_RejectsUnknownStatusColumnValue(t *testing.T) {
	_, db := newTestStore(t)

	_, err := db.Exec(`INSERT INTO keypool_credentials (id, owner_id, provider, secret, status) VALUES ('k9', 'o', 'p', 'x', 'paused')`)

	assert.Error(t, err, "status check constraint should reject unknown statuses")
}

func TestMigrations(t *testing.T) {
	t.Run("MigrationUp creates table and indexes", func(t *testing.T) {
		sql := MigrationUp(DefaultTableConfig())

		assert.Contains(t, sql, "CREATE TABLE keypool_credentials")
		assert.Contains(t, sql, "CREATE INDEX idx_keypool_credentials_owner_provider")
		assert.Contains(t, sql, "CREATE INDEX idx_keypool_credentials_status")
	})

	t.Run("MigrationDown drops table", func(t *testing.T) {
		sql := MigrationDown(TableConfig{CredentialsTable: "custom_keys"})

		assert.Contains(t, sql, "DROP TABLE IF EXISTS custom_keys")
	})

	t.Run("migrations apply and revert", func(t *testing.T) {
		db, err := Open(":memory:")
		require.NoError(t, err)
		defer db.Close()

		config := TableConfig{CredentialsTable: "custom_keys"}
		_, err = db.Exec(MigrationUp(config))
		require.NoError(t, err)

		_, err = db.Exec(MigrationDown(config))
		require.NoError(t, err)

		_, err = db.Exec(MigrationUp(config))
		require.NoError(t, err, "table should be re-creatable after MigrationDown")
	})
}

func TestOpen_BusyTimeoutParameter(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{":memory:", ":memory:?_busy_timeout=5000"},
		{"keys.db", "keys.db?_busy_timeout=5000"},
		{"file:keys.db?mode=rwc", "file:keys.db?mode=rwc&_busy_timeout=5000"},
		{"file:keys.db?_busy_timeout=100", "file:keys.db?_busy_timeout=100"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, dsn(tt.path))
		})
	}
}

func TestOpen_PathWithQueryParameters(t *testing.T) {
	path := "file:" + filepath.Join(t.TempDir(), "keys.db") + "?mode=rwc&_journal_mode=WAL"

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(MigrationUp(DefaultTableConfig()))
	require.NoError(t, err)

	var timeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	s := New(db)
	_, err = s.InsertCredential(context.Background(), keypool.Credential{ID: "k1", OwnerID: "owner-1", Provider: "gemini", Secret: "s1"})
	require.NoError(t, err)

	creds, err := s.ListByOwnerAndProvider(context.Background(), "owner-1", "gemini")
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "k1", creds[0].ID)
}

func TestStoreInitialization(t *testing.T) {
	t.Run("New uses default table name", func(t *testing.T) {
		s := New(nil)
		assert.Equal(t, "keypool_credentials", s.Table())
	})

	t.Run("empty table name falls back to default", func(t *testing.T) {
		s := NewWithConfig(nil, TableConfig{})
		assert.Equal(t, "keypool_credentials", s.Table())
	})
}
