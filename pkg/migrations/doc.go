// Package migrations generates SQL migration files for the keypool credentials table.
// It renders the same schema the store packages apply, for PostgreSQL, MySQL/MariaDB
// and SQLite, so deployments that manage migrations with external tooling stay in sync.
package migrations
