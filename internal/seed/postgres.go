// Package seed provisions synthetic users in the postgres instance backing
// the server under test: the public half of every generated keypair must be
// on file before signed traffic can verify.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/fitbod/fitstress/internal/workout"
)

// Store wraps the provisioning connection.
type Store struct {
	db *sql.DB
}

// Open connects using a postgres URL (typically DATABASE_URL).
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateTables creates the users table if missing.
func (s *Store) CreateTables(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS users (
			user_id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			key BYTEA NOT NULL,
			created TIMESTAMPTZ NOT NULL
		)`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

// InsertUsers inserts every user in one transaction. A partial insert rolls
// back so re-running setup-users never leaves half a universe registered.
func (s *Store) InsertUsers(ctx context.Context, users []workout.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert users: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO users (user_id, email, key, created) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("prepare insert users: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, u := range users {
		if _, err := stmt.ExecContext(ctx, u.UserID, u.Email, []byte(u.Key), u.Created); err != nil {
			return fmt.Errorf("insert user %s: %w", u.Email, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert users: %w", err)
	}
	return nil
}
