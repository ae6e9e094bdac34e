package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tmercier/keepsake/pkg/auth"
)

// SQLiteStore persists auth records and users in a SQLite database. It is
// the default durable backend for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and initializes) a SQLite database at the given path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	store := &SQLiteStore{db: db}
	if err := store.ensureTables(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an existing database handle, creating tables as
// needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	store := &SQLiteStore{db: db}
	if err := store.ensureTables(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) ensureTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS auth_tokens (
		id TEXT PRIMARY KEY,
		credential TEXT NOT NULL UNIQUE,
		random_password_hash TEXT NOT NULL,
		expiration_date TIMESTAMP NOT NULL,
		is_expired BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to ensure storage tables: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// GetToken returns the record for the credential, or (nil, nil) when none
// exists.
func (s *SQLiteStore) GetToken(ctx context.Context, credential string) (*auth.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, credential, random_password_hash, expiration_date, is_expired, created_at, updated_at
		FROM auth_tokens WHERE credential = ?`, credential)
	return scanRecord(row)
}

// SaveToken creates or replaces the record for its credential.
func (s *SQLiteStore) SaveToken(ctx context.Context, record *auth.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_tokens (id, credential, random_password_hash, expiration_date, is_expired, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(credential) DO UPDATE SET
			id = excluded.id,
			random_password_hash = excluded.random_password_hash,
			expiration_date = excluded.expiration_date,
			is_expired = excluded.is_expired,
			updated_at = excluded.updated_at`,
		record.ID, record.Credential, record.RandomPasswordHash,
		record.ExpirationDate, record.IsExpired, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save auth token: %w", err)
	}
	return nil
}

// UpdateToken updates the stored record matching the given record's ID.
func (s *SQLiteStore) UpdateToken(ctx context.Context, record *auth.Record) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE auth_tokens
		SET random_password_hash = ?, expiration_date = ?, is_expired = ?, updated_at = ?
		WHERE id = ?`,
		record.RandomPasswordHash, record.ExpirationDate, record.IsExpired,
		record.UpdatedAt, record.ID)
	if err != nil {
		return fmt.Errorf("failed to update auth token: %w", err)
	}
	return nil
}

// DeleteToken removes the record with the given ID.
func (s *SQLiteStore) DeleteToken(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete auth token: %w", err)
	}
	return nil
}

// PurgeExpired drops records that are expired and were last touched before
// the cutoff. Live records are never purged.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM auth_tokens
		WHERE (is_expired = 1 OR expiration_date < ?) AND updated_at < ?`,
		time.Now(), olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge auth tokens: %w", err)
	}
	return res.RowsAffected()
}

// GetUser resolves a user by a whitelisted field. Returns (nil, nil) when
// no user matches.
func (s *SQLiteStore) GetUser(ctx context.Context, field, value string) (auth.User, error) {
	column, ok := userFields[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", auth.ErrUnknownField, field)
	}
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, username, email, password_hash, created_at
		FROM users WHERE %s = ?`, column), value)

	var user User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.HashedPassword, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a user and returns it with its assigned ID.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)`, username, email, passwordHash, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &User{
		ID:             id,
		Username:       username,
		Email:          email,
		HashedPassword: passwordHash,
		CreatedAt:      now,
	}, nil
}

// scanRecord reads one auth record from a row, mapping sql.ErrNoRows to
// (nil, nil).
func scanRecord(row *sql.Row) (*auth.Record, error) {
	var record auth.Record
	err := row.Scan(&record.ID, &record.Credential, &record.RandomPasswordHash,
		&record.ExpirationDate, &record.IsExpired, &record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan auth token: %w", err)
	}
	return &record, nil
}
