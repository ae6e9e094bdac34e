package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/tmercier/keepsake/pkg/auth"
)

// PostgresStore persists auth records and users in PostgreSQL, the backend
// of choice when multiple instances share session state.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to PostgreSQL with the given URL and pool size,
// creating tables as needed.
func OpenPostgres(url string, maxConns int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns / 2)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.ensureTables(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an existing database handle, creating tables as
// needed.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	store := &PostgresStore{db: db}
	if err := store.ensureTables(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) ensureTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS auth_tokens (
		id UUID PRIMARY KEY,
		credential VARCHAR(255) NOT NULL UNIQUE,
		random_password_hash VARCHAR(255) NOT NULL,
		expiration_date TIMESTAMP WITH TIME ZONE NOT NULL,
		is_expired BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	);
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(255) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to ensure storage tables: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health checks.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// GetToken returns the record for the credential, or (nil, nil) when none
// exists.
func (s *PostgresStore) GetToken(ctx context.Context, credential string) (*auth.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, credential, random_password_hash, expiration_date, is_expired, created_at, updated_at
		FROM auth_tokens WHERE credential = $1`, credential)
	return scanRecord(row)
}

// SaveToken creates or replaces the record for its credential.
func (s *PostgresStore) SaveToken(ctx context.Context, record *auth.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_tokens (id, credential, random_password_hash, expiration_date, is_expired, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (credential) DO UPDATE SET
			id = EXCLUDED.id,
			random_password_hash = EXCLUDED.random_password_hash,
			expiration_date = EXCLUDED.expiration_date,
			is_expired = EXCLUDED.is_expired,
			updated_at = EXCLUDED.updated_at`,
		record.ID, record.Credential, record.RandomPasswordHash,
		record.ExpirationDate, record.IsExpired, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save auth token: %w", err)
	}
	return nil
}

// UpdateToken updates the stored record matching the given record's ID in a
// single statement, so concurrent resumes for the same credential settle on
// last-write-wins without a read-modify-write window in the store itself.
func (s *PostgresStore) UpdateToken(ctx context.Context, record *auth.Record) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE auth_tokens
		SET random_password_hash = $1, expiration_date = $2, is_expired = $3, updated_at = $4
		WHERE id = $5`,
		record.RandomPasswordHash, record.ExpirationDate, record.IsExpired,
		record.UpdatedAt, record.ID)
	if err != nil {
		return fmt.Errorf("failed to update auth token: %w", err)
	}
	return nil
}

// DeleteToken removes the record with the given ID.
func (s *PostgresStore) DeleteToken(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete auth token: %w", err)
	}
	return nil
}

// PurgeExpired drops records that are expired and were last touched before
// the cutoff.
func (s *PostgresStore) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM auth_tokens
		WHERE (is_expired = TRUE OR expiration_date < NOW()) AND updated_at < $1`,
		olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge auth tokens: %w", err)
	}
	return res.RowsAffected()
}

// GetUser resolves a user by a whitelisted field. Returns (nil, nil) when
// no user matches.
func (s *PostgresStore) GetUser(ctx context.Context, field, value string) (auth.User, error) {
	column, ok := userFields[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", auth.ErrUnknownField, field)
	}
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, username, email, password_hash, created_at
		FROM users WHERE %s = $1`, column), value)

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
func (s *PostgresStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	now := time.Now()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, username, email, passwordHash, now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &User{
		ID:             id,
		Username:       username,
		Email:          email,
		HashedPassword: passwordHash,
		CreatedAt:      now,
	}, nil
}
