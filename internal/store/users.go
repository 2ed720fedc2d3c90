// ABOUTME: Store methods for user authentication: creation, lookup, OAuth identities.
// ABOUTME: These are global-table operations with no orgID parameter and no RLS.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const userColumns = `id, email, display_name, COALESCE(password_hash, ''), password_hash_version, token_version, created_at, last_login_at`

func scanUser(row rowScanner) (*User, error) {
	var u User
	if err := row.Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash,
		&u.PasswordHashVersion, &u.TokenVersion, &u.CreatedAt, &u.LastLoginAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUserWithProfile inserts a user and its profile in one transaction.
// The profile starts without an organization. Pass an empty passwordHash for
// OAuth-only accounts.
func (s *Store) CreateUserWithProfile(ctx context.Context, email, displayName, passwordHash string, hashVersion int) (*User, error) {
	var u *User
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var hash sql.NullString
		if passwordHash != "" {
			hash = sql.NullString{String: passwordHash, Valid: true}
		}
		var err error
		u, err = scanUser(tx.QueryRowContext(ctx, `
			INSERT INTO users (email, display_name, password_hash, password_hash_version)
			VALUES ($1, $2, $3, $4)
			RETURNING `+userColumns,
			email, displayName, hash, hashVersion))
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO profiles (id, full_name) VALUES ($1, $2)`,
			u.ID, displayName); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetUserByID returns the user with the given ID, or (nil, nil) if not found.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the user with the given email (case-insensitive),
// or (nil, nil) if not found.
// SECURITY: call only from auth flows, never from org-admin endpoints.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// UpdateLastLogin sets last_login_at to now for the given user.
func (s *Store) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces the stored hash without touching
// token_version. Used to upgrade hashes after a successful login.
func (s *Store) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string, version int) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, password_hash_version = $3 WHERE id = $1`,
		id, hash, version); err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}

// IncrementTokenVersion bumps token_version, invalidating every session
// token issued before the call.
func (s *Store) IncrementTokenVersion(ctx context.Context, id uuid.UUID) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx,
		`UPDATE users SET token_version = token_version + 1 WHERE id = $1 RETURNING token_version`,
		id).Scan(&v); err != nil {
		return 0, fmt.Errorf("increment token version: %w", err)
	}
	return v, nil
}

// UpsertUserIdentity creates or updates a user_identities row for the given provider.
func (s *Store) UpsertUserIdentity(ctx context.Context, userID uuid.UUID, provider, providerUserID, email string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO user_identities (user_id, provider, provider_user_id, email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_user_id)
		DO UPDATE SET email = EXCLUDED.email, updated_at = now()`,
		userID, provider, providerUserID, email); err != nil {
		return fmt.Errorf("upsert user identity: %w", err)
	}
	return nil
}

// GetUserByProviderID returns the user linked to the given OAuth provider
// identity, or (nil, nil) if no such identity exists.
func (s *Store) GetUserByProviderID(ctx context.Context, provider, providerUserID string) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.display_name, COALESCE(u.password_hash, ''), u.password_hash_version,
		       u.token_version, u.created_at, u.last_login_at
		FROM users u
		JOIN user_identities i ON i.user_id = u.id
		WHERE i.provider = $1 AND i.provider_user_id = $2`,
		provider, providerUserID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by provider id: %w", err)
	}
	return u, nil
}
