// ABOUTME: Store methods for profiles: organization lookup, role lookup, and team membership.
// ABOUTME: ProfileRoleFields never returns an error; failures are reported through access.RoleLookup.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sqlc-dev/pqtype"

	"github.com/patroncollective/patron/internal/access"
)

// Postgres error codes the store classifies.
const (
	pgUniqueViolation = "23505"
	pgUndefinedColumn = "42703"
	pgUndefinedTable  = "42P01"
)

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	return pgErrCode(err) == pgUniqueViolation
}

// ProfileOrganization returns the organization of userID. ok is false when
// the profile does not exist or has no organization yet.
func (s *Store) ProfileOrganization(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool, error) {
	var orgID uuid.NullUUID
	err := s.db.QueryRowContext(ctx,
		`SELECT organization_id FROM profiles WHERE id = $1`, userID).Scan(&orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("get profile organization: %w", err)
	}
	if !orgID.Valid {
		return uuid.Nil, false, nil
	}
	return orgID.UUID, true, nil
}

// ProfileRoleFields reads role, is_superadmin and permissions for userID.
// A database that has not been migrated to the role columns yet yields a
// failed lookup wrapping access.ErrRoleColumnsMissing; a missing row is
// Absent.
func (s *Store) ProfileRoleFields(ctx context.Context, userID uuid.UUID) access.RoleLookup {
	var (
		role  sql.NullString
		super sql.NullBool
		perms pqtype.NullRawMessage
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT role, is_superadmin, permissions FROM profiles WHERE id = $1`,
		userID).Scan(&role, &super, &perms)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Absent()
	}
	if err != nil {
		switch pgErrCode(err) {
		case pgUndefinedColumn, pgUndefinedTable:
			return access.Failed(fmt.Errorf("%w: %v", access.ErrRoleColumnsMissing, err))
		default:
			return access.Failed(fmt.Errorf("get profile role: %w", err))
		}
	}

	var f access.RoleFields
	if role.Valid {
		f.Role = &role.String
	}
	if super.Valid {
		f.IsSuperadmin = &super.Bool
	}
	if perms.Valid {
		f.Permissions = access.ParsePermissionsJSON(perms.RawMessage)
	}
	return access.Present(f)
}

const profileColumns = `p.id, p.organization_id, u.email, p.full_name, p.timezone, p.reminder_time, p.invited_by, p.created_at`

func scanProfile(row rowScanner, extra ...any) (*Profile, error) {
	var p Profile
	dest := append([]any{
		&p.ID, &p.OrganizationID, &p.Email, &p.FullName,
		&p.Timezone, &p.ReminderTime, &p.InvitedBy, &p.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfile returns the profile of userID, or (nil, nil) if not found.
func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles p JOIN users u ON u.id = p.id WHERE p.id = $1`,
		userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// UpdateProfile updates the caller's own display and reminder settings.
func (s *Store) UpdateProfile(ctx context.Context, userID uuid.UUID, in ProfileInput) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET full_name = $2, timezone = $3, reminder_time = $4, updated_at = now()
		WHERE id = $1`,
		userID, in.FullName, in.Timezone, in.ReminderTime); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func scanMember(row rowScanner) (*Member, error) {
	var (
		m     Member
		perms pqtype.NullRawMessage
	)
	p, err := scanProfile(row, &m.Role, &m.IsSuperadmin, &perms)
	if err != nil {
		return nil, err
	}
	m.Profile = *p
	if perms.Valid {
		m.Permissions = access.ParsePermissionsJSON(perms.RawMessage)
	}
	return &m, nil
}

const memberSelect = `SELECT ` + profileColumns + `, p.role, p.is_superadmin, p.permissions
	FROM profiles p JOIN users u ON u.id = p.id`

// ListMembers returns every profile in orgID ordered by join time.
func (s *Store) ListMembers(ctx context.Context, orgID uuid.UUID) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx,
		memberSelect+` WHERE p.organization_id = $1 ORDER BY p.created_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var result []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("list members: scan: %w", err)
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

// GetMember returns the profile memberID if it belongs to orgID, or
// (nil, nil) otherwise.
func (s *Store) GetMember(ctx context.Context, orgID, memberID uuid.UUID) (*Member, error) {
	m, err := scanMember(s.db.QueryRowContext(ctx,
		memberSelect+` WHERE p.id = $1 AND p.organization_id = $2`, memberID, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func permissionsJSON(p access.Permissions) (pqtype.NullRawMessage, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: b, Valid: true}, nil
}

// UpdateMemberPermissions stores perms for a user-role member of orgID.
// Returns false when no such member exists.
func (s *Store) UpdateMemberPermissions(ctx context.Context, orgID, memberID uuid.UUID, perms access.Permissions) (bool, error) {
	raw, err := permissionsJSON(perms)
	if err != nil {
		return false, fmt.Errorf("update member permissions: encode: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET permissions = $3, updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND role = 'user'`,
		memberID, orgID, raw)
	if err != nil {
		return false, fmt.Errorf("update member permissions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update member permissions: %w", err)
	}
	return n > 0, nil
}

// DetachMember removes a user-role member from orgID. The profile is left
// without an organization, with role admin and every permission flag false,
// so signing in again leads to onboarding. Returns false when no such member
// exists.
func (s *Store) DetachMember(ctx context.Context, orgID, memberID uuid.UUID) (bool, error) {
	raw, err := permissionsJSON(access.Permissions{})
	if err != nil {
		return false, fmt.Errorf("detach member: encode: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET organization_id = NULL, role = 'admin', permissions = $3, invited_by = NULL, updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND role = 'user'`,
		memberID, orgID, raw)
	if err != nil {
		return false, fmt.Errorf("detach member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("detach member: %w", err)
	}
	return n > 0, nil
}

// SetUserRole changes the stored role of any profile. Cross-tenant; callers
// must have checked superadmin access. Returns false when the profile does
// not exist.
func (s *Store) SetUserRole(ctx context.Context, userID uuid.UUID, role access.Role) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET role = $2, updated_at = now() WHERE id = $1`,
		userID, string(role))
	if err != nil {
		return false, fmt.Errorf("set user role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set user role: %w", err)
	}
	return n > 0, nil
}
