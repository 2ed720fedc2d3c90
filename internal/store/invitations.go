// ABOUTME: Store methods for team invitations. Only the SHA-256 hash of the token is stored.
// ABOUTME: Acceptance runs with RLS bypass because the invitee is not yet a member of the organization.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/patroncollective/patron/internal/access"
)

const invitationColumns = "id, organization_id, email, permissions, invited_by, status, expires_at, accepted_at, created_at"

func scanInvitation(row rowScanner) (*Invitation, error) {
	var (
		inv   Invitation
		perms pqtype.NullRawMessage
	)
	if err := row.Scan(
		&inv.ID, &inv.OrganizationID, &inv.Email, &perms, &inv.InvitedBy,
		&inv.Status, &inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedAt,
	); err != nil {
		return nil, err
	}
	if p := access.ParsePermissionsJSON(perms.RawMessage); p != nil {
		inv.Permissions = *p
	}
	return &inv, nil
}

// CreateInvitation stores a pending invitation valid for seven days.
func (s *Store) CreateInvitation(ctx context.Context, orgID uuid.UUID, email, tokenHash string, perms access.Permissions, invitedBy uuid.UUID) (*Invitation, error) {
	raw, err := permissionsJSON(perms)
	if err != nil {
		return nil, fmt.Errorf("create invitation: encode: %w", err)
	}
	var inv *Invitation
	err = s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		var err error
		inv, err = scanInvitation(tx.QueryRowContext(ctx, `
			INSERT INTO invitations (organization_id, email, token_hash, permissions, invited_by)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+invitationColumns,
			orgID, email, tokenHash, raw, invitedBy))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}
	return inv, nil
}

// ListPendingInvitations returns the pending invitations of orgID, newest first.
func (s *Store) ListPendingInvitations(ctx context.Context, orgID uuid.UUID) ([]Invitation, error) {
	var result []Invitation
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+invitationColumns+` FROM invitations
			 WHERE organization_id = $1 AND status = 'pending'
			 ORDER BY created_at DESC`, orgID)
		if err != nil {
			return err
		}
		defer rows.Close() //nolint:errcheck
		for rows.Next() {
			inv, err := scanInvitation(rows)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			result = append(result, *inv)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list pending invitations: %w", err)
	}
	return result, nil
}

// CancelInvitation expires a pending invitation of orgID. Returns false if
// there was no such pending invitation.
func (s *Store) CancelInvitation(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	return s.execAffected(ctx, orgID, "cancel invitation", `
		UPDATE invitations SET status = 'expired'
		WHERE id = $1 AND organization_id = $2 AND status = 'pending'`,
		id, orgID)
}

// GetPendingInvitationByTokenHash looks up a pending invitation by the hash
// of its token, or returns (nil, nil). Uses bypass_rls: the caller is not a
// member of the inviting organization.
func (s *Store) GetPendingInvitationByTokenHash(ctx context.Context, tokenHash string) (*Invitation, error) {
	var inv *Invitation
	err := s.withBypassTx(ctx, func(tx *sql.Tx) error {
		var err error
		inv, err = scanInvitation(tx.QueryRowContext(ctx,
			`SELECT `+invitationColumns+` FROM invitations
			 WHERE token_hash = $1 AND status = 'pending'`, tokenHash))
		if errors.Is(err, sql.ErrNoRows) {
			inv = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get invitation by token: %w", err)
	}
	return inv, nil
}

// ExpireInvitation marks an invitation expired.
func (s *Store) ExpireInvitation(ctx context.Context, id uuid.UUID) error {
	err := s.withBypassTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE invitations SET status = 'expired' WHERE id = $1 AND status = 'pending'`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("expire invitation: %w", err)
	}
	return nil
}

// AcceptInvitation joins userID to the invitation's organization as a user
// with the invited permissions and marks the invitation accepted, in one
// transaction. Returns false if the invitation was no longer pending.
func (s *Store) AcceptInvitation(ctx context.Context, inv *Invitation, userID uuid.UUID) (bool, error) {
	raw, err := permissionsJSON(inv.Permissions)
	if err != nil {
		return false, fmt.Errorf("accept invitation: encode: %w", err)
	}
	accepted := false
	err = s.withBypassTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE invitations SET status = 'accepted', accepted_at = now()
			WHERE id = $1 AND status = 'pending'`, inv.ID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil || n == 0 {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE profiles
			SET organization_id = $2, role = 'user', permissions = $3, invited_by = $4, updated_at = now()
			WHERE id = $1`,
			userID, inv.OrganizationID, raw, inv.InvitedBy); err != nil {
			return fmt.Errorf("join organization: %w", err)
		}
		accepted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("accept invitation: %w", err)
	}
	return accepted, nil
}
