// ABOUTME: Store methods for organizations: onboarding, settings, billing state, superadmin listing.
// ABOUTME: The organizations table is global (no RLS); tenant checks happen in the service layer.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/billing"
)

// ErrAlreadyOnboarded is returned by CreateOrganization when the user
// already belongs to an organization.
var ErrAlreadyOnboarded = errors.New("profile already belongs to an organization")

const orgColumns = `id, name, subscription_status, trial_ends_at, created_at, updated_at`

func scanOrg(row rowScanner, extra ...any) (*Organization, error) {
	var o Organization
	dest := append([]any{&o.ID, &o.Name, &o.SubscriptionStatus, &o.TrialEndsAt, &o.CreatedAt, &o.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOrganization creates an organization on a trial of trialDays and
// attaches ownerID's profile to it in one transaction. The profile's role
// columns are left untouched so this works on every schema version.
func (s *Store) CreateOrganization(ctx context.Context, ownerID uuid.UUID, name string, trialDays int) (*Organization, error) {
	var org *Organization
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		org, err = scanOrg(tx.QueryRowContext(ctx, `
			INSERT INTO organizations (name, subscription_status, trial_ends_at)
			VALUES ($1, 'trialing', now() + make_interval(days => $2))
			RETURNING `+orgColumns,
			name, trialDays))
		if err != nil {
			return fmt.Errorf("insert organization: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE profiles SET organization_id = $1, updated_at = now()
			WHERE id = $2 AND organization_id IS NULL`,
			org.ID, ownerID)
		if err != nil {
			return fmt.Errorf("attach owner: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("attach owner: %w", err)
		}
		if n == 0 {
			return ErrAlreadyOnboarded
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}
	return org, nil
}

// GetOrganization returns the organization with the given ID, or (nil, nil)
// if not found.
func (s *Store) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	o, err := scanOrg(s.db.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return o, nil
}

// UpdateOrganizationName renames the organization. Returns (nil, nil) if the
// organization is not found.
func (s *Store) UpdateOrganizationName(ctx context.Context, id uuid.UUID, name string) (*Organization, error) {
	o, err := scanOrg(s.db.QueryRowContext(ctx, `
		UPDATE organizations SET name = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+orgColumns,
		id, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update organization: %w", err)
	}
	return o, nil
}

// OrganizationAccount returns the billing state of orgID, or (nil, nil) if
// the organization does not exist.
func (s *Store) OrganizationAccount(ctx context.Context, orgID uuid.UUID) (*billing.Account, error) {
	var (
		status   string
		trialEnd *time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT subscription_status, trial_ends_at FROM organizations WHERE id = $1`,
		orgID).Scan(&status, &trialEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization account: %w", err)
	}
	return &billing.Account{
		OrganizationID: orgID,
		Status:         billing.Status(status),
		TrialEndsAt:    trialEnd,
	}, nil
}

// SetSubscriptionStatus records a billing status change. It reports false
// when the organization does not exist.
func (s *Store) SetSubscriptionStatus(ctx context.Context, orgID uuid.UUID, status billing.Status) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE organizations SET subscription_status = $2, updated_at = now() WHERE id = $1`,
		orgID, string(status))
	if err != nil {
		return false, fmt.Errorf("set subscription status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set subscription status: %w", err)
	}
	return n > 0, nil
}

// ListOrganizations returns every organization with its member count,
// newest first. Cross-tenant; superadmin only.
func (s *Store) ListOrganizations(ctx context.Context) ([]OrganizationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.name, o.subscription_status, o.trial_ends_at, o.created_at, o.updated_at,
		       COUNT(p.id)
		FROM organizations o
		LEFT JOIN profiles p ON p.organization_id = o.id
		GROUP BY o.id
		ORDER BY o.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var result []OrganizationSummary
	for rows.Next() {
		var count int
		o, err := scanOrg(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("list organizations: scan: %w", err)
		}
		result = append(result, OrganizationSummary{Organization: *o, MemberCount: count})
	}
	return result, rows.Err()
}
