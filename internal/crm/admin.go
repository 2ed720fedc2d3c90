// ABOUTME: Superadmin operations across every organization.
// ABOUTME: Guarded by the superadmin flag only; being an organization admin is not enough.
package crm

import (
	"context"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/access"
	"github.com/patroncollective/patron/internal/billing"
	"github.com/patroncollective/patron/internal/store"
)

// ListAllOrganizations lists every organization with its member count.
func (s *Service) ListAllOrganizations(ctx context.Context, userID uuid.UUID) ([]store.OrganizationSummary, error) {
	if _, err := s.resolver.RequireSuperadmin(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListOrganizations(ctx)
}

// ListOrganizationMembers lists the members of any organization.
func (s *Service) ListOrganizationMembers(ctx context.Context, userID, orgID uuid.UUID) ([]store.Member, error) {
	if _, err := s.resolver.RequireSuperadmin(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, orgID)
}

// ChangeUserRole sets a profile's role to admin or user. Promotion to
// superadmin is refused.
func (s *Service) ChangeUserRole(ctx context.Context, userID, targetID uuid.UUID, role string) error {
	if _, err := s.resolver.RequireSuperadmin(ctx, userID); err != nil {
		return err
	}
	r := access.Role(role)
	if !r.Valid() {
		return invalid("role", "Role must be admin or user.")
	}
	if r == access.RoleSuperadmin {
		return invalid("role", "Cannot promote to superadmin.")
	}
	if err := affected(s.repo.SetUserRole(ctx, targetID, r)); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "user role changed", "target_id", targetID, "role", r, "by", userID)
	return nil
}

// SetOrganizationSubscription overrides an organization's billing status,
// for example to extend a lapsed trial by hand. Unknown statuses are refused.
func (s *Service) SetOrganizationSubscription(ctx context.Context, userID, orgID uuid.UUID, status string) error {
	if _, err := s.resolver.RequireSuperadmin(ctx, userID); err != nil {
		return err
	}
	st := billing.Status(status)
	if !st.Known() {
		return invalid("status", "Unknown subscription status.")
	}
	if err := affected(s.repo.SetSubscriptionStatus(ctx, orgID, st)); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "subscription status changed", "org_id", orgID, "status", st, "by", userID)
	return nil
}
