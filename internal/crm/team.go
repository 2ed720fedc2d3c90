// ABOUTME: Team management: members, permission grants, invitations and acceptance.
// ABOUTME: Only members with role user can be edited or removed; admins are never targets.
package crm

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/access"
	"github.com/patroncollective/patron/internal/auth"
	"github.com/patroncollective/patron/internal/notify"
	"github.com/patroncollective/patron/internal/store"
)

var (
	// ErrInvitationInvalid is returned for an unknown or no longer pending token.
	ErrInvitationInvalid = errors.New("Invalid or expired invitation.") //nolint:staticcheck // user-facing message

	// ErrInvitationExpired is returned for a pending invitation past its expiry.
	ErrInvitationExpired = errors.New("This invitation has expired.") //nolint:staticcheck // user-facing message
)

// ListMembers returns every profile in the caller's organization. Admins only.
func (s *Service) ListMembers(ctx context.Context, userID uuid.UUID) ([]store.Member, error) {
	ac, err := s.resolver.RequireAdminRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, ac.OrganizationID)
}

// ListInvitations returns the caller's organization's pending invitations.
func (s *Service) ListInvitations(ctx context.Context, userID uuid.UUID) ([]store.Invitation, error) {
	ac, err := s.resolver.RequireAdminRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPendingInvitations(ctx, ac.OrganizationID)
}

// InviteResult is returned by InviteUser. InviteURL carries the raw token
// and is shown once so the admin can share it if email is not configured.
type InviteResult struct {
	Invitation *store.Invitation `json:"invitation"`
	InviteURL  string            `json:"invite_url"`
	EmailSent  bool              `json:"email_sent"`
}

// InviteUser invites email to join the caller's organization as a user
// with perms. A failed email does not fail the invitation.
func (s *Service) InviteUser(ctx context.Context, userID uuid.UUID, email string, perms access.Permissions) (*InviteResult, error) {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityAdmin)
	if err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, invalid("email", "Email is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, invalid("email", "Email address is not valid")
	}

	raw, hash, err := auth.GenerateInviteToken()
	if err != nil {
		return nil, err
	}
	inv, err := s.repo.CreateInvitation(ctx, ac.OrganizationID, email, hash, perms, userID)
	if err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	res := &InviteResult{
		Invitation: inv,
		InviteURL:  strings.TrimRight(s.baseURL, "/") + "/invite/" + raw,
	}
	if s.notifier == nil {
		return res, nil
	}

	msg := notify.Invitation{
		To:               email,
		InviterName:      "Someone",
		OrganizationName: "their gallery",
		AcceptURL:        res.InviteURL,
		ExpiresAt:        inv.ExpiresAt,
	}
	if p, err := s.repo.GetProfile(ctx, userID); err == nil && p != nil && p.FullName != "" {
		msg.InviterName = p.FullName
	}
	if org, err := s.repo.GetOrganization(ctx, ac.OrganizationID); err == nil && org != nil {
		msg.OrganizationName = org.Name
	}
	if err := s.notifier.SendInvitation(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "send invitation email", "invitation_id", inv.ID, "error", err)
		return res, nil
	}
	res.EmailSent = true
	return res, nil
}

// CancelInvitation withdraws a pending invitation.
func (s *Service) CancelInvitation(ctx context.Context, userID, invitationID uuid.UUID) error {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityAdmin)
	if err != nil {
		return err
	}
	return affected(s.repo.CancelInvitation(ctx, ac.OrganizationID, invitationID))
}

// targetUser loads memberID from orgID and checks that it is a plain user.
func (s *Service) targetUser(ctx context.Context, orgID, memberID uuid.UUID, notUserMsg string) error {
	m, err := s.repo.GetMember(ctx, orgID, memberID)
	if err != nil {
		return fmt.Errorf("get member: %w", err)
	}
	if m == nil {
		return ErrNotFound
	}
	if access.ParseRole(m.Role) != access.RoleUser {
		return invalid("", notUserMsg)
	}
	return nil
}

// UpdateMemberPermissions replaces the permission flags of a user in the
// caller's organization.
func (s *Service) UpdateMemberPermissions(ctx context.Context, userID, memberID uuid.UUID, perms access.Permissions) error {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityAdmin)
	if err != nil {
		return err
	}
	if err := s.targetUser(ctx, ac.OrganizationID, memberID, "Can only update permissions for users."); err != nil {
		return err
	}
	return affected(s.repo.UpdateMemberPermissions(ctx, ac.OrganizationID, memberID, perms))
}

// RemoveMember detaches a user from the caller's organization. The
// profile survives and returns to onboarding.
func (s *Service) RemoveMember(ctx context.Context, userID, memberID uuid.UUID) error {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityAdmin)
	if err != nil {
		return err
	}
	if err := s.targetUser(ctx, ac.OrganizationID, memberID, "Can only remove users, not admins."); err != nil {
		return err
	}
	if err := affected(s.repo.DetachMember(ctx, ac.OrganizationID, memberID)); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "member removed", "org_id", ac.OrganizationID, "member_id", memberID, "by", userID)
	return nil
}

// AcceptInvitation joins the caller to the invitation's organization. The
// caller must not already belong to one.
func (s *Service) AcceptInvitation(ctx context.Context, userID uuid.UUID, rawToken string) (*store.Invitation, error) {
	if userID == uuid.Nil {
		return nil, access.ErrUnauthenticated
	}
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrInvitationInvalid
	}

	inv, err := s.repo.GetPendingInvitationByTokenHash(ctx, auth.HashInviteToken(rawToken))
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	if inv == nil {
		return nil, ErrInvitationInvalid
	}
	if !s.gate.Now().Before(inv.ExpiresAt) {
		if err := s.repo.ExpireInvitation(ctx, inv.ID); err != nil {
			s.logger.ErrorContext(ctx, "expire invitation", "invitation_id", inv.ID, "error", err)
		}
		return nil, ErrInvitationExpired
	}

	p, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if p == nil {
		return nil, ErrNotFound
	}
	if p.OrganizationID != nil {
		return nil, invalid("", "You already belong to an organization.")
	}

	ok, err := s.repo.AcceptInvitation(ctx, inv, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvitationInvalid
	}
	s.logger.InfoContext(ctx, "invitation accepted", "invitation_id", inv.ID, "org_id", inv.OrganizationID, "user_id", userID)
	return inv, nil
}
