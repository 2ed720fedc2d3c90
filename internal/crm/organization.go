// ABOUTME: Onboarding, organization settings, the caller's own profile and session view.
// ABOUTME: Also the subscription banner summary and the settings-gated data export.
package crm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/access"
	"github.com/patroncollective/patron/internal/billing"
	"github.com/patroncollective/patron/internal/store"
)

var reminderTimeRE = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// CreateOrganization creates the caller's gallery and starts its trial. It
// is the only way out of onboarding and is not subject to the write gate.
func (s *Service) CreateOrganization(ctx context.Context, userID uuid.UUID, name string) (*store.Organization, error) {
	if userID == uuid.Nil {
		return nil, access.ErrUnauthenticated
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "Gallery name is required")
	}
	org, err := s.repo.CreateOrganization(ctx, userID, name, s.trialDays)
	if errors.Is(err, store.ErrAlreadyOnboarded) {
		return nil, invalid("", "You already belong to an organization.")
	}
	if err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}
	s.logger.InfoContext(ctx, "organization created", "org_id", org.ID, "user_id", userID)
	return org, nil
}

// GetOrganization returns the caller's organization.
func (s *Service) GetOrganization(ctx context.Context, userID uuid.UUID) (*store.Organization, error) {
	ac, err := s.authorizeRead(ctx, userID)
	if err != nil {
		return nil, err
	}
	return found(s.repo.GetOrganization(ctx, ac.OrganizationID))
}

// UpdateOrganization renames the caller's organization. Admins only.
func (s *Service) UpdateOrganization(ctx context.Context, userID uuid.UUID, name string) (*store.Organization, error) {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityAdmin)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "Gallery name is required")
	}
	return found(s.repo.UpdateOrganizationName(ctx, ac.OrganizationID, name))
}

// UpdateProfile changes the caller's own name and reminder preferences.
// Blank timezone and reminder time fall back to UTC and 09:00.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, in store.ProfileInput) error {
	if _, err := s.authorizeWrite(ctx, userID, access.CapabilityMutate); err != nil {
		return err
	}
	in.FullName = strings.TrimSpace(in.FullName)
	in.Timezone = strings.TrimSpace(in.Timezone)
	if in.Timezone == "" {
		in.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(in.Timezone); err != nil {
		return invalid("timezone", fmt.Sprintf("Unknown timezone %q", in.Timezone))
	}
	in.ReminderTime = strings.TrimSpace(in.ReminderTime)
	if in.ReminderTime == "" {
		in.ReminderTime = "09:00"
	}
	if !reminderTimeRE.MatchString(in.ReminderTime) {
		return invalid("reminder_time", "Reminder time must be HH:MM")
	}
	return s.repo.UpdateProfile(ctx, userID, in)
}

// Subscription returns the banner summary for the caller's organization.
func (s *Service) Subscription(ctx context.Context, userID uuid.UUID) (billing.SubscriptionSummary, error) {
	ac, err := s.authorizeRead(ctx, userID)
	if err != nil {
		return billing.SubscriptionSummary{}, err
	}
	acct, err := s.gate.Account(ctx, ac.OrganizationID)
	if err != nil {
		return billing.SubscriptionSummary{}, err
	}
	return billing.Summary(acct, s.gate.Now()), nil
}

// Export returns every client, note and sale of the caller's organization.
// Requires settings access.
func (s *Service) Export(ctx context.Context, userID uuid.UUID) (*store.Export, error) {
	ac, err := s.resolver.RequireSettingsAccess(ctx, userID)
	if err != nil {
		return nil, err
	}
	exp, err := s.repo.ExportOrganization(ctx, ac.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return exp, nil
}

// Capabilities are the capability booleans the UI renders from. They are
// computed with the same predicates the guards use.
type Capabilities struct {
	CanMutate         bool `json:"can_mutate"`
	CanDelete         bool `json:"can_delete"`
	CanSeePricing     bool `json:"can_see_pricing"`
	CanAccessSettings bool `json:"can_access_settings"`
	IsAdmin           bool `json:"is_admin"`
	WriteAllowed      bool `json:"write_allowed"`
}

// Session is what the signed-in user sees about themselves.
type Session struct {
	Profile            *store.Profile               `json:"profile"`
	OnboardingRequired bool                         `json:"onboarding_required"`
	Organization       *store.Organization          `json:"organization,omitempty"`
	Role               access.Role                  `json:"role,omitempty"`
	IsSuperadmin       bool                         `json:"is_superadmin"`
	Permissions        *access.Permissions          `json:"permissions,omitempty"`
	Capabilities       *Capabilities                `json:"capabilities,omitempty"`
	Subscription       *billing.SubscriptionSummary `json:"subscription,omitempty"`
}

// Me describes the caller. A user without an organization gets a session
// with OnboardingRequired set instead of an error.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*Session, error) {
	if userID == uuid.Nil {
		return nil, access.ErrUnauthenticated
	}
	p, err := found(s.repo.GetProfile(ctx, userID))
	if err != nil {
		return nil, err
	}
	ac, err := s.resolver.Resolve(ctx, userID)
	if errors.Is(err, access.ErrOnboardingIncomplete) {
		return &Session{Profile: p, OnboardingRequired: true}, nil
	}
	if err != nil {
		return nil, err
	}

	org, err := s.repo.GetOrganization(ctx, ac.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	acct, err := s.gate.Account(ctx, ac.OrganizationID)
	if err != nil {
		return nil, err
	}
	now := s.gate.Now()
	summary := billing.Summary(acct, now)
	perms := ac.Permissions
	return &Session{
		Profile:      p,
		Organization: org,
		Role:         ac.Role,
		IsSuperadmin: ac.IsSuperadmin,
		Permissions:  &perms,
		Capabilities: &Capabilities{
			CanMutate:         ac.CanMutate(),
			CanDelete:         ac.CanDelete(),
			CanSeePricing:     ac.CanSeePricing(),
			CanAccessSettings: ac.CanAccessSettings(),
			IsAdmin:           ac.Allows(access.CapabilityAdmin),
			WriteAllowed:      billing.Allows(acct, now),
		},
		Subscription: &summary,
	}, nil
}
