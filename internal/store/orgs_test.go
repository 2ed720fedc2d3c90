// ABOUTME: Integration tests for organization store methods: onboarding, billing state, listing.
// ABOUTME: Uses testutil.NewTestDB; each test runs in its own container (t.Parallel).
package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/billing"
	"github.com/patroncollective/patron/internal/store"
	"github.com/patroncollective/patron/internal/testutil"
)

func TestCreateOrganization_StartsTrial(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	user, err := s.CreateUserWithProfile(ctx, "owner@example.com", "Owner", "", 0)
	if err != nil {
		t.Fatalf("CreateUserWithProfile: %v", err)
	}
	before := time.Now()
	org, err := s.CreateOrganization(ctx, user.ID, "Gallery One", 14)
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	if org.SubscriptionStatus != string(billing.StatusTrialing) {
		t.Errorf("status = %q, want trialing", org.SubscriptionStatus)
	}
	if org.TrialEndsAt == nil {
		t.Fatal("TrialEndsAt is nil")
	}
	wantEnd := before.Add(14 * 24 * time.Hour)
	if d := org.TrialEndsAt.Sub(wantEnd); d < -time.Minute || d > time.Minute {
		t.Errorf("TrialEndsAt = %v, want about %v", org.TrialEndsAt, wantEnd)
	}

	orgID, ok, err := s.ProfileOrganization(ctx, user.ID)
	if err != nil || !ok || orgID != org.ID {
		t.Errorf("ProfileOrganization = (%v, %v, %v), want (%v, true, nil)", orgID, ok, err, org.ID)
	}

	acct, err := s.OrganizationAccount(ctx, org.ID)
	if err != nil {
		t.Fatalf("OrganizationAccount: %v", err)
	}
	if !billing.Allows(acct, time.Now()) {
		t.Error("new trial organization should allow writes")
	}
}

func TestCreateOrganization_AlreadyOnboarded(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	tenant := s.SeedTenant(t, "twice@example.com", 14)
	_, err := s.CreateOrganization(ctx, tenant.UserID, "Second", 14)
	if !errors.Is(err, store.ErrAlreadyOnboarded) {
		t.Fatalf("second CreateOrganization err = %v, want ErrAlreadyOnboarded", err)
	}

	// The failed attempt must not leave an orphan organization behind.
	orgs, err := s.ListOrganizations(ctx)
	if err != nil {
		t.Fatalf("ListOrganizations: %v", err)
	}
	if len(orgs) != 1 {
		t.Errorf("organizations = %d, want 1", len(orgs))
	}
}

func TestProfileOrganization_NoOrgOrNoProfile(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	user, err := s.CreateUserWithProfile(ctx, "fresh@example.com", "Fresh", "", 0)
	if err != nil {
		t.Fatalf("CreateUserWithProfile: %v", err)
	}
	for _, id := range []uuid.UUID{user.ID, uuid.New()} {
		_, ok, err := s.ProfileOrganization(ctx, id)
		if err != nil {
			t.Fatalf("ProfileOrganization(%v): %v", id, err)
		}
		if ok {
			t.Errorf("ProfileOrganization(%v) ok = true, want false", id)
		}
	}
}

func TestOrganizationAccount_Missing(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)

	acct, err := s.OrganizationAccount(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("OrganizationAccount: %v", err)
	}
	if acct != nil {
		t.Errorf("OrganizationAccount = %+v, want nil", acct)
	}
}

func TestSetSubscriptionStatus(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	tenant := s.SeedTenant(t, "lapsed@example.com", 14)
	ok, err := s.SetSubscriptionStatus(ctx, tenant.OrgID, billing.StatusCanceled)
	if err != nil || !ok {
		t.Fatalf("SetSubscriptionStatus = %v, %v", ok, err)
	}
	acct, err := s.OrganizationAccount(ctx, tenant.OrgID)
	if err != nil {
		t.Fatalf("OrganizationAccount: %v", err)
	}
	if acct.Status != billing.StatusCanceled {
		t.Errorf("status = %q, want canceled", acct.Status)
	}
	if billing.Allows(acct, time.Now()) {
		t.Error("canceled organization must not allow writes")
	}

	ok, err = s.SetSubscriptionStatus(ctx, uuid.New(), billing.StatusActive)
	if err != nil || ok {
		t.Errorf("SetSubscriptionStatus(missing org) = %v, %v, want false, nil", ok, err)
	}
}

func TestUpdateOrganizationNameAndList(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	a := s.SeedTenant(t, "a@example.com", 14)
	s.SeedTenant(t, "b@example.com", 14)

	updated, err := s.UpdateOrganizationName(ctx, a.OrgID, "Renamed")
	if err != nil {
		t.Fatalf("UpdateOrganizationName: %v", err)
	}
	if updated == nil || updated.Name != "Renamed" {
		t.Fatalf("UpdateOrganizationName = %+v", updated)
	}
	missing, err := s.UpdateOrganizationName(ctx, uuid.New(), "Ghost")
	if err != nil || missing != nil {
		t.Errorf("UpdateOrganizationName (missing) = (%+v, %v), want (nil, nil)", missing, err)
	}

	orgs, err := s.ListOrganizations(ctx)
	if err != nil {
		t.Fatalf("ListOrganizations: %v", err)
	}
	if len(orgs) != 2 {
		t.Fatalf("organizations = %d, want 2", len(orgs))
	}
	for _, o := range orgs {
		if o.MemberCount != 1 {
			t.Errorf("org %s member count = %d, want 1", o.Name, o.MemberCount)
		}
	}
}
