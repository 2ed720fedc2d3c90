// ABOUTME: Resolver builds the authorization Context for a user and exposes the guard functions.
// ABOUTME: Guards are the only place a failed predicate becomes an error.
package access

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/metrics"
)

// ProfileSource reads the two halves of a profile. The organization lookup
// is authoritative and may fail; the role lookup must never fail outward and
// reports problems through RoleLookup instead.
type ProfileSource interface {
	// ProfileOrganization returns the user's organization, or ok=false when
	// the profile is missing or has no organization yet.
	ProfileOrganization(ctx context.Context, userID uuid.UUID) (orgID uuid.UUID, ok bool, err error)
	// ProfileRoleFields reads role, is_superadmin and permissions.
	ProfileRoleFields(ctx context.Context, userID uuid.UUID) RoleLookup
}

// Resolver resolves authorization contexts. It holds no per-user state and
// is safe for concurrent use.
type Resolver struct {
	src    ProfileSource
	policy DegradePolicy
	logger *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithDegradePolicy sets how transient role lookup failures resolve.
func WithDegradePolicy(p DegradePolicy) ResolverOption {
	return func(r *Resolver) { r.policy = p }
}

// WithLogger sets the logger used for degraded-lookup warnings.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a Resolver reading from src.
func NewResolver(src ProfileSource, opts ...ResolverOption) *Resolver {
	r := &Resolver{src: src, policy: DegradeFailOpen}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Resolver) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

// Resolve returns the fully populated Context for userID, or
// ErrOnboardingIncomplete when the user has no organization. A store error
// on the organization lookup is returned wrapped; a failed role lookup never
// is.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (Context, error) {
	orgID, err := r.Organization(ctx, userID)
	if err != nil {
		return Context{}, err
	}
	return r.ResolveIn(ctx, userID, orgID), nil
}

// Organization returns the organization userID belongs to, or
// ErrOnboardingIncomplete when there is none.
func (r *Resolver) Organization(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	if userID == uuid.Nil {
		return uuid.Nil, ErrUnauthenticated
	}
	orgID, ok, err := r.src.ProfileOrganization(ctx, userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve organization: %w", err)
	}
	if !ok || orgID == uuid.Nil {
		return uuid.Nil, ErrOnboardingIncomplete
	}
	return orgID, nil
}

// ResolveIn builds the Context for userID inside an organization the caller
// already resolved with Organization. Only the role record is read.
func (r *Resolver) ResolveIn(ctx context.Context, userID, orgID uuid.UUID) Context {
	lookup := r.src.ProfileRoleFields(ctx, userID)
	if lookup.Degraded() {
		reason := "schema"
		if lookup.Transient() {
			reason = "error"
		}
		metrics.ProfileLookupDegraded.WithLabelValues(reason).Inc()
		r.log().WarnContext(ctx, "profile lookup degraded",
			"user_id", userID,
			"org_id", orgID,
			"reason", reason,
			"policy", r.policy.String(),
			"error", lookup.Err,
		)
	}

	data := ExtractRoleDataWithPolicy(lookup, r.policy)
	return Context{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           data.Role,
		IsSuperadmin:   data.IsSuperadmin,
		Permissions:    data.Permissions,
		Degraded:       lookup.Degraded(),
	}
}

// Require resolves the context and returns a *DeniedError if it does not
// allow want.
func (r *Resolver) Require(ctx context.Context, userID uuid.UUID, want Capability) (Context, error) {
	orgID, err := r.Organization(ctx, userID)
	if err != nil {
		return Context{}, err
	}
	return r.RequireIn(ctx, userID, orgID, want)
}

// RequireIn is Require for an organization already resolved by the caller.
func (r *Resolver) RequireIn(ctx context.Context, userID, orgID uuid.UUID, want Capability) (Context, error) {
	ac := r.ResolveIn(ctx, userID, orgID)
	if !ac.Allows(want) {
		metrics.AccessDenied.WithLabelValues(string(want)).Inc()
		return Context{}, &DeniedError{Capability: want}
	}
	return ac, nil
}

// RequireMutationAccess denies read-only users.
func (r *Resolver) RequireMutationAccess(ctx context.Context, userID uuid.UUID) (Context, error) {
	return r.Require(ctx, userID, CapabilityMutate)
}

// RequireDeleteAccess denies users without can_delete.
func (r *Resolver) RequireDeleteAccess(ctx context.Context, userID uuid.UUID) (Context, error) {
	return r.Require(ctx, userID, CapabilityDelete)
}

// RequireSettingsAccess denies users without can_access_settings.
func (r *Resolver) RequireSettingsAccess(ctx context.Context, userID uuid.UUID) (Context, error) {
	return r.Require(ctx, userID, CapabilitySettings)
}

// RequireAdminRole denies when the role is exactly RoleUser.
func (r *Resolver) RequireAdminRole(ctx context.Context, userID uuid.UUID) (Context, error) {
	return r.Require(ctx, userID, CapabilityAdmin)
}

// RequireSuperadmin denies unless the profile is flagged superadmin. Being
// an organization admin is not enough.
func (r *Resolver) RequireSuperadmin(ctx context.Context, userID uuid.UUID) (Context, error) {
	return r.Require(ctx, userID, CapabilitySuperadmin)
}
