// ABOUTME: Gate decides whether an organization's subscription allows writes.
// ABOUTME: Boolean checks fail closed; RequireWriteAccess returns typed errors.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/access"
	"github.com/patroncollective/patron/internal/metrics"
)

// ErrSubscriptionExpired is returned by RequireWriteAccess when the
// organization's subscription does not allow writes.
var ErrSubscriptionExpired = errors.New("Your trial has expired. Please upgrade to continue making changes.") //nolint:staticcheck // user-facing message

// Source reads what the gate needs. OrganizationAccount returns (nil, nil)
// when the organization does not exist.
type Source interface {
	ProfileOrganization(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool, error)
	OrganizationAccount(ctx context.Context, orgID uuid.UUID) (*Account, error)
}

// Gate is immutable after construction and safe for concurrent use.
type Gate struct {
	src    Source
	now    func() time.Time
	logger *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

// WithLogger sets the logger used for store failures.
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// NewGate creates a Gate reading from src.
func NewGate(src Source, opts ...GateOption) *Gate {
	g := &Gate{src: src, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gate) log() *slog.Logger {
	if g.logger != nil {
		return g.logger
	}
	return slog.Default()
}

// Account returns the billing record of orgID, or nil when it is missing.
func (g *Gate) Account(ctx context.Context, orgID uuid.UUID) (*Account, error) {
	if orgID == uuid.Nil {
		return nil, nil
	}
	acct, err := g.src.OrganizationAccount(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("get organization account: %w", err)
	}
	return acct, nil
}

// Now returns the gate's clock reading.
func (g *Gate) Now() time.Time { return g.now() }

// CanWrite reports whether orgID may write. A missing organization or a
// store error is false.
func (g *Gate) CanWrite(ctx context.Context, orgID uuid.UUID) bool {
	acct, err := g.Account(ctx, orgID)
	if err != nil {
		g.log().ErrorContext(ctx, "subscription check failed", "org_id", orgID, "error", err)
		return false
	}
	return Allows(acct, g.now())
}

// RequireWriteAccess returns nil when the user's organization may write.
// A user without an organization gets access.ErrOnboardingIncomplete; a
// store failure is returned wrapped; every other refusal is
// ErrSubscriptionExpired.
func (g *Gate) RequireWriteAccess(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return access.ErrUnauthenticated
	}
	orgID, ok, err := g.src.ProfileOrganization(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve organization: %w", err)
	}
	if !ok || orgID == uuid.Nil {
		return access.ErrOnboardingIncomplete
	}
	return g.RequireOrgWriteAccess(ctx, orgID)
}

// RequireOrgWriteAccess is RequireWriteAccess for an organization the caller
// already resolved.
func (g *Gate) RequireOrgWriteAccess(ctx context.Context, orgID uuid.UUID) error {
	if orgID == uuid.Nil {
		return access.ErrOnboardingIncomplete
	}
	acct, err := g.Account(ctx, orgID)
	if err != nil {
		return err
	}
	if !Allows(acct, g.now()) {
		metrics.WriteBlocked.Inc()
		return ErrSubscriptionExpired
	}
	return nil
}
