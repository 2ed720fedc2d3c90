// ABOUTME: Service is the composition point for every gallery CRM operation.
// ABOUTME: Mutations pass the subscription gate, then the permission guard, then reach the store.
package crm

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/access"
	"github.com/patroncollective/patron/internal/billing"
	"github.com/patroncollective/patron/internal/notify"
	"github.com/patroncollective/patron/internal/store"
)

// Repository is the persistence surface the service needs. *store.Store
// implements it.
type Repository interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*store.Profile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, in store.ProfileInput) error

	CreateOrganization(ctx context.Context, ownerID uuid.UUID, name string, trialDays int) (*store.Organization, error)
	GetOrganization(ctx context.Context, id uuid.UUID) (*store.Organization, error)
	UpdateOrganizationName(ctx context.Context, id uuid.UUID, name string) (*store.Organization, error)
	ListOrganizations(ctx context.Context) ([]store.OrganizationSummary, error)
	ExportOrganization(ctx context.Context, orgID uuid.UUID) (*store.Export, error)

	CreateClient(ctx context.Context, orgID uuid.UUID, in store.ClientInput) (*store.Client, error)
	GetClient(ctx context.Context, orgID, id uuid.UUID) (*store.Client, error)
	UpdateClient(ctx context.Context, orgID, id uuid.UUID, in store.ClientInput) (*store.Client, error)
	SoftDeleteClient(ctx context.Context, orgID, id uuid.UUID) (bool, error)
	ListClients(ctx context.Context, orgID uuid.UUID, f store.ClientFilter) ([]store.Client, error)
	ListClientTags(ctx context.Context, orgID uuid.UUID) ([]string, error)
	ListInventoryArtists(ctx context.Context, orgID uuid.UUID) ([]string, error)
	ListInventoryMediums(ctx context.Context, orgID uuid.UUID) ([]string, error)
	ImportClients(ctx context.Context, orgID uuid.UUID, rows []store.ClientInput) (int, []string, error)

	CreateNote(ctx context.Context, orgID, clientID uuid.UUID, content string, followUp *time.Time) (*store.Note, error)
	UpdateNoteContent(ctx context.Context, orgID, id uuid.UUID, content string) (*store.Note, error)
	DeleteNote(ctx context.Context, orgID, id uuid.UUID) (bool, error)
	ListClientNotes(ctx context.Context, orgID, clientID uuid.UUID) ([]store.Note, error)
	CompleteFollowUp(ctx context.Context, orgID, id uuid.UUID) (bool, error)
	RescheduleFollowUp(ctx context.Context, orgID, id uuid.UUID, date time.Time) (bool, error)
	ListDueFollowUps(ctx context.Context, orgID uuid.UUID, today time.Time) ([]store.FollowUp, error)

	CreateEnquiry(ctx context.Context, orgID, clientID uuid.UUID, in store.EnquiryInput) (*store.Enquiry, error)
	UpdateEnquiry(ctx context.Context, orgID, id uuid.UUID, in store.EnquiryInput) (*store.Enquiry, error)
	DeleteEnquiry(ctx context.Context, orgID, id uuid.UUID) (bool, error)
	ListEnquiries(ctx context.Context, orgID uuid.UUID, clientID uuid.NullUUID, search string) ([]store.Enquiry, error)

	CreateSale(ctx context.Context, orgID, clientID uuid.UUID, in store.SaleInput) (*store.Sale, error)
	UpdateSale(ctx context.Context, orgID, id uuid.UUID, in store.SaleInput) (*store.Sale, error)
	DeleteSale(ctx context.Context, orgID, id uuid.UUID) (bool, error)
	ListClientSales(ctx context.Context, orgID, clientID uuid.UUID) ([]store.Sale, error)

	CreateInventoryItem(ctx context.Context, orgID uuid.UUID, in store.InventoryInput) (*store.InventoryItem, error)
	GetInventoryItem(ctx context.Context, orgID, id uuid.UUID) (*store.InventoryItem, error)
	UpdateInventoryItem(ctx context.Context, orgID, id uuid.UUID, in store.InventoryInput) (*store.InventoryItem, error)
	SoftDeleteInventoryItem(ctx context.Context, orgID, id uuid.UUID) (bool, error)
	ListInventory(ctx context.Context, orgID uuid.UUID, f store.InventoryFilter) ([]store.InventoryItem, error)
	ImportInventory(ctx context.Context, orgID uuid.UUID, rows []store.InventoryInput) (int, []string, error)

	ListMembers(ctx context.Context, orgID uuid.UUID) ([]store.Member, error)
	GetMember(ctx context.Context, orgID, memberID uuid.UUID) (*store.Member, error)
	UpdateMemberPermissions(ctx context.Context, orgID, memberID uuid.UUID, perms access.Permissions) (bool, error)
	DetachMember(ctx context.Context, orgID, memberID uuid.UUID) (bool, error)
	SetUserRole(ctx context.Context, userID uuid.UUID, role access.Role) (bool, error)
	SetSubscriptionStatus(ctx context.Context, orgID uuid.UUID, status billing.Status) (bool, error)

	CreateInvitation(ctx context.Context, orgID uuid.UUID, email, tokenHash string, perms access.Permissions, invitedBy uuid.UUID) (*store.Invitation, error)
	ListPendingInvitations(ctx context.Context, orgID uuid.UUID) ([]store.Invitation, error)
	CancelInvitation(ctx context.Context, orgID, id uuid.UUID) (bool, error)
	GetPendingInvitationByTokenHash(ctx context.Context, tokenHash string) (*store.Invitation, error)
	ExpireInvitation(ctx context.Context, id uuid.UUID) error
	AcceptInvitation(ctx context.Context, inv *store.Invitation, userID uuid.UUID) (bool, error)
}

// Notifier delivers transactional email. A nil Notifier disables sending.
type Notifier interface {
	SendInvitation(ctx context.Context, msg notify.Invitation) error
}

// Service implements the gallery operations on top of a Repository.
// Authorization is resolved per call; the service holds no per-user state
// and is safe for concurrent use.
type Service struct {
	repo      Repository
	gate      *billing.Gate
	resolver  *access.Resolver
	notifier  Notifier
	baseURL   string
	trialDays int
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the email sender for invitations.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithBaseURL sets the external URL used to build invitation links.
func WithBaseURL(u string) Option {
	return func(s *Service) { s.baseURL = u }
}

// WithTrialDays sets the trial length granted to new organizations.
func WithTrialDays(days int) Option {
	return func(s *Service) { s.trialDays = days }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// DefaultTrialDays is the trial granted when WithTrialDays is not used.
const DefaultTrialDays = 14

// New creates a Service.
func New(repo Repository, gate *billing.Gate, resolver *access.Resolver, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		gate:      gate,
		resolver:  resolver,
		trialDays: DefaultTrialDays,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// authorizeWrite runs the subscription gate and then the permission guard
// for want. The guard is not consulted when the gate refuses, so a lapsed
// subscription always reports as such even for a read-only user. The
// organization is read once and both checks apply to it.
func (s *Service) authorizeWrite(ctx context.Context, userID uuid.UUID, want access.Capability) (access.Context, error) {
	orgID, err := s.resolver.Organization(ctx, userID)
	if err != nil {
		return access.Context{}, err
	}
	if err := s.gate.RequireOrgWriteAccess(ctx, orgID); err != nil {
		return access.Context{}, err
	}
	return s.resolver.RequireIn(ctx, userID, orgID, want)
}

// authorizeRead resolves the caller's context without a capability check.
func (s *Service) authorizeRead(ctx context.Context, userID uuid.UUID) (access.Context, error) {
	return s.resolver.Resolve(ctx, userID)
}
