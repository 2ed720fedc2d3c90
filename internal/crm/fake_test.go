// ABOUTME: In-memory Repository used by the service tests. It also serves the
// ABOUTME: access and billing sources so the real Resolver and Gate run unchanged.
package crm

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/access"
	"github.com/patroncollective/patron/internal/billing"
	"github.com/patroncollective/patron/internal/notify"
	"github.com/patroncollective/patron/internal/store"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeUser struct {
	orgID   uuid.UUID
	lookup  access.RoleLookup
	profile store.Profile
}

// fakeRepo embeds Repository so unimplemented methods panic if a test
// reaches them unexpectedly.
type fakeRepo struct {
	Repository

	mu          sync.Mutex
	clock       *testClock
	users       map[uuid.UUID]*fakeUser
	orgs        map[uuid.UUID]*store.Organization
	accounts    map[uuid.UUID]*billing.Account
	members     map[uuid.UUID]*store.Member
	items       map[uuid.UUID]store.InventoryItem
	invitations map[string]*store.Invitation

	roleReads      int
	orgReads       int
	relocate       map[uuid.UUID]uuid.UUID
	writes         []string
	importedItems  []store.InventoryInput
	expired        []uuid.UUID
	roleChanges    map[uuid.UUID]access.Role
	permUpdates    map[uuid.UUID]access.Permissions
	createdClients []store.ClientInput
	dueQueries     []time.Time
}

func newFakeRepo(clock *testClock) *fakeRepo {
	return &fakeRepo{
		clock:       clock,
		users:       make(map[uuid.UUID]*fakeUser),
		orgs:        make(map[uuid.UUID]*store.Organization),
		accounts:    make(map[uuid.UUID]*billing.Account),
		members:     make(map[uuid.UUID]*store.Member),
		items:       make(map[uuid.UUID]store.InventoryItem),
		invitations: make(map[string]*store.Invitation),
		roleChanges: make(map[uuid.UUID]access.Role),
		permUpdates: make(map[uuid.UUID]access.Permissions),
		relocate:    make(map[uuid.UUID]uuid.UUID),
	}
}

func (f *fakeRepo) write(op string) {
	f.writes = append(f.writes, op)
}

func (f *fakeRepo) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeRepo) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roleReads
}

// addOrg registers an organization with the given billing state.
func (f *fakeRepo) addOrg(status billing.Status, trialEnds *time.Time) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.orgs[id] = &store.Organization{ID: id, Name: "North Gallery", SubscriptionStatus: string(status), TrialEndsAt: trialEnds}
	f.accounts[id] = &billing.Account{OrganizationID: id, Status: status, TrialEndsAt: trialEnds}
	return id
}

func (f *fakeRepo) setStatus(orgID uuid.UUID, status billing.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[orgID].Status = status
}

// addUser registers a profile. orgID may be uuid.Nil for a user still in
// onboarding.
func (f *fakeRepo) addUser(orgID uuid.UUID, role string, superadmin bool, perms *access.Permissions) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	u := &fakeUser{
		orgID:   orgID,
		lookup:  access.Present(access.RoleFields{Role: &role, IsSuperadmin: &superadmin, Permissions: perms}),
		profile: store.Profile{ID: id, Email: id.String()[:8] + "@example.com", FullName: "Member " + id.String()[:4], Timezone: "UTC", ReminderTime: "09:00"},
	}
	if orgID != uuid.Nil {
		o := orgID
		u.profile.OrganizationID = &o
		f.members[id] = &store.Member{Profile: u.profile, Role: role, IsSuperadmin: superadmin, Permissions: perms}
	}
	f.users[id] = u
	return id
}

func (f *fakeRepo) ProfileOrganization(_ context.Context, userID uuid.UUID) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orgReads++
	u, ok := f.users[userID]
	if !ok || u.orgID == uuid.Nil {
		return uuid.Nil, false, nil
	}
	orgID := u.orgID
	if next, moved := f.relocate[userID]; moved {
		u.orgID = next
		delete(f.relocate, userID)
	}
	return orgID, true, nil
}

// moveAfterNextRead reassigns userID to orgID once its organization has been
// read one more time.
func (f *fakeRepo) moveAfterNextRead(userID, orgID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relocate[userID] = orgID
}

func (f *fakeRepo) organizationReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orgReads
}

func (f *fakeRepo) ProfileRoleFields(_ context.Context, userID uuid.UUID) access.RoleLookup {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleReads++
	u, ok := f.users[userID]
	if !ok {
		return access.Absent()
	}
	return u.lookup
}

func (f *fakeRepo) OrganizationAccount(_ context.Context, orgID uuid.UUID) (*billing.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[orgID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) GetProfile(_ context.Context, userID uuid.UUID) (*store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	p := u.profile
	return &p, nil
}

func (f *fakeRepo) UpdateProfile(_ context.Context, userID uuid.UUID, in store.ProfileInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("update_profile")
	u := f.users[userID]
	u.profile.FullName = in.FullName
	u.profile.Timezone = in.Timezone
	u.profile.ReminderTime = in.ReminderTime
	return nil
}

func (f *fakeRepo) CreateOrganization(_ context.Context, ownerID uuid.UUID, name string, trialDays int) (*store.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[ownerID]
	if u.orgID != uuid.Nil {
		return nil, store.ErrAlreadyOnboarded
	}
	f.write("create_organization")
	id := uuid.New()
	ends := f.clock.now().AddDate(0, 0, trialDays)
	org := &store.Organization{ID: id, Name: name, SubscriptionStatus: string(billing.StatusTrialing), TrialEndsAt: &ends}
	f.orgs[id] = org
	f.accounts[id] = &billing.Account{OrganizationID: id, Status: billing.StatusTrialing, TrialEndsAt: &ends}
	u.orgID = id
	u.profile.OrganizationID = &id
	admin := string(access.RoleAdmin)
	u.lookup = access.Present(access.RoleFields{Role: &admin})
	cp := *org
	return &cp, nil
}

func (f *fakeRepo) GetOrganization(_ context.Context, id uuid.UUID) (*store.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orgs[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (f *fakeRepo) ListOrganizations(_ context.Context) ([]store.OrganizationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.OrganizationSummary, 0, len(f.orgs))
	for _, o := range f.orgs {
		out = append(out, store.OrganizationSummary{Organization: *o})
	}
	return out, nil
}

func (f *fakeRepo) CreateClient(_ context.Context, orgID uuid.UUID, in store.ClientInput) (*store.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("create_client")
	f.createdClients = append(f.createdClients, in)
	return &store.Client{ID: uuid.New(), OrganizationID: orgID, Name: in.Name, Tags: in.Tags}, nil
}

func (f *fakeRepo) ListClientTags(_ context.Context, _ uuid.UUID) ([]string, error) {
	return []string{"vip"}, nil
}

func (f *fakeRepo) ListDueFollowUps(_ context.Context, _ uuid.UUID, today time.Time) ([]store.FollowUp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dueQueries = append(f.dueQueries, today)
	return nil, nil
}

func (f *fakeRepo) setTimezone(userID uuid.UUID, tz string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID].profile.Timezone = tz
}

func (f *fakeRepo) SoftDeleteClient(_ context.Context, _, _ uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("delete_client")
	return true, nil
}

func (f *fakeRepo) addItem(orgID uuid.UUID, asking, reserve float64) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.items[id] = store.InventoryItem{
		ID: id, OrganizationID: orgID, Title: "Untitled", Status: store.InventoryAvailable, Source: store.SourceOwned,
		AskingPrice: &asking, ReservePrice: &reserve,
	}
	return id
}

// setItemArtist sets the artist and medium of an item added with addItem.
func (f *fakeRepo) setItemArtist(id uuid.UUID, artist, medium string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.items[id]
	it.Artist, it.Medium = &artist, &medium
	f.items[id] = it
}

func (f *fakeRepo) ListInventoryArtists(_ context.Context, orgID uuid.UUID) ([]string, error) {
	return f.distinctItemValues(orgID, func(it store.InventoryItem) *string { return it.Artist }), nil
}

func (f *fakeRepo) ListInventoryMediums(_ context.Context, orgID uuid.UUID) ([]string, error) {
	return f.distinctItemValues(orgID, func(it store.InventoryItem) *string { return it.Medium }), nil
}

func (f *fakeRepo) distinctItemValues(orgID uuid.UUID, field func(store.InventoryItem) *string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, it := range f.items {
		if v := field(it); it.OrganizationID == orgID && v != nil && *v != "" && !slices.Contains(out, *v) {
			out = append(out, *v)
		}
	}
	slices.Sort(out)
	return out
}

func (f *fakeRepo) GetInventoryItem(_ context.Context, orgID, id uuid.UUID) (*store.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok || it.OrganizationID != orgID {
		return nil, nil
	}
	return &it, nil
}

func (f *fakeRepo) ListInventory(_ context.Context, orgID uuid.UUID, _ store.InventoryFilter) ([]store.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.InventoryItem
	for _, it := range f.items {
		if it.OrganizationID == orgID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeRepo) ImportInventory(_ context.Context, _ uuid.UUID, rows []store.InventoryInput) (int, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("import_inventory")
	f.importedItems = append(f.importedItems, rows...)
	return len(rows), nil, nil
}

func (f *fakeRepo) GetMember(_ context.Context, orgID, memberID uuid.UUID) (*store.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[memberID]
	if !ok || m.OrganizationID == nil || *m.OrganizationID != orgID {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (f *fakeRepo) UpdateMemberPermissions(_ context.Context, _, memberID uuid.UUID, perms access.Permissions) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("update_member_permissions")
	f.permUpdates[memberID] = perms
	return true, nil
}

func (f *fakeRepo) DetachMember(_ context.Context, _, memberID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("detach_member")
	delete(f.members, memberID)
	return true, nil
}

func (f *fakeRepo) SetUserRole(_ context.Context, userID uuid.UUID, role access.Role) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("set_user_role")
	if _, ok := f.users[userID]; !ok {
		return false, nil
	}
	f.roleChanges[userID] = role
	return true, nil
}

func (f *fakeRepo) SetSubscriptionStatus(_ context.Context, orgID uuid.UUID, status billing.Status) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("set_subscription_status")
	acct, ok := f.accounts[orgID]
	if !ok {
		return false, nil
	}
	acct.Status = status
	return true, nil
}

func (f *fakeRepo) CreateInvitation(_ context.Context, orgID uuid.UUID, email, tokenHash string, perms access.Permissions, invitedBy uuid.UUID) (*store.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("create_invitation")
	inv := &store.Invitation{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Email:          email,
		Permissions:    perms,
		InvitedBy:      &invitedBy,
		Status:         store.InvitationPending,
		ExpiresAt:      f.clock.now().Add(7 * 24 * time.Hour),
		CreatedAt:      f.clock.now(),
	}
	f.invitations[tokenHash] = inv
	cp := *inv
	return &cp, nil
}

func (f *fakeRepo) GetPendingInvitationByTokenHash(_ context.Context, tokenHash string) (*store.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invitations[tokenHash]
	if !ok || inv.Status != store.InvitationPending {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeRepo) ExpireInvitation(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, id)
	for _, inv := range f.invitations {
		if inv.ID == id {
			inv.Status = store.InvitationExpired
		}
	}
	return nil
}

func (f *fakeRepo) AcceptInvitation(_ context.Context, inv *store.Invitation, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, stored := range f.invitations {
		if stored.ID != inv.ID {
			continue
		}
		if stored.Status != store.InvitationPending {
			return false, nil
		}
		f.write("accept_invitation")
		stored.Status = store.InvitationAccepted
		u := f.users[userID]
		u.orgID = inv.OrganizationID
		orgID := inv.OrganizationID
		u.profile.OrganizationID = &orgID
		role := string(access.RoleUser)
		perms := inv.Permissions
		u.lookup = access.Present(access.RoleFields{Role: &role, Permissions: &perms})
		return true, nil
	}
	return false, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Invitation
	err  error
}

func (n *recordingNotifier) SendInvitation(_ context.Context, msg notify.Invitation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

type harness struct {
	clock *testClock
	repo  *fakeRepo
	svc   *Service
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	repo := newFakeRepo(clock)
	gate := billing.NewGate(repo, billing.WithClock(clock.now), billing.WithLogger(quietLogger()))
	resolver := access.NewResolver(repo, access.WithLogger(quietLogger()))
	opts = append([]Option{WithLogger(quietLogger()), WithBaseURL("https://app.example.com/")}, opts...)
	return &harness{clock: clock, repo: repo, svc: New(repo, gate, resolver, opts...)}
}

// activeOrg returns an organization with a paid subscription.
func (h *harness) activeOrg() uuid.UUID {
	return h.repo.addOrg(billing.StatusActive, nil)
}

func permsPtr(p access.Permissions) *access.Permissions { return &p }
