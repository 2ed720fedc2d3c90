// ABOUTME: In-memory AccountStore and crm.Repository fakes for handler tests that need no database.
// ABOUTME: newTestEnv wires them into a real Server, crm.Service, gate and resolver.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/patroncollective/patron/internal/access"
	"github.com/patroncollective/patron/internal/auth"
	"github.com/patroncollective/patron/internal/billing"
	"github.com/patroncollective/patron/internal/config"
	"github.com/patroncollective/patron/internal/crm"
	"github.com/patroncollective/patron/internal/store"
)

const testSecret = "test-secret-at-least-32-bytes-long!!"

type enqueuedJob struct {
	Queue   string
	Payload json.RawMessage
	LockKey string
}

// fakeAccounts implements AccountStore.
type fakeAccounts struct {
	mu         sync.Mutex
	users      map[uuid.UUID]*store.User
	identities map[string]uuid.UUID
	jobs       []enqueuedJob
	locks      map[string]bool
	getErr     error
	pingErr    error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		users:      make(map[uuid.UUID]*store.User),
		identities: make(map[string]uuid.UUID),
		locks:      make(map[string]bool),
	}
}

func (f *fakeAccounts) add(email string) *store.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &store.User{ID: uuid.New(), Email: email, DisplayName: email}
	f.users[u.ID] = u
	return u
}

func (f *fakeAccounts) CreateUserWithProfile(_ context.Context, email, displayName, passwordHash string, hashVersion int) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return nil, &pgconn.PgError{Code: uniqueViolation}
		}
	}
	u := &store.User{
		ID:                  uuid.New(),
		Email:               email,
		DisplayName:         displayName,
		PasswordHash:        passwordHash,
		PasswordHashVersion: hashVersion,
		CreatedAt:           time.Now(),
	}
	f.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (f *fakeAccounts) GetUserByID(_ context.Context, id uuid.UUID) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeAccounts) GetUserByEmail(_ context.Context, email string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) UpdateLastLogin(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		now := time.Now()
		u.LastLoginAt = &now
	}
	return nil
}

func (f *fakeAccounts) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string, version int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.PasswordHash = hash
		u.PasswordHashVersion = version
	}
	return nil
}

func (f *fakeAccounts) IncrementTokenVersion(_ context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return 0, errors.New("no such user")
	}
	u.TokenVersion++
	return u.TokenVersion, nil
}

func (f *fakeAccounts) UpsertUserIdentity(_ context.Context, userID uuid.UUID, provider, providerUserID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identities[provider+"|"+providerUserID] = userID
	return nil
}

func (f *fakeAccounts) GetUserByProviderID(_ context.Context, provider, providerUserID string) (*store.User, error) {
	f.mu.Lock()
	id, ok := f.identities[provider+"|"+providerUserID]
	f.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return f.GetUserByID(context.Background(), id)
}

func (f *fakeAccounts) EnqueueJob(_ context.Context, queue string, payload json.RawMessage, lockKey string, _ int) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks[lockKey] {
		return uuid.Nil, nil
	}
	f.locks[lockKey] = true
	f.jobs = append(f.jobs, enqueuedJob{Queue: queue, Payload: payload, LockKey: lockKey})
	return uuid.New(), nil
}

func (f *fakeAccounts) Ping(context.Context) error { return f.pingErr }

// fakeMember is one profile known to fakeRepo.
type fakeMember struct {
	orgID  uuid.UUID
	lookup access.RoleLookup
}

// fakeRepo implements the parts of crm.Repository, access.ProfileSource and
// billing.Source that the handler tests reach. Anything else panics through
// the nil embedded interface.
type fakeRepo struct {
	crm.Repository

	mu       sync.Mutex
	members  map[uuid.UUID]fakeMember
	accounts map[uuid.UUID]*billing.Account
	clients  []store.Client
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		members:  make(map[uuid.UUID]fakeMember),
		accounts: make(map[uuid.UUID]*billing.Account),
	}
}

// addOrg creates an organization with the given subscription state.
func (f *fakeRepo) addOrg(status billing.Status, trialEnds *time.Time) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.accounts[id] = &billing.Account{OrganizationID: id, Status: status, TrialEndsAt: trialEnds}
	return id
}

func (f *fakeRepo) join(userID, orgID uuid.UUID, lookup access.RoleLookup) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[userID] = fakeMember{orgID: orgID, lookup: lookup}
}

func (f *fakeRepo) ProfileOrganization(_ context.Context, userID uuid.UUID) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[userID]
	if !ok || m.orgID == uuid.Nil {
		return uuid.Nil, false, nil
	}
	return m.orgID, true, nil
}

func (f *fakeRepo) ProfileRoleFields(_ context.Context, userID uuid.UUID) access.RoleLookup {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[userID]
	if !ok {
		return access.Absent()
	}
	return m.lookup
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
	p := &store.Profile{ID: userID, Timezone: "UTC"}
	if m, ok := f.members[userID]; ok && m.orgID != uuid.Nil {
		org := m.orgID
		p.OrganizationID = &org
	}
	return p, nil
}

func (f *fakeRepo) GetOrganization(_ context.Context, id uuid.UUID) (*store.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, nil
	}
	return &store.Organization{ID: id, Name: "Gallery", SubscriptionStatus: string(a.Status), TrialEndsAt: a.TrialEndsAt}, nil
}

func (f *fakeRepo) CreateClient(_ context.Context, orgID uuid.UUID, in store.ClientInput) (*store.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := store.Client{ID: uuid.New(), OrganizationID: orgID, Name: in.Name, Tags: in.Tags}
	f.clients = append(f.clients, c)
	return &c, nil
}

func (f *fakeRepo) ListClients(_ context.Context, orgID uuid.UUID, _ store.ClientFilter) ([]store.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Client
	for _, c := range f.clients {
		if c.OrganizationID == orgID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListInventoryArtists(_ context.Context, _ uuid.UUID) ([]string, error) {
	return nil, nil
}

func (f *fakeRepo) ListInventoryMediums(_ context.Context, _ uuid.UUID) ([]string, error) {
	return []string{"Etching", "Oil on canvas"}, nil
}

func (f *fakeRepo) SetSubscriptionStatus(_ context.Context, orgID uuid.UUID, status billing.Status) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[orgID]
	if !ok {
		return false, nil
	}
	a.Status = status
	return true, nil
}

func (f *fakeRepo) clientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// testEnv bundles a running server and its fakes.
type testEnv struct {
	srv      *Server
	ts       *httptest.Server
	accounts *fakeAccounts
	repo     *fakeRepo
}

func testConfig() *config.Config {
	return &config.Config{ //nolint:exhaustruct,gosec // test: only relevant fields set; G101 false positive
		JWTSecret:           testSecret,
		Argon2MaxConcurrent: 2,
		ExternalURL:         "http://localhost:3000",
		SessionMaxAge:       time.Hour,
		CronSecret:          "cron-secret",
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	accounts := newFakeAccounts()
	repo := newFakeRepo()
	svc := crm.New(repo, billing.NewGate(repo), access.NewResolver(repo))
	srv, err := NewServer(accounts, svc, testConfig())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, ts: ts, accounts: accounts, repo: repo}
}

// sessionFor issues a session token for u at its current token version.
func sessionFor(t *testing.T, u *store.User) string {
	t.Helper()
	tok, err := auth.IssueSessionToken([]byte(testSecret), u.ID, u.TokenVersion, time.Hour)
	if err != nil {
		t.Fatalf("IssueSessionToken: %v", err)
	}
	return tok
}

// do sends a request with an optional session and JSON body. State-changing
// requests carry the CSRF header.
func (e *testEnv) do(t *testing.T, method, path, session, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, e.ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: session})
		req.Header.Set("X-Requested-By", csrfHeaderValue)
	}
	resp, err := e.ts.Client().Do(req) //nolint:gosec // G704 false positive: ts.URL is httptest.Server, not user input
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func cookieValue(resp *http.Response, name string) string {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
