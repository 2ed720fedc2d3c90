// ABOUTME: Handler tests for the authorization outcomes on CRM routes: onboarding, subscription and permissions.
// ABOUTME: Also covers health checks and path parameter validation.
package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patroncollective/patron/internal/access"
	"github.com/patroncollective/patron/internal/billing"
)

const newClientBody = `{"name":"Mara Lind","tags":["collector"]}`

func TestCreateClient_WithoutOrganization(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	u := e.accounts.add("new@gallery.test")

	resp := e.do(t, http.MethodPost, "/api/v1/clients", sessionFor(t, u), newClientBody)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decodeError(t, resp)
	assert.Equal(t, codeOnboardingRequired, body.Code)
	assert.Equal(t, "/onboarding", body.Redirect)
	assert.Zero(t, e.repo.clientCount())
}

func TestCreateClient_ExpiredTrial(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	u := e.accounts.add("owner@gallery.test")
	ended := time.Now().Add(-24 * time.Hour)
	org := e.repo.addOrg(billing.StatusTrialing, &ended)
	e.repo.join(u.ID, org, access.Present(access.RoleFields{Role: strPtr("admin")}))

	resp := e.do(t, http.MethodPost, "/api/v1/clients", sessionFor(t, u), newClientBody)
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, codeSubscriptionExpired, decodeError(t, resp).Code)
	assert.Zero(t, e.repo.clientCount())

	// Reads stay open after the trial ends.
	resp = e.do(t, http.MethodGet, "/api/v1/clients", sessionFor(t, u), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateClient_ReadOnlyUser(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	u := e.accounts.add("viewer@gallery.test")
	org := e.repo.addOrg(billing.StatusActive, nil)
	e.repo.join(u.ID, org, access.Present(access.RoleFields{
		Role:        strPtr("user"),
		Permissions: &access.Permissions{ReadOnly: true},
	}))

	resp := e.do(t, http.MethodPost, "/api/v1/clients", sessionFor(t, u), newClientBody)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	body := decodeError(t, resp)
	assert.Equal(t, codeForbidden, body.Code)
	assert.Equal(t, "mutate", body.Capability)
	assert.Zero(t, e.repo.clientCount())
}

func TestCreateClient_Allowed(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	u := e.accounts.add("owner@gallery.test")
	org := e.repo.addOrg(billing.StatusActive, nil)
	e.repo.join(u.ID, org, access.Present(access.RoleFields{Role: strPtr("admin")}))
	session := sessionFor(t, u)

	resp := e.do(t, http.MethodGet, "/api/v1/clients", session, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))

	resp = e.do(t, http.MethodPost, "/api/v1/clients", session, newClientBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, e.repo.clientCount())

	resp = e.do(t, http.MethodPost, "/api/v1/clients", session, `{"name":"   "}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeError(t, resp)
	assert.Equal(t, codeInvalid, body.Code)
	assert.Equal(t, "name", body.Field)
}

func TestCreateClient_DegradedLookupFailsOpen(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	u := e.accounts.add("owner@gallery.test")
	org := e.repo.addOrg(billing.StatusActive, nil)
	e.repo.join(u.ID, org, access.Failed(errors.New("column \"permissions\" does not exist")))

	resp := e.do(t, http.MethodPost, "/api/v1/clients", sessionFor(t, u), newClientBody)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestInventoryAutocompleteRoutes(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	u := e.accounts.add("viewer@gallery.test")
	org := e.repo.addOrg(billing.StatusExpired, nil)
	e.repo.join(u.ID, org, access.Present(access.RoleFields{
		Role:        strPtr("user"),
		Permissions: &access.Permissions{ReadOnly: true},
	}))
	session := sessionFor(t, u)

	resp := e.do(t, http.MethodGet, "/api/v1/inventory/artists", session, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))

	resp = e.do(t, http.MethodGet, "/api/v1/inventory/mediums", session, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `["Etching","Oil on canvas"]`, string(raw))
}

func TestAdminSetSubscription(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	owner := e.accounts.add("owner@gallery.test")
	staff := e.accounts.add("staff@patron.test")
	ended := time.Now().Add(-time.Hour)
	lapsed := e.repo.addOrg(billing.StatusTrialing, &ended)
	e.repo.join(owner.ID, lapsed, access.Present(access.RoleFields{Role: strPtr("admin")}))
	e.repo.join(staff.ID, e.repo.addOrg(billing.StatusActive, nil), access.Present(access.RoleFields{
		Role:         strPtr("superadmin"),
		IsSuperadmin: boolPtr(true),
	}))
	path := "/api/v1/admin/orgs/" + lapsed.String() + "/subscription"

	resp := e.do(t, http.MethodPatch, path, sessionFor(t, owner), `{"status":"active"}`)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "superadmin", decodeError(t, resp).Capability)

	resp = e.do(t, http.MethodPatch, path, sessionFor(t, staff), `{"status":"lifetime"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "status", decodeError(t, resp).Field)

	resp = e.do(t, http.MethodPatch, path, sessionFor(t, staff), `{"status":"active"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/v1/clients", sessionFor(t, owner), newClientBody)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHandlers_BodyAndPathValidation(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	u := e.accounts.add("owner@gallery.test")
	org := e.repo.addOrg(billing.StatusActive, nil)
	e.repo.join(u.ID, org, access.Present(access.RoleFields{Role: strPtr("admin")}))
	session := sessionFor(t, u)

	resp := e.do(t, http.MethodGet, "/api/v1/clients/not-a-uuid", session, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/v1/clients", session, `{"name":"Mara","shoe_size":44}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/v1/clients", session, `{"name":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, e.repo.clientCount())
}

func TestHandlers_CSRFHeaderRequired(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	u := e.accounts.add("owner@gallery.test")
	org := e.repo.addOrg(billing.StatusActive, nil)
	e.repo.join(u.ID, org, access.Present(access.RoleFields{Role: strPtr("admin")}))

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, e.ts.URL+"/api/v1/clients", strings.NewReader(newClientBody))
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sessionFor(t, u)})
	resp, err := e.ts.Client().Do(req) //nolint:gosec // G704 false positive: ts.URL is httptest.Server, not user input
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, e.repo.clientCount())
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	e.accounts.pingErr = errors.New("connection refused")
	resp = e.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
