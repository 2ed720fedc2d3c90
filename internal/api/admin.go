// ABOUTME: HTTP handlers for the superadmin console: organizations, members, roles and subscription overrides.
// ABOUTME: The superadmin guard runs in the service; organization admins are refused.
package api

import (
	"net/http"
)

// changeRoleBody is the JSON request body for PATCH /admin/users/{id}/role.
type changeRoleBody struct {
	Role string `json:"role"`
}

// setSubscriptionBody is the JSON request body for PATCH /admin/orgs/{id}/subscription.
type setSubscriptionBody struct {
	Status string `json:"status"`
}

// adminListOrgsHandler handles GET /api/v1/admin/orgs.
func (srv *Server) adminListOrgsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	orgs, err := srv.svc.ListAllOrganizations(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(orgs))
}

// adminListOrgMembersHandler handles GET /api/v1/admin/orgs/{id}/members.
func (srv *Server) adminListOrgMembersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	orgID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	members, err := srv.svc.ListOrganizationMembers(r.Context(), userID, orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(members))
}

// adminChangeRoleHandler handles PATCH /api/v1/admin/users/{id}/role.
func (srv *Server) adminChangeRoleHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	targetID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req changeRoleBody
	if !decodeBody(w, r, &req) {
		return
	}
	if err := srv.svc.ChangeUserRole(r.Context(), userID, targetID, req.Role); err != nil {
		writeError(w, r, err)
		return
	}
	noContent(w)
}

// adminSetSubscriptionHandler handles PATCH /api/v1/admin/orgs/{id}/subscription.
func (srv *Server) adminSetSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	orgID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req setSubscriptionBody
	if !decodeBody(w, r, &req) {
		return
	}
	if err := srv.svc.SetOrganizationSubscription(r.Context(), userID, orgID, req.Status); err != nil {
		writeError(w, r, err)
		return
	}
	noContent(w)
}
