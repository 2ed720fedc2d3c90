// ABOUTME: HTTP handlers for onboarding, organization settings, the caller's profile and data export.
// ABOUTME: Creating an organization is the only route open to users who have not onboarded yet.
package api

import (
	"net/http"

	"github.com/patroncollective/patron/internal/store"
)

// organizationBody is the JSON request body for creating or renaming an organization.
type organizationBody struct {
	Name string `json:"name"`
}

// createOrganizationHandler handles POST /api/v1/onboarding/organization.
// The caller becomes the admin of a new organization on a trial.
func (srv *Server) createOrganizationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	var req organizationBody
	if !decodeBody(w, r, &req) {
		return
	}
	org, err := srv.svc.CreateOrganization(r.Context(), userID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

// getOrganizationHandler handles GET /api/v1/organization.
func (srv *Server) getOrganizationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	org, err := srv.svc.GetOrganization(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// updateOrganizationHandler handles PATCH /api/v1/organization.
func (srv *Server) updateOrganizationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	var req organizationBody
	if !decodeBody(w, r, &req) {
		return
	}
	org, err := srv.svc.UpdateOrganization(r.Context(), userID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// updateProfileHandler handles PATCH /api/v1/profile.
func (srv *Server) updateProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	var req store.ProfileInput
	if !decodeBody(w, r, &req) {
		return
	}
	if err := srv.svc.UpdateProfile(r.Context(), userID, req); err != nil {
		writeError(w, r, err)
		return
	}
	noContent(w)
}

// subscriptionHandler handles GET /api/v1/subscription.
func (srv *Server) subscriptionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	sum, err := srv.svc.Subscription(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// exportHandler handles GET /api/v1/export. The dump is sent as an
// attachment so browsers save it rather than render it.
func (srv *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	exp, err := srv.svc.Export(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="patron-export.json"`)
	writeJSON(w, http.StatusOK, exp)
}
