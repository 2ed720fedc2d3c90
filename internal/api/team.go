// ABOUTME: HTTP handlers for team management: members, permission grants and invitations.
// ABOUTME: Admin checks happen in the service; acceptance is open to any signed-in user.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/patroncollective/patron/internal/access"
)

// inviteBody is the JSON request body for POST /team/invitations.
type inviteBody struct {
	Email       string             `json:"email"`
	Permissions access.Permissions `json:"permissions"`
}

// permissionsBody is the JSON request body for PATCH /team/members/{id}/permissions.
type permissionsBody struct {
	Permissions access.Permissions `json:"permissions"`
}

// listMembersHandler handles GET /api/v1/team/members.
func (srv *Server) listMembersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	members, err := srv.svc.ListMembers(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(members))
}

// updateMemberPermissionsHandler handles PATCH /api/v1/team/members/{id}/permissions.
func (srv *Server) updateMemberPermissionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	memberID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req permissionsBody
	if !decodeBody(w, r, &req) {
		return
	}
	if err := srv.svc.UpdateMemberPermissions(r.Context(), userID, memberID, req.Permissions); err != nil {
		writeError(w, r, err)
		return
	}
	noContent(w)
}

// removeMemberHandler handles DELETE /api/v1/team/members/{id}.
func (srv *Server) removeMemberHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	memberID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := srv.svc.RemoveMember(r.Context(), userID, memberID); err != nil {
		writeError(w, r, err)
		return
	}
	noContent(w)
}

// listInvitationsHandler handles GET /api/v1/team/invitations.
func (srv *Server) listInvitationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	invs, err := srv.svc.ListInvitations(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(invs))
}

// createInvitationHandler handles POST /api/v1/team/invitations. The
// response carries the invite URL once, for sharing when email is off.
func (srv *Server) createInvitationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	var req inviteBody
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := srv.svc.InviteUser(r.Context(), userID, req.Email, req.Permissions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// cancelInvitationHandler handles DELETE /api/v1/team/invitations/{id}.
func (srv *Server) cancelInvitationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := srv.svc.CancelInvitation(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	noContent(w)
}

// acceptInvitationHandler handles POST /api/v1/invitations/{token}/accept.
func (srv *Server) acceptInvitationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	token := chi.URLParam(r, "token")
	if token == "" {
		badRequest(w, "invitation token required")
		return
	}
	inv, err := srv.svc.AcceptInvitation(r.Context(), userID, token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
