// ABOUTME: HTTP handlers for clients: list, search, CRUD, tags and bulk import.
// ABOUTME: Routes use chi; the service applies the subscription gate and permission guards.
package api

import (
	"net/http"

	"github.com/patroncollective/patron/internal/crm"
	"github.com/patroncollective/patron/internal/store"
)

// importClientsBody is the JSON request body for POST /clients/import.
type importClientsBody struct {
	Rows []crm.ClientImportRow `json:"rows"`
}

// listClientsHandler handles GET /api/v1/clients?search=&tag=&limit=&offset=.
func (srv *Server) listClientsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	clients, err := srv.svc.ListClients(r.Context(), userID, store.ClientFilter{
		Search: q.Get("search"),
		Tag:    q.Get("tag"),
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(clients))
}

// createClientHandler handles POST /api/v1/clients.
func (srv *Server) createClientHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	var req store.ClientInput
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := srv.svc.CreateClient(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// getClientHandler handles GET /api/v1/clients/{id}.
func (srv *Server) getClientHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := srv.svc.GetClient(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// updateClientHandler handles PATCH /api/v1/clients/{id}. The body replaces
// every writable field.
func (srv *Server) updateClientHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req store.ClientInput
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := srv.svc.UpdateClient(r.Context(), userID, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// deleteClientHandler handles DELETE /api/v1/clients/{id}.
func (srv *Server) deleteClientHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := srv.svc.DeleteClient(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	noContent(w)
}

// listClientTagsHandler handles GET /api/v1/clients/tags.
func (srv *Server) listClientTagsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	tags, err := srv.svc.ListClientTags(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tags))
}

// importClientsHandler handles POST /api/v1/clients/import.
func (srv *Server) importClientsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	var req importClientsBody
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := srv.svc.ImportClients(r.Context(), userID, req.Rows)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
