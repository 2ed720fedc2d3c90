// ABOUTME: HTTP handlers for the artwork inventory: list, CRUD, bulk import and autocomplete values.
// ABOUTME: Price fields are removed by the service for callers without pricing access.
package api

import (
	"net/http"

	"github.com/patroncollective/patron/internal/crm"
	"github.com/patroncollective/patron/internal/store"
)

// importInventoryBody is the JSON request body for POST /inventory/import.
type importInventoryBody struct {
	Rows []crm.InventoryImportRow `json:"rows"`
}

// listInventoryHandler handles GET /api/v1/inventory?search=&status=.
func (srv *Server) listInventoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	items, err := srv.svc.ListInventory(r.Context(), userID, store.InventoryFilter{
		Search: q.Get("search"),
		Status: q.Get("status"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

// listInventoryArtistsHandler handles GET /api/v1/inventory/artists.
func (srv *Server) listInventoryArtistsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	artists, err := srv.svc.ListInventoryArtists(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(artists))
}

// listInventoryMediumsHandler handles GET /api/v1/inventory/mediums.
func (srv *Server) listInventoryMediumsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	mediums, err := srv.svc.ListInventoryMediums(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(mediums))
}

// createInventoryHandler handles POST /api/v1/inventory.
func (srv *Server) createInventoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	var req store.InventoryInput
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := srv.svc.CreateInventoryItem(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// getInventoryHandler handles GET /api/v1/inventory/{id}.
func (srv *Server) getInventoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := srv.svc.GetInventoryItem(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// updateInventoryHandler handles PATCH /api/v1/inventory/{id}.
func (srv *Server) updateInventoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req store.InventoryInput
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := srv.svc.UpdateInventoryItem(r.Context(), userID, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// deleteInventoryHandler handles DELETE /api/v1/inventory/{id}.
func (srv *Server) deleteInventoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := srv.svc.DeleteInventoryItem(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	noContent(w)
}

// importInventoryHandler handles POST /api/v1/inventory/import.
func (srv *Server) importInventoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	var req importInventoryBody
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := srv.svc.ImportInventory(r.Context(), userID, req.Rows)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
