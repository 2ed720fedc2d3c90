// ABOUTME: HTTP handlers for client notes and follow-ups, including the Today view.
// ABOUTME: Follow-up dates travel as YYYY-MM-DD strings.
package api

import (
	"net/http"

	"github.com/patroncollective/patron/internal/crm"
)

// createNoteBody is the JSON request body for POST /clients/{id}/notes.
type createNoteBody struct {
	Content      string `json:"content"`
	FollowUpDate string `json:"follow_up_date,omitempty"`
}

// updateNoteBody is the JSON request body for PATCH /notes/{id}.
type updateNoteBody struct {
	Content string `json:"content"`
}

// rescheduleBody is the JSON request body for POST /notes/{id}/reschedule.
type rescheduleBody struct {
	FollowUpDate string `json:"follow_up_date"`
}

// listClientNotesHandler handles GET /api/v1/clients/{id}/notes.
func (srv *Server) listClientNotesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	clientID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	notes, err := srv.svc.ListClientNotes(r.Context(), userID, clientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(notes))
}

// createNoteHandler handles POST /api/v1/clients/{id}/notes.
func (srv *Server) createNoteHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	clientID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req createNoteBody
	if !decodeBody(w, r, &req) {
		return
	}
	followUp, err := parseDate(req.FollowUpDate)
	if err != nil {
		writeError(w, r, &crm.ValidationError{Field: "follow_up_date", Message: "Use the format YYYY-MM-DD"})
		return
	}
	n, err := srv.svc.CreateNote(r.Context(), userID, clientID, req.Content, followUp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// updateNoteHandler handles PATCH /api/v1/notes/{id}.
func (srv *Server) updateNoteHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateNoteBody
	if !decodeBody(w, r, &req) {
		return
	}
	n, err := srv.svc.UpdateNote(r.Context(), userID, id, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// deleteNoteHandler handles DELETE /api/v1/notes/{id}.
func (srv *Server) deleteNoteHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := srv.svc.DeleteNote(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	noContent(w)
}

// completeFollowUpHandler handles POST /api/v1/notes/{id}/done.
func (srv *Server) completeFollowUpHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := srv.svc.CompleteFollowUp(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	noContent(w)
}

// rescheduleFollowUpHandler handles POST /api/v1/notes/{id}/reschedule.
func (srv *Server) rescheduleFollowUpHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req rescheduleBody
	if !decodeBody(w, r, &req) {
		return
	}
	date, err := parseDate(req.FollowUpDate)
	if err != nil || date == nil {
		writeError(w, r, &crm.ValidationError{Field: "follow_up_date", Message: "Use the format YYYY-MM-DD"})
		return
	}
	if err := srv.svc.RescheduleFollowUp(r.Context(), userID, id, *date); err != nil {
		writeError(w, r, err)
		return
	}
	noContent(w)
}

// todayHandler handles GET /api/v1/today: overdue and due-today follow-ups.
func (srv *Server) todayHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	due, err := srv.svc.Today(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(due))
}
