// ABOUTME: HTTP handlers for enquiries and sales recorded against clients.
// ABOUTME: Sale dates travel as YYYY-MM-DD strings; a missing date means today.
package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/crm"
	"github.com/patroncollective/patron/internal/store"
)

// saleBody is the JSON request body for creating or updating a sale.
type saleBody struct {
	ArtworkName *string  `json:"artwork_name,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
	SaleDate    string   `json:"sale_date,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
}

func (b saleBody) input() (store.SaleInput, error) {
	date, err := parseDate(b.SaleDate)
	if err != nil {
		return store.SaleInput{}, &crm.ValidationError{Field: "sale_date", Message: "Use the format YYYY-MM-DD"}
	}
	return store.SaleInput{
		ArtworkName: b.ArtworkName,
		Amount:      b.Amount,
		SaleDate:    date,
		Notes:       b.Notes,
	}, nil
}

// listEnquiriesHandler handles GET /api/v1/enquiries?search=.
func (srv *Server) listEnquiriesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	list, err := srv.svc.ListEnquiries(r.Context(), userID, uuid.NullUUID{}, r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

// listClientEnquiriesHandler handles GET /api/v1/clients/{id}/enquiries.
func (srv *Server) listClientEnquiriesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	clientID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	list, err := srv.svc.ListEnquiries(r.Context(), userID, uuid.NullUUID{UUID: clientID, Valid: true}, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

// createEnquiryHandler handles POST /api/v1/clients/{id}/enquiries.
func (srv *Server) createEnquiryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	clientID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req store.EnquiryInput
	if !decodeBody(w, r, &req) {
		return
	}
	e, err := srv.svc.CreateEnquiry(r.Context(), userID, clientID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// updateEnquiryHandler handles PATCH /api/v1/enquiries/{id}.
func (srv *Server) updateEnquiryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req store.EnquiryInput
	if !decodeBody(w, r, &req) {
		return
	}
	e, err := srv.svc.UpdateEnquiry(r.Context(), userID, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// deleteEnquiryHandler handles DELETE /api/v1/enquiries/{id}.
func (srv *Server) deleteEnquiryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := srv.svc.DeleteEnquiry(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	noContent(w)
}

// listClientSalesHandler handles GET /api/v1/clients/{id}/sales.
func (srv *Server) listClientSalesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	clientID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	sales, err := srv.svc.ListClientSales(r.Context(), userID, clientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sales))
}

// createSaleHandler handles POST /api/v1/clients/{id}/sales.
func (srv *Server) createSaleHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	clientID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req saleBody
	if !decodeBody(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := srv.svc.CreateSale(r.Context(), userID, clientID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// updateSaleHandler handles PATCH /api/v1/sales/{id}.
func (srv *Server) updateSaleHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req saleBody
	if !decodeBody(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := srv.svc.UpdateSale(r.Context(), userID, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// deleteSaleHandler handles DELETE /api/v1/sales/{id}.
func (srv *Server) deleteSaleHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := srv.svc.DeleteSale(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	noContent(w)
}
