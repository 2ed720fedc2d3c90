// ABOUTME: Maps service errors to HTTP status codes and JSON bodies at the request boundary.
// ABOUTME: Onboarding, permission and subscription failures each carry a distinct code the client keys on.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/patroncollective/patron/internal/access"
	"github.com/patroncollective/patron/internal/billing"
	"github.com/patroncollective/patron/internal/crm"
)

// Error codes returned in the "code" field.
const (
	codeUnauthorized        = "unauthorized"
	codeOnboardingRequired  = "onboarding_required"
	codeForbidden           = "forbidden"
	codeSubscriptionExpired = "subscription_expired"
	codeNotFound            = "not_found"
	codeInvalid             = "invalid"
	codeInvalidInvitation   = "invalid_invitation"
	codeInternal            = "internal"
)

// onboardingPath is where the client sends users without an organization.
const onboardingPath = "/onboarding"

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	Redirect   string `json:"redirect,omitempty"`
	Capability string `json:"capability,omitempty"`
	Field      string `json:"field,omitempty"`
}

// classify returns the status and body for err. Unrecognized errors are
// internal; their text is never sent to the client.
func classify(err error) (int, errorBody) {
	if d, ok := access.IsDenied(err); ok {
		return http.StatusForbidden, errorBody{Error: d.Error(), Code: codeForbidden, Capability: string(d.Capability)}
	}
	if v, ok := crm.IsValidation(err); ok {
		return http.StatusBadRequest, errorBody{Error: v.Message, Code: codeInvalid, Field: v.Field}
	}
	switch {
	case errors.Is(err, errNoSession), errors.Is(err, access.ErrUnauthenticated):
		return http.StatusUnauthorized, errorBody{Error: "authentication required", Code: codeUnauthorized}
	case errors.Is(err, access.ErrOnboardingIncomplete):
		return http.StatusConflict, errorBody{
			Error:    "Complete onboarding to continue.",
			Code:     codeOnboardingRequired,
			Redirect: onboardingPath,
		}
	case errors.Is(err, billing.ErrSubscriptionExpired):
		return http.StatusPaymentRequired, errorBody{Error: err.Error(), Code: codeSubscriptionExpired}
	case errors.Is(err, crm.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "not found", Code: codeNotFound}
	case errors.Is(err, crm.ErrInvitationInvalid), errors.Is(err, crm.ErrInvitationExpired):
		return http.StatusBadRequest, errorBody{Error: err.Error(), Code: codeInvalidInvitation}
	}
	return http.StatusInternalServerError, errorBody{Error: "internal error", Code: codeInternal}
}

// writeError writes the mapped response for err and logs internal failures.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, body)
}

// badRequest writes a 400 for malformed input detected in the handler.
func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: codeInvalid})
}
