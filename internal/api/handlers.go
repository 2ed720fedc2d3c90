// ABOUTME: Shared helpers for the chi handlers: caller identity, path IDs, JSON bodies and dates.
// ABOUTME: Every handler delegates authorization to crm.Service and reports errors through writeError.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// dateLayout is the wire format for calendar dates (follow-ups, sale dates).
const dateLayout = "2006-01-02"

// caller returns the authenticated user or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := userIDFrom(r.Context())
	if !ok {
		writeError(w, r, errNoSession)
		return uuid.Nil, false
	}
	return id, true
}

// pathID parses the named chi URL parameter as a UUID or writes a 400.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		badRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody decodes the JSON request body into v or writes a 400. Unknown
// fields are rejected so typos in field names do not silently drop data.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large", Code: codeInvalid})
			return false
		}
		badRequest(w, "invalid request body")
		return false
	}
	return true
}

// parseDate parses an optional YYYY-MM-DD string. Blank means nil.
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// queryInt reads a non-negative integer query parameter, returning def when
// absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}

// noContent writes a 204.
func noContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// nonNil keeps empty lists serializing as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
