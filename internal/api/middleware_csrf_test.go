// ABOUTME: Tests for the CSRF header and origin middleware.
// ABOUTME: Cookie-authenticated state-changing requests require X-Requested-By: Patron.
package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCSRFProtect(t *testing.T) {
	t.Parallel()
	handler := csrfProtect([]string{"https://app.patron.test"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		method string
		cookie bool
		header string
		origin string
		want   int
	}{
		{"cookie POST without header", http.MethodPost, true, "", "", http.StatusForbidden},
		{"cookie POST with wrong header", http.MethodPost, true, "Other-App", "", http.StatusForbidden},
		{"cookie POST with header", http.MethodPost, true, csrfHeaderValue, "", http.StatusOK},
		{"cookie POST from allowed origin", http.MethodPost, true, csrfHeaderValue, "https://app.patron.test", http.StatusOK},
		{"cookie POST from other origin", http.MethodPost, true, csrfHeaderValue, "https://evil.example", http.StatusForbidden},
		{"cookie DELETE without header", http.MethodDelete, true, "", "", http.StatusForbidden},
		{"cookie GET without header", http.MethodGet, true, "", "", http.StatusOK},
		{"no cookie POST", http.MethodPost, false, "", "https://evil.example", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, "/api/v1/clients", nil)
		if tc.cookie {
			req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "x"})
		}
		if tc.header != "" {
			req.Header.Set("X-Requested-By", tc.header)
		}
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}
