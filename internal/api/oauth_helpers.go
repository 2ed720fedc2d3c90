// ABOUTME: Short-lived cookies that carry OAuth state and the OIDC nonce across the Google redirect.
// ABOUTME: Each cookie is read once and expired on the callback.
package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
)

const (
	stateCookieName = "oauth_state"
	nonceCookieName = "oidc_nonce"
	flowCookieTTL   = 300 // seconds
)

// randomToken returns 32 random bytes as hex, used for both state and nonce.
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// setFlowCookie stores value under name for the duration of the sign-in
// redirect. SameSite must be Lax: the callback is a cross-site navigation.
func (srv *Server) setFlowCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		HttpOnly: true,
		Secure:   srv.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
		Path:     "/",
	})
}

// takeFlowCookie returns the value stored under name and expires the cookie.
func (srv *Server) takeFlowCookie(w http.ResponseWriter, r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", fmt.Errorf("missing %s cookie", name)
	}
	srv.setFlowCookie(w, name, "", -1)
	return c.Value, nil
}

// checkState compares the state query parameter with the state cookie in
// constant time.
func (srv *Server) checkState(w http.ResponseWriter, r *http.Request) error {
	stored, err := srv.takeFlowCookie(w, r, stateCookieName)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(r.URL.Query().Get("state"))) != 1 {
		return fmt.Errorf("%s mismatch", stateCookieName)
	}
	return nil
}
