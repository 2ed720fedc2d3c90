// ABOUTME: Google OIDC sign-in flow: init redirect and callback handler.
// ABOUTME: Accounts are matched on the Google sub claim, never on email.
package api

import (
	"log/slog"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/patroncollective/patron/internal/auth"
)

// providerGoogle is the user_identities.provider value for Google accounts.
const providerGoogle = "google"

// googleClaims holds the subset of Google ID token claims we use.
type googleClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Nonce         string `json:"nonce"`
}

// googleInitHandler handles GET /api/v1/auth/oauth/google.
// Generates state + nonce, sets cookies, and redirects to Google's authorize URL.
func (srv *Server) googleInitHandler(w http.ResponseWriter, r *http.Request) {
	if srv.googleOIDC == nil || srv.googleOAuth == nil {
		http.Error(w, "Google sign-in not configured", http.StatusNotImplemented)
		return
	}
	state, err := randomToken()
	if err != nil {
		slog.ErrorContext(r.Context(), "google oidc init: generate state", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	nonce, err := randomToken()
	if err != nil {
		slog.ErrorContext(r.Context(), "google oidc init: generate nonce", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	srv.setFlowCookie(w, stateCookieName, state, flowCookieTTL)
	srv.setFlowCookie(w, nonceCookieName, nonce, flowCookieTTL)
	authURL := srv.googleOAuth.AuthCodeURL(state, oauth2.SetAuthURLParam("nonce", nonce))
	http.Redirect(w, r, authURL, http.StatusFound)
}

// googleCallbackHandler handles GET /api/v1/auth/oauth/google/callback.
// Validates state and nonce, verifies the ID token, finds or creates the
// account, sets the session cookie and sends the browser back to the app.
func (srv *Server) googleCallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if srv.googleOIDC == nil || srv.googleOAuth == nil {
		http.Error(w, "Google sign-in not configured", http.StatusNotImplemented)
		return
	}

	if err := srv.checkState(w, r); err != nil {
		http.Error(w, "invalid state: "+err.Error(), http.StatusBadRequest)
		return
	}

	token, err := srv.googleOAuth.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		slog.ErrorContext(ctx, "google oidc: exchange code", "error", err)
		http.Error(w, "authentication failed", http.StatusBadRequest)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		slog.ErrorContext(ctx, "google oidc: missing id_token in token response")
		http.Error(w, "authentication failed", http.StatusBadRequest)
		return
	}
	verifier := srv.googleOIDC.Verifier(&oidc.Config{ClientID: srv.googleOAuth.ClientID})
	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		slog.ErrorContext(ctx, "google oidc: verify id token", "error", err)
		http.Error(w, "authentication failed", http.StatusBadRequest)
		return
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		slog.ErrorContext(ctx, "google oidc: extract claims", "error", err)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}
	if claims.Sub == "" {
		http.Error(w, "missing sub in ID token", http.StatusBadRequest)
		return
	}
	if !claims.EmailVerified {
		http.Error(w, "email not verified on Google account", http.StatusBadRequest)
		return
	}

	storedNonce, err := srv.takeFlowCookie(w, r, nonceCookieName)
	if err != nil {
		http.Error(w, "invalid nonce: "+err.Error(), http.StatusBadRequest)
		return
	}
	if storedNonce != claims.Nonce {
		http.Error(w, "nonce mismatch", http.StatusBadRequest)
		return
	}

	user, err := srv.store.GetUserByProviderID(ctx, providerGoogle, claims.Sub)
	if err != nil {
		slog.ErrorContext(ctx, "google oidc: get user by provider id", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if user == nil {
		// New account without a password. It starts without an organization
		// and goes through onboarding like a registered one.
		user, err = srv.store.CreateUserWithProfile(ctx, claims.Email, displayNameFor(claims.Email, claims.Name), "", 0)
		if err != nil {
			if pgErrCode(err) == uniqueViolation {
				http.Error(w, "an account with this email already exists; sign in with your password", http.StatusConflict)
				return
			}
			slog.ErrorContext(ctx, "google oidc: create user", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	// Keep the stored email current; Google emails can change.
	if err := srv.store.UpsertUserIdentity(ctx, user.ID, providerGoogle, claims.Sub, claims.Email); err != nil {
		slog.ErrorContext(ctx, "google oidc: upsert identity", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	session, err := auth.IssueSessionToken([]byte(srv.cfg.JWTSecret), user.ID, user.TokenVersion, srv.sessionTTL())
	if err != nil {
		slog.ErrorContext(ctx, "google oidc: issue session token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := srv.store.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.WarnContext(ctx, "google oidc: update last login", "error", err)
	}

	w.Header().Add("Set-Cookie", srv.sessionCookie(session))
	http.Redirect(w, r, srv.cfg.ExternalURL+"/", http.StatusFound)
}
