// ABOUTME: HTTP handlers for authentication: register, login, logout, me.
// ABOUTME: All auth endpoints live at /api/v1/auth/...; login and register are rate-limited.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/patroncollective/patron/internal/auth"
	"github.com/patroncollective/patron/internal/crm"
	"github.com/patroncollective/patron/internal/store"
)

// dummyPasswordHash is a valid PHC-format argon2id hash used for login timing
// normalization. Running VerifyPassword against this for unknown users
// prevents email enumeration via response time differences.
const dummyPasswordHash = "$argon2id$v=19$m=19456,t=2,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA" //nolint:gosec // G101 false positive: public dummy hash for timing normalization, not a real credential

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// pgErrCode extracts the Postgres error code from err, or "" if err is not a pg error.
func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// humaError converts a service error into a huma status error using the
// same mapping as the chi handlers.
func humaError(ctx context.Context, op string, err error) error {
	status, body := classify(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(ctx, op, "error", err)
	}
	return huma.NewError(status, body.Error)
}

// displayNameFor derives a display name from the email local-part.
func displayNameFor(email, given string) string {
	if given = strings.TrimSpace(given); given != "" {
		return given
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

// ── Register ──────────────────────────────────────────────────────────────────

// registerInput is the request body for POST /auth/register.
type registerInput struct {
	Body struct {
		Email       string `json:"email"        format:"email" maxLength:"254"  doc:"User email address"`
		Password    string `json:"password"     minLength:"8"  maxLength:"1024" doc:"Password (min 8 characters)"`
		DisplayName string `json:"display_name,omitempty"       maxLength:"200"  doc:"Display name (optional)"`
	}
}

// registerOutput is the response for POST /auth/register. The new account
// is signed in immediately and still has to create its organization.
type registerOutput struct {
	Status    int
	SetCookie []string `header:"Set-Cookie"`
	Body      struct {
		UserID             string `json:"user_id"`
		OnboardingRequired bool   `json:"onboarding_required"`
	}
}

// registerHandler handles POST /api/v1/auth/register.
func (srv *Server) registerHandler(ctx context.Context, input *registerInput) (*registerOutput, error) {
	email := strings.TrimSpace(input.Body.Email)

	// Reject duplicate email before the expensive hash.
	existing, err := srv.store.GetUserByEmail(ctx, email)
	if err != nil {
		slog.ErrorContext(ctx, "register: lookup email", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	if existing != nil {
		return nil, huma.Error409Conflict("email already registered")
	}

	if !srv.acquireArgon2() {
		return nil, huma.Error503ServiceUnavailable("server busy, please retry")
	}
	hash, err := auth.HashPassword(input.Body.Password)
	srv.releaseArgon2()
	if err != nil {
		slog.ErrorContext(ctx, "register: hash password", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}

	user, err := srv.store.CreateUserWithProfile(ctx, email, displayNameFor(email, input.Body.DisplayName), hash, auth.HashVersionArgon2id)
	if err != nil {
		if pgErrCode(err) == uniqueViolation { // race on concurrent register
			return nil, huma.Error409Conflict("email already registered")
		}
		slog.ErrorContext(ctx, "register: create user", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}

	token, err := auth.IssueSessionToken([]byte(srv.cfg.JWTSecret), user.ID, user.TokenVersion, srv.sessionTTL())
	if err != nil {
		slog.ErrorContext(ctx, "register: issue session token", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}

	out := &registerOutput{}
	out.Status = http.StatusCreated
	out.SetCookie = []string{srv.sessionCookie(token)}
	out.Body.UserID = user.ID.String()
	out.Body.OnboardingRequired = true
	return out, nil
}

// ── Login ─────────────────────────────────────────────────────────────────────

// loginInput is the request body for POST /auth/login.
type loginInput struct {
	Body struct {
		Email    string `json:"email"    format:"email" maxLength:"254"  doc:"User email"`
		Password string `json:"password" minLength:"8"  maxLength:"1024" doc:"Password"`
	}
}

// loginOutput returns the session cookie (no JSON body needed).
type loginOutput struct {
	SetCookie []string `header:"Set-Cookie"`
}

// loginHandler handles POST /api/v1/auth/login.
// Unknown users still run argon2 to normalize response timing.
func (srv *Server) loginHandler(ctx context.Context, input *loginInput) (*loginOutput, error) {
	user, err := srv.store.GetUserByEmail(ctx, strings.TrimSpace(input.Body.Email))
	if err != nil {
		slog.ErrorContext(ctx, "login: lookup email", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}

	// Google-only accounts have no password and are treated as unknown.
	if user == nil || user.PasswordHash == "" {
		if !srv.acquireArgon2() {
			return nil, huma.Error503ServiceUnavailable("server busy, please retry")
		}
		_, _ = auth.VerifyPassword(input.Body.Password, dummyPasswordHash)
		srv.releaseArgon2()
		return nil, huma.Error401Unauthorized("invalid credentials")
	}

	if !srv.acquireArgon2() {
		return nil, huma.Error503ServiceUnavailable("server busy, please retry")
	}
	ok, err := auth.VerifyPassword(input.Body.Password, user.PasswordHash)
	srv.releaseArgon2()
	if err != nil {
		slog.ErrorContext(ctx, "login: verify password", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	if !ok {
		return nil, huma.Error401Unauthorized("invalid credentials")
	}

	if auth.NeedsRehash(user.PasswordHash, user.PasswordHashVersion) {
		srv.rehashPassword(ctx, user, input.Body.Password)
	}

	token, err := auth.IssueSessionToken([]byte(srv.cfg.JWTSecret), user.ID, user.TokenVersion, srv.sessionTTL())
	if err != nil {
		slog.ErrorContext(ctx, "login: issue session token", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}

	// Non-fatal: last_login_at is informational only.
	if err := srv.store.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.WarnContext(ctx, "login: update last login", "error", err)
	}

	return &loginOutput{SetCookie: []string{srv.sessionCookie(token)}}, nil
}

// rehashPassword upgrades a stored hash after a successful login. Failures
// are logged; the old hash keeps working.
func (srv *Server) rehashPassword(ctx context.Context, user *store.User, password string) {
	if !srv.acquireArgon2() {
		return
	}
	hash, err := auth.HashPassword(password)
	srv.releaseArgon2()
	if err != nil {
		slog.WarnContext(ctx, "login: rehash password", "error", err)
		return
	}
	if err := srv.store.UpdatePasswordHash(ctx, user.ID, hash, auth.HashVersionArgon2id); err != nil {
		slog.WarnContext(ctx, "login: store rehashed password", "error", err)
	}
}

// ── Logout ────────────────────────────────────────────────────────────────────

// logoutInput reads the session cookie for revocation.
type logoutInput struct {
	Session string `cookie:"session" doc:"Session cookie"`
}

// logoutOutput clears the session cookie.
type logoutOutput struct {
	SetCookie []string `header:"Set-Cookie"`
}

// logoutHandler handles POST /api/v1/auth/logout. A valid session bumps the
// user's token version, which revokes every session issued so far.
func (srv *Server) logoutHandler(ctx context.Context, input *logoutInput) (*logoutOutput, error) {
	if input.Session != "" {
		if userID, err := srv.verifySession(ctx, input.Session); err == nil {
			if _, err := srv.store.IncrementTokenVersion(ctx, userID); err != nil {
				// Non-fatal: the cookie is cleared regardless.
				slog.WarnContext(ctx, "logout: increment token version", "error", err)
			}
		}
	}
	return &logoutOutput{SetCookie: []string{srv.clearSessionCookie()}}, nil
}

// ── Me ────────────────────────────────────────────────────────────────────────

// meInput reads the session cookie for authentication.
type meInput struct {
	Session string `cookie:"session" doc:"Session cookie"`
}

// meUser is the account part of the /auth/me response.
type meUser struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
}

// meOutput is the response body for GET /auth/me.
type meOutput struct {
	Body struct {
		User    meUser       `json:"user"`
		Session *crm.Session `json:"session"`
	}
}

// meHandler handles GET /api/v1/auth/me. Users without an organization get
// a 200 with onboarding_required set rather than an error.
func (srv *Server) meHandler(ctx context.Context, input *meInput) (*meOutput, error) {
	if input.Session == "" {
		return nil, huma.Error401Unauthorized("authentication required")
	}
	userID, err := srv.verifySession(ctx, input.Session)
	if err != nil {
		return nil, humaError(ctx, "me: verify session", err)
	}
	user, err := srv.store.GetUserByID(ctx, userID)
	if err != nil || user == nil {
		slog.ErrorContext(ctx, "me: get user", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	session, err := srv.svc.Me(ctx, userID)
	if err != nil {
		return nil, humaError(ctx, "me: load session", err)
	}

	out := &meOutput{}
	out.Body.User = meUser{ID: user.ID, Email: user.Email, DisplayName: user.DisplayName}
	out.Body.Session = session
	return out, nil
}

// ── Route registration ────────────────────────────────────────────────────────

// registerAuthRoutes registers all auth-related routes on the huma API.
func registerAuthRoutes(api huma.API, srv *Server) {
	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Tags:          []string{"auth"},
		Summary:       "Register a new user account",
		DefaultStatus: http.StatusCreated,
	}, srv.registerHandler)

	huma.Register(api, huma.Operation{
		OperationID:   "login",
		Method:        http.MethodPost,
		Path:          "/auth/login",
		Tags:          []string{"auth"},
		Summary:       "Log in and receive the session cookie",
		DefaultStatus: http.StatusOK,
	}, srv.loginHandler)

	huma.Register(api, huma.Operation{
		OperationID:   "logout",
		Method:        http.MethodPost,
		Path:          "/auth/logout",
		Tags:          []string{"auth"},
		Summary:       "Log out everywhere and clear the session cookie",
		DefaultStatus: http.StatusOK,
	}, srv.logoutHandler)

	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/auth/me",
		Tags:        []string{"auth"},
		Summary:     "Get the current user, role, permissions and subscription",
	}, srv.meHandler)
}
