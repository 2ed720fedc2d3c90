// ABOUTME: HTTP server struct, constructor, and handler wiring for Patron.
// ABOUTME: Holds auth dependencies (account store, config, argon2 semaphore) and the CRM service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/patroncollective/patron/internal/config"
	"github.com/patroncollective/patron/internal/crm"
	"github.com/patroncollective/patron/internal/store"
)

// googleIssuer is the OIDC discovery base for Google accounts.
const googleIssuer = "https://accounts.google.com"

// AccountStore is the persistence the HTTP layer uses directly: accounts,
// sessions, the health probe and the job queue. *store.Store implements it.
type AccountStore interface {
	CreateUserWithProfile(ctx context.Context, email, displayName, passwordHash string, hashVersion int) (*store.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string, version int) error
	IncrementTokenVersion(ctx context.Context, id uuid.UUID) (int, error)
	UpsertUserIdentity(ctx context.Context, userID uuid.UUID, provider, providerUserID, email string) error
	GetUserByProviderID(ctx context.Context, provider, providerUserID string) (*store.User, error)
	EnqueueJob(ctx context.Context, queue string, payload json.RawMessage, lockKey string, maxAttempts int) (uuid.UUID, error)
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the HTTP layer.
type Server struct {
	store       AccountStore
	svc         *crm.Service
	cfg         *config.Config
	argon2Sem   chan struct{}
	rateLimiter *ipRateLimiter
	googleOAuth *oauth2.Config // nil when Google sign-in is not configured
	googleOIDC  *oidc.Provider
	now         func() time.Time
}

// NewServer creates a Server. Returns an error if Google OIDC discovery fails.
// If cfg.GoogleClientID is empty, Google sign-in is skipped.
func NewServer(s AccountStore, svc *crm.Service, cfg *config.Config) (*Server, error) {
	semSize := cfg.Argon2MaxConcurrent
	if semSize <= 0 {
		semSize = 1
	}
	evictTTL := cfg.RateLimitEvictTTL
	if evictTTL == 0 {
		evictTTL = 15 * time.Minute
	}
	// 10 requests per minute, burst of 10.
	rl := newIPRateLimiter(rate.Limit(10.0/60), 10, evictTTL)
	srv := &Server{
		store:       s,
		svc:         svc,
		cfg:         cfg,
		argon2Sem:   make(chan struct{}, semSize),
		rateLimiter: rl,
		now:         time.Now,
	}

	if cfg.GoogleClientID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		provider, err := oidc.NewProvider(ctx, googleIssuer)
		if err != nil {
			return nil, fmt.Errorf("google oidc discovery: %w", err)
		}
		srv.googleOIDC = provider
		srv.googleOAuth = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.ExternalURL + "/api/v1/auth/oauth/google/callback",
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		}
	}

	return srv, nil
}

// Handler builds and returns the http.Handler.
func (srv *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Security headers go first so they appear on every response, errors included.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	// 1 MB global body limit. Imports are the largest legitimate bodies.
	r.Use(middleware.RequestSize(1 << 20))
	r.Use(middleware.Recoverer)

	// ── Infrastructure endpoints ──────────────────────────────────────────────
	r.Get("/healthz", srv.healthzHandler)
	r.Handle("/metrics", promhttp.Handler())

	// ── API v1 sub-router with huma (OpenAPI 3.1) ────────────────────────────
	apiRouter := chi.NewRouter()
	apiRouter.Use(srv.authRateLimit())
	apiRouter.Use(csrfProtect(srv.csrfOrigins()))
	humaConfig := huma.DefaultConfig("Patron API", "0.1.0")
	humaConfig.Info.Description = "Gallery client relationship management API"
	api := humachi.New(apiRouter, humaConfig)
	registerAuthRoutes(api, srv)

	// OAuth routes are browser redirects, not JSON API calls.
	apiRouter.Get("/auth/oauth/google", srv.googleInitHandler)
	apiRouter.Get("/auth/oauth/google/callback", srv.googleCallbackHandler)

	// Scheduler trigger, authenticated by the shared cron secret.
	apiRouter.Post("/cron/reminders", srv.cronRemindersHandler)

	// Everything below needs a session. Organization, role and subscription
	// checks happen inside the service on every call.
	apiRouter.Group(func(r chi.Router) {
		r.Use(srv.RequireAuthenticated())

		r.Post("/onboarding/organization", srv.createOrganizationHandler)
		r.Get("/subscription", srv.subscriptionHandler)
		r.Get("/organization", srv.getOrganizationHandler)
		r.Patch("/organization", srv.updateOrganizationHandler)
		r.Patch("/profile", srv.updateProfileHandler)
		r.Get("/export", srv.exportHandler)
		r.Get("/today", srv.todayHandler)

		r.Route("/clients", func(r chi.Router) {
			r.Get("/", srv.listClientsHandler)
			r.Post("/", srv.createClientHandler)
			r.Get("/tags", srv.listClientTagsHandler)
			r.Post("/import", srv.importClientsHandler)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", srv.getClientHandler)
				r.Patch("/", srv.updateClientHandler)
				r.Delete("/", srv.deleteClientHandler)
				r.Get("/notes", srv.listClientNotesHandler)
				r.Post("/notes", srv.createNoteHandler)
				r.Get("/enquiries", srv.listClientEnquiriesHandler)
				r.Post("/enquiries", srv.createEnquiryHandler)
				r.Get("/sales", srv.listClientSalesHandler)
				r.Post("/sales", srv.createSaleHandler)
			})
		})

		r.Route("/notes/{id}", func(r chi.Router) {
			r.Patch("/", srv.updateNoteHandler)
			r.Delete("/", srv.deleteNoteHandler)
			r.Post("/done", srv.completeFollowUpHandler)
			r.Post("/reschedule", srv.rescheduleFollowUpHandler)
		})

		r.Get("/enquiries", srv.listEnquiriesHandler)
		r.Patch("/enquiries/{id}", srv.updateEnquiryHandler)
		r.Delete("/enquiries/{id}", srv.deleteEnquiryHandler)

		r.Patch("/sales/{id}", srv.updateSaleHandler)
		r.Delete("/sales/{id}", srv.deleteSaleHandler)

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", srv.listInventoryHandler)
			r.Post("/", srv.createInventoryHandler)
			r.Post("/import", srv.importInventoryHandler)
			r.Get("/artists", srv.listInventoryArtistsHandler)
			r.Get("/mediums", srv.listInventoryMediumsHandler)
			r.Get("/{id}", srv.getInventoryHandler)
			r.Patch("/{id}", srv.updateInventoryHandler)
			r.Delete("/{id}", srv.deleteInventoryHandler)
		})

		r.Route("/team", func(r chi.Router) {
			r.Get("/members", srv.listMembersHandler)
			r.Patch("/members/{id}/permissions", srv.updateMemberPermissionsHandler)
			r.Delete("/members/{id}", srv.removeMemberHandler)
			r.Get("/invitations", srv.listInvitationsHandler)
			r.Post("/invitations", srv.createInvitationHandler)
			r.Delete("/invitations/{id}", srv.cancelInvitationHandler)
		})
		r.Post("/invitations/{token}/accept", srv.acceptInvitationHandler)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/orgs", srv.adminListOrgsHandler)
			r.Get("/orgs/{id}/members", srv.adminListOrgMembersHandler)
			r.Patch("/users/{id}/role", srv.adminChangeRoleHandler)
			r.Patch("/orgs/{id}/subscription", srv.adminSetSubscriptionHandler)
		})
	})

	r.Mount("/api/v1", apiRouter)

	return r
}

// acquireArgon2 tries to acquire the argon2 semaphore. Returns false if all
// slots are in use; the caller should return 503 immediately without blocking.
func (srv *Server) acquireArgon2() bool {
	select {
	case srv.argon2Sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (srv *Server) releaseArgon2() { <-srv.argon2Sem }

// healthResponse is the JSON body for /healthz.
type healthResponse struct {
	Status string `json:"status"`
	DB     string `json:"db,omitempty"`
}

// healthzHandler returns 200 {"status":"ok"} when the DB is reachable,
// or 503 {"status":"degraded","db":"unavailable"} when it is not.
func (srv *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	statusCode := http.StatusOK

	if srv.store == nil {
		resp.Status = "degraded"
		resp.DB = "unavailable"
		statusCode = http.StatusServiceUnavailable
	} else if err := srv.store.Ping(r.Context()); err != nil {
		slog.WarnContext(r.Context(), "healthz: db ping failed", "error", err)
		resp.Status = "degraded"
		resp.DB = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON: encode failed", "error", err)
	}
}
