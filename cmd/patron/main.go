// Command patron is the Patron gallery CRM server binary.
//
// Subcommands:
//
//	serve      HTTP server with the embedded worker pool and reminder scheduler
//	worker     standalone worker pool and scheduler, no HTTP server
//	migrate    run pending database migrations and exit
//	reminders  send today's follow-up digest once and exit
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	// Profiles store IANA timezone names; distroless images ship no zoneinfo.
	_ "time/tzdata"

	// Sets GOMEMLIMIT from the cgroup memory limit.
	_ "github.com/KimMachineGun/automemlimit"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/patroncollective/patron/internal/access"
	"github.com/patroncollective/patron/internal/api"
	"github.com/patroncollective/patron/internal/billing"
	"github.com/patroncollective/patron/internal/config"
	"github.com/patroncollective/patron/internal/crm"
	"github.com/patroncollective/patron/internal/notify"
	"github.com/patroncollective/patron/internal/reminder"
	"github.com/patroncollective/patron/internal/store"
	"github.com/patroncollective/patron/internal/worker"
	"github.com/patroncollective/patron/migrations"
)

func main() {
	root := &cobra.Command{
		Use:   "patron",
		Short: "Patron, client relationship management for galleries",
		// Errors are printed once, through slog.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(
		serveCmd(),
		workerCmd(),
		migrateCmd(),
		remindersCmd(),
	)

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// ── serve ─────────────────────────────────────────────────────────────────────

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server, worker pool and reminder scheduler",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	db, err := newPool(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st := store.New(db)
	mailer := newMailer(cfg)

	// The pool and scheduler drain on ctx cancellation, alongside the HTTP
	// server shutdown below.
	workerPool, scheduler, err := newBackground(ctx, cfg, st, mailer, logger)
	if err != nil {
		return err
	}
	go workerPool.Start(ctx) //nolint:contextcheck // ctx is the process-lifetime context
	go scheduler.Run(ctx)

	svc := newService(cfg, st, mailer, logger)
	apiSrv, err := api.NewServer(st, svc, cfg)
	if err != nil {
		return fmt.Errorf("api server: %w", err)
	}

	// WriteTimeout is left unset; export streams can run long.
	srv := &http.Server{ //nolint:exhaustruct // WriteTimeout intentionally omitted
		Addr:              cfg.ListenAddr,
		Handler:           apiSrv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		stop()
	}

	slog.Info("shutting down", "timeout_seconds", cfg.ShutdownTimeoutSeconds)
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

// ── worker ────────────────────────────────────────────────────────────────────

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the standalone worker pool and scheduler (no HTTP server)",
		RunE:  runWorker,
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	db, err := newPool(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	workerPool, scheduler, err := newBackground(ctx, cfg, store.New(db), newMailer(cfg), logger)
	if err != nil {
		return err
	}
	go scheduler.Run(ctx)

	slog.Info("worker started")
	workerPool.Start(ctx) // blocks until ctx cancelled, then drains in-flight jobs
	return nil
}

// ── migrate ───────────────────────────────────────────────────────────────────

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run pending database migrations and exit",
		RunE:  runMigrate,
	}
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(newLogger(cfg))

	slog.Info("running migrations")

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	// golang-migrate needs a *sql.DB; pgx's stdlib adapter keeps one driver
	// project-wide.
	migrateURL := cfg.DatabaseURL
	if cfg.DatabaseURLMigrate != "" {
		migrateURL = cfg.DatabaseURLMigrate
	}
	connCfg, err := pgx.ParseConfig(migrateURL)
	if err != nil {
		return fmt.Errorf("parse db url: %w", err)
	}
	// Migration files hold several statements each.
	connCfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	db := stdlib.OpenDB(*connCfg)
	defer db.Close() //nolint:errcheck

	driver, err := migratepg.WithInstance(db, &migratepg.Config{MultiStatementEnabled: true})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	version, _, _ := m.Version() //nolint:errcheck
	slog.Info("migrations complete", "version", version)
	return nil
}

// ── reminders ─────────────────────────────────────────────────────────────────

func remindersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reminders",
		Short: "Send today's follow-up digest now and exit",
		RunE:  runReminders,
	}
}

func runReminders(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	db, err := newPool(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	digest := reminder.NewDigest(store.New(db), reminderSender(newMailer(cfg), logger), cfg.ExternalURL,
		reminder.WithLogger(logger))
	res, err := digest.Run(cmd.Context(), digest.Today())
	if err != nil {
		return fmt.Errorf("reminder digest: %w", err)
	}
	slog.Info("reminder digest complete",
		"organizations", res.Organizations,
		"sent", res.Sent,
		"failed", res.Failed,
	)
	return nil
}

// ── wiring ────────────────────────────────────────────────────────────────────

// newService builds the CRM service with its gate and resolver over st.
func newService(cfg *config.Config, st *store.Store, mailer *notify.Mailer, logger *slog.Logger) *crm.Service {
	gate := billing.NewGate(st, billing.WithLogger(logger))
	resolver := access.NewResolver(st,
		access.WithDegradePolicy(cfg.DegradePolicy()),
		access.WithLogger(logger),
	)
	opts := []crm.Option{
		crm.WithBaseURL(cfg.ExternalURL),
		crm.WithTrialDays(cfg.TrialDays),
		crm.WithLogger(logger),
	}
	if mailer != nil {
		opts = append(opts, crm.WithNotifier(mailer))
	}
	return crm.New(st, gate, resolver, opts...)
}

// newBackground builds the worker pool with the reminder handler and a
// scheduler that enqueues the digest on cfg.ReminderSchedule. Enqueueing is
// deduplicated per day, so several instances may run the scheduler.
func newBackground(ctx context.Context, cfg *config.Config, st *store.Store, mailer *notify.Mailer, logger *slog.Logger) (*worker.Pool, *worker.Scheduler, error) {
	digest := reminder.NewDigest(st, reminderSender(mailer, logger), cfg.ExternalURL, reminder.WithLogger(logger))

	pool := worker.New(st, worker.WithLogger(logger))
	pool.Register(reminder.Queue, digest.Handle)

	scheduler := worker.NewScheduler(logger)
	if err := scheduler.Add(ctx, "reminder_digest", cfg.ReminderSchedule, func(ctx context.Context) error {
		_, err := reminder.Enqueue(ctx, st, digest.Today())
		return err
	}); err != nil {
		return nil, nil, fmt.Errorf("scheduler: %w", err)
	}
	return pool, scheduler, nil
}

// newMailer returns nil when no SMTP host is configured.
func newMailer(cfg *config.Config) *notify.Mailer {
	smtp := notify.SmtpConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		From:     cfg.SMTPFrom,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		TLS:      cfg.SMTPTLS,
	}
	if !smtp.Enabled() {
		slog.Warn("SMTP_HOST not set; invitation and reminder emails are disabled")
		return nil
	}
	return notify.NewMailer(smtp)
}

// logOnlySender stands in for the mailer when SMTP is off, so digests still
// run and show up in logs during development.
type logOnlySender struct{ logger *slog.Logger }

func (s logOnlySender) SendReminder(ctx context.Context, msg notify.Reminder) error {
	s.logger.InfoContext(ctx, "reminder digest not sent (smtp disabled)",
		"to", msg.To,
		"items", msg.Count(),
	)
	return nil
}

func reminderSender(mailer *notify.Mailer, logger *slog.Logger) reminder.Sender {
	if mailer == nil {
		return logOnlySender{logger: logger}
	}
	return mailer
}

// ── helpers ───────────────────────────────────────────────────────────────────

// newPool creates and validates a pgxpool: simple protocol for PgBouncer,
// a per-query statement timeout and bounded pool size.
//
// Retries up to 10 times with linear backoff so a Compose stack can start
// before Postgres accepts connections.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.DBQueryExecMode == "simple_protocol" {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.Itoa(cfg.DBStatementTimeoutMS)
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MaxConnIdleTime = cfg.DBMaxConnIdleTime

	var (
		db      *pgxpool.Pool
		connErr error
	)
	for attempt := 1; attempt <= 10; attempt++ {
		db, connErr = pgxpool.NewWithConfig(ctx, poolCfg)
		if connErr == nil {
			if connErr = db.Ping(ctx); connErr == nil {
				break
			}
			db.Close()
		}
		slog.Warn("database not ready, retrying",
			"attempt", attempt,
			"error", connErr,
		)
		// time.NewTimer rather than time.After so the timer is released on cancel.
		timer := time.NewTimer(time.Duration(attempt) * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if connErr != nil {
		return nil, fmt.Errorf("database unavailable after retries: %w", connErr)
	}

	var pgMaxConnsStr string
	if err := db.QueryRow(ctx, "SHOW max_connections").Scan(&pgMaxConnsStr); err == nil {
		if pgMaxConns, err := strconv.Atoi(pgMaxConnsStr); err == nil {
			if int(cfg.DBMaxConns) > int(float64(pgMaxConns)*0.8) {
				slog.Warn("DB_MAX_CONNS exceeds 80% of Postgres max_connections",
					"db_max_conns", cfg.DBMaxConns,
					"postgres_max_connections", pgMaxConns,
				)
			}
		}
	}

	// Advisory only: a binary ahead of its schema still starts, and the role
	// lookup degrades until 000002 is applied.
	var schemaVersion int
	err = db.QueryRow(ctx,
		"SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1",
	).Scan(&schemaVersion)
	if err == nil && schemaVersion != expectedSchemaVersion {
		slog.Warn("schema version mismatch; run `patron migrate`",
			"applied_version", schemaVersion,
			"expected_version", expectedSchemaVersion,
		)
	}

	return db, nil
}

// expectedSchemaVersion is the migration version this binary is built for.
const expectedSchemaVersion = 2

// newLogger creates a slog.Logger based on the configured log level and format.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" || cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
