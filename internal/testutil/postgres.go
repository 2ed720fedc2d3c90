// ABOUTME: Test helper that starts a Postgres testcontainer with migrations applied.
// ABOUTME: Use NewTestDB(t) for the current schema, NewTestDBAtVersion to stop at an older one.
package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/patroncollective/patron/internal/store"
	"github.com/patroncollective/patron/migrations"
)

// TestDB wraps a Store with helpers for RLS integration tests.
type TestDB struct {
	*store.Store // superuser store, bypasses RLS (for data setup)
	// AppStore connects as patron_app (NOBYPASSRLS); use for RLS isolation tests.
	AppStore *store.Store
	// URL is the superuser connection string.
	URL string
}

// NewTestDB starts a Postgres testcontainer, runs all migrations, and
// returns a TestDB. The container and pools are cleaned up via t.Cleanup.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	return newTestDB(t, 0)
}

// NewTestDBAtVersion is NewTestDB but stops migrating at version, leaving
// the schema as a deployment that has not applied later migrations yet.
func NewTestDBAtVersion(t *testing.T, version uint) *TestDB {
	t.Helper()
	return newTestDB(t, version)
}

func newTestDB(t *testing.T, version uint) *TestDB {
	t.Helper()
	ctx := context.Background()

	pgCtr, err := tcpostgres.Run(ctx,
		"postgres:18-alpine",
		tcpostgres.WithDatabase("patron_test"),
		tcpostgres.WithUsername("patron_test"),
		tcpostgres.WithPassword("testpassword"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgCtr.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	connStr, err := pgCtr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		t.Fatalf("migration source: %v", err)
	}

	connCfg, err := pgx.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("parse db url: %v", err)
	}
	// Simple query protocol lets postgres execute multi-statement migration
	// files natively.
	connCfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	db := stdlib.OpenDB(*connCfg)
	defer db.Close() //nolint:errcheck

	// Migrations GRANT to patron_app, so the role must exist first. In
	// production it is created by the database provisioning script.
	if _, err := db.ExecContext(ctx, `
		DO $$ BEGIN
			IF NOT EXISTS (SELECT FROM pg_roles WHERE rolname = 'patron_app') THEN
				CREATE ROLE patron_app LOGIN NOBYPASSRLS PASSWORD 'apptestpw';
			ELSE
				ALTER ROLE patron_app WITH LOGIN NOBYPASSRLS PASSWORD 'apptestpw';
			END IF;
		END $$`); err != nil {
		t.Fatalf("create patron_app role: %v", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{MultiStatementEnabled: true})
	if err != nil {
		t.Fatalf("migration driver: %v", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		t.Fatalf("migrate init: %v", err)
	}

	if version > 0 {
		err = m.Migrate(version)
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("pgxpool: %v", err)
	}
	t.Cleanup(pool.Close)

	appPoolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("parse app pool config: %v", err)
	}
	appPoolCfg.ConnConfig.User = "patron_app"
	appPoolCfg.ConnConfig.Password = "apptestpw"
	appPool, err := pgxpool.NewWithConfig(ctx, appPoolCfg)
	if err != nil {
		t.Fatalf("pgxpool (patron_app): %v", err)
	}
	t.Cleanup(appPool.Close)

	return &TestDB{
		Store:    store.New(pool),
		AppStore: store.New(appPool),
		URL:      connStr,
	}
}

// Tenant is a user attached to a freshly created organization.
type Tenant struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
}

// SeedTenant creates a user named email and an organization owned by it on
// a trial of trialDays.
func (db *TestDB) SeedTenant(t *testing.T, email string, trialDays int) Tenant {
	t.Helper()
	ctx := context.Background()
	u, err := db.CreateUserWithProfile(ctx, email, email, "", 0)
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	org, err := db.CreateOrganization(ctx, u.ID, "Gallery of "+email, trialDays)
	if err != nil {
		t.Fatalf("seed organization for %s: %v", email, err)
	}
	return Tenant{UserID: u.ID, OrgID: org.ID}
}
