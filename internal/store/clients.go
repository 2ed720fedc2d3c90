// ABOUTME: Store methods for clients. Every method takes orgID and runs under the org RLS scope.
// ABOUTME: Deletion is soft: is_deleted rows are invisible to every read.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const clientColumns = "id, organization_id, name, phone, email, location, country, age_range, tags, created_at, updated_at"

func scanClient(row rowScanner) (*Client, error) {
	var c Client
	if err := row.Scan(
		&c.ID, &c.OrganizationID, &c.Name, &c.Phone, &c.Email,
		&c.Location, &c.Country, &c.AgeRange, pq.Array(&c.Tags),
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return &c, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// CreateClient inserts a client into orgID.
func (s *Store) CreateClient(ctx context.Context, orgID uuid.UUID, in ClientInput) (*Client, error) {
	var c *Client
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		var err error
		c, err = scanClient(tx.QueryRowContext(ctx, `
			INSERT INTO clients (organization_id, name, phone, email, location, country, age_range, tags)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+clientColumns,
			orgID, in.Name, in.Phone, in.Email, in.Location, in.Country, in.AgeRange,
			pq.Array(normalizeTags(in.Tags))))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

// GetClient returns a live client, or (nil, nil) if not found or deleted.
func (s *Store) GetClient(ctx context.Context, orgID, id uuid.UUID) (*Client, error) {
	var c *Client
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		var err error
		c, err = scanClient(tx.QueryRowContext(ctx,
			`SELECT `+clientColumns+` FROM clients
			 WHERE id = $1 AND organization_id = $2 AND NOT is_deleted`,
			id, orgID))
		if errors.Is(err, sql.ErrNoRows) {
			c = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

// UpdateClient replaces the writable fields of a live client. Returns
// (nil, nil) if not found or deleted.
func (s *Store) UpdateClient(ctx context.Context, orgID, id uuid.UUID, in ClientInput) (*Client, error) {
	var c *Client
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		var err error
		c, err = scanClient(tx.QueryRowContext(ctx, `
			UPDATE clients
			SET name = $3, phone = $4, email = $5, location = $6, country = $7,
			    age_range = $8, tags = $9, updated_at = now()
			WHERE id = $1 AND organization_id = $2 AND NOT is_deleted
			RETURNING `+clientColumns,
			id, orgID, in.Name, in.Phone, in.Email, in.Location, in.Country, in.AgeRange,
			pq.Array(normalizeTags(in.Tags))))
		if errors.Is(err, sql.ErrNoRows) {
			c = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}
	return c, nil
}

// SoftDeleteClient marks a client deleted. Returns false if it was not
// found or already deleted.
func (s *Store) SoftDeleteClient(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	return s.execAffected(ctx, orgID, "soft delete client", `
		UPDATE clients SET is_deleted = true, updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND NOT is_deleted`,
		id, orgID)
}

// ListClients returns live clients of orgID, most recently touched first.
// Search matches name, email, phone and location case-insensitively; Tag
// restricts to clients carrying that tag.
func (s *Store) ListClients(ctx context.Context, orgID uuid.UUID, f ClientFilter) ([]Client, error) {
	sb := psql.
		Select(clientColumns).
		From("clients").
		Where(sq.Eq{"organization_id": orgID}).
		Where("NOT is_deleted").
		OrderBy("updated_at DESC", "id")

	if q := strings.TrimSpace(f.Search); q != "" {
		pattern := "%" + q + "%"
		sb = sb.Where(sq.Or{
			sq.ILike{"name": pattern},
			sq.ILike{"email": pattern},
			sq.ILike{"phone": pattern},
			sq.ILike{"location": pattern},
		})
	}
	if tag := strings.TrimSpace(f.Tag); tag != "" {
		sb = sb.Where("? = ANY(tags)", tag)
	}
	if f.Limit > 0 {
		sb = sb.Limit(uint64(f.Limit)) //nolint:gosec // G115: limit validated by caller
	}
	if f.Offset > 0 {
		sb = sb.Offset(uint64(f.Offset)) //nolint:gosec // G115: offset validated by caller
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("list clients: build query: %w", err)
	}

	var result []Client
	err = s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close() //nolint:errcheck
		for rows.Next() {
			c, err := scanClient(rows)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			result = append(result, *c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return result, nil
}

// ListClientTags returns the distinct tags used by live clients of orgID,
// sorted.
func (s *Store) ListClientTags(ctx context.Context, orgID uuid.UUID) ([]string, error) {
	var tags []string
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT DISTINCT t
			FROM clients, unnest(tags) AS t
			WHERE organization_id = $1 AND NOT is_deleted
			ORDER BY t`, orgID)
		if err != nil {
			return err
		}
		defer rows.Close() //nolint:errcheck
		for rows.Next() {
			var t string
			if err := rows.Scan(&t); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			tags = append(tags, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list client tags: %w", err)
	}
	return tags, nil
}

// touchClient bumps updated_at so recently active clients sort first.
func touchClient(ctx context.Context, tx *sql.Tx, orgID, clientID uuid.UUID) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE clients SET updated_at = now() WHERE id = $1 AND organization_id = $2`,
		clientID, orgID); err != nil {
		return fmt.Errorf("touch client: %w", err)
	}
	return nil
}

// clientExists reports whether clientID is a live client of orgID.
func clientExists(ctx context.Context, tx *sql.Tx, orgID, clientID uuid.UUID) (bool, error) {
	var ok bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1 AND organization_id = $2 AND NOT is_deleted)`,
		clientID, orgID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check client: %w", err)
	}
	return ok, nil
}

// execAffected runs a single statement under the org scope and reports
// whether it touched any row.
func (s *Store) execAffected(ctx context.Context, orgID uuid.UUID, op, query string, args ...any) (bool, error) {
	var n int64
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

// ImportClients inserts rows one at a time, each in its own savepoint so a
// failing row does not abort the rest. It returns the number imported and a
// message per failed row.
func (s *Store) ImportClients(ctx context.Context, orgID uuid.UUID, rows []ClientInput) (int, []string, error) {
	var (
		imported int
		failures []string
	)
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		for _, in := range rows {
			if _, err := tx.ExecContext(ctx, "SAVEPOINT import_row"); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO clients (organization_id, name, phone, email, location, country, age_range, tags)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				orgID, in.Name, in.Phone, in.Email, in.Location, in.Country, in.AgeRange,
				pq.Array(normalizeTags(in.Tags))); err != nil {
				if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT import_row"); rbErr != nil {
					return rbErr
				}
				failures = append(failures, fmt.Sprintf("Failed to import %q: %v", in.Name, err))
				continue
			}
			if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT import_row"); err != nil {
				return err
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("import clients: %w", err)
	}
	return imported, failures, nil
}
