// ABOUTME: Store methods for client enquiries (what a collector is looking for).
// ABOUTME: Listing joins the client name and supports a free-text search via squirrel.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const enquiryColumns = "e.id, e.organization_id, e.client_id, c.name, e.size, e.budget, e.artist, e.timeline, e.work_type, e.notes, e.created_at, e.updated_at"

func scanEnquiry(row rowScanner) (*Enquiry, error) {
	var e Enquiry
	if err := row.Scan(
		&e.ID, &e.OrganizationID, &e.ClientID, &e.ClientName,
		&e.Size, &e.Budget, &e.Artist, &e.Timeline, &e.WorkType, &e.Notes,
		&e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

// getEnquiryTx reads one enquiry joined with its client.
func getEnquiryTx(ctx context.Context, tx *sql.Tx, orgID, id uuid.UUID) (*Enquiry, error) {
	e, err := scanEnquiry(tx.QueryRowContext(ctx,
		`SELECT `+enquiryColumns+`
		 FROM enquiries e JOIN clients c ON c.id = e.client_id
		 WHERE e.id = $1 AND e.organization_id = $2`,
		id, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// CreateEnquiry records an enquiry for a live client. Returns (nil, nil) if
// the client does not exist.
func (s *Store) CreateEnquiry(ctx context.Context, orgID, clientID uuid.UUID, in EnquiryInput) (*Enquiry, error) {
	var e *Enquiry
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		ok, err := clientExists(ctx, tx, orgID, clientID)
		if err != nil || !ok {
			return err
		}
		var id uuid.UUID
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO enquiries (organization_id, client_id, size, budget, artist, timeline, work_type, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			orgID, clientID, in.Size, in.Budget, in.Artist, in.Timeline, in.WorkType, in.Notes,
		).Scan(&id); err != nil {
			return err
		}
		if err := touchClient(ctx, tx, orgID, clientID); err != nil {
			return err
		}
		e, err = getEnquiryTx(ctx, tx, orgID, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create enquiry: %w", err)
	}
	return e, nil
}

// UpdateEnquiry replaces the writable fields. Returns (nil, nil) if not found.
func (s *Store) UpdateEnquiry(ctx context.Context, orgID, id uuid.UUID, in EnquiryInput) (*Enquiry, error) {
	var e *Enquiry
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE enquiries
			SET size = $3, budget = $4, artist = $5, timeline = $6, work_type = $7, notes = $8, updated_at = now()
			WHERE id = $1 AND organization_id = $2`,
			id, orgID, in.Size, in.Budget, in.Artist, in.Timeline, in.WorkType, in.Notes)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err
		}
		e, err = getEnquiryTx(ctx, tx, orgID, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update enquiry: %w", err)
	}
	return e, nil
}

// DeleteEnquiry removes an enquiry. Returns false if it did not exist.
func (s *Store) DeleteEnquiry(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	return s.execAffected(ctx, orgID, "delete enquiry",
		`DELETE FROM enquiries WHERE id = $1 AND organization_id = $2`, id, orgID)
}

// ListEnquiries returns enquiries of orgID on live clients, newest first.
// A non-empty clientID restricts to one client; search matches artist,
// work type, notes and client name.
func (s *Store) ListEnquiries(ctx context.Context, orgID uuid.UUID, clientID uuid.NullUUID, search string) ([]Enquiry, error) {
	sb := psql.
		Select(enquiryColumns).
		From("enquiries e").
		Join("clients c ON c.id = e.client_id").
		Where(sq.Eq{"e.organization_id": orgID}).
		Where("NOT c.is_deleted").
		OrderBy("e.created_at DESC")

	if clientID.Valid {
		sb = sb.Where(sq.Eq{"e.client_id": clientID.UUID})
	}
	if q := strings.TrimSpace(search); q != "" {
		pattern := "%" + q + "%"
		sb = sb.Where(sq.Or{
			sq.ILike{"e.artist": pattern},
			sq.ILike{"e.work_type": pattern},
			sq.ILike{"e.notes": pattern},
			sq.ILike{"c.name": pattern},
		})
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("list enquiries: build query: %w", err)
	}

	var result []Enquiry
	err = s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close() //nolint:errcheck
		for rows.Next() {
			e, err := scanEnquiry(rows)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			result = append(result, *e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list enquiries: %w", err)
	}
	return result, nil
}
