// ABOUTME: Store methods for sales recorded against clients.
// ABOUTME: A sale without a date is recorded for the current day.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const saleColumns = "s.id, s.organization_id, s.client_id, c.name, s.artwork_name, s.amount, s.sale_date, s.notes, s.created_at, s.updated_at"

func scanSale(row rowScanner) (*Sale, error) {
	var v Sale
	if err := row.Scan(
		&v.ID, &v.OrganizationID, &v.ClientID, &v.ClientName,
		&v.ArtworkName, &v.Amount, &v.SaleDate, &v.Notes,
		&v.CreatedAt, &v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &v, nil
}

func getSaleTx(ctx context.Context, tx *sql.Tx, orgID, id uuid.UUID) (*Sale, error) {
	v, err := scanSale(tx.QueryRowContext(ctx,
		`SELECT `+saleColumns+`
		 FROM sales s JOIN clients c ON c.id = s.client_id
		 WHERE s.id = $1 AND s.organization_id = $2`,
		id, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

// CreateSale records a sale for a live client. Returns (nil, nil) if the
// client does not exist.
func (s *Store) CreateSale(ctx context.Context, orgID, clientID uuid.UUID, in SaleInput) (*Sale, error) {
	var v *Sale
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		ok, err := clientExists(ctx, tx, orgID, clientID)
		if err != nil || !ok {
			return err
		}
		var id uuid.UUID
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO sales (organization_id, client_id, artwork_name, amount, sale_date, notes)
			VALUES ($1, $2, $3, $4, COALESCE($5::date, current_date), $6)
			RETURNING id`,
			orgID, clientID, in.ArtworkName, in.Amount, in.SaleDate, in.Notes,
		).Scan(&id); err != nil {
			return err
		}
		if err := touchClient(ctx, tx, orgID, clientID); err != nil {
			return err
		}
		v, err = getSaleTx(ctx, tx, orgID, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create sale: %w", err)
	}
	return v, nil
}

// UpdateSale replaces the writable fields. Returns (nil, nil) if not found.
func (s *Store) UpdateSale(ctx context.Context, orgID, id uuid.UUID, in SaleInput) (*Sale, error) {
	var v *Sale
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE sales
			SET artwork_name = $3, amount = $4, sale_date = COALESCE($5::date, sale_date), notes = $6, updated_at = now()
			WHERE id = $1 AND organization_id = $2`,
			id, orgID, in.ArtworkName, in.Amount, in.SaleDate, in.Notes)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err
		}
		v, err = getSaleTx(ctx, tx, orgID, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update sale: %w", err)
	}
	return v, nil
}

// DeleteSale removes a sale. Returns false if it did not exist.
func (s *Store) DeleteSale(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	return s.execAffected(ctx, orgID, "delete sale",
		`DELETE FROM sales WHERE id = $1 AND organization_id = $2`, id, orgID)
}

// ListClientSales returns a client's sales, most recent sale date first.
func (s *Store) ListClientSales(ctx context.Context, orgID, clientID uuid.UUID) ([]Sale, error) {
	var result []Sale
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+saleColumns+`
			 FROM sales s JOIN clients c ON c.id = s.client_id
			 WHERE s.organization_id = $1 AND s.client_id = $2
			 ORDER BY s.sale_date DESC, s.created_at DESC`,
			orgID, clientID)
		if err != nil {
			return err
		}
		defer rows.Close() //nolint:errcheck
		for rows.Next() {
			v, err := scanSale(rows)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			result = append(result, *v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list client sales: %w", err)
	}
	return result, nil
}
