// ABOUTME: Store methods for gallery inventory (artworks owned or on consignment).
// ABOUTME: Deletion is soft; listing supports search and status filters via squirrel.
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

const inventoryColumns = "id, organization_id, title, artist, medium, dimensions, year, asking_price, reserve_price, image_path, status, source, consignor, notes, created_at, updated_at"

func scanInventory(row rowScanner) (*InventoryItem, error) {
	var it InventoryItem
	if err := row.Scan(
		&it.ID, &it.OrganizationID, &it.Title, &it.Artist, &it.Medium, &it.Dimensions,
		&it.Year, &it.AskingPrice, &it.ReservePrice, &it.ImagePath,
		&it.Status, &it.Source, &it.Consignor, &it.Notes,
		&it.CreatedAt, &it.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &it, nil
}

func insertInventoryTx(ctx context.Context, tx *sql.Tx, orgID uuid.UUID, in InventoryInput) (*InventoryItem, error) {
	return scanInventory(tx.QueryRowContext(ctx, `
		INSERT INTO inventory (organization_id, title, artist, medium, dimensions, year,
		                       asking_price, reserve_price, image_path, status, source, consignor, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+inventoryColumns,
		orgID, in.Title, in.Artist, in.Medium, in.Dimensions, in.Year,
		in.AskingPrice, in.ReservePrice, in.ImagePath, in.Status, in.Source, in.Consignor, in.Notes))
}

// CreateInventoryItem inserts an item into orgID.
func (s *Store) CreateInventoryItem(ctx context.Context, orgID uuid.UUID, in InventoryInput) (*InventoryItem, error) {
	var it *InventoryItem
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		var err error
		it, err = insertInventoryTx(ctx, tx, orgID, in)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create inventory item: %w", err)
	}
	return it, nil
}

// ImportInventory inserts rows one at a time, each in its own savepoint so
// a failing row does not abort the rest. It returns the number imported and
// a message per failed row.
func (s *Store) ImportInventory(ctx context.Context, orgID uuid.UUID, rows []InventoryInput) (int, []string, error) {
	var (
		imported int
		failures []string
	)
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		for _, in := range rows {
			if _, err := tx.ExecContext(ctx, "SAVEPOINT import_row"); err != nil {
				return err
			}
			if _, err := insertInventoryTx(ctx, tx, orgID, in); err != nil {
				if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT import_row"); rbErr != nil {
					return rbErr
				}
				failures = append(failures, fmt.Sprintf("Failed to import %q: %v", in.Title, err))
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
		return 0, nil, fmt.Errorf("import inventory: %w", err)
	}
	return imported, failures, nil
}

// GetInventoryItem returns a live item, or (nil, nil) if not found or deleted.
func (s *Store) GetInventoryItem(ctx context.Context, orgID, id uuid.UUID) (*InventoryItem, error) {
	var it *InventoryItem
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		var err error
		it, err = scanInventory(tx.QueryRowContext(ctx,
			`SELECT `+inventoryColumns+` FROM inventory
			 WHERE id = $1 AND organization_id = $2 AND NOT is_deleted`,
			id, orgID))
		if errors.Is(err, sql.ErrNoRows) {
			it = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get inventory item: %w", err)
	}
	return it, nil
}

// UpdateInventoryItem replaces the writable fields of a live item. Returns
// (nil, nil) if not found or deleted.
func (s *Store) UpdateInventoryItem(ctx context.Context, orgID, id uuid.UUID, in InventoryInput) (*InventoryItem, error) {
	var it *InventoryItem
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		var err error
		it, err = scanInventory(tx.QueryRowContext(ctx, `
			UPDATE inventory
			SET title = $3, artist = $4, medium = $5, dimensions = $6, year = $7,
			    asking_price = $8, reserve_price = $9, image_path = $10, status = $11,
			    source = $12, consignor = $13, notes = $14, updated_at = now()
			WHERE id = $1 AND organization_id = $2 AND NOT is_deleted
			RETURNING `+inventoryColumns,
			id, orgID, in.Title, in.Artist, in.Medium, in.Dimensions, in.Year,
			in.AskingPrice, in.ReservePrice, in.ImagePath, in.Status, in.Source, in.Consignor, in.Notes))
		if errors.Is(err, sql.ErrNoRows) {
			it = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update inventory item: %w", err)
	}
	return it, nil
}

// SoftDeleteInventoryItem marks an item deleted. Returns false if it was not
// found or already deleted.
func (s *Store) SoftDeleteInventoryItem(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	return s.execAffected(ctx, orgID, "soft delete inventory item", `
		UPDATE inventory SET is_deleted = true, updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND NOT is_deleted`,
		id, orgID)
}

// ListInventory returns live items of orgID, newest first. Search (two
// characters or more) matches title, artist, medium and notes.
func (s *Store) ListInventory(ctx context.Context, orgID uuid.UUID, f InventoryFilter) ([]InventoryItem, error) {
	sb := psql.
		Select(inventoryColumns).
		From("inventory").
		Where(sq.Eq{"organization_id": orgID}).
		Where("NOT is_deleted").
		OrderBy("created_at DESC")

	if q := strings.TrimSpace(f.Search); len(q) >= 2 {
		pattern := "%" + q + "%"
		sb = sb.Where(sq.Or{
			sq.ILike{"title": pattern},
			sq.ILike{"artist": pattern},
			sq.ILike{"medium": pattern},
			sq.ILike{"notes": pattern},
		})
	}
	if f.Status != "" {
		sb = sb.Where(sq.Eq{"status": f.Status})
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("list inventory: build query: %w", err)
	}

	var result []InventoryItem
	err = s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close() //nolint:errcheck
		for rows.Next() {
			it, err := scanInventory(rows)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			result = append(result, *it)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	return result, nil
}

// ListInventoryArtists returns the distinct artist names on live items of
// orgID, sorted. Blank and NULL artists are skipped.
func (s *Store) ListInventoryArtists(ctx context.Context, orgID uuid.UUID) ([]string, error) {
	values, err := s.distinctInventoryValues(ctx, orgID, "artist")
	if err != nil {
		return nil, fmt.Errorf("list inventory artists: %w", err)
	}
	return values, nil
}

// ListInventoryMediums is ListInventoryArtists for the medium column.
func (s *Store) ListInventoryMediums(ctx context.Context, orgID uuid.UUID) ([]string, error) {
	values, err := s.distinctInventoryValues(ctx, orgID, "medium")
	if err != nil {
		return nil, fmt.Errorf("list inventory mediums: %w", err)
	}
	return values, nil
}

// distinctInventoryValues reads one text column. column is always a
// constant from this file.
func (s *Store) distinctInventoryValues(ctx context.Context, orgID uuid.UUID, column string) ([]string, error) {
	query, args, err := psql.
		Select("DISTINCT " + column).
		From("inventory").
		Where(sq.Eq{"organization_id": orgID}).
		Where("NOT is_deleted").
		Where(sq.NotEq{column: nil}).
		Where(column + " <> ''").
		OrderBy(column).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var values []string
	err = s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close() //nolint:errcheck
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			values = append(values, v)
		}
		return rows.Err()
	})
	return values, err
}
