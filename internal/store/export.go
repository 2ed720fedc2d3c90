// ABOUTME: Store method that dumps an organization's clients, notes and sales for download.
// ABOUTME: All three reads share one org-scoped transaction so the export is consistent.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// ExportOrganization returns every live client of orgID with all notes and
// sales on them.
func (s *Store) ExportOrganization(ctx context.Context, orgID uuid.UUID) (*Export, error) {
	out := &Export{Clients: []Client{}, Notes: []Note{}, Sales: []Sale{}}
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+clientColumns+` FROM clients
			 WHERE organization_id = $1 AND NOT is_deleted ORDER BY name`, orgID)
		if err != nil {
			return fmt.Errorf("clients: %w", err)
		}
		for rows.Next() {
			c, err := scanClient(rows)
			if err != nil {
				rows.Close() //nolint:errcheck,gosec
				return fmt.Errorf("clients: scan: %w", err)
			}
			out.Clients = append(out.Clients, *c)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("clients: %w", err)
		}

		rows, err = tx.QueryContext(ctx,
			`SELECT n.id, n.organization_id, n.client_id, n.content, n.follow_up_date,
			        n.follow_up_status, n.created_at, n.updated_at
			 FROM notes n JOIN clients c ON c.id = n.client_id AND NOT c.is_deleted
			 WHERE n.organization_id = $1 ORDER BY n.created_at DESC`, orgID)
		if err != nil {
			return fmt.Errorf("notes: %w", err)
		}
		for rows.Next() {
			n, err := scanNote(rows)
			if err != nil {
				rows.Close() //nolint:errcheck,gosec
				return fmt.Errorf("notes: scan: %w", err)
			}
			out.Notes = append(out.Notes, *n)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("notes: %w", err)
		}

		rows, err = tx.QueryContext(ctx,
			`SELECT `+saleColumns+`
			 FROM sales s JOIN clients c ON c.id = s.client_id AND NOT c.is_deleted
			 WHERE s.organization_id = $1 ORDER BY s.sale_date DESC`, orgID)
		if err != nil {
			return fmt.Errorf("sales: %w", err)
		}
		for rows.Next() {
			v, err := scanSale(rows)
			if err != nil {
				rows.Close() //nolint:errcheck,gosec
				return fmt.Errorf("sales: scan: %w", err)
			}
			out.Sales = append(out.Sales, *v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("export organization: %w", err)
	}
	return out, nil
}
