// ABOUTME: Store methods for client notes and the follow-ups they carry.
// ABOUTME: Adding a note touches the client so it sorts to the top of the client list.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const noteColumns = "id, organization_id, client_id, content, follow_up_date, follow_up_status, created_at, updated_at"

func scanNote(row rowScanner) (*Note, error) {
	var n Note
	if err := row.Scan(
		&n.ID, &n.OrganizationID, &n.ClientID, &n.Content,
		&n.FollowUpDate, &n.FollowUpStatus, &n.CreatedAt, &n.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateNote adds a note to a live client of orgID. A non-nil followUp
// schedules a pending follow-up on that date. Returns (nil, nil) if the
// client does not exist.
func (s *Store) CreateNote(ctx context.Context, orgID, clientID uuid.UUID, content string, followUp *time.Time) (*Note, error) {
	var n *Note
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		ok, err := clientExists(ctx, tx, orgID, clientID)
		if err != nil || !ok {
			return err
		}
		var status *string
		if followUp != nil {
			p := FollowUpPending
			status = &p
		}
		n, err = scanNote(tx.QueryRowContext(ctx, `
			INSERT INTO notes (organization_id, client_id, content, follow_up_date, follow_up_status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+noteColumns,
			orgID, clientID, content, followUp, status))
		if err != nil {
			return err
		}
		return touchClient(ctx, tx, orgID, clientID)
	})
	if err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}
	return n, nil
}

// UpdateNoteContent replaces a note's text. Returns (nil, nil) if not found.
func (s *Store) UpdateNoteContent(ctx context.Context, orgID, id uuid.UUID, content string) (*Note, error) {
	var n *Note
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		var err error
		n, err = scanNote(tx.QueryRowContext(ctx, `
			UPDATE notes SET content = $3, updated_at = now()
			WHERE id = $1 AND organization_id = $2
			RETURNING `+noteColumns,
			id, orgID, content))
		if errors.Is(err, sql.ErrNoRows) {
			n = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}
	return n, nil
}

// DeleteNote removes a note. Returns false if it did not exist.
func (s *Store) DeleteNote(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	return s.execAffected(ctx, orgID, "delete note",
		`DELETE FROM notes WHERE id = $1 AND organization_id = $2`, id, orgID)
}

// ListClientNotes returns a client's notes, newest first.
func (s *Store) ListClientNotes(ctx context.Context, orgID, clientID uuid.UUID) ([]Note, error) {
	var result []Note
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+noteColumns+` FROM notes
			 WHERE organization_id = $1 AND client_id = $2
			 ORDER BY created_at DESC`,
			orgID, clientID)
		if err != nil {
			return err
		}
		defer rows.Close() //nolint:errcheck
		for rows.Next() {
			n, err := scanNote(rows)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			result = append(result, *n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list client notes: %w", err)
	}
	return result, nil
}

// CompleteFollowUp marks a note's follow-up done. Returns false if the note
// does not exist or carries no follow-up.
func (s *Store) CompleteFollowUp(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	return s.execAffected(ctx, orgID, "complete follow-up", `
		UPDATE notes SET follow_up_status = 'done', updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND follow_up_date IS NOT NULL`,
		id, orgID)
}

// RescheduleFollowUp moves a note's follow-up to date and re-arms it.
// Returns false if the note does not exist.
func (s *Store) RescheduleFollowUp(ctx context.Context, orgID, id uuid.UUID, date time.Time) (bool, error) {
	return s.execAffected(ctx, orgID, "reschedule follow-up", `
		UPDATE notes SET follow_up_date = $3, follow_up_status = 'pending', updated_at = now()
		WHERE id = $1 AND organization_id = $2`,
		id, orgID, date)
}

const followUpSelect = `
	SELECT n.id, n.organization_id, n.client_id, c.name, n.content, n.follow_up_date
	FROM notes n
	JOIN clients c ON c.id = n.client_id AND NOT c.is_deleted
	WHERE n.follow_up_status = 'pending' AND n.follow_up_date <= $1`

func scanFollowUps(rows *sql.Rows) ([]FollowUp, error) {
	defer rows.Close() //nolint:errcheck
	var result []FollowUp
	for rows.Next() {
		var f FollowUp
		if err := rows.Scan(&f.NoteID, &f.OrganizationID, &f.ClientID, &f.ClientName, &f.Content, &f.FollowUpDate); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

// ListDueFollowUps returns pending follow-ups of orgID due on or before
// today, oldest first.
func (s *Store) ListDueFollowUps(ctx context.Context, orgID uuid.UUID, today time.Time) ([]FollowUp, error) {
	var result []FollowUp
	err := s.withOrgTx(ctx, orgID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			followUpSelect+` AND n.organization_id = $2 ORDER BY n.follow_up_date, n.created_at`,
			today, orgID)
		if err != nil {
			return err
		}
		result, err = scanFollowUps(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list due follow-ups: %w", err)
	}
	return result, nil
}

// ListAllDueFollowUps returns pending follow-ups due on or before today
// across every organization. Worker path: uses bypass_rls.
func (s *Store) ListAllDueFollowUps(ctx context.Context, today time.Time) ([]FollowUp, error) {
	var result []FollowUp
	err := s.withBypassTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			followUpSelect+` ORDER BY n.organization_id, n.follow_up_date, n.created_at`,
			today)
		if err != nil {
			return err
		}
		result, err = scanFollowUps(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list all due follow-ups: %w", err)
	}
	return result, nil
}

// ListReminderRecipients returns every member of orgID with an email address.
func (s *Store) ListReminderRecipients(ctx context.Context, orgID uuid.UUID) ([]ReminderRecipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.organization_id, u.email, p.full_name
		FROM profiles p
		JOIN users u ON u.id = p.id
		WHERE p.organization_id = $1 AND u.email <> ''
		ORDER BY p.created_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list reminder recipients: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var result []ReminderRecipient
	for rows.Next() {
		var r ReminderRecipient
		if err := rows.Scan(&r.UserID, &r.OrganizationID, &r.Email, &r.FullName); err != nil {
			return nil, fmt.Errorf("list reminder recipients: scan: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
