// ABOUTME: Note and follow-up operations, plus the caller's due follow-ups for today.
// ABOUTME: Today is computed in the caller's profile timezone.
package crm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/access"
	"github.com/patroncollective/patron/internal/store"
)

// dateOnly truncates t to midnight UTC of its calendar day.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CreateNote adds a note to a client. A non-nil followUp schedules a
// pending follow-up on that calendar day.
func (s *Service) CreateNote(ctx context.Context, userID, clientID uuid.UUID, content string, followUp *time.Time) (*store.Note, error) {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityMutate)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalid("content", "Note content is required")
	}
	if followUp != nil {
		d := dateOnly(*followUp)
		followUp = &d
	}
	n, err := s.repo.CreateNote(ctx, ac.OrganizationID, clientID, content, followUp)
	if err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}
	if n == nil {
		return nil, ErrNotFound
	}
	return n, nil
}

// UpdateNote replaces a note's content.
func (s *Service) UpdateNote(ctx context.Context, userID, id uuid.UUID, content string) (*store.Note, error) {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityMutate)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalid("content", "Note content is required")
	}
	return found(s.repo.UpdateNoteContent(ctx, ac.OrganizationID, id, content))
}

// DeleteNote removes a note permanently.
func (s *Service) DeleteNote(ctx context.Context, userID, id uuid.UUID) error {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityDelete)
	if err != nil {
		return err
	}
	return affected(s.repo.DeleteNote(ctx, ac.OrganizationID, id))
}

// CompleteFollowUp marks a note's follow-up done.
func (s *Service) CompleteFollowUp(ctx context.Context, userID, id uuid.UUID) error {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityMutate)
	if err != nil {
		return err
	}
	return affected(s.repo.CompleteFollowUp(ctx, ac.OrganizationID, id))
}

// RescheduleFollowUp moves a follow-up to date and makes it pending again.
func (s *Service) RescheduleFollowUp(ctx context.Context, userID, id uuid.UUID, date time.Time) error {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityMutate)
	if err != nil {
		return err
	}
	if date.IsZero() {
		return invalid("follow_up_date", "A follow-up date is required")
	}
	return affected(s.repo.RescheduleFollowUp(ctx, ac.OrganizationID, id, dateOnly(date)))
}

// ListClientNotes returns a client's notes, newest first.
func (s *Service) ListClientNotes(ctx context.Context, userID, clientID uuid.UUID) ([]store.Note, error) {
	ac, err := s.authorizeRead(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListClientNotes(ctx, ac.OrganizationID, clientID)
}

// Today returns the organization's pending follow-ups due on or before the
// current day in the caller's timezone.
func (s *Service) Today(ctx context.Context, userID uuid.UUID) ([]store.FollowUp, error) {
	ac, err := s.authorizeRead(ctx, userID)
	if err != nil {
		return nil, err
	}
	loc := time.UTC
	if p, err := s.repo.GetProfile(ctx, userID); err == nil && p != nil {
		if l, err := time.LoadLocation(p.Timezone); err == nil {
			loc = l
		}
	}
	today := dateOnly(s.gate.Now().In(loc))
	return s.repo.ListDueFollowUps(ctx, ac.OrganizationID, today)
}
