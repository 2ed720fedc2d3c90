// ABOUTME: Enquiry operations: what a client is looking for (artist, size, budget).
package crm

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/access"
	"github.com/patroncollective/patron/internal/store"
)

func cleanEnquiryInput(in store.EnquiryInput) store.EnquiryInput {
	return store.EnquiryInput{
		Size:     optional(in.Size),
		Budget:   optional(in.Budget),
		Artist:   optional(in.Artist),
		Timeline: optional(in.Timeline),
		WorkType: optional(in.WorkType),
		Notes:    optional(in.Notes),
	}
}

// CreateEnquiry records an enquiry against a client.
func (s *Service) CreateEnquiry(ctx context.Context, userID, clientID uuid.UUID, in store.EnquiryInput) (*store.Enquiry, error) {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityMutate)
	if err != nil {
		return nil, err
	}
	e, err := s.repo.CreateEnquiry(ctx, ac.OrganizationID, clientID, cleanEnquiryInput(in))
	if err != nil {
		return nil, fmt.Errorf("create enquiry: %w", err)
	}
	if e == nil {
		return nil, ErrNotFound
	}
	return e, nil
}

// UpdateEnquiry replaces an enquiry's fields.
func (s *Service) UpdateEnquiry(ctx context.Context, userID, id uuid.UUID, in store.EnquiryInput) (*store.Enquiry, error) {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityMutate)
	if err != nil {
		return nil, err
	}
	return found(s.repo.UpdateEnquiry(ctx, ac.OrganizationID, id, cleanEnquiryInput(in)))
}

// DeleteEnquiry removes an enquiry permanently.
func (s *Service) DeleteEnquiry(ctx context.Context, userID, id uuid.UUID) error {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityDelete)
	if err != nil {
		return err
	}
	return affected(s.repo.DeleteEnquiry(ctx, ac.OrganizationID, id))
}

// ListEnquiries lists enquiries, optionally for one client and filtered by
// a search term.
func (s *Service) ListEnquiries(ctx context.Context, userID uuid.UUID, clientID uuid.NullUUID, search string) ([]store.Enquiry, error) {
	ac, err := s.authorizeRead(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListEnquiries(ctx, ac.OrganizationID, clientID, search)
}
