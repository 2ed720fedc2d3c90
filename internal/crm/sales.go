// ABOUTME: Sale operations recorded against clients.
package crm

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/access"
	"github.com/patroncollective/patron/internal/store"
)

func cleanSaleInput(in store.SaleInput) (store.SaleInput, error) {
	in.ArtworkName = optional(in.ArtworkName)
	in.Notes = optional(in.Notes)
	if in.Amount != nil && (*in.Amount < 0 || math.IsNaN(*in.Amount) || math.IsInf(*in.Amount, 0)) {
		return in, invalid("amount", "Amount cannot be negative")
	}
	if in.SaleDate != nil {
		d := dateOnly(*in.SaleDate)
		in.SaleDate = &d
	}
	return in, nil
}

// CreateSale records a sale to a client. A nil SaleDate means today.
func (s *Service) CreateSale(ctx context.Context, userID, clientID uuid.UUID, in store.SaleInput) (*store.Sale, error) {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityMutate)
	if err != nil {
		return nil, err
	}
	in, err = cleanSaleInput(in)
	if err != nil {
		return nil, err
	}
	sale, err := s.repo.CreateSale(ctx, ac.OrganizationID, clientID, in)
	if err != nil {
		return nil, fmt.Errorf("create sale: %w", err)
	}
	if sale == nil {
		return nil, ErrNotFound
	}
	return sale, nil
}

// UpdateSale replaces a sale's fields.
func (s *Service) UpdateSale(ctx context.Context, userID, id uuid.UUID, in store.SaleInput) (*store.Sale, error) {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityMutate)
	if err != nil {
		return nil, err
	}
	in, err = cleanSaleInput(in)
	if err != nil {
		return nil, err
	}
	return found(s.repo.UpdateSale(ctx, ac.OrganizationID, id, in))
}

// DeleteSale removes a sale permanently.
func (s *Service) DeleteSale(ctx context.Context, userID, id uuid.UUID) error {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityDelete)
	if err != nil {
		return err
	}
	return affected(s.repo.DeleteSale(ctx, ac.OrganizationID, id))
}

// ListClientSales returns a client's sales, most recent first.
func (s *Service) ListClientSales(ctx context.Context, userID, clientID uuid.UUID) ([]store.Sale, error) {
	ac, err := s.authorizeRead(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListClientSales(ctx, ac.OrganizationID, clientID)
}
