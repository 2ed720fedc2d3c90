// ABOUTME: Inventory operations with pricing redaction on every read path.
// ABOUTME: Import normalizes status and source and drops unparsable numbers.
package crm

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/access"
	"github.com/patroncollective/patron/internal/store"
)

func validInventoryStatus(s string) bool {
	switch s {
	case store.InventoryAvailable, store.InventoryReserved, store.InventorySold, store.InventoryNotForSale:
		return true
	}
	return false
}

func validInventorySource(s string) bool {
	return s == store.SourceOwned || s == store.SourceConsignment
}

func validPrice(p *float64) bool {
	return p == nil || (*p >= 0 && !math.IsNaN(*p) && !math.IsInf(*p, 0))
}

func cleanInventoryInput(in store.InventoryInput) (store.InventoryInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, invalid("title", "Title is required")
	}
	in.Status = strings.TrimSpace(in.Status)
	if in.Status == "" {
		in.Status = store.InventoryAvailable
	}
	if !validInventoryStatus(in.Status) {
		return in, invalid("status", fmt.Sprintf("Unknown status %q", in.Status))
	}
	in.Source = strings.TrimSpace(in.Source)
	if in.Source == "" {
		in.Source = store.SourceOwned
	}
	if !validInventorySource(in.Source) {
		return in, invalid("source", fmt.Sprintf("Unknown source %q", in.Source))
	}
	if !validPrice(in.AskingPrice) {
		return in, invalid("asking_price", "Asking price cannot be negative")
	}
	if !validPrice(in.ReservePrice) {
		return in, invalid("reserve_price", "Reserve price cannot be negative")
	}
	in.Artist = optional(in.Artist)
	in.Medium = optional(in.Medium)
	in.Dimensions = optional(in.Dimensions)
	in.ImagePath = optional(in.ImagePath)
	in.Consignor = optional(in.Consignor)
	in.Notes = optional(in.Notes)
	return in, nil
}

// redactPricing clears price fields the caller may not see.
func redactPricing(ac access.Context, it *store.InventoryItem) {
	if it == nil || ac.CanSeePricing() {
		return
	}
	it.AskingPrice = nil
	it.ReservePrice = nil
}

// CreateInventoryItem adds an artwork to inventory.
func (s *Service) CreateInventoryItem(ctx context.Context, userID uuid.UUID, in store.InventoryInput) (*store.InventoryItem, error) {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityMutate)
	if err != nil {
		return nil, err
	}
	in, err = cleanInventoryInput(in)
	if err != nil {
		return nil, err
	}
	it, err := s.repo.CreateInventoryItem(ctx, ac.OrganizationID, in)
	if err != nil {
		return nil, fmt.Errorf("create inventory item: %w", err)
	}
	redactPricing(ac, it)
	return it, nil
}

// UpdateInventoryItem replaces an item's fields.
func (s *Service) UpdateInventoryItem(ctx context.Context, userID, id uuid.UUID, in store.InventoryInput) (*store.InventoryItem, error) {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityMutate)
	if err != nil {
		return nil, err
	}
	in, err = cleanInventoryInput(in)
	if err != nil {
		return nil, err
	}
	it, err := found(s.repo.UpdateInventoryItem(ctx, ac.OrganizationID, id, in))
	if err != nil {
		return nil, err
	}
	redactPricing(ac, it)
	return it, nil
}

// DeleteInventoryItem soft-deletes an item.
func (s *Service) DeleteInventoryItem(ctx context.Context, userID, id uuid.UUID) error {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityDelete)
	if err != nil {
		return err
	}
	return affected(s.repo.SoftDeleteInventoryItem(ctx, ac.OrganizationID, id))
}

// GetInventoryItem returns a live item. Prices are omitted unless the
// caller can see pricing.
func (s *Service) GetInventoryItem(ctx context.Context, userID, id uuid.UUID) (*store.InventoryItem, error) {
	ac, err := s.authorizeRead(ctx, userID)
	if err != nil {
		return nil, err
	}
	it, err := found(s.repo.GetInventoryItem(ctx, ac.OrganizationID, id))
	if err != nil {
		return nil, err
	}
	redactPricing(ac, it)
	return it, nil
}

// ListInventoryArtists returns the artist names already in use, for
// autocomplete.
func (s *Service) ListInventoryArtists(ctx context.Context, userID uuid.UUID) ([]string, error) {
	ac, err := s.authorizeRead(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListInventoryArtists(ctx, ac.OrganizationID)
}

// ListInventoryMediums returns the mediums already in use.
func (s *Service) ListInventoryMediums(ctx context.Context, userID uuid.UUID) ([]string, error) {
	ac, err := s.authorizeRead(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListInventoryMediums(ctx, ac.OrganizationID)
}

// ListInventory lists live items matching f, with prices redacted as in
// GetInventoryItem.
func (s *Service) ListInventory(ctx context.Context, userID uuid.UUID, f store.InventoryFilter) ([]store.InventoryItem, error) {
	ac, err := s.authorizeRead(ctx, userID)
	if err != nil {
		return nil, err
	}
	if f.Status != "" && !validInventoryStatus(f.Status) {
		return nil, invalid("status", fmt.Sprintf("Unknown status %q", f.Status))
	}
	items, err := s.repo.ListInventory(ctx, ac.OrganizationID, f)
	if err != nil {
		return nil, err
	}
	for i := range items {
		redactPricing(ac, &items[i])
	}
	return items, nil
}

// InventoryImportRow is one row of an inventory import; every field is the
// raw cell text.
type InventoryImportRow struct {
	Title        string `json:"title"`
	Artist       string `json:"artist,omitempty"`
	Medium       string `json:"medium,omitempty"`
	Dimensions   string `json:"dimensions,omitempty"`
	Year         string `json:"year,omitempty"`
	AskingPrice  string `json:"asking_price,omitempty"`
	ReservePrice string `json:"reserve_price,omitempty"`
	Status       string `json:"status,omitempty"`
	Source       string `json:"source,omitempty"`
	Consignor    string `json:"consignor,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

func parseYear(s string) *int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v == 0 {
		return nil
	}
	return &v
}

func parsePrice(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v == 0 || !validPrice(&v) {
		return nil
	}
	return &v
}

// normalizeImportRow maps a raw row onto an input. Unknown statuses become
// available, unknown sources become owned.
func normalizeImportRow(r InventoryImportRow) store.InventoryInput {
	status := strings.ToLower(strings.TrimSpace(r.Status))
	if !validInventoryStatus(status) {
		status = store.InventoryAvailable
	}
	source := strings.ToLower(strings.TrimSpace(r.Source))
	if !validInventorySource(source) {
		source = store.SourceOwned
	}
	return store.InventoryInput{
		Title:        strings.TrimSpace(r.Title),
		Artist:       blankToNil(r.Artist),
		Medium:       blankToNil(r.Medium),
		Dimensions:   blankToNil(r.Dimensions),
		Year:         parseYear(r.Year),
		AskingPrice:  parsePrice(r.AskingPrice),
		ReservePrice: parsePrice(r.ReservePrice),
		Status:       status,
		Source:       source,
		Consignor:    blankToNil(r.Consignor),
		Notes:        blankToNil(r.Notes),
	}
}

// ImportInventory bulk-inserts inventory rows. Rows without a title are
// skipped and reported.
func (s *Service) ImportInventory(ctx context.Context, userID uuid.UUID, rows []InventoryImportRow) (*ImportResult, error) {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityMutate)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Errors: []string{}}
	inputs := make([]store.InventoryInput, 0, len(rows))
	for _, r := range rows {
		in := normalizeImportRow(r)
		if in.Title == "" {
			res.Errors = append(res.Errors, "Skipped row with no title")
			continue
		}
		inputs = append(inputs, in)
	}
	if len(inputs) == 0 {
		return res, nil
	}

	n, failures, err := s.repo.ImportInventory(ctx, ac.OrganizationID, inputs)
	if err != nil {
		return nil, fmt.Errorf("import inventory: %w", err)
	}
	res.Imported = n
	res.Errors = append(res.Errors, failures...)
	return res, nil
}
