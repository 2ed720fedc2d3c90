// ABOUTME: Client operations: CRUD, search, tags and bulk import.
// ABOUTME: Deletion is a soft delete and requires the delete permission.
package crm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/access"
	"github.com/patroncollective/patron/internal/store"
)

const maxClientPage = 200

func cleanClientInput(in store.ClientInput) (store.ClientInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, invalid("name", "Name is required")
	}
	in.Phone = optional(in.Phone)
	in.Email = optional(in.Email)
	in.Location = optional(in.Location)
	in.Country = optional(in.Country)
	in.AgeRange = optional(in.AgeRange)
	return in, nil
}

// optional trims s and maps blank strings to nil.
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// CreateClient adds a client to the caller's organization.
func (s *Service) CreateClient(ctx context.Context, userID uuid.UUID, in store.ClientInput) (*store.Client, error) {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityMutate)
	if err != nil {
		return nil, err
	}
	in, err = cleanClientInput(in)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.CreateClient(ctx, ac.OrganizationID, in)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

// UpdateClient replaces the writable fields of a client.
func (s *Service) UpdateClient(ctx context.Context, userID, id uuid.UUID, in store.ClientInput) (*store.Client, error) {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityMutate)
	if err != nil {
		return nil, err
	}
	in, err = cleanClientInput(in)
	if err != nil {
		return nil, err
	}
	return found(s.repo.UpdateClient(ctx, ac.OrganizationID, id, in))
}

// DeleteClient soft-deletes a client.
func (s *Service) DeleteClient(ctx context.Context, userID, id uuid.UUID) error {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityDelete)
	if err != nil {
		return err
	}
	return affected(s.repo.SoftDeleteClient(ctx, ac.OrganizationID, id))
}

// GetClient returns a live client.
func (s *Service) GetClient(ctx context.Context, userID, id uuid.UUID) (*store.Client, error) {
	ac, err := s.authorizeRead(ctx, userID)
	if err != nil {
		return nil, err
	}
	return found(s.repo.GetClient(ctx, ac.OrganizationID, id))
}

// ListClients returns clients matching f, most recently active first.
func (s *Service) ListClients(ctx context.Context, userID uuid.UUID, f store.ClientFilter) ([]store.Client, error) {
	ac, err := s.authorizeRead(ctx, userID)
	if err != nil {
		return nil, err
	}
	if f.Limit <= 0 || f.Limit > maxClientPage {
		f.Limit = maxClientPage
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.ListClients(ctx, ac.OrganizationID, f)
}

// ListClientTags returns the distinct tags in use.
func (s *Service) ListClientTags(ctx context.Context, userID uuid.UUID) ([]string, error) {
	ac, err := s.authorizeRead(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListClientTags(ctx, ac.OrganizationID)
}

// ClientImportRow is one row of a client import. Tags is comma separated.
type ClientImportRow struct {
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Location string `json:"location,omitempty"`
	Country  string `json:"country,omitempty"`
	Tags     string `json:"tags,omitempty"`
}

// ImportResult reports a bulk import. Errors has one message per skipped
// or failed row.
type ImportResult struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors"`
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func blankToNil(s string) *string {
	return optional(&s)
}

// ImportClients bulk-inserts clients. Rows without a name are skipped and
// reported; a failing row does not stop the rest.
func (s *Service) ImportClients(ctx context.Context, userID uuid.UUID, rows []ClientImportRow) (*ImportResult, error) {
	ac, err := s.authorizeWrite(ctx, userID, access.CapabilityMutate)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Errors: []string{}}
	inputs := make([]store.ClientInput, 0, len(rows))
	for _, r := range rows {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			res.Errors = append(res.Errors, "Skipped row with no name")
			continue
		}
		inputs = append(inputs, store.ClientInput{
			Name:     name,
			Phone:    blankToNil(r.Phone),
			Email:    blankToNil(r.Email),
			Location: blankToNil(r.Location),
			Country:  blankToNil(r.Country),
			Tags:     splitTags(r.Tags),
		})
	}
	if len(inputs) == 0 {
		return res, nil
	}

	n, failures, err := s.repo.ImportClients(ctx, ac.OrganizationID, inputs)
	if err != nil {
		return nil, fmt.Errorf("import clients: %w", err)
	}
	res.Imported = n
	res.Errors = append(res.Errors, failures...)
	return res, nil
}
