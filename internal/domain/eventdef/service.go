package eventdef

import (
	"context"
	"encoding/json"
	"fmt"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register declares a new custom event definition. The name must follow the
// <resource>.<action> convention and be unique across the catalog.
func (s *Service) Register(ctx context.Context, name, category, description string, schema, example json.RawMessage) (*Definition, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if category == "" {
		category = "custom"
	}

	def := &Definition{
		Name:        name,
		Category:    category,
		Description: description,
		Schema:      schema,
		Example:     example,
		IsSystem:    false,
		Active:      true,
	}
	if err := s.repo.Create(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// Lookup returns the definition for name, or ErrNotFound.
func (s *Service) Lookup(ctx context.Context, name string) (*Definition, error) {
	return s.repo.GetByName(ctx, name)
}

// LookupActive returns the definition only when it exists and is active.
func (s *Service) LookupActive(ctx context.Context, name string) (*Definition, error) {
	def, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !def.Active {
		return nil, ErrNotFound
	}
	return def, nil
}

// List returns all definitions, optionally filtered by category, grouped by
// category in the returned map.
func (s *Service) List(ctx context.Context, category string) (map[string][]*Definition, error) {
	defs, err := s.repo.List(ctx, category)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]*Definition)
	for _, d := range defs {
		grouped[d.Category] = append(grouped[d.Category], d)
	}
	return grouped, nil
}

// SetActive activates or deactivates a custom definition. System definitions
// cannot be deactivated.
func (s *Service) SetActive(ctx context.Context, name string, active bool) (*Definition, error) {
	def, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if def.IsSystem {
		return nil, ErrSystemImmutable
	}
	def.Active = active
	if err := s.repo.Update(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// Delete removes a custom definition. System definitions cannot be deleted.
func (s *Service) Delete(ctx context.Context, name string) error {
	def, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if def.IsSystem {
		return ErrSystemImmutable
	}
	return s.repo.Delete(ctx, name)
}
