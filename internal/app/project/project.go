// Package project manages the project registry that groups tasks.
package project

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/domain"
)

// Service creates and looks up projects.
type Service struct {
	store domain.Store
	clock domain.Clock
}

// New creates a project Service.
func New(store domain.Store, clock domain.Clock) *Service {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Service{store: store, clock: clock}
}

// Create registers a new project. Names are unique.
func (s *Service) Create(ctx context.Context, name, description string) (*domain.Project, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	p := &domain.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   s.clock.Now(),
	}
	err := s.store.InTx(ctx, func(tx domain.Tx) error {
		return tx.InsertProject(p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Get retrieves a project by ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.Project, error) {
	var p *domain.Project
	err := s.store.InTx(ctx, func(tx domain.Tx) error {
		var err error
		p, err = tx.GetProject(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetByName retrieves a project by its unique name.
func (s *Service) GetByName(ctx context.Context, name string) (*domain.Project, error) {
	var p *domain.Project
	err := s.store.InTx(ctx, func(tx domain.Tx) error {
		var err error
		p, err = tx.GetProjectByName(name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List returns all projects ordered by name.
func (s *Service) List(ctx context.Context) ([]domain.Project, error) {
	var projects []domain.Project
	err := s.store.InTx(ctx, func(tx domain.Tx) error {
		var err error
		projects, err = tx.ListProjects()
		return err
	})
	if err != nil {
		return nil, err
	}
	return projects, nil
}
