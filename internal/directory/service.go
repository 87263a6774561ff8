package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort defines data access methods for the directory.
type RepositoryPort interface {
	CreateOrganization(ctx context.Context, name string) (Organization, error)
	GetOrganization(ctx context.Context, id int64) (Organization, error)
	ListOrganizations(ctx context.Context) ([]Organization, error)
	CreateTeam(ctx context.Context, orgID int64, name string) (Team, error)
	ListTeams(ctx context.Context, orgID int64) ([]Team, error)
}

// Service handles organization and team business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateOrganization inserts a new organization.
func (s *Service) CreateOrganization(ctx context.Context, name string) (Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Organization{}, fmt.Errorf("organization name required: %w", shared.ErrValidation)
	}
	return s.repo.CreateOrganization(ctx, name)
}

// GetOrganization fetches an organization by ID.
func (s *Service) GetOrganization(ctx context.Context, id int64) (Organization, error) {
	return s.repo.GetOrganization(ctx, id)
}

// ListOrganizations returns all organizations.
func (s *Service) ListOrganizations(ctx context.Context) ([]Organization, error) {
	return s.repo.ListOrganizations(ctx)
}

// CreateTeam inserts a new team under an organization.
func (s *Service) CreateTeam(ctx context.Context, orgID int64, name string) (Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Team{}, fmt.Errorf("team name required: %w", shared.ErrValidation)
	}
	if _, err := s.repo.GetOrganization(ctx, orgID); err != nil {
		return Team{}, fmt.Errorf("organization %d: %w", orgID, err)
	}
	return s.repo.CreateTeam(ctx, orgID, name)
}

// ListTeams returns an organization's teams.
func (s *Service) ListTeams(ctx context.Context, orgID int64) ([]Team, error) {
	return s.repo.ListTeams(ctx, orgID)
}
