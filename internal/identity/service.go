package identity

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-erp/meridian-erp/internal/permissions"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUsersByRole(ctx context.Context, orgID int64, role permissions.Role) ([]User, error)
	GetUsersByIDs(ctx context.Context, ids []int64) ([]User, error)
}

// Service handles identity lookups and credential checks.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// GetUser fetches a user by ID.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// GetUsersByRole returns active users of an organization with the base role.
func (s *Service) GetUsersByRole(ctx context.Context, orgID int64, role permissions.Role) ([]User, error) {
	return s.repo.GetUsersByRole(ctx, orgID, role)
}

// GetUsersByIDs returns the users for the given identifiers.
func (s *Service) GetUsersByIDs(ctx context.Context, ids []int64) ([]User, error) {
	return s.repo.GetUsersByIDs(ctx, ids)
}

// Subject resolves the merge-engine view of a user.
func (s *Service) Subject(ctx context.Context, id int64) (permissions.Subject, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return permissions.Subject{}, err
	}
	return u.Subject(), nil
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return User{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}
