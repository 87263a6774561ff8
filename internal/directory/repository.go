package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateOrganization inserts a new organization. Names are unique.
func (r *Repository) CreateOrganization(ctx context.Context, name string) (Organization, error) {
	var org Organization
	row := r.pool.QueryRow(ctx, `INSERT INTO organizations (name) VALUES ($1)
		RETURNING id, name, created_at, updated_at`, name)
	if err := row.Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return Organization{}, shared.ErrDuplicate
		}
		return Organization{}, fmt.Errorf("directory: create organization: %w", err)
	}
	return org, nil
}

// GetOrganization fetches an organization by ID.
func (r *Repository) GetOrganization(ctx context.Context, id int64) (Organization, error) {
	var org Organization
	row := r.pool.QueryRow(ctx, `SELECT id, name, created_at, updated_at
		FROM organizations WHERE id = $1`, id)
	if err := row.Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, shared.ErrNotFound
		}
		return Organization{}, fmt.Errorf("directory: get organization: %w", err)
	}
	return org, nil
}

// ListOrganizations returns all organizations ordered by name.
func (r *Repository) ListOrganizations(ctx context.Context) ([]Organization, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at, updated_at
		FROM organizations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("directory: list organizations: %w", err)
	}
	defer rows.Close()
	var orgs []Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, fmt.Errorf("directory: list organizations: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// CreateTeam inserts a new team. Names are unique per organization.
func (r *Repository) CreateTeam(ctx context.Context, orgID int64, name string) (Team, error) {
	var team Team
	row := r.pool.QueryRow(ctx, `INSERT INTO teams (org_id, name) VALUES ($1, $2)
		RETURNING id, org_id, name, created_at, updated_at`, orgID, name)
	if err := row.Scan(&team.ID, &team.OrgID, &team.Name, &team.CreatedAt, &team.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return Team{}, shared.ErrDuplicate
		}
		return Team{}, fmt.Errorf("directory: create team: %w", err)
	}
	return team, nil
}

// ListTeams returns an organization's teams ordered by name.
func (r *Repository) ListTeams(ctx context.Context, orgID int64) ([]Team, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, org_id, name, created_at, updated_at
		FROM teams WHERE org_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("directory: list teams: %w", err)
	}
	defer rows.Close()
	var teams []Team
	for rows.Next() {
		var team Team
		if err := rows.Scan(&team.ID, &team.OrgID, &team.Name, &team.CreatedAt, &team.UpdatedAt); err != nil {
			return nil, fmt.Errorf("directory: list teams: %w", err)
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
