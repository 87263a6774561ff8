package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists assignments and templates.
type Repository interface {
	GetAssignment(ctx context.Context, userID int64, scope Scope) (*Assignment, error)
	CreateAssignment(ctx context.Context, a *Assignment) error
	UpdateAssignment(ctx context.Context, a *Assignment) error
	ListStaleAssignments(ctx context.Context, limit int) ([]Assignment, error)
	GetTemplate(ctx context.Context, id int64) (*Template, error)
	CreateTemplate(ctx context.Context, t *Template) error
	UpdateTemplate(ctx context.Context, t *Template) error
	ListTemplates(ctx context.Context, orgID *int64) ([]Template, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const assignmentColumns = `id, user_id, org_id, team_id, source, template_id,
	custom_doc, cached_doc, cached_at, cached_role, template_stamp, defaults_rev,
	version, created_at, updated_at`

// GetAssignment returns the most recently updated assignment matching the
// exact (user, org, team) triple.
func (r *repository) GetAssignment(ctx context.Context, userID int64, scope Scope) (*Assignment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+assignmentColumns+`
		FROM permission_assignments
		WHERE user_id = $1
		  AND org_id IS NOT DISTINCT FROM $2
		  AND team_id IS NOT DISTINCT FROM $3
		ORDER BY updated_at DESC
		LIMIT 1`, userID, scope.OrgID, scope.TeamID)
	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("permissions: get assignment: %w", err)
	}
	return a, nil
}

func (r *repository) CreateAssignment(ctx context.Context, a *Assignment) error {
	customJSON, cachedJSON, err := marshalDocs(a)
	if err != nil {
		return err
	}
	row := r.pool.QueryRow(ctx, `INSERT INTO permission_assignments
		(user_id, org_id, team_id, source, template_id, custom_doc, cached_doc,
		 cached_at, cached_role, template_stamp, defaults_rev, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
		RETURNING id, version, created_at, updated_at`,
		a.UserID, a.Scope.OrgID, a.Scope.TeamID, a.Source, a.TemplateID,
		customJSON, cachedJSON, nullTime(a.CachedAt), nullRole(a.CachedRole),
		nullTime(a.TemplateStamp), a.DefaultsRev)
	if err := row.Scan(&a.ID, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			// Another request created the triple first; callers reload and retry.
			return shared.ErrConflict
		}
		return fmt.Errorf("permissions: create assignment: %w", err)
	}
	return nil
}

// UpdateAssignment saves the assignment with a compare-and-swap on version.
// Returns shared.ErrConflict when a concurrent writer got there first.
func (r *repository) UpdateAssignment(ctx context.Context, a *Assignment) error {
	customJSON, cachedJSON, err := marshalDocs(a)
	if err != nil {
		return err
	}
	row := r.pool.QueryRow(ctx, `UPDATE permission_assignments SET
		source = $1, template_id = $2, custom_doc = $3, cached_doc = $4,
		cached_at = $5, cached_role = $6, template_stamp = $7, defaults_rev = $8,
		version = version + 1, updated_at = NOW()
		WHERE id = $9 AND version = $10
		RETURNING version, updated_at`,
		a.Source, a.TemplateID, customJSON, cachedJSON,
		nullTime(a.CachedAt), nullRole(a.CachedRole), nullTime(a.TemplateStamp),
		a.DefaultsRev, a.ID, a.Version)
	if err := row.Scan(&a.Version, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrConflict
		}
		return fmt.Errorf("permissions: update assignment: %w", err)
	}
	return nil
}

// ListStaleAssignments returns assignments whose cached document can no
// longer be trusted: never computed, computed against an older defaults
// revision, computed for a base role the user no longer holds, or computed
// before their template last changed.
func (r *repository) ListStaleAssignments(ctx context.Context, limit int) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.`+aliasColumns("a")+`
		FROM permission_assignments a
		JOIN users u ON u.id = a.user_id
		LEFT JOIN permission_templates t ON t.id = a.template_id
		WHERE a.cached_doc IS NULL
		   OR a.defaults_rev <> $1
		   OR a.cached_role IS DISTINCT FROM u.base_role
		   OR (a.template_id IS NOT NULL AND (t.updated_at IS NULL OR a.template_stamp <> t.updated_at))
		ORDER BY a.updated_at
		LIMIT $2`, DefaultsRevision, limit)
	if err != nil {
		return nil, fmt.Errorf("permissions: list stale: %w", err)
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("permissions: list stale: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *repository) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, org_id, name, doc, created_at, updated_at
		FROM permission_templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("permissions: get template: %w", err)
	}
	return t, nil
}

func (r *repository) CreateTemplate(ctx context.Context, t *Template) error {
	docJSON, err := json.Marshal(t.Doc)
	if err != nil {
		return fmt.Errorf("permissions: marshal template doc: %w", err)
	}
	row := r.pool.QueryRow(ctx, `INSERT INTO permission_templates (org_id, name, doc)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`, t.OrgID, t.Name, docJSON)
	if err := row.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return fmt.Errorf("permissions: create template: %w", err)
	}
	return nil
}

func (r *repository) UpdateTemplate(ctx context.Context, t *Template) error {
	docJSON, err := json.Marshal(t.Doc)
	if err != nil {
		return fmt.Errorf("permissions: marshal template doc: %w", err)
	}
	row := r.pool.QueryRow(ctx, `UPDATE permission_templates
		SET name = $1, doc = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at`, t.Name, docJSON, t.ID)
	if err := row.Scan(&t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if isUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return fmt.Errorf("permissions: update template: %w", err)
	}
	return nil
}

// ListTemplates returns global templates plus those scoped to orgID.
func (r *repository) ListTemplates(ctx context.Context, orgID *int64) ([]Template, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, org_id, name, doc, created_at, updated_at
		FROM permission_templates
		WHERE org_id IS NULL OR org_id IS NOT DISTINCT FROM $1
		ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("permissions: list templates: %w", err)
	}
	defer rows.Close()
	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("permissions: list templates: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var (
		a             Assignment
		customJSON    []byte
		cachedJSON    []byte
		cachedAt      *time.Time
		cachedRole    *Role
		templateStamp *time.Time
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Scope.OrgID, &a.Scope.TeamID, &a.Source,
		&a.TemplateID, &customJSON, &cachedJSON, &cachedAt, &cachedRole, &templateStamp,
		&a.DefaultsRev, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if len(customJSON) > 0 {
		var custom Overlay
		if err := json.Unmarshal(customJSON, &custom); err != nil {
			return nil, err
		}
		a.Custom = &custom
	}
	if len(cachedJSON) > 0 {
		var cached Document
		if err := json.Unmarshal(cachedJSON, &cached); err != nil {
			return nil, err
		}
		a.Cached = &cached
	}
	if cachedAt != nil {
		a.CachedAt = *cachedAt
	}
	if cachedRole != nil {
		a.CachedRole = *cachedRole
	}
	if templateStamp != nil {
		a.TemplateStamp = *templateStamp
	}
	return &a, nil
}

func scanTemplate(row pgx.Row) (*Template, error) {
	var (
		t       Template
		docJSON []byte
	)
	if err := row.Scan(&t.ID, &t.OrgID, &t.Name, &docJSON, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if len(docJSON) > 0 {
		if err := json.Unmarshal(docJSON, &t.Doc); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func marshalDocs(a *Assignment) ([]byte, []byte, error) {
	var customJSON, cachedJSON []byte
	var err error
	if a.Custom != nil {
		if customJSON, err = json.Marshal(a.Custom); err != nil {
			return nil, nil, fmt.Errorf("permissions: marshal custom doc: %w", err)
		}
	}
	if a.Cached != nil {
		if cachedJSON, err = json.Marshal(a.Cached); err != nil {
			return nil, nil, fmt.Errorf("permissions: marshal cached doc: %w", err)
		}
	}
	return customJSON, cachedJSON, nil
}

func nullRole(r Role) *Role {
	if r == "" {
		return nil
	}
	return &r
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func aliasColumns(alias string) string {
	return `id, ` + alias + `.user_id, ` + alias + `.org_id, ` + alias + `.team_id, ` +
		alias + `.source, ` + alias + `.template_id, ` + alias + `.custom_doc, ` +
		alias + `.cached_doc, ` + alias + `.cached_at, ` + alias + `.cached_role, ` +
		alias + `.template_stamp, ` + alias + `.defaults_rev, ` + alias + `.version, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}
