package hierarchy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/permissions"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists management edges.
type Repository interface {
	// WithOrgLock runs fn inside a serializable transaction holding the
	// organization's advisory lock, so cycle checks and inserts cannot
	// interleave with concurrent writers of the same org's hierarchy.
	WithOrgLock(ctx context.Context, orgID int64, fn func(ctx context.Context, repo Repository) error) error

	ActiveEdgeExists(ctx context.Context, managerID, managedID int64, teamID *int64, kind ScopeKind) (bool, error)
	ActiveEdgeBetween(ctx context.Context, managerID, managedID int64) (bool, error)
	InsertEdge(ctx context.Context, e *Edge) error
	DeactivateEdges(ctx context.Context, managerID, managedID int64, teamID *int64) (int64, error)
	DirectReportEdges(ctx context.Context, managerID int64, teamID *int64) ([]Edge, error)
	DirectManagerEdges(ctx context.Context, managedID int64) ([]Edge, error)
	ListActiveEdges(ctx context.Context) ([]Edge, error)
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithOrgLock(ctx context.Context, orgID int64, fn func(context.Context, Repository) error) error {
	return db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, orgLockClass, orgID); err != nil {
			return fmt.Errorf("hierarchy: advisory lock org %d: %w", orgID, err)
		}
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

// orgLockClass namespaces hierarchy advisory locks away from other
// two-key advisory locks in the database.
const orgLockClass = 0x4d45

const edgeColumns = `id, manager_id, managed_id, team_id, scope_kind, level,
	delegated_doc, is_active, started_at, ended_at`

func (r *repository) ActiveEdgeExists(ctx context.Context, managerID, managedID int64, teamID *int64, kind ScopeKind) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM management_edges
		WHERE manager_id = $1 AND managed_id = $2
		  AND team_id IS NOT DISTINCT FROM $3
		  AND scope_kind = $4 AND is_active)`,
		managerID, managedID, teamID, kind).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("hierarchy: active edge exists: %w", err)
	}
	return exists, nil
}

func (r *repository) ActiveEdgeBetween(ctx context.Context, managerID, managedID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM management_edges
		WHERE manager_id = $1 AND managed_id = $2 AND is_active)`,
		managerID, managedID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("hierarchy: active edge between: %w", err)
	}
	return exists, nil
}

func (r *repository) InsertEdge(ctx context.Context, e *Edge) error {
	var delegatedJSON []byte
	if e.Delegated != nil {
		var err error
		if delegatedJSON, err = json.Marshal(e.Delegated); err != nil {
			return fmt.Errorf("hierarchy: marshal delegated doc: %w", err)
		}
	}
	row := r.db.QueryRow(ctx, `INSERT INTO management_edges
		(manager_id, managed_id, team_id, scope_kind, level, delegated_doc, is_active, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW())
		RETURNING id, started_at`,
		e.ManagerID, e.ManagedID, e.TeamID, e.ScopeKind, e.Level, delegatedJSON)
	if err := row.Scan(&e.ID, &e.StartedAt); err != nil {
		return fmt.Errorf("hierarchy: insert edge: %w", err)
	}
	e.IsActive = true
	return nil
}

// DeactivateEdges soft-deletes all matching active edges and reports how
// many were closed. Zero is not an error; removal is idempotent.
func (r *repository) DeactivateEdges(ctx context.Context, managerID, managedID int64, teamID *int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE management_edges
		SET is_active = FALSE, ended_at = NOW()
		WHERE manager_id = $1 AND managed_id = $2
		  AND ($3::BIGINT IS NULL OR team_id IS NOT DISTINCT FROM $3)
		  AND is_active`,
		managerID, managedID, teamID)
	if err != nil {
		return 0, fmt.Errorf("hierarchy: deactivate edges: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DirectReportEdges returns active level-1 edges from the manager. A nil
// teamID returns edges across all scopes.
func (r *repository) DirectReportEdges(ctx context.Context, managerID int64, teamID *int64) ([]Edge, error) {
	rows, err := r.db.Query(ctx, `SELECT `+edgeColumns+`
		FROM management_edges
		WHERE manager_id = $1 AND level = 1 AND is_active
		  AND ($2::BIGINT IS NULL OR team_id IS NOT DISTINCT FROM $2)
		ORDER BY started_at`, managerID, teamID)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: direct report edges: %w", err)
	}
	defer rows.Close()
	return collectEdges(rows)
}

// DirectManagerEdges returns active level-1 edges pointing at the user,
// ordered so the first row is the preferred manager for chain walks.
func (r *repository) DirectManagerEdges(ctx context.Context, managedID int64) ([]Edge, error) {
	rows, err := r.db.Query(ctx, `SELECT `+edgeColumns+`
		FROM management_edges
		WHERE managed_id = $1 AND level = 1 AND is_active
		ORDER BY level, started_at`, managedID)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: direct manager edges: %w", err)
	}
	defer rows.Close()
	return collectEdges(rows)
}

func (r *repository) ListActiveEdges(ctx context.Context) ([]Edge, error) {
	rows, err := r.db.Query(ctx, `SELECT `+edgeColumns+`
		FROM management_edges WHERE is_active ORDER BY manager_id, managed_id`)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: list active edges: %w", err)
	}
	defer rows.Close()
	return collectEdges(rows)
}

func collectEdges(rows pgx.Rows) ([]Edge, error) {
	var edges []Edge
	for rows.Next() {
		var (
			e             Edge
			delegatedJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.ManagerID, &e.ManagedID, &e.TeamID, &e.ScopeKind,
			&e.Level, &delegatedJSON, &e.IsActive, &e.StartedAt, &e.EndedAt); err != nil {
			return nil, fmt.Errorf("hierarchy: scan edge: %w", err)
		}
		if len(delegatedJSON) > 0 {
			var delegated permissions.Overlay
			if err := json.Unmarshal(delegatedJSON, &delegated); err != nil {
				return nil, fmt.Errorf("hierarchy: decode delegated doc: %w", err)
			}
			e.Delegated = &delegated
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
