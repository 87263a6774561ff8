package hierarchy

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/permissions"
)

// ScopeKind distinguishes where a management edge applies. Organization-wide
// means wide within the one organization both users belong to, never across
// organizations.
type ScopeKind string

const (
	ScopeTeam    ScopeKind = "team"
	ScopeOrgWide ScopeKind = "org_wide"
)

// ValidScopeKind reports whether k is a known scope kind.
func ValidScopeKind(k ScopeKind) bool {
	return k == ScopeTeam || k == ScopeOrgWide
}

// Edge is a directed manager -> managed-user relationship. Level 1 is a
// direct edge; higher levels are distance hints for display ordering only.
// Edges are soft-deleted: removal flips IsActive and stamps EndedAt, and a
// later re-assignment inserts a fresh row so history survives.
type Edge struct {
	ID        int64
	ManagerID int64
	ManagedID int64
	TeamID    *int64
	ScopeKind ScopeKind
	Level     int
	Delegated *permissions.Overlay
	IsActive  bool
	StartedAt time.Time
	EndedAt   *time.Time
}
