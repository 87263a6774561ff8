package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/meridian-erp/meridian-erp/internal/identity"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// UserDirectory resolves users for hierarchy operations.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (identity.User, error)
	GetUsersByIDs(ctx context.Context, ids []int64) ([]identity.User, error)
}

// Service maintains the management graph and answers reachability queries.
type Service struct {
	repo    Repository
	users   UserDirectory
	audit   *shared.AuditLogger
	metrics *observability.Metrics
	logger  *slog.Logger
	coll    *collate.Collator
}

// NewService constructs a Service. audit and metrics may be nil.
func NewService(repo Repository, users UserDirectory, audit *shared.AuditLogger, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		users:   users,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
		coll:    collate.New(language.English, collate.IgnoreCase),
	}
}

// AssignManager creates a directed manager -> managed edge. Both users must
// belong to the same organization; the edge is rejected when it would
// duplicate an active edge or close a cycle among direct edges.
func (s *Service) AssignManager(ctx context.Context, actorID, managerID, managedID int64, teamID *int64, kind ScopeKind) (edge Edge, err error) {
	defer func() { s.metrics.ObserveHierarchyMutation("assign_manager", err) }()

	if managerID == managedID {
		return Edge{}, &shared.SelfManagementError{UserID: managerID}
	}
	if !ValidScopeKind(kind) {
		return Edge{}, fmt.Errorf("scope kind %q: %w", kind, shared.ErrValidation)
	}
	manager, err := s.users.GetUser(ctx, managerID)
	if err != nil {
		return Edge{}, fmt.Errorf("hierarchy: manager %d: %w", managerID, err)
	}
	managed, err := s.users.GetUser(ctx, managedID)
	if err != nil {
		return Edge{}, fmt.Errorf("hierarchy: managed user %d: %w", managedID, err)
	}
	if manager.OrgID != managed.OrgID {
		return Edge{}, &shared.CrossOrganizationError{
			ManagerID: managerID, ManagedID: managedID,
			ManagerOrgID: manager.OrgID, ManagedOrgID: managed.OrgID,
		}
	}

	err = s.repo.WithOrgLock(ctx, manager.OrgID, func(ctx context.Context, repo Repository) error {
		exists, err := repo.ActiveEdgeExists(ctx, managerID, managedID, teamID, kind)
		if err != nil {
			return err
		}
		if exists {
			return &shared.DuplicateEdgeError{ManagerID: managerID, ManagedID: managedID}
		}

		// The managed user must not already manage the proposed manager,
		// directly or transitively.
		reaches, err := s.reaches(ctx, repo, managedID, managerID)
		if err != nil {
			return err
		}
		if reaches {
			return &shared.CycleError{ManagerID: managerID, ManagedID: managedID}
		}

		level, err := s.computeLevel(ctx, repo, managerID, managedID)
		if err != nil {
			return err
		}

		edge = Edge{ManagerID: managerID, ManagedID: managedID, TeamID: teamID, ScopeKind: kind, Level: level}
		return repo.InsertEdge(ctx, &edge)
	})
	if err != nil {
		return Edge{}, err
	}

	s.recordAudit(ctx, actorID, "hierarchy.assign_manager", edge)
	return edge, nil
}

// reaches reports whether target is in from's downward reachability set over
// active direct edges. The visited set guards termination even if the stored
// graph was corrupted into a cycle.
func (s *Service) reaches(ctx context.Context, repo Repository, from, target int64) (bool, error) {
	visited := map[int64]struct{}{from: {}}
	frontier := []int64{from}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		edges, err := repo.DirectReportEdges(ctx, current, nil)
		if err != nil {
			return false, err
		}
		for _, e := range edges {
			if e.ManagedID == target {
				return true, nil
			}
			if _, seen := visited[e.ManagedID]; seen {
				continue
			}
			visited[e.ManagedID] = struct{}{}
			frontier = append(frontier, e.ManagedID)
		}
	}
	return false, nil
}

// computeLevel derives the distance hint for a new edge: the manager's hop
// distance in the managed user's upward chain when the two are already
// related, otherwise 1.
func (s *Service) computeLevel(ctx context.Context, repo Repository, managerID, managedID int64) (int, error) {
	chain, err := s.chainIDs(ctx, repo, managedID)
	if err != nil {
		return 0, err
	}
	for i, id := range chain {
		if id == managerID {
			return i + 1, nil
		}
	}
	return 1, nil
}

// chainIDs walks the upward chain from the user, preferring the earliest
// started direct manager at each hop.
func (s *Service) chainIDs(ctx context.Context, repo Repository, userID int64) ([]int64, error) {
	var chain []int64
	visited := map[int64]struct{}{userID: {}}
	current := userID
	for {
		edges, err := repo.DirectManagerEdges(ctx, current)
		if err != nil {
			return nil, err
		}
		if len(edges) == 0 {
			return chain, nil
		}
		next := edges[0].ManagerID
		if _, seen := visited[next]; seen {
			// Defensive: assignment-time checks keep direct edges acyclic.
			s.logger.Warn("management chain revisited user", slog.Int64("user_id", next))
			return chain, nil
		}
		visited[next] = struct{}{}
		chain = append(chain, next)
		current = next
	}
}

// RemoveManager soft-deletes matching active edges. A nil teamID removes the
// relationship across all scopes. Removing a non-existent edge is a no-op.
func (s *Service) RemoveManager(ctx context.Context, actorID, managerID, managedID int64, teamID *int64) (err error) {
	defer func() { s.metrics.ObserveHierarchyMutation("remove_manager", err) }()

	closed, err := s.repo.DeactivateEdges(ctx, managerID, managedID, teamID)
	if err != nil {
		return err
	}
	if closed > 0 {
		s.recordAudit(ctx, actorID, "hierarchy.remove_manager", Edge{ManagerID: managerID, ManagedID: managedID, TeamID: teamID})
	}
	return nil
}

// GetDirectReports returns active users with an active level-1 edge from the
// manager, optionally filtered by team, ordered by name.
func (s *Service) GetDirectReports(ctx context.Context, managerID int64, teamID *int64) ([]identity.User, error) {
	edges, err := s.repo.DirectReportEdges(ctx, managerID, teamID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.ManagedID)
	}
	return s.activeUsers(ctx, ids)
}

// GetAllReports returns the transitive closure of the manager's reports
// across all scopes, de-duplicated, ordered by name.
func (s *Service) GetAllReports(ctx context.Context, managerID int64) ([]identity.User, error) {
	visited := map[int64]struct{}{managerID: {}}
	var ids []int64
	frontier := []int64{managerID}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		edges, err := s.repo.DirectReportEdges(ctx, current, nil)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if _, seen := visited[e.ManagedID]; seen {
				continue
			}
			visited[e.ManagedID] = struct{}{}
			ids = append(ids, e.ManagedID)
			frontier = append(frontier, e.ManagedID)
		}
	}
	return s.activeUsers(ctx, ids)
}

// GetManagementChain walks upward from the user to the top of the reporting
// chain, nearest manager first.
func (s *Service) GetManagementChain(ctx context.Context, userID int64) ([]identity.User, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("hierarchy: user %d: %w", userID, err)
	}
	ids, err := s.chainIDs(ctx, s.repo, userID)
	if err != nil {
		return nil, err
	}
	users, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	// Preserve chain order, nearest first.
	byID := make(map[int64]identity.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	chain := make([]identity.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			chain = append(chain, u)
		}
	}
	return chain, nil
}

// CanManage reports whether the manager has any active edge to the user or
// reaches them transitively.
func (s *Service) CanManage(ctx context.Context, managerID, userID int64) (bool, error) {
	direct, err := s.repo.ActiveEdgeBetween(ctx, managerID, userID)
	if err != nil {
		return false, err
	}
	if direct {
		return true, nil
	}
	return s.reaches(ctx, s.repo, managerID, userID)
}

// IntegrityReport summarises defensive scans over the stored graph.
type IntegrityReport struct {
	ActiveEdges int
	Cycles      [][]int64
}

// ScanIntegrity looks for cycles among active direct edges. The assignment
// path prevents them; the scan exists to surface data corruption early.
func (s *Service) ScanIntegrity(ctx context.Context) (IntegrityReport, error) {
	edges, err := s.repo.ListActiveEdges(ctx)
	if err != nil {
		return IntegrityReport{}, err
	}
	report := IntegrityReport{ActiveEdges: len(edges)}

	// Cycle detection over direct edges only.
	adj := make(map[int64][]int64)
	for _, e := range edges {
		if e.Level == 1 {
			adj[e.ManagerID] = append(adj[e.ManagerID], e.ManagedID)
		}
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[int64]int)
	var stack []int64
	var visit func(id int64)
	visit = func(id int64) {
		state[id] = inStack
		stack = append(stack, id)
		for _, next := range adj[id] {
			switch state[next] {
			case unvisited:
				visit(next)
			case inStack:
				for i, member := range stack {
					if member == next {
						cycle := append([]int64(nil), stack[i:]...)
						report.Cycles = append(report.Cycles, cycle)
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
	}
	for id := range adj {
		if state[id] == unvisited {
			visit(id)
		}
	}
	return report, nil
}

func (s *Service) activeUsers(ctx context.Context, ids []int64) ([]identity.User, error) {
	users, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	active := users[:0]
	for _, u := range users {
		if u.IsActive {
			active = append(active, u)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return s.coll.CompareString(active[i].Name, active[j].Name) < 0
	})
	return active, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, edge Edge) {
	meta := map[string]any{"manager_id": edge.ManagerID, "managed_id": edge.ManagedID}
	if edge.TeamID != nil {
		meta["team_id"] = *edge.TeamID
	}
	if err := s.audit.Record(ctx, shared.AuditEvent{
		ActorID:  actorID,
		Action:   action,
		Entity:   "management_edge",
		EntityID: fmt.Sprintf("%d->%d", edge.ManagerID, edge.ManagedID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
