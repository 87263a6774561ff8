package hierarchy

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/identity"
	"github.com/meridian-erp/meridian-erp/internal/permissions"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ============================================================================
// FAKE REPOSITORY
// ============================================================================

type fakeRepository struct {
	edges  []*Edge
	nextID int64
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{nextID: 1}
}

func (f *fakeRepository) WithOrgLock(ctx context.Context, orgID int64, fn func(context.Context, Repository) error) error {
	return fn(ctx, f)
}

func teamMatches(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (f *fakeRepository) ActiveEdgeExists(ctx context.Context, managerID, managedID int64, teamID *int64, kind ScopeKind) (bool, error) {
	for _, e := range f.edges {
		if e.IsActive && e.ManagerID == managerID && e.ManagedID == managedID &&
			e.ScopeKind == kind && teamMatches(e.TeamID, teamID) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepository) ActiveEdgeBetween(ctx context.Context, managerID, managedID int64) (bool, error) {
	for _, e := range f.edges {
		if e.IsActive && e.ManagerID == managerID && e.ManagedID == managedID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepository) InsertEdge(ctx context.Context, e *Edge) error {
	e.ID = f.nextID
	f.nextID++
	e.IsActive = true
	e.StartedAt = time.Now()
	cp := *e
	f.edges = append(f.edges, &cp)
	return nil
}

func (f *fakeRepository) DeactivateEdges(ctx context.Context, managerID, managedID int64, teamID *int64) (int64, error) {
	var closed int64
	now := time.Now()
	for _, e := range f.edges {
		if !e.IsActive || e.ManagerID != managerID || e.ManagedID != managedID {
			continue
		}
		if teamID != nil && !teamMatches(e.TeamID, teamID) {
			continue
		}
		e.IsActive = false
		e.EndedAt = &now
		closed++
	}
	return closed, nil
}

func (f *fakeRepository) DirectReportEdges(ctx context.Context, managerID int64, teamID *int64) ([]Edge, error) {
	var out []Edge
	for _, e := range f.edges {
		if !e.IsActive || e.Level != 1 || e.ManagerID != managerID {
			continue
		}
		if teamID != nil && !teamMatches(e.TeamID, teamID) {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeRepository) DirectManagerEdges(ctx context.Context, managedID int64) ([]Edge, error) {
	var out []Edge
	for _, e := range f.edges {
		if e.IsActive && e.Level == 1 && e.ManagedID == managedID {
			out = append(out, *e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func (f *fakeRepository) ListActiveEdges(ctx context.Context) ([]Edge, error) {
	var out []Edge
	for _, e := range f.edges {
		if e.IsActive {
			out = append(out, *e)
		}
	}
	return out, nil
}

// ============================================================================
// FAKE DIRECTORY
// ============================================================================

type fakeDirectory struct {
	users map[int64]identity.User
}

func (f *fakeDirectory) GetUser(ctx context.Context, id int64) (identity.User, error) {
	u, ok := f.users[id]
	if !ok {
		return identity.User{}, shared.ErrNotFound
	}
	return u, nil
}

func (f *fakeDirectory) GetUsersByIDs(ctx context.Context, ids []int64) ([]identity.User, error) {
	var out []identity.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func newHierarchyFixture() (*Service, *fakeRepository, *fakeDirectory) {
	repo := newFakeRepository()
	dir := &fakeDirectory{users: map[int64]identity.User{
		1: {ID: 1, Name: "Alice", OrgID: 10, Role: permissions.RoleSeniorManager, IsActive: true},
		2: {ID: 2, Name: "Bob", OrgID: 10, Role: permissions.RoleManager, IsActive: true},
		3: {ID: 3, Name: "Carol", OrgID: 10, Role: permissions.RoleLead, IsActive: true},
		4: {ID: 4, Name: "Dave", OrgID: 10, Role: permissions.RoleMember, IsActive: true},
		5: {ID: 5, Name: "Eve", OrgID: 20, Role: permissions.RoleManager, IsActive: true},
		6: {ID: 6, Name: "Frank", OrgID: 10, Role: permissions.RoleMember, IsActive: false},
	}}
	svc := NewService(repo, dir, nil, nil, nil)
	return svc, repo, dir
}

func userIDs(users []identity.User) []int64 {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

// ============================================================================
// ASSIGNMENT TESTS
// ============================================================================

func TestAssignManagerCreatesDirectEdge(t *testing.T) {
	svc, _, _ := newHierarchyFixture()
	ctx := context.Background()

	edge, err := svc.AssignManager(ctx, 100, 1, 2, nil, ScopeOrgWide)
	require.NoError(t, err)
	assert.Equal(t, int64(1), edge.ManagerID)
	assert.Equal(t, int64(2), edge.ManagedID)
	assert.Equal(t, 1, edge.Level)
	assert.True(t, edge.IsActive)
}

func TestAssignManagerRejectsSelf(t *testing.T) {
	svc, _, _ := newHierarchyFixture()

	_, err := svc.AssignManager(context.Background(), 100, 1, 1, nil, ScopeOrgWide)
	require.Error(t, err)
	var selfErr *shared.SelfManagementError
	assert.True(t, errors.As(err, &selfErr))
}

func TestAssignManagerRejectsUnknownScopeKind(t *testing.T) {
	svc, _, _ := newHierarchyFixture()

	_, err := svc.AssignManager(context.Background(), 100, 1, 2, nil, ScopeKind("galaxy"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestAssignManagerRejectsUnknownUsers(t *testing.T) {
	svc, _, _ := newHierarchyFixture()
	ctx := context.Background()

	_, err := svc.AssignManager(ctx, 100, 999, 2, nil, ScopeOrgWide)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	_, err = svc.AssignManager(ctx, 100, 1, 999, nil, ScopeOrgWide)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestAssignManagerRejectsCrossOrganization(t *testing.T) {
	svc, _, _ := newHierarchyFixture()

	// Eve belongs to org 20, Bob to org 10.
	_, err := svc.AssignManager(context.Background(), 100, 5, 2, nil, ScopeOrgWide)
	require.Error(t, err)
	var crossErr *shared.CrossOrganizationError
	require.True(t, errors.As(err, &crossErr))
	assert.Equal(t, int64(20), crossErr.ManagerOrgID)
	assert.Equal(t, int64(10), crossErr.ManagedOrgID)
}

func TestAssignManagerRejectsDuplicateEdge(t *testing.T) {
	svc, _, _ := newHierarchyFixture()
	ctx := context.Background()

	_, err := svc.AssignManager(ctx, 100, 1, 2, nil, ScopeOrgWide)
	require.NoError(t, err)

	_, err = svc.AssignManager(ctx, 100, 1, 2, nil, ScopeOrgWide)
	require.Error(t, err)
	var dupErr *shared.DuplicateEdgeError
	assert.True(t, errors.As(err, &dupErr))
	assert.True(t, errors.Is(err, shared.ErrDuplicate))
}

func TestAssignManagerAllowsSameUsersInDifferentScope(t *testing.T) {
	svc, _, _ := newHierarchyFixture()
	ctx := context.Background()

	teamID := int64(7)
	_, err := svc.AssignManager(ctx, 100, 1, 2, &teamID, ScopeTeam)
	require.NoError(t, err)

	// Same pair org-wide is a distinct edge, not a duplicate.
	_, err = svc.AssignManager(ctx, 100, 1, 2, nil, ScopeOrgWide)
	require.NoError(t, err)
}

func TestAssignManagerRejectsDirectCycle(t *testing.T) {
	svc, _, _ := newHierarchyFixture()
	ctx := context.Background()

	_, err := svc.AssignManager(ctx, 100, 1, 2, nil, ScopeOrgWide)
	require.NoError(t, err)

	_, err = svc.AssignManager(ctx, 100, 2, 1, nil, ScopeOrgWide)
	require.Error(t, err)
	var cycleErr *shared.CycleError
	assert.True(t, errors.As(err, &cycleErr))
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestAssignManagerRejectsTransitiveCycle(t *testing.T) {
	svc, _, _ := newHierarchyFixture()
	ctx := context.Background()

	// Alice -> Bob -> Carol, then Carol -> Alice would close the loop.
	_, err := svc.AssignManager(ctx, 100, 1, 2, nil, ScopeOrgWide)
	require.NoError(t, err)
	_, err = svc.AssignManager(ctx, 100, 2, 3, nil, ScopeOrgWide)
	require.NoError(t, err)

	_, err = svc.AssignManager(ctx, 100, 3, 1, nil, ScopeOrgWide)
	require.Error(t, err)
	var cycleErr *shared.CycleError
	assert.True(t, errors.As(err, &cycleErr))
}

func TestAssignManagerSkipLevelGetsDistanceHint(t *testing.T) {
	svc, _, _ := newHierarchyFixture()
	ctx := context.Background()

	// Alice -> Bob -> Carol exists; a direct Alice -> Carol edge is legal
	// and carries the hop distance as its level.
	_, err := svc.AssignManager(ctx, 100, 1, 2, nil, ScopeOrgWide)
	require.NoError(t, err)
	_, err = svc.AssignManager(ctx, 100, 2, 3, nil, ScopeOrgWide)
	require.NoError(t, err)

	edge, err := svc.AssignManager(ctx, 100, 1, 3, nil, ScopeOrgWide)
	require.NoError(t, err)
	assert.Equal(t, 2, edge.Level)
}

// ============================================================================
// REMOVAL TESTS
// ============================================================================

func TestRemoveManagerSoftDeletes(t *testing.T) {
	svc, repo, _ := newHierarchyFixture()
	ctx := context.Background()

	_, err := svc.AssignManager(ctx, 100, 1, 2, nil, ScopeOrgWide)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveManager(ctx, 100, 1, 2, nil))

	// The row survives as history.
	require.Len(t, repo.edges, 1)
	assert.False(t, repo.edges[0].IsActive)
	require.NotNil(t, repo.edges[0].EndedAt)

	reports, err := svc.GetDirectReports(ctx, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestRemoveManagerIsIdempotent(t *testing.T) {
	svc, _, _ := newHierarchyFixture()
	ctx := context.Background()

	require.NoError(t, svc.RemoveManager(ctx, 100, 1, 2, nil))
	require.NoError(t, svc.RemoveManager(ctx, 100, 1, 2, nil))
}

func TestRemoveManagerNilTeamRemovesAllScopes(t *testing.T) {
	svc, repo, _ := newHierarchyFixture()
	ctx := context.Background()

	teamID := int64(7)
	_, err := svc.AssignManager(ctx, 100, 1, 2, &teamID, ScopeTeam)
	require.NoError(t, err)
	_, err = svc.AssignManager(ctx, 100, 1, 2, nil, ScopeOrgWide)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveManager(ctx, 100, 1, 2, nil))
	for _, e := range repo.edges {
		assert.False(t, e.IsActive)
	}
}

func TestReassignAfterRemovalStartsFreshEdge(t *testing.T) {
	svc, repo, _ := newHierarchyFixture()
	ctx := context.Background()

	_, err := svc.AssignManager(ctx, 100, 1, 2, nil, ScopeOrgWide)
	require.NoError(t, err)
	require.NoError(t, svc.RemoveManager(ctx, 100, 1, 2, nil))

	edge, err := svc.AssignManager(ctx, 100, 1, 2, nil, ScopeOrgWide)
	require.NoError(t, err)
	assert.True(t, edge.IsActive)
	assert.Len(t, repo.edges, 2)
}

// ============================================================================
// QUERY TESTS
// ============================================================================

func TestGetDirectReportsFiltersTeamAndInactiveUsers(t *testing.T) {
	svc, _, _ := newHierarchyFixture()
	ctx := context.Background()

	teamID := int64(7)
	_, err := svc.AssignManager(ctx, 100, 1, 2, &teamID, ScopeTeam)
	require.NoError(t, err)
	_, err = svc.AssignManager(ctx, 100, 1, 3, nil, ScopeOrgWide)
	require.NoError(t, err)
	// Frank is deactivated and must not appear.
	_, err = svc.AssignManager(ctx, 100, 1, 6, nil, ScopeOrgWide)
	require.NoError(t, err)

	all, err := svc.GetDirectReports(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, userIDs(all))

	team, err := svc.GetDirectReports(ctx, 1, &teamID)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, userIDs(team))
}

func TestGetAllReportsIsTransitiveClosure(t *testing.T) {
	svc, _, _ := newHierarchyFixture()
	ctx := context.Background()

	// Alice -> Bob -> Carol -> Dave.
	_, err := svc.AssignManager(ctx, 100, 1, 2, nil, ScopeOrgWide)
	require.NoError(t, err)
	_, err = svc.AssignManager(ctx, 100, 2, 3, nil, ScopeOrgWide)
	require.NoError(t, err)
	_, err = svc.AssignManager(ctx, 100, 3, 4, nil, ScopeOrgWide)
	require.NoError(t, err)

	all, err := svc.GetAllReports(ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{2, 3, 4}, userIDs(all))

	// A skip-level edge must not introduce duplicates.
	_, err = svc.AssignManager(ctx, 100, 1, 3, nil, ScopeOrgWide)
	require.NoError(t, err)
	all, err = svc.GetAllReports(ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{2, 3, 4}, userIDs(all))
}

func TestGetManagementChainNearestFirst(t *testing.T) {
	svc, _, _ := newHierarchyFixture()
	ctx := context.Background()

	_, err := svc.AssignManager(ctx, 100, 1, 2, nil, ScopeOrgWide)
	require.NoError(t, err)
	_, err = svc.AssignManager(ctx, 100, 2, 3, nil, ScopeOrgWide)
	require.NoError(t, err)
	_, err = svc.AssignManager(ctx, 100, 3, 4, nil, ScopeOrgWide)
	require.NoError(t, err)

	chain, err := svc.GetManagementChain(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2, 1}, userIDs(chain))

	top, err := svc.GetManagementChain(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, top)

	_, err = svc.GetManagementChain(ctx, 999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestCanManageCoversDirectAndTransitive(t *testing.T) {
	svc, _, _ := newHierarchyFixture()
	ctx := context.Background()

	_, err := svc.AssignManager(ctx, 100, 1, 2, nil, ScopeOrgWide)
	require.NoError(t, err)
	_, err = svc.AssignManager(ctx, 100, 2, 3, nil, ScopeOrgWide)
	require.NoError(t, err)

	can, err := svc.CanManage(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, can)

	can, err = svc.CanManage(ctx, 1, 3)
	require.NoError(t, err)
	assert.True(t, can)

	// The relation is directed.
	can, err = svc.CanManage(ctx, 3, 1)
	require.NoError(t, err)
	assert.False(t, can)

	can, err = svc.CanManage(ctx, 2, 4)
	require.NoError(t, err)
	assert.False(t, can)
}

// ============================================================================
// INTEGRITY SCAN TESTS
// ============================================================================

func TestScanIntegrityCleanGraph(t *testing.T) {
	svc, _, _ := newHierarchyFixture()
	ctx := context.Background()

	_, err := svc.AssignManager(ctx, 100, 1, 2, nil, ScopeOrgWide)
	require.NoError(t, err)
	_, err = svc.AssignManager(ctx, 100, 2, 3, nil, ScopeOrgWide)
	require.NoError(t, err)

	report, err := svc.ScanIntegrity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.ActiveEdges)
	assert.Empty(t, report.Cycles)
}

func TestScanIntegrityDetectsCorruptedCycle(t *testing.T) {
	svc, repo, _ := newHierarchyFixture()
	ctx := context.Background()

	// Plant a cycle directly in storage, bypassing assignment checks.
	for _, pair := range [][2]int64{{1, 2}, {2, 3}, {3, 1}} {
		require.NoError(t, repo.InsertEdge(ctx, &Edge{
			ManagerID: pair[0], ManagedID: pair[1], ScopeKind: ScopeOrgWide, Level: 1,
		}))
	}

	report, err := svc.ScanIntegrity(ctx)
	require.NoError(t, err)
	require.Len(t, report.Cycles, 1)
	assert.ElementsMatch(t, []int64{1, 2, 3}, report.Cycles[0])
}
