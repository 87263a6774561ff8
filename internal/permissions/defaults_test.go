package permissions

import "testing"

func TestDefaultsCoverEveryRole(t *testing.T) {
	for _, role := range []Role{RoleSuperAdmin, RoleOrgAdmin, RoleSeniorManager, RoleManager, RoleLead, RoleMember} {
		if !ValidRole(role) {
			t.Fatalf("role %q should be valid", role)
		}
		if _, ok := roleDefaults[role]; !ok {
			t.Fatalf("role %q has no default document", role)
		}
	}
	if ValidRole(Role("intern")) {
		t.Fatalf("unknown role must not validate")
	}
}

func TestUnknownRoleFallsBackToMember(t *testing.T) {
	got := DefaultsFor(Role("intern"))
	if got != roleDefaults[RoleMember] {
		t.Fatalf("unknown role must resolve to the member document")
	}
}

func TestAdminsHoldEverything(t *testing.T) {
	for _, role := range []Role{RoleSuperAdmin, RoleOrgAdmin} {
		doc := DefaultsFor(role)
		for path := range docLeaves {
			if !doc.Has(path) {
				t.Fatalf("%s must hold %q", role, path)
			}
		}
	}
}

func TestSeniorityNarrowsGrants(t *testing.T) {
	// Each step down the ladder holds a subset of the step above.
	ladder := []Role{RoleOrgAdmin, RoleSeniorManager, RoleManager, RoleLead, RoleMember}
	for i := 1; i < len(ladder); i++ {
		upper := DefaultsFor(ladder[i-1])
		lower := DefaultsFor(ladder[i])
		for path := range docLeaves {
			if lower.Has(path) && !upper.Has(path) {
				t.Fatalf("%s holds %q but %s does not", ladder[i], path, ladder[i-1])
			}
		}
	}
}

func TestRoleBoundaryLeaves(t *testing.T) {
	manager := DefaultsFor(RoleManager)
	if !manager.Has("tasks.approve") {
		t.Fatalf("manager must approve tasks")
	}
	if manager.Has("resources.manage") {
		t.Fatalf("manager must not manage resources by default")
	}
	if manager.Has("analytics.view_org") {
		t.Fatalf("manager must not see org analytics by default")
	}

	lead := DefaultsFor(RoleLead)
	if lead.Has("tasks.approve") {
		t.Fatalf("lead must not approve tasks")
	}
	if !lead.Has("tasks.assign") {
		t.Fatalf("lead must assign tasks")
	}

	member := DefaultsFor(RoleMember)
	if !member.Has("tasks.view_own") || !member.Has("tasks.create") {
		t.Fatalf("member must view own tasks and create them")
	}
	if member.Has("tasks.view_all") || member.Has("members.invite") {
		t.Fatalf("member defaults grant too much")
	}
}
