package permissions

// Role is the closed set of base roles, ordered by seniority.
type Role string

const (
	RoleSuperAdmin    Role = "superadmin"
	RoleOrgAdmin      Role = "org_admin"
	RoleSeniorManager Role = "senior_manager"
	RoleManager       Role = "manager"
	RoleLead          Role = "lead"
	RoleMember        Role = "member"
)

// DefaultsRevision identifies the current role default table. Cached
// effective documents computed against an older revision are stale and must
// be recomputed. Bump it whenever a document below changes.
const DefaultsRevision = 1

// ValidRole reports whether r belongs to the closed role set.
func ValidRole(r Role) bool {
	switch r {
	case RoleSuperAdmin, RoleOrgAdmin, RoleSeniorManager, RoleManager, RoleLead, RoleMember:
		return true
	}
	return false
}

var allGranted = Document{
	Tasks:     TaskPerms{ViewOwn: true, ViewAll: true, Create: true, Edit: true, Delete: true, Assign: true, Approve: true},
	Timesheet: TimesheetPerms{ViewOwn: true, ViewAll: true, Submit: true, Edit: true, Approve: true, Export: true},
	Leaves:    LeavePerms{ViewOwn: true, ViewAll: true, Request: true, Approve: true, ManagePolicy: true},
	Resources: ResourcePerms{View: true, Book: true, Manage: true, ApproveBooking: true},
	Analytics: AnalyticsPerms{ViewTeam: true, ViewOrg: true, Export: true},
	Members:   MemberPerms{View: true, Invite: true, Edit: true, Remove: true, Manage: true},
}

var roleDefaults = map[Role]Document{
	RoleSuperAdmin: allGranted,
	RoleOrgAdmin:   allGranted,
	RoleSeniorManager: {
		Tasks:     TaskPerms{ViewOwn: true, ViewAll: true, Create: true, Edit: true, Delete: true, Assign: true, Approve: true},
		Timesheet: TimesheetPerms{ViewOwn: true, ViewAll: true, Submit: true, Edit: true, Approve: true, Export: true},
		Leaves:    LeavePerms{ViewOwn: true, ViewAll: true, Request: true, Approve: true, ManagePolicy: true},
		Resources: ResourcePerms{View: true, Book: true, Manage: true, ApproveBooking: true},
		Analytics: AnalyticsPerms{ViewTeam: true, ViewOrg: true, Export: true},
		Members:   MemberPerms{View: true, Invite: true, Edit: true, Remove: false, Manage: false},
	},
	RoleManager: {
		Tasks:     TaskPerms{ViewOwn: true, ViewAll: true, Create: true, Edit: true, Delete: false, Assign: true, Approve: true},
		Timesheet: TimesheetPerms{ViewOwn: true, ViewAll: true, Submit: true, Edit: true, Approve: true, Export: false},
		Leaves:    LeavePerms{ViewOwn: true, ViewAll: true, Request: true, Approve: true, ManagePolicy: false},
		Resources: ResourcePerms{View: true, Book: true, Manage: false, ApproveBooking: true},
		Analytics: AnalyticsPerms{ViewTeam: true, ViewOrg: false, Export: false},
		Members:   MemberPerms{View: true, Invite: true, Edit: false, Remove: false, Manage: false},
	},
	RoleLead: {
		Tasks:     TaskPerms{ViewOwn: true, ViewAll: true, Create: true, Edit: true, Delete: false, Assign: true, Approve: false},
		Timesheet: TimesheetPerms{ViewOwn: true, ViewAll: true, Submit: true, Edit: false, Approve: false, Export: false},
		Leaves:    LeavePerms{ViewOwn: true, ViewAll: true, Request: true, Approve: false, ManagePolicy: false},
		Resources: ResourcePerms{View: true, Book: true, Manage: false, ApproveBooking: false},
		Analytics: AnalyticsPerms{ViewTeam: true, ViewOrg: false, Export: false},
		Members:   MemberPerms{View: true, Invite: false, Edit: false, Remove: false, Manage: false},
	},
	RoleMember: {
		Tasks:     TaskPerms{ViewOwn: true, ViewAll: false, Create: true, Edit: false, Delete: false, Assign: false, Approve: false},
		Timesheet: TimesheetPerms{ViewOwn: true, ViewAll: false, Submit: true, Edit: false, Approve: false, Export: false},
		Leaves:    LeavePerms{ViewOwn: true, ViewAll: false, Request: true, Approve: false, ManagePolicy: false},
		Resources: ResourcePerms{View: true, Book: true, Manage: false, ApproveBooking: false},
		Analytics: AnalyticsPerms{ViewTeam: false, ViewOrg: false, Export: false},
		Members:   MemberPerms{View: true, Invite: false, Edit: false, Remove: false, Manage: false},
	},
}

// DefaultsFor returns the default document for a base role. Unknown roles
// fall back to the member document so downstream merges stay total and
// fail-closed.
func DefaultsFor(role Role) Document {
	if doc, ok := roleDefaults[role]; ok {
		return doc
	}
	return roleDefaults[RoleMember]
}
