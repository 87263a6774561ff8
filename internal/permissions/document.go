package permissions

import (
	"fmt"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Document is a fully resolved capability set. Every leaf is a concrete
// boolean; merges only ever overwrite leaves, never remove them, so a
// Document always covers all six categories.
type Document struct {
	Tasks     TaskPerms      `json:"tasks"`
	Timesheet TimesheetPerms `json:"timesheet"`
	Leaves    LeavePerms     `json:"leaves"`
	Resources ResourcePerms  `json:"resources"`
	Analytics AnalyticsPerms `json:"analytics"`
	Members   MemberPerms    `json:"members"`
}

// TaskPerms covers task management capabilities.
type TaskPerms struct {
	ViewOwn bool `json:"view_own"`
	ViewAll bool `json:"view_all"`
	Create  bool `json:"create"`
	Edit    bool `json:"edit"`
	Delete  bool `json:"delete"`
	Assign  bool `json:"assign"`
	Approve bool `json:"approve"`
}

// TimesheetPerms covers timesheet capabilities.
type TimesheetPerms struct {
	ViewOwn bool `json:"view_own"`
	ViewAll bool `json:"view_all"`
	Submit  bool `json:"submit"`
	Edit    bool `json:"edit"`
	Approve bool `json:"approve"`
	Export  bool `json:"export"`
}

// LeavePerms covers leave scheduling capabilities.
type LeavePerms struct {
	ViewOwn      bool `json:"view_own"`
	ViewAll      bool `json:"view_all"`
	Request      bool `json:"request"`
	Approve      bool `json:"approve"`
	ManagePolicy bool `json:"manage_policy"`
}

// ResourcePerms covers resource booking capabilities.
type ResourcePerms struct {
	View           bool `json:"view"`
	Book           bool `json:"book"`
	Manage         bool `json:"manage"`
	ApproveBooking bool `json:"approve_booking"`
}

// AnalyticsPerms covers reporting capabilities.
type AnalyticsPerms struct {
	ViewTeam bool `json:"view_team"`
	ViewOrg  bool `json:"view_org"`
	Export   bool `json:"export"`
}

// MemberPerms covers organization membership capabilities.
type MemberPerms struct {
	View   bool `json:"view"`
	Invite bool `json:"invite"`
	Edit   bool `json:"edit"`
	Remove bool `json:"remove"`
	Manage bool `json:"manage"`
}

// Overlay is a partial capability set layered onto a Document. Nil leaves
// leave the base untouched; non-nil leaves replace it. Templates and custom
// overrides are both stored as overlays.
type Overlay struct {
	Tasks     TaskOverlay      `json:"tasks,omitempty"`
	Timesheet TimesheetOverlay `json:"timesheet,omitempty"`
	Leaves    LeaveOverlay     `json:"leaves,omitempty"`
	Resources ResourceOverlay  `json:"resources,omitempty"`
	Analytics AnalyticsOverlay `json:"analytics,omitempty"`
	Members   MemberOverlay    `json:"members,omitempty"`
}

// TaskOverlay mirrors TaskPerms with optional leaves.
type TaskOverlay struct {
	ViewOwn *bool `json:"view_own,omitempty"`
	ViewAll *bool `json:"view_all,omitempty"`
	Create  *bool `json:"create,omitempty"`
	Edit    *bool `json:"edit,omitempty"`
	Delete  *bool `json:"delete,omitempty"`
	Assign  *bool `json:"assign,omitempty"`
	Approve *bool `json:"approve,omitempty"`
}

// TimesheetOverlay mirrors TimesheetPerms with optional leaves.
type TimesheetOverlay struct {
	ViewOwn *bool `json:"view_own,omitempty"`
	ViewAll *bool `json:"view_all,omitempty"`
	Submit  *bool `json:"submit,omitempty"`
	Edit    *bool `json:"edit,omitempty"`
	Approve *bool `json:"approve,omitempty"`
	Export  *bool `json:"export,omitempty"`
}

// LeaveOverlay mirrors LeavePerms with optional leaves.
type LeaveOverlay struct {
	ViewOwn      *bool `json:"view_own,omitempty"`
	ViewAll      *bool `json:"view_all,omitempty"`
	Request      *bool `json:"request,omitempty"`
	Approve      *bool `json:"approve,omitempty"`
	ManagePolicy *bool `json:"manage_policy,omitempty"`
}

// ResourceOverlay mirrors ResourcePerms with optional leaves.
type ResourceOverlay struct {
	View           *bool `json:"view,omitempty"`
	Book           *bool `json:"book,omitempty"`
	Manage         *bool `json:"manage,omitempty"`
	ApproveBooking *bool `json:"approve_booking,omitempty"`
}

// AnalyticsOverlay mirrors AnalyticsPerms with optional leaves.
type AnalyticsOverlay struct {
	ViewTeam *bool `json:"view_team,omitempty"`
	ViewOrg  *bool `json:"view_org,omitempty"`
	Export   *bool `json:"export,omitempty"`
}

// MemberOverlay mirrors MemberPerms with optional leaves.
type MemberOverlay struct {
	View   *bool `json:"view,omitempty"`
	Invite *bool `json:"invite,omitempty"`
	Edit   *bool `json:"edit,omitempty"`
	Remove *bool `json:"remove,omitempty"`
	Manage *bool `json:"manage,omitempty"`
}

// docLeaves indexes every capability path to its leaf on a Document. The
// table is the single source of truth for valid dotted paths; anything not
// listed here resolves to denied.
var docLeaves = map[string]func(*Document) *bool{
	"tasks.view_own":           func(d *Document) *bool { return &d.Tasks.ViewOwn },
	"tasks.view_all":           func(d *Document) *bool { return &d.Tasks.ViewAll },
	"tasks.create":             func(d *Document) *bool { return &d.Tasks.Create },
	"tasks.edit":               func(d *Document) *bool { return &d.Tasks.Edit },
	"tasks.delete":             func(d *Document) *bool { return &d.Tasks.Delete },
	"tasks.assign":             func(d *Document) *bool { return &d.Tasks.Assign },
	"tasks.approve":            func(d *Document) *bool { return &d.Tasks.Approve },
	"timesheet.view_own":       func(d *Document) *bool { return &d.Timesheet.ViewOwn },
	"timesheet.view_all":       func(d *Document) *bool { return &d.Timesheet.ViewAll },
	"timesheet.submit":         func(d *Document) *bool { return &d.Timesheet.Submit },
	"timesheet.edit":           func(d *Document) *bool { return &d.Timesheet.Edit },
	"timesheet.approve":        func(d *Document) *bool { return &d.Timesheet.Approve },
	"timesheet.export":         func(d *Document) *bool { return &d.Timesheet.Export },
	"leaves.view_own":          func(d *Document) *bool { return &d.Leaves.ViewOwn },
	"leaves.view_all":          func(d *Document) *bool { return &d.Leaves.ViewAll },
	"leaves.request":           func(d *Document) *bool { return &d.Leaves.Request },
	"leaves.approve":           func(d *Document) *bool { return &d.Leaves.Approve },
	"leaves.manage_policy":     func(d *Document) *bool { return &d.Leaves.ManagePolicy },
	"resources.view":           func(d *Document) *bool { return &d.Resources.View },
	"resources.book":           func(d *Document) *bool { return &d.Resources.Book },
	"resources.manage":         func(d *Document) *bool { return &d.Resources.Manage },
	"resources.approve_booking": func(d *Document) *bool { return &d.Resources.ApproveBooking },
	"analytics.view_team":      func(d *Document) *bool { return &d.Analytics.ViewTeam },
	"analytics.view_org":       func(d *Document) *bool { return &d.Analytics.ViewOrg },
	"analytics.export":         func(d *Document) *bool { return &d.Analytics.Export },
	"members.view":             func(d *Document) *bool { return &d.Members.View },
	"members.invite":           func(d *Document) *bool { return &d.Members.Invite },
	"members.edit":             func(d *Document) *bool { return &d.Members.Edit },
	"members.remove":           func(d *Document) *bool { return &d.Members.Remove },
	"members.manage":           func(d *Document) *bool { return &d.Members.Manage },
}

// overlayLeaves indexes every capability path to its leaf on an Overlay.
var overlayLeaves = map[string]func(*Overlay) **bool{
	"tasks.view_own":           func(o *Overlay) **bool { return &o.Tasks.ViewOwn },
	"tasks.view_all":           func(o *Overlay) **bool { return &o.Tasks.ViewAll },
	"tasks.create":             func(o *Overlay) **bool { return &o.Tasks.Create },
	"tasks.edit":               func(o *Overlay) **bool { return &o.Tasks.Edit },
	"tasks.delete":             func(o *Overlay) **bool { return &o.Tasks.Delete },
	"tasks.assign":             func(o *Overlay) **bool { return &o.Tasks.Assign },
	"tasks.approve":            func(o *Overlay) **bool { return &o.Tasks.Approve },
	"timesheet.view_own":       func(o *Overlay) **bool { return &o.Timesheet.ViewOwn },
	"timesheet.view_all":       func(o *Overlay) **bool { return &o.Timesheet.ViewAll },
	"timesheet.submit":         func(o *Overlay) **bool { return &o.Timesheet.Submit },
	"timesheet.edit":           func(o *Overlay) **bool { return &o.Timesheet.Edit },
	"timesheet.approve":        func(o *Overlay) **bool { return &o.Timesheet.Approve },
	"timesheet.export":         func(o *Overlay) **bool { return &o.Timesheet.Export },
	"leaves.view_own":          func(o *Overlay) **bool { return &o.Leaves.ViewOwn },
	"leaves.view_all":          func(o *Overlay) **bool { return &o.Leaves.ViewAll },
	"leaves.request":           func(o *Overlay) **bool { return &o.Leaves.Request },
	"leaves.approve":           func(o *Overlay) **bool { return &o.Leaves.Approve },
	"leaves.manage_policy":     func(o *Overlay) **bool { return &o.Leaves.ManagePolicy },
	"resources.view":           func(o *Overlay) **bool { return &o.Resources.View },
	"resources.book":           func(o *Overlay) **bool { return &o.Resources.Book },
	"resources.manage":         func(o *Overlay) **bool { return &o.Resources.Manage },
	"resources.approve_booking": func(o *Overlay) **bool { return &o.Resources.ApproveBooking },
	"analytics.view_team":      func(o *Overlay) **bool { return &o.Analytics.ViewTeam },
	"analytics.view_org":       func(o *Overlay) **bool { return &o.Analytics.ViewOrg },
	"analytics.export":         func(o *Overlay) **bool { return &o.Analytics.Export },
	"members.view":             func(o *Overlay) **bool { return &o.Members.View },
	"members.invite":           func(o *Overlay) **bool { return &o.Members.Invite },
	"members.edit":             func(o *Overlay) **bool { return &o.Members.Edit },
	"members.remove":           func(o *Overlay) **bool { return &o.Members.Remove },
	"members.manage":           func(o *Overlay) **bool { return &o.Members.Manage },
}

// Merge layers an overlay onto a base document. Only leaves present in the
// overlay replace the base; everything else is carried through unchanged.
// Applying the same overlay twice yields the same result.
func Merge(base Document, overlay Overlay) Document {
	out := base
	for path, leaf := range overlayLeaves {
		if v := *leaf(&overlay); v != nil {
			*docLeaves[path](&out) = *v
		}
	}
	return out
}

// Has reports whether the dotted capability path is granted. Unknown or
// malformed paths are denied, never an error.
func (d Document) Has(path string) bool {
	if !validPath(path) {
		return false
	}
	leaf, ok := docLeaves[path]
	if !ok {
		return false
	}
	return *leaf(&d)
}

// SetLeaf sets the leaf at the dotted path on the overlay. Unknown paths are
// a caller error.
func (o *Overlay) SetLeaf(path string, value bool) error {
	if !validPath(path) {
		return fmt.Errorf("capability path %q: %w", path, shared.ErrValidation)
	}
	leaf, ok := overlayLeaves[path]
	if !ok {
		return fmt.Errorf("unknown capability %q: %w", path, shared.ErrValidation)
	}
	v := value
	*leaf(o) = &v
	return nil
}

func validPath(path string) bool {
	parts := strings.Split(path, ".")
	if len(parts) != 2 {
		return false
	}
	return parts[0] != "" && parts[1] != ""
}
