package permissions

import (
	"fmt"
	"time"
)

// Source tags where an assignment's effective document came from.
type Source string

const (
	SourceRole     Source = "role"
	SourceTemplate Source = "template"
	SourceCustom   Source = "custom"
)

// Scope narrows where an assignment applies. Matching is exact equality on
// both optionals; an org-scoped assignment never answers a team-scoped query.
type Scope struct {
	OrgID  *int64
	TeamID *int64
}

// Key returns a stable cache key fragment for the scope.
func (s Scope) Key() string {
	org, team := int64(0), int64(0)
	if s.OrgID != nil {
		org = *s.OrgID
	}
	if s.TeamID != nil {
		team = *s.TeamID
	}
	return fmt.Sprintf("o%d.t%d", org, team)
}

// Assignment associates a user with an optional template and custom
// overrides for one exact scope, plus the cached effective document.
type Assignment struct {
	ID            int64
	UserID        int64
	Scope         Scope
	Source        Source
	TemplateID    *int64
	Custom        *Overlay
	Cached        *Document
	CachedAt      time.Time
	CachedRole    Role
	TemplateStamp time.Time
	DefaultsRev   int
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Template is a named, reusable overlay, optionally organization-scoped.
// A nil OrgID makes the template visible to every organization.
type Template struct {
	ID        int64
	OrgID     *int64
	Name      string
	Doc       Overlay
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subject is the minimal identity view the merge engine needs. The identity
// package adapts its User type onto this.
type Subject struct {
	ID     int64
	OrgID  int64
	Role   Role
	Active bool
}
