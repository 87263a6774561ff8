package identity

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/permissions"
)

// User represents an account held by the identity store. Every user belongs
// to exactly one organization and carries one base role.
type User struct {
	ID           int64
	Email        string
	Name         string
	Role         permissions.Role
	OrgID        int64
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Subject adapts the user onto the merge engine's identity view.
func (u User) Subject() permissions.Subject {
	return permissions.Subject{ID: u.ID, OrgID: u.OrgID, Role: u.Role, Active: u.IsActive}
}
