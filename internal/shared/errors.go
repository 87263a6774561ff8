package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrConflict indicates a concurrent update beat this one.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrValidation indicates invalid input to a mutation.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden indicates the actor lacks a required capability.
	ErrForbidden = errors.New("forbidden")
)

// SelfManagementError is returned when a user is assigned as their own manager.
type SelfManagementError struct {
	UserID int64
}

func (e *SelfManagementError) Error() string {
	return fmt.Sprintf("user %d cannot manage themselves", e.UserID)
}

func (e *SelfManagementError) Unwrap() error { return ErrValidation }

// CrossOrganizationError is returned when a management edge would span organizations.
type CrossOrganizationError struct {
	ManagerID    int64
	ManagedID    int64
	ManagerOrgID int64
	ManagedOrgID int64
}

func (e *CrossOrganizationError) Error() string {
	return fmt.Sprintf("manager %d (org %d) and user %d (org %d) belong to different organizations",
		e.ManagerID, e.ManagerOrgID, e.ManagedID, e.ManagedOrgID)
}

func (e *CrossOrganizationError) Unwrap() error { return ErrValidation }

// DuplicateEdgeError is returned when an identical active management edge already exists.
type DuplicateEdgeError struct {
	ManagerID int64
	ManagedID int64
}

func (e *DuplicateEdgeError) Error() string {
	return fmt.Sprintf("active management edge %d -> %d already exists", e.ManagerID, e.ManagedID)
}

func (e *DuplicateEdgeError) Unwrap() error { return ErrDuplicate }

// CycleError is returned when a management edge would make the hierarchy cyclic.
type CycleError struct {
	ManagerID int64
	ManagedID int64
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("edge %d -> %d would create a management cycle", e.ManagerID, e.ManagedID)
}

func (e *CycleError) Unwrap() error { return ErrValidation }
