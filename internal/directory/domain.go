package directory

import "time"

// Organization is the tenant boundary of the system.
type Organization struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Team groups users within one organization.
type Team struct {
	ID        int64
	OrgID     int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
