package domain

import "github.com/uptrace/bun"

type Role string

const (
	RoleClient   Role = "client"
	RoleStaff    Role = "staff"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// ServiceInfo is the slice of a bookable service the engine depends on. The
// service catalog itself is owned elsewhere.
type ServiceInfo struct {
	bun.BaseModel `bun:"table:services"`

	ID              string  `bun:"id,pk" json:"id"`
	Name            string  `bun:"name" json:"name"`
	DurationMinutes int     `bun:"duration_minutes,notnull" json:"duration_minutes"`
	ProviderID      *string `bun:"provider_id" json:"provider_id,omitempty"`
}

// UserInfo is the slice of a user account the engine depends on.
type UserInfo struct {
	bun.BaseModel `bun:"table:users"`

	ID           string  `bun:"id,pk"`
	Role         Role    `bun:"role,notnull"`
	ProviderType *string `bun:"provider_type"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
}
