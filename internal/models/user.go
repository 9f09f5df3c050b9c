package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Role identifies which side of the marketplace a user acts on.
// Values arrive as loose strings from the identity provider and are
// validated once at the boundary via ParseRole.
type Role string

const (
	RoleAthlete Role = "athlete"
	RoleExpert  Role = "expert"
	RoleHost    Role = "host"
)

// ParseRole validates a raw role claim. Unknown values are rejected so
// handlers never pass unchecked strings into the services.
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleAthlete, RoleExpert, RoleHost:
		return Role(raw), true
	}
	return "", false
}

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        string    `bun:"id,pk" json:"id"`
	Email     string    `bun:"email,unique,notnull" json:"email"`
	FullName  string    `bun:"full_name,notnull" json:"full_name"`
	Role      Role      `bun:"role,notnull" json:"role"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
