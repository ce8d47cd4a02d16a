package domain

import (
	"strings"
	"time"
)

// Role is the closed set of actor kinds. Anything else is treated as no role.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleResearcher  Role = "researcher"
	RoleParticipant Role = "participant"
)

// ParseRole returns the Role named by s and whether it is one of the known roles.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleResearcher, RoleParticipant:
		return true
	}
	return false
}

// User models an authenticated actor in the system.
type User struct {
	Key          string    `json:"_key" bson:"_id,omitempty"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"hashedPassword"`
	Role         Role      `json:"role" bson:"role"`
	TestUser     bool      `json:"testUser,omitempty" bson:"testUser,omitempty"`
	CreatedAt    time.Time `json:"createdTS" bson:"createdTS"`
	UpdatedAt    time.Time `json:"updatedTS" bson:"updatedTS"`
}
