package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is the access level a user holds in the portal
type Role string

// Roles known to the portal
const (
	RoleCitizen Role = "citizen"
	RoleOfficer Role = "officer"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RoleOfficer, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether r belongs to police staff (officers and admins)
func (r Role) IsStaff() bool {
	return r == RoleOfficer || r == RoleAdmin
}

// User holds the structure for the users collection in mongo
type User struct {
	ID         primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Name       string             `json:"name" bson:"name"`
	Email      string             `json:"email" bson:"email"`
	Password   string             `json:"-" bson:"password"`
	Phone      string             `json:"phone,omitempty" bson:"phone,omitempty"`
	Role       Role               `json:"role" bson:"role"`
	BadgeID    string             `json:"badgeId,omitempty" bson:"badgeId,omitempty"`
	IsApproved bool               `json:"isApproved" bson:"isApproved"`
	Department string             `json:"department,omitempty" bson:"department,omitempty"`
	CreatedAt  time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// UserProjection is the sanitized user returned by login and /auth/me
type UserProjection struct {
	ID      primitive.ObjectID `json:"_id"`
	Name    string             `json:"name"`
	Email   string             `json:"email"`
	Role    Role               `json:"role"`
	BadgeID string             `json:"badgeId,omitempty"`
}

// Projection strips everything but the public identity fields
func (u User) Projection() UserProjection {
	return UserProjection{
		ID:      u.ID,
		Name:    u.Name,
		Email:   u.Email,
		Role:    u.Role,
		BadgeID: u.BadgeID,
	}
}

// Complainant is the contact projection attached to FIRs shown to staff
type Complainant struct {
	ID    primitive.ObjectID `json:"_id" bson:"_id"`
	Name  string             `json:"name" bson:"name"`
	Email string             `json:"email" bson:"email"`
	Phone string             `json:"phone,omitempty" bson:"phone,omitempty"`
}

// Complainant returns the contact projection of u
func (u User) Complainant() *Complainant {
	return &Complainant{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
}
