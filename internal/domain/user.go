package domain

import (
	"strings"
	"time"
)

// Role names a TeleCheck actor class. The set is open: unknown roles are
// carried through untouched and only match allow-lists that name them.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleDoctor     Role = "doctor"
	RolePharmacist Role = "pharmacist"
	RoleNurse      Role = "nurse"
	RoleCaregiver  Role = "caregiver"
	RolePatient    Role = "patient"
)

// Normalize lowercases and trims a role for comparison.
func (r Role) Normalize() Role {
	return Role(strings.ToLower(strings.TrimSpace(string(r))))
}

// User is a TeleCheck account: patients, clinicians and administrators.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
