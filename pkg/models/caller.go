// Package models contains domain models for reliefline.
package models

import "time"

// CallerRole is the access role attached to a caller account.
type CallerRole string

const (
	RoleCaller     CallerRole = "caller"
	RoleVolunteer  CallerRole = "volunteer"
	RoleNGO        CallerRole = "ngo"
	RoleGovernment CallerRole = "government"
	RoleAdmin      CallerRole = "admin"
)

// Caller is a person reaching the system over the USSD channel. Only the
// one-way hash of the phone number is persisted; the raw number exists in
// memory for the duration of a call (notification destination) and is never
// stored next to the hash.
type Caller struct {
	ID        int64      `db:"id" json:"id"`
	PhoneHash string     `db:"phone_hash" json:"phone_hash"`
	Role      CallerRole `db:"role" json:"role"`
	IsActive  bool       `db:"is_active" json:"is_active"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	LastSeen  time.Time  `db:"last_seen" json:"last_seen"`
}
