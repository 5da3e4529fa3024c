package models

import "time"

// UserRole enumerates the account roles known to the API.
type UserRole string

const (
	RoleStudent         UserRole = "student"
	RoleSignatory       UserRole = "signatory"
	RoleRegistrar       UserRole = "registrar"
	RoleBusinessManager UserRole = "business_manager"
	RoleAdmin           UserRole = "admin"
)

// User is an authenticated account.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FullName     string    `db:"full_name" json:"full_name"`
	Role         UserRole  `db:"role" json:"role"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// SignatoryAssignment binds a user to an office role on the clearance roster.
// At most one active assignment exists per office role.
type SignatoryAssignment struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	OfficeRole OfficeRole `db:"office_role" json:"office_role"`
	Active     bool       `db:"active" json:"active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}
