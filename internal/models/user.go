package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

// Portal roles. Students self-register through the portal; administrators
// are provisioned out of band.
const (
	RoleAdmin   UserRole = "ADMIN"
	RoleStudent UserRole = "STUDENT"
)

// User represents a portal account stored in the users table. Student
// accounts carry the academic profile fields; they are empty for admins.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	MatricNumber string     `db:"matric_number" json:"matric_number,omitempty"`
	Department   string     `db:"department" json:"department,omitempty"`
	Program      string     `db:"program" json:"program,omitempty"`
	Level        int        `db:"level" json:"level,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
