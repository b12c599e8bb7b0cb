package auth

import "time"

type Role string

const (
	RoleReviewer  Role = "reviewer"
	RoleAdmin     Role = "admin"
	RoleApplicant Role = "applicant"
)

// CanReview reports whether the role is allowed to act on review cards.
func (r Role) CanReview() bool {
	return r == RoleReviewer || r == RoleAdmin
}

// User is the domain representation of a staff account. It mirrors the
// staff_users table and carries no presentation annotations.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains account registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
