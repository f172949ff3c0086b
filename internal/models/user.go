package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleUser       UserRole = "USER"
	RoleAdmin      UserRole = "ADMIN"
	RoleSuperAdmin UserRole = "SUPER_ADMIN"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Elevated reports whether r may act on resources it does not own.
func (r UserRole) Elevated() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         UserRole   `db:"role" json:"role"`
	IsBlocked    bool       `db:"is_blocked" json:"isBlocked"`
	LastLogin    *time.Time `db:"last_login" json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}

// UserInfo is the public projection returned by auth endpoints.
type UserInfo struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Role  UserRole `json:"role"`
}

// Info projects the user to its public fields.
func (u *User) Info() UserInfo {
	return UserInfo{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole `form:"role"`
	IsBlocked *bool     `form:"isBlocked"`
	Search    string    `form:"search"`
	Page      int       `form:"page"`
	Limit     int       `form:"limit"`
}

// CreateUserRequest is the SUPER_ADMIN payload for provisioning accounts.
type CreateUserRequest struct {
	Name     string   `json:"name" validate:"required,max=50"`
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=6"`
	Role     UserRole `json:"role" validate:"omitempty,user_role"`
}

// UpdateUserRequest carries optional account changes.
type UpdateUserRequest struct {
	Name      *string   `json:"name" validate:"omitempty,min=1,max=50"`
	Email     *string   `json:"email" validate:"omitempty,email"`
	Role      *UserRole `json:"role" validate:"omitempty,user_role"`
	IsBlocked *bool     `json:"isBlocked"`
	Password  *string   `json:"password" validate:"omitempty,min=6"`
}
