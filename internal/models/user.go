package models

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin  UserRole = "ADMIN"
	RoleStaff  UserRole = "STAFF"
	RoleClient UserRole = "CLIENT"
)

// IsStaff reports whether the role belongs to the firm rather than a client.
func (r UserRole) IsStaff() bool {
	return r == RoleAdmin || r == RoleStaff
}
