package domain

import "errors"

// Role represents a caller's access level on the admin surface
type Role string

const (
	// RoleOperator may replay events and trigger exports
	RoleOperator Role = "operator"

	// RoleViewer may only read the ledger
	RoleViewer Role = "viewer"
)

var validRoles = map[Role]bool{
	RoleOperator: true,
	RoleViewer:   true,
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// CanOperate reports whether the role may run replay and export.
func (r Role) CanOperate() bool {
	return r == RoleOperator
}

// Authentication errors
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInsufficientRole = errors.New("insufficient role for this operation")
	ErrInvalidRole      = errors.New("invalid role")
)
