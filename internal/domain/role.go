// Package domain contains entity without logic, just meta-data
package domain

import "errors"

var ErrUnknownRole = errors.New("unknown role")

// Role decides message permissions and broadcast scoping of a connection.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleKitchen  Role = "kitchen"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleAdmin, RoleKitchen:
		return r, nil
	}
	return "", ErrUnknownRole
}

// IsStaff reports whether the role receives full, unshaped order payloads.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleKitchen
}
