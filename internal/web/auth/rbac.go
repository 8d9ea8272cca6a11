package auth

import (
	"errors"
)

var (
	ErrUnauthorized = errors.New("unauthorized: insufficient permissions")
)

// Role definitions
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Permission definitions
const (
	PermissionViewJobs    = "jobs:read"
	PermissionViewHistory = "history:read"
	PermissionViewHealth  = "health:read"
	PermissionTriggerRun  = "runs:trigger"
)

// RolePermissions maps roles to their allowed permissions
var RolePermissions = map[string][]string{
	RoleAdmin: {
		PermissionViewJobs,
		PermissionViewHistory,
		PermissionViewHealth,
		PermissionTriggerRun,
	},
	RoleOperator: {
		PermissionViewJobs,
		PermissionViewHistory,
		PermissionViewHealth,
		PermissionTriggerRun,
	},
	RoleViewer: {
		PermissionViewJobs,
		PermissionViewHistory,
		PermissionViewHealth,
	},
}

func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}

// HasPermission checks if user roles include the required permission
func HasPermission(userRoles []string, requiredPermission string) bool {
	for _, role := range userRoles {
		for _, perm := range RolePermissions[role] {
			if perm == requiredPermission {
				return true
			}
		}
	}
	return false
}

// RequirePermission returns a check that fails unless claims grant permission.
func RequirePermission(permission string) func(*Claims) error {
	return func(claims *Claims) error {
		if claims == nil || !HasPermission(claims.Roles, permission) {
			return ErrUnauthorized
		}
		return nil
	}
}
