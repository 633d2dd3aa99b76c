// Package access implements the role hierarchy and permission resolution
// used by the platform's session core.
//
// Roles form a fixed total order. Capability strings follow the
// category.action convention (e.g. "k8s.view"); "*" is the universal grant.
package access

import (
	"github.com/cccteam/ccc/accesstypes"
)

// The fixed set of platform roles, ordered from least to most privileged.
const (
	RoleViewer    accesstypes.Role = "viewer"
	RoleOperator  accesstypes.Role = "operator"
	RoleDeveloper accesstypes.Role = "developer"
	RoleAdmin     accesstypes.Role = "admin"
)

// PermissionAll is the universal grant. It is only honored at the top level;
// there is no category-level wildcard matching.
const PermissionAll accesstypes.Permission = "*"

// roleLevels assigns each known role a strictly increasing level.
// Unknown roles resolve to 0, below viewer.
var roleLevels = map[accesstypes.Role]int{
	RoleViewer:    1,
	RoleOperator:  2,
	RoleDeveloper: 3,
	RoleAdmin:     4,
}

// Level returns the hierarchy level for role. Unknown roles return 0 so that
// every comparison against a known role fails closed.
func Level(role accesstypes.Role) int {
	return roleLevels[role]
}

// AtLeast reports whether userRole is at or above requiredRole in the
// hierarchy.
func AtLeast(userRole, requiredRole accesstypes.Role) bool {
	return Level(userRole) >= Level(requiredRole)
}

// ValidRole reports whether role is one of the fixed platform roles.
func ValidRole(role accesstypes.Role) bool {
	_, ok := roleLevels[role]

	return ok
}
