package access

import (
	"github.com/cccteam/ccc/accesstypes"
	"github.com/opsdeck/authcore/util"
)

// User is the authenticated principal as reported by the platform API.
type User struct {
	ID       string           `json:"id"`
	Username string           `json:"username"`
	Role     accesstypes.Role `json:"role"`
	IsActive bool             `json:"isActive"`

	// UsesCustomPermissions selects the explicit override. When false,
	// CustomPermissions is ignored entirely; role defaults are never merged
	// with a custom set.
	UsesCustomPermissions bool                     `json:"usesCustomPermissions"`
	CustomPermissions     []accesstypes.Permission `json:"customPermissions,omitempty"`
}

// defaultPermissions is the fixed per-role grant table. Admin is absent: it
// short-circuits to PermissionAll in EffectivePermissions.
var defaultPermissions = map[accesstypes.Role][]accesstypes.Permission{
	RoleViewer: {
		"k8s.view", "gitops.view", "helm.view", "pipelines.view",
	},
	RoleOperator: {
		"k8s.view", "k8s.edit",
		"gitops.view", "gitops.sync",
		"helm.view", "helm.install", "helm.rollback",
		"pipelines.view", "pipelines.run",
		"secrets.view",
	},
	RoleDeveloper: {
		"k8s.view", "k8s.edit", "k8s.delete",
		"gitops.view", "gitops.edit", "gitops.sync",
		"helm.view", "helm.install", "helm.upgrade", "helm.rollback",
		"pipelines.view", "pipelines.run", "pipelines.edit",
		"secrets.view", "secrets.edit",
	},
}

// EffectivePermissions resolves the permission set that governs u.
//
// Admins always resolve to the universal grant, regardless of any custom
// permission flags left behind on the record. A non-admin with the custom
// flag set gets the custom set verbatim; an empty custom set is an explicit
// deny-all, distinct from "not configured".
func EffectivePermissions(u *User) []accesstypes.Permission {
	switch {
	case u == nil:
		return nil
	case u.Role == RoleAdmin:
		return []accesstypes.Permission{PermissionAll}
	case u.UsesCustomPermissions:
		return u.CustomPermissions
	default:
		return defaultPermissions[u.Role]
	}
}

// HasPermission reports whether u's effective permission set grants
// capability. Only the top-level "*" acts as a wildcard; everything else is
// an exact string match.
func HasPermission(u *User, capability accesstypes.Permission) bool {
	perms := EffectivePermissions(u)
	if util.Contains(perms, PermissionAll) {
		return true
	}

	return util.Contains(perms, capability)
}

// HasRole reports whether u's role is at or above requiredRole.
func HasRole(u *User, requiredRole accesstypes.Role) bool {
	if u == nil {
		return false
	}

	return AtLeast(u.Role, requiredRole)
}
