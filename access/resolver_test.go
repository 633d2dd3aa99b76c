package access

import (
	"testing"

	"github.com/cccteam/ccc/accesstypes"
	"github.com/google/go-cmp/cmp"
)

func TestEffectivePermissions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		user *User
		want []accesstypes.Permission
	}{
		{
			name: "nil user has no permissions",
			user: nil,
			want: nil,
		},
		{
			name: "admin short-circuits to the universal grant",
			user: &User{Username: "alice", Role: RoleAdmin},
			want: []accesstypes.Permission{PermissionAll},
		},
		{
			name: "admin ignores a stale custom deny-all",
			user: &User{Username: "alice", Role: RoleAdmin, UsesCustomPermissions: true, CustomPermissions: []accesstypes.Permission{}},
			want: []accesstypes.Permission{PermissionAll},
		},
		{
			name: "custom set returned verbatim",
			user: &User{Username: "bob", Role: RoleDeveloper, UsesCustomPermissions: true, CustomPermissions: []accesstypes.Permission{"k8s.view", "helm.view"}},
			want: []accesstypes.Permission{"k8s.view", "helm.view"},
		},
		{
			name: "empty custom set is deny-all, role defaults are not merged",
			user: &User{Username: "bob", Role: RoleDeveloper, UsesCustomPermissions: true, CustomPermissions: []accesstypes.Permission{}},
			want: []accesstypes.Permission{},
		},
		{
			name: "role defaults when custom flag is off",
			user: &User{Username: "carol", Role: RoleViewer, CustomPermissions: []accesstypes.Permission{"admin.users"}},
			want: []accesstypes.Permission{"k8s.view", "gitops.view", "helm.view", "pipelines.view"},
		},
		{
			name: "unknown role has no defaults",
			user: &User{Username: "mallory", Role: accesstypes.Role("root")},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if diff := cmp.Diff(tt.want, EffectivePermissions(tt.user)); diff != "" {
				t.Errorf("EffectivePermissions() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHasPermission_wildcardDominance(t *testing.T) {
	t.Parallel()

	admin := &User{Username: "alice", Role: RoleAdmin}
	custom := &User{Username: "bob", Role: RoleOperator, UsesCustomPermissions: true, CustomPermissions: []accesstypes.Permission{PermissionAll}}

	// The universal grant covers capabilities never enumerated anywhere.
	for _, capability := range []accesstypes.Permission{"k8s.view", "admin.users", "made.up", "x"} {
		if !HasPermission(admin, capability) {
			t.Errorf("HasPermission(admin, %s) = false, want true", capability)
		}
		if !HasPermission(custom, capability) {
			t.Errorf("HasPermission(custom wildcard, %s) = false, want true", capability)
		}
	}
}

func TestHasPermission(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		user       *User
		capability accesstypes.Permission
		want       bool
	}{
		{
			name:       "developer defaults grant k8s.view",
			user:       &User{Username: "dev", Role: RoleDeveloper},
			capability: "k8s.view",
			want:       true,
		},
		{
			name:       "developer defaults do not grant admin.users",
			user:       &User{Username: "dev", Role: RoleDeveloper},
			capability: "admin.users",
			want:       false,
		},
		{
			name:       "no prefix matching below the top-level wildcard",
			user:       &User{Username: "bob", Role: RoleOperator, UsesCustomPermissions: true, CustomPermissions: []accesstypes.Permission{"k8s.*"}},
			capability: "k8s.view",
			want:       false,
		},
		{
			name:       "custom deny-all grants nothing",
			user:       &User{Username: "bob", Role: RoleDeveloper, UsesCustomPermissions: true, CustomPermissions: []accesstypes.Permission{}},
			capability: "k8s.view",
			want:       false,
		},
		{
			name:       "nil user grants nothing",
			user:       nil,
			capability: "k8s.view",
			want:       false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := HasPermission(tt.user, tt.capability); got != tt.want {
				t.Errorf("HasPermission() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasRole(t *testing.T) {
	t.Parallel()

	dev := &User{Username: "dev", Role: RoleDeveloper}

	if !HasRole(dev, RoleOperator) {
		t.Error("HasRole(developer, operator) = false, want true")
	}
	if HasRole(dev, RoleAdmin) {
		t.Error("HasRole(developer, admin) = true, want false")
	}
	if HasRole(nil, RoleViewer) {
		t.Error("HasRole(nil, viewer) = true, want false")
	}
}
