package access

import (
	"testing"

	"github.com/cccteam/ccc/accesstypes"
)

func TestLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		role accesstypes.Role
		want int
	}{
		{name: "viewer", role: RoleViewer, want: 1},
		{name: "operator", role: RoleOperator, want: 2},
		{name: "developer", role: RoleDeveloper, want: 3},
		{name: "admin", role: RoleAdmin, want: 4},
		{name: "unknown role is below viewer", role: accesstypes.Role("superuser"), want: 0},
		{name: "empty role is below viewer", role: accesstypes.Role(""), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Level(tt.role); got != tt.want {
				t.Errorf("Level() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAtLeast(t *testing.T) {
	t.Parallel()

	roles := []accesstypes.Role{RoleViewer, RoleOperator, RoleDeveloper, RoleAdmin}

	// AtLeast(a, b) must agree with Level(a) >= Level(b) for every pair.
	for _, a := range roles {
		for _, b := range roles {
			if got, want := AtLeast(a, b), Level(a) >= Level(b); got != want {
				t.Errorf("AtLeast(%s, %s) = %v, want %v", a, b, got, want)
			}
		}
	}

	tests := []struct {
		name     string
		userRole accesstypes.Role
		required accesstypes.Role
		want     bool
	}{
		{name: "viewer is not admin", userRole: RoleViewer, required: RoleAdmin, want: false},
		{name: "admin is at least viewer", userRole: RoleAdmin, required: RoleViewer, want: true},
		{name: "developer is at least operator", userRole: RoleDeveloper, required: RoleOperator, want: true},
		{name: "operator is not developer", userRole: RoleOperator, required: RoleDeveloper, want: false},
		{name: "role is at least itself", userRole: RoleOperator, required: RoleOperator, want: true},
		{name: "unknown role fails closed", userRole: accesstypes.Role("root"), required: RoleViewer, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := AtLeast(tt.userRole, tt.required); got != tt.want {
				t.Errorf("AtLeast() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidRole(t *testing.T) {
	t.Parallel()

	if !ValidRole(RoleDeveloper) {
		t.Error("ValidRole(developer) = false, want true")
	}
	if ValidRole(accesstypes.Role("intern")) {
		t.Error("ValidRole(intern) = true, want false")
	}
}
