package groups

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRole_IsValid(t *testing.T) {
	require.True(t, RoleViewer.IsValid())
	require.True(t, RoleEditor.IsValid())
	require.True(t, RoleAdmin.IsValid())
	require.False(t, Role("owner").IsValid())
	require.False(t, Role("").IsValid())
}

func TestRole_Meets(t *testing.T) {
	cases := []struct {
		role     Role
		required Role
		want     bool
	}{
		{RoleViewer, RoleViewer, true},
		{RoleViewer, RoleEditor, false},
		{RoleViewer, RoleAdmin, false},
		{RoleEditor, RoleViewer, true},
		{RoleEditor, RoleEditor, true},
		{RoleEditor, RoleAdmin, false},
		{RoleAdmin, RoleViewer, true},
		{RoleAdmin, RoleEditor, true},
		{RoleAdmin, RoleAdmin, true},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, tc.role.Meets(tc.required),
			"%s meets %s", tc.role, tc.required)
	}
}

func TestRole_Meets_UnknownRoleNeverQualifies(t *testing.T) {
	require.False(t, Role("owner").Meets(RoleViewer))
	require.False(t, Role("").Meets(RoleViewer))
}
