package users_test

import (
	"testing"

	"github.com/jrsteele09/go-tenant-auth/users"
	"github.com/stretchr/testify/require"
)

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"Short1", true},
		{"alllowercase1", true},
		{"ALLUPPERCASE1", true},
		{"NoNumbersHere", true},
		{"Valid1Password", false},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := users.ValidatePasswordStrength(tt.password)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := users.HashPassword("Secret123")
	require.NoError(t, err)
	require.True(t, users.CheckPasswordHash("Secret123", hash))
	require.False(t, users.CheckPasswordHash("secret123", hash))
}

func TestPrincipalIsDetachedFromUser(t *testing.T) {
	u := &users.User{
		ID:          "u1",
		TenantID:    "t1",
		Username:    "alice",
		Status:      users.StatusEnabled,
		Roles:       []string{"tenant_user", "tenant_user"},
		Permissions: []string{users.PermissionUserList},
	}
	p := u.Principal("A01")
	require.Equal(t, []string{"tenant_user"}, p.Roles)
	require.Equal(t, "A01", p.TenantCode)

	u.Permissions[0] = "changed"
	require.Equal(t, users.PermissionUserList, p.Permissions[0])
}

func TestPrincipalPermissions(t *testing.T) {
	p := users.NewPrincipal("u1", "alice", "t1", "", nil, []string{users.PermissionUserList}, users.StatusEnabled)
	require.True(t, p.HasPermission(users.PermissionUserList))
	require.False(t, p.HasPermission(users.PermissionLoginLogList))

	admin := users.NewPrincipal("u2", "root", "t1", "", []string{string(users.RoleSuperAdmin)}, nil, users.StatusEnabled)
	require.True(t, admin.HasPermission(users.PermissionLoginLogList))

	wildcard := users.NewPrincipal("u3", "ops", "t1", "", nil, []string{users.PermissionAll}, users.StatusEnabled)
	require.True(t, wildcard.HasPermission(users.PermissionUserUnlock))
}

func TestStatus(t *testing.T) {
	require.True(t, (&users.User{Status: users.StatusEnabled}).CanLogin())
	require.False(t, (&users.User{Status: users.StatusDisabled}).CanLogin())
	require.False(t, (&users.User{Status: users.StatusDeparted}).CanLogin())
	require.Equal(t, "departed", users.StatusDeparted.String())
}
