package users

import (
	"slices"

	"github.com/jrsteele09/go-tenant-auth/internal/utils"
)

// Principal is the authenticated identity attached to a request. It is built
// once from a verified token and treated as immutable.
type Principal struct {
	UserID      string   `json:"userId"`
	Username    string   `json:"username"`
	TenantID    string   `json:"tenantId"`
	TenantCode  string   `json:"tenantCode,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Status      Status   `json:"status"`
}

// NewPrincipal copies and de-duplicates roles and permissions so callers
// cannot mutate the principal through shared slices.
func NewPrincipal(userID, username, tenantID, tenantCode string, roles, permissions []string, status Status) Principal {
	return Principal{
		UserID:      userID,
		Username:    username,
		TenantID:    tenantID,
		TenantCode:  tenantCode,
		Roles:       utils.Dedupe(roles),
		Permissions: utils.Dedupe(permissions),
		Status:      status,
	}
}

func (p Principal) HasRole(role RoleType) bool {
	return utils.Contains(p.Roles, string(role))
}

// HasPermission reports whether the principal holds perm, directly or through
// the super admin role or the wildcard permission.
func (p Principal) HasPermission(perm string) bool {
	if p.HasRole(RoleSuperAdmin) || utils.Contains(p.Permissions, PermissionAll) {
		return true
	}
	return utils.Contains(p.Permissions, perm)
}

// Clone returns a copy that shares no slices with p.
func (p Principal) Clone() Principal {
	p.Roles = slices.Clone(p.Roles)
	p.Permissions = slices.Clone(p.Permissions)
	return p
}
