package auth

import (
	"context"
	"errors"
	"fmt"
)

// Permission names consulted by the HTTP route guards.
const (
	PermUsersRead    = "users:read"
	PermUsersWrite   = "users:write"
	PermUsersDelete  = "users:delete"
	PermRolesRead    = "roles:read"
	PermRolesWrite   = "roles:write"
	PermAuditRead    = "audit:read"
	PermProfileRead  = "profile:read"
	PermProfileWrite = "profile:write"
)

// DefaultPermissions mirrors the seed catalog so the in-memory store and a
// freshly migrated database agree on what the guards can check.
var DefaultPermissions = []Permission{
	{ID: "perm_users_read", Name: PermUsersRead, Description: "Read user accounts", Resource: "users", Action: "read"},
	{ID: "perm_users_write", Name: PermUsersWrite, Description: "Create and update user accounts", Resource: "users", Action: "write"},
	{ID: "perm_users_delete", Name: PermUsersDelete, Description: "Delete user accounts", Resource: "users", Action: "delete"},
	{ID: "perm_roles_read", Name: PermRolesRead, Description: "Read the role catalog", Resource: "roles", Action: "read"},
	{ID: "perm_roles_write", Name: PermRolesWrite, Description: "Manage the role catalog", Resource: "roles", Action: "write"},
	{ID: "perm_audit_read", Name: PermAuditRead, Description: "Read the audit trail", Resource: "audit", Action: "read"},
	{ID: "perm_profile_read", Name: PermProfileRead, Description: "Read own profile", Resource: "profile", Action: "read"},
	{ID: "perm_profile_write", Name: PermProfileWrite, Description: "Update own profile", Resource: "profile", Action: "write"},
}

// DefaultRoleGrants maps the system role IDs to their seeded permission IDs.
var DefaultRoleGrants = map[string][]string{
	"role_admin": {
		"perm_users_read", "perm_users_write", "perm_users_delete",
		"perm_roles_read", "perm_roles_write", "perm_audit_read",
		"perm_profile_read", "perm_profile_write",
	},
	"role_manager": {
		"perm_users_read", "perm_users_write", "perm_roles_read",
		"perm_profile_read", "perm_profile_write",
	},
	"role_employee": {
		"perm_users_read", "perm_profile_read", "perm_profile_write",
	},
	"role_user": {
		"perm_profile_read", "perm_profile_write",
	},
}

// EnsurePermissionCatalog installs the default permission catalog and the
// system role grants. Roles absent from the store are skipped, so a partial
// role seed still works. Idempotent.
func (s *Service) EnsurePermissionCatalog(ctx context.Context) error {
	perms := s.store.Permissions(ctx)
	if err := perms.Ensure(ctx, DefaultPermissions); err != nil {
		return fmt.Errorf("ensure permissions: %w", err)
	}
	roles := s.store.Roles(ctx)
	for roleID, grant := range DefaultRoleGrants {
		if _, err := roles.Find(ctx, roleID); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return fmt.Errorf("find role %s: %v", roleID, err)
		}
		if err := perms.SetForRole(ctx, roleID, grant); err != nil {
			return fmt.Errorf("grant role %s: %v", roleID, err)
		}
	}
	return nil
}
