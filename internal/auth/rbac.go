package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lovedev.org/internal/ids"
)

// GetUser loads a user with roles and permissions resolved.
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.store.Users(ctx).Find(ctx, userID)
}

// GetUserByEmail loads a user by exact email match.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.store.Users(ctx).FindByEmail(ctx, strings.TrimSpace(email))
}

// ListUsers pages through non-deleted users.
func (s *Service) ListUsers(ctx context.Context, offset, limit int) ([]*User, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Users(ctx).List(ctx, offset, limit)
}

// AddRole grants a role to a user. Rejects unknown roles and duplicates.
func (s *Service) AddRole(ctx context.Context, userID, roleName string) (*User, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	role, err := s.store.Roles(ctx).FindByName(ctx, WithRolePrefix(roleName))
	if err != nil {
		return nil, err
	}
	if user.HasRoleName(role.Name) {
		return nil, fmt.Errorf("%w: user already has role %s", ErrConflict, role.Name)
	}
	if err := s.store.Roles(ctx).Assign(ctx, user.ID, role.ID); err != nil {
		return nil, fmt.Errorf("assign role: %w", err)
	}
	s.auditRoleChange(ctx, user, "role added", role.Name)
	return s.store.Users(ctx).Find(ctx, userID)
}

// RemoveRole revokes a role from a user. A user always keeps at least one
// role; removing the last one is rejected.
func (s *Service) RemoveRole(ctx context.Context, userID, roleName string) (*User, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	role, err := s.store.Roles(ctx).FindByName(ctx, WithRolePrefix(roleName))
	if err != nil {
		return nil, err
	}
	if !user.HasRoleName(role.Name) {
		return nil, fmt.Errorf("%w: user does not have role %s", ErrNotFound, role.Name)
	}
	if len(user.Roles) == 1 {
		return nil, ErrLastRole
	}
	if err := s.store.Roles(ctx).Unassign(ctx, user.ID, role.ID); err != nil {
		return nil, fmt.Errorf("unassign role: %w", err)
	}
	s.auditRoleChange(ctx, user, "role removed", role.Name)
	return s.store.Users(ctx).Find(ctx, userID)
}

// ReplaceRoles swaps the user's role set wholesale. Every name must resolve
// to an existing role and the target set must be non-empty; otherwise nothing
// changes.
func (s *Service) ReplaceRoles(ctx context.Context, userID string, roleNames []string) (*User, error) {
	if len(roleNames) == 0 {
		return nil, fmt.Errorf("%w: at least one role is required", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	roles := s.store.Roles(ctx)
	seen := make(map[string]struct{}, len(roleNames))
	roleIDs := make([]string, 0, len(roleNames))
	resolved := make([]string, 0, len(roleNames))
	for _, name := range roleNames {
		name = WithRolePrefix(name)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		role, err := roles.FindByName(ctx, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: role %s", ErrNotFound, name)
			}
			return nil, err
		}
		roleIDs = append(roleIDs, role.ID)
		resolved = append(resolved, role.Name)
	}
	if err := roles.ReplaceForUser(ctx, user.ID, roleIDs); err != nil {
		return nil, fmt.Errorf("replace roles: %w", err)
	}
	s.appendAudit(ctx, &AuditEntry{
		Action:     AuditChangeRole,
		EntityType: "user",
		EntityID:   user.ID,
		OldValues:  map[string]any{"roles": user.RoleNames()},
		NewValues:  map[string]any{"roles": resolved},
	})
	return s.store.Users(ctx).Find(ctx, userID)
}

// UpdateStatus moves the account between ACTIVE, INACTIVE and BANNED.
// Banning revokes every refresh token immediately.
func (s *Service) UpdateStatus(ctx context.Context, userID string, status UserStatus) (*User, error) {
	switch status {
	case StatusActive, StatusInactive, StatusBanned:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Status == status {
		return user, nil
	}
	if err := s.store.Users(ctx).SetStatus(ctx, user.ID, status); err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	if status == StatusBanned {
		if err := s.sessions.RevokeAll(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("revoke sessions: %w", err)
		}
	}
	s.appendAudit(ctx, &AuditEntry{
		Action:     AuditChangeStatus,
		EntityType: "user",
		EntityID:   user.ID,
		OldValues:  map[string]any{"status": string(user.Status)},
		NewValues:  map[string]any{"status": string(status)},
	})
	user.Status = status
	return user, nil
}

// SoftDeleteUser clears role assignments, stamps deleted_at and revokes all
// sessions. The row stays behind for audit history.
func (s *Service) SoftDeleteUser(ctx context.Context, userID string) error {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.store.Users(ctx).SoftDelete(ctx, user.ID); err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}
	if err := s.sessions.RevokeAll(ctx, user.ID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.appendAudit(ctx, &AuditEntry{
		Action:     AuditDelete,
		EntityType: "user",
		EntityID:   user.ID,
		OldValues:  map[string]any{"email": user.Email, "roles": user.RoleNames()},
	})
	return nil
}

// CreateRole adds a role to the catalog. Names are ROLE_-prefixed and unique.
func (s *Service) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	name = WithRolePrefix(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	roles := s.store.Roles(ctx)
	if existing, err := roles.FindByName(ctx, name); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: role %s already exists", ErrConflict, name)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	now := s.now().UTC()
	role := &Role{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := roles.Create(ctx, role); err != nil {
		return nil, fmt.Errorf("create role: %w", err)
	}
	return role, nil
}

// ListRoles returns the full role catalog.
func (s *Service) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.store.Roles(ctx).List(ctx)
}

// DeleteRole removes a role from the catalog. System roles and roles still
// assigned to users are protected; the store surfaces assignment conflicts
// as ErrConflict.
func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	role, err := s.store.Roles(ctx).Find(ctx, roleID)
	if err != nil {
		return err
	}
	if role.SystemRole {
		return fmt.Errorf("%w: system role %s cannot be deleted", ErrForbidden, role.Name)
	}
	return s.store.Roles(ctx).Delete(ctx, role.ID)
}

func (s *Service) auditRoleChange(ctx context.Context, user *User, what, roleName string) {
	s.appendAudit(ctx, &AuditEntry{
		Action:      AuditChangeRole,
		EntityType:  "user",
		EntityID:    user.ID,
		OldValues:   map[string]any{"roles": user.RoleNames()},
		NewValues:   map[string]any{"role": roleName},
		Description: what,
	})
}
