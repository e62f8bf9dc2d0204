package auth

import (
	"strings"
	"time"
)

// UserStatus is the account lifecycle state.
type UserStatus string

const (
	StatusInactive UserStatus = "INACTIVE"
	StatusActive   UserStatus = "ACTIVE"
	StatusBanned   UserStatus = "BANNED"
)

// Role name conventions. Names are stored with the ROLE_ prefix already applied.
const (
	RolePrefix = "ROLE_"

	RoleAdmin    = "ROLE_ADMIN"
	RoleManager  = "ROLE_MANAGER"
	RoleEmployee = "ROLE_EMPLOYEE"
	RoleUser     = "ROLE_USER"

	// DefaultRoleName is assigned at registration. Its absence from the role
	// catalog is a fatal configuration error, never silently defaulted.
	DefaultRoleName = RoleUser
)

// rolePriority orders roles for primary-role derivation, highest first.
var rolePriority = []string{RoleAdmin, RoleManager, RoleEmployee, RoleUser}

// WithRolePrefix normalizes a role name to the stored ROLE_ convention.
func WithRolePrefix(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, RolePrefix) {
		return name
	}
	return RolePrefix + name
}

// User is the persisted identity record.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string

	Status        UserStatus
	EmailVerified bool

	VerificationToken     string
	VerificationExpiresAt *time.Time
	ResetToken            string
	ResetExpiresAt        *time.Time

	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time

	Roles []Role
}

// FullName joins first and last name for display.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsDeleted reports whether the record has been soft-deleted.
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// RoleNames returns the names of all assigned roles.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// HasRoleName reports whether the user holds the named role. The ROLE_ prefix
// is applied when missing.
func (u *User) HasRoleName(name string) bool {
	name = WithRolePrefix(name)
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// PrimaryRole returns the highest-priority role the user holds
// (ADMIN > MANAGER > EMPLOYEE > USER), falling back to any held role.
func (u *User) PrimaryRole() *Role {
	for _, want := range rolePriority {
		for i := range u.Roles {
			if u.Roles[i].Name == want {
				return &u.Roles[i]
			}
		}
	}
	if len(u.Roles) > 0 {
		return &u.Roles[0]
	}
	return nil
}

// Permissions returns the union of permissions across all assigned roles.
func (u *User) Permissions() []Permission {
	seen := make(map[string]struct{})
	var out []Permission
	for _, r := range u.Roles {
		for _, p := range r.Permissions {
			if _, ok := seen[p.Name]; ok {
				continue
			}
			seen[p.Name] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// HasPermission reports whether any assigned role grants the named permission.
func (u *User) HasPermission(name string) bool {
	for _, r := range u.Roles {
		for _, p := range r.Permissions {
			if p.Name == name {
				return true
			}
		}
	}
	return false
}

// Role groups permissions under a unique name.
type Role struct {
	ID          string
	Name        string
	Description string
	SystemRole  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Permissions []Permission
}

// Permission is an atomic capability identified by a unique name and by the
// (resource, action) pair.
type Permission struct {
	ID          string
	Name        string
	Description string
	Resource    string
	Action      string
	CreatedAt   time.Time
}

// Key returns the resource:action form, e.g. "user:update".
func (p Permission) Key() string {
	return p.Resource + ":" + p.Action
}

// Matches reports whether the permission covers the given resource and action.
func (p Permission) Matches(resource, action string) bool {
	return p.Resource == resource && p.Action == action
}

// RefreshToken is a persisted opaque session credential.
type RefreshToken struct {
	ID        string
	Token     string
	UserID    string
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Valid reports whether the token is usable at the given instant.
func (t *RefreshToken) Valid(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// Audit actions recorded for security-relevant operations.
const (
	AuditLogin         = "LOGIN"
	AuditLogout        = "LOGOUT"
	AuditRegister      = "REGISTER"
	AuditVerifyEmail   = "VERIFY_EMAIL"
	AuditResetPassword = "RESET_PASSWORD"
	AuditChangeRole    = "CHANGE_ROLE"
	AuditChangeStatus  = "CHANGE_STATUS"
	AuditUpdate        = "UPDATE"
	AuditDelete        = "DELETE"
)

// AuditEntry is an append-only record of a security-relevant action. Writing
// one must never abort the operation it describes.
type AuditEntry struct {
	ID          string
	OccurredAt  time.Time
	ActorUserID string
	Action      string
	EntityType  string
	EntityID    string
	OldValues   map[string]any
	NewValues   map[string]any
	IPAddress   string
	UserAgent   string
	Description string
}
