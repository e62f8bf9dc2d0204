package auth

import (
	"context"
	"time"
)

// Store aggregates the persistence surface the service depends on.
// Implementations live in internal/store/pg and in the in-memory store used
// for development and tests.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
	Audit(ctx context.Context) AuditStore
}

// UserStore manages user accounts. Find methods load roles and role
// permissions alongside the user row.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByVerificationToken(ctx context.Context, token string) (*User, error)
	FindByResetToken(ctx context.Context, token string) (*User, error)
	List(ctx context.Context, offset, limit int) ([]*User, int, error)

	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetVerified(ctx context.Context, userID string) error
	SetVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	SetStatus(ctx context.Context, userID string, status UserStatus) error
	SetLastLogin(ctx context.Context, userID string, at time.Time) error

	// CompletePasswordReset updates the password hash, clears the reset
	// token and revokes every refresh token in one transaction.
	CompletePasswordReset(ctx context.Context, userID, passwordHash string) error

	// SoftDelete clears role assignments and stamps deleted_at in one
	// transaction. The row is retained for audit history.
	SoftDelete(ctx context.Context, userID string) error
}

// RoleStore manages the role catalog and user assignments.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id string) error

	Assign(ctx context.Context, userID, roleID string) error
	Unassign(ctx context.Context, userID, roleID string) error
	ReplaceForUser(ctx context.Context, userID string, roleIDs []string) error
}

// PermissionStore manages the permission catalog and role grants.
type PermissionStore interface {
	Ensure(ctx context.Context, perms []Permission) error
	List(ctx context.Context) ([]Permission, error)
	SetForRole(ctx context.Context, roleID string, permissionIDs []string) error
}

// RefreshTokenStore manages refresh token lifecycle.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	FindByToken(ctx context.Context, token string) (*RefreshToken, error)
	MarkRevoked(ctx context.Context, id string) error
	MarkRevokedByUser(ctx context.Context, userID string) error

	// Replace revokes every live token for the user and inserts the new
	// one in a single transaction. Login goes through here so that at most
	// one session is active per user.
	Replace(ctx context.Context, tok *RefreshToken) error

	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditStore appends immutable entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]*AuditEntry, error)
}
