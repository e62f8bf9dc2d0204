package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a map-backed Store used by tests and by cmd/api when no
// database DSN is configured. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]*User
	roles  map[string]*Role
	perms  map[string]*Permission
	tokens map[string]*RefreshToken
	audits []*AuditEntry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]*User),
		roles:  make(map[string]*Role),
		perms:  make(map[string]*Permission),
		tokens: make(map[string]*RefreshToken),
	}
}

func (m *MemoryStore) Users(context.Context) UserStore                 { return (*memUsers)(m) }
func (m *MemoryStore) Roles(context.Context) RoleStore                 { return (*memRoles)(m) }
func (m *MemoryStore) Permissions(context.Context) PermissionStore     { return (*memPerms)(m) }
func (m *MemoryStore) RefreshTokens(context.Context) RefreshTokenStore { return (*memTokens)(m) }
func (m *MemoryStore) Audit(context.Context) AuditStore                { return (*memAudit)(m) }

// Seed inserts a role directly, mirroring what migrations do in production.
func (m *MemoryStore) Seed(roles ...*Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range roles {
		cp := *r
		m.roles[r.ID] = &cp
	}
}

func cloneUser(u *User) *User {
	cp := *u
	cp.Roles = make([]Role, len(u.Roles))
	copy(cp.Roles, u.Roles)
	return &cp
}

type memUsers MemoryStore

func (m *memUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email && existing.DeletedAt == nil {
			return fmt.Errorf("%w: email taken", ErrConflict)
		}
	}
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email && u.DeletedAt == nil {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) FindByVerificationToken(_ context.Context, token string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.VerificationToken == token && token != "" && u.DeletedAt == nil {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) FindByResetToken(_ context.Context, token string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.ResetToken == token && token != "" && u.DeletedAt == nil {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) List(_ context.Context, offset, limit int) ([]*User, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*User
	for _, u := range m.users {
		if u.DeletedAt == nil {
			all = append(all, cloneUser(u))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memUsers) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return ErrNotFound
	}
	cp := cloneUser(u)
	cp.UpdatedAt = time.Now().UTC()
	m.users[u.ID] = cp
	return nil
}

func (m *memUsers) mutate(id string, fn func(*User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.DeletedAt != nil {
		return ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	return m.mutate(userID, func(u *User) { u.PasswordHash = passwordHash })
}

func (m *memUsers) SetVerified(_ context.Context, userID string) error {
	return m.mutate(userID, func(u *User) {
		u.EmailVerified = true
		u.Status = StatusActive
		u.VerificationToken = ""
		u.VerificationExpiresAt = nil
	})
}

func (m *memUsers) SetVerificationToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	return m.mutate(userID, func(u *User) {
		u.VerificationToken = token
		u.VerificationExpiresAt = &expiresAt
	})
}

func (m *memUsers) SetResetToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	return m.mutate(userID, func(u *User) {
		u.ResetToken = token
		u.ResetExpiresAt = &expiresAt
	})
}

func (m *memUsers) SetStatus(_ context.Context, userID string, status UserStatus) error {
	return m.mutate(userID, func(u *User) { u.Status = status })
}

func (m *memUsers) SetLastLogin(_ context.Context, userID string, at time.Time) error {
	return m.mutate(userID, func(u *User) { u.LastLoginAt = &at })
}

func (m *memUsers) CompletePasswordReset(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.DeletedAt != nil {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetToken = ""
	u.ResetExpiresAt = nil
	u.UpdatedAt = time.Now().UTC()
	now := time.Now().UTC()
	for _, tok := range m.tokens {
		if tok.UserID == userID && !tok.Revoked {
			tok.Revoked = true
			tok.RevokedAt = &now
		}
	}
	return nil
}

func (m *memUsers) SoftDelete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	u.Roles = nil
	u.DeletedAt = &now
	u.UpdatedAt = now
	return nil
}

type memRoles MemoryStore

func (m *memRoles) Create(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if strings.EqualFold(r.Name, role.Name) {
			return fmt.Errorf("%w: role name taken", ErrConflict)
		}
	}
	cp := *role
	m.roles[role.ID] = &cp
	return nil
}

func (m *memRoles) Find(_ context.Context, id string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRoles) FindByName(_ context.Context, name string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRoles) List(_ context.Context) ([]*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Role, 0, len(m.roles))
	for _, r := range m.roles {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRoles) Update(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[role.ID]; !ok {
		return ErrNotFound
	}
	cp := *role
	cp.UpdatedAt = time.Now().UTC()
	m.roles[role.ID] = &cp
	return nil
}

func (m *memRoles) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return ErrNotFound
	}
	for _, u := range m.users {
		for _, r := range u.Roles {
			if r.ID == id {
				return fmt.Errorf("%w: role %s still assigned", ErrConflict, role.Name)
			}
		}
	}
	delete(m.roles, id)
	return nil
}

func (m *memRoles) Assign(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.DeletedAt != nil {
		return ErrNotFound
	}
	role, ok := m.roles[roleID]
	if !ok {
		return ErrNotFound
	}
	for _, r := range u.Roles {
		if r.ID == roleID {
			return nil
		}
	}
	u.Roles = append(u.Roles, *role)
	return nil
}

func (m *memRoles) Unassign(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.DeletedAt != nil {
		return ErrNotFound
	}
	for i, r := range u.Roles {
		if r.ID == roleID {
			u.Roles = append(u.Roles[:i], u.Roles[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memRoles) ReplaceForUser(_ context.Context, userID string, roleIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.DeletedAt != nil {
		return ErrNotFound
	}
	next := make([]Role, 0, len(roleIDs))
	for _, id := range roleIDs {
		role, ok := m.roles[id]
		if !ok {
			return ErrNotFound
		}
		next = append(next, *role)
	}
	u.Roles = next
	return nil
}

type memPerms MemoryStore

func (m *memPerms) Ensure(_ context.Context, perms []Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range perms {
		if _, ok := m.perms[p.Name]; !ok {
			cp := p
			m.perms[p.Name] = &cp
		}
	}
	return nil
}

func (m *memPerms) List(_ context.Context) ([]Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memPerms) SetForRole(_ context.Context, roleID string, permissionIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[roleID]
	if !ok {
		return ErrNotFound
	}
	var next []Permission
	for _, wantID := range permissionIDs {
		found := false
		for _, p := range m.perms {
			if p.ID == wantID {
				next = append(next, *p)
				found = true
				break
			}
		}
		if !found {
			return ErrNotFound
		}
	}
	role.Permissions = next
	// Role copies embedded in users pick up the change on next Find.
	for _, u := range m.users {
		for i := range u.Roles {
			if u.Roles[i].ID == roleID {
				u.Roles[i].Permissions = next
			}
		}
	}
	return nil
}

type memTokens MemoryStore

func (m *memTokens) Create(_ context.Context, tok *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tok
	m.tokens[tok.ID] = &cp
	return nil
}

func (m *memTokens) FindByToken(_ context.Context, token string) (*RefreshToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, tok := range m.tokens {
		if tok.Token == token {
			cp := *tok
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memTokens) MarkRevoked(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[id]
	if !ok {
		return nil
	}
	if !tok.Revoked {
		now := time.Now().UTC()
		tok.Revoked = true
		tok.RevokedAt = &now
	}
	return nil
}

func (m *memTokens) MarkRevokedByUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, tok := range m.tokens {
		if tok.UserID == userID && !tok.Revoked {
			tok.Revoked = true
			tok.RevokedAt = &now
		}
	}
	return nil
}

func (m *memTokens) Replace(_ context.Context, tok *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range m.tokens {
		if t.UserID == tok.UserID && !t.Revoked {
			t.Revoked = true
			t.RevokedAt = &now
		}
	}
	cp := *tok
	m.tokens[tok.ID] = &cp
	return nil
}

func (m *memTokens) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, tok := range m.tokens {
		if tok.ExpiresAt.Before(cutoff) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

type memAudit MemoryStore

func (m *memAudit) Append(_ context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.audits = append(m.audits, &cp)
	return nil
}

func (m *memAudit) ListByUser(_ context.Context, userID string, offset, limit int) ([]*AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*AuditEntry
	for _, e := range m.audits {
		if e.EntityID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}
