package auth

// Identity is the authenticated caller attached to a request context by the
// HTTP layer after token verification.
type Identity interface {
	// Subject is the user id for local users, the service name for peers.
	Subject() string
	// RoleNames returns the ROLE_-prefixed role names carried by the caller.
	RoleNames() []string
	// IsService reports whether the caller authenticated with a service token.
	IsService() bool
}

// LocalUser is an identity backed by a user record.
type LocalUser struct {
	ID    string
	Roles []string
}

func (u LocalUser) Subject() string     { return u.ID }
func (u LocalUser) RoleNames() []string { return u.Roles }
func (u LocalUser) IsService() bool     { return false }

// HasRole reports whether the user carries the given role, prefix-normalized.
func (u LocalUser) HasRole(name string) bool {
	name = WithRolePrefix(name)
	for _, r := range u.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// ServicePrincipal is an identity backed by a service token. Service callers
// bypass role checks.
type ServicePrincipal struct {
	Name string
}

func (s ServicePrincipal) Subject() string     { return s.Name }
func (s ServicePrincipal) RoleNames() []string { return nil }
func (s ServicePrincipal) IsService() bool     { return true }
