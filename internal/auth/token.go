package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultIssuer is stamped into every token unless overridden.
	DefaultIssuer = "lovedev-api"

	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	serviceTokenTTL   = 5 * time.Minute

	// minSecretLen enforces a 256-bit HMAC key.
	minSecretLen = 32

	serviceTokenType = "SERVICE"
)

// Codec mints and verifies HS256-signed bearer tokens. It is stateless and
// safe for concurrent use.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		if s := strings.TrimSpace(issuer); s != "" {
			c.issuer = s
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		if ttl > 0 {
			c.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		if ttl > 0 {
			c.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec. A missing or short signing secret is a
// startup error, not a runtime condition.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is not configured")
	}
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("auth: signing secret must be at least %d bytes", minSecretLen)
	}
	c := &Codec{
		secret:     []byte(secret),
		issuer:     DefaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// tokenClaims carries the custom claims alongside the registered set. Roles
// travel as a single comma-joined string with ROLE_ prefixes applied.
type tokenClaims struct {
	Roles string `json:"roles,omitempty"`
	Type  string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// AccessToken signs a short-lived token carrying the user id and role names.
func (c *Codec) AccessToken(userID string, roles []string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("auth: userID is required")
	}
	return c.sign(tokenClaims{
		Roles:            joinRoles(roles),
		RegisteredClaims: c.registered(userID, c.accessTTL),
	})
}

// RefreshTokenValue signs the opaque value persisted by the session store.
// It is never validated independently of that store.
func (c *Codec) RefreshTokenValue(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("auth: userID is required")
	}
	return c.sign(tokenClaims{
		RegisteredClaims: c.registered(userID, c.refreshTTL),
	})
}

// ServiceToken signs a five-minute token for service-to-service calls.
func (c *Codec) ServiceToken(serviceName string) (string, error) {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		return "", errors.New("auth: service name is required")
	}
	return c.sign(tokenClaims{
		Type:             serviceTokenType,
		RegisteredClaims: c.registered(serviceName, serviceTokenTTL),
	})
}

func (c *Codec) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := c.now().UTC()
	return jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (c *Codec) sign(claims tokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate checks signature and expiry. Malformed, expired and tampered
// tokens are indistinguishable to the caller: all return false.
func (c *Codec) Validate(token string) bool {
	_, err := c.parse(token)
	return err == nil
}

// Subject returns the token subject. Only defined after a successful
// Validate; returns "" for anything unparseable.
func (c *Codec) Subject(token string) string {
	claims, err := c.parse(token)
	if err != nil {
		return ""
	}
	return claims.Subject
}

// Roles returns the role names carried by the token. Only defined after a
// successful Validate.
func (c *Codec) Roles(token string) []string {
	claims, err := c.parse(token)
	if err != nil {
		return nil
	}
	return splitRoles(claims.Roles)
}

// IsServiceToken reports whether the token carries the SERVICE type claim.
func (c *Codec) IsServiceToken(token string) bool {
	claims, err := c.parse(token)
	if err != nil {
		return false
	}
	return claims.Type == serviceTokenType
}

func (c *Codec) parse(token string) (*tokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return c.secret, nil
	},
		jwt.WithTimeFunc(c.now),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func joinRoles(roles []string) string {
	seen := make(map[string]struct{}, len(roles))
	var normalized []string
	for _, role := range roles {
		role = WithRolePrefix(role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return strings.Join(normalized, ",")
}

func splitRoles(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
