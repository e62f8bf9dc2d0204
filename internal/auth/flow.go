package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"lovedev.org/internal/events"
	"lovedev.org/internal/ids"
	"lovedev.org/internal/obs"
)

const (
	verificationTokenTTL = 24 * time.Hour
	resetTokenTTL        = time.Hour

	// resendThrottle rejects a new verification email when the previous one
	// went out less than this long ago.
	resendThrottle = 5 * time.Minute

	minPasswordLen = 8
)

// Service implements registration, email verification, login and password
// recovery on top of the stores, the token codec and the session manager.
type Service struct {
	store     Store
	codec     *Codec
	sessions  *SessionManager
	publisher events.Publisher
	now       func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the authentication service. A nil publisher falls back to
// log-only delivery.
func NewService(store Store, codec *Codec, sessions *SessionManager, publisher events.Publisher, opts ...ServiceOption) *Service {
	if publisher == nil {
		publisher = events.LogPublisher{}
	}
	svc := &Service{
		store:     store,
		codec:     codec,
		sessions:  sessions,
		publisher: publisher,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Sessions exposes the session manager for the sweeper in cmd/api.
func (s *Service) Sessions() *SessionManager { return s.sessions }

// Codec exposes the token codec for the HTTP authentication filter.
func (s *Service) Codec() *Codec { return s.codec }

// TokenPair is what a successful login or refresh returns.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// RegisterInput carries the registration request fields.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

func (in *RegisterInput) normalize() error {
	// Email is stored and matched exactly as typed; only surrounding
	// whitespace is stripped.
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("%w: email is malformed", ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	return nil
}

// Register creates an unverified account and sends the verification email.
// No tokens are issued here; registration alone does not authenticate.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	users := s.store.Users(ctx)
	if existing, err := users.FindByEmail(ctx, in.Email); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	// The default role is seeded by migrations. Its absence is a deployment
	// defect, surfaced as a server error rather than papered over. The store's
	// not-found sentinel is deliberately not wrapped here.
	defaultRole, err := s.store.Roles(ctx).FindByName(ctx, DefaultRoleName)
	if err != nil {
		return nil, fmt.Errorf("default role %s missing: %v", DefaultRoleName, err)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	verifyExpiry := now.Add(verificationTokenTTL)
	user := &User{
		ID:                    ids.New(),
		Email:                 in.Email,
		PasswordHash:          hash,
		FirstName:             in.FirstName,
		LastName:              in.LastName,
		Status:                StatusInactive,
		EmailVerified:         false,
		VerificationToken:     uuid.NewString(),
		VerificationExpiresAt: &verifyExpiry,
		CreatedAt:             now,
		UpdatedAt:             now,
		Roles:                 []Role{*defaultRole},
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.publish(ctx, events.TypeUserVerifyEmail, user.ID, map[string]any{
		"email":             user.Email,
		"firstName":         user.FirstName,
		"verificationToken": user.VerificationToken,
	})
	s.appendAudit(ctx, &AuditEntry{
		ActorUserID: user.ID,
		Action:      AuditRegister,
		EntityType:  "user",
		EntityID:    user.ID,
		NewValues:   map[string]any{"email": user.Email, "status": string(user.Status)},
	})
	return user, nil
}

// VerifyEmail consumes a verification token, activating the account.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	users := s.store.Users(ctx)
	user, err := users.FindByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("find by verification token: %w", err)
	}
	if user.VerificationExpiresAt == nil || !s.now().UTC().Before(*user.VerificationExpiresAt) {
		return nil, ErrTokenExpired
	}
	if user.EmailVerified {
		return nil, ErrAlreadyVerified
	}
	if err := users.SetVerified(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("mark verified: %w", err)
	}
	user.EmailVerified = true
	user.Status = StatusActive
	user.VerificationToken = ""
	user.VerificationExpiresAt = nil

	s.publish(ctx, events.TypeUserWelcomeEmail, user.ID, map[string]any{
		"email":     user.Email,
		"firstName": user.FirstName,
	})
	s.appendAudit(ctx, &AuditEntry{
		ActorUserID: user.ID,
		Action:      AuditVerifyEmail,
		EntityType:  "user",
		EntityID:    user.ID,
		NewValues:   map[string]any{"email_verified": true, "status": string(StatusActive)},
	})
	return user, nil
}

// ResendVerificationEmail reissues the verification token. Throttled so a
// client cannot hammer the email collaborator.
func (s *Service) ResendVerificationEmail(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	users := s.store.Users(ctx)
	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return ErrAlreadyVerified
	}
	now := s.now().UTC()
	if user.VerificationExpiresAt != nil {
		// The expiry anchors when the last email went out.
		issuedAt := user.VerificationExpiresAt.Add(-verificationTokenTTL)
		if issuedAt.After(now.Add(-resendThrottle)) {
			return ErrTooSoon
		}
	}
	token := uuid.NewString()
	if err := users.SetVerificationToken(ctx, user.ID, token, now.Add(verificationTokenTTL)); err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	s.publish(ctx, events.TypeUserVerifyEmail, user.ID, map[string]any{
		"email":             user.Email,
		"firstName":         user.FirstName,
		"verificationToken": token,
	})
	return nil
}

// Login authenticates credentials and issues a token pair. Unknown email and
// wrong password surface identically.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, *User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		obs.CountLogin("failure")
		return nil, nil, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.CountLogin("failure")
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("find user: %w", err)
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		obs.CountLogin("failure")
		return nil, nil, ErrInvalidCredentials
	}
	if !user.EmailVerified {
		obs.CountLogin("failure")
		return nil, nil, ErrEmailNotVerified
	}
	switch user.Status {
	case StatusBanned:
		obs.CountLogin("failure")
		return nil, nil, ErrAccountBanned
	case StatusInactive:
		obs.CountLogin("failure")
		return nil, nil, ErrAccountInactive
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	now := s.now().UTC()
	if err := s.store.Users(ctx).SetLastLogin(ctx, user.ID, now); err != nil {
		obs.Log(map[string]any{"level": "warn", "msg": "record last login failed", "user_id": user.ID, "error": err.Error()})
	}
	user.LastLoginAt = &now

	obs.CountLogin("success")
	s.appendAudit(ctx, &AuditEntry{
		ActorUserID: user.ID,
		Action:      AuditLogin,
		EntityType:  "user",
		EntityID:    user.ID,
	})
	return pair, user, nil
}

// Refresh mints a fresh access token from the refresh token's owning user.
// Roles are re-read so role changes propagate; the refresh token itself is
// returned unchanged, not rotated.
func (s *Service) Refresh(ctx context.Context, refreshValue string) (*TokenPair, *User, error) {
	record, err := s.sessions.Verify(ctx, refreshValue)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.store.Users(ctx).Find(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrTokenInvalid
		}
		return nil, nil, fmt.Errorf("find user: %w", err)
	}
	if user.Status == StatusBanned {
		return nil, nil, ErrAccountBanned
	}
	access, err := s.codec.AccessToken(user.ID, user.RoleNames())
	if err != nil {
		return nil, nil, err
	}
	obs.CountTokenIssued("access")
	now := s.now().UTC()
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     record.Token,
		TokenType:        "Bearer",
		AccessExpiresAt:  now.Add(s.codec.AccessTTL()),
		RefreshExpiresAt: record.ExpiresAt,
	}, user, nil
}

// Logout revokes the presented refresh token. Always succeeds from the
// caller's perspective, even for unknown or already dead tokens.
func (s *Service) Logout(ctx context.Context, refreshValue string) error {
	record, err := s.sessions.Verify(ctx, refreshValue)
	if err != nil {
		return nil
	}
	if err := s.sessions.Revoke(ctx, record.ID); err != nil {
		obs.Log(map[string]any{"level": "warn", "msg": "logout revoke failed", "error": err.Error()})
		return nil
	}
	s.appendAudit(ctx, &AuditEntry{
		ActorUserID: record.UserID,
		Action:      AuditLogout,
		EntityType:  "user",
		EntityID:    record.UserID,
	})
	return nil
}

// ForgotPassword issues a reset token and emits the reset email event.
// Unknown emails surface as NotFound.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	users := s.store.Users(ctx)
	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	token := uuid.NewString()
	if err := users.SetResetToken(ctx, user.ID, token, s.now().UTC().Add(resetTokenTTL)); err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	s.publish(ctx, events.TypeUserResetPassword, user.ID, map[string]any{
		"email":     user.Email,
		"firstName": user.FirstName,
		"token":     token,
	})
	return nil
}

// ResetPassword consumes a reset token, stores the new password and kills
// every outstanding session atomically.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenInvalid
	}
	if len(newPassword) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	users := s.store.Users(ctx)
	user, err := users.FindByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("find by reset token: %w", err)
	}
	if user.ResetExpiresAt == nil || !s.now().UTC().Before(*user.ResetExpiresAt) {
		return ErrTokenExpired
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := users.CompletePasswordReset(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("complete password reset: %w", err)
	}
	s.appendAudit(ctx, &AuditEntry{
		ActorUserID: user.ID,
		Action:      AuditResetPassword,
		EntityType:  "user",
		EntityID:    user.ID,
	})
	return nil
}

// ChangePassword verifies the current password before storing the new one.
// All sessions are revoked so stolen refresh tokens die with the old secret.
func (s *Service) ChangePassword(ctx context.Context, userID, current, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.Users(ctx).CompletePasswordReset(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	s.appendAudit(ctx, &AuditEntry{
		ActorUserID: user.ID,
		Action:      AuditUpdate,
		EntityType:  "user",
		EntityID:    user.ID,
		Description: "password changed",
	})
	return nil
}

func (s *Service) issuePair(ctx context.Context, user *User) (*TokenPair, error) {
	access, err := s.codec.AccessToken(user.ID, user.RoleNames())
	if err != nil {
		return nil, err
	}
	refresh, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	obs.CountTokenIssued("access")
	obs.CountTokenIssued("refresh")
	now := s.now().UTC()
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh.Token,
		TokenType:        "Bearer",
		AccessExpiresAt:  now.Add(s.codec.AccessTTL()),
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// publish delivers an event, logging and swallowing failures. Email delivery
// never aborts the primary operation.
func (s *Service) publish(ctx context.Context, eventType, userID string, data map[string]any) {
	meta := RequestMetaFrom(ctx)
	ev := events.New(eventType, userID, meta.RequestID, data)
	if err := s.publisher.Publish(ctx, ev); err != nil {
		obs.Log(map[string]any{
			"level":    "error",
			"msg":      "event publish failed",
			"type":     eventType,
			"event_id": ev.EventID,
			"user_id":  userID,
			"error":    err.Error(),
		})
	}
}

// appendAudit records an audit entry, logging and swallowing failures. Audit
// must never fail the primary operation.
func (s *Service) appendAudit(ctx context.Context, entry *AuditEntry) {
	meta := RequestMetaFrom(ctx)
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = s.now().UTC()
	}
	if entry.IPAddress == "" {
		entry.IPAddress = meta.IPAddress
	}
	if entry.UserAgent == "" {
		entry.UserAgent = meta.UserAgent
	}
	if err := s.store.Audit(ctx).Append(ctx, entry); err != nil {
		obs.Log(map[string]any{
			"level":  "error",
			"msg":    "audit append failed",
			"action": entry.Action,
			"entity": entry.EntityID,
			"error":  err.Error(),
		})
	}
}
