package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lovedev.org/internal/ids"
	"lovedev.org/internal/obs"
)

// SessionManager owns refresh token lifecycle. Token values are signed JWTs
// but validity is decided by the store row: a signed token that has been
// revoked or swept is dead.
type SessionManager struct {
	store Store
	codec *Codec
	now   func() time.Time
}

// NewSessionManager wires a session manager over the given store and codec.
func NewSessionManager(store Store, codec *Codec) *SessionManager {
	return &SessionManager{store: store, codec: codec, now: time.Now}
}

// Create mints a refresh token for the user, revoking any previously active
// tokens so that at most one session survives.
func (m *SessionManager) Create(ctx context.Context, userID string) (*RefreshToken, error) {
	value, err := m.codec.RefreshTokenValue(userID)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	tok := &RefreshToken{
		ID:        ids.New(),
		Token:     value,
		UserID:    userID,
		ExpiresAt: now.Add(m.codec.RefreshTTL()),
		CreatedAt: now,
	}
	if err := m.store.RefreshTokens(ctx).Replace(ctx, tok); err != nil {
		return nil, fmt.Errorf("replace refresh token: %w", err)
	}
	return tok, nil
}

// Verify resolves a presented refresh token value to its live store row.
// Revoked rows and expired rows map to distinct sentinel errors; an unknown
// value is ErrTokenInvalid.
func (m *SessionManager) Verify(ctx context.Context, value string) (*RefreshToken, error) {
	tok, err := m.store.RefreshTokens(ctx).FindByToken(ctx, value)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	if tok.Revoked {
		return nil, ErrTokenRevoked
	}
	if !m.now().UTC().Before(tok.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	return tok, nil
}

// Revoke marks a single token dead.
func (m *SessionManager) Revoke(ctx context.Context, id string) error {
	return m.store.RefreshTokens(ctx).MarkRevoked(ctx, id)
}

// RevokeAll marks every token for the user dead.
func (m *SessionManager) RevokeAll(ctx context.Context, userID string) error {
	return m.store.RefreshTokens(ctx).MarkRevokedByUser(ctx, userID)
}

// CleanupExpired deletes rows past their expiry and returns how many went.
func (m *SessionManager) CleanupExpired(ctx context.Context) (int64, error) {
	return m.store.RefreshTokens(ctx).DeleteExpiredBefore(ctx, m.now().UTC())
}

// RunSweeper deletes expired rows on the given interval until the context is
// canceled. Run it in its own goroutine.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.CleanupExpired(ctx)
			if err != nil {
				obs.Log(map[string]any{"level": "error", "msg": "refresh token sweep failed", "error": err.Error()})
				continue
			}
			if n > 0 {
				obs.Log(map[string]any{"level": "info", "msg": "refresh tokens swept", "deleted": n})
			}
		}
	}
}
