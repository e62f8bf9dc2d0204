package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestSessions(t *testing.T) (*SessionManager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	codec, err := NewCodec(testSecret)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return NewSessionManager(store, codec), store
}

func TestSessionCreateReplacesPriorSessions(t *testing.T) {
	sessions, _ := newTestSessions(t)
	ctx := context.Background()

	first, err := sessions.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := sessions.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	other, err := sessions.Create(ctx, "user-2")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := sessions.Verify(ctx, first.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("first session must be revoked, got %v", err)
	}
	if _, err := sessions.Verify(ctx, second.Token); err != nil {
		t.Fatalf("second session must verify: %v", err)
	}
	if _, err := sessions.Verify(ctx, other.Token); err != nil {
		t.Fatalf("other user's session must be untouched: %v", err)
	}
}

func TestSessionVerifyRejectsUnknownAndExpired(t *testing.T) {
	sessions, store := newTestSessions(t)
	ctx := context.Background()

	if _, err := sessions.Verify(ctx, "never-minted"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	tok, err := sessions.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	store.mu.Lock()
	store.tokens[tok.ID].ExpiresAt = time.Now().Add(-time.Minute)
	store.mu.Unlock()

	if _, err := sessions.Verify(ctx, tok.Token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestSessionCleanupExpired(t *testing.T) {
	sessions, store := newTestSessions(t)
	ctx := context.Background()

	stale, err := sessions.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	live, err := sessions.Create(ctx, "user-2")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	store.mu.Lock()
	store.tokens[stale.ID].ExpiresAt = time.Now().Add(-time.Hour)
	store.mu.Unlock()

	n, err := sessions.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one swept token, got %d", n)
	}
	if _, err := sessions.Verify(ctx, live.Token); err != nil {
		t.Fatalf("live session must survive the sweep: %v", err)
	}
}
