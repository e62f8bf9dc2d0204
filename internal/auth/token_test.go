package auth

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewCodecRejectsShortSecret(t *testing.T) {
	if _, err := NewCodec(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewCodec("too-short"); err == nil {
		t.Fatal("expected error for short secret")
	}
	if _, err := NewCodec(testSecret); err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	codec, err := NewCodec(testSecret, WithIssuer("test-issuer"))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	token, err := codec.AccessToken("user-42", []string{"ADMIN", "user", "ROLE_ADMIN"})
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if !codec.Validate(token) {
		t.Fatal("expected token to validate")
	}
	if got := codec.Subject(token); got != "user-42" {
		t.Fatalf("unexpected subject: %s", got)
	}
	roles := codec.Roles(token)
	if len(roles) != 2 {
		t.Fatalf("expected prefix-normalized deduped roles, got %v", roles)
	}
	if roles[0] != "ROLE_ADMIN" || roles[1] != "ROLE_USER" {
		t.Fatalf("unexpected roles: %v", roles)
	}
	if codec.IsServiceToken(token) {
		t.Fatal("access token must not look like a service token")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	codec, err := NewCodec(testSecret, WithClock(func() time.Time { return clock() }))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	token, err := codec.AccessToken("user-1", nil)
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if !codec.Validate(token) {
		t.Fatal("fresh token should validate")
	}
	clock = func() time.Time { return now.Add(16 * time.Minute) }
	if codec.Validate(token) {
		t.Fatal("expired token should not validate")
	}
	if got := codec.Subject(token); got != "" {
		t.Fatalf("expired token must not yield a subject, got %q", got)
	}
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	codec, err := NewCodec(testSecret)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	token, err := codec.AccessToken("user-1", []string{"USER"})
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected compact JWT, got %d segments", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if codec.Validate(tampered) {
		t.Fatal("tampered token should not validate")
	}
	if codec.Validate("") || codec.Validate("garbage") {
		t.Fatal("malformed tokens should not validate")
	}
}

func TestValidateRejectsForeignSecretAndIssuer(t *testing.T) {
	codec, err := NewCodec(testSecret, WithIssuer("lovedev-api"))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	other, err := NewCodec("ffffffffffffffffffffffffffffffff", WithIssuer("lovedev-api"))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	foreign, err := other.AccessToken("user-1", nil)
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if codec.Validate(foreign) {
		t.Fatal("token signed with another secret should not validate")
	}

	wrongIssuer, err := NewCodec(testSecret, WithIssuer("someone-else"))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	token, err := wrongIssuer.AccessToken("user-1", nil)
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if codec.Validate(token) {
		t.Fatal("token with wrong issuer should not validate")
	}
}

func TestServiceToken(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	codec, err := NewCodec(testSecret, WithClock(func() time.Time { return clock() }))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	token, err := codec.ServiceToken("billing-service")
	if err != nil {
		t.Fatalf("ServiceToken: %v", err)
	}
	if !codec.IsServiceToken(token) {
		t.Fatal("expected service token type claim")
	}
	if got := codec.Subject(token); got != "billing-service" {
		t.Fatalf("unexpected subject: %s", got)
	}
	clock = func() time.Time { return now.Add(6 * time.Minute) }
	if codec.Validate(token) {
		t.Fatal("service token must expire after five minutes")
	}
}

func TestSigningIsDeterministic(t *testing.T) {
	now := time.Now()
	mk := func() *Codec {
		c, err := NewCodec(testSecret, WithClock(func() time.Time { return now }))
		if err != nil {
			t.Fatalf("NewCodec: %v", err)
		}
		return c
	}
	a, err := mk().AccessToken("user-1", []string{"USER"})
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	b, err := mk().AccessToken("user-1", []string{"USER"})
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if a != b {
		t.Fatal("same secret, claims and clock must produce the same token")
	}
}
