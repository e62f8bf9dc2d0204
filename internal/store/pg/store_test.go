package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"lovedev.org/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func userRows(id, email string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "password_hash", "first_name", "last_name", "status", "email_verified",
		"verification_token", "verification_expires_at", "reset_token", "reset_expires_at",
		"last_login_at", "created_at", "updated_at", "deleted_at",
	}).AddRow(id, email, "$2a$hash", "Ada", "Lovelace", "ACTIVE", true,
		"", nil, "", nil, nil, now, now, nil)
}

func TestUserFindByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("select id, email, password_hash").
		WithArgs("ada@example.com").
		WillReturnRows(userRows("u1", "ada@example.com"))
	mock.ExpectQuery("from roles r join user_roles ur").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "is_system", "created_at", "updated_at"}).
			AddRow("role_user", "ROLE_USER", "", true, time.Now(), time.Now()))
	mock.ExpectQuery("from permissions p join role_permissions rp").
		WithArgs("role_user").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "resource", "action", "created_at"}).
			AddRow("p1", "profile:read", "", "profile", "read", time.Now()))

	user, err := store.Users(ctx).FindByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.ID != "u1" || !user.HasRoleName("ROLE_USER") {
		t.Fatalf("unexpected user: %+v", user)
	}
	if !user.HasPermission("profile:read") {
		t.Fatal("permissions were not loaded")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserFindByEmailNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("select id, email, password_hash").
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Users(ctx).FindByEmail(ctx, "ghost@example.com")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserSetStatusMissingRow(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("update users set status").
		WithArgs("ghost", "BANNED").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Users(ctx).SetStatus(ctx, "ghost", auth.StatusBanned)
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCompletePasswordResetTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("update users set password_hash").
		WithArgs("u1", "$2a$new").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update refresh_tokens set revoked=true").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	if err := store.Users(ctx).CompletePasswordReset(ctx, "u1", "$2a$new"); err != nil {
		t.Fatalf("CompletePasswordReset: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCompletePasswordResetRollsBackOnMissingUser(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("update users set password_hash").
		WithArgs("ghost", "$2a$new").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Users(ctx).CompletePasswordReset(ctx, "ghost", "$2a$new")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSoftDeleteTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("delete from user_roles").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("update users set deleted_at=now").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Users(ctx).SoftDelete(ctx, "u1"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshTokenReplaceTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("update refresh_tokens set revoked=true").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into refresh_tokens").
		WithArgs(sqlmock.AnyArg(), "opaque-value", "u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tok := &auth.RefreshToken{Token: "opaque-value", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}
	if err := store.RefreshTokens(ctx).Replace(ctx, tok); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if tok.ID == "" {
		t.Fatal("Replace must assign an id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshTokenFindByToken(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	revokedAt := time.Now().Add(-time.Minute)
	mock.ExpectQuery("from refresh_tokens where token").
		WithArgs("opaque-value").
		WillReturnRows(sqlmock.NewRows([]string{"id", "token", "user_id", "expires_at", "revoked", "revoked_at", "created_at"}).
			AddRow("t1", "opaque-value", "u1", time.Now().Add(time.Hour), true, revokedAt, time.Now()))

	tok, err := store.RefreshTokens(ctx).FindByToken(ctx, "opaque-value")
	if err != nil {
		t.Fatalf("FindByToken: %v", err)
	}
	if !tok.Revoked || tok.RevokedAt == nil {
		t.Fatalf("revocation state lost in scan: %+v", tok)
	}

	mock.ExpectQuery("from refresh_tokens where token").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.RefreshTokens(ctx).FindByToken(ctx, "ghost"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoleDeleteRejectsAssignedRole(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("select count").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	err := store.Roles(ctx).Delete(ctx, "r1")
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRoleReplaceForUserTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("delete from user_roles").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into user_roles").
		WithArgs("u1", "r1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into user_roles").
		WithArgs("u1", "r2").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := store.Roles(ctx).ReplaceForUser(ctx, "u1", []string{"r1", "r2"}); err != nil {
		t.Fatalf("ReplaceForUser: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteExpiredBeforeReportsCount(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	cutoff := time.Now()
	mock.ExpectExec("delete from refresh_tokens where expires_at").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.RefreshTokens(ctx).DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteExpiredBefore: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 deleted rows, got %d", n)
	}
}
