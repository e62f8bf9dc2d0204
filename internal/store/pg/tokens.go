package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"lovedev.org/internal/auth"
	"lovedev.org/internal/ids"
)

type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, tok *auth.RefreshToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, token, user_id, expires_at) values($1,$2,$3,$4)`,
		tok.ID, tok.Token, tok.UserID, tok.ExpiresAt)
	return err
}

func (s *refreshTokenStore) FindByToken(ctx context.Context, token string) (*auth.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, token, user_id, expires_at, revoked, revoked_at, created_at
		 from refresh_tokens where token=$1`, token)
	var (
		tok       auth.RefreshToken
		revokedAt sql.NullTime
	)
	err := row.Scan(&tok.ID, &tok.Token, &tok.UserID, &tok.ExpiresAt, &tok.Revoked, &revokedAt, &tok.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	if revokedAt.Valid {
		tok.RevokedAt = &revokedAt.Time
	}
	return &tok, nil
}

func (s *refreshTokenStore) MarkRevoked(ctx context.Context, id string) error {
	// Idempotent: revoking an absent or already revoked token is a no-op.
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true, revoked_at=now() where id=$1 and revoked=false`, id)
	return err
}

func (s *refreshTokenStore) MarkRevokedByUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true, revoked_at=now() where user_id=$1 and revoked=false`,
		userID)
	return err
}

// Replace revokes the user's live tokens and inserts the new one in a single
// transaction, so a concurrent verify never sees two active sessions.
func (s *refreshTokenStore) Replace(ctx context.Context, tok *auth.RefreshToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`update refresh_tokens set revoked=true, revoked_at=now() where user_id=$1 and revoked=false`,
		tok.UserID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`insert into refresh_tokens(id, token, user_id, expires_at) values($1,$2,$3,$4)`,
		tok.ID, tok.Token, tok.UserID, tok.ExpiresAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *refreshTokenStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_tokens where expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
