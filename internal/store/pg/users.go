package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"lovedev.org/internal/auth"
	"lovedev.org/internal/ids"
)

type userStore struct{ db *sql.DB }

const userColumns = `id, email, password_hash, first_name, last_name, status, email_verified,
	coalesce(verification_token,''), verification_expires_at,
	coalesce(reset_token,''), reset_expires_at,
	last_login_at, created_at, updated_at, deleted_at`

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`insert into users(id, email, password_hash, first_name, last_name, status, email_verified,
		   verification_token, verification_expires_at)
		 values($1,$2,$3,$4,$5,$6,$7,nullif($8,''),$9)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, string(u.Status),
		u.EmailVerified, u.VerificationToken, u.VerificationExpiresAt,
	)
	if err != nil {
		return err
	}
	for _, role := range u.Roles {
		if _, err := tx.ExecContext(ctx,
			`insert into user_roles(user_id, role_id) values($1,$2) on conflict do nothing`,
			u.ID, role.ID,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return s.findWhere(ctx, `id=$1 and deleted_at is null`, id)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findWhere(ctx, `email=$1 and deleted_at is null`, email)
}

func (s *userStore) FindByVerificationToken(ctx context.Context, token string) (*auth.User, error) {
	return s.findWhere(ctx, `verification_token=$1 and deleted_at is null`, token)
}

func (s *userStore) FindByResetToken(ctx context.Context, token string) (*auth.User, error) {
	return s.findWhere(ctx, `reset_token=$1 and deleted_at is null`, token)
}

func (s *userStore) findWhere(ctx context.Context, where string, arg any) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where `+where, arg)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadRoles(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u             auth.User
		status        string
		verifyExpires sql.NullTime
		resetExpires  sql.NullTime
		lastLogin     sql.NullTime
		deletedAt     sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &status,
		&u.EmailVerified, &u.VerificationToken, &verifyExpires,
		&u.ResetToken, &resetExpires, &lastLogin, &u.CreatedAt, &u.UpdatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	u.Status = auth.UserStatus(status)
	if verifyExpires.Valid {
		u.VerificationExpiresAt = &verifyExpires.Time
	}
	if resetExpires.Valid {
		u.ResetExpiresAt = &resetExpires.Time
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	if deletedAt.Valid {
		u.DeletedAt = &deletedAt.Time
	}
	return &u, nil
}

func (s *userStore) loadRoles(ctx context.Context, u *auth.User) error {
	rows, err := s.db.QueryContext(ctx,
		`select r.id, r.name, r.description, r.is_system, r.created_at, r.updated_at
		 from roles r join user_roles ur on ur.role_id=r.id
		 where ur.user_id=$1 order by r.name`, u.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.SystemRole,
			&role.CreatedAt, &role.UpdatedAt); err != nil {
			return err
		}
		u.Roles = append(u.Roles, role)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range u.Roles {
		perms, err := permissionsForRole(ctx, s.db, u.Roles[i].ID)
		if err != nil {
			return err
		}
		u.Roles[i].Permissions = perms
	}
	return nil
}

func (s *userStore) List(ctx context.Context, offset, limit int) ([]*auth.User, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from users where deleted_at is null`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users where deleted_at is null order by created_at limit $1 offset $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, u := range users {
		if err := s.loadRoles(ctx, u); err != nil {
			return nil, 0, err
		}
	}
	return users, total, nil
}

func (s *userStore) Update(ctx context.Context, u *auth.User) error {
	res, err := s.db.ExecContext(ctx,
		`update users set first_name=$2, last_name=$3, updated_at=now()
		 where id=$1 and deleted_at is null`,
		u.ID, u.FirstName, u.LastName)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1 and deleted_at is null`,
		userID, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) SetVerified(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set email_verified=true, status=$2,
		   verification_token=null, verification_expires_at=null, updated_at=now()
		 where id=$1 and deleted_at is null`,
		userID, string(auth.StatusActive))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) SetVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set verification_token=$2, verification_expires_at=$3, updated_at=now()
		 where id=$1 and deleted_at is null`,
		userID, token, expiresAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set reset_token=$2, reset_expires_at=$3, updated_at=now()
		 where id=$1 and deleted_at is null`,
		userID, token, expiresAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) SetStatus(ctx context.Context, userID string, status auth.UserStatus) error {
	res, err := s.db.ExecContext(ctx,
		`update users set status=$2, updated_at=now() where id=$1 and deleted_at is null`,
		userID, string(status))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) SetLastLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set last_login_at=$2, updated_at=now() where id=$1 and deleted_at is null`,
		userID, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// CompletePasswordReset swaps the password, clears the reset token and kills
// every refresh token in one transaction. A reader never sees the new
// password with old sessions still live.
func (s *userStore) CompletePasswordReset(ctx context.Context, userID, passwordHash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`update users set password_hash=$2, reset_token=null, reset_expires_at=null, updated_at=now()
		 where id=$1 and deleted_at is null`,
		userID, passwordHash)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`update refresh_tokens set revoked=true, revoked_at=now() where user_id=$1 and revoked=false`,
		userID); err != nil {
		return err
	}
	return tx.Commit()
}

// SoftDelete clears role assignments and stamps deleted_at together. The row
// stays for the audit trail.
func (s *userStore) SoftDelete(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id=$1`, userID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`update users set deleted_at=now(), updated_at=now() where id=$1 and deleted_at is null`,
		userID)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
