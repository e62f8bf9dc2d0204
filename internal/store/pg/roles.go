package pg

import (
	"context"
	"database/sql"
	"errors"

	"lovedev.org/internal/auth"
	"lovedev.org/internal/ids"
)

type roleStore struct{ db *sql.DB }

const roleColumns = `id, name, description, is_system, created_at, updated_at`

func (s *roleStore) Create(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into roles(id, name, description, is_system) values($1,$2,$3,$4)`,
		role.ID, role.Name, role.Description, role.SystemRole)
	return err
}

func (s *roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	return s.findWhere(ctx, `id=$1`, id)
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	return s.findWhere(ctx, `name=$1`, name)
}

func (s *roleStore) findWhere(ctx context.Context, where string, arg any) (*auth.Role, error) {
	row := s.db.QueryRowContext(ctx, `select `+roleColumns+` from roles where `+where, arg)
	var role auth.Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.SystemRole,
		&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	perms, err := permissionsForRole(ctx, s.db, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}

func (s *roleStore) List(ctx context.Context) ([]*auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `select `+roleColumns+` from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.SystemRole,
			&role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, &role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, role := range roles {
		perms, err := permissionsForRole(ctx, s.db, role.ID)
		if err != nil {
			return nil, err
		}
		role.Permissions = perms
	}
	return roles, nil
}

func (s *roleStore) Update(ctx context.Context, role *auth.Role) error {
	res, err := s.db.ExecContext(ctx,
		`update roles set description=$2, updated_at=now() where id=$1`,
		role.ID, role.Description)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	var assigned int
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from user_roles where role_id=$1`, id).Scan(&assigned); err != nil {
		return err
	}
	if assigned > 0 {
		return auth.ErrConflict
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id=$1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from roles where id=$1`, id)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *roleStore) Assign(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_roles(user_id, role_id) values($1,$2) on conflict do nothing`,
		userID, roleID)
	return err
}

func (s *roleStore) Unassign(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from user_roles where user_id=$1 and role_id=$2`, userID, roleID)
	return err
}

// ReplaceForUser swaps the assignment set in one transaction so role checks
// never observe a user with zero roles mid-change.
func (s *roleStore) ReplaceForUser(ctx context.Context, userID string, roleIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id=$1`, userID); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx,
			`insert into user_roles(user_id, role_id) values($1,$2)`, userID, roleID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type permissionStore struct{ db *sql.DB }

func (s *permissionStore) Ensure(ctx context.Context, perms []auth.Permission) error {
	for _, p := range perms {
		if p.ID == "" {
			p.ID = ids.New()
		}
		_, err := s.db.ExecContext(ctx,
			`insert into permissions(id, name, description, resource, action)
			 values($1,$2,$3,$4,$5) on conflict (name) do nothing`,
			p.ID, p.Name, p.Description, p.Resource, p.Action)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *permissionStore) List(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, description, resource, action, created_at from permissions order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Resource, &p.Action, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *permissionStore) SetForRole(ctx context.Context, roleID string, permissionIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id=$1`, roleID); err != nil {
		return err
	}
	for _, id := range permissionIDs {
		if _, err := tx.ExecContext(ctx,
			`insert into role_permissions(role_id, permission_id) values($1,$2)`, roleID, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func permissionsForRole(ctx context.Context, db *sql.DB, roleID string) ([]auth.Permission, error) {
	rows, err := db.QueryContext(ctx,
		`select p.id, p.name, p.description, p.resource, p.action, p.created_at
		 from permissions p join role_permissions rp on rp.permission_id=p.id
		 where rp.role_id=$1 order by p.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Resource, &p.Action, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
