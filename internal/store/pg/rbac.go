package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"screener.dev/internal/auth"
	"screener.dev/internal/ids"
)

const roleColumns = `id, name, description, created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (auth.Role, error) {
	var (
		r    auth.Role
		desc sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Name, &desc, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return auth.Role{}, err
	}
	r.Description = desc.String
	return r, nil
}

func (s *Store) CreateRole(ctx context.Context, r auth.Role) (auth.Role, error) {
	if r.ID == "" {
		r.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description)
		values ($1, $2, $3)
		returning `+roleColumns+`
	`, r.ID, r.Name, nullIfEmpty(r.Description))
	created, err := scanRole(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.Role{}, fmt.Errorf("%w: role name already exists", auth.ErrConflict)
		}
		return auth.Role{}, err
	}
	return created, nil
}

func (s *Store) GetRole(ctx context.Context, id string) (auth.Role, error) {
	row := s.db.QueryRowContext(ctx, `select `+roleColumns+` from roles where id = $1`, id)
	r, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Role{}, auth.ErrNotFound
	}
	return r, err
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (auth.Role, error) {
	row := s.db.QueryRowContext(ctx, `select `+roleColumns+` from roles where upper(name) = upper($1)`, name)
	r, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Role{}, auth.ErrNotFound
	}
	return r, err
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `select `+roleColumns+` from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func (s *Store) UpdateRole(ctx context.Context, id string, upd auth.RoleUpdate) (auth.Role, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		sets = append(sets, fmt.Sprintf("description = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Description))
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update roles set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return auth.Role{}, fmt.Errorf("%w: role name already exists", auth.ErrConflict)
			}
			return auth.Role{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return auth.Role{}, err
		}
		if aff == 0 {
			return auth.Role{}, auth.ErrNotFound
		}
	}
	return s.GetRole(ctx, id)
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []auth.Permission) error {
	for _, p := range perms {
		if p.ID == "" {
			p.ID = ids.New()
		}
		_, err := s.db.ExecContext(ctx, `
			insert into permissions (id, key, description)
			values ($1, $2, $3)
			on conflict (key) do nothing
		`, p.ID, p.Key, nullIfEmpty(p.Description))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `select id, key, description, created_at from permissions order by key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var (
			p    auth.Permission
			desc sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Key, &desc, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Description = desc.String
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// SetRolePermissions replaces the role's permission set inside a transaction
// so concurrent readers never observe a partially emptied role.
func (s *Store) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1`, roleID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.ErrNotFound
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, permID := range permissionIDs {
		res, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			select $1, id from permissions where id = $2
		`, roleID, permID)
		if err != nil {
			return err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if aff == 0 {
			return fmt.Errorf("%w: permission %s not found", auth.ErrNotFound, permID)
		}
	}
	return tx.Commit()
}

// AssignRoleToUser is an idempotent upsert: an existing pair is returned
// unchanged, not an error.
func (s *Store) AssignRoleToUser(ctx context.Context, a auth.UserRoleAssignment) (auth.UserRoleAssignment, error) {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id, assigned_by)
		values ($1, $2, $3)
		on conflict (user_id, role_id) do nothing
	`, a.UserID, a.RoleID, nullIfEmpty(a.AssignedBy))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.UserRoleAssignment{}, auth.ErrNotFound
		}
		return auth.UserRoleAssignment{}, err
	}

	var assignedBy sql.NullString
	row := s.db.QueryRowContext(ctx, `
		select user_id, role_id, assigned_by, assigned_at
		from user_roles
		where user_id = $1 and role_id = $2
	`, a.UserID, a.RoleID)
	var out auth.UserRoleAssignment
	if err := row.Scan(&out.UserID, &out.RoleID, &assignedBy, &out.AssignedAt); err != nil {
		return auth.UserRoleAssignment{}, err
	}
	out.AssignedBy = assignedBy.String
	return out, nil
}
