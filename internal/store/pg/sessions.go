package pg

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"screener.dev/internal/auth"
)

func (s *Store) InsertSession(ctx context.Context, sess auth.Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (id, user_id, token_hash, client_ip, user_agent, created_at, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, sess.ID, sess.UserID, sess.TokenHash, nullIfEmpty(sess.ClientIP), nullIfEmpty(sess.UserAgent), sess.CreatedAt, sess.ExpiresAt)
	return err
}

func (s *Store) RevokeSessionByTokenHash(ctx context.Context, tokenHash string, at time.Time) error {
	// Matching nothing is deliberately a no-op.
	_, err := s.db.ExecContext(ctx, `
		update sessions set revoked_at = $2
		where token_hash = $1 and revoked_at is null
	`, tokenHash, at)
	return err
}

func (s *Store) RevokeSessionByID(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update sessions set revoked_at = $2
		where id = $1 and revoked_at is null
	`, id, at)
	return err
}

func (s *Store) RevokeSessionsForUser(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update sessions set revoked_at = $2
		where user_id = $1 and revoked_at is null
	`, userID, at)
	return err
}

// ResolveSession joins the session to its user, roles and permissions in one
// round trip, filtered to unrevoked, unexpired sessions of active users. It
// returns (nil, nil) when nothing matches so callers cannot tell an unknown
// token from an expired or revoked one.
func (s *Store) ResolveSession(ctx context.Context, tokenHash string, now time.Time) (*auth.Context, error) {
	rows, err := s.db.QueryContext(ctx, `
		select u.id, u.email, u.full_name, u.is_active, u.last_login_at, u.created_at, u.updated_at,
		       s.id, s.expires_at, r.name, p.key
		from sessions s
		join users u on u.id = s.user_id
		left join user_roles ur on ur.user_id = u.id
		left join roles r on r.id = ur.role_id
		left join role_permissions rp on rp.role_id = r.id
		left join permissions p on p.id = rp.permission_id
		where s.token_hash = $1
		  and s.revoked_at is null
		  and s.expires_at > $2
		  and u.is_active = true
	`, tokenHash, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		ac        *auth.Context
		roleSet   = map[string]struct{}{}
		permSet   = map[string]struct{}{}
		lastLogin sql.NullTime
	)
	for rows.Next() {
		var (
			u        auth.User
			sid      string
			expires  time.Time
			roleName sql.NullString
			permKey  sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.IsActive, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
			&sid, &expires, &roleName, &permKey); err != nil {
			return nil, err
		}
		if ac == nil {
			if lastLogin.Valid {
				t := lastLogin.Time
				u.LastLoginAt = &t
			}
			ac = &auth.Context{User: u, SessionID: sid, SessionExpiry: expires}
		}
		if roleName.Valid {
			roleSet[roleName.String] = struct{}{}
		}
		if permKey.Valid {
			permSet[permKey.String] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if ac == nil {
		return nil, nil
	}
	ac.Roles = sortedKeys(roleSet)
	ac.Permissions = sortedKeys(permSet)
	return ac, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
