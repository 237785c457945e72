package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"screener.dev/internal/auth"
	"screener.dev/internal/ids"
)

func (s *Store) AppendAudit(ctx context.Context, e auth.AuditEntry) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		bytes, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		meta = bytes
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, actor_user_id, action, entity_type, entity_id, metadata, ip_address, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, nullIfEmpty(e.ActorUserID), e.Action, e.EntityType, nullIfEmpty(e.EntityID), meta, nullIfEmpty(e.IPAddress), e.CreatedAt)
	return err
}

func (s *Store) ListAudit(ctx context.Context, f auth.AuditFilter, limit int) ([]auth.AuditEntry, error) {
	query := `
		select id, actor_user_id, action, entity_type, entity_id, metadata, ip_address, created_at
		from audit_log
		where 1=1`
	var args []any
	idx := 1
	if !f.From.IsZero() {
		query += fmt.Sprintf(" and created_at >= $%d", idx)
		args = append(args, f.From)
		idx++
	}
	if !f.To.IsZero() {
		query += fmt.Sprintf(" and created_at <= $%d", idx)
		args = append(args, f.To)
		idx++
	}
	if f.Actor != "" {
		query += fmt.Sprintf(" and actor_user_id = $%d", idx)
		args = append(args, f.Actor)
		idx++
	}
	if f.Action != "" {
		query += fmt.Sprintf(" and action = $%d", idx)
		args = append(args, f.Action)
		idx++
	}
	query += fmt.Sprintf(" order by created_at desc limit $%d", idx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []auth.AuditEntry
	for rows.Next() {
		var (
			e        auth.AuditEntry
			actor    sql.NullString
			entityID sql.NullString
			ip       sql.NullString
			meta     []byte
		)
		if err := rows.Scan(&e.ID, &actor, &e.Action, &e.EntityType, &entityID, &meta, &ip, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorUserID = actor.String
		e.EntityID = entityID.String
		e.IPAddress = ip.String
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
