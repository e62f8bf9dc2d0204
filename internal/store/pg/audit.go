package pg

import (
	"context"
	"database/sql"
	"encoding/json"

	"lovedev.org/internal/auth"
	"lovedev.org/internal/ids"
)

type auditStore struct{ db *sql.DB }

func (s *auditStore) Append(ctx context.Context, entry *auth.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	oldValues, _ := json.Marshal(entry.OldValues)
	newValues, _ := json.Marshal(entry.NewValues)
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, occurred_at, actor_user_id, action, entity_type, entity_id,
		   old_values, new_values, ip_address, user_agent, description)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		entry.ID, entry.OccurredAt, entry.ActorUserID, entry.Action, entry.EntityType,
		entry.EntityID, oldValues, newValues, entry.IPAddress, entry.UserAgent, entry.Description)
	return err
}

func (s *auditStore) ListByUser(ctx context.Context, userID string, offset, limit int) ([]*auth.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, occurred_at, actor_user_id, action, entity_type, entity_id,
		   old_values, new_values, ip_address, user_agent, description
		 from audit_log where entity_id=$1 order by occurred_at desc limit $2 offset $3`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*auth.AuditEntry
	for rows.Next() {
		var (
			e         auth.AuditEntry
			oldValues []byte
			newValues []byte
		)
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.ActorUserID, &e.Action, &e.EntityType,
			&e.EntityID, &oldValues, &newValues, &e.IPAddress, &e.UserAgent, &e.Description); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(oldValues, &e.OldValues)
		_ = json.Unmarshal(newValues, &e.NewValues)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
