package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"sitegate.io/internal/audit"
)

var _ audit.Store = (*Store)(nil)

// Append writes one activity entry. The table is append only.
func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = b
	}
	_, err := s.db.ExecContext(ctx, `
		insert into activity_logs
			(id, portal, principal_id, activity_type, action, resource_type, resource_id,
			 metadata, ip, user_agent, request_id, occurred_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, e.Portal, e.PrincipalID, string(e.Type), e.Action, e.ResourceType, e.ResourceID,
		meta, e.IP, e.UserAgent, e.RequestID, e.OccurredAt)
	return err
}
