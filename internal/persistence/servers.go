package persistence

import (
	"context"

	"gonzbd/internal/domain"
)

// SnapshotServers records the active server configuration for audit, so a
// later "why did this job route through server X" question can be
// answered without relying on the live config file's current contents.
func (s *Store) SnapshotServers(ctx context.Context, servers []domain.ServerConfig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, srv := range servers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO servers (id, host, port, tls, connections, pipeline_depth, priority, snapshot_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(id) DO UPDATE SET
				host = excluded.host,
				port = excluded.port,
				tls = excluded.tls,
				connections = excluded.connections,
				pipeline_depth = excluded.pipeline_depth,
				priority = excluded.priority,
				snapshot_at = excluded.snapshot_at`,
			srv.ID, srv.Host, srv.Port, boolToInt(srv.TLS), srv.Connections, srv.PipelineDepth, srv.Priority,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}
