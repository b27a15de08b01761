package persistence

import (
	"context"
	"database/sql"
	"errors"
)

// InsertRSSSeen records a feed GUID as processed so future polls skip it.
func (s *Store) InsertRSSSeen(ctx context.Context, feedID, guid string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO rss_seen (feed_id, guid, seen_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
		feedID, guid,
	)
	return err
}

func (s *Store) IsRSSSeen(ctx context.Context, feedID, guid string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM rss_seen WHERE feed_id = ? AND guid = ?`, feedID, guid,
	).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
