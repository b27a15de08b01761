package persistence

import (
	"context"
	"time"

	"gonzbd/internal/domain"
)

// HistoryFilter narrows LoadHistory; zero values mean "no filter."
type HistoryFilter struct {
	Category string
	Status   domain.HistoryStatus
	Limit    int
}

// AppendHistory records a terminal Job's immutable snapshot.
func (s *Store) AppendHistory(ctx context.Context, e *domain.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (id, job_id, name, category, dest_dir, status, size, duration_ms, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.JobID, e.Name, e.Category, e.DestDir, string(e.Status), e.Size,
		e.Duration.Milliseconds(), e.FinishedAt,
	)
	return err
}

func (s *Store) LoadHistory(ctx context.Context, filter HistoryFilter) ([]*domain.HistoryEntry, error) {
	query := `SELECT id, job_id, name, category, dest_dir, status, size, duration_ms, finished_at FROM history WHERE 1=1`
	var args []any

	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY finished_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var status string
		var durationMs int64
		if err := rows.Scan(&e.ID, &e.JobID, &e.Name, &e.Category, &e.DestDir, &status, &e.Size, &durationMs, &e.FinishedAt); err != nil {
			return nil, err
		}
		e.Status = domain.HistoryStatus(status)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, &e)
	}
	return out, rows.Err()
}
