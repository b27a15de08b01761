package persistence

import (
	"context"

	"gonzbd/internal/domain"
)

// UpsertFile persists a File's current state, including pre-allocation
// bookkeeping.
func (s *Store) UpsertFile(ctx context.Context, f *domain.File) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (job_id, name, original_name, size, bytes_written, completed, part_path, final_path, is_par_file)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id, name) DO UPDATE SET
			bytes_written = excluded.bytes_written,
			completed = excluded.completed,
			part_path = excluded.part_path,
			final_path = excluded.final_path`,
		f.JobID, f.Name, f.OriginalName, f.Size, f.BytesWritten.Load(), boolToInt(f.Completed), f.PartPath, f.FinalPath, boolToInt(f.IsParFile),
	)
	return err
}

// MarkFileCompleted flips a file's completed flag once its last article
// lands, the trigger for a DirectUnpack file-completion notification.
func (s *Store) MarkFileCompleted(ctx context.Context, jobID int64, filename string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE files SET completed = 1 WHERE job_id = ? AND name = ?`, jobID, filename)
	return err
}

// RenameFile applies a DirectRename: both the persisted record and the
// caller's on-disk move must agree on the new name.
func (s *Store) RenameFile(ctx context.Context, jobID int64, oldName, newName string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE files SET original_name = name, name = ? WHERE job_id = ? AND name = ?`,
		newName, jobID, oldName,
	)
	return err
}

// ListFiles returns every file belonging to a job.
func (s *Store) ListFiles(ctx context.Context, jobID int64) ([]*domain.File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, name, original_name, size, bytes_written, completed, part_path, final_path, is_par_file
		FROM files WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.File
	for rows.Next() {
		var f domain.File
		var completed, isPar int
		var bytesWritten int64
		if err := rows.Scan(&f.JobID, &f.Name, &f.OriginalName, &f.Size, &bytesWritten, &completed, &f.PartPath, &f.FinalPath, &isPar); err != nil {
			return nil, err
		}
		f.BytesWritten.Store(bytesWritten)
		f.Completed = completed != 0
		f.IsParFile = isPar != 0
		out = append(out, &f)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
