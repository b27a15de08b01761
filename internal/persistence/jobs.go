package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gonzbd/internal/domain"
)

// EnqueueJob persists a new Job and returns its assigned ID.
func (s *Store) EnqueueJob(ctx context.Context, job *domain.Job) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (name, nzb_meta_name, category, dest_dir, priority, post_process, password, nzb_hash, total_size, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Name, job.NZBMetaName, job.Category, job.DestDir, job.Priority.String(), string(job.PostProcess),
		job.Password, job.NZBHash, job.TotalSize, string(job.Status), job.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue job %s: %w", job.Name, err)
	}
	return res.LastInsertId()
}

// UpdateJobStatus transitions a job's persisted status, optionally
// recording a terminal error message.
func (s *Store) UpdateJobStatus(ctx context.Context, id int64, status domain.JobStatus, lastErr string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, last_error = ? WHERE id = ?`,
		string(status), lastErr, id,
	)
	return err
}

// SetDirectUnpackState records the DirectUnpack Coordinator's lifecycle
// transition for a job.
func (s *Store) SetDirectUnpackState(ctx context.Context, id int64, state domain.DirectUnpackState, extracted int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET direct_unpack_state = ?, direct_unpack_extracted = ? WHERE id = ?`,
		string(state), extracted, id,
	)
	return err
}

// MarkJobStarted stamps started_at, used once when a job transitions
// Queued -> Running for the first time.
func (s *Store) MarkJobStarted(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET started_at = ? WHERE id = ?`, at, id)
	return err
}

// ListActiveJobs returns every job in a non-terminal state, for startup
// recovery (spec.md §4.13: demote InFlight to Paused and re-queue).
func (s *Store) ListActiveJobs(ctx context.Context) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, nzb_meta_name, category, dest_dir, priority, post_process, password, nzb_hash, total_size,
		       status, direct_unpack_state, direct_unpack_extracted, last_error, created_at, started_at
		FROM jobs
		WHERE status NOT IN ('complete', 'failed', 'removed')
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CreateJob persists a new Job along with its Files and Articles in a
// single transaction, satisfying spec.md §4.7 step 5 ("persist Job and
// Articles atomically").
func (s *Store) CreateJob(ctx context.Context, job *domain.Job, files []*domain.File, articles []*domain.Article) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO jobs (name, nzb_meta_name, category, dest_dir, priority, post_process, password, nzb_hash, total_size, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Name, job.NZBMetaName, job.Category, job.DestDir, job.Priority.String(), string(job.PostProcess),
		job.Password, job.NZBHash, job.TotalSize, string(job.Status), job.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("create job %s: %w", job.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, f := range files {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO files (job_id, name, original_name, size, bytes_written, completed, part_path, final_path, is_par_file)
			VALUES (?, ?, ?, ?, 0, 0, '', '', 0)`,
			id, f.Name, f.OriginalName, f.Size,
		); err != nil {
			return 0, fmt.Errorf("create job %s: insert file %s: %w", job.Name, f.Name, err)
		}
	}

	for _, a := range articles {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO articles (job_id, message_id, offset, length, file_name, status, attempts, server_id)
			VALUES (?, ?, ?, ?, ?, ?, 0, '')`,
			id, a.MessageID, a.Offset, a.Length, a.FileName, string(a.Status),
		); err != nil {
			return 0, fmt.Errorf("create job %s: insert article %s: %w", job.Name, a.MessageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// FindJobByNZBHash returns the job matching a content hash, for
// Admission's nzb_hash duplicate fingerprint. Returns domain.ErrJobNotFound
// when absent.
func (s *Store) FindJobByNZBHash(ctx context.Context, hash string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, nzb_meta_name, category, dest_dir, priority, post_process, password, nzb_hash, total_size,
		       status, direct_unpack_state, direct_unpack_extracted, last_error, created_at, started_at
		FROM jobs WHERE nzb_hash = ? AND nzb_hash != '' ORDER BY created_at DESC LIMIT 1`, hash)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrJobNotFound
	}
	return job, err
}

// FindJobByName returns the most recent job with an exact name match, for
// Admission's nzb_name/job_name duplicate fingerprints. Returns
// domain.ErrJobNotFound when absent.
func (s *Store) FindJobByName(ctx context.Context, name string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, nzb_meta_name, category, dest_dir, priority, post_process, password, nzb_hash, total_size,
		       status, direct_unpack_state, direct_unpack_extracted, last_error, created_at, started_at
		FROM jobs WHERE name = ? ORDER BY created_at DESC LIMIT 1`, name)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrJobNotFound
	}
	return job, err
}

// GetJob fetches a single job by ID, or domain.ErrJobNotFound if it does
// not exist.
func (s *Store) GetJob(ctx context.Context, id int64) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, nzb_meta_name, category, dest_dir, priority, post_process, password, nzb_hash, total_size,
		       status, direct_unpack_state, direct_unpack_extracted, last_error, created_at, started_at
		FROM jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrJobNotFound
	}
	return job, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*domain.Job, error) {
	var (
		j           domain.Job
		priority    string
		postProcess string
		status      string
		duState     string
		startedAt   sql.NullTime
	)

	if err := r.Scan(
		&j.ID, &j.Name, &j.NZBMetaName, &j.Category, &j.DestDir, &priority, &postProcess, &j.Password,
		&j.NZBHash, &j.TotalSize, &status, &duState, &j.DirectUnpackExtracted, &j.LastError,
		&j.CreatedAt, &startedAt,
	); err != nil {
		return nil, err
	}

	j.Priority = parsePriority(priority)
	j.PostProcess = domain.PostProcessMode(postProcess)
	j.Status = domain.JobStatus(status)
	j.DirectUnpackState = domain.DirectUnpackState(duState)
	if startedAt.Valid {
		j.StartedAt = startedAt.Time
	}
	return &j, nil
}

func parsePriority(s string) domain.Priority {
	switch s {
	case "force":
		return domain.PriorityForce
	case "high":
		return domain.PriorityHigh
	case "low":
		return domain.PriorityLow
	default:
		return domain.PriorityNormal
	}
}
