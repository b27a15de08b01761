// Package engine is the per-job Download Engine (spec.md §4.8): bounded
// article dispatch across the Server Pool, positional writes, progress
// tracking, and pause/cancel handling.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"gonzbd/internal/decoding"
	"gonzbd/internal/domain"
	"gonzbd/internal/events"
	"gonzbd/internal/logger"
	"gonzbd/internal/persistence"
	"gonzbd/internal/ratelimit"
	"gonzbd/internal/retry"
)

// eventInterval caps how often a Downloading event is published per job
// (spec.md §4.8: "no more often than once per 250ms per job").
const eventInterval = 250 * time.Millisecond

// persistInterval bounds how often article status batches are flushed to
// the Store (spec.md §4.4's ~500ms/job batching).
const persistInterval = 500 * time.Millisecond

// Fetcher is the Server Pool surface the Engine depends on.
type Fetcher interface {
	Fetch(ctx context.Context, messageID string, missingFrom map[string]bool) (io.ReadCloser, error)
}

// Engine runs the article dispatch loop of every running Job; each Job is
// driven by exactly one Run call at a time, per spec.md §3 ("executed by
// exactly one Download task at a time").
type Engine struct {
	pool    Fetcher
	limiter *ratelimit.Limiter
	store   *persistence.Store
	bus     *events.Bus
	log     *logger.Logger
	policy  retry.Policy

	mu       sync.Mutex
	handles  map[int64]*Handle
}

func New(fetcher Fetcher, limiter *ratelimit.Limiter, store *persistence.Store, bus *events.Bus, log *logger.Logger, policy retry.Policy) *Engine {
	return &Engine{
		pool:    fetcher,
		limiter: limiter,
		store:   store,
		bus:     bus,
		log:     log.Tag("engine"),
		policy:  policy,
		handles: make(map[int64]*Handle),
	}
}

// Pause requests the named job halt new dispatch at its next article
// boundary. Returns false if the job is not currently running.
func (e *Engine) Pause(jobID int64) bool {
	e.mu.Lock()
	h, ok := e.handles[jobID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	h.Pause()
	return true
}

// Resume clears a pause request for a running job.
func (e *Engine) Resume(jobID int64) bool {
	e.mu.Lock()
	h, ok := e.handles[jobID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	h.Resume()
	return true
}

// Cancel aborts a running job immediately.
func (e *Engine) Cancel(jobID int64, deleteFiles bool) bool {
	e.mu.Lock()
	h, ok := e.handles[jobID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	h.Cancel(deleteFiles)
	return true
}

// Run dispatches every Pending/InFlight article of job across the bounded
// in-flight set and blocks until the job's articles are all resolved, or
// the job is cancelled. Capacity sizes the worker pool to
// Σ server.connections · pipeline_depth.
func (e *Engine) Run(ctx context.Context, job *domain.Job, capacity int) error {
	if capacity <= 0 {
		capacity = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	handle := newHandle(cancel)
	job.CancelFunc = cancel

	e.mu.Lock()
	e.handles[job.ID] = handle
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.handles, job.ID)
		e.mu.Unlock()
	}()

	writer := NewFileWriter()
	defer writer.CloseAll()

	filesByName := make(map[string]*domain.File, len(job.Files))
	for _, f := range job.Files {
		filesByName[f.Name] = f
	}

	var doneCount, failedCount, pendingCount int64
	for _, a := range job.Articles {
		switch a.Status {
		case domain.ArticleStatusDone:
			doneCount++
		case domain.ArticleStatusFailed:
			failedCount++
		default:
			pendingCount++
		}
	}
	job.ArticlesDone.Store(doneCount)
	job.ArticlesFailed.Store(failedCount)
	job.ArticlesPending.Store(pendingCount)

	speed := newSpeedTracker()
	lastEvent := time.Now().Add(-eventInterval)
	lastPersist := time.Now()
	var evMu sync.Mutex
	var pendingDone, pendingFailed []string

	flush := func(force bool) {
		evMu.Lock()
		done := pendingDone
		failed := pendingFailed
		now := time.Now()
		shouldFlush := force || now.Sub(lastPersist) >= persistInterval
		if shouldFlush {
			pendingDone, pendingFailed = nil, nil
			lastPersist = now
		}
		evMu.Unlock()

		if !shouldFlush {
			return
		}
		if len(done) > 0 {
			if err := e.store.BatchUpdateArticleStatus(ctx, job.ID, done, domain.ArticleStatusDone); err != nil {
				e.log.Warn("job %d: flush done articles: %v", job.ID, err)
			}
		}
		if len(failed) > 0 {
			if err := e.store.BatchUpdateArticleStatus(ctx, job.ID, failed, domain.ArticleStatusFailed); err != nil {
				e.log.Warn("job %d: flush failed articles: %v", job.ID, err)
			}
		}
	}
	defer flush(true)

	maybeEmitProgress := func() {
		now := time.Now()
		if now.Sub(lastEvent) < eventInterval {
			return
		}
		lastEvent = now
		e.bus.Publish(events.Event{
			Kind:          events.Downloading,
			JobID:         job.ID,
			Time:          now,
			Percent:       job.HealthPercent(),
			SpeedBps:      speed.Value(),
			HealthPercent: job.HealthPercent(),
		})
	}

	p := pool.New().WithMaxGoroutines(capacity)

	for _, article := range job.Articles {
		if article.Status == domain.ArticleStatusDone || article.Status == domain.ArticleStatusFailed {
			continue
		}
		a := article
		f := filesByName[a.FileName]
		p.Go(func() {
			e.runArticle(runCtx, handle, job, a, f, writer, speed, &evMu, &pendingDone, &pendingFailed)
			flush(false)
			maybeEmitProgress()
		})
	}

	p.Wait()
	flush(true)
	maybeEmitProgress()

	if handle.Cancelled() {
		if handle.DeleteFilesRequested() {
			writer.CloseAll()
			for _, f := range job.Files {
				_ = removeIfExists(f.PartPath)
			}
		}
		return context.Canceled
	}

	if job.ArticlesFailed.Load() > 0 {
		return fmt.Errorf("job %d: %d articles permanently failed", job.ID, job.ArticlesFailed.Load())
	}
	return nil
}

// runArticle fetches, decodes, and writes exactly one article, retrying
// transient failures per the configured policy, and observing pause at
// the article boundary per spec.md §4.8.
func (e *Engine) runArticle(ctx context.Context, handle *Handle, job *domain.Job, a *domain.Article, f *domain.File, writer *FileWriter, speed *speedTracker, evMu *sync.Mutex, done, failed *[]string) {
	for handle.Paused() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
	if ctx.Err() != nil {
		return
	}

	job.ArticlesInFlight.Add(1)
	job.ArticlesPending.Add(-1)
	defer job.ArticlesInFlight.Add(-1)

	if e.limiter != nil {
		if err := e.limiter.Acquire(ctx, a.Length); err != nil {
			e.markFailed(job, a, evMu, failed)
			return
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		n, werr := e.fetchAndWrite(ctx, a, f, writer)
		if werr == nil {
			job.ArticlesDone.Add(1)
			job.BytesDone.Add(int64(n))
			speed.Sample(int64(n), time.Now())
			evMu.Lock()
			*done = append(*done, a.MessageID)
			evMu.Unlock()

			if f != nil && f.BytesWritten.Load() >= f.Size && !f.Completed {
				f.Completed = true
				if err := e.store.MarkFileCompleted(ctx, job.ID, f.Name); err != nil {
					e.log.Warn("job %d: mark file completed %s: %v", job.ID, f.Name, err)
				}
				e.bus.Publish(events.Event{Kind: events.FileCompleted, JobID: job.ID, Time: time.Now(), Path: f.Name})
			}
			return
		}
		lastErr = werr

		busy := errors.Is(werr, domain.ErrProviderBusy)
		if !e.policy.Done(attempt) {
			delay := 100 * time.Millisecond
			if !busy {
				delay = e.policy.Next(attempt)
			}
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return
			}
		}
		break
	}

	e.log.Error("job %d: article %s permanently failed: %v", job.ID, a.MessageID, lastErr)
	e.markFailed(job, a, evMu, failed)
}

func (e *Engine) markFailed(job *domain.Job, a *domain.Article, evMu *sync.Mutex, failed *[]string) {
	job.ArticlesFailed.Add(1)
	evMu.Lock()
	*failed = append(*failed, a.MessageID)
	evMu.Unlock()
}

// fetchAndWrite performs one fetch+decode+write attempt and returns the
// number of decoded bytes written.
func (e *Engine) fetchAndWrite(ctx context.Context, a *domain.Article, f *domain.File, writer *FileWriter) (int, error) {
	rc, err := e.pool.Fetch(ctx, a.MessageID, a.MissingFrom)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", a.MessageID, err)
	}
	defer rc.Close()

	dec := decoding.NewYencDecoder(rc)
	if err := dec.DiscardHeader(); err != nil {
		return 0, fmt.Errorf("yenc header %s: %w", a.MessageID, err)
	}

	writeOffset := dec.PartOffset
	if writeOffset == 0 && a.Offset != 0 {
		writeOffset = a.Offset
	}

	data := make([]byte, a.Length)
	n, err := io.ReadFull(dec, data)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, fmt.Errorf("decode %s: %w", a.MessageID, err)
	}
	// Drain through the =yend footer so Verify has the expected CRC.
	if _, err := io.Copy(io.Discard, dec); err != nil {
		return 0, fmt.Errorf("decode %s: %w", a.MessageID, err)
	}

	if err := dec.Verify(); err != nil {
		return 0, fmt.Errorf("crc mismatch %s: %w", a.MessageID, err)
	}

	if n == 0 || f == nil {
		return n, nil
	}

	if err := writer.WriteAt(f, data[:n], writeOffset); err != nil {
		return 0, fmt.Errorf("write %s: %w", a.MessageID, err)
	}
	f.BytesWritten.Add(int64(n))
	return n, nil
}

func removeIfExists(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
