// Package supervisor implements the Supervisor (spec.md §4.13): startup
// crash recovery, the bounded-concurrency dispatch loop, and graceful
// shutdown. Grounded on the teacher's internal/engine/manager.go
// (QueueManager.Start's select loop, Stop's cancellation-funnel pattern),
// generalized from one in-memory slice scanned per iteration to the
// Priority Queue plus a semaphore.Weighted concurrency permit.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"golang.org/x/sync/semaphore"

	"gonzbd/internal/config"
	"gonzbd/internal/directunpack"
	"gonzbd/internal/domain"
	"gonzbd/internal/engine"
	"gonzbd/internal/events"
	"gonzbd/internal/logger"
	"gonzbd/internal/persistence"
	"gonzbd/internal/postprocess"
	"gonzbd/internal/queue"
	"gonzbd/internal/scheduler"
)

// dispatchInterval bounds how often the dispatch loop wakes to check the
// queue, the polling substitute for the teacher's newJobChan signal
// (admission.Controller has no reference back to the Supervisor to feed
// such a channel without introducing a cyclic import).
const dispatchInterval = 50 * time.Millisecond

// Supervisor owns the lifetime of every Job from dispatch through
// completion: one permit-gated goroutine per running job, with Force
// priority jobs bypassing the permit entirely (spec.md §4.13).
type Supervisor struct {
	cfg         *config.Config
	store       *persistence.Store
	bus         *events.Bus
	q           *queue.Queue
	engine      *engine.Engine
	coordinator *directunpack.Coordinator
	pipeline    *postprocess.Pipeline
	sched       *scheduler.Scheduler
	log         *logger.Logger

	sem *semaphore.Weighted

	wg sync.WaitGroup
}

func New(
	cfg *config.Config,
	store *persistence.Store,
	bus *events.Bus,
	q *queue.Queue,
	eng *engine.Engine,
	coordinator *directunpack.Coordinator,
	pipeline *postprocess.Pipeline,
	sched *scheduler.Scheduler,
	log *logger.Logger,
) *Supervisor {
	capacity := int64(cfg.MaxConcurrentDownloads)
	if capacity <= 0 {
		capacity = 1
	}
	return &Supervisor{
		cfg:         cfg,
		store:       store,
		bus:         bus,
		q:           q,
		engine:      eng,
		coordinator: coordinator,
		pipeline:    pipeline,
		sched:       sched,
		log:         log.Tag("supervisor"),
		sem:         semaphore.NewWeighted(capacity),
	}
}

// Start runs crash recovery, starts the Scheduler, and launches the
// dispatch loop, returning once the loop has started (it keeps running in
// the background until ctx is cancelled). Call Wait after ctx is
// cancelled to block for in-flight jobs to wind down.
func (sv *Supervisor) Start(ctx context.Context) error {
	if err := sv.recover(ctx); err != nil {
		return fmt.Errorf("supervisor: recovery: %w", err)
	}

	if err := sv.sched.SyncConfigRules(ctx, sv.cfg); err != nil {
		sv.log.Warn("sync config schedule rules: %v", err)
	}
	sv.sched.Start(ctx)

	go sv.dispatchLoop(ctx)
	return nil
}

// Wait blocks until every in-flight dispatched job has returned. Call
// after cancelling the Supervisor's context during shutdown.
func (sv *Supervisor) Wait() {
	sv.wg.Wait()
}

// recover implements spec.md §4.13's startup sequence: load every
// non-terminal job; a job that was Running (or mid-PostProcess, which
// cannot resume from an arbitrary internal stage) is demoted to Paused
// and its InFlight articles demoted to Pending, never auto-resumed
// without an explicit dispatch pass; a job that was still Queued is
// re-inserted into the Priority Queue in its original order.
func (sv *Supervisor) recover(ctx context.Context) error {
	jobs, err := sv.store.ListActiveJobs(ctx)
	if err != nil {
		return fmt.Errorf("list active jobs: %w", err)
	}

	for _, job := range jobs {
		switch job.Status {
		case domain.StatusQueued:
			sv.q.Push(job.ID, job.Priority, job.CreatedAt)
			sv.log.Info("job %d %q: re-queued from a prior run", job.ID, job.Name)

		case domain.StatusRunning, domain.StatusPostProcessing:
			if err := sv.demoteInFlightArticles(ctx, job.ID); err != nil {
				sv.log.Warn("job %d: demote in-flight articles: %v", job.ID, err)
			}
			if err := sv.store.UpdateJobStatus(ctx, job.ID, domain.StatusPaused, ""); err != nil {
				sv.log.Warn("job %d: demote to paused: %v", job.ID, err)
				continue
			}
			sv.log.Info("job %d %q: crash-recovery demotion to paused", job.ID, job.Name)

		case domain.StatusPaused:
			// Already paused; stays out of the dispatch queue until an
			// operator explicitly resumes it.
		}
	}
	return nil
}

func (sv *Supervisor) demoteInFlightArticles(ctx context.Context, jobID int64) error {
	articles, err := sv.store.ListArticles(ctx, jobID)
	if err != nil {
		return err
	}
	var inFlight []string
	for _, a := range articles {
		if a.Status == domain.ArticleStatusInFlight {
			inFlight = append(inFlight, a.MessageID)
		}
	}
	if len(inFlight) == 0 {
		return nil
	}
	return sv.store.BatchUpdateArticleStatus(ctx, jobID, inFlight, domain.ArticleStatusPending)
}

// dispatchLoop pops jobs off the Priority Queue whenever it is non-empty
// and not paused, spawning one goroutine per job. Permit acquisition
// happens inside that goroutine, not here, so a Normal job waiting on
// capacity never blocks later Force-priority jobs from being popped and
// started immediately.
func (sv *Supervisor) dispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if sv.q.Paused() {
			continue
		}
		jobID, ok := sv.q.Pop()
		if !ok {
			continue
		}

		sv.wg.Add(1)
		go sv.dispatch(ctx, jobID)
	}
}

func (sv *Supervisor) dispatch(ctx context.Context, jobID int64) {
	defer sv.wg.Done()

	job, err := sv.loadJob(ctx, jobID)
	if err != nil {
		sv.log.Error("job %d: load for dispatch: %v", jobID, err)
		return
	}

	if job.Priority != domain.PriorityForce {
		if err := sv.sem.Acquire(ctx, 1); err != nil {
			return // shutting down
		}
		defer sv.sem.Release(1)
	}

	sv.runJob(ctx, job)
}

// loadJob assembles a full domain.Job (files and articles included) from
// its persisted parts; persistence.Store only loads job columns in one
// call, the way ListActiveJobs does for the startup scan.
func (sv *Supervisor) loadJob(ctx context.Context, jobID int64) (*domain.Job, error) {
	job, err := sv.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	files, err := sv.store.ListFiles(ctx, jobID)
	if err != nil {
		return nil, err
	}
	articles, err := sv.store.ListArticles(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job.Files = files
	job.Articles = articles
	return job, nil
}

// runJob drives one job through Download, then (DirectUnpack permitting)
// straight to Move+Cleanup or the full Post-Process pipeline, and records
// its terminal History entry.
func (sv *Supervisor) runJob(ctx context.Context, job *domain.Job) {
	startedAt := time.Now()
	job.Status = domain.StatusRunning
	_ = sv.store.UpdateJobStatus(ctx, job.ID, domain.StatusRunning, "")
	_ = sv.store.MarkJobStarted(ctx, job.ID, startedAt)

	downloadCtx, downloadCancel := context.WithCancel(ctx)

	var duWg sync.WaitGroup
	if sv.coordinator.Eligible(job) {
		duWg.Add(1)
		go sv.coordinator.Run(downloadCtx, job, &duWg)
	}

	engineErr := sv.engine.Run(downloadCtx, job, sv.articleConcurrency())
	downloadCancel() // lets the Coordinator finalize before Post-Process inspects its state
	duWg.Wait()

	if errors.Is(engineErr, context.Canceled) {
		sv.finishCancelled(ctx, job, startedAt)
		return
	}
	if engineErr != nil {
		sv.log.Warn("job %d: download finished with article failures, deferring to verify/repair: %v", job.ID, engineErr)
	}

	var ppErr error
	if job.DirectUnpackShortcutEligible() {
		ppErr = sv.pipeline.FinishDirectUnpack(ctx, job)
	} else {
		ppErr = sv.pipeline.Run(ctx, job)
	}

	status := domain.HistoryComplete
	if ppErr != nil {
		status = domain.HistoryFailed
	}
	sv.appendHistory(ctx, job, status, startedAt)
}

func (sv *Supervisor) finishCancelled(ctx context.Context, job *domain.Job, startedAt time.Time) {
	_ = sv.store.UpdateJobStatus(ctx, job.ID, domain.StatusRemoved, "cancelled")
	sv.bus.Publish(events.Event{Kind: events.Failed, JobID: job.ID, Stage: "download", Error: "cancelled by operator"})
	sv.appendHistory(ctx, job, domain.HistoryFailed, startedAt)
}

func (sv *Supervisor) appendHistory(ctx context.Context, job *domain.Job, status domain.HistoryStatus, startedAt time.Time) {
	entry := &domain.HistoryEntry{
		ID:         ksuid.New().String(),
		JobID:      job.ID,
		Name:       job.Name,
		Category:   job.Category,
		DestDir:    job.DestDir,
		Status:     status,
		Size:       job.TotalSize,
		Duration:   time.Since(startedAt),
		FinishedAt: time.Now(),
	}
	if err := sv.store.AppendHistory(ctx, entry); err != nil {
		sv.log.Warn("job %d: append history: %v", job.ID, err)
	}
}

// articleConcurrency sizes the Engine's per-job worker pool at
// Σ server.connections · pipeline_depth, per spec.md §4.8.
func (sv *Supervisor) articleConcurrency() int {
	total := 0
	for _, srv := range sv.cfg.Servers {
		conns := srv.Connections
		if conns <= 0 {
			conns = 1
		}
		depth := srv.PipelineDepth
		if depth < 1 {
			depth = 1
		}
		total += conns * depth
	}
	if total == 0 {
		total = 1
	}
	return total
}

// Pause/Resume/Cancel forward control operations to the Engine by jobID,
// matching spec.md §4.8's pause/cancel funnel; Pause/Cancel on a job not
// currently running are no-ops (it is already Paused/terminal in the
// Store).
func (sv *Supervisor) Pause(jobID int64) bool  { return sv.engine.Pause(jobID) }
func (sv *Supervisor) Resume(jobID int64) bool { return sv.engine.Resume(jobID) }
func (sv *Supervisor) Cancel(jobID int64, deleteFiles bool) bool {
	return sv.engine.Cancel(jobID, deleteFiles)
}

// PauseQueue/ResumeQueue implement the global pause control operation
// (spec.md §4.13), distinct from pausing one job.
func (sv *Supervisor) PauseQueue() {
	sv.q.Pause()
	sv.bus.Publish(events.Event{Kind: events.QueuePaused})
}

func (sv *Supervisor) ResumeQueue() {
	sv.q.Resume()
	sv.bus.Publish(events.Event{Kind: events.QueueResumed})
}
