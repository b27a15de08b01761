// Package directunpack implements the DirectUnpack Coordinator (spec.md
// §4.9): extraction overlapped with ongoing download, and DirectRename
// via in-process PAR2 File Description parsing.
package directunpack

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gonzbd/internal/config"
	"gonzbd/internal/domain"
	"gonzbd/internal/events"
	"gonzbd/internal/extraction"
	"gonzbd/internal/logger"
	"gonzbd/internal/persistence"
)

// Coordinator runs alongside engine.Engine.Run for one job, subscribing
// to the Event Bus for file-completion notifications and also polling
// periodically, per spec.md §4.9.
type Coordinator struct {
	cfg     *config.Config
	store   *persistence.Store
	bus     *events.Bus
	log     *logger.Logger
	manager *extraction.Manager
}

func New(cfg *config.Config, store *persistence.Store, bus *events.Bus, log *logger.Logger, manager *extraction.Manager) *Coordinator {
	return &Coordinator{cfg: cfg, store: store, bus: bus, log: log.Tag("directunpack"), manager: manager}
}

// Eligible reports whether job qualifies for DirectUnpack at all, per
// spec.md §4.9: "When enabled and post-process mode is Unpack or
// UnpackAndCleanup."
func (c *Coordinator) Eligible(job *domain.Job) bool {
	if !c.cfg.DirectUnpack.Enabled {
		return false
	}
	return job.PostProcess == domain.PostProcessUnpack || job.PostProcess == domain.PostProcessUnpackAndCleanup
}

// Run drives the coordinator until ctx is cancelled. The caller (the
// Supervisor) is expected to start this in its own goroutine alongside
// engine.Engine.Run for the same job and cancel its context once the
// download finishes, so Run can finalize the job's DirectUnpack state
// before Post-Process inspects it.
func (c *Coordinator) Run(ctx context.Context, job *domain.Job, wg *sync.WaitGroup) {
	defer wg.Done()
	if !c.Eligible(job) {
		return
	}

	job.DirectUnpackState = domain.DirectUnpackActive
	_ = c.store.SetDirectUnpackState(ctx, job.ID, domain.DirectUnpackActive, 0)
	c.bus.Publish(events.Event{Kind: events.DirectUnpackStarted, JobID: job.ID})

	st := newTracker(c, job)
	defer st.finalize()

	sub := c.bus.Subscribe()
	defer sub.Unsubscribe()

	interval := time.Duration(c.cfg.DirectUnpack.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	poll := time.NewTicker(interval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if ev.JobID == job.ID && ev.Kind == events.FileCompleted {
				st.onFileCompleted(ctx, ev.Path)
			}
		case <-poll.C:
			st.onPoll(ctx)
		}

		if job.ArticlesFailed.Load() > 0 && !st.cancelled {
			st.cancel(ctx)
			return
		}
	}
}

// tracker holds one job's DirectUnpack bookkeeping: parsed PAR2 file
// descriptions, pending rename candidates, and RAR set completion state.
type tracker struct {
	c   *Coordinator
	job *domain.Job

	parDescsLoaded bool
	byMD5_16k      map[[16]byte]string

	rarSets map[string]*rarSet

	cancelled bool
}

func newTracker(c *Coordinator, job *domain.Job) *tracker {
	return &tracker{
		c:         c,
		job:       job,
		byMD5_16k: make(map[[16]byte]string),
		rarSets:   buildRarSets(job.Files),
	}
}

func (t *tracker) workDir() string {
	return filepath.Join(t.c.cfg.TempDir, strconv.FormatInt(t.job.ID, 10))
}

func (t *tracker) onFileCompleted(ctx context.Context, name string) {
	f := t.fileByName(name)
	if f == nil {
		return
	}

	if t.c.cfg.DirectUnpack.DirectRename && f.IsParFile && !t.parDescsLoaded {
		t.loadParDescriptions(f)
	}
	if t.c.cfg.DirectUnpack.DirectRename && t.parDescsLoaded {
		t.tryRename(ctx, f)
	}

	if key, ok := setKeyFor(t.rarSets, f.Name); ok {
		t.maybeExtractSet(ctx, t.rarSets[key])
	}
}

// onPoll re-scans completed files that weren't renamed at event time
// (e.g. the PAR2 file completed after the target file did) and re-checks
// RAR set completion, matching spec.md §4.9's periodic wakeup.
func (t *tracker) onPoll(ctx context.Context) {
	if t.c.cfg.DirectUnpack.DirectRename && !t.parDescsLoaded {
		for _, f := range t.job.Files {
			if f.IsParFile && f.Completed {
				t.loadParDescriptions(f)
				break
			}
		}
	}
	if t.c.cfg.DirectUnpack.DirectRename && t.parDescsLoaded {
		for _, f := range t.job.Files {
			if f.Completed {
				t.tryRename(ctx, f)
			}
		}
	}
	for _, s := range t.rarSets {
		t.maybeExtractSet(ctx, s)
	}
}

func (t *tracker) fileByName(name string) *domain.File {
	for _, f := range t.job.Files {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func setKeyFor(sets map[string]*rarSet, name string) (string, bool) {
	for key, s := range sets {
		for _, f := range s.files {
			if f.Name == name {
				return key, true
			}
		}
	}
	return "", false
}

func (t *tracker) loadParDescriptions(parFile *domain.File) {
	f, err := os.Open(parFile.PartPath)
	if err != nil {
		t.c.log.Warn("job %d: open par2 file %s: %v", t.job.ID, parFile.Name, err)
		return
	}
	defer f.Close()

	descs, err := ParseFileDescriptions(f)
	if err != nil {
		t.c.log.Warn("job %d: parse par2 file descriptions in %s: %v", t.job.ID, parFile.Name, err)
		return
	}
	for _, d := range descs {
		t.byMD5_16k[d.MD5_16k] = d.Name
	}
	t.parDescsLoaded = true
}

func (t *tracker) tryRename(ctx context.Context, f *domain.File) {
	if f.IsParFile || f.PartPath == "" {
		return
	}
	hash, err := Hash16k(f.PartPath)
	if err != nil {
		return
	}
	realName, ok := t.byMD5_16k[hash]
	if !ok || realName == f.Name {
		return
	}

	newPath := filepath.Join(filepath.Dir(f.PartPath), realName+".part")
	if err := os.Rename(f.PartPath, newPath); err != nil {
		t.c.log.Warn("job %d: rename %s to %s: %v", t.job.ID, f.Name, realName, err)
		return
	}

	oldName := f.Name
	f.OriginalName = oldName
	f.Name = realName
	f.PartPath = newPath

	if err := t.c.store.RenameFile(ctx, t.job.ID, oldName, realName); err != nil {
		t.c.log.Warn("job %d: persist rename %s to %s: %v", t.job.ID, oldName, realName, err)
	}
	t.c.bus.Publish(events.Event{Kind: events.DirectRenamed, JobID: t.job.ID, OldName: oldName, NewName: realName})
}

func (t *tracker) maybeExtractSet(ctx context.Context, s *rarSet) {
	if s.extracted || !s.allCompleted() {
		return
	}
	s.extracted = true

	main := s.mainVolume()
	if main == nil {
		return
	}

	t.c.bus.Publish(events.Event{Kind: events.DirectUnpackExtracting, JobID: t.job.ID, Archive: main.Name})

	extractor, err := t.c.manager.Detect(main.PartPath)
	if err != nil || extractor == nil {
		t.c.log.Warn("job %d: no extractor for direct unpack set %s: %v", t.job.ID, s.key, err)
		return
	}

	destDir := filepath.Join(t.workDir(), "direct-extracted-"+sanitizeSetName(s.key))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		t.c.log.Warn("job %d: create direct unpack destination: %v", t.job.ID, err)
		return
	}

	if _, err := extractor.Extract(ctx, main.PartPath, destDir, t.job.Password); err != nil {
		t.c.log.Warn("job %d: direct unpack extract %s: %v", t.job.ID, s.key, err)
		return
	}

	t.job.DirectUnpackExtracted++
	if err := t.c.store.SetDirectUnpackState(ctx, t.job.ID, domain.DirectUnpackActive, t.job.DirectUnpackExtracted); err != nil {
		t.c.log.Warn("job %d: persist direct unpack progress: %v", t.job.ID, err)
	}
	t.c.bus.Publish(events.Event{Kind: events.DirectUnpackExtracted, JobID: t.job.ID, Archive: main.Name})
}

func (t *tracker) cancel(ctx context.Context) {
	t.cancelled = true
	t.job.DirectUnpackState = domain.DirectUnpackCancelled
	if err := t.c.store.SetDirectUnpackState(ctx, t.job.ID, domain.DirectUnpackCancelled, t.job.DirectUnpackExtracted); err != nil {
		t.c.log.Warn("job %d: persist direct unpack cancellation: %v", t.job.ID, err)
	}
	t.c.bus.Publish(events.Event{Kind: events.DirectUnpackCancelled, JobID: t.job.ID})
}

// finalize runs once, when Run's context is cancelled (normally because
// the download finished). Only a clean run with at least one extraction
// flips state to Succeeded, matching spec.md §3's shortcut invariant:
// `direct_unpack_state = Succeeded ∧ direct_unpack_extracted_count > 0 ∧
// article_failures = 0`.
func (t *tracker) finalize() {
	if t.cancelled {
		return
	}
	if t.job.DirectUnpackExtracted == 0 || t.job.ArticlesFailed.Load() != 0 {
		return
	}

	t.job.DirectUnpackState = domain.DirectUnpackSucceeded
	if err := t.c.store.SetDirectUnpackState(context.Background(), t.job.ID, domain.DirectUnpackSucceeded, t.job.DirectUnpackExtracted); err != nil {
		t.c.log.Warn("job %d: persist direct unpack success: %v", t.job.ID, err)
	}
	t.c.bus.Publish(events.Event{Kind: events.DirectUnpackComplete, JobID: t.job.ID})
}

func sanitizeSetName(name string) string {
	return filepath.Base(name)
}
