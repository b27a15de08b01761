// Package postprocess implements the five-stage verify→repair→extract→
// move→cleanup pipeline (spec.md §4.10), grounded on the teacher's
// internal/processor package (Prepare/Finalize, sanitizeFileName,
// cross-device move fallback) and generalized into an explicit mode-gated
// state machine.
package postprocess

import (
	"context"
	"fmt"

	"gonzbd/internal/config"
	"gonzbd/internal/domain"
	"gonzbd/internal/events"
	"gonzbd/internal/extraction"
	"gonzbd/internal/logger"
	"gonzbd/internal/parity"
	"gonzbd/internal/persistence"
)

// Pipeline runs the post-process stages for jobs; each Run, Reprocess,
// Reextract or FinishDirectUnpack call drives one job.
type Pipeline struct {
	cfg     *config.Config
	store   *persistence.Store
	bus     *events.Bus
	log     *logger.Logger
	parity  parity.Handler
	manager *extraction.Manager
}

func New(cfg *config.Config, store *persistence.Store, bus *events.Bus, log *logger.Logger, parityHandler parity.Handler, manager *extraction.Manager) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		store:   store,
		bus:     bus,
		log:     log.Tag("postprocess"),
		parity:  parityHandler,
		manager: manager,
	}
}

// Run drives job through the stage prefix selected by its PostProcessMode,
// starting from Verify. It is the entry point used after a normal
// download completes.
func (p *Pipeline) Run(ctx context.Context, job *domain.Job) error {
	return p.runFrom(ctx, job, stageVerify)
}

// Reprocess re-runs the full pipeline from Verify (spec.md §4.10's
// `reprocess(id)` re-entry point).
func (p *Pipeline) Reprocess(ctx context.Context, job *domain.Job) error {
	return p.runFrom(ctx, job, stageVerify)
}

// Reextract jumps directly to Extract, used once a password becomes
// available after an earlier extraction failure (`reextract(id)`).
func (p *Pipeline) Reextract(ctx context.Context, job *domain.Job) error {
	return p.runFrom(ctx, job, stageExtract)
}

// FinishDirectUnpack jumps straight to Move, the entry point used when
// job.DirectUnpackShortcutEligible() holds: DirectUnpack already
// extracted every archive during download, so Verify/Repair/Extract are
// skipped entirely (spec.md §4.9's "DirectUnpack shortcut").
func (p *Pipeline) FinishDirectUnpack(ctx context.Context, job *domain.Job) error {
	return p.runFrom(ctx, job, stageMove)
}

type stage int

const (
	stageVerify stage = iota
	stageRepair
	stageExtract
	stageMove
	stageCleanup
	stageDone
)

// runFrom executes stages from start through the last stage job.PostProcess
// reaches, skipping any stage in between that the mode's table row turns
// off (spec.md §4.10), and stopping at the first stage that returns an
// error.
func (p *Pipeline) runFrom(ctx context.Context, job *domain.Job, start stage) error {
	last := p.lastStageFor(job.PostProcess)

	var verifyResult *parity.VerifyResult
	// Seeded from DirectUnpack's count so a shortcut entry (start >
	// stageExtract) still reports the right extractionSucceeded flag to
	// Cleanup; a normal run overwrites this once stageExtract executes.
	extractedCount := job.DirectUnpackExtracted

	for s := start; s <= last; s++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !stageEnabledFor(job.PostProcess, s) {
			continue
		}
		var err error
		switch s {
		case stageVerify:
			verifyResult, err = p.runVerify(ctx, job)
		case stageRepair:
			if verifyResult != nil && verifyResult.Damaged {
				err = p.runRepair(ctx, job, verifyResult)
			}
		case stageExtract:
			extractedCount, err = p.runExtract(ctx, job)
		case stageMove:
			err = p.runMove(ctx, job)
		case stageCleanup:
			err = p.runCleanup(ctx, job, extractedCount > 0)
		}
		if err != nil {
			p.fail(job, stageName(s), err)
			return err
		}
	}

	if err := p.store.UpdateJobStatus(ctx, job.ID, domain.StatusComplete, ""); err != nil {
		p.log.Warn("job %d: mark complete: %v", job.ID, err)
	}
	p.bus.Publish(events.Event{Kind: events.Complete, JobID: job.ID})
	return nil
}

// stageEnabledFor reports whether stage s runs under mode, per spec.md
// §4.10's table. The table is not a simple prefix: Move runs under every
// mode including None, while Verify/Repair/Extract escalate independently
// and Cleanup only runs for UnpackAndCleanup. Repair's extra "only if
// Verify reports damage" condition is applied separately in runFrom's
// switch, not here.
func stageEnabledFor(mode domain.PostProcessMode, s stage) bool {
	switch s {
	case stageMove:
		return true
	case stageCleanup:
		return mode == domain.PostProcessUnpackAndCleanup
	case stageExtract:
		return mode == domain.PostProcessUnpack || mode == domain.PostProcessUnpackAndCleanup
	case stageRepair:
		return mode == domain.PostProcessRepair || mode == domain.PostProcessUnpack || mode == domain.PostProcessUnpackAndCleanup
	case stageVerify:
		return mode == domain.PostProcessVerify || mode == domain.PostProcessRepair || mode == domain.PostProcessUnpack || mode == domain.PostProcessUnpackAndCleanup
	default:
		return false
	}
}

// lastStageFor is the loop's upper bound: the last stage any row of the
// table turns on. Everything between start and this bound that the mode
// doesn't enable is skipped by stageEnabledFor, not excluded from the
// range.
func (p *Pipeline) lastStageFor(mode domain.PostProcessMode) stage {
	if mode == domain.PostProcessUnpackAndCleanup {
		return stageCleanup
	}
	return stageMove
}

func stageName(s stage) string {
	switch s {
	case stageVerify:
		return "verify"
	case stageRepair:
		return "repair"
	case stageExtract:
		return "extract"
	case stageMove:
		return "move"
	case stageCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

func (p *Pipeline) fail(job *domain.Job, stage string, err error) {
	filesKept := true
	_ = p.store.UpdateJobStatus(context.Background(), job.ID, domain.StatusFailed, err.Error())
	p.bus.Publish(events.Event{
		Kind:      events.Failed,
		JobID:     job.ID,
		Stage:     stage,
		Error:     err.Error(),
		FilesKept: filesKept,
	})
	p.log.Error("job %d: %s stage failed: %v", job.ID, stage, err)
}

var errInsufficientRecoveryBlocks = fmt.Errorf("postprocess: insufficient recovery blocks")
