package postprocess

import (
	"context"

	"gonzbd/internal/domain"
	"gonzbd/internal/events"
	"gonzbd/internal/parity"
)

// runVerify dispatches to the configured ParityHandler. It returns the
// parsed verify result (nil when skipped), never inferring completeness
// from a process exit code (spec.md §6).
func (p *Pipeline) runVerify(ctx context.Context, job *domain.Job) (*parity.VerifyResult, error) {
	caps := p.parity.Capabilities()
	if !caps.CanVerify {
		p.bus.Publish(events.Event{Kind: events.VerifySkipped, JobID: job.ID})
		return nil, nil
	}

	p.bus.Publish(events.Event{Kind: events.Verifying, JobID: job.ID})
	result, err := p.parity.Verify(ctx, p.workDir(job))
	if err != nil {
		return nil, err
	}

	p.bus.Publish(events.Event{Kind: events.VerifyComplete, JobID: job.ID, Damaged: result.Damaged})
	return result, nil
}
