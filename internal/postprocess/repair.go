package postprocess

import (
	"context"

	"gonzbd/internal/domain"
	"gonzbd/internal/events"
	"gonzbd/internal/parity"
)

// runRepair repairs job's working directory when Verify reported damage
// and enough recovery blocks are available, per spec.md §4.10: "Repair
// runs only if Verify reports damage and blocks_needed <= blocks_available."
func (p *Pipeline) runRepair(ctx context.Context, job *domain.Job, verify *parity.VerifyResult) error {
	caps := p.parity.Capabilities()
	if !caps.CanRepair {
		p.bus.Publish(events.Event{Kind: events.RepairSkipped, JobID: job.ID})
		return nil
	}

	if verify.BlocksNeeded > verify.BlocksAvailable {
		return errInsufficientRecoveryBlocks
	}

	p.bus.Publish(events.Event{Kind: events.Repairing, JobID: job.ID})
	result, err := p.parity.Repair(ctx, p.workDir(job))
	if err != nil {
		return err
	}
	if !result.Success {
		return errInsufficientRecoveryBlocks
	}

	p.bus.Publish(events.Event{Kind: events.RepairComplete, JobID: job.ID, Success: true})
	return nil
}
