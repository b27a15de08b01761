// Package admission implements the Admission Controller (spec.md §4.7):
// parse, dedup, resolve category, disk-space precheck, persist, enqueue.
package admission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"gonzbd/internal/config"
	"gonzbd/internal/domain"
	"gonzbd/internal/events"
	"gonzbd/internal/logger"
	"gonzbd/internal/nzbparser"
	"gonzbd/internal/persistence"
	"gonzbd/internal/queue"
)

// Submission carries the operator-supplied overrides accompanying a raw
// NZB body (from a watch folder, upload, or RSS feed).
type Submission struct {
	Name     string // overrides the NZB's own name if set
	Category string
	Priority domain.Priority
	Password string // overrides the NZB's <meta type="password">
}

// Controller wires the NZB parser, duplicate detection, category
// resolution, and disk-space precheck into one admission path, grounded
// on internal/engine/manager.go's HydrateItem sequence.
type Controller struct {
	cfg   *config.Config
	store *persistence.Store
	bus   *events.Bus
	q     *queue.Queue
	log   *logger.Logger

	freeBytes func(path string) (uint64, error)
	now       func() time.Time
}

func New(cfg *config.Config, store *persistence.Store, bus *events.Bus, q *queue.Queue, log *logger.Logger) *Controller {
	return &Controller{
		cfg:       cfg,
		store:     store,
		bus:       bus,
		q:         q,
		log:       log.Tag("admission"),
		freeBytes: FreeBytes,
		now:       time.Now,
	}
}

// Submit runs the full admission pipeline for one NZB body and returns the
// persisted Job on success.
func (c *Controller) Submit(ctx context.Context, r io.Reader, sub Submission) (*domain.Job, error) {
	parsed, err := nzbparser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("admission: parse nzb: %w", err)
	}

	name := sub.Name
	if name == "" {
		name = parsed.Meta.Name
	}
	if name == "" {
		return nil, errors.New("admission: nzb has no name (supply one or embed <meta type=\"name\">)")
	}

	if err := c.checkDuplicates(ctx, parsed.ContentHash, name); err != nil {
		return nil, err
	}

	destDir, postProcess := c.resolveCategory(ctx, sub.Category)

	password := sub.Password
	if password == "" {
		password = parsed.Meta.Password
	}

	if err := c.checkDiskSpace(destDir, parsed.TotalSize); err != nil {
		return nil, err
	}

	priority := sub.Priority
	job := &domain.Job{
		Name:        name,
		NZBMetaName: parsed.Meta.Name,
		Category:    sub.Category,
		DestDir:     destDir,
		Priority:    priority,
		PostProcess: postProcess,
		Password:    password,
		NZBHash:     parsed.ContentHash,
		TotalSize:   parsed.TotalSize,
		Status:      domain.StatusQueued,
		CreatedAt:   c.now(),
	}

	id, err := c.store.CreateJob(ctx, job, parsed.Files, parsed.Articles)
	if err != nil {
		return nil, fmt.Errorf("admission: persist job %s: %w", name, err)
	}
	job.ID = id
	job.Files = parsed.Files
	job.Articles = parsed.Articles

	// Working paths depend on the assigned job ID, so they're resolved
	// and persisted as a follow-up to the initial atomic insert.
	workDir := filepath.Join(c.cfg.TempDir, strconv.FormatInt(id, 10))
	for _, f := range parsed.Files {
		f.JobID = id
		f.PartPath = filepath.Join(workDir, f.Name+".part")
		f.FinalPath = filepath.Join(destDir, f.Name)
		if err := c.store.UpsertFile(ctx, f); err != nil {
			return nil, fmt.Errorf("admission: persist file paths for job %d: %w", id, err)
		}
	}

	c.q.Push(job.ID, job.Priority, job.CreatedAt)
	c.bus.Publish(events.Event{Kind: events.Queued, JobID: job.ID, Time: c.now()})

	return job, nil
}

// checkDuplicates walks duplicate.methods in configured order, applying
// the configured action on the first match.
func (c *Controller) checkDuplicates(ctx context.Context, nzbHash, name string) error {
	for _, method := range c.cfg.Duplicate.Methods {
		var (
			match *domain.Job
			err   error
		)
		switch method {
		case "nzb_hash":
			if nzbHash == "" {
				continue
			}
			match, err = c.store.FindJobByNZBHash(ctx, nzbHash)
		case "nzb_name", "job_name":
			match, err = c.store.FindJobByName(ctx, name)
		default:
			continue
		}

		if errors.Is(err, domain.ErrJobNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("admission: duplicate check (%s): %w", method, err)
		}
		if match == nil {
			continue
		}

		switch c.cfg.Duplicate.Action {
		case "block":
			c.bus.Publish(events.Event{Kind: events.DuplicateDetected, JobID: match.ID, Time: c.now(), Method: method, ExistingName: match.Name})
			return fmt.Errorf("%w: matches job %d (%s) via %s", domain.ErrDuplicateJob, match.ID, match.Name, method)
		case "warn":
			c.bus.Publish(events.Event{Kind: events.DuplicateDetected, JobID: match.ID, Time: c.now(), Method: method, ExistingName: match.Name})
			return nil
		default: // "allow"
			return nil
		}
	}
	return nil
}

// resolveCategory applies category-specific destination/post_process
// overrides, falling back to the global defaults.
func (c *Controller) resolveCategory(ctx context.Context, category string) (destDir string, postProcess domain.PostProcessMode) {
	destDir = c.cfg.DownloadDir
	postProcess = domain.PostProcessMode(c.cfg.DefaultPostProcess)

	if category == "" {
		return destDir, postProcess
	}

	cats, err := c.store.ListCategories(ctx)
	if err != nil {
		c.log.Warn("list categories for %s: %v", category, err)
		return destDir, postProcess
	}

	for _, cat := range cats {
		if cat.Name != category {
			continue
		}
		if cat.Destination != "" {
			destDir = cat.Destination
		}
		if cat.PostProcess != "" {
			postProcess = domain.PostProcessMode(cat.PostProcess)
		}
		break
	}

	return filepath.Clean(destDir), postProcess
}

// checkDiskSpace enforces spec.md §4.7 step 4: free_bytes >= size *
// size_multiplier + min_free_space.
func (c *Controller) checkDiskSpace(destDir string, size int64) error {
	if !c.cfg.DiskSpace.Enabled {
		return nil
	}

	free, err := c.freeBytes(destDir)
	if err != nil {
		return fmt.Errorf("admission: disk space check: %w", err)
	}

	required := int64(float64(size)*c.cfg.DiskSpace.SizeMultiplier) + c.cfg.DiskSpace.MinFreeSpace
	if int64(free) < required {
		return fmt.Errorf("%w: need %s, have %s",
			domain.ErrInsufficientDiskSpace, humanize.Bytes(uint64(required)), humanize.Bytes(free))
	}
	return nil
}
