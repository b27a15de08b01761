package postprocess

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gonzbd/internal/domain"
	"gonzbd/internal/events"
)

// runCleanup deletes files matching cleanup.target_extensions, and
// (when extraction succeeded) cleanup.archive_extensions, plus sample
// folders when delete_samples is set. Cleanup errors are warnings, never
// fatal, per spec.md §4.10.
func (p *Pipeline) runCleanup(ctx context.Context, job *domain.Job, extractionSucceeded bool) error {
	p.bus.Publish(events.Event{Kind: events.Cleaning, JobID: job.ID})

	targets := toExtSet(p.cfg.Cleanup.TargetExtensions)
	if extractionSucceeded {
		for ext := range toExtSet(p.cfg.Cleanup.ArchiveExtensions) {
			targets[ext] = struct{}{}
		}
	}

	root := job.DestDir
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || ctx.Err() != nil {
			return nil
		}
		if d.IsDir() {
			if p.cfg.DeleteSamples && isSampleFolder(d.Name(), p.cfg.Cleanup.SampleFolderNames) {
				if err := os.RemoveAll(path); err != nil {
					p.log.Warn("job %d: remove sample folder %s: %v", job.ID, path, err)
				}
				return filepath.SkipDir
			}
			return nil
		}
		if matchesExtension(path, targets) {
			if err := os.Remove(path); err != nil {
				p.log.Warn("job %d: cleanup remove %s: %v", job.ID, path, err)
			}
		}
		return nil
	})

	return nil
}

func toExtSet(exts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		out[strings.ToLower(e)] = struct{}{}
	}
	return out
}

// matchesExtension checks a filename against the cleanup list
// case-insensitively, adapted from the teacher's
// internal/processor/fs.go:cleanupExtensions.
func matchesExtension(fileName string, targets map[string]struct{}) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	_, ok := targets[ext]
	return ok
}

// isSampleFolder matches case-sensitively, per spec.md §4.10.
func isSampleFolder(name string, sampleNames []string) bool {
	for _, s := range sampleNames {
		if name == s {
			return true
		}
	}
	return false
}
