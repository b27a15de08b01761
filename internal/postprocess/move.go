package postprocess

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gonzbd/internal/domain"
	"gonzbd/internal/events"
)

// runMove relocates every file under job's working directory to
// job.DestDir, resolving name collisions per config.file_collision,
// adapted from the teacher's internal/processor/fs.go moveFile/
// moveCrossDevice.
func (p *Pipeline) runMove(ctx context.Context, job *domain.Job) error {
	p.bus.Publish(events.Event{Kind: events.Moving, JobID: job.ID})

	dir := p.workDir(job)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil // nothing was ever written under this job's working directory
	}
	if err := os.MkdirAll(job.DestDir, 0o755); err != nil {
		return fmt.Errorf("create destination %s: %w", job.DestDir, err)
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		// Files still carrying the in-flight ".part" suffix (no Extract
		// stage ran to replace them with their archive's real contents)
		// land at their bare download name, matching domain.File.PartPath's
		// "<name>.part" convention set at admission.
		rel := strings.TrimSuffix(relBase(dir, path), ".part")

		destPath, err := p.resolveCollision(filepath.Join(job.DestDir, rel))
		if err != nil {
			return err
		}
		if destPath == "" {
			return nil // skip policy: leave source in place
		}
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}
		return moveFile(path, destPath)
	})
}

func relBase(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return filepath.Base(path)
	}
	return rel
}

// resolveCollision applies config.FileCollision to destPath, returning
// the path to actually write to, or "" to signal skip.
func (p *Pipeline) resolveCollision(destPath string) (string, error) {
	if _, err := os.Stat(destPath); os.IsNotExist(err) {
		return destPath, nil
	}

	switch p.cfg.FileCollision {
	case "overwrite":
		return destPath, nil
	case "skip":
		return "", nil
	default: // "rename"
		ext := filepath.Ext(destPath)
		base := strings.TrimSuffix(destPath, ext)
		for n := 1; ; n++ {
			candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
			if _, err := os.Stat(candidate); os.IsNotExist(err) {
				return candidate, nil
			}
		}
	}
}

// moveFile tries a rename first, falling back to a copy across devices.
func moveFile(source, dest string) error {
	if err := os.Rename(source, dest); err == nil {
		return nil
	}
	return moveCrossDevice(source, dest)
}

func moveCrossDevice(sourcePath, destPath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	tempDest := filepath.Join(filepath.Dir(destPath), "."+filepath.Base(destPath)+".tmp")
	dst, err := os.Create(tempDest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}
	dst.Close()
	src.Close()

	if err := os.Rename(tempDest, destPath); err != nil {
		os.Remove(tempDest)
		return err
	}
	return os.Remove(sourcePath)
}
