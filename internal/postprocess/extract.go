package postprocess

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonzbd/internal/domain"
	"gonzbd/internal/events"
	"gonzbd/internal/extraction"
	"gonzbd/internal/namer"
)

// runExtract walks job's working directory for archives and extracts
// each, trying passwords in spec.md §4.10's order, recursing into
// nested archives up to max_recursion_depth. Returns the number of
// archives successfully extracted.
func (p *Pipeline) runExtract(ctx context.Context, job *domain.Job) (int, error) {
	dir := p.workDir(job)
	archives, err := p.findArchives(dir)
	if err != nil {
		return 0, err
	}
	if len(archives) == 0 {
		return 0, nil
	}

	p.bus.Publish(events.Event{Kind: events.Extracting, JobID: job.ID})

	extracted := 0
	for _, archivePath := range archives {
		if ctx.Err() != nil {
			return extracted, ctx.Err()
		}
		if err := p.extractOne(ctx, job, archivePath, dir, 0); err != nil {
			return extracted, fmt.Errorf("extract %s: %w", archivePath, err)
		}
		extracted++
	}

	p.bus.Publish(events.Event{Kind: events.ExtractComplete, JobID: job.ID})

	if largest := p.largestFile(dir); largest != "" {
		finalName := namer.ChooseName(job.Name, job.NZBMetaName, filepath.Base(largest), p.cfg.Deobfuscation)
		if finalName != job.Name {
			job.Name = finalName
		}
	}

	return extracted, nil
}

// extractOne extracts one archive into a unique subdirectory and, when
// depth allows, recurses into archives found inside it.
func (p *Pipeline) extractOne(ctx context.Context, job *domain.Job, archivePath, parentDir string, depth int) error {
	extractor, err := p.manager.Detect(archivePath)
	if err != nil {
		return err
	}
	if extractor == nil {
		return nil
	}

	destDir := filepath.Join(parentDir, "extracted-"+sanitizeDirName(filepath.Base(archivePath)))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	password, err := p.extractWithPasswordTrials(ctx, extractor, job, archivePath, destDir)
	if err != nil {
		return err
	}
	if password != "" {
		job.PasswordSet = append([]string{password}, job.PasswordSet...)
	}

	if depth >= p.cfg.Extraction.MaxRecursionDepth {
		return nil
	}

	nested, err := p.findArchives(destDir)
	if err != nil {
		return err
	}
	for _, n := range nested {
		if err := p.extractOne(ctx, job, n, destDir, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// extractWithPasswordTrials tries candidates in spec.md §4.10's order:
// per-job cached success, per-job supplied, NZB meta (already folded
// into job.Password by Admission), global password file, then empty
// when try_empty_password allows it.
func (p *Pipeline) extractWithPasswordTrials(ctx context.Context, extractor extraction.Extractor, job *domain.Job, archivePath, destDir string) (string, error) {
	candidates := p.passwordCandidates(job)

	var lastErr error
	for _, pw := range candidates {
		_, err := extractor.Extract(ctx, archivePath, destDir, pw)
		if err == nil {
			return pw, nil
		}
		var wrongPw *extraction.ErrWrongPassword
		if errors.As(err, &wrongPw) {
			lastErr = err
			continue
		}
		return "", err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("extraction: no password candidates available for %s", archivePath)
	}
	return "", lastErr
}

func (p *Pipeline) passwordCandidates(job *domain.Job) []string {
	var candidates []string
	candidates = append(candidates, job.PasswordSet...)
	if job.Password != "" {
		candidates = append(candidates, job.Password)
	}
	candidates = append(candidates, loadPasswordFile(p.cfg.PasswordFile)...)
	if p.cfg.TryEmptyPassword {
		candidates = append(candidates, "")
	}
	return dedup(candidates)
}

func loadPasswordFile(path string) []string {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// findArchives walks dir for files matching extraction.archive_extensions.
func (p *Pipeline) findArchives(dir string) ([]string, error) {
	exts := make(map[string]struct{}, len(p.cfg.Extraction.ArchiveExtensions))
	for _, e := range p.cfg.Extraction.ArchiveExtensions {
		exts[strings.ToLower(e)] = struct{}{}
	}

	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := exts[strings.ToLower(filepath.Ext(path))]; ok {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) largestFile(dir string) string {
	var largestPath string
	var largestSize int64
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		// Only files under extractOne's extracted-* directories count, not
		// the archives themselves.
		if rel, relErr := filepath.Rel(dir, path); relErr != nil || !strings.HasPrefix(rel, "extracted-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > largestSize {
			largestSize = info.Size()
			largestPath = path
		}
		return nil
	})
	return largestPath
}

func sanitizeDirName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
