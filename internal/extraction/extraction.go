// Package extraction implements the Extract stage's archive handling
// (spec.md §4.10/§6): per-format extractors selected by magic-byte
// signature, not extension alone.
package extraction

import "context"

// Extractor handles one archive format.
type Extractor interface {
	// Extract extracts the archive at the given path to the destination
	// directory, trying password if the archive is encrypted. Returns
	// the list of extracted file paths, or an error if extraction fails.
	Extract(ctx context.Context, archivePath, destDir, password string) ([]string, error)

	// CanExtract checks if this extractor can handle the given file.
	CanExtract(filename string) (bool, error)

	// Name returns the human-readable name of this extractor (e.g. "RAR", "ZIP")
	Name() string
}

// ErrWrongPassword distinguishes a failed password attempt from a hard
// extraction failure, so the Extract stage's password-trial loop
// (spec.md §4.10) knows to try the next candidate instead of failing
// the job outright.
type ErrWrongPassword struct {
	Archive string
}

func (e *ErrWrongPassword) Error() string {
	return "extraction: wrong password for " + e.Archive
}
