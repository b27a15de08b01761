package extraction

import (
	"io/fs"
	"path/filepath"
)

// listExtractedFiles walks destDir and returns every regular file path
// under it, used by the CLI-based extractors (which don't reliably
// report per-file paths on stdout) to populate Extract's return value.
func listExtractedFiles(destDir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(destDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
