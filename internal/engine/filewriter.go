package engine

import (
	"fmt"
	"os"
	"sync"

	"gonzbd/internal/domain"
)

type fileHandle struct {
	mu   sync.Mutex
	file *os.File
}

// FileWriter owns the open file descriptors for one Job's in-flight
// files, adapted from the teacher's internal/engine/file_writer.go to
// pre-allocate guarded by domain.File.MarkAllocated (spec.md §4.8).
type FileWriter struct {
	mu      sync.RWMutex
	handles map[string]*fileHandle
}

func NewFileWriter() *FileWriter {
	return &FileWriter{handles: make(map[string]*fileHandle)}
}

// WriteAt pre-allocates f's part file on first use, then performs a
// thread-safe positional write.
func (fw *FileWriter) WriteAt(f *domain.File, data []byte, offset int64) error {
	h, err := fw.getOrCreateFile(f.PartPath)
	if err != nil {
		return err
	}

	if f.MarkAllocated() {
		if err := h.file.Truncate(f.Size); err != nil {
			return fmt.Errorf("pre-allocate %s: %w", f.PartPath, err)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.file.WriteAt(data, offset)
	return err
}

func (fw *FileWriter) getOrCreateFile(path string) (*fileHandle, error) {
	fw.mu.RLock()
	h, ok := fw.handles[path]
	fw.mu.RUnlock()
	if ok {
		return h, nil
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	h, ok = fw.handles[path]
	if ok {
		return h, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open part file %s: %w", path, err)
	}

	h = &fileHandle{file: f}
	fw.handles[path] = h
	return h, nil
}

// CloseFile flushes and closes a single file, truncating it to finalSize
// when positive to drop any pre-allocation padding.
func (fw *FileWriter) CloseFile(path string, finalSize int64) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	h, ok := fw.handles[path]
	if !ok {
		return nil
	}
	delete(fw.handles, path)

	h.mu.Lock()
	defer h.mu.Unlock()

	if finalSize > 0 {
		if err := h.file.Truncate(finalSize); err != nil {
			return fmt.Errorf("truncate %s to final size: %w", path, err)
		}
	}
	h.file.Sync()
	return h.file.Close()
}

func (fw *FileWriter) CloseAll() {
	fw.mu.RLock()
	paths := make([]string, 0, len(fw.handles))
	for path := range fw.handles {
		paths = append(paths, path)
	}
	fw.mu.RUnlock()

	for _, path := range paths {
		_ = fw.CloseFile(path, 0)
	}
}
