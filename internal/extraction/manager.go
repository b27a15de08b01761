package extraction

import (
	"fmt"

	"gonzbd/internal/config"
)

// Manager selects the first Extractor that recognizes a given archive,
// adapted from the teacher's internal/processor/detector.go Manager.
type Manager struct {
	extractors []Extractor
}

// NewManager builds a Manager from configured binary paths, skipping
// any extractor whose binary isn't found. ZIP is always available
// since it runs in-process.
func NewManager(cfg *config.Config) *Manager {
	m := &Manager{extractors: []Extractor{NewInProcessZip()}}

	if rar, err := newCLIUnrarFrom(cfg); err == nil {
		m.extractors = append(m.extractors, rar)
	}
	if sevenZip, err := newCLI7zFrom(cfg); err == nil {
		m.extractors = append(m.extractors, sevenZip)
	}
	return m
}

func newCLIUnrarFrom(cfg *config.Config) (*CLIUnrar, error) {
	if cfg.UnrarPath != "" {
		return &CLIUnrar{BinaryPath: cfg.UnrarPath}, nil
	}
	if !cfg.SearchPath {
		return nil, fmt.Errorf("unrar: no path configured and search_path disabled")
	}
	return NewCLIUnrar()
}

func newCLI7zFrom(cfg *config.Config) (*CLI7z, error) {
	if cfg.SevenZipPath != "" {
		return &CLI7z{BinaryPath: cfg.SevenZipPath}, nil
	}
	if !cfg.SearchPath {
		return nil, fmt.Errorf("7z: no path configured and search_path disabled")
	}
	return NewCLI7z()
}

// AvailableExtractors lists the names of usable extractors.
func (m *Manager) AvailableExtractors() []string {
	names := make([]string, 0, len(m.extractors))
	for _, e := range m.extractors {
		names = append(names, e.Name())
	}
	return names
}

// Detect returns the first Extractor claiming it can handle path, or
// nil if none can.
func (m *Manager) Detect(path string) (Extractor, error) {
	for _, e := range m.extractors {
		ok, err := e.CanExtract(path)
		if err != nil {
			return nil, err
		}
		if ok {
			return e, nil
		}
	}
	return nil, nil
}
