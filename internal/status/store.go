// Package status persists the live status map and the run metadata as JSON
// documents that external watchers poll. Every write replaces the whole
// file; failures are logged and never interrupt the run.
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/leapstack-labs/meshflow/pkg/core"
)

// File names inside the status and metadata directories.
const (
	StatusFileName   = "status.json"
	MetadataFileName = "metadata.json"
)

// ErrPersistence wraps every failed write.
var ErrPersistence = errors.New("persistence failure")

// StatusStore holds the status of every started stage and mirrors it to
// <dir>/status.json. It implements core.StatusSink.
type StatusStore struct {
	mu     sync.Mutex
	path   string
	status core.RunStatus
	logger *slog.Logger
}

// NewStatusStore creates an empty store writing into dir.
func NewStatusStore(dir string, logger *slog.Logger) *StatusStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StatusStore{
		path:   filepath.Join(dir, StatusFileName),
		status: make(core.RunStatus),
		logger: logger,
	}
}

// Path returns the status file location.
func (s *StatusStore) Path() string { return s.path }

// Init resets the map and persists it.
func (s *StatusStore) Init() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = make(core.RunStatus)
	s.persist()
}

// Update records the state of one stage and persists the whole map.
func (s *StatusStore) Update(id core.StageID, state core.StageState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[id] = state
	s.persist()
}

// Snapshot returns a copy of the current map.
func (s *StatusStore) Snapshot() core.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.status)
}

func (s *StatusStore) persist() {
	if err := writeJSON(s.path, s.status); err != nil {
		s.logger.Warn("failed to write status file", "path", s.path, "error", err)
	}
}

// MetadataStore mirrors run metadata to <dir>/metadata.json.
type MetadataStore struct {
	path   string
	logger *slog.Logger
}

// NewMetadataStore creates a store writing into dir.
func NewMetadataStore(dir string, logger *slog.Logger) *MetadataStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MetadataStore{path: filepath.Join(dir, MetadataFileName), logger: logger}
}

// Path returns the metadata file location.
func (m *MetadataStore) Path() string { return m.path }

// Write persists meta, logging any failure.
func (m *MetadataStore) Write(meta *core.RunMetadata) {
	if err := writeJSON(m.path, meta); err != nil {
		m.logger.Warn("failed to write metadata file", "path", m.path, "error", err)
	}
}

// ReadStatus loads a status file.
func ReadStatus(path string) (core.RunStatus, error) {
	st := make(core.RunStatus)
	if err := readJSON(path, &st); err != nil {
		return nil, err
	}
	return st, nil
}

// ReadMetadata loads a metadata file.
func ReadMetadata(path string) (*core.RunMetadata, error) {
	meta := core.NewRunMetadata()
	if err := readJSON(path, meta); err != nil {
		return nil, err
	}
	if meta.StepByStepReport == nil {
		meta.StepByStepReport = make(map[core.StageID]core.StageRecord)
	}
	return meta, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // caller-provided report path
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// writeJSON replaces path with the encoding of v. Map keys are sorted by
// encoding/json, so equal values always produce equal bytes. The data goes
// to a temporary sibling first so readers never see a partial document.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrPersistence, path, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}
