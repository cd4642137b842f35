package checkpoint

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/phasekit/phaserun/pkg/domain"
)

// Export streams a single checkpoint as a portable compressed package. The
// on-disk format is already a self-contained gzip document, so the file is
// copied verbatim.
func (m *Manager) Export(id string, w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.index[id]; !ok {
		return domain.Errorf(domain.ErrCheckpoint, "checkpoint %s not found", id)
	}
	f, err := os.Open(m.path(id))
	if err != nil {
		return fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to export checkpoint: %w", err)
	}
	return nil
}

// ExportToFile writes a checkpoint package to the given path.
func (m *Manager) ExportToFile(id, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := m.Export(id, f); err != nil {
		return err
	}
	return f.Sync()
}

// Import reads a checkpoint package, validates it and registers it under its
// original id. Importing an id that already exists overwrites it.
func (m *Manager) Import(r io.Reader) (*domain.CheckpointMetadata, error) {
	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint package: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, domain.Errorf(domain.ErrCheckpoint, "checkpoint package is not a valid compressed file: %v", err)
	}
	raw, err := io.ReadAll(gz)
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, domain.Errorf(domain.ErrCheckpoint, "checkpoint package is corrupt: %v", err)
	}

	var data domain.CheckpointData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, domain.Errorf(domain.ErrCheckpoint, "checkpoint package failed to decode: %v", err)
	}
	if err := Validate(&data, ""); err != nil {
		return nil, err
	}
	if data.Version != domain.CheckpointSchemaVersion && !m.cfg.AllowVersionMismatch {
		return nil, domain.Errorf(domain.ErrCheckpoint,
			"checkpoint package has schema version %d, want %d", data.Version, domain.CheckpointSchemaVersion)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := writeFileAtomic(m.path(data.Metadata.ID), compressed); err != nil {
		return nil, fmt.Errorf("failed to write imported checkpoint: %w", err)
	}
	m.index[data.Metadata.ID] = data.Metadata
	m.cache.put(data.Metadata.ID, &data)
	if err := m.saveIndexLocked(); err != nil {
		return nil, err
	}

	m.logger.Info("checkpoint imported",
		zap.String("checkpoint_id", data.Metadata.ID),
		zap.String("project_id", data.Metadata.ProjectID))

	meta := data.Metadata
	return &meta, nil
}

// ImportFromFile reads a checkpoint package from the given path.
func (m *Manager) ImportFromFile(path string) (*domain.CheckpointMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint package: %w", err)
	}
	defer f.Close()
	return m.Import(f)
}
