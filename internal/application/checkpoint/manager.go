package checkpoint

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/phasekit/phaserun/pkg/domain"
	"github.com/phasekit/phaserun/pkg/ports"
)

const (
	checkpointExt = ".ckpt.gz"
	indexFile     = "index.json"
)

// Config holds checkpoint manager settings.
type Config struct {
	// Dir is the directory holding checkpoint files and the index.
	Dir string
	// MaxPerProject caps how many checkpoints one project keeps on disk.
	MaxPerProject int
	// MaxAge expires checkpoints older than this; zero disables age expiry.
	MaxAge time.Duration
	// CacheSize bounds the in-memory restore cache.
	CacheSize int
	// AllowVersionMismatch selects best-effort decoding of checkpoints
	// written under an older schema version instead of refusing them.
	AllowVersionMismatch bool
}

// Manager creates, restores and expires checkpoints. The single mutex guards
// the in-memory index, the cache and read-modify-write of the on-disk index
// file, because checkpoint creation runs concurrently with ongoing execution.
type Manager struct {
	cfg     Config
	logger  *zap.Logger
	metrics ports.MetricsCollector

	mu    sync.Mutex
	index map[string]domain.CheckpointMetadata
	cache *lruCache
}

// NewManager creates a checkpoint manager rooted at cfg.Dir, loading any
// existing index from a previous process.
func NewManager(cfg Config, metrics ports.MetricsCollector, logger *zap.Logger) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, domain.Errorf(domain.ErrCheckpoint, "checkpoint directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 16
	}

	m := &Manager{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		index:   make(map[string]domain.CheckpointMetadata),
		cache:   newLRUCache(cfg.CacheSize),
	}
	if err := m.loadIndex(); err != nil {
		return nil, err
	}
	return m, nil
}

// checkpointSeq disambiguates checkpoints written within the same nanosecond.
var checkpointSeq atomic.Uint64

// checkpointID derives an id from project, execution, time and a process-wide
// sequence number.
func checkpointID(projectID, executionID string, ts time.Time) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d|%d",
		projectID, executionID, ts.UnixNano(), checkpointSeq.Add(1)))
	return hex.EncodeToString(sum[:])[:16]
}

// CreateCheckpoint serializes and compresses the state snapshot, writes it
// to a content-addressed file, updates the index and applies the retention
// policy for the project.
func (m *Manager) CreateCheckpoint(ctx context.Context, state *domain.OrchestrationState, tags ...string) (*domain.CheckpointMetadata, error) {
	return m.create(ctx, state, "", "", tags)
}

// CreatePhaseCheckpoint tags the checkpoint as phase-scoped.
func (m *Manager) CreatePhaseCheckpoint(ctx context.Context, state *domain.OrchestrationState, phaseID string) (*domain.CheckpointMetadata, error) {
	return m.create(ctx, state, phaseID, "", []string{domain.CheckpointTagPhase})
}

// CreateTaskCheckpoint tags the checkpoint as task-scoped.
func (m *Manager) CreateTaskCheckpoint(ctx context.Context, state *domain.OrchestrationState, phaseID, taskID string) (*domain.CheckpointMetadata, error) {
	return m.create(ctx, state, phaseID, taskID, []string{domain.CheckpointTagTask})
}

func (m *Manager) create(ctx context.Context, state *domain.OrchestrationState, phaseID, taskID string, tags []string) (*domain.CheckpointMetadata, error) {
	if state == nil {
		return nil, domain.Errorf(domain.ErrCheckpoint, "nil state")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	meta := domain.CheckpointMetadata{
		ID:          checkpointID(state.ProjectID, state.ExecutionID, now),
		ProjectID:   state.ProjectID,
		ExecutionID: state.ExecutionID,
		Timestamp:   now,
		PhaseID:     phaseID,
		TaskID:      taskID,
		Tags:        tags,
	}

	data := &domain.CheckpointData{
		Version:  domain.CheckpointSchemaVersion,
		Metadata: meta,
		State:    state,
		Context:  state.Context,
	}

	// First pass measures the payload so the size fields can be embedded in
	// the file itself; the ratio therefore excludes the few bytes the fields
	// add on the second pass.
	raw, compressed, err := encode(data)
	if err != nil {
		return nil, err
	}
	meta.SizeBytes = int64(len(compressed))
	if len(compressed) > 0 {
		meta.CompressionRatio = float64(len(raw)) / float64(len(compressed))
	}
	data.Metadata = meta

	if _, compressed, err = encode(data); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := writeFileAtomic(m.path(meta.ID), compressed); err != nil {
		return nil, fmt.Errorf("failed to write checkpoint: %w", err)
	}
	m.index[meta.ID] = meta
	m.cache.put(meta.ID, data)
	if err := m.saveIndexLocked(); err != nil {
		return nil, err
	}
	if err := m.applyRetentionLocked(state.ProjectID); err != nil {
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.RecordCheckpointWritten(meta.SizeBytes, meta.CompressionRatio)
	}
	m.logger.Debug("checkpoint created",
		zap.String("checkpoint_id", meta.ID),
		zap.String("execution_id", meta.ExecutionID),
		zap.Int64("size_bytes", meta.SizeBytes),
		zap.Float64("compression_ratio", meta.CompressionRatio))

	return &meta, nil
}

// encode marshals and compresses a checkpoint document.
func encode(data *domain.CheckpointData) (raw, compressed []byte, err error) {
	raw, err = json.Marshal(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, nil, fmt.Errorf("failed to compress checkpoint: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to compress checkpoint: %w", err)
	}
	return raw, buf.Bytes(), nil
}

// RestoreCheckpoint returns the checkpoint with the given id, serving from
// the memory cache when possible and repopulating it on a disk hit.
func (m *Manager) RestoreCheckpoint(ctx context.Context, id string) (*domain.CheckpointData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if data, ok := m.cache.get(id); ok {
		if m.metrics != nil {
			m.metrics.RecordCheckpointRestored(true)
		}
		return data, nil
	}

	data, err := m.readLocked(id)
	if err != nil {
		return nil, err
	}
	m.cache.put(id, data)
	if m.metrics != nil {
		m.metrics.RecordCheckpointRestored(false)
	}
	return data, nil
}

// readLocked loads, decompresses and validates a checkpoint from disk.
func (m *Manager) readLocked(id string) (*domain.CheckpointData, error) {
	compressed, err := os.ReadFile(m.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.Error{Kind: domain.ErrRecovery, Msg: fmt.Sprintf("checkpoint %s not found", id)}
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, &domain.Error{Kind: domain.ErrRecovery, Msg: fmt.Sprintf("checkpoint %s is corrupt: %v", id, err)}
	}
	raw, err := io.ReadAll(gz)
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, &domain.Error{Kind: domain.ErrRecovery, Msg: fmt.Sprintf("checkpoint %s is corrupt: %v", id, err)}
	}

	var data domain.CheckpointData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &domain.Error{Kind: domain.ErrRecovery, Msg: fmt.Sprintf("checkpoint %s failed to decode: %v", id, err)}
	}

	if data.Version != domain.CheckpointSchemaVersion {
		if !m.cfg.AllowVersionMismatch {
			return nil, &domain.Error{Kind: domain.ErrRecovery,
				Msg: fmt.Sprintf("checkpoint %s has schema version %d, want %d", id, data.Version, domain.CheckpointSchemaVersion)}
		}
		m.logger.Warn("restoring checkpoint with mismatched schema version",
			zap.String("checkpoint_id", id),
			zap.Int("version", data.Version),
			zap.Int("current_version", domain.CheckpointSchemaVersion))
	}

	if err := Validate(&data, id); err != nil {
		return nil, err
	}
	return &data, nil
}

// Validate confirms the required fields are present and the stored id
// matches the requested one.
func Validate(data *domain.CheckpointData, requestedID string) error {
	if data == nil {
		return domain.Errorf(domain.ErrCheckpoint, "nil checkpoint data")
	}
	meta := data.Metadata
	switch {
	case meta.ID == "":
		return domain.Errorf(domain.ErrCheckpoint, "checkpoint missing id")
	case requestedID != "" && meta.ID != requestedID:
		return domain.Errorf(domain.ErrCheckpoint, "checkpoint id %s does not match requested %s", meta.ID, requestedID)
	case meta.ProjectID == "":
		return domain.Errorf(domain.ErrCheckpoint, "checkpoint %s missing project id", meta.ID)
	case meta.ExecutionID == "":
		return domain.Errorf(domain.ErrCheckpoint, "checkpoint %s missing execution id", meta.ID)
	case meta.Timestamp.IsZero():
		return domain.Errorf(domain.ErrCheckpoint, "checkpoint %s missing timestamp", meta.ID)
	case data.State == nil:
		return domain.Errorf(domain.ErrCheckpoint, "checkpoint %s missing state", meta.ID)
	}
	return nil
}

// ListCheckpoints returns metadata for a project, newest first. An empty
// projectID lists everything; a non-empty tag filters by tag.
func (m *Manager) ListCheckpoints(projectID, tag string) []domain.CheckpointMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.CheckpointMetadata, 0, len(m.index))
	for _, meta := range m.index {
		if projectID != "" && meta.ProjectID != projectID {
			continue
		}
		if tag != "" && !meta.HasTag(tag) {
			continue
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// LatestCheckpoint returns the newest checkpoint metadata for a project.
func (m *Manager) LatestCheckpoint(projectID string) (*domain.CheckpointMetadata, bool) {
	all := m.ListCheckpoints(projectID, "")
	if len(all) == 0 {
		return nil, false
	}
	return &all[0], true
}

// DeleteCheckpoint removes a checkpoint file, its index entry and any cached
// copy.
func (m *Manager) DeleteCheckpoint(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(id)
}

func (m *Manager) deleteLocked(id string) error {
	if _, ok := m.index[id]; !ok {
		return domain.Errorf(domain.ErrCheckpoint, "checkpoint %s not found", id)
	}
	if err := os.Remove(m.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	delete(m.index, id)
	m.cache.remove(id)
	return m.saveIndexLocked()
}

// applyRetentionLocked enforces the per-project count cap and age expiry.
func (m *Manager) applyRetentionLocked(projectID string) error {
	var metas []domain.CheckpointMetadata
	for _, meta := range m.index {
		if meta.ProjectID == projectID {
			metas = append(metas, meta)
		}
	}
	sort.Slice(metas, func(i, j int) bool {
		if !metas[i].Timestamp.Equal(metas[j].Timestamp) {
			return metas[i].Timestamp.After(metas[j].Timestamp)
		}
		return metas[i].ID < metas[j].ID
	})

	var expired []string
	if m.cfg.MaxPerProject > 0 && len(metas) > m.cfg.MaxPerProject {
		for _, meta := range metas[m.cfg.MaxPerProject:] {
			expired = append(expired, meta.ID)
		}
		metas = metas[:m.cfg.MaxPerProject]
	}
	if m.cfg.MaxAge > 0 {
		cutoff := time.Now().UTC().Add(-m.cfg.MaxAge)
		for _, meta := range metas {
			if meta.Timestamp.Before(cutoff) {
				expired = append(expired, meta.ID)
			}
		}
	}

	for _, id := range expired {
		if err := m.deleteLocked(id); err != nil {
			return err
		}
		m.logger.Debug("checkpoint expired by retention",
			zap.String("checkpoint_id", id),
			zap.String("project_id", projectID))
	}
	return nil
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.cfg.Dir, id+checkpointExt)
}

func (m *Manager) indexPath() string {
	return filepath.Join(m.cfg.Dir, indexFile)
}

// loadIndex reads the on-disk index and drops entries whose files vanished,
// keeping the index consistent with what is actually present.
func (m *Manager) loadIndex() error {
	raw, err := os.ReadFile(m.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read checkpoint index: %w", err)
	}
	if err := json.Unmarshal(raw, &m.index); err != nil {
		return domain.Errorf(domain.ErrCheckpoint, "checkpoint index is corrupt: %v", err)
	}

	dirty := false
	for id := range m.index {
		if _, err := os.Stat(m.path(id)); os.IsNotExist(err) {
			delete(m.index, id)
			dirty = true
			m.logger.Warn("dropping index entry for missing checkpoint file",
				zap.String("checkpoint_id", id))
		}
	}
	if dirty {
		return m.saveIndexLocked()
	}
	return nil
}

func (m *Manager) saveIndexLocked() error {
	raw, err := json.MarshalIndent(m.index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint index: %w", err)
	}
	if err := writeFileAtomic(m.indexPath(), raw); err != nil {
		return fmt.Errorf("failed to write checkpoint index: %w", err)
	}
	return nil
}

// writeFileAtomic writes via a temp file and rename so a crash never leaves
// a partially written checkpoint or index behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
