package checkpoint

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/phasekit/phaserun/pkg/domain"
)

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	m, err := NewManager(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	return m
}

func sampleState(executionID string) *domain.OrchestrationState {
	return &domain.OrchestrationState{
		ExecutionID:     executionID,
		ProjectID:       "proj-1",
		StartTime:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		CurrentPhase:    "p2",
		CompletedPhases: []string{"p1"},
		FailedPhases:    []string{},
		PhaseResults: map[string]*domain.PhaseResult{
			"p1": {
				PhaseID:  "p1",
				Status:   domain.StatusCompleted,
				Attempts: 1,
			},
		},
		Context: map[string]any{"mode": "checkpoint"},
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	m := newTestManager(t, Config{})
	state := sampleState("exec-1")

	meta, err := m.CreateCheckpoint(context.Background(), state)
	require.NoError(t, err)
	assert.NotEmpty(t, meta.ID)
	assert.Greater(t, meta.SizeBytes, int64(0))
	assert.Greater(t, meta.CompressionRatio, 0.0)

	data, err := m.RestoreCheckpoint(context.Background(), meta.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckpointSchemaVersion, data.Version)
	assert.Equal(t, state.ExecutionID, data.State.ExecutionID)
	assert.Equal(t, state.CompletedPhases, data.State.CompletedPhases)
	assert.Equal(t, state.CurrentPhase, data.State.CurrentPhase)
	require.Contains(t, data.State.PhaseResults, "p1")
	assert.Equal(t, domain.StatusCompleted, data.State.PhaseResults["p1"].Status)
}

func TestRestoreRoundTripSurvivesProcessRestart(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, Config{Dir: dir})
	meta, err := m.CreateCheckpoint(context.Background(), sampleState("exec-1"))
	require.NoError(t, err)

	// A fresh manager over the same directory simulates a new process.
	fresh := newTestManager(t, Config{Dir: dir})
	data, err := fresh.RestoreCheckpoint(context.Background(), meta.ID)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", data.State.ExecutionID)
}

func TestRestoreServesFromCache(t *testing.T) {
	m := newTestManager(t, Config{})
	meta, err := m.CreateCheckpoint(context.Background(), sampleState("exec-1"))
	require.NoError(t, err)

	// Removing the backing file proves the next restore never touches disk.
	require.NoError(t, os.Remove(m.path(meta.ID)))

	data, err := m.RestoreCheckpoint(context.Background(), meta.ID)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", data.State.ExecutionID)
}

func TestRestoreMissingCheckpoint(t *testing.T) {
	m := newTestManager(t, Config{})
	_, err := m.RestoreCheckpoint(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, domain.ErrRecovery)
}

func TestCacheEvictsOldestByTimestamp(t *testing.T) {
	cache := newLRUCache(2)
	mk := func(id string, ts time.Time) *domain.CheckpointData {
		return &domain.CheckpointData{Metadata: domain.CheckpointMetadata{ID: id, Timestamp: ts}}
	}
	base := time.Now()
	cache.put("a", mk("a", base))
	cache.put("b", mk("b", base.Add(time.Second)))
	cache.put("c", mk("c", base.Add(2*time.Second)))

	_, ok := cache.get("a")
	assert.False(t, ok, "oldest entry must be evicted")
	_, ok = cache.get("b")
	assert.True(t, ok)
	_, ok = cache.get("c")
	assert.True(t, ok)
}

func TestRetentionCapsCountPerProject(t *testing.T) {
	const keep = 3
	m := newTestManager(t, Config{MaxPerProject: keep})

	var ids []string
	for i := 0; i < keep+5; i++ {
		meta, err := m.CreateCheckpoint(context.Background(), sampleState("exec-1"))
		require.NoError(t, err)
		ids = append(ids, meta.ID)
		time.Sleep(2 * time.Millisecond) // distinct timestamps for ordering
	}

	remaining := m.ListCheckpoints("proj-1", "")
	require.Len(t, remaining, keep)

	// The survivors are exactly the most recent ones.
	want := ids[len(ids)-keep:]
	for _, meta := range remaining {
		assert.Contains(t, want, meta.ID)
	}

	// Disk agrees with the index.
	entries, err := filepath.Glob(filepath.Join(m.cfg.Dir, "*"+checkpointExt))
	require.NoError(t, err)
	assert.Len(t, entries, keep)
}

func TestRetentionExpiresByAge(t *testing.T) {
	m := newTestManager(t, Config{MaxAge: time.Hour})

	meta, err := m.CreateCheckpoint(context.Background(), sampleState("exec-1"))
	require.NoError(t, err)

	// Backdate the entry beyond the age limit, then trigger a retention pass
	// with a fresh write.
	m.mu.Lock()
	old := m.index[meta.ID]
	old.Timestamp = time.Now().UTC().Add(-2 * time.Hour)
	m.index[meta.ID] = old
	m.mu.Unlock()

	_, err = m.CreateCheckpoint(context.Background(), sampleState("exec-1"))
	require.NoError(t, err)

	remaining := m.ListCheckpoints("proj-1", "")
	require.Len(t, remaining, 1)
	assert.NotEqual(t, meta.ID, remaining[0].ID)
}

func TestScopedCheckpointTags(t *testing.T) {
	m := newTestManager(t, Config{})
	state := sampleState("exec-1")

	_, err := m.CreatePhaseCheckpoint(context.Background(), state, "p2")
	require.NoError(t, err)
	_, err = m.CreateTaskCheckpoint(context.Background(), state, "p2", "t1")
	require.NoError(t, err)
	_, err = m.CreateCheckpoint(context.Background(), state)
	require.NoError(t, err)

	phaseScoped := m.ListCheckpoints("proj-1", domain.CheckpointTagPhase)
	require.Len(t, phaseScoped, 1)
	assert.Equal(t, "p2", phaseScoped[0].PhaseID)

	taskScoped := m.ListCheckpoints("proj-1", domain.CheckpointTagTask)
	require.Len(t, taskScoped, 1)
	assert.Equal(t, "t1", taskScoped[0].TaskID)

	all := m.ListCheckpoints("proj-1", "")
	assert.Len(t, all, 3)
}

func TestDeleteCheckpoint(t *testing.T) {
	m := newTestManager(t, Config{})
	meta, err := m.CreateCheckpoint(context.Background(), sampleState("exec-1"))
	require.NoError(t, err)

	require.NoError(t, m.DeleteCheckpoint(meta.ID))
	_, err = m.RestoreCheckpoint(context.Background(), meta.ID)
	require.ErrorIs(t, err, domain.ErrRecovery)

	err = m.DeleteCheckpoint(meta.ID)
	require.ErrorIs(t, err, domain.ErrCheckpoint)
}

func TestIndexDropsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, Config{Dir: dir})
	meta, err := m.CreateCheckpoint(context.Background(), sampleState("exec-1"))
	require.NoError(t, err)

	require.NoError(t, os.Remove(m.path(meta.ID)))

	fresh := newTestManager(t, Config{Dir: dir})
	assert.Empty(t, fresh.ListCheckpoints("proj-1", ""))
}

func TestRestoreRefusesVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, Config{Dir: dir})

	// Hand-craft a checkpoint written under a future schema version.
	data := &domain.CheckpointData{
		Version: domain.CheckpointSchemaVersion + 1,
		Metadata: domain.CheckpointMetadata{
			ID:          "aaaa000011112222",
			ProjectID:   "proj-1",
			ExecutionID: "exec-1",
			Timestamp:   time.Now().UTC(),
		},
		State: sampleState("exec-1"),
	}
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err = gz.Write(raw)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(m.path(data.Metadata.ID), buf.Bytes(), 0o644))
	m.mu.Lock()
	m.index[data.Metadata.ID] = data.Metadata
	m.mu.Unlock()

	_, err = m.RestoreCheckpoint(context.Background(), data.Metadata.ID)
	require.ErrorIs(t, err, domain.ErrRecovery)

	// With mismatches allowed the same checkpoint decodes best-effort.
	lenient := newTestManager(t, Config{Dir: dir, AllowVersionMismatch: true})
	lenient.mu.Lock()
	lenient.index[data.Metadata.ID] = data.Metadata
	lenient.mu.Unlock()
	restored, err := lenient.RestoreCheckpoint(context.Background(), data.Metadata.ID)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", restored.State.ExecutionID)
}

func TestExportImport(t *testing.T) {
	src := newTestManager(t, Config{})
	meta, err := src.CreateCheckpoint(context.Background(), sampleState("exec-1"))
	require.NoError(t, err)

	pkg := filepath.Join(t.TempDir(), "export.ckpt.gz")
	require.NoError(t, src.ExportToFile(meta.ID, pkg))

	dst := newTestManager(t, Config{})
	imported, err := dst.ImportFromFile(pkg)
	require.NoError(t, err)
	assert.Equal(t, meta.ID, imported.ID)

	// The exported file embeds the derived size fields, so the importing
	// index must agree with what the writer recorded.
	assert.Equal(t, meta.SizeBytes, imported.SizeBytes)
	assert.Greater(t, imported.SizeBytes, int64(0))
	assert.Greater(t, imported.CompressionRatio, 0.0)

	data, err := dst.RestoreCheckpoint(context.Background(), meta.ID)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", data.State.ExecutionID)
	assert.Equal(t, []string{"p1"}, data.State.CompletedPhases)
}

func TestStoredMetadataCarriesDerivedSizes(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, Config{Dir: dir})
	meta, err := m.CreateCheckpoint(context.Background(), sampleState("exec-1"))
	require.NoError(t, err)

	// Re-read from disk through a fresh manager so the cached document
	// cannot mask what the file actually contains.
	fresh := newTestManager(t, Config{Dir: dir})
	data, err := fresh.RestoreCheckpoint(context.Background(), meta.ID)
	require.NoError(t, err)
	assert.Equal(t, meta.SizeBytes, data.Metadata.SizeBytes)
	assert.Equal(t, meta.CompressionRatio, data.Metadata.CompressionRatio)
	assert.Greater(t, data.Metadata.SizeBytes, int64(0))
}

func TestCheckpointIDsNeverCollide(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := checkpointID("proj-1", "exec-1", ts)
		_, dup := seen[id]
		require.False(t, dup, "id %s repeated for identical inputs", id)
		seen[id] = struct{}{}
	}
}

func TestValidateRejectsIDMismatch(t *testing.T) {
	data := &domain.CheckpointData{
		Version: domain.CheckpointSchemaVersion,
		Metadata: domain.CheckpointMetadata{
			ID:          "abc",
			ProjectID:   "proj-1",
			ExecutionID: "exec-1",
			Timestamp:   time.Now(),
		},
		State: sampleState("exec-1"),
	}
	require.NoError(t, Validate(data, "abc"))
	err := Validate(data, "other")
	require.ErrorIs(t, err, domain.ErrCheckpoint)
}
