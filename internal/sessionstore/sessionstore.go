// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sessionstore implements Session Storage: the checkpoint CRUD
// surface owned by a single session directory.
package sessionstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/haldane-labs/checkpointd/internal/atomicio"
	"github.com/haldane-labs/checkpointd/internal/checkpoint"
	"github.com/haldane-labs/checkpointd/internal/checkpointerr"
	"github.com/haldane-labs/checkpointd/internal/layout"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkpointSaveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkpointd_checkpoint_save_duration_seconds",
		Help:    "Time to save one checkpoint, including index and metadata updates.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"status"})

	checkpointEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkpointd_checkpoints_evicted_total",
		Help: "Total checkpoints evicted by the per-session max_checkpoints cap.",
	})
)

// Store owns one session directory: its metadata, its checkpoint index, and
// the individual checkpoint files beneath it.
type Store struct {
	root        *layout.Root
	projectHash string
	sessionID   string

	mu             sync.Mutex
	maxCheckpoints int
}

// Open returns a Store for an existing session directory, creating the
// directory (but not its metadata) if missing.
func Open(root *layout.Root, projectHash, sessionID string) (*Store, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	if err := root.EnsureSessionDir(projectHash, sessionID); err != nil {
		return nil, err
	}
	return &Store{root: root, projectHash: projectHash, sessionID: sessionID}, nil
}

// validateSessionID rejects session ids that would not round-trip through
// filepath.Join as a single path segment — empty, or containing a path
// separator or a "." / ".." component — since sessionID is joined directly
// into an on-disk directory path with no further sanitization.
func validateSessionID(sessionID string) error {
	if sessionID == "" || sessionID != filepath.Base(sessionID) || sessionID == "." || sessionID == ".." {
		return fmt.Errorf("%w: %q", checkpointerr.ErrInvalidSessionID, sessionID)
	}
	return nil
}

// SetMaxCheckpoints bounds how many checkpoints SaveCheckpoint will retain in
// this session, evicting the oldest once the cap is exceeded. n <= 0 means
// unbounded, which is also the zero-value default.
func (s *Store) SetMaxCheckpoints(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxCheckpoints = n
}

// SessionID returns the session this store owns.
func (s *Store) SessionID() string { return s.sessionID }

// ProjectHash returns the project this store's session belongs to.
func (s *Store) ProjectHash() string { return s.projectHash }

// Metadata loads the session's metadata.json.
func (s *Store) Metadata() (checkpoint.SessionMetadata, error) {
	path := s.root.SessionMetadataPath(s.projectHash, s.sessionID)
	meta, err := atomicio.ReadJSON[checkpoint.SessionMetadata](path)
	if err != nil {
		if os.IsNotExist(err) {
			return checkpoint.SessionMetadata{}, fmt.Errorf("%w: %s", checkpointerr.ErrSessionNotFound, s.sessionID)
		}
		return checkpoint.SessionMetadata{}, fmt.Errorf("%w: %s: %v", checkpointerr.ErrCorruptedData, path, err)
	}
	return meta, nil
}

// WriteMetadata persists meta to the session's metadata.json.
func (s *Store) WriteMetadata(meta checkpoint.SessionMetadata) error {
	return atomicio.WriteJSON(s.root.SessionMetadataPath(s.projectHash, s.sessionID), meta, 0o600)
}

// index loads the checkpoints.json index, returning an empty map if the
// file does not yet exist.
func (s *Store) index() (map[string]checkpoint.CheckpointMetadata, error) {
	path := s.root.SessionIndexPath(s.projectHash, s.sessionID)
	idx, err := atomicio.ReadJSON[map[string]checkpoint.CheckpointMetadata](path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]checkpoint.CheckpointMetadata{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", checkpointerr.ErrCorruptedData, path, err)
	}
	return idx, nil
}

func (s *Store) writeIndex(idx map[string]checkpoint.CheckpointMetadata) error {
	return atomicio.WriteJSON(s.root.SessionIndexPath(s.projectHash, s.sessionID), idx, 0o600)
}

// SaveCheckpoint writes cp's checkpoint file, updates the index, and bumps
// the session's checkpoint count, last-accessed time, and size.
func (s *Store) SaveCheckpoint(cp checkpoint.Checkpoint) (err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		checkpointSaveDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	cp.Metadata.SchemaVersion = checkpoint.SchemaVersion
	data, encErr := checkpoint.Encode(cp)
	if encErr != nil {
		return encErr
	}
	path := s.root.CheckpointPath(s.projectHash, s.sessionID, cp.Metadata.CheckpointID)
	if err := atomicio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("%w: %s: %v", checkpointerr.ErrAtomicOperationFailed, path, err)
	}

	idx, err := s.index()
	if err != nil {
		return err
	}
	cp.Metadata.SizeBytes = int64(len(data))
	idx[cp.Metadata.CheckpointID] = cp.Metadata

	var evictedBytes int64
	if s.maxCheckpoints > 0 && len(idx) > s.maxCheckpoints {
		evictCount := len(idx) - s.maxCheckpoints
		evictedBytes, err = s.evictOldestLocked(idx, evictCount)
		if err != nil {
			return err
		}
		checkpointEvictedTotal.Add(float64(evictCount))
	}

	if err := s.writeIndex(idx); err != nil {
		return err
	}

	meta, err := s.Metadata()
	if err != nil && !isNotFound(err) {
		return err
	}
	meta.SessionID = s.sessionID
	meta.ProjectHash = s.projectHash
	meta.CheckpointCount = len(idx)
	meta.LastAccessed = time.Now().UTC()
	meta.SizeBytes += cp.Metadata.SizeBytes - evictedBytes
	if meta.SizeBytes < 0 {
		meta.SizeBytes = 0
	}
	return s.WriteMetadata(meta)
}

// evictOldestLocked removes the n oldest entries from idx (by CreatedAt, then
// CheckpointID as a tie-breaker, matching ListCheckpoints' ordering) and
// returns the total bytes freed. Callers hold s.mu.
func (s *Store) evictOldestLocked(idx map[string]checkpoint.CheckpointMetadata, n int) (int64, error) {
	victims := make([]checkpoint.CheckpointMetadata, 0, len(idx))
	for _, m := range idx {
		victims = append(victims, m)
	}
	sort.Slice(victims, func(i, j int) bool {
		if !victims[i].CreatedAt.Equal(victims[j].CreatedAt) {
			return victims[i].CreatedAt.Before(victims[j].CreatedAt)
		}
		return victims[i].CheckpointID < victims[j].CheckpointID
	})

	var freed int64
	for i := 0; i < n && i < len(victims); i++ {
		id := victims[i].CheckpointID
		delete(idx, id)
		path := s.root.CheckpointPath(s.projectHash, s.sessionID, id)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return freed, fmt.Errorf("%w: %s: %v", checkpointerr.ErrAtomicOperationFailed, path, err)
		}
		freed += victims[i].SizeBytes
	}
	return freed, nil
}

// LoadCheckpoint reads and decodes a single checkpoint by id.
func (s *Store) LoadCheckpoint(id string) (checkpoint.Checkpoint, error) {
	path := s.root.CheckpointPath(s.projectHash, s.sessionID, id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return checkpoint.Checkpoint{}, fmt.Errorf("%w: %s", checkpointerr.ErrCheckpointNotFound, id)
		}
		return checkpoint.Checkpoint{}, fmt.Errorf("%w: %s: %v", checkpointerr.ErrCorruptedData, path, err)
	}
	return checkpoint.Decode(path, data)
}

// ListCheckpoints returns the index's entries sorted by CreatedAt ascending,
// with CheckpointID as a stable tie-breaker.
func (s *Store) ListCheckpoints() ([]checkpoint.CheckpointMetadata, error) {
	idx, err := s.index()
	if err != nil {
		return nil, err
	}
	out := make([]checkpoint.CheckpointMetadata, 0, len(idx))
	for _, m := range idx {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CheckpointID < out[j].CheckpointID
	})
	return out, nil
}

// DeleteCheckpoint removes a checkpoint file and updates the index and
// session metadata accordingly.
func (s *Store) DeleteCheckpoint(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.index()
	if err != nil {
		return err
	}
	removed, ok := idx[id]
	if !ok {
		return fmt.Errorf("%w: %s", checkpointerr.ErrCheckpointNotFound, id)
	}
	delete(idx, id)

	path := s.root.CheckpointPath(s.projectHash, s.sessionID, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %s: %v", checkpointerr.ErrAtomicOperationFailed, path, err)
	}
	if err := s.writeIndex(idx); err != nil {
		return err
	}

	meta, err := s.Metadata()
	if err != nil {
		return err
	}
	meta.CheckpointCount = len(idx)
	meta.SizeBytes -= removed.SizeBytes
	if meta.SizeBytes < 0 {
		meta.SizeBytes = 0
	}
	meta.LastAccessed = time.Now().UTC()
	return s.WriteMetadata(meta)
}

// SynchronizeMetadata recomputes checkpoint count and total size from the
// files actually on disk and rewrites metadata.json if either changed.
func (s *Store) SynchronizeMetadata() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.index()
	if err != nil {
		return err
	}
	var total int64
	count := 0
	for id := range idx {
		path := s.root.CheckpointPath(s.projectHash, s.sessionID, id)
		if info, err := os.Stat(path); err == nil {
			total += info.Size()
			count++
		}
	}

	meta, err := s.Metadata()
	if err != nil {
		return err
	}
	if meta.CheckpointCount == count && meta.SizeBytes == total {
		return nil
	}
	meta.CheckpointCount = count
	meta.SizeBytes = total
	return s.WriteMetadata(meta)
}

// RepairAction describes one corrective step validate_and_repair took.
type RepairAction struct {
	Kind         string `json:"kind"` // "removed_missing_index_entry" | "orphaned_file"
	CheckpointID string `json:"checkpoint_id"`
}

// ValidateAndRepair scans the session directory against the index: index
// entries whose file is missing are dropped, files on disk with no index
// entry are reported (but never deleted), and the index and metadata are
// rewritten if anything changed.
func (s *Store) ValidateAndRepair() ([]RepairAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.index()
	if err != nil {
		return nil, err
	}

	var actions []RepairAction
	changed := false
	for id := range idx {
		path := s.root.CheckpointPath(s.projectHash, s.sessionID, id)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			delete(idx, id)
			actions = append(actions, RepairAction{Kind: "removed_missing_index_entry", CheckpointID: id})
			changed = true
		}
	}

	dir := s.root.SessionDir(s.projectHash, s.sessionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", checkpointerr.ErrAtomicOperationFailed, dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == "metadata.json" || name == "checkpoints.json" {
			continue
		}
		id := stripJSONExt(name)
		if _, ok := idx[id]; !ok {
			actions = append(actions, RepairAction{Kind: "orphaned_file", CheckpointID: id})
		}
	}

	if changed {
		if err := s.writeIndex(idx); err != nil {
			return actions, err
		}
		meta, err := s.Metadata()
		if err != nil {
			return actions, err
		}
		meta.CheckpointCount = len(idx)
		if err := s.WriteMetadata(meta); err != nil {
			return actions, err
		}
	}
	return actions, nil
}

func stripJSONExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

func isNotFound(err error) bool {
	return errors.Is(err, checkpointerr.ErrSessionNotFound)
}
