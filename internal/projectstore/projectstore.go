// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package projectstore implements Project Storage: the per-project session
// directory owner, with a short-TTL session-list cache guarded by a
// reader-writer lock, and an optional fsnotify watcher for cache
// invalidation on changes made outside this process.
package projectstore

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/haldane-labs/checkpointd/internal/atomicio"
	"github.com/haldane-labs/checkpointd/internal/checkpoint"
	"github.com/haldane-labs/checkpointd/internal/checkpointerr"
	"github.com/haldane-labs/checkpointd/internal/layout"
	"github.com/haldane-labs/checkpointd/internal/sessionstore"
)

// SessionListTTL is how long the cached, sorted session list is trusted
// before a read forces a re-scan of the project's sessions directory.
const SessionListTTL = 30 * time.Second

// Store owns a project directory: its metadata and the sessions beneath it.
type Store struct {
	root        *layout.Root
	projectHash string

	cacheMu    sync.RWMutex
	cached     []checkpoint.SessionMetadata
	cachedAt   time.Time
}

// Open returns a Store for an existing or new project directory.
func Open(root *layout.Root, projectHash string) (*Store, error) {
	if err := root.EnsureProjectDirs(projectHash); err != nil {
		return nil, err
	}
	return &Store{root: root, projectHash: projectHash}, nil
}

// ProjectHash returns the project this store owns.
func (s *Store) ProjectHash() string { return s.projectHash }

// Metadata loads the project's metadata.json.
func (s *Store) Metadata() (checkpoint.ProjectMetadata, error) {
	path := s.root.ProjectMetadataPath(s.projectHash)
	meta, err := atomicio.ReadJSON[checkpoint.ProjectMetadata](path)
	if err != nil {
		if os.IsNotExist(err) {
			return checkpoint.ProjectMetadata{}, fmt.Errorf("%w: %s", checkpointerr.ErrProjectNotFound, s.projectHash)
		}
		return checkpoint.ProjectMetadata{}, fmt.Errorf("%w: %s: %v", checkpointerr.ErrCorruptedData, path, err)
	}
	return meta, nil
}

// WriteMetadata persists meta to the project's metadata.json.
func (s *Store) WriteMetadata(meta checkpoint.ProjectMetadata) error {
	return atomicio.WriteJSON(s.root.ProjectMetadataPath(s.projectHash), meta, 0o600)
}

// RecordProjectPath ensures this project's metadata.json carries
// canonicalPath, initializing metadata.json on first use. Because the
// project hash truncates SHA-256 to 64 bits, two distinct canonical paths
// can in principle land on the same hash and therefore the same project
// directory; if this directory's previously recorded path disagrees with
// canonicalPath, RecordProjectPath refuses to silently rewrite it and
// returns a HashCollisionError instead of aliasing two projects' sessions
// together.
func (s *Store) RecordProjectPath(canonicalPath string) error {
	meta, err := s.Metadata()
	if err != nil {
		if !errors.Is(err, checkpointerr.ErrProjectNotFound) {
			return err
		}
		now := time.Now().UTC()
		meta = checkpoint.ProjectMetadata{ProjectHash: s.projectHash, ProjectPath: canonicalPath, CreatedAt: now, LastAccessed: now}
		return s.WriteMetadata(meta)
	}
	if meta.ProjectPath == "" {
		meta.ProjectPath = canonicalPath
		return s.WriteMetadata(meta)
	}
	if meta.ProjectPath != canonicalPath {
		return &checkpointerr.HashCollisionError{PathA: meta.ProjectPath, PathB: canonicalPath, Hash: s.projectHash}
	}
	return nil
}

// OpenSession opens (creating if necessary) the SessionStorage for
// sessionID, and invalidates the cached session list since a new session
// directory may now exist.
func (s *Store) OpenSession(sessionID string) (*sessionstore.Store, error) {
	store, err := sessionstore.Open(s.root, s.projectHash, sessionID)
	if err != nil {
		return nil, err
	}
	s.invalidate()
	return store, nil
}

// DeleteSession removes a session's directory entirely and invalidates the
// cached list. It refuses to remove a session whose metadata marks it
// active or tagged — the same preservation flags the Cleanup Engine always
// honors — returning a RetentionPolicyViolationError instead of silently
// deleting protected state. A session with no readable metadata is treated
// as unprotected and deleted as before.
func (s *Store) DeleteSession(sessionID string) error {
	if sess, openErr := sessionstore.Open(s.root, s.projectHash, sessionID); openErr == nil {
		if meta, metaErr := sess.Metadata(); metaErr == nil && meta.Preserved(true, true) {
			return &checkpointerr.RetentionPolicyViolationError{
				SessionID: sessionID,
				Reason:    "session is active or tagged",
			}
		}
	}

	dir := s.root.SessionDir(s.projectHash, sessionID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: %s: %v", checkpointerr.ErrAtomicOperationFailed, dir, err)
	}
	s.invalidate()
	return nil
}

func (s *Store) invalidate() {
	s.cacheMu.Lock()
	s.cached = nil
	s.cachedAt = time.Time{}
	s.cacheMu.Unlock()
}

// listSessions returns every session's metadata, sorted newest created_at
// first, serving the cached copy when it is within SessionListTTL.
func (s *Store) listSessions() ([]checkpoint.SessionMetadata, error) {
	s.cacheMu.RLock()
	if s.cached != nil && time.Since(s.cachedAt) < SessionListTTL {
		out := append([]checkpoint.SessionMetadata(nil), s.cached...)
		s.cacheMu.RUnlock()
		return out, nil
	}
	s.cacheMu.RUnlock()

	entries, err := os.ReadDir(s.root.SessionsDir(s.projectHash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", checkpointerr.ErrAtomicOperationFailed, err)
	}

	list := make([]checkpoint.SessionMetadata, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := atomicio.ReadJSON[checkpoint.SessionMetadata](s.root.SessionMetadataPath(s.projectHash, e.Name()))
		if err != nil {
			continue
		}
		list = append(list, meta)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	s.cacheMu.Lock()
	s.cached = list
	s.cachedAt = time.Now()
	s.cacheMu.Unlock()

	return append([]checkpoint.SessionMetadata(nil), list...), nil
}

// ListSessions returns every session's metadata, newest first.
func (s *Store) ListSessions() ([]checkpoint.SessionMetadata, error) {
	return s.listSessions()
}

// ExternalChangeWatcher invalidates a Store's cached session list when its
// sessions directory changes outside OpenSession/DeleteSession — another
// checkpointd process, or a session directory added or removed by hand.
type ExternalChangeWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchExternalChanges starts watching s's sessions directory and
// invalidates the cached session list on every create, remove, or rename
// event. The caller must Close the returned watcher when done.
func (s *Store) WatchExternalChanges() (*ExternalChangeWatcher, error) {
	dir := s.root.SessionsDir(s.projectHash)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", checkpointerr.ErrAtomicOperationFailed, dir, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", checkpointerr.ErrAtomicOperationFailed, err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("%w: %s: %v", checkpointerr.ErrAtomicOperationFailed, dir, err)
	}

	ecw := &ExternalChangeWatcher{watcher: w, done: make(chan struct{})}
	go ecw.run(s)
	return ecw, nil
}

func (w *ExternalChangeWatcher) run(s *Store) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.invalidate()
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher and releases its underlying file descriptor.
func (w *ExternalChangeWatcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

// ListSessionsPaginated returns one page (1-indexed) of the always-sorted
// full session list, along with the total count.
func (s *Store) ListSessionsPaginated(page, pageSize int) (sessions []checkpoint.SessionMetadata, total int, err error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	all, err := s.listSessions()
	if err != nil {
		return nil, 0, err
	}
	total = len(all)
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}
