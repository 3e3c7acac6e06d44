// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package layout builds the on-disk directory tree:
//
//	$HOME/.<agent_name>/
//	  config/
//	  projects/<project_hash>/
//	    metadata.json
//	    sessions/<session_id>/
//	      metadata.json
//	      checkpoints.json
//	      <checkpoint_id>.json
//	    cache/
//	  temp/
//	  logs/
//	  last_resume.json
package layout

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultAgentName is used when no agent-name environment variable is set.
const DefaultAgentName = "checkpointd"

// Root describes the filesystem layout rooted at a single base directory.
type Root struct {
	base string
}

// NewRoot returns a Root at base, creating it and its fixed top-level
// subdirectories (temp/, logs/; mode 0700) if necessary. Per-project and
// per-session directories are created lazily by EnsureProjectDirs and
// EnsureSessionDir instead, since those are unbounded in number.
func NewRoot(base string) (*Root, error) {
	root := &Root{base: base}
	for _, dir := range []string{base, root.TempDir(), root.LogsDir()} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("layout: create %s: %w", dir, err)
		}
	}
	return root, nil
}

// DefaultRoot resolves $HOME/.<agent_name>, where agent_name comes from the
// CHECKPOINTD_AGENT_NAME environment variable and falls back to
// DefaultAgentName. It does not create the directory.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("layout: resolve home directory: %w", err)
	}
	name := os.Getenv("CHECKPOINTD_AGENT_NAME")
	if name == "" {
		name = DefaultAgentName
	}
	return filepath.Join(home, "."+name), nil
}

// Base returns the root directory.
func (r *Root) Base() string { return r.base }

// ConfigDir is the out-of-scope user config directory; this module never
// writes to it.
func (r *Root) ConfigDir() string { return filepath.Join(r.base, "config") }

// TempDir is swept by the cleanup engine's temp-file pass.
func (r *Root) TempDir() string { return filepath.Join(r.base, "temp") }

// LogsDir holds structured and audit logs.
func (r *Root) LogsDir() string { return filepath.Join(r.base, "logs") }

// ResumePointerPath is the Resume Tracker's single-slot pointer file.
func (r *Root) ResumePointerPath() string { return filepath.Join(r.base, "last_resume.json") }

// ProjectsDir is the parent of every per-project subtree.
func (r *Root) ProjectsDir() string { return filepath.Join(r.base, "projects") }

// ProjectDir is the directory for a specific project hash.
func (r *Root) ProjectDir(projectHash string) string {
	return filepath.Join(r.ProjectsDir(), projectHash)
}

// ProjectMetadataPath is a project's metadata.json.
func (r *Root) ProjectMetadataPath(projectHash string) string {
	return filepath.Join(r.ProjectDir(projectHash), "metadata.json")
}

// ProjectCacheDir holds the size cache and other per-project caches.
func (r *Root) ProjectCacheDir(projectHash string) string {
	return filepath.Join(r.ProjectDir(projectHash), "cache")
}

// SessionsDir is the parent of every session directory within a project.
func (r *Root) SessionsDir(projectHash string) string {
	return filepath.Join(r.ProjectDir(projectHash), "sessions")
}

// SessionDir is the directory owned by one SessionStorage.
func (r *Root) SessionDir(projectHash, sessionID string) string {
	return filepath.Join(r.SessionsDir(projectHash), sessionID)
}

// SessionMetadataPath is a session's metadata.json.
func (r *Root) SessionMetadataPath(projectHash, sessionID string) string {
	return filepath.Join(r.SessionDir(projectHash, sessionID), "metadata.json")
}

// SessionIndexPath is a session's checkpoints.json index.
func (r *Root) SessionIndexPath(projectHash, sessionID string) string {
	return filepath.Join(r.SessionDir(projectHash, sessionID), "checkpoints.json")
}

// CheckpointPath is the full checkpoint value for one checkpoint id.
func (r *Root) CheckpointPath(projectHash, sessionID, checkpointID string) string {
	return filepath.Join(r.SessionDir(projectHash, sessionID), checkpointID+".json")
}

// EnsureProjectDirs creates a project's directory tree (mode 0700).
func (r *Root) EnsureProjectDirs(projectHash string) error {
	for _, dir := range []string{r.ProjectDir(projectHash), r.ProjectCacheDir(projectHash), r.SessionsDir(projectHash)} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("layout: create %s: %w", dir, err)
		}
	}
	return nil
}

// EnsureSessionDir creates a session's directory (mode 0700).
func (r *Root) EnsureSessionDir(projectHash, sessionID string) error {
	dir := r.SessionDir(projectHash, sessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("layout: create %s: %w", dir, err)
	}
	return nil
}
