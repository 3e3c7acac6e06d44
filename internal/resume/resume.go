// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resume implements the Resume Tracker: a process-wide single-slot
// pointer to the last restored checkpoint, valid for a short window after it
// was written.
package resume

import (
	"os"
	"path/filepath"
	"time"

	"github.com/haldane-labs/checkpointd/internal/atomicio"
	"github.com/haldane-labs/checkpointd/internal/checkpoint"
)

// Window is how long a resume pointer stays valid after it was written.
const Window = time.Hour

// Pointer is the on-disk shape of last_resume.json.
type Pointer struct {
	ProjectPath      string                  `json:"project_path"`
	SessionID        string                  `json:"session_id"`
	CheckpointID     string                  `json:"checkpoint_id"`
	RestoredAt       time.Time               `json:"restored_at"`
	WorkingDirectory string                  `json:"working_directory"`
	TaskDescription  string                  `json:"task_description"`
	WorkflowStep     checkpoint.WorkflowStep `json:"workflow_step"`
	Iteration        int                     `json:"iteration"`
}

// Tracker owns the single-slot pointer file at path. It never blocks: every
// method either succeeds immediately or returns a "no context" result.
type Tracker struct {
	path string
}

// New returns a Tracker backed by path (typically layout.Root.ResumePointerPath()).
func New(path string) *Tracker {
	return &Tracker{path: path}
}

// Write overwrites the pointer unconditionally.
func (t *Tracker) Write(p Pointer) error {
	return atomicio.WriteJSON(t.path, p, 0o600)
}

// Read returns (pointer, true) if the stored pointer is present, matches
// projectPath (already canonicalized by the caller), and was written within
// Window. Any other case returns (Pointer{}, false); an expired pointer is
// cleared as a side effect, matching "clears the file if expired."
func (t *Tracker) Read(projectPath string) (Pointer, bool) {
	p, err := atomicio.ReadJSON[Pointer](t.path)
	if err != nil {
		return Pointer{}, false
	}

	if time.Since(p.RestoredAt) > Window {
		_ = t.clear()
		return Pointer{}, false
	}

	storedCanonical, err := canonicalize(p.ProjectPath)
	if err != nil {
		return Pointer{}, false
	}
	callerCanonical, err := canonicalize(projectPath)
	if err != nil {
		return Pointer{}, false
	}
	if storedCanonical != callerCanonical {
		return Pointer{}, false
	}

	return p, true
}

// Clear removes the pointer file, if any.
func (t *Tracker) Clear() error {
	return t.clear()
}

func (t *Tracker) clear() error {
	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return filepath.Clean(abs), nil
	}
	return resolved, nil
}
