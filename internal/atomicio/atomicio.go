// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package atomicio implements the write-temp-then-rename discipline every
// other package in this module relies on for durability: a file on disk is
// either the previous complete contents or the new complete contents, never
// a truncated one (checkpoint invariant I4).
package atomicio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/haldane-labs/checkpointd/internal/checkpointerr"
)

// WriteFile writes data to path via a sibling temp file and an atomic
// rename. The parent directory is created (mode 0700) if missing.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		if os.IsPermission(err) {
			return &checkpointerr.PermissionDeniedError{Path: dir, Err: err}
		}
		return fmt.Errorf("atomicio: create parent %s: %w", dir, err)
	}

	tmpPath := fmt.Sprintf("%s.tmp.%s", path, uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		if os.IsPermission(err) {
			return &checkpointerr.PermissionDeniedError{Path: tmpPath, Err: err}
		}
		return fmt.Errorf("atomicio: create temp file: %w", err)
	}

	cleanup := true
	defer func() {
		if cleanup {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("atomicio: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("atomicio: sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("atomicio: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("atomicio: rename into place: %w", err)
	}
	cleanup = false

	if err := syncDir(dir); err != nil {
		// The rename already committed; directory sync only hardens against
		// power loss on filesystems that need it. Not fatal.
		return nil
	}
	return nil
}

// WriteJSON pretty-prints value as UTF-8 JSON and writes it atomically.
func WriteJSON(path string, value any, perm os.FileMode) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("atomicio: marshal json: %w", err)
	}
	return WriteFile(path, data, perm)
}

// ReadJSON decodes the JSON document at path into a freshly allocated T.
func ReadJSON[T any](path string) (T, error) {
	var zero T
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return zero, &checkpointerr.PermissionDeniedError{Path: path, Err: err}
		}
		return zero, fmt.Errorf("atomicio: read %s: %w", path, err)
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, fmt.Errorf("atomicio: decode %s: %w", path, err)
	}
	return value, nil
}

// syncDir fsyncs a directory so a preceding rename is durable across power
// loss on filesystems that require it. Best-effort: callers should not treat
// its failure as fatal, since the rename itself already committed.
func syncDir(dirPath string) error {
	dir, err := os.Open(dirPath)
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}

// CreateBackup copies path to a sibling "<base>.backup.<yyyymmdd_hhmmss>" and
// returns the backup path.
func CreateBackup(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("atomicio: read for backup: %w", err)
	}
	backupPath := fmt.Sprintf("%s.backup.%s", path, time.Now().UTC().Format("20060102_150405"))
	info, err := os.Stat(path)
	perm := os.FileMode(0o600)
	if err == nil {
		perm = info.Mode().Perm()
	}
	if err := WriteFile(backupPath, data, perm); err != nil {
		return "", fmt.Errorf("atomicio: write backup: %w", err)
	}
	return backupPath, nil
}

// RestoreBackup copies backupPath over path and then deletes the backup.
func RestoreBackup(backupPath, path string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("atomicio: read backup: %w", err)
	}
	info, statErr := os.Stat(backupPath)
	perm := os.FileMode(0o600)
	if statErr == nil {
		perm = info.Mode().Perm()
	}
	if err := WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("atomicio: restore over %s: %w", path, err)
	}
	if err := os.Remove(backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("atomicio: remove backup after restore: %w", err)
	}
	return nil
}
