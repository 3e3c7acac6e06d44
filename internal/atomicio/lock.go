// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package atomicio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/haldane-labs/checkpointd/internal/checkpointerr"
)

// staleLockTTL bounds how long a lock is honored once its holder can no
// longer be confirmed alive. On Windows, isProcessAlive can't distinguish a
// live holder from a dead one (FindProcess always succeeds), so this TTL is
// the only staleness signal available there; on Unix it's a backstop behind
// the PID liveness check.
const staleLockTTL = 10 * time.Minute

// lockInfo is the JSON body of a "<base>.lock" file: enough to tell a stale
// lock (holder process is gone, or simply too old to trust) from a live one.
type lockInfo struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

func (l lockInfo) stale() bool {
	return !isProcessAlive(l.PID) || time.Since(l.AcquiredAt) > staleLockTTL
}

// Lock represents a held advisory lock. The zero value is not usable; obtain
// one from TryAcquireLock or WaitForLock. Callers must Release it, typically
// via defer, so a panic or early return still drops the lock.
type Lock struct {
	path string
}

// Path returns the target path the lock protects (not the "<base>.lock"
// file itself).
func (l *Lock) Path() string { return l.path }

// Release drops the lock by removing its "<base>.lock" file. Safe to call on
// a nil Lock. If the lock file's recorded PID no longer matches this
// process, Release refuses to remove it and returns
// checkpointerr.ErrLockNotHeld rather than deleting a lock acquired by
// someone else (e.g. after this process's own lock was reaped as stale and
// re-acquired elsewhere).
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	lp := lockPath(l.path)

	data, err := os.ReadFile(lp)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("atomicio: release lock %s: %w", l.path, err)
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err == nil && info.PID != os.Getpid() {
		return checkpointerr.ErrLockNotHeld
	}

	if err := os.Remove(lp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("atomicio: release lock %s: %w", l.path, err)
	}
	return nil
}

func lockPath(target string) string {
	return target + ".lock"
}

// TryAcquireLock attempts to create "<path>.lock" exclusively. If an
// existing lock file is stale (its recorded PID is no longer alive, or it
// has simply outlived staleLockTTL) it is removed and acquisition retried
// once. Returns checkpointerr.ErrLockHeld if another live process holds the
// lock.
func TryAcquireLock(path string) (*Lock, error) {
	return tryAcquireLock(path, true)
}

func tryAcquireLock(path string, reapStale bool) (*Lock, error) {
	lp := lockPath(path)
	info := lockInfo{PID: os.Getpid(), AcquiredAt: time.Now().UTC()}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("atomicio: marshal lock info: %w", err)
	}

	f, err := os.OpenFile(lp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err == nil {
		defer f.Close()
		if _, werr := f.Write(data); werr != nil {
			os.Remove(lp)
			return nil, fmt.Errorf("atomicio: write lock info: %w", werr)
		}
		return &Lock{path: path}, nil
	}
	if !os.IsExist(err) {
		return nil, fmt.Errorf("atomicio: create lock file: %w", err)
	}

	if !reapStale {
		return nil, checkpointerr.ErrLockHeld
	}

	existing, rerr := os.ReadFile(lp)
	if rerr != nil {
		// Lock file vanished between the EEXIST and our read; someone else
		// released it concurrently. Treat as contended rather than racing
		// a second create.
		return nil, checkpointerr.ErrLockHeld
	}
	var held lockInfo
	if jerr := json.Unmarshal(existing, &held); jerr != nil || held.stale() {
		if remErr := os.Remove(lp); remErr != nil && !os.IsNotExist(remErr) {
			return nil, checkpointerr.ErrLockHeld
		}
		return tryAcquireLock(path, false)
	}

	return nil, checkpointerr.ErrLockHeld
}

// WaitForLock polls TryAcquireLock every 100ms until it succeeds or timeout
// elapses.
func WaitForLock(ctx context.Context, path string, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)
	for {
		lock, err := TryAcquireLock(path)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, checkpointerr.ErrLockHeld) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", checkpointerr.ErrLockTimeout, path, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
