// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checkpointerr defines the error taxonomy shared by every component
// of the checkpoint substrate. Errors are classified by kind rather than by
// call site, so callers can branch on errors.Is/errors.As against sentinel
// values or typed structs instead of parsing messages.
package checkpointerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for identity lookups and simple failure modes. Wrap these
// with fmt.Errorf("...: %w", ErrX) at the call site to preserve classification
// while adding context.
var (
	ErrProjectNotFound    = fmt.Errorf("project not found")
	ErrSessionNotFound    = fmt.Errorf("session not found")
	ErrCheckpointNotFound = fmt.Errorf("checkpoint not found")

	ErrInvalidCheckpointID = fmt.Errorf("invalid checkpoint id")
	ErrInvalidSessionID    = fmt.Errorf("invalid session id")

	ErrVersionMismatch = fmt.Errorf("on-disk schema version not understood")
	ErrCorruptedData   = fmt.Errorf("checkpoint or index failed structural validation")

	ErrAtomicOperationFailed = fmt.Errorf("atomic commit step failed")

	ErrLockHeld    = fmt.Errorf("lock is held by another process")
	ErrLockTimeout = fmt.Errorf("timed out waiting for lock")
	ErrLockNotHeld = fmt.Errorf("lock not held by this process")

	ErrRestoreInProgress = fmt.Errorf("restore already in progress")

	ErrValidation = fmt.Errorf("checkpoint failed validation")

	ErrRetentionPolicyViolation = fmt.Errorf("refused to delete a preserved session")
)

// Kind classifies an error independent of its message, mirroring the
// taxonomy's "kinds, not names" framing.
type Kind int

const (
	KindUnknown Kind = iota
	KindIO
	KindSerialization
	KindConfig
	KindStorage
	KindNotFound
	KindHashCollision
	KindPermissionDenied
	KindStorageQuotaExceeded
	KindVersionMismatch
	KindCorruptedData
	KindInvalidID
	KindAtomicOperationFailed
	KindRetentionPolicyViolation
	KindRestoration
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindSerialization:
		return "serialization"
	case KindConfig:
		return "config"
	case KindStorage:
		return "storage"
	case KindNotFound:
		return "not_found"
	case KindHashCollision:
		return "hash_collision"
	case KindPermissionDenied:
		return "permission_denied"
	case KindStorageQuotaExceeded:
		return "storage_quota_exceeded"
	case KindVersionMismatch:
		return "version_mismatch"
	case KindCorruptedData:
		return "corrupted_data"
	case KindInvalidID:
		return "invalid_id"
	case KindAtomicOperationFailed:
		return "atomic_operation_failed"
	case KindRetentionPolicyViolation:
		return "retention_policy_violation"
	case KindRestoration:
		return "restoration"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Classified is implemented by every typed error in this package so the CLI
// layer can attach a suggestion without knowing the concrete type.
type Classified interface {
	error
	Kind() Kind
	Recoverable() bool
	Suggestion() string
}

// HashCollisionError reports that two distinct canonical paths produced the
// same project hash — observable but not cryptographically prevented.
type HashCollisionError struct {
	PathA, PathB string
	Hash         string
}

func (e *HashCollisionError) Error() string {
	return fmt.Sprintf("project hash collision %q: %q and %q both hash to it", e.Hash, e.PathA, e.PathB)
}
func (e *HashCollisionError) Kind() Kind        { return KindHashCollision }
func (e *HashCollisionError) Recoverable() bool { return false }
func (e *HashCollisionError) Suggestion() string {
	return "rename one of the conflicting project directories or file a bug; project hashing has no collision-resolution path"
}

// StorageQuotaExceededError reports that a retention quota enforcement
// operation found usage beyond its configured ceiling.
type StorageQuotaExceededError struct {
	Current, Max int64
}

func (e *StorageQuotaExceededError) Error() string {
	return fmt.Sprintf("storage quota exceeded: %d bytes used, %d byte limit", e.Current, e.Max)
}
func (e *StorageQuotaExceededError) Kind() Kind        { return KindStorageQuotaExceeded }
func (e *StorageQuotaExceededError) Recoverable() bool { return true }
func (e *StorageQuotaExceededError) Suggestion() string {
	return "run `checkpointd cleanup` or raise checkpointing.retention.max_total_size_gb"
}

// VersionMismatchError reports an on-disk schema version this build does not
// understand.
type VersionMismatchError struct {
	Path, Found, Want string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("%s: schema version %q is not understood (expected %q)", e.Path, e.Found, e.Want)
}
func (e *VersionMismatchError) Kind() Kind        { return KindVersionMismatch }
func (e *VersionMismatchError) Recoverable() bool { return false }
func (e *VersionMismatchError) Suggestion() string {
	return "this checkpoint was written by a newer or older build; a migration pass is required before it can be restored"
}
func (e *VersionMismatchError) Unwrap() error { return ErrVersionMismatch }

// RetentionPolicyViolationError reports a programmatic attempt to delete a
// session protected by a preservation flag.
type RetentionPolicyViolationError struct {
	SessionID, Reason string
}

func (e *RetentionPolicyViolationError) Error() string {
	return fmt.Sprintf("refusing to delete session %q: %s", e.SessionID, e.Reason)
}
func (e *RetentionPolicyViolationError) Kind() Kind        { return KindRetentionPolicyViolation }
func (e *RetentionPolicyViolationError) Recoverable() bool { return true }
func (e *RetentionPolicyViolationError) Suggestion() string {
	return "clear the session's preservation flag (status or tags) before deleting it explicitly"
}
func (e *RetentionPolicyViolationError) Unwrap() error { return ErrRetentionPolicyViolation }

// PermissionDeniedError wraps a filesystem permission failure on a specific
// targeted path.
type PermissionDeniedError struct {
	Path string
	Err  error
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s: %v", e.Path, e.Err)
}
func (e *PermissionDeniedError) Kind() Kind        { return KindPermissionDenied }
func (e *PermissionDeniedError) Recoverable() bool { return true }
func (e *PermissionDeniedError) Suggestion() string {
	return fmt.Sprintf("check ownership and mode bits on %s (expected 0700 directories, 0600 files)", e.Path)
}
func (e *PermissionDeniedError) Unwrap() error { return e.Err }

// Suggest returns a human-readable message with an attached suggestion when
// err carries one, or just err.Error() otherwise. This is the formatting the
// CLI layer applies before printing an error to the user.
func Suggest(err error) string {
	if err == nil {
		return ""
	}
	var c Classified
	if asClassified(err, &c) && c.Recoverable() {
		return fmt.Sprintf("%s\nsuggestion: %s", c.Error(), c.Suggestion())
	}
	return err.Error()
}

// Classify reports the Kind an error belongs to: the Kind of its Classified
// type if it wraps one, otherwise the Kind matching its sentinel, or
// KindUnknown if neither applies. This is how call sites that only have a
// plain sentinel-wrapped error (not a Classified struct) still get a kind to
// log or branch on.
func Classify(err error) Kind {
	var c Classified
	if asClassified(err, &c) {
		return c.Kind()
	}
	switch {
	case errors.Is(err, ErrProjectNotFound), errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrCheckpointNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidCheckpointID), errors.Is(err, ErrInvalidSessionID):
		return KindInvalidID
	case errors.Is(err, ErrVersionMismatch):
		return KindVersionMismatch
	case errors.Is(err, ErrCorruptedData):
		return KindCorruptedData
	case errors.Is(err, ErrAtomicOperationFailed):
		return KindAtomicOperationFailed
	case errors.Is(err, ErrLockHeld), errors.Is(err, ErrLockTimeout), errors.Is(err, ErrLockNotHeld):
		return KindIO
	case errors.Is(err, ErrRetentionPolicyViolation):
		return KindRetentionPolicyViolation
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrRestoreInProgress):
		return KindRestoration
	default:
		return KindUnknown
	}
}

func asClassified(err error, target *Classified) bool {
	for err != nil {
		if c, ok := err.(Classified); ok {
			*target = c
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
