// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sessionstore

import (
	"context"

	"github.com/haldane-labs/checkpointd/internal/checkpoint"
)

// RemoteMirror is the interface an optional remote document-store mirror
// satisfies. WriteCheckpoint receives the exact bytes a local SaveCheckpoint
// just committed.
type RemoteMirror interface {
	WriteCheckpoint(ctx context.Context, projectHash, sessionID, checkpointID string, data []byte) error
}

// MirroringStorage wraps a Store and best-effort mirrors every checkpoint to
// a RemoteMirror once the local atomic write has committed. The local write
// always wins: a mirror failure never fails SaveCheckpoint, and the mirror is
// never consulted to satisfy a read. This is the `checkpointing.storage_backend`
// decorator: no concrete remote backend ships, so RemoteMirror stays an
// interface until one is configured.
type MirroringStorage struct {
	*Store
	mirror      RemoteMirror
	onMirrorErr func(checkpointID string, err error)
}

// NewMirroringStorage wraps store so every SaveCheckpoint also mirrors to
// mirror. onMirrorErr, if non-nil, is invoked (synchronously, after the local
// write has already succeeded) whenever the mirror write fails; it may be nil
// to discard mirror errors entirely.
func NewMirroringStorage(store *Store, mirror RemoteMirror, onMirrorErr func(checkpointID string, err error)) *MirroringStorage {
	return &MirroringStorage{Store: store, mirror: mirror, onMirrorErr: onMirrorErr}
}

// SaveCheckpoint writes cp through the wrapped Store first. Only once that
// commits does it attempt the remote mirror, and only if one is configured.
func (m *MirroringStorage) SaveCheckpoint(cp checkpoint.Checkpoint) error {
	if err := m.Store.SaveCheckpoint(cp); err != nil {
		return err
	}
	if m.mirror == nil {
		return nil
	}

	data, err := checkpoint.Encode(cp)
	if err != nil {
		return nil
	}
	if err := m.mirror.WriteCheckpoint(context.Background(), m.Store.projectHash, m.Store.sessionID, cp.Metadata.CheckpointID, data); err != nil && m.onMirrorErr != nil {
		m.onMirrorErr(cp.Metadata.CheckpointID, err)
	}
	return nil
}
