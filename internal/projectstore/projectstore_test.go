// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package projectstore

import (
	"testing"
	"time"

	"github.com/haldane-labs/checkpointd/internal/atomicio"
	"github.com/haldane-labs/checkpointd/internal/checkpoint"
	"github.com/haldane-labs/checkpointd/internal/checkpointerr"
	"github.com/haldane-labs/checkpointd/internal/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSessionMetadataDirectly(path string, meta checkpoint.SessionMetadata) error {
	return atomicio.WriteJSON(path, meta, 0o600)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root, err := layout.NewRoot(t.TempDir())
	require.NoError(t, err)
	store, err := Open(root, "projhash123")
	require.NoError(t, err)
	return store
}

func addSession(t *testing.T, store *Store, id string, createdAt time.Time) {
	t.Helper()
	sess, err := store.OpenSession(id)
	require.NoError(t, err)
	require.NoError(t, sess.WriteMetadata(checkpoint.SessionMetadata{
		SessionID: id, ProjectHash: store.ProjectHash(), CreatedAt: createdAt,
	}))
}

func TestListSessionsSortedNewestFirst(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC()
	addSession(t, store, "a", base)
	addSession(t, store, "b", base.Add(time.Hour))
	addSession(t, store, "c", base.Add(30*time.Minute))

	list, err := store.ListSessions()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "b", list[0].SessionID)
	assert.Equal(t, "c", list[1].SessionID)
	assert.Equal(t, "a", list[2].SessionID)
}

func TestListSessionsCacheServesWithinTTL(t *testing.T) {
	store := newTestStore(t)
	addSession(t, store, "a", time.Now().UTC())

	first, err := store.ListSessions()
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Write a second session's directory directly (not through OpenSession,
	// which would invalidate the cache) to observe the cache serving a
	// stale list within its TTL.
	require.NoError(t, store.root.EnsureSessionDir(store.ProjectHash(), "b"))
	metaPath := store.root.SessionMetadataPath(store.ProjectHash(), "b")
	require.NoError(t, writeSessionMetadataDirectly(metaPath, checkpoint.SessionMetadata{
		SessionID: "b", ProjectHash: store.ProjectHash(), CreatedAt: time.Now().UTC(),
	}))

	cached, err := store.ListSessions()
	require.NoError(t, err)
	assert.Len(t, cached, 1, "second session should not appear until cache is invalidated or expires")

	store.invalidate()
	fresh, err := store.ListSessions()
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}

func TestDeleteSessionInvalidatesCache(t *testing.T) {
	store := newTestStore(t)
	addSession(t, store, "a", time.Now().UTC())
	_, err := store.ListSessions()
	require.NoError(t, err)

	require.NoError(t, store.DeleteSession("a"))

	list, err := store.ListSessions()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteSessionRefusesActiveOrTaggedSession(t *testing.T) {
	store := newTestStore(t)
	sess, err := store.OpenSession("active-sess")
	require.NoError(t, err)
	require.NoError(t, sess.WriteMetadata(checkpoint.SessionMetadata{SessionID: "active-sess", Status: checkpoint.SessionActive}))

	err = store.DeleteSession("active-sess")
	var rpv *checkpointerr.RetentionPolicyViolationError
	require.ErrorAs(t, err, &rpv)
	assert.Equal(t, "active-sess", rpv.SessionID)

	sess2, err := store.OpenSession("tagged-sess")
	require.NoError(t, err)
	require.NoError(t, sess2.WriteMetadata(checkpoint.SessionMetadata{SessionID: "tagged-sess", Tags: []string{"keep"}}))
	require.ErrorAs(t, store.DeleteSession("tagged-sess"), &rpv)
}

func TestRecordProjectPathInitializesThenDetectsCollision(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.RecordProjectPath("/work/project-a"))
	meta, err := store.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "/work/project-a", meta.ProjectPath)

	require.NoError(t, store.RecordProjectPath("/work/project-a"))

	err = store.RecordProjectPath("/work/project-b")
	var hce *checkpointerr.HashCollisionError
	require.ErrorAs(t, err, &hce)
	assert.Equal(t, "/work/project-a", hce.PathA)
	assert.Equal(t, "/work/project-b", hce.PathB)
}

func TestWatchExternalChangesInvalidatesCacheOnDirectoryWrite(t *testing.T) {
	store := newTestStore(t)
	addSession(t, store, "a", time.Now().UTC())
	_, err := store.ListSessions()
	require.NoError(t, err)

	watcher, err := store.WatchExternalChanges()
	require.NoError(t, err)
	defer watcher.Close()

	// Write a second session's directory directly, the same external
	// mutation TestListSessionsCacheServesWithinTTL shows the cache would
	// otherwise miss until its TTL expires.
	require.NoError(t, store.root.EnsureSessionDir(store.ProjectHash(), "b"))
	metaPath := store.root.SessionMetadataPath(store.ProjectHash(), "b")
	require.NoError(t, writeSessionMetadataDirectly(metaPath, checkpoint.SessionMetadata{
		SessionID: "b", ProjectHash: store.ProjectHash(), CreatedAt: time.Now().UTC(),
	}))

	require.Eventually(t, func() bool {
		list, err := store.ListSessions()
		return err == nil && len(list) == 2
	}, 2*time.Second, 10*time.Millisecond, "watcher should invalidate the cache once the new session directory is observed")
}

func TestListSessionsPaginated(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		addSession(t, store, id, base.Add(time.Duration(i)*time.Minute))
	}

	page1, total, err := store.ListSessionsPaginated(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 2)
	assert.Equal(t, "e", page1[0].SessionID)

	page3, total, err := store.ListSessionsPaginated(3, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page3, 1)

	pageOut, _, err := store.ListSessionsPaginated(10, 2)
	require.NoError(t, err)
	assert.Empty(t, pageOut)
}
