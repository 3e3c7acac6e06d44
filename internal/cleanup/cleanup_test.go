// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haldane-labs/checkpointd/internal/atomicio"
	"github.com/haldane-labs/checkpointd/internal/checkpoint"
	"github.com/haldane-labs/checkpointd/internal/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSession(t *testing.T, root *layout.Root, projectHash, sessionID string, meta checkpoint.SessionMetadata) {
	t.Helper()
	require.NoError(t, root.EnsureSessionDir(projectHash, sessionID))
	require.NoError(t, atomicio.WriteJSON(root.SessionMetadataPath(projectHash, sessionID), meta, 0o600))
}

func TestAgeEvictionHonorsPreservation(t *testing.T) {
	root, err := layout.NewRoot(t.TempDir())
	require.NoError(t, err)

	old := time.Now().AddDate(0, 0, -40)
	seedSession(t, root, "proj", "active-old", checkpoint.SessionMetadata{
		SessionID: "active-old", Status: checkpoint.SessionActive, CreatedAt: old,
	})
	seedSession(t, root, "proj", "tagged-old", checkpoint.SessionMetadata{
		SessionID: "tagged-old", Status: checkpoint.SessionCompleted, CreatedAt: old, Tags: []string{"important"},
	})
	seedSession(t, root, "proj", "plain-old", checkpoint.SessionMetadata{
		SessionID: "plain-old", Status: checkpoint.SessionCompleted, CreatedAt: old,
	})

	engine := NewEngine(root, nil, nil)
	report, err := engine.Run(Config{MaxAgeDays: 30, PreserveActive: true, PreserveTagged: true}, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.DeletedSessions)
	assert.NoDirExists(t, root.SessionDir("proj", "plain-old"))
	assert.DirExists(t, root.SessionDir("proj", "active-old"))
	assert.DirExists(t, root.SessionDir("proj", "tagged-old"))
}

func TestCorruptedMetadataIsDeletedRegardlessOfAge(t *testing.T) {
	root, err := layout.NewRoot(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, root.EnsureSessionDir("proj", "corrupt"))
	require.NoError(t, os.WriteFile(root.SessionMetadataPath("proj", "corrupt"), []byte("not json"), 0o600))

	engine := NewEngine(root, nil, nil)
	report, err := engine.Run(Config{MaxAgeDays: 9999}, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.DeletedSessions)
	assert.NoDirExists(t, root.SessionDir("proj", "corrupt"))
}

func TestDryRunMatchesApplyCountsAndLeavesFilesystemUnchanged(t *testing.T) {
	root, err := layout.NewRoot(t.TempDir())
	require.NoError(t, err)
	old := time.Now().AddDate(0, 0, -40)
	seedSession(t, root, "proj", "plain-old", checkpoint.SessionMetadata{
		SessionID: "plain-old", Status: checkpoint.SessionCompleted, CreatedAt: old,
	})

	engine := NewEngine(root, nil, nil)
	dryReport, err := engine.Run(Config{MaxAgeDays: 30}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, dryReport.DeletedSessions)
	assert.DirExists(t, root.SessionDir("proj", "plain-old"))

	applyReport, err := engine.Run(Config{MaxAgeDays: 30}, false)
	require.NoError(t, err)
	assert.Equal(t, dryReport.DeletedSessions, applyReport.DeletedSessions)
	assert.NoDirExists(t, root.SessionDir("proj", "plain-old"))
}

func TestSessionCountEvictionKeepsNewestAndPreserved(t *testing.T) {
	root, err := layout.NewRoot(t.TempDir())
	require.NoError(t, err)
	now := time.Now()
	seedSession(t, root, "proj", "s1", checkpoint.SessionMetadata{SessionID: "s1", Status: checkpoint.SessionCompleted, CreatedAt: now.Add(-3 * time.Hour)})
	seedSession(t, root, "proj", "s2", checkpoint.SessionMetadata{SessionID: "s2", Status: checkpoint.SessionCompleted, CreatedAt: now.Add(-2 * time.Hour)})
	seedSession(t, root, "proj", "s3", checkpoint.SessionMetadata{SessionID: "s3", Status: checkpoint.SessionActive, CreatedAt: now.Add(-1 * time.Hour)})
	seedSession(t, root, "proj", "s4", checkpoint.SessionMetadata{SessionID: "s4", Status: checkpoint.SessionCompleted, CreatedAt: now})

	engine := NewEngine(root, nil, nil)
	report, err := engine.Run(Config{MaxSessionsPerProject: 2, PreserveActive: true}, false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.DeletedSessions, "s1 and s2 are the oldest non-preserved sessions past the cap of 2")
	assert.NoDirExists(t, root.SessionDir("proj", "s1"))
	assert.NoDirExists(t, root.SessionDir("proj", "s2"))
	assert.DirExists(t, root.SessionDir("proj", "s3"), "active session is preserved even past the cap")
	assert.DirExists(t, root.SessionDir("proj", "s4"))
}

func TestQuotaEvictionReportsStorageQuotaExceededWhenOnlyPreservedSessionsRemain(t *testing.T) {
	root, err := layout.NewRoot(t.TempDir())
	require.NoError(t, err)
	now := time.Now()
	seedSession(t, root, "proj", "active-big", checkpoint.SessionMetadata{
		SessionID: "active-big", Status: checkpoint.SessionActive, CreatedAt: now, SizeBytes: 2 << 30,
	})

	engine := NewEngine(root, nil, nil)
	report, err := engine.Run(Config{MaxTotalSizeGB: 1, PreserveActive: true}, false)
	require.NoError(t, err)

	assert.Equal(t, 0, report.DeletedSessions, "the only session over quota is preserved and must survive")
	assert.DirExists(t, root.SessionDir("proj", "active-big"))
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "quota_eviction", report.Errors[0].Step)
	assert.Contains(t, report.Errors[0].Err, "storage quota exceeded")
}

func TestQuotaEvictionEvictsOldestUntilUnderLimitWithoutError(t *testing.T) {
	root, err := layout.NewRoot(t.TempDir())
	require.NoError(t, err)
	now := time.Now()
	seedSession(t, root, "proj", "old", checkpoint.SessionMetadata{
		SessionID: "old", Status: checkpoint.SessionCompleted, CreatedAt: now.Add(-time.Hour), SizeBytes: 2 << 30,
	})
	seedSession(t, root, "proj", "new", checkpoint.SessionMetadata{
		SessionID: "new", Status: checkpoint.SessionCompleted, CreatedAt: now, SizeBytes: 1 << 20,
	})

	engine := NewEngine(root, nil, nil)
	report, err := engine.Run(Config{MaxTotalSizeGB: 1}, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.DeletedSessions)
	assert.Empty(t, report.Errors)
	assert.NoDirExists(t, root.SessionDir("proj", "old"))
	assert.DirExists(t, root.SessionDir("proj", "new"))
}

func TestTempFileSweepRemovesMatchingFiles(t *testing.T) {
	root, err := layout.NewRoot(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root.Base(), "x.tmp"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root.Base(), "keep.json"), []byte("{}"), 0o600))

	engine := NewEngine(root, nil, nil)
	report, err := engine.Run(Config{}, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.SweptTempFiles)
	assert.NoFileExists(t, filepath.Join(root.Base(), "x.tmp"))
	assert.FileExists(t, filepath.Join(root.Base(), "keep.json"))
}

func TestAuditLogChainVerifies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	log, err := OpenAuditLog(path)
	require.NoError(t, err)

	_, err = log.Append("delete_session", "proj", "sess-1", "sess-1", 1024)
	require.NoError(t, err)
	_, err = log.Append("delete_session", "proj", "sess-2", "sess-2", 2048)
	require.NoError(t, err)

	require.NoError(t, log.VerifyChain())
	require.NoError(t, log.Close())

	reopened, err := OpenAuditLog(path)
	require.NoError(t, err)
	require.NoError(t, reopened.VerifyChain())
	_, err = reopened.Append("delete_session", "proj", "sess-3", "sess-3", 4096)
	require.NoError(t, err)
	require.NoError(t, reopened.VerifyChain())
}

func TestAuditLogDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	log, err := OpenAuditLog(path)
	require.NoError(t, err)
	_, err = log.Append("delete_session", "proj", "sess-1", "sess-1", 1024)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := []byte(`{"sequence":1,"timestamp":"2020-01-01T00:00:00Z","operation":"delete_session","target":"sess-1","bytes_freed":999999999,"prev_hash":"` + GenesisHash + `","entry_hash":"bogus"}` + "\n")
	require.NoError(t, os.WriteFile(path, tampered, 0o600))
	_ = data

	reopened, err := OpenAuditLog(path)
	require.NoError(t, err)
	assert.Error(t, reopened.VerifyChain())
}
