// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package layout

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCreatesFixedTopLevelDirs(t *testing.T) {
	base := filepath.Join(t.TempDir(), "store")
	root, err := NewRoot(base)
	require.NoError(t, err)

	assert.DirExists(t, root.Base())
	assert.DirExists(t, root.TempDir())
	assert.DirExists(t, root.LogsDir())
	assert.NoDirExists(t, root.ProjectsDir(), "project directories are created lazily, not eagerly")
}

func TestEnsureProjectAndSessionDirs(t *testing.T) {
	root, err := NewRoot(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, root.EnsureProjectDirs("proj"))
	assert.DirExists(t, root.ProjectDir("proj"))
	assert.DirExists(t, root.ProjectCacheDir("proj"))
	assert.DirExists(t, root.SessionsDir("proj"))

	require.NoError(t, root.EnsureSessionDir("proj", "sess-1"))
	assert.DirExists(t, root.SessionDir("proj", "sess-1"))
}
