// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package projecthash

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0o600))

	a, err := Compute(dir)
	require.NoError(t, err)
	b, err := Compute(dir)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, Length)
	assert.NoError(t, Validate(a))
}

func TestComputeDiffersByMarkerSet(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dirA, "package.json"), []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dirB, "Cargo.toml"), []byte(""), 0o600))

	hashA, err := Compute(dirA)
	require.NoError(t, err)
	hashB, err := Compute(dirB)
	require.NoError(t, err)

	assert.NotEqual(t, hashA, hashB)
}

func TestValidateRejectsMalformedHash(t *testing.T) {
	assert.Error(t, Validate(""))
	assert.Error(t, Validate("not-hex!!"))
	assert.Error(t, Validate("abc"))
}
