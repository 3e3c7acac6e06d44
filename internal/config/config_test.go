// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	f, err := Load(path)
	require.NoError(t, err)
	assert.True(t, f.Checkpointing.Enabled)
	assert.Equal(t, 5, f.Checkpointing.AutoCheckpointInterval)
	assert.Equal(t, 90, f.Checkpointing.Retention.MaxAgeDays)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
}

func TestLoadRejectsNegativeInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "[checkpointing]\nauto_checkpoint_interval = -1\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEffectiveAppliesProjectOverride(t *testing.T) {
	f := Default()
	interval := 10
	f.Projects["/home/user/proj"] = Project{AutoCheckpointInterval: &interval}

	eff := f.Effective("/home/user/proj")
	assert.Equal(t, 10, eff.AutoCheckpointInterval)
	assert.True(t, eff.Enabled, "unset fields fall back to the global default")

	fallback := f.Effective("/home/user/other")
	assert.Equal(t, f.Checkpointing.AutoCheckpointInterval, fallback.AutoCheckpointInterval)
}

func TestEffectiveOverridesRetentionWholesale(t *testing.T) {
	f := Default()
	override := Retention{MaxAgeDays: 1, PreserveTagged: false}
	f.Projects["/p"] = Project{Retention: &override}

	eff := f.Effective("/p")
	assert.Equal(t, 1, eff.Retention.MaxAgeDays)
	assert.False(t, eff.Retention.PreserveTagged)
}
