// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config defines the TOML-backed checkpointing configuration tree:
// global defaults under [checkpointing] plus per-project overrides under
// [projects.<path>], loaded with two passes — defaulting, then validation.
package config

import (
	"fmt"
)

// Retention holds the eviction thresholds the Cleanup Engine runs against.
type Retention struct {
	MaxAgeDays             int     `toml:"max_age_days"`
	MaxTotalSizeGB         float64 `toml:"max_total_size_gb"`
	MaxSessionsPerProject  int     `toml:"max_sessions_per_project"`
	CleanupIntervalHours   int     `toml:"cleanup_interval_hours"`
	EnableAutoCleanup      bool    `toml:"enable_auto_cleanup"`
	PreserveTagged         bool    `toml:"preserve_tagged"`
	PreserveActiveSessions bool    `toml:"preserve_active_sessions"`
}

// Security holds the environment-capture policy.
type Security struct {
	FilterSensitiveEnvVars bool `toml:"filter_sensitive_env_vars"`
}

// Performance holds caching toggles.
type Performance struct {
	EnableCaching bool `toml:"enable_caching"`
}

// StorageBackend configures the optional remote mirror (Open Question #3's
// MirroringStorage decorator). Left empty, no mirror is attached.
type StorageBackend struct {
	Kind      string `toml:"kind"`
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	APIKeyEnv string `toml:"api_key_env"`
}

// Checkpointing is the [checkpointing] table: the global defaults every
// project inherits unless it supplies its own [projects.<path>] override.
type Checkpointing struct {
	Enabled                  bool           `toml:"enabled"`
	StorageLocation          string         `toml:"storage_location"`
	AutoCheckpointInterval   int            `toml:"auto_checkpoint_interval"`
	MaxCheckpointsPerSession int            `toml:"max_checkpoints_per_session"`
	CompressionEnabled       bool           `toml:"compression_enabled"`
	Retention                Retention      `toml:"retention"`
	Security                 Security       `toml:"security"`
	Performance              Performance    `toml:"performance"`
	StorageBackend           StorageBackend `toml:"storage_backend"`
}

// Project is one [projects.<path>] override table. Any zero-valued field
// falls back to the global Checkpointing value at lookup time rather than
// masking it with an explicit zero.
type Project struct {
	Enabled                  *bool      `toml:"enabled"`
	StorageLocation          *string    `toml:"storage_location"`
	AutoCheckpointInterval   *int       `toml:"auto_checkpoint_interval"`
	MaxCheckpointsPerSession *int       `toml:"max_checkpoints_per_session"`
	Retention                *Retention `toml:"retention"`
}

// File is the root of the TOML configuration document.
type File struct {
	Checkpointing Checkpointing      `toml:"checkpointing"`
	Projects      map[string]Project `toml:"projects"`
}

// Default returns a File with spec-recommended defaults, the same values a
// fresh config file is seeded with on first run.
func Default() File {
	return File{
		Checkpointing: Checkpointing{
			Enabled:                  true,
			AutoCheckpointInterval:   5,
			MaxCheckpointsPerSession: 50,
			CompressionEnabled:       false,
			Retention: Retention{
				MaxAgeDays:             90,
				MaxTotalSizeGB:         10,
				MaxSessionsPerProject:  100,
				CleanupIntervalHours:   24,
				EnableAutoCleanup:      true,
				PreserveTagged:         true,
				PreserveActiveSessions: true,
			},
			Security:    Security{FilterSensitiveEnvVars: true},
			Performance: Performance{EnableCaching: true},
		},
		Projects: map[string]Project{},
	}
}

// Validate applies the semantic checks run after defaulting: non-negative
// intervals, a sane retention window.
func (f *File) Validate() error {
	c := f.Checkpointing
	if c.AutoCheckpointInterval < 0 {
		return fmt.Errorf("config: checkpointing.auto_checkpoint_interval must be >= 0, got %d", c.AutoCheckpointInterval)
	}
	if c.MaxCheckpointsPerSession < 0 {
		return fmt.Errorf("config: checkpointing.max_checkpoints_per_session must be >= 0, got %d", c.MaxCheckpointsPerSession)
	}
	if c.Retention.MaxAgeDays < 0 {
		return fmt.Errorf("config: checkpointing.retention.max_age_days must be >= 0, got %d", c.Retention.MaxAgeDays)
	}
	if c.Retention.MaxTotalSizeGB < 0 {
		return fmt.Errorf("config: checkpointing.retention.max_total_size_gb must be >= 0, got %g", c.Retention.MaxTotalSizeGB)
	}
	if c.Retention.CleanupIntervalHours < 0 {
		return fmt.Errorf("config: checkpointing.retention.cleanup_interval_hours must be >= 0, got %d", c.Retention.CleanupIntervalHours)
	}
	for path, proj := range f.Projects {
		if proj.AutoCheckpointInterval != nil && *proj.AutoCheckpointInterval < 0 {
			return fmt.Errorf("config: projects[%q].auto_checkpoint_interval must be >= 0", path)
		}
		if proj.MaxCheckpointsPerSession != nil && *proj.MaxCheckpointsPerSession < 0 {
			return fmt.Errorf("config: projects[%q].max_checkpoints_per_session must be >= 0", path)
		}
	}
	return nil
}

// Effective resolves the Checkpointing settings that apply to projectPath,
// applying any [projects.<path>] override over the global defaults.
func (f *File) Effective(projectPath string) Checkpointing {
	eff := f.Checkpointing
	proj, ok := f.Projects[projectPath]
	if !ok {
		return eff
	}
	if proj.Enabled != nil {
		eff.Enabled = *proj.Enabled
	}
	if proj.StorageLocation != nil {
		eff.StorageLocation = *proj.StorageLocation
	}
	if proj.AutoCheckpointInterval != nil {
		eff.AutoCheckpointInterval = *proj.AutoCheckpointInterval
	}
	if proj.MaxCheckpointsPerSession != nil {
		eff.MaxCheckpointsPerSession = *proj.MaxCheckpointsPerSession
	}
	if proj.Retention != nil {
		eff.Retention = *proj.Retention
	}
	return eff
}
