// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checkpoint

import (
	"encoding/json"
	"fmt"

	"github.com/haldane-labs/checkpointd/internal/checkpointerr"
)

// envelope is the wire shape used only to peek at checkpoint_version before
// committing to a full decode, so a foreign or future schema version is
// reported as a VersionMismatchError rather than a confusing field-mismatch
// decode failure.
type envelope struct {
	Metadata struct {
		SchemaVersion string `json:"checkpoint_version"`
	} `json:"metadata"`
}

// Encode serializes a checkpoint to its on-disk JSON form. It stamps
// Metadata.SchemaVersion with the current SchemaVersion unconditionally —
// callers never choose the version a checkpoint is written with.
func Encode(cp Checkpoint) ([]byte, error) {
	cp.Metadata.SchemaVersion = SchemaVersion
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("checkpoint: encode: %w", err)
	}
	return data, nil
}

// Decode parses a checkpoint from its on-disk JSON form, rejecting any
// schema version other than SchemaVersion (DESIGN.md Open Question #1: no
// v2 reader exists, so an unrecognized version is a hard error rather than a
// best-effort migration).
func Decode(path string, data []byte) (Checkpoint, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %s: %v", checkpointerr.ErrCorruptedData, path, err)
	}
	if env.Metadata.SchemaVersion != SchemaVersion {
		return Checkpoint{}, &checkpointerr.VersionMismatchError{
			Path:  path,
			Found: env.Metadata.SchemaVersion,
			Want:  SchemaVersion,
		}
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %s: %v", checkpointerr.ErrCorruptedData, path, err)
	}
	return cp, nil
}
