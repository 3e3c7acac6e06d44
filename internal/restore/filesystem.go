// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package restore

import (
	"fmt"
	"os"

	"github.com/haldane-labs/checkpointd/internal/checkpoint"
)

func restoreFilesystemState(fs checkpoint.FilesystemState) SubstateResult {
	var r SubstateResult
	for _, f := range fs.TrackedFiles {
		if _, err := os.Stat(f.Path); err != nil {
			r.Warnings = append(r.Warnings, fmt.Sprintf("tracked file missing: %s", f.Path))
		}
	}
	for path, mode := range fs.Permissions {
		if err := syncPermissions(path, mode); err != nil {
			r.Warnings = append(r.Warnings, err.Error())
		}
	}
	return r
}
