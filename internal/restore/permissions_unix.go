// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build unix

package restore

import (
	"fmt"
	"os"
	"strconv"
)

// syncPermissions sets path's mode bits to the octal string mode recorded
// in a filesystem snapshot, warning (never failing the caller) if it can't.
func syncPermissions(path, mode string) error {
	bits, err := strconv.ParseUint(mode, 8, 32)
	if err != nil {
		return fmt.Errorf("invalid recorded permission %q for %s", mode, path)
	}
	if err := os.Chmod(path, os.FileMode(bits)); err != nil {
		return fmt.Errorf("failed to restore permissions on %s: %w", path, err)
	}
	return nil
}
